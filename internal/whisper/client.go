// Package whisper is a client for a whisper-asr-webservice endpoint.
package whisper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/signallama/signallama/internal/config"
	"github.com/signallama/signallama/internal/logger"
)

// ErrDisabled is returned when no transcription endpoint is configured.
var ErrDisabled = errors.New("transcription disabled: no whisper url configured")

// Client submits audio bytes for transcription.
type Client struct {
	cfg    config.WhisperConfig
	client *http.Client
}

// New creates a new Client. A client with an empty URL is valid and
// reports ErrDisabled from Transcribe.
func New(cfg config.WhisperConfig) *Client {
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// Enabled reports whether a transcription endpoint is configured.
func (c *Client) Enabled() bool {
	return c.cfg.URL != ""
}

// Transcribe uploads audio and returns the recognized text. The bytes
// are staged in a temporary file that is removed on every exit path.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	staged := filepath.Join(os.TempDir(), "voice-"+uuid.NewString()+ext(filename))
	if err := os.WriteFile(staged, audio, 0o600); err != nil {
		return "", fmt.Errorf("stage audio: %w", err)
	}
	defer func() {
		if err := os.Remove(staged); err != nil {
			logger.L.Warn("failed to remove staged audio", "path", staged, "error", err)
		}
	}()

	return c.upload(ctx, staged, filename)
}

func (c *Client) upload(ctx context.Context, staged, filename string) (string, error) {
	f, err := os.Open(staged)
	if err != nil {
		return "", fmt.Errorf("open staged audio: %w", err)
	}
	defer f.Close()

	var body strings.Builder
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio_file", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read staged audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/asr?output=json", strings.NewReader(body.String()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription: unexpected status code: %d", resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("parse transcription response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}

func ext(filename string) string {
	if e := filepath.Ext(filename); e != "" {
		return e
	}
	return ".ogg" // signal voice notes default to ogg/opus
}
