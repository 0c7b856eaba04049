// Package signalapi is a client for the signal-cli-rest-api service.
package signalapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/signallama/signallama/internal/config"
)

// Client talks to one signal-cli-rest-api instance on behalf of one
// registered number.
type Client struct {
	cfg    config.SignalConfig
	client *http.Client
}

// New creates a new Client. The receive long-poll holds the connection
// for cfg.ReceiveTimeout seconds, so the HTTP timeout leaves headroom
// on top of it.
func New(cfg config.SignalConfig) *Client {
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.ReceiveTimeout+30) * time.Second},
	}
}

// Connect probes the API so an unreachable or misconfigured instance
// fails at startup instead of on the first poll.
func (c *Client) Connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIURL+"/v1/about", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("signal api unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("signal api probe: unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

// Close releases the transport session.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}

// Receive fetches pending inbound messages, blocking server-side up to
// the configured receive timeout. An empty body yields no messages; a
// single-object body is treated as a one-element batch.
func (c *Client) Receive(ctx context.Context) ([]Message, error) {
	// The number must stay unescaped in the path; the API expects it raw.
	receiveURL := fmt.Sprintf("%s/v1/receive/%s", c.cfg.APIURL, c.cfg.Number)

	params := url.Values{}
	params.Set("timeout", strconv.Itoa(c.cfg.ReceiveTimeout))
	params.Set("ignore_attachments", strconv.FormatBool(c.cfg.IgnoreAttachments))
	params.Set("ignore_stories", strconv.FormatBool(c.cfg.IgnoreStories))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, receiveURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("receive: unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseMessages(body)
}

func parseMessages(body []byte) ([]Message, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var messages []Message
	if err := json.Unmarshal(body, &messages); err == nil {
		return messages, nil
	}

	var single Message
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, fmt.Errorf("parse receive response: %w", err)
	}
	return []Message{single}, nil
}

// Send delivers text to recipient and returns the server-side send
// timestamp, which is only good for logging.
func (c *Client) Send(ctx context.Context, recipient, text string) (int64, error) {
	payload := sendRequest{
		Number:     c.cfg.Number,
		Recipients: []string{recipient},
		Message:    text,
		TextMode:   "normal",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL+"/v2/send", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("send: unexpected status code: %d", resp.StatusCode)
	}

	var sent sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sent); err != nil {
		// Delivery already succeeded; the timestamp is cosmetic.
		return 0, nil
	}
	return sent.Timestamp, nil
}

// Attachment downloads the raw bytes of an attachment by identifier.
func (c *Client) Attachment(ctx context.Context, id string) ([]byte, error) {
	// Attachment ids come from the wire; keep them path-safe.
	attURL := fmt.Sprintf("%s/v1/attachments/%s", c.cfg.APIURL, url.PathEscape(strings.TrimSpace(id)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, attURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attachment %s: unexpected status code: %d", id, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

type sendRequest struct {
	Number     string   `json:"number"`
	Recipients []string `json:"recipients"`
	Message    string   `json:"message"`
	TextMode   string   `json:"text_mode"`
}

type sendResponse struct {
	Timestamp int64 `json:"timestamp"`
}
