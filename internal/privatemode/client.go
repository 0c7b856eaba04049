// Package privatemode probes a PrivateMode proxy for its attestation
// document.
package privatemode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/signallama/signallama/internal/attestation"
	"github.com/signallama/signallama/internal/config"
	"github.com/signallama/signallama/internal/logger"
)

// Client fetches attestation data from a running PrivateMode proxy.
type Client struct {
	cfg    config.PrivateModeConfig
	client *http.Client
}

// New creates a new Client.
func New(cfg config.PrivateModeConfig) *Client {
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// FetchAttestation retrieves the proxy's attestation document.
func (c *Client) FetchAttestation(ctx context.Context) (attestation.Document, error) {
	var doc attestation.Document

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ProxyURL+"/attestation", nil)
	if err != nil {
		return doc, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return doc, fmt.Errorf("fetch attestation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return doc, fmt.Errorf("fetch attestation: unexpected status code: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return doc, fmt.Errorf("parse attestation: %w", err)
	}
	return doc, nil
}

// VerifyAttestation fetches and verifies the proxy's attestation,
// logging the outcome. A failed verification is reported, not fatal:
// the caller decides whether to proceed without the assurance.
func (c *Client) VerifyAttestation(ctx context.Context) (attestation.Report, error) {
	doc, err := c.FetchAttestation(ctx)
	if err != nil {
		return attestation.Report{}, err
	}

	report, err := attestation.Verify(doc)
	if err != nil {
		return report, err
	}

	if report.Verified {
		logger.L.Info("attestation verified",
			"certificates", report.Chain.CertCount,
			"leaf", report.Chain.LeafSubject,
			"root", report.Chain.RootSubject,
			"manifest_hash", doc.ManifestHash)
	} else {
		logger.L.Warn("attestation verification failed",
			"chain_verified", report.Chain.Verified,
			"manifest_signature", report.ManifestSignature)
	}
	return report, nil
}
