package privatemode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/signallama/signallama/internal/config"
	"github.com/stretchr/testify/require"
)

func TestFetchAttestation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/attestation", r.URL.Path)
		w.Write([]byte(`{
			"manifest": {"version": "1.0"},
			"signature": "c2ln",
			"certificates": ["cert-pem"],
			"manifest_hash": "abc123"
		}`))
	}))
	defer srv.Close()

	doc, err := New(config.PrivateModeConfig{ProxyURL: srv.URL}).FetchAttestation(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string]any{"version": "1.0"}, doc.Manifest)
	require.Equal(t, "c2ln", doc.Signature)
	require.Equal(t, []string{"cert-pem"}, doc.Certificates)
	require.Equal(t, "abc123", doc.ManifestHash)
}

func TestFetchAttestation_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no attestation", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(config.PrivateModeConfig{ProxyURL: srv.URL}).FetchAttestation(context.Background())
	require.ErrorContains(t, err, "status code: 503")
}

func TestVerifyAttestation_InvalidDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"manifest": {}, "signature": "", "certificates": []}`))
	}))
	defer srv.Close()

	_, err := New(config.PrivateModeConfig{ProxyURL: srv.URL}).VerifyAttestation(context.Background())
	require.ErrorContains(t, err, "no certificates")
}
