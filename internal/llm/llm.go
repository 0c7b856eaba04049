// Package llm constructs the completion backend client.
package llm

import (
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/signallama/signallama/internal/config"
)

// NewClient creates a client for any OpenAI-compatible completion
// endpoint. An empty BaseURL means the default OpenAI endpoint; the
// request timeout bounds every completion call.
func NewClient(cfg config.LLMConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}

	return openai.NewClientWithConfig(clientCfg)
}
