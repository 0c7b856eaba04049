package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/signallama/signallama/internal/bridge"
	"github.com/signallama/signallama/internal/config"
	"github.com/signallama/signallama/internal/history"
	"github.com/signallama/signallama/internal/llm"
	"github.com/signallama/signallama/internal/logger"
	"github.com/signallama/signallama/internal/privatemode"
	"github.com/signallama/signallama/internal/signalapi"
	"github.com/signallama/signallama/internal/whisper"
)

func main() {
	// Optional .env for local development; config.yaml is the source of truth.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Log.Level)
	logger.L.Info("configuration loaded", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)

	store, err := history.Open(cfg.History.Path, cfg.History.MaxHistory)
	if err != nil {
		logger.L.Error("failed to open history store", "path", cfg.History.Path, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport := signalapi.New(cfg.Signal)
	if err := transport.Connect(ctx); err != nil {
		logger.L.Error("failed to reach signal api", "url", cfg.Signal.APIURL, "error", err)
		os.Exit(1)
	}

	if cfg.PrivateMode.ProxyURL != "" && cfg.PrivateMode.VerifyAttestation {
		report, err := privatemode.New(cfg.PrivateMode).VerifyAttestation(ctx)
		if err != nil {
			logger.L.Warn("proceeding without attestation verification", "error", err)
		} else if !report.Verified {
			logger.L.Warn("proceeding with failed attestation verification")
		}
	}

	transcriber := whisper.New(cfg.Whisper)
	if !transcriber.Enabled() {
		logger.L.Info("voice transcription disabled: no whisper url configured")
	}

	b := bridge.New(*cfg, transport, llm.NewClient(cfg.LLM), transcriber, store)
	b.Run(ctx)
}
