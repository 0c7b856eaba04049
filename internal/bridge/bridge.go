// Package bridge relays Signal messages to an LLM backend and replies
// with filtered responses, keeping bounded per-user history.
package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/qmuntal/stateless"

	"github.com/signallama/signallama/internal/config"
	"github.com/signallama/signallama/internal/history"
	"github.com/signallama/signallama/internal/llm"
	"github.com/signallama/signallama/internal/logger"
	"github.com/signallama/signallama/internal/signalapi"
)

// FSM States
type FSMState stateless.State

var (
	StateRunning  FSMState = "Running"
	StateStopping FSMState = "Stopping" // Terminal: loop exits at the next iteration boundary
)

// FSM Triggers
type FSMTrigger stateless.Trigger

var TriggerStop FSMTrigger = "Stop"

// Transport is the messaging side of the bridge, satisfied by
// *signalapi.Client.
type Transport interface {
	Receive(ctx context.Context) ([]signalapi.Message, error)
	Send(ctx context.Context, recipient, text string) (int64, error)
	Attachment(ctx context.Context, id string) ([]byte, error)
	Close()
}

// Transcriber converts voice attachment bytes to text, satisfied by
// *whisper.Client.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Bridge is the top-level poll loop driver. One Bridge owns one
// sequential path of control: batches are fetched and messages handled
// one at a time, strictly in arrival order.
type Bridge struct {
	cfg         config.Config
	transport   Transport
	llmClient   llm.Client
	transcriber Transcriber
	store       *history.Store

	fsm      *stateless.StateMachine
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a new Bridge.
func New(cfg config.Config, transport Transport, llmClient llm.Client, transcriber Transcriber, store *history.Store) *Bridge {
	b := &Bridge{
		cfg:         cfg,
		transport:   transport,
		llmClient:   llmClient,
		transcriber: transcriber,
		store:       store,
		stopCh:      make(chan struct{}),
	}

	b.fsm = stateless.NewStateMachine(StateRunning)
	b.fsm.Configure(StateRunning).
		Permit(TriggerStop, StateStopping)
	b.fsm.Configure(StateStopping).
		OnEntry(func(ctx context.Context, args ...any) error {
			b.stopOnce.Do(func() { close(b.stopCh) })
			return nil
		}).
		Ignore(TriggerStop)

	return b
}

// RequestStop transitions the bridge to Stopping. The transition is
// observed at the next iteration boundary; in-flight message handling
// always completes. Safe to call more than once.
func (b *Bridge) RequestStop() {
	if err := b.fsm.Fire(TriggerStop); err != nil {
		logger.L.Warn("stop trigger rejected", "error", err)
	}
}

func (b *Bridge) running() bool {
	return b.fsm.MustState() == StateRunning
}

// Run polls for inbound messages until the bridge is stopped, either
// via ctx cancellation or RequestStop. Per-cycle fetch errors and
// per-message failures are logged and never end the loop.
func (b *Bridge) Run(ctx context.Context) {
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-ctx.Done():
			b.RequestStop()
		case <-b.stopCh:
			// Stopped directly; nothing to relay.
		}
	}()

	logger.L.Info("bridge started", "number", b.cfg.Signal.Number, "model", b.cfg.LLM.Model,
		"poll_interval", b.cfg.Signal.PollInterval)

	for b.running() {
		msgs, err := b.transport.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.L.Debug("receive interrupted by shutdown")
			} else {
				logger.L.Error("error receiving messages", "error", err)
			}
			b.sleep()
			continue
		}
		if len(msgs) > 0 {
			logger.L.Debug("received batch", "count", len(msgs))
		}

		// The fetched batch is always finished, even when a stop
		// request arrives while it is being worked through.
		msgCtx := context.WithoutCancel(ctx)
		for _, msg := range msgs {
			b.handleMessage(msgCtx, msg)
		}

		b.sleep()
	}

	<-watcherDone
	b.transport.Close()
	logger.L.Info("bridge stopped")
}

// sleep waits out the poll interval. A stop request ends the wait
// early; the state itself is only consulted at the loop boundary.
func (b *Bridge) sleep() {
	t := time.NewTimer(b.cfg.Signal.PollInterval)
	defer t.Stop()
	select {
	case <-t.C:
	case <-b.stopCh:
	}
}
