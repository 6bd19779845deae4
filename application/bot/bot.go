// Package bot wires the verification protocol core to its runtime
// surroundings: the confirmation bridge, the event source fed by the
// external messaging client, the outcome journal, and the logger.
package bot

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sasbridge/sasbridge-go/application"
	"github.com/sasbridge/sasbridge-go/application/bridge"
	"github.com/sasbridge/sasbridge-go/protocol"
	"github.com/sasbridge/sasbridge-go/storage/journal"
)

// ErrSourceClosed is returned by Run when the event source stops
// delivering events before shutdown was requested.
var ErrSourceClosed = errors.New("[sasbot] Event source closed")

// shutdownGrace bounds how long Run waits for the bridge to drain
// in-flight submissions on shutdown.
const shutdownGrace = 5 * time.Second

// A RawEvent is one wire envelope together with the transport it
// arrived on.
type RawEvent struct {
	Transport protocol.Transport
	Payload   []byte
}

// An EventSource delivers raw verification envelopes from the external
// messaging client. The channel is closed when the source stops.
type EventSource interface {
	Events() <-chan RawEvent
}

// A Bot is one verification orchestrator instance: it owns a registry,
// a confirmation bridge and an optional outcome journal, and pumps
// events from its source into the orchestrator. Every inbound event is
// handled on its own goroutine so a stuck verification never delays
// unrelated events.
type Bot struct {
	conf         *Config
	logger       *application.Logger
	bridge       *bridge.Bridge
	registry     *protocol.Registry
	orchestrator *protocol.Orchestrator
	journal      *journal.Journal
	source       EventSource
}

// NewBot constructs a verification bot over the given capability
// surface and event source. The confirmation bridge is bound
// immediately; its address is part of the operator instructions logged
// for every transaction.
func NewBot(conf *Config, verifier protocol.Verifier, source EventSource,
	logger *application.Logger) (*Bot, error) {
	br, err := bridge.NewBridge(logger)
	if err != nil {
		return nil, err
	}

	var recorder protocol.OutcomeRecorder
	var jnl *journal.Journal
	if conf.JournalPath != "" {
		jnl, err = journal.Open(conf.JournalPath)
		if err != nil {
			return nil, err
		}
		count, err := jnl.Count()
		if err != nil {
			jnl.Close()
			return nil, err
		}
		logger.Info("outcome journal opened",
			"path", conf.JournalPath, "outcomes", count)
		recorder = jnl
	}

	registry := protocol.NewRegistry()
	reporter := protocol.NewReporter(verifier, logger)
	orch := protocol.NewOrchestrator(verifier, registry, br, reporter, recorder, logger)
	orch.Window = conf.Window()
	orch.PollInterval = conf.Poll()
	orch.BridgeAddr = br.Addr()

	return &Bot{
		conf:         conf,
		logger:       logger,
		bridge:       br,
		registry:     registry,
		orchestrator: orch,
		journal:      jnl,
		source:       source,
	}, nil
}

// Run serves the bridge and pumps events until the context is
// cancelled or the event source closes. It returns ErrSourceClosed in
// the latter case and nil on a clean shutdown.
func (bot *Bot) Run(ctx context.Context) error {
	bot.logger.Info("confirm codes with",
		"command", bot.bridge.Instructions("<code>"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := bot.bridge.Serve(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return bot.pump(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return bot.bridge.Shutdown(shutCtx)
	})

	err := g.Wait()
	if bot.journal != nil {
		bot.journal.Close()
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// pump fans inbound events out to per-event handler goroutines and
// waits for them to finish before returning.
func (bot *Bot) pump(ctx context.Context) error {
	var handlers sync.WaitGroup
	defer handlers.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-bot.source.Events():
			if !ok {
				return ErrSourceClosed
			}
			handlers.Add(1)
			go func(raw RawEvent) {
				defer handlers.Done()
				bot.handle(ctx, raw)
			}(raw)
		}
	}
}

func (bot *Bot) handle(ctx context.Context, raw RawEvent) {
	ev, code := protocol.Normalize(raw.Payload, raw.Transport)
	if code != protocol.ReqSuccess {
		bot.logger.Warn("dropping malformed event envelope",
			"transport", raw.Transport.String())
		return
	}
	// the orchestrator logs every accepted or rejected transition
	bot.orchestrator.Dispatch(ctx, ev)
}
