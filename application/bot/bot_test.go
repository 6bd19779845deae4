package bot

import (
	"context"
	"errors"
	"net/http"
	"path"
	"testing"
	"time"

	"github.com/sasbridge/sasbridge-go/application"
	"github.com/sasbridge/sasbridge-go/protocol"
	"github.com/sasbridge/sasbridge-go/storage/journal"
)

// chanSource feeds events straight from a channel, standing in for the
// socket listener.
type chanSource struct {
	ch chan RawEvent
}

var _ EventSource = (*chanSource)(nil)

func (s *chanSource) Events() <-chan RawEvent {
	return s.ch
}

func deviceLine(eventType, peer, transactionID string) RawEvent {
	return RawEvent{
		Transport: protocol.TransportDevice,
		Payload: []byte(`{"type":"` + eventType + `","sender":"` + peer +
			`","content":{"transaction_id":"` + transactionID + `"}}`),
	}
}

// startWaiting walks one transaction through the handshake until it
// waits for confirmation. Events are sequenced because every inbound
// event is handled on its own goroutine.
func startWaiting(t *testing.T, b *Bot, source *chanSource, peer, transactionID string) *protocol.Transaction {
	t.Helper()

	source.ch <- deviceLine("m.key.verification.request", peer, transactionID)
	var tx *protocol.Transaction
	waitUntil(t, func() bool {
		tx = b.registry.Lookup(peer, transactionID)
		return tx != nil && tx.State() == protocol.StateStarted
	})

	source.ch <- deviceLine("m.key.verification.key", peer, transactionID)
	waitUntil(t, func() bool {
		return tx.State() == protocol.StateWaitingConfirmation
	})
	return tx
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("Expect condition to hold before the deadline")
}

func newTestBot(t *testing.T, conf *Config, verifier protocol.Verifier) (*Bot, *chanSource, chan error, context.CancelFunc) {
	t.Helper()
	source := &chanSource{ch: make(chan RawEvent, 8)}
	b, err := NewBot(conf, verifier, source, application.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	return b, source, done, cancel
}

func awaitRun(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Expect Run to return before the deadline")
	}
	return nil
}

func TestBotVerifiesEndToEnd(t *testing.T) {
	conf := &Config{ConfirmationWindow: "5s", PollInterval: "2ms"}
	verifier := protocol.NewStubVerifier()
	b, source, done, cancel := newTestBot(t, conf, verifier)
	defer cancel()

	tx := startWaiting(t, b, source, "@alice:example.org", "txn1")

	resp, err := http.Get("http://" + b.bridge.Addr() + "/verify/" + tx.ConfirmationCode())
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatal("Expect status 200 got", resp.StatusCode)
	}

	waitUntil(t, func() bool {
		return verifier.Confirmed("@alice:example.org", "txn1")
	})
	waitUntil(t, func() bool { return b.registry.Len() == 0 })

	cancel()
	if err := awaitRun(t, done); err != nil {
		t.Fatal("Expect a clean shutdown got", err)
	}
}

func TestBotRecordsOutcome(t *testing.T) {
	journalPath := path.Join(t.TempDir(), "journal")
	conf := &Config{
		ConfirmationWindow: "5s",
		PollInterval:       "2ms",
		JournalPath:        journalPath,
	}
	verifier := protocol.NewStubVerifier()
	b, source, done, cancel := newTestBot(t, conf, verifier)
	defer cancel()

	tx := startWaiting(t, b, source, "@bob:example.org", "txn2")
	if resp, err := http.Get("http://" + b.bridge.Addr() + "/verify/" + tx.ConfirmationCode()); err != nil {
		t.Fatal(err)
	} else {
		resp.Body.Close()
	}
	waitUntil(t, func() bool { return b.registry.Len() == 0 })

	cancel()
	if err := awaitRun(t, done); err != nil {
		t.Fatal(err)
	}

	jnl, err := journal.Open(journalPath)
	if err != nil {
		t.Fatal(err)
	}
	defer jnl.Close()
	count, err := jnl.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatal("Expect 1 journaled outcome got", count)
	}
}

func TestBotDropsMalformedEnvelopes(t *testing.T) {
	conf := &Config{ConfirmationWindow: "5s", PollInterval: "2ms"}
	verifier := protocol.NewStubVerifier()
	b, source, done, cancel := newTestBot(t, conf, verifier)
	defer cancel()

	source.ch <- RawEvent{Transport: protocol.TransportDevice, Payload: []byte(`{"type":"garbage"}`)}
	source.ch <- deviceLine("m.key.verification.request", "@carol:example.org", "txn3")

	waitUntil(t, func() bool { return verifier.RequestCount() == 1 })
	if b.registry.Len() != 1 {
		t.Fatal("Expect 1 live transaction got", b.registry.Len())
	}

	cancel()
	if err := awaitRun(t, done); err != nil {
		t.Fatal(err)
	}
}

func TestBotStopsWhenSourceCloses(t *testing.T) {
	conf := &Config{ConfirmationWindow: "5s", PollInterval: "2ms"}
	_, source, done, cancel := newTestBot(t, conf, protocol.NewStubVerifier())
	defer cancel()

	close(source.ch)
	if err := awaitRun(t, done); !errors.Is(err, ErrSourceClosed) {
		t.Fatal("Expect ErrSourceClosed got", err)
	}
}
