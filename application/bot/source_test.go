package bot

import (
	"net"
	"os"
	"path"
	"testing"
	"time"

	"github.com/sasbridge/sasbridge-go/application"
	"github.com/sasbridge/sasbridge-go/protocol"
)

func dialAndWrite(t *testing.T, socket string, lines ...string) {
	t.Helper()
	conn, err := net.Dial("unix", socket)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	for _, line := range lines {
		if _, err := conn.Write([]byte(line + "\n")); err != nil {
			t.Fatal(err)
		}
	}
}

func nextEvent(t *testing.T, events <-chan RawEvent) RawEvent {
	t.Helper()
	select {
	case raw, ok := <-events:
		if !ok {
			t.Fatal("Expect an event, channel closed")
		}
		return raw
	case <-time.After(2 * time.Second):
		t.Fatal("Expect an event before the deadline")
	}
	return RawEvent{}
}

func TestSocketSourceDeliversEnvelopes(t *testing.T) {
	socket := path.Join(t.TempDir(), "events.sock")
	source, err := ListenSocket(socket, application.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer source.Stop()

	dialAndWrite(t, socket,
		`{"transport":"device","payload":{"type":"m.key.verification.request","sender":"@alice:example.org","content":{"transaction_id":"txn1"}}}`,
		`{"transport":"timeline","payload":{"type":"m.room.message","sender":"@alice:example.org","event_id":"$req","content":{"msgtype":"m.key.verification.request"}}}`)

	first := nextEvent(t, source.Events())
	if first.Transport != protocol.TransportDevice {
		t.Fatal("Expect device transport got", first.Transport.String())
	}
	if ev, code := protocol.Normalize(first.Payload, first.Transport); code != protocol.ReqSuccess {
		t.Fatal("Expect payload to pass through intact")
	} else if ev.TransactionID != "txn1" {
		t.Fatal("Expect transaction txn1 got", ev.TransactionID)
	}

	second := nextEvent(t, source.Events())
	if second.Transport != protocol.TransportTimeline {
		t.Fatal("Expect timeline transport got", second.Transport.String())
	}
}

func TestSocketSourceDropsJunk(t *testing.T) {
	socket := path.Join(t.TempDir(), "events.sock")
	source, err := ListenSocket(socket, application.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer source.Stop()

	dialAndWrite(t, socket,
		`not json at all`,
		`{"transport":"pigeon","payload":{}}`,
		``,
		`{"transport":"device","payload":{"type":"m.key.verification.start","sender":"@bob:example.org","content":{"transaction_id":"txn2"}}}`)

	raw := nextEvent(t, source.Events())
	if raw.Transport != protocol.TransportDevice {
		t.Fatal("Expect the one well-formed envelope to come through")
	}

	select {
	case extra, ok := <-source.Events():
		if ok {
			t.Fatal("Expect junk lines to be dropped, got", string(extra.Payload))
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSocketSourceStopClosesChannel(t *testing.T) {
	socket := path.Join(t.TempDir(), "events.sock")
	source, err := ListenSocket(socket, application.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}

	source.Stop()
	source.Stop() // idempotent

	select {
	case _, ok := <-source.Events():
		if ok {
			t.Fatal("Expect no events after Stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expect the event channel to be closed after Stop")
	}
}

func TestStopUnblocksIdleConnections(t *testing.T) {
	socket := path.Join(t.TempDir(), "events.sock")
	source, err := ListenSocket(socket, application.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}

	// an idle client that never writes and never hangs up
	conn, err := net.Dial("unix", socket)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// give the accept loop a chance to hand the connection to a reader
	waitUntil(t, func() bool {
		source.mu.Lock()
		defer source.mu.Unlock()
		return len(source.conns) == 1
	})

	stopped := make(chan struct{})
	go func() {
		source.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Expect Stop to return with an idle connection open")
	}
}

func TestListenSocketReplacesStaleSocket(t *testing.T) {
	socket := path.Join(t.TempDir(), "events.sock")

	if err := os.WriteFile(socket, nil, 0600); err != nil {
		t.Fatal(err)
	}

	source, err := ListenSocket(socket, application.NewNopLogger())
	if err != nil {
		t.Fatal("Expect a stale socket file to be replaced, got", err)
	}
	source.Stop()
}
