package bot

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net"
	"os"
	"sync"

	"github.com/sasbridge/sasbridge-go/application"
	"github.com/sasbridge/sasbridge-go/protocol"
)

// A socketEnvelope is one line on the event socket: the transport name
// and the wire envelope as sent by the messaging client.
type socketEnvelope struct {
	Transport string          `json:"transport"`
	Payload   json.RawMessage `json:"payload"`
}

// A SocketSource feeds wire envelopes from a named UNIX socket, one
// JSON object per line. The external messaging client connects and
// forwards every verification event it observes on either transport;
// the socket is how the two processes communicate on one host.
type SocketSource struct {
	logger *application.Logger
	ln     net.Listener
	events chan RawEvent

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	stop     chan struct{}
	stopOnce sync.Once
	waitStop sync.WaitGroup
}

var _ EventSource = (*SocketSource)(nil)

// ListenSocket binds the named UNIX socket at path, replacing a stale
// socket file left behind by an earlier run.
func ListenSocket(path string, logger *application.Logger) (*SocketSource, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}

	s := &SocketSource{
		logger: logger,
		ln:     ln,
		events: make(chan RawEvent, 64),
		conns:  make(map[net.Conn]struct{}),
		stop:   make(chan struct{}),
	}
	s.waitStop.Add(1)
	go s.acceptConnections()
	logger.Info("listening for verification events", "socket", path)
	return s, nil
}

// Events implements EventSource.
func (s *SocketSource) Events() <-chan RawEvent {
	return s.events
}

// Stop closes the listener and every accepted connection, waits for
// readers to drain, and closes the event channel. A reader blocked on
// an idle connection is unblocked by the close. Safe to call more than
// once.
func (s *SocketSource) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.ln.Close()
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		s.waitStop.Wait()
		close(s.events)
	})
}

func (s *SocketSource) acceptConnections() {
	defer s.waitStop.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.stop:
			default:
				s.logger.Error("event socket accept failed", "error", err)
			}
			return
		}
		s.mu.Lock()
		select {
		case <-s.stop:
			// raced with Stop; the conns map was already drained
			s.mu.Unlock()
			conn.Close()
			return
		default:
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.waitStop.Add(1)
		go s.readEvents(conn)
	}
}

func (s *SocketSource) readEvents(conn net.Conn) {
	defer s.waitStop.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var env socketEnvelope
		if err := json.Unmarshal(line, &env); err != nil {
			s.logger.Warn("dropping undecodable event line", "error", err)
			continue
		}

		var transport protocol.Transport
		switch env.Transport {
		case "device":
			transport = protocol.TransportDevice
		case "timeline":
			transport = protocol.TransportTimeline
		default:
			s.logger.Warn("dropping event with unknown transport",
				"transport", env.Transport)
			continue
		}

		select {
		case s.events <- RawEvent{Transport: transport, Payload: env.Payload}:
		case <-s.stop:
			return
		}
	}
}
