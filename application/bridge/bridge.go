// Package bridge implements the confirmation bridge: a loopback HTTP
// endpoint through which a remote operator, reached over local
// port-forwarding, approves a displayed SAS code for a verification
// transaction running on a machine they have no console on.
//
// Every submitted code is broadcast to all waiting transactions; each
// transaction filters the stream for its own code, so a correct
// submission can never resolve the wrong transaction.
package bridge

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"

	"github.com/sasbridge/sasbridge-go/application"
	"github.com/sasbridge/sasbridge-go/protocol"
)

// subscriptionBuffer bounds how many submissions a slow waiter can
// fall behind before fan-out starts skipping it.
const subscriptionBuffer = 64

// A Bridge owns the loopback listener and the broadcast channel. The
// listening port is chosen by the operating system once at
// construction and stays fixed for the bridge's lifetime; the endpoint
// is never reachable beyond the local host.
type Bridge struct {
	logger *application.Logger
	ln     net.Listener
	srv    *http.Server

	mu     sync.Mutex
	subs   map[chan string]struct{}
	closed bool
}

var _ protocol.Confirmer = (*Bridge)(nil)

// NewBridge binds an ephemeral loopback port and constructs the bridge
// around it. Serve() must be called for submissions to be accepted
// over HTTP.
func NewBridge(logger *application.Logger) (*Bridge, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	b := &Bridge{
		logger: logger,
		ln:     ln,
		subs:   make(map[chan string]struct{}),
	}

	router := mux.NewRouter()
	router.HandleFunc("/verify/{code}", b.handleVerify).Methods("GET")
	b.srv = &http.Server{Handler: router}
	return b, nil
}

// Addr returns the bridge's loopback address as host:port.
func (b *Bridge) Addr() string {
	return b.ln.Addr().String()
}

// Port returns the port the bridge listens on.
func (b *Bridge) Port() int {
	return b.ln.Addr().(*net.TCPAddr).Port
}

// Serve accepts submissions until Shutdown is called. It always
// returns a non-nil error; after Shutdown the error is
// http.ErrServerClosed.
func (b *Bridge) Serve() error {
	b.logger.Info("confirmation bridge listening", "address", b.Addr())
	return b.srv.Serve(b.ln)
}

// Shutdown stops the listener and closes every live subscription.
// Submissions after Shutdown fail with ErrBridgeClosed.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub)
	}
	b.mu.Unlock()
	return b.srv.Shutdown(ctx)
}

// Subscribe implements protocol.Confirmer. The returned cancel
// function closes the subscription channel; it is safe to call more
// than once and after Shutdown.
func (b *Bridge) Subscribe() (<-chan string, func()) {
	sub := make(chan string, subscriptionBuffer)
	b.mu.Lock()
	if b.closed {
		close(sub)
		b.mu.Unlock()
		return sub, func() {}
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[sub]; ok {
			delete(b.subs, sub)
			close(sub)
		}
	}
	return sub, cancel
}

// Submit broadcasts a confirmation code to every waiting transaction.
// A subscriber whose buffer is full is skipped rather than blocking
// the submission. Submit fails only after the bridge shut down.
func (b *Bridge) Submit(code string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return protocol.ErrBridgeClosed.Error()
	}
	for sub := range b.subs {
		select {
		case sub <- code:
		default:
		}
	}
	return nil
}

func (b *Bridge) handleVerify(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	b.logger.Debug("confirmation code submitted", "code", code)
	if err := b.Submit(code); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Instructions renders the command an operator runs to submit the
// given code through local port-forwarding.
func (b *Bridge) Instructions(code string) string {
	return "wget -O - http://127.0.0.1:" + strconv.Itoa(b.Port()) + "/verify/" + code
}
