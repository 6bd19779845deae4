// Test utilities for exercising the verification protocol core without
// a real messaging client or confirmation bridge.

package protocol

import (
	"context"
	"sync"
)

// A StubVerifier implements the Verifier capability in memory. Every
// call succeeds unless the corresponding error field is set, and every
// accepted/confirmed transaction is recorded for inspection. It stands
// in for a messaging client integration in tests and local runs.
type StubVerifier struct {
	SAS       string
	Directory map[string][]Device

	AcceptRequestErr error
	AcceptStartErr   error
	SASErr           error
	ConfirmErr       error

	mu        sync.Mutex
	requests  []string
	starts    []string
	confirmed []string
}

var _ Verifier = (*StubVerifier)(nil)

// NewStubVerifier constructs a StubVerifier with a fixed emoji SAS and
// an empty device directory.
func NewStubVerifier() *StubVerifier {
	return &StubVerifier{
		SAS:       "🐶 🐱 🦁 🐴 🦄 🐷 🐘",
		Directory: make(map[string][]Device),
	}
}

func (v *StubVerifier) AcceptRequest(ctx context.Context, peer, transactionID string) error {
	if v.AcceptRequestErr != nil {
		return v.AcceptRequestErr
	}
	v.mu.Lock()
	v.requests = append(v.requests, registryKey(peer, transactionID))
	v.mu.Unlock()
	return nil
}

func (v *StubVerifier) AcceptStart(ctx context.Context, peer, transactionID string) error {
	if v.AcceptStartErr != nil {
		return v.AcceptStartErr
	}
	v.mu.Lock()
	v.starts = append(v.starts, registryKey(peer, transactionID))
	v.mu.Unlock()
	return nil
}

func (v *StubVerifier) SASCode(ctx context.Context, peer, transactionID string) (string, error) {
	if v.SASErr != nil {
		return "", v.SASErr
	}
	return v.SAS, nil
}

func (v *StubVerifier) Confirm(ctx context.Context, peer, transactionID string) error {
	if v.ConfirmErr != nil {
		return v.ConfirmErr
	}
	v.mu.Lock()
	v.confirmed = append(v.confirmed, registryKey(peer, transactionID))
	v.mu.Unlock()
	return nil
}

func (v *StubVerifier) Device(ctx context.Context, peer, transactionID string) (Device, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if devs := v.Directory[peer]; len(devs) > 0 {
		return devs[0], nil
	}
	return Device{ID: "DEVICE01", Verified: true}, nil
}

func (v *StubVerifier) Devices(ctx context.Context, peer string) ([]Device, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.Directory[peer], nil
}

// StartCount returns how many starts were accepted.
func (v *StubVerifier) StartCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.starts)
}

// RequestCount returns how many requests were accepted.
func (v *StubVerifier) RequestCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.requests)
}

// Confirmed reports whether trust was finalized for the given
// transaction.
func (v *StubVerifier) Confirmed(peer, transactionID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, key := range v.confirmed {
		if key == registryKey(peer, transactionID) {
			return true
		}
	}
	return false
}

// ConfirmCount returns how many transactions had trust finalized.
func (v *StubVerifier) ConfirmCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.confirmed)
}

// A CodeFeed is an in-memory Confirmer for tests; it fans submitted
// codes out to every live subscription the way the bridge does.
type CodeFeed struct {
	mu   sync.Mutex
	subs map[chan string]struct{}
}

var _ Confirmer = (*CodeFeed)(nil)

// NewCodeFeed constructs an empty CodeFeed.
func NewCodeFeed() *CodeFeed {
	return &CodeFeed{subs: make(map[chan string]struct{})}
}

// Subscribe implements Confirmer.
func (f *CodeFeed) Subscribe() (<-chan string, func()) {
	sub := make(chan string, 64)
	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.subs[sub]; ok {
			delete(f.subs, sub)
			close(sub)
		}
	}
	return sub, cancel
}

// Submit fans a code out to all subscriptions.
func (f *CodeFeed) Submit(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs {
		select {
		case sub <- code:
		default:
		}
	}
}

// A MemoryRecorder collects outcomes in memory.
type MemoryRecorder struct {
	mu       sync.Mutex
	outcomes []*Outcome
}

var _ OutcomeRecorder = (*MemoryRecorder)(nil)

// Record implements OutcomeRecorder.
func (m *MemoryRecorder) Record(o *Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, o)
	return nil
}

// Outcomes returns a copy of everything recorded so far.
func (m *MemoryRecorder) Outcomes() []*Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Outcome(nil), m.outcomes...)
}

// A NopLogger discards all output.
type NopLogger struct{}

var _ Logger = NopLogger{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
