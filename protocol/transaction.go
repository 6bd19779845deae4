// Defines a verification transaction and its state machine states.

package protocol

import (
	"sync"
	"time"
)

// A State is a verification transaction's position in the handshake.
// States only ever advance; an event that would move a transaction
// backwards is dropped.
type State int

const (
	// StatePendingAccept means a request was observed and the
	// orchestrator has not yet accepted it.
	StatePendingAccept State = iota
	// StateStarted means the request was accepted and the handshake
	// is underway.
	StateStarted
	// StateWaitingConfirmation means the SAS was derived and the
	// orchestrator is waiting for the operator to confirm the match
	// through the bridge.
	StateWaitingConfirmation
	// StateConfirmed means the operator confirmed the SAS and trust
	// finalization is in progress.
	StateConfirmed
	// StateDone is the successful terminal state.
	StateDone
	// StateCancelled is the terminal state for cancelled or failed
	// transactions.
	StateCancelled
	// StateTimedOut is the terminal state reached when the
	// confirmation window elapses without a matching submission.
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StatePendingAccept:
		return "pending-accept"
	case StateStarted:
		return "started"
	case StateWaitingConfirmation:
		return "waiting-confirmation"
	case StateConfirmed:
		return "confirmed"
	case StateDone:
		return "done"
	case StateCancelled:
		return "cancelled"
	case StateTimedOut:
		return "timed-out"
	}
	return "unknown"
}

// Terminal reports whether a transaction in this state has finished.
func (s State) Terminal() bool {
	return s == StateDone || s == StateCancelled || s == StateTimedOut
}

// A Transaction tracks one in-progress verification handshake with a
// peer device. Transactions are owned exclusively by the Registry;
// the orchestrator mutates them only while holding their lock.
type Transaction struct {
	Peer          string
	TransactionID string
	Transport     Transport

	mu sync.Mutex
	// guarded by mu
	state            State
	startAccepted    bool
	confirmationCode string
	startedAt        time.Time
	cancelSub        func()
}

// State returns the transaction's current state.
func (tx *Transaction) State() State {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state
}

// ConfirmationCode returns the code the operator must submit to move
// the transaction out of StateWaitingConfirmation. It is empty until
// the transaction enters that state, and immutable afterwards.
func (tx *Transaction) ConfirmationCode() string {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.confirmationCode
}

// StartedAt returns the time the confirmation window opened.
func (tx *Transaction) StartedAt() time.Time {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.startedAt
}

// closeSubscription releases the transaction's bridge subscription if
// one is open. Safe to call more than once.
func (tx *Transaction) closeSubscription() {
	tx.mu.Lock()
	cancel := tx.cancelSub
	tx.cancelSub = nil
	tx.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
