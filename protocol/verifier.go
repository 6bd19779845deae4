// Defines the capability surface of the external encrypted-messaging
// client, and the logging hooks the protocol core depends on.

package protocol

import (
	"context"
	"time"
)

// A Device describes one of a peer's known devices as reported by the
// messaging client's crypto layer.
type Device struct {
	ID          string
	DisplayName string
	Verified    bool
}

// A Verifier is the slice of the external messaging/crypto client the
// orchestrator needs: accepting the handshake steps, deriving the
// human-comparable SAS rendering, finalizing trust, and querying a
// peer's device directory. Every call may block on the network and
// returns a transport-level error on failure.
type Verifier interface {
	// AcceptRequest accepts a peer's verification request.
	AcceptRequest(ctx context.Context, peer, transactionID string) error
	// AcceptStart accepts the start of the SAS handshake, committing
	// to the key exchange.
	AcceptStart(ctx context.Context, peer, transactionID string) error
	// SASCode derives the human-comparable code (emoji or digits)
	// from the exchanged key material.
	SASCode(ctx context.Context, peer, transactionID string) (string, error)
	// Confirm tells the crypto layer the operator compared the SAS
	// and it matched, finalizing trust in the peer device.
	Confirm(ctx context.Context, peer, transactionID string) error
	// Device returns the peer device under verification in the given
	// transaction.
	Device(ctx context.Context, peer, transactionID string) (Device, error)
	// Devices returns the peer's full device directory.
	Devices(ctx context.Context, peer string) ([]Device, error)
}

// A Confirmer delivers operator-submitted confirmation codes to
// waiting transactions. Subscribe returns a receive channel carrying
// every code submitted after the call, and a cancel function releasing
// the subscription; cancel closes the channel and is safe to call more
// than once.
type Confirmer interface {
	Subscribe() (codes <-chan string, cancel func())
}

// An Outcome records the terminal result of one verification
// transaction.
type Outcome struct {
	Peer          string
	TransactionID string
	DeviceID      string `json:",omitempty"`
	State         string
	FinishedAt    time.Time
}

// An OutcomeRecorder persists terminal transaction outcomes for
// operator tooling. Recording failures are logged and contained; they
// never affect the transaction itself.
type OutcomeRecorder interface {
	Record(o *Outcome) error
}

// A Logger is the minimal structured-logging surface the protocol core
// writes to. application.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}
