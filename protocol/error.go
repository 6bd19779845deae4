// Defines constants representing the outcomes of handling
// a verification protocol event or a bridge submission.

package protocol

import "errors"

// An ErrorCode implies a type of error
// that occurred while handling a verification event
// or a confirmation submission.
type ErrorCode int

const (
	// ReqSuccess indicates that the event or submission
	// was handled without error.
	ReqSuccess ErrorCode = iota + 10
	// EventIgnored indicates that the event did not match the
	// transaction's current state and was dropped without effect.
	EventIgnored
	// ErrMalformedEnvelope indicates that a wire envelope could not
	// be normalized into an internal event.
	ErrMalformedEnvelope
	// ErrUnknownTransaction indicates that an event referred to a
	// transaction the registry does not know about.
	ErrUnknownTransaction
	// ErrTransportFailure indicates that an accept or confirm call
	// into the messaging client failed.
	ErrTransportFailure
	// ErrBridgeClosed indicates that a confirmation code was
	// submitted after the bridge shut down.
	ErrBridgeClosed
)

var errorMessages = map[ErrorCode]error{
	ErrMalformedEnvelope:  errors.New("[verification] Malformed event envelope"),
	ErrUnknownTransaction: errors.New("[verification] Unknown verification transaction"),
	ErrTransportFailure:   errors.New("[verification] Messaging client call failed"),
	ErrBridgeClosed:       errors.New("[verification] Confirmation bridge is closed"),
}

// Error returns the error corresponding to the given ErrorCode,
// and nil for the non-error codes.
func (e ErrorCode) Error() error {
	return errorMessages[e]
}
