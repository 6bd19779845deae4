// Defines the two wire-level envelope families carrying verification
// events, and the normalizer that collapses them into the internal
// Event shape.

package protocol

import "encoding/json"

// The event type strings used on the wire by both envelope families.
const (
	wireRequest = "m.key.verification.request"
	wireStart   = "m.key.verification.start"
	wireKey     = "m.key.verification.key"
	wireDone    = "m.key.verification.done"
	wireCancel  = "m.key.verification.cancel"
	wireMessage = "m.room.message"
)

var wireEventKinds = map[string]int{
	wireRequest: EventRequested,
	wireStart:   EventStarted,
	wireKey:     EventKeyExchanged,
	wireDone:    EventDone,
	wireCancel:  EventCancelled,
}

// A deviceEnvelope is the direct device-to-device event family.
// It correlates events with an explicit transaction id.
type deviceEnvelope struct {
	Type    string `json:"type"`
	Sender  string `json:"sender"`
	Content struct {
		TransactionID string `json:"transaction_id"`
	} `json:"content"`
}

// A timelineEnvelope is the in-conversation event family. A request
// arrives as a room message of verification-request type and is
// correlated by its own event id; every later event refers back to the
// request through a relation reference.
type timelineEnvelope struct {
	Type    string `json:"type"`
	Sender  string `json:"sender"`
	EventID string `json:"event_id"`
	Content struct {
		MsgType   string `json:"msgtype"`
		RelatesTo struct {
			EventID string `json:"event_id"`
		} `json:"m.relates_to"`
	} `json:"content"`
}

// Normalize parses a raw wire envelope from the given transport and
// produces the corresponding internal event. Given equivalent payloads,
// both envelope families normalize to an identical Event.
// An envelope of an unknown kind, without a sender, or without its
// family's correlation field is reported as ErrMalformedEnvelope;
// the caller is expected to log and drop it.
func Normalize(raw []byte, transport Transport) (*Event, ErrorCode) {
	switch transport {
	case TransportDevice:
		return normalizeDevice(raw)
	case TransportTimeline:
		return normalizeTimeline(raw)
	}
	return nil, ErrMalformedEnvelope
}

func normalizeDevice(raw []byte) (*Event, ErrorCode) {
	var env deviceEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrMalformedEnvelope
	}
	kind, ok := wireEventKinds[env.Type]
	if !ok || env.Sender == "" || env.Content.TransactionID == "" {
		return nil, ErrMalformedEnvelope
	}
	return &Event{
		Kind:          kind,
		Peer:          env.Sender,
		TransactionID: env.Content.TransactionID,
		Transport:     TransportDevice,
	}, ReqSuccess
}

func normalizeTimeline(raw []byte) (*Event, ErrorCode) {
	var env timelineEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrMalformedEnvelope
	}
	if env.Sender == "" {
		return nil, ErrMalformedEnvelope
	}

	// A verification request in a timeline is a room message; the
	// request's own event id becomes the transaction id every later
	// event relates back to.
	if env.Type == wireMessage {
		if env.Content.MsgType != wireRequest || env.EventID == "" {
			return nil, ErrMalformedEnvelope
		}
		return &Event{
			Kind:          EventRequested,
			Peer:          env.Sender,
			TransactionID: env.EventID,
			Transport:     TransportTimeline,
		}, ReqSuccess
	}

	kind, ok := wireEventKinds[env.Type]
	if !ok || kind == EventRequested || env.Content.RelatesTo.EventID == "" {
		return nil, ErrMalformedEnvelope
	}
	return &Event{
		Kind:          kind,
		Peer:          env.Sender,
		TransactionID: env.Content.RelatesTo.EventID,
		Transport:     TransportTimeline,
	}, ReqSuccess
}
