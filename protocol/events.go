// Defines the internal event enumeration shared by the two
// verification transports.

package protocol

// A Transport identifies the wire channel an event arrived on.
type Transport int

const (
	// TransportDevice is the direct device-to-device channel.
	TransportDevice Transport = iota
	// TransportTimeline is the in-conversation channel, visible in a
	// shared message timeline.
	TransportTimeline
)

func (tr Transport) String() string {
	switch tr {
	case TransportDevice:
		return "device"
	case TransportTimeline:
		return "timeline"
	}
	return "unknown"
}

// The kinds of verification events the orchestrator consumes,
// in protocol order.
const (
	EventRequested = iota
	EventStarted
	EventKeyExchanged
	EventDone
	EventCancelled
)

var eventKindNames = map[int]string{
	EventRequested:    "requested",
	EventStarted:      "started",
	EventKeyExchanged: "key-exchanged",
	EventDone:         "done",
	EventCancelled:    "cancelled",
}

// An Event is the normalized form of a verification protocol event.
// Both wire families produce the same Event shape; the transport is
// retained for logging only.
type Event struct {
	Kind          int
	Peer          string
	TransactionID string
	Transport     Transport
}

// KindString returns a human-readable name for the event's kind.
func (ev *Event) KindString() string {
	if name, ok := eventKindNames[ev.Kind]; ok {
		return name
	}
	return "unknown"
}
