package mqttnode

import "time"

// EventKind identifies an outbound client notification.
type EventKind byte

const (
	EventConnecting EventKind = iota
	EventConnectingFailed
	EventConnected
	EventDisconnected
	EventSubscribed
	EventUnsubscribed
	EventMessage
	EventPing
	EventError
)

// String returns a human-readable event kind name.
func (k EventKind) String() string {
	switch k {
	case EventConnecting:
		return "connecting"
	case EventConnectingFailed:
		return "connecting_failed"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventSubscribed:
		return "subscribed"
	case EventUnsubscribed:
		return "unsubscribed"
	case EventMessage:
		return "message"
	case EventPing:
		return "ping"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a notification emitted by the client toward its caller. Only the
// fields relevant to the kind are populated: Topic and Qos for subscribed,
// Topic and Payload for message, Latency for ping, Reason for error.
type Event struct {
	Kind    EventKind
	Topic   string
	Qos     byte
	Payload []byte
	Latency time.Duration
	Reason  string
}

// EventHandler receives client events. It is invoked synchronously on the
// poll path, so handlers must not call back into the client.
type EventHandler func(Event)
