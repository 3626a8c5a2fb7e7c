// Package call drives one peer-to-peer call: the lifecycle state machine,
// the ordering of remote signaling against local readiness, and the media
// pipeline behind it.
package call

// Status is the call lifecycle state.
type Status int32

const (
	StatusIdle Status = iota
	StatusIncoming
	StatusOutgoing
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusIncoming:
		return "incoming"
	case StatusOutgoing:
		return "outgoing"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// negotiating reports whether a peer connection exists in this state.
func (s Status) negotiating() bool {
	return s == StatusConnecting || s == StatusConnected
}
