package chat

// State is the connection state of a Session.
type State int32

const (
	StateDisconnected State = iota
	StateConnected
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateStreaming:
		return "streaming"
	default:
		return "disconnected"
	}
}
