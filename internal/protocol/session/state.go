package session

// State is the lifecycle position of one session.
type State uint8

const (
	StateUnconnected State = iota
	StateHandshaking
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateHandshaking:
		return "handshaking"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
