package channel

// State is the channel's connection state.
type State int

const (
	// StateConnecting means a socket is being opened. It is the initial state.
	StateConnecting State = iota

	// StateConnected means the socket is open and the heartbeat is idle.
	StateConnected

	// StateAwaitingPong means a ping was sent and the pong timeout is running.
	StateAwaitingPong

	// StateBroken means the socket was torn down and a reconnect is pending.
	StateBroken

	// StateClosed is terminal.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAwaitingPong:
		return "awaiting_pong"
	case StateBroken:
		return "broken"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Status labels passed to the status callback.
const (
	LabelConnecting   = "Connecting"
	LabelConnected    = "Connected"
	LabelAwaitingPong = "Awaiting pong"
	LabelError        = "Error, reconnecting"
	LabelBroken       = "Broken, reconnecting"
	LabelDisconnected = "Disconnected, reconnecting"
	LabelMoved        = "Address changed, reconnecting"
	LabelClosed       = "Closed"
)

// Status is one observable state transition.
type Status struct {
	State State
	Label string
}

// Reconnecting reports whether the status announces a reconnect.
func (s Status) Reconnecting() bool {
	return s.State == StateBroken
}
