package provision

// State is a step of the startup sequence.
type State int

const (
	StateCheckStorage State = iota
	StateClientReady
	StateAwaitingCredentials
	StatePersist
	StateHandoff
)

func (s State) String() string {
	switch s {
	case StateCheckStorage:
		return "check_storage"
	case StateClientReady:
		return "client_ready"
	case StateAwaitingCredentials:
		return "awaiting_credentials"
	case StatePersist:
		return "persist"
	case StateHandoff:
		return "handoff"
	default:
		return "unknown"
	}
}
