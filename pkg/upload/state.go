package upload

// State of one upload session.
type State int

const (
    StateNegotiating State = iota
    StateAccepted
    StateTransferring
    StateCompleted
    StateCancelled
    StateFailed
)

func (s State) String() string {
    switch s {
    case StateNegotiating:
        return "negotiating"
    case StateAccepted:
        return "accepted"
    case StateTransferring:
        return "transferring"
    case StateCompleted:
        return "completed"
    case StateCancelled:
        return "cancelled"
    case StateFailed:
        return "failed"
    default:
        return "unknown"
    }
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
    return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// accepting reports whether data chunks may be appended.
func (s State) accepting() bool { return s == StateAccepted || s == StateTransferring }
