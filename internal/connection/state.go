package connection

import "fmt"

// Phase identifies where the channel is in its connect lifecycle.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseOpen
	PhaseBackoff
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseOpen:
		return "open"
	case PhaseBackoff:
		return "backoff"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// State is the channel's current phase plus the context a caller needs
// to render it: the retry attempt during backoff and the error that put
// the channel there.
type State struct {
	Phase   Phase
	Attempt int
	Err     error
}

func (s State) String() string {
	switch s.Phase {
	case PhaseBackoff:
		return fmt.Sprintf("backoff (attempt %d)", s.Attempt)
	case PhaseFailed:
		if s.Err != nil {
			return fmt.Sprintf("failed: %v", s.Err)
		}
		return "failed"
	default:
		return s.Phase.String()
	}
}
