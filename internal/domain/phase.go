package domain

// Phase is the tool-change phase of the port controller.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseUnloading
	PhaseSwitching
	PhaseFeeding
	PhaseFeedRetry
	PhaseAwaitingOperator
)

// String returns a human-readable representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseUnloading:
		return "Unloading"
	case PhaseSwitching:
		return "Switching"
	case PhaseFeeding:
		return "Feeding"
	case PhaseFeedRetry:
		return "FeedRetry"
	case PhaseAwaitingOperator:
		return "AwaitingOperator"
	default:
		return "Unknown"
	}
}

// CanTransition reports whether the state machine allows moving from p to next.
// Any phase may fall back to Idle when a switch is abandoned.
func (p Phase) CanTransition(next Phase) bool {
	if next == PhaseIdle {
		return true
	}
	switch p {
	case PhaseIdle:
		return next == PhaseUnloading || next == PhaseSwitching
	case PhaseUnloading:
		return next == PhaseSwitching || next == PhaseAwaitingOperator
	case PhaseSwitching:
		return next == PhaseFeeding
	case PhaseFeeding:
		return next == PhaseFeedRetry || next == PhaseAwaitingOperator
	case PhaseFeedRetry:
		return next == PhaseAwaitingOperator
	case PhaseAwaitingOperator:
		return next == PhaseUnloading || next == PhaseFeeding
	}
	return false
}
