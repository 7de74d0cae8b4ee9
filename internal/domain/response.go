package domain

// ResponseState is the outcome of one peripheral transaction.
type ResponseState int

const (
	ResponsePending ResponseState = iota
	ResponseAcknowledged
	ResponseDenied
	ResponseError
	ResponseTimedOut
)

// String returns a human-readable representation of the response state.
func (s ResponseState) String() string {
	switch s {
	case ResponsePending:
		return "Pending"
	case ResponseAcknowledged:
		return "Acknowledged"
	case ResponseDenied:
		return "Denied"
	case ResponseError:
		return "Error"
	case ResponseTimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}

// Err maps a resolved response to the error a caller should see.
// Acknowledged maps to nil.
func (s ResponseState) Err() error {
	switch s {
	case ResponseAcknowledged:
		return nil
	case ResponseDenied:
		return ErrCommandDenied
	case ResponseTimedOut:
		return ErrCommandTimeout
	case ResponsePending:
		return ErrLinkBusy
	default:
		return ErrLinkFault
	}
}
