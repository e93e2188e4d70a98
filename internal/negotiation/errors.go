package negotiation

import "fmt"

// MediaAccessError records why local capture could not be started. It is not
// fatal: the session continues receive-only.
type MediaAccessError struct {
	Err error
}

func (e *MediaAccessError) Error() string {
	return fmt.Sprintf("local media unavailable: %v", e.Err)
}

func (e *MediaAccessError) Unwrap() error { return e.Err }

// NegotiationError wraps a failure of the offer/answer exchange. Op names the
// step that failed, e.g. "set remote offer".
type NegotiationError struct {
	Op  string
	Err error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiation failed (%s): %v", e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }
