package detector

import (
	"errors"
	"fmt"
)

// InvalidParameterError reports a tuning value outside its allowed range.
type InvalidParameterError struct {
	Name  string
	Value int
	Min   int
	Max   int
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid %s %d: must be between %d and %d", e.Name, e.Value, e.Min, e.Max)
}

// InvalidStateTransitionError reports an operation that is not legal in the
// detector's current state.
type InvalidStateTransitionError struct {
	Op    string
	State State
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.State)
}

// IsInvalidParameter reports whether err wraps a parameter range violation.
func IsInvalidParameter(err error) bool {
	var pe *InvalidParameterError
	return errors.As(err, &pe)
}

// IsInvalidStateTransition reports whether err wraps an illegal state
// transition.
func IsInvalidStateTransition(err error) bool {
	var se *InvalidStateTransitionError
	return errors.As(err, &se)
}
