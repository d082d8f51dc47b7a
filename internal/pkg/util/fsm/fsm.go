package fsm

import (
	"errors"

	"github.com/looplab/fsm"
)

// IsRealError reports whether err is a failure rather than the normal
// outcome of firing an event that leaves the state unchanged. NoTransition
// and Canceled errors only count when a callback attached a cause.
func IsRealError(err error) bool {
	if err == nil {
		return false
	}

	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return noTransition.Err != nil
	}
	var canceled fsm.CanceledError
	if errors.As(err, &canceled) {
		return canceled.Err != nil
	}

	return true
}
