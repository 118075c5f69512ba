package core

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrPrinterNotFound = errors.New("printer not found")
	ErrPrinterBusy     = errors.New("another job is already at the printer")
	ErrStaleQueue      = errors.New("queue changed since it was fetched")
	ErrAlreadyQueued   = errors.New("job already holds a local queue position")
	ErrSourceNotFailed = errors.New("reprint source job is not in failed status")
	ErrReasonRequired  = errors.New("a failure reason is required")
	ErrJobNotReady     = errors.New("job is not ready for print")
	ErrNotAtPrintHead  = errors.New("job is not in sent_to_printer status")
)

// TransitionError reports a rejected status transition. It carries the
// attempted edge and the job's current status so callers can show the
// operator which actions are actually available.
type TransitionError struct {
	From  JobStatus
	To    JobStatus
	Actor Actor
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s for actor %s", e.From, e.To, e.Actor)
}

// AsTransitionError unwraps err to a *TransitionError if there is one.
func AsTransitionError(err error) (*TransitionError, bool) {
	var te *TransitionError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
