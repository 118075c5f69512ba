package core

// JobStatus is the closed set of lifecycle states a job moves through.
//
//	draft → pending_review → ready_for_print → queued_local →
//	awaiting_operator → sent_to_printer → printed | failed
//
// printed and failed are terminal. A failed job is never reopened; it can
// only be superseded by a reprint job created from it.
type JobStatus string

const (
	StatusDraft            JobStatus = "draft"
	StatusPendingReview    JobStatus = "pending_review"
	StatusReadyForPrint    JobStatus = "ready_for_print"
	StatusQueuedLocal      JobStatus = "queued_local"
	StatusAwaitingOperator JobStatus = "awaiting_operator"
	StatusSentToPrinter    JobStatus = "sent_to_printer"
	StatusPrinted          JobStatus = "printed"
	StatusFailed           JobStatus = "failed"
)

var allStatuses = []JobStatus{
	StatusDraft, StatusPendingReview, StatusReadyForPrint, StatusQueuedLocal,
	StatusAwaitingOperator, StatusSentToPrinter, StatusPrinted, StatusFailed,
}

func AllStatuses() []JobStatus {
	out := make([]JobStatus, len(allStatuses))
	copy(out, allStatuses)
	return out
}

func (s JobStatus) Valid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s JobStatus) Terminal() bool {
	return s == StatusPrinted || s == StatusFailed
}

// Actor identifies who is requesting a transition. The transition table is
// keyed on (from, to, actor): the same edge can be legal for one actor and
// illegal for another.
type Actor string

const (
	ActorDesigner Actor = "designer"
	ActorReviewer Actor = "reviewer"
	ActorOperator Actor = "operator"
	ActorAgent    Actor = "agent"
	ActorSystem   Actor = "system"
)

type edge struct {
	from JobStatus
	to   JobStatus
}

// transitionTable lists every allowed edge and the actors permitted to
// trigger it. The operator/system abort edge (any non-terminal → failed)
// is handled separately in ValidateTransition.
var transitionTable = map[edge][]Actor{
	{StatusDraft, StatusPendingReview}:            {ActorDesigner},
	{StatusPendingReview, StatusReadyForPrint}:    {ActorReviewer, ActorDesigner},
	{StatusDraft, StatusReadyForPrint}:            {ActorDesigner},
	{StatusReadyForPrint, StatusQueuedLocal}:      {ActorAgent},
	{StatusQueuedLocal, StatusAwaitingOperator}:   {ActorOperator},
	{StatusAwaitingOperator, StatusSentToPrinter}: {ActorOperator},
	{StatusAwaitingOperator, StatusQueuedLocal}:   {ActorOperator},
	{StatusSentToPrinter, StatusPrinted}:          {ActorOperator},
	{StatusSentToPrinter, StatusFailed}:           {ActorOperator},
}

// ValidateTransition is the pure transition check: no lookups, no side
// effects. It returns nil when actor may move a job from → to, and a
// *TransitionError describing the rejected edge otherwise. Callers must not
// persist anything when an error is returned.
func ValidateTransition(from, to JobStatus, actor Actor) error {
	if !from.Valid() || !to.Valid() {
		return &TransitionError{From: from, To: to, Actor: actor}
	}

	if actors, ok := transitionTable[edge{from, to}]; ok {
		for _, a := range actors {
			if a == actor {
				return nil
			}
		}
	}

	// Abort: any non-terminal job may be failed by the operator or the
	// system, even if the edge is not listed above.
	if to == StatusFailed && !from.Terminal() && (actor == ActorOperator || actor == ActorSystem) {
		return nil
	}

	return &TransitionError{From: from, To: to, Actor: actor}
}

// CanTransition reports whether any actor may trigger the edge.
func CanTransition(from, to JobStatus) bool {
	if _, ok := transitionTable[edge{from, to}]; ok {
		return true
	}
	return to == StatusFailed && from.Valid() && !from.Terminal()
}
