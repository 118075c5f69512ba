package core

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"
)

func newOperatorActions(t *testing.T) (*OperatorActions, *sql.DB) {
	t.Helper()
	database := setupCoreFixtures(t)
	queue := NewQueueManager(database)
	return NewOperatorActions(database, queue, nil), database
}

func TestOperatorHappyPath(t *testing.T) {
	database := setupCoreFixtures(t)
	queue := NewQueueManager(database)
	actions := NewOperatorActions(database, queue, nil)
	ctx := context.Background()

	jobID := createTestJob(t, database, jobOpts{status: StatusQueuedLocal, localPos: intPtr(1)})

	job, err := actions.JigLoaded(ctx, jobID)
	if err != nil {
		t.Fatalf("jig-loaded failed: %v", err)
	}
	if JobStatus(job.Status) != StatusAwaitingOperator {
		t.Fatalf("status = %s, want awaiting_operator", job.Status)
	}

	job, err = actions.Print(ctx, jobID)
	if err != nil {
		t.Fatalf("print failed: %v", err)
	}
	if JobStatus(job.Status) != StatusSentToPrinter {
		t.Fatalf("status = %s, want sent_to_printer", job.Status)
	}

	job, err = actions.Complete(ctx, jobID, "clean print")
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if JobStatus(job.Status) != StatusPrinted {
		t.Fatalf("status = %s, want printed", job.Status)
	}
	if job.PrintedAt == nil {
		t.Error("printed_at not set")
	}
	if !strings.Contains(job.OperatorNotes, "clean print") {
		t.Errorf("operator notes missing completion note: %q", job.OperatorNotes)
	}
}

func TestCompleteRequiresSentToPrinter(t *testing.T) {
	actions, database := newOperatorActions(t)

	jobID := createTestJob(t, database, jobOpts{status: StatusAwaitingOperator, localPos: intPtr(1)})

	_, err := actions.Complete(context.Background(), jobID, "")
	if _, ok := AsTransitionError(err); !ok {
		t.Fatalf("error = %v, want TransitionError", err)
	}
}

func TestFailRequiresReason(t *testing.T) {
	actions, database := newOperatorActions(t)

	jobID := createTestJob(t, database, jobOpts{status: StatusSentToPrinter, localPos: intPtr(1)})

	for _, reason := range []string{"", "   "} {
		if _, err := actions.Fail(context.Background(), jobID, reason); !errors.Is(err, ErrReasonRequired) {
			t.Errorf("error = %v, want ErrReasonRequired", err)
		}
	}

	job := getTestJob(t, jobID)
	if JobStatus(job.Status) != StatusSentToPrinter {
		t.Errorf("status changed despite missing reason: %s", job.Status)
	}
}

func TestFailRecordsReason(t *testing.T) {
	actions, database := newOperatorActions(t)

	jobID := createTestJob(t, database, jobOpts{status: StatusSentToPrinter, localPos: intPtr(1)})

	job, err := actions.Fail(context.Background(), jobID, "head clogged mid-run")
	if err != nil {
		t.Fatalf("fail failed: %v", err)
	}
	if JobStatus(job.Status) != StatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
	if !strings.Contains(job.OperatorNotes, "Failed: head clogged mid-run") {
		t.Errorf("operator notes missing reason: %q", job.OperatorNotes)
	}
	if job.PrintedAt != nil {
		t.Error("failed job must not carry printed_at")
	}
}

// The abort rule lets the operator fail a job anywhere before terminal.
func TestFailFromEarlyStatuses(t *testing.T) {
	actions, database := newOperatorActions(t)

	for _, status := range []JobStatus{StatusDraft, StatusReadyForPrint, StatusQueuedLocal} {
		jobID := createTestJob(t, database, jobOpts{status: status})
		job, err := actions.Fail(context.Background(), jobID, "cancelled")
		if err != nil {
			t.Fatalf("fail from %s: %v", status, err)
		}
		if JobStatus(job.Status) != StatusFailed {
			t.Errorf("fail from %s: status = %s", status, job.Status)
		}
	}
}

func TestFailTerminalRejected(t *testing.T) {
	actions, database := newOperatorActions(t)

	for _, status := range []JobStatus{StatusPrinted, StatusFailed} {
		jobID := createTestJob(t, database, jobOpts{status: status})
		if _, err := actions.Fail(context.Background(), jobID, "too late"); err == nil {
			t.Errorf("expected fail from %s to be rejected", status)
		}
	}
}

func TestConcurrentCompleteAndFailOneWins(t *testing.T) {
	actions, database := newOperatorActions(t)
	ctx := context.Background()

	jobID := createTestJob(t, database, jobOpts{status: StatusSentToPrinter, localPos: intPtr(1)})

	results := make(chan error, 2)
	go func() {
		_, err := actions.Complete(ctx, jobID, "")
		results <- err
	}()
	go func() {
		_, err := actions.Fail(ctx, jobID, "film tore")
		results <- err
	}()

	var won, lost int
	for i := 0; i < 2; i++ {
		select {
		case err := <-results:
			switch {
			case err == nil:
				won++
			default:
				if _, ok := AsTransitionError(err); !ok {
					t.Fatalf("unexpected error: %v", err)
				}
				lost++
			}
		case <-time.After(5 * time.Second):
			t.Fatal("operator action did not return")
		}
	}
	if won != 1 || lost != 1 {
		t.Errorf("winners = %d, losers = %d, want exactly one of each", won, lost)
	}

	job := getTestJob(t, jobID)
	if s := JobStatus(job.Status); s != StatusPrinted && s != StatusFailed {
		t.Errorf("status = %s, want a terminal status", s)
	}
}

func TestFailKeepsEarlierNotes(t *testing.T) {
	database := setupCoreFixtures(t)
	queue := NewQueueManager(database)
	bridge := NewAgentSyncBridge(database, queue, nil, 0)
	actions := NewOperatorActions(database, queue, nil)
	ctx := context.Background()

	jobID := createTestJob(t, database, jobOpts{status: StatusSentToPrinter, localPos: intPtr(1)})

	if err := bridge.ConfirmSent(ctx, "printer-1", jobID); err != nil {
		t.Fatalf("confirm sent failed: %v", err)
	}

	job, err := actions.Fail(ctx, jobID, "smeared varnish")
	if err != nil {
		t.Fatalf("fail failed: %v", err)
	}
	if !strings.Contains(job.OperatorNotes, "Agent confirmed file sent") {
		t.Errorf("confirmation note lost: %q", job.OperatorNotes)
	}
	if !strings.Contains(job.OperatorNotes, "Failed: smeared varnish") {
		t.Errorf("failure note missing: %q", job.OperatorNotes)
	}
}

func TestReturnToQueueKeepsPosition(t *testing.T) {
	actions, database := newOperatorActions(t)

	jobID := createTestJob(t, database, jobOpts{status: StatusAwaitingOperator, localPos: intPtr(4)})

	job, err := actions.ReturnToQueue(context.Background(), jobID)
	if err != nil {
		t.Fatalf("return-to-queue failed: %v", err)
	}
	if JobStatus(job.Status) != StatusQueuedLocal {
		t.Fatalf("status = %s, want queued_local", job.Status)
	}
	if job.LocalQueuePosition == nil || *job.LocalQueuePosition != 4 {
		t.Errorf("position = %v, want 4", job.LocalQueuePosition)
	}
}

func TestJigLoadedRejectsWrongStatus(t *testing.T) {
	actions, database := newOperatorActions(t)

	jobID := createTestJob(t, database, jobOpts{status: StatusReadyForPrint})

	_, err := actions.JigLoaded(context.Background(), jobID)
	terr, ok := AsTransitionError(err)
	if !ok {
		t.Fatalf("error = %v, want TransitionError", err)
	}
	if terr.From != StatusReadyForPrint {
		t.Errorf("error from = %s, want ready_for_print", terr.From)
	}
}

func TestOperatorActionsUnknownJob(t *testing.T) {
	actions, _ := newOperatorActions(t)

	if _, err := actions.JigLoaded(context.Background(), 12345); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("error = %v, want ErrJobNotFound", err)
	}
}
