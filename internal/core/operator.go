package core

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/scentcraft/printflow/internal/db"
)

// OperatorActions is the single entry point for human-triggered
// transitions. Every action validates the edge first, then persists status,
// timestamps and notes in one transaction; a rejected action leaves the
// stored job untouched.
type OperatorActions struct {
	db     *sql.DB
	queue  *QueueManager
	events EventSink
}

func NewOperatorActions(database *sql.DB, queue *QueueManager, events EventSink) *OperatorActions {
	return &OperatorActions{
		db:     database,
		queue:  queue,
		events: events,
	}
}

// JigLoaded confirms the operator loaded the jig per the slot map.
func (h *OperatorActions) JigLoaded(ctx context.Context, jobID int64) (*db.Job, error) {
	return h.applyTransition(ctx, jobID, StatusAwaitingOperator, nil)
}

// Print triggers the physical print. Delegates to the queue manager so the
// busy check and the status write share one transaction.
func (h *OperatorActions) Print(ctx context.Context, jobID int64) (*db.Job, error) {
	return h.queue.BeginPrint(ctx, jobID)
}

// Complete marks the print successful. Optional notes are appended to the
// operator log.
func (h *OperatorActions) Complete(ctx context.Context, jobID int64, notes string) (*db.Job, error) {
	job, err := h.applyTransition(ctx, jobID, StatusPrinted, func(tx *sql.Tx, _ *db.Job, now time.Time) error {
		if _, err := tx.ExecContext(ctx,
			"UPDATE jobs SET printed_at = ? WHERE id = ?", now, jobID); err != nil {
			return fmt.Errorf("failed to set printed_at: %w", err)
		}
		if notes != "" {
			return appendOperatorNotes(ctx, tx, jobID, notes)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if h.events != nil {
		h.events.JobPrinted(job)
	}
	return job, nil
}

// Fail marks the job failed. The reason is required and recorded in the
// operator notes; the job stays available as a reprint source.
func (h *OperatorActions) Fail(ctx context.Context, jobID int64, reason string) (*db.Job, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}

	job, err := h.applyTransition(ctx, jobID, StatusFailed, func(tx *sql.Tx, _ *db.Job, now time.Time) error {
		return appendOperatorNotes(ctx, tx, jobID, "Failed: "+reason)
	})
	if err != nil {
		return nil, err
	}
	if h.events != nil {
		h.events.JobFailed(job, reason)
	}
	return job, nil
}

// ReturnToQueue puts an awaiting_operator job back at queued_local. The
// local queue position is deliberately left alone so the job resumes its
// prior spot in the operator's list.
func (h *OperatorActions) ReturnToQueue(ctx context.Context, jobID int64) (*db.Job, error) {
	return h.applyTransition(ctx, jobID, StatusQueuedLocal, nil)
}

// TransitionExtra runs inside the transition transaction, after the status
// write succeeded, for extra column updates that must commit atomically with
// the status change.
type TransitionExtra func(tx *sql.Tx, job *db.Job, now time.Time) error

func (h *OperatorActions) applyTransition(ctx context.Context, jobID int64, to JobStatus, extra TransitionExtra) (*db.Job, error) {
	return Transition(ctx, h.db, jobID, to, ActorOperator, extra)
}

// Transition validates the requested edge for the actor and commits the
// status write plus any extra column updates atomically. The job is read
// inside the transaction, so the validated status is the one the guarded
// UPDATE replaces; the single-connection pool means any re-read on the
// conflict path must also run on this transaction.
func Transition(ctx context.Context, database *sql.DB, jobID int64, to JobStatus, actor Actor, extra TransitionExtra) (*db.Job, error) {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	job, err := loadJob(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}

	from := JobStatus(job.Status)
	if err := ValidateTransition(from, to, actor); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, db.UpdateJobStatus, string(to), now, jobID, string(from))
	if err != nil {
		return nil, fmt.Errorf("failed to update job status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		fresh, ferr := loadJob(ctx, tx, jobID)
		if ferr != nil {
			return nil, ferr
		}
		return nil, &TransitionError{From: JobStatus(fresh.Status), To: to, Actor: actor}
	}

	if extra != nil {
		if err := extra(tx, job, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}

	return loadJob(ctx, database, jobID)
}

// appendOperatorNotes adds a line to the job's operator log. The current
// notes are re-read on the transaction so a line written since the caller
// loaded the job is not clobbered.
func appendOperatorNotes(ctx context.Context, tx *sql.Tx, jobID int64, line string) error {
	var existing string
	if err := tx.QueryRowContext(ctx,
		"SELECT operator_notes FROM jobs WHERE id = ?", jobID).Scan(&existing); err != nil {
		return fmt.Errorf("failed to read operator notes: %w", err)
	}

	notes := line
	if existing != "" {
		notes = existing + "\n" + line
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE jobs SET operator_notes = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		notes, jobID); err != nil {
		return fmt.Errorf("failed to append operator notes: %w", err)
	}
	return nil
}

// rowQuerier lets job loads run on the pool or on an open transaction.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadJob(ctx context.Context, q rowQuerier, jobID int64) (*db.Job, error) {
	row := q.QueryRowContext(ctx, db.GetJobByID, jobID)
	job, err := db.ScanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}
