package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scentcraft/printflow/internal/db"
)

// AgentSyncBridge is the server side of the agent contract. The agent only
// ever polls and reports; the cloud never pushes. Every report is keyed by
// job id and safe to repeat: a retried mark-downloaded after a crash is a
// no-op, not a double-apply.
type AgentSyncBridge struct {
	db         *sql.DB
	queue      *QueueManager
	events     EventSink
	staleAfter time.Duration
}

func NewAgentSyncBridge(database *sql.DB, queue *QueueManager, events EventSink, staleAfter time.Duration) *AgentSyncBridge {
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}
	return &AgentSyncBridge{
		db:         database,
		queue:      queue,
		events:     events,
		staleAfter: staleAfter,
	}
}

// FetchReady lists the printer's ready_for_print jobs, highest priority
// first then cloud queue order. Repeated fetches before a job advances
// return the same jobs.
func (b *AgentSyncBridge) FetchReady(ctx context.Context, printerID string) ([]*db.Job, error) {
	rows, err := b.db.QueryContext(ctx, db.GetReadyJobsForPrinter, printerID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ready jobs: %w", err)
	}
	defer rows.Close()

	return db.ScanJobs(rows)
}

// ReportDownloaded applies ready_for_print → queued_local and assigns the
// local queue position, both in one transaction. A repeat call for a job
// already at queued_local returns the job unchanged.
func (b *AgentSyncBridge) ReportDownloaded(ctx context.Context, printerID string, jobID int64) (*db.Job, error) {
	job, err := b.getPrinterJob(ctx, b.db, jobID, printerID)
	if err != nil {
		return nil, err
	}

	// Idempotent by job id: the agent retries reports on its own schedule.
	if JobStatus(job.Status) == StatusQueuedLocal {
		return job, nil
	}

	if err := ValidateTransition(JobStatus(job.Status), StatusQueuedLocal, ActorAgent); err != nil {
		return nil, err
	}

	unlock := b.queue.LockPrinter(printerID)
	defer unlock()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = ?, downloaded_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(StatusQueuedLocal), now, now, jobID, string(StatusReadyForPrint))
	if err != nil {
		return nil, fmt.Errorf("failed to update job status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		// Lost a race with another action on this job. The re-read stays on
		// this transaction: the pool has one connection and we hold it.
		fresh, ferr := b.getPrinterJob(ctx, tx, jobID, printerID)
		if ferr != nil {
			return nil, ferr
		}
		if JobStatus(fresh.Status) == StatusQueuedLocal {
			return fresh, nil
		}
		return nil, &TransitionError{From: JobStatus(fresh.Status), To: StatusQueuedLocal, Actor: ActorAgent}
	}

	if _, err := b.queue.enqueueTx(ctx, tx, jobID, printerID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit download report: %w", err)
	}

	fresh, err := b.getPrinterJob(ctx, b.db, jobID, printerID)
	if err != nil {
		return nil, err
	}
	if b.events != nil {
		b.events.JobDownloaded(fresh)
	}
	return fresh, nil
}

// Heartbeat records the agent check-in and returns the server time the
// agent should sync against. A printer coming back after going quiet fires
// one online event.
func (b *AgentSyncBridge) Heartbeat(ctx context.Context, printerID string) (time.Time, error) {
	now := time.Now().UTC()

	// The flip is guarded on is_online, mirroring MarkPrinterOffline, so
	// concurrent first beats fire the online event exactly once.
	res, err := b.db.ExecContext(ctx, db.MarkPrinterOnline, now, printerID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to record heartbeat: %w", err)
	}
	flipped, err := res.RowsAffected()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get affected rows: %w", err)
	}

	if flipped == 0 {
		res, err := b.db.ExecContext(ctx, db.TouchPrinterHeartbeat, now, printerID)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to record heartbeat: %w", err)
		}
		touched, err := res.RowsAffected()
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to get affected rows: %w", err)
		}
		if touched == 0 {
			return time.Time{}, ErrPrinterNotFound
		}
		return now, nil
	}

	if b.events != nil {
		b.events.PrinterStatusChanged(printerID, true)
	}
	return now, nil
}

// PrinterOnline derives the online flag from the last heartbeat. Nothing is
// stored: a printer that stops heartbeating goes offline by virtue of
// last_seen aging past the staleness window.
func (b *AgentSyncBridge) PrinterOnline(p *db.Printer, now time.Time) bool {
	if p.LastSeen == nil {
		return false
	}
	return now.Sub(*p.LastSeen) <= b.staleAfter
}

// PrintInfo describes where the agent must place a job's PDF for the print
// driver's hot folder to pick it up.
type PrintInfo struct {
	JobID         int64  `json:"job_id"`
	HotFolderPath string `json:"hot_folder_path"`
	Filename      string `json:"filename"`
}

// GetPrintInfo returns hot-folder placement for a job at the print head.
// Jobs in any other status get ErrNotAtPrintHead so the agent skips them.
func (b *AgentSyncBridge) GetPrintInfo(ctx context.Context, printerID string, jobID int64) (*PrintInfo, error) {
	job, err := b.getPrinterJob(ctx, b.db, jobID, printerID)
	if err != nil {
		return nil, err
	}
	if JobStatus(job.Status) != StatusSentToPrinter {
		return nil, ErrNotAtPrintHead
	}

	row := b.db.QueryRowContext(ctx,
		"SELECT hot_folder_path FROM printers WHERE id = ?", printerID)
	var hotFolder string
	if err := row.Scan(&hotFolder); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrPrinterNotFound
		}
		return nil, fmt.Errorf("failed to read hot folder: %w", err)
	}

	name := job.EventName
	if name == "" {
		name = "print"
	}
	return &PrintInfo{
		JobID:         job.ID,
		HotFolderPath: hotFolder,
		Filename:      fmt.Sprintf("JOB-%d_%s.pdf", job.ID, name),
	}, nil
}

// ConfirmSent records the agent's acknowledgement that the PDF landed in the
// hot folder. Informational only: completion stays an operator action.
func (b *AgentSyncBridge) ConfirmSent(ctx context.Context, printerID string, jobID int64) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	job, err := b.getPrinterJob(ctx, tx, jobID, printerID)
	if err != nil {
		return err
	}
	if JobStatus(job.Status) != StatusSentToPrinter {
		return ErrNotAtPrintHead
	}

	line := "Agent confirmed file sent at " + time.Now().UTC().Format(time.RFC3339)
	if err := appendOperatorNotes(ctx, tx, jobID, line); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit confirmation: %w", err)
	}
	return nil
}

// QueueStatus counts the printer's jobs per status, for the agent's status
// display.
func (b *AgentSyncBridge) QueueStatus(ctx context.Context, printerID string) (map[JobStatus]int, error) {
	rows, err := b.db.QueryContext(ctx, db.CountJobsByStatusForPrinter, printerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[JobStatus]int, len(allStatuses))
	for _, s := range allStatuses {
		counts[s] = 0
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[JobStatus(status)] = count
	}
	return counts, rows.Err()
}

func (b *AgentSyncBridge) getPrinterJob(ctx context.Context, q rowQuerier, jobID int64, printerID string) (*db.Job, error) {
	row := q.QueryRowContext(ctx, db.GetJobForPrinter, jobID, printerID)
	job, err := db.ScanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}
