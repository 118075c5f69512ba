package core

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/scentcraft/printflow/internal/db"
)

// QueueManager owns the per-printer local queue: the ordering of jobs the
// operator sees, and the invariant that at most one job per printer is at
// the print head (sent_to_printer) at any time.
//
// Multi-step operations take a per-printer mutex, and every read-check-write
// runs inside a single transaction on the single-writer sqlite handle, so
// two operator sessions racing on the same printer serialize instead of
// both succeeding.
type QueueManager struct {
	db    *sql.DB
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewQueueManager(database *sql.DB) *QueueManager {
	return &QueueManager{
		db:    database,
		locks: make(map[string]*sync.Mutex),
	}
}

// LockPrinter acquires the mutual-exclusion scope for one printer's queue
// and returns the release func. Exported so AgentSyncBridge can run its
// download-report under the same scope.
func (m *QueueManager) LockPrinter(printerID string) func() {
	m.mu.Lock()
	l, ok := m.locks[printerID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[printerID] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Enqueue assigns the job the next free local queue position for its
// printer. The position is assigned exactly once: a job that already holds
// one is rejected with ErrAlreadyQueued, never silently repositioned.
func (m *QueueManager) Enqueue(ctx context.Context, jobID int64) (int, error) {
	job, err := m.getJob(ctx, jobID)
	if err != nil {
		return 0, err
	}

	unlock := m.LockPrinter(job.PrinterID)
	defer unlock()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	pos, err := m.enqueueTx(ctx, tx, jobID, job.PrinterID)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit enqueue: %w", err)
	}
	return pos, nil
}

// enqueueTx is the transactional body of Enqueue, shared with
// AgentSyncBridge so that status change and position assignment commit
// together.
func (m *QueueManager) enqueueTx(ctx context.Context, tx *sql.Tx, jobID int64, printerID string) (int, error) {
	var current *int
	if err := tx.QueryRowContext(ctx,
		"SELECT local_queue_position FROM jobs WHERE id = ?", jobID).Scan(&current); err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrJobNotFound
		}
		return 0, fmt.Errorf("failed to read queue position: %w", err)
	}
	if current != nil {
		return 0, ErrAlreadyQueued
	}

	var maxPos int
	if err := tx.QueryRowContext(ctx, db.MaxLocalQueuePosition, printerID).Scan(&maxPos); err != nil {
		return 0, fmt.Errorf("failed to read max queue position: %w", err)
	}

	pos := maxPos + 1
	if _, err := tx.ExecContext(ctx, db.SetLocalQueuePosition, pos, jobID); err != nil {
		return 0, fmt.Errorf("failed to set queue position: %w", err)
	}
	return pos, nil
}

// Next returns the queued_local job the operator should pick up next:
// lowest local position, ties broken by higher priority then earlier
// creation. An empty queue returns (nil, nil).
func (m *QueueManager) Next(ctx context.Context, printerID string) (*db.Job, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT `+db.JobColumns()+` FROM jobs
		WHERE printer_id = ? AND status = 'queued_local'
		ORDER BY local_queue_position ASC, priority DESC, created_at ASC
		LIMIT 1
	`, printerID)

	job, err := db.ScanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

// BeginPrint moves a job from awaiting_operator to sent_to_printer. The
// busy check and the status write happen in one transaction under the
// printer lock: two concurrent triggers cannot both claim the head.
func (m *QueueManager) BeginPrint(ctx context.Context, jobID int64) (*db.Job, error) {
	job, err := m.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if err := ValidateTransition(JobStatus(job.Status), StatusSentToPrinter, ActorOperator); err != nil {
		return nil, err
	}

	unlock := m.LockPrinter(job.PrinterID)
	defer unlock()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var sent int
	if err := tx.QueryRowContext(ctx, db.CountSentToPrinter, job.PrinterID).Scan(&sent); err != nil {
		return nil, fmt.Errorf("failed to count active prints: %w", err)
	}
	if sent > 0 {
		return nil, ErrPrinterBusy
	}

	res, err := tx.ExecContext(ctx, db.UpdateJobStatus,
		string(StatusSentToPrinter), time.Now().UTC(), jobID, string(StatusAwaitingOperator))
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
		fresh, ferr := loadJob(ctx, tx, jobID)
		if ferr != nil {
			return nil, ferr
		}
		return nil, &TransitionError{From: JobStatus(fresh.Status), To: StatusSentToPrinter, Actor: ActorOperator}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit begin-print: %w", err)
	}

	return m.getJob(ctx, jobID)
}

// Reorder rewrites the local positions of the printer's queued_local jobs
// to match orderedIDs. The caller must supply the complete current queued
// set: any drop, add, or duplicate is rejected with ErrStaleQueue so a
// console working from a stale snapshot re-fetches instead of silently
// merging. Positions still held by jobs past queued_local stay reserved,
// so a later return-to-queue never collides with a reordered job.
func (m *QueueManager) Reorder(ctx context.Context, printerID string, orderedIDs []int64) error {
	unlock := m.LockPrinter(printerID)
	defer unlock()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, db.GetQueuedLocalIDs, printerID)
	if err != nil {
		return fmt.Errorf("failed to read queued jobs: %w", err)
	}
	current := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan job id: %w", err)
		}
		current[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read queued jobs: %w", err)
	}

	if len(orderedIDs) != len(current) {
		return ErrStaleQueue
	}
	seen := make(map[int64]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if !current[id] || seen[id] {
			return ErrStaleQueue
		}
		seen[id] = true
	}

	held, err := heldPositions(ctx, tx, printerID)
	if err != nil {
		return err
	}

	pos := 0
	for _, id := range orderedIDs {
		pos++
		for held[pos] {
			pos++
		}
		if _, err := tx.ExecContext(ctx, db.SetLocalQueuePosition, pos, id); err != nil {
			return fmt.Errorf("failed to set queue position: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reorder: %w", err)
	}
	return nil
}

// heldPositions collects the local positions pinned by jobs that already
// left queued_local (awaiting_operator, sent_to_printer).
func heldPositions(ctx context.Context, tx *sql.Tx, printerID string) (map[int]bool, error) {
	rows, err := tx.QueryContext(ctx, db.GetHeldQueuePositions, printerID)
	if err != nil {
		return nil, fmt.Errorf("failed to read held positions: %w", err)
	}
	defer rows.Close()

	held := make(map[int]bool)
	for rows.Next() {
		var pos int
		if err := rows.Scan(&pos); err != nil {
			return nil, fmt.Errorf("failed to scan held position: %w", err)
		}
		held[pos] = true
	}
	return held, rows.Err()
}

func (m *QueueManager) getJob(ctx context.Context, jobID int64) (*db.Job, error) {
	return loadJob(ctx, m.db, jobID)
}
