package core

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/scentcraft/printflow/internal/db"
)

// PrinterMonitor is the background half of online detection. The online
// flag itself is derived from last_seen at read time; the monitor only
// flips the stored column and emits the status-changed event when an agent
// goes quiet, so subscribers hear about it without polling.
type PrinterMonitor struct {
	db         *sql.DB
	events     EventSink
	staleAfter time.Duration
	sweepEvery time.Duration
	stopCh     chan struct{}
}

func NewPrinterMonitor(database *sql.DB, events EventSink, staleAfter, sweepEvery time.Duration) *PrinterMonitor {
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}
	if sweepEvery <= 0 {
		sweepEvery = 30 * time.Second
	}
	return &PrinterMonitor{
		db:         database,
		events:     events,
		staleAfter: staleAfter,
		sweepEvery: sweepEvery,
		stopCh:     make(chan struct{}),
	}
}

func (m *PrinterMonitor) Start() {
	go m.run()
}

func (m *PrinterMonitor) Stop() {
	close(m.stopCh)
}

func (m *PrinterMonitor) run() {
	ticker := time.NewTicker(m.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if err := m.Sweep(context.Background()); err != nil {
				log.Printf("[monitor] offline sweep failed: %v", err)
			}
		}
	}
}

// Sweep marks printers whose last heartbeat aged past the staleness window
// as offline and fires one status-changed event per flip.
func (m *PrinterMonitor) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-m.staleAfter)

	rows, err := m.db.QueryContext(ctx, db.GetStalePrinterIDs, cutoff)
	if err != nil {
		return fmt.Errorf("failed to find stale printers: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan printer id: %w", err)
		}
		stale = append(stale, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read stale printers: %w", err)
	}

	for _, id := range stale {
		res, err := m.db.ExecContext(ctx, db.MarkPrinterOffline, id)
		if err != nil {
			return fmt.Errorf("failed to mark printer %s offline: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if affected > 0 && m.events != nil {
			m.events.PrinterStatusChanged(id, false)
		}
	}

	return nil
}
