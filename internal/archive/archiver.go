package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/scentcraft/printflow/internal/db"
)

// Archiver moves terminal jobs past the retention window out of the live
// table into JSON files, one per job, recording each move in
// archive_records. Printed and failed jobs stay queryable as history until
// they age out.
type Archiver struct {
	db          *sql.DB
	archivePath string
	archiveDays int
	interval    time.Duration
	stopCh      chan struct{}
	mu          sync.Mutex
}

type Config struct {
	ArchivePath string
	ArchiveDays int
	Interval    time.Duration
}

type archivedJob struct {
	Job   *db.Job       `json:"job"`
	Slots []*db.JobSlot `json:"slots"`
}

func NewArchiver(database *sql.DB, config Config) (*Archiver, error) {
	if config.ArchivePath == "" {
		config.ArchivePath = "./data/archives"
	}
	if config.ArchiveDays <= 0 {
		config.ArchiveDays = 30
	}
	if config.Interval <= 0 {
		config.Interval = 24 * time.Hour
	}

	if err := os.MkdirAll(config.ArchivePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	return &Archiver{
		db:          database,
		archivePath: config.ArchivePath,
		archiveDays: config.ArchiveDays,
		interval:    config.Interval,
		stopCh:      make(chan struct{}),
	}, nil
}

func (a *Archiver) Start() {
	go a.run()
}

func (a *Archiver) Stop() {
	close(a.stopCh)
}

func (a *Archiver) run() {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			if _, err := a.RunArchive(context.Background()); err != nil {
				log.Printf("[archive] sweep failed: %v", err)
			}
		}
	}
}

// RunArchive performs one sweep and returns the number of jobs archived.
// Also called directly by the admin trigger endpoint.
func (a *Archiver) RunArchive(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -a.archiveDays)

	rows, err := a.db.QueryContext(ctx, db.GetJobsForArchival, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to get jobs for archival: %w", err)
	}
	jobs, err := db.ScanJobs(rows)
	rows.Close()
	if err != nil {
		return 0, err
	}

	archived := 0
	for _, job := range jobs {
		if err := a.archiveJob(ctx, job); err != nil {
			return archived, fmt.Errorf("failed to archive job %d: %w", job.ID, err)
		}
		archived++
	}

	return archived, nil
}

func (a *Archiver) archiveJob(ctx context.Context, job *db.Job) error {
	slots, err := db.Slots.ListJobSlots(ctx, job.ID)
	if err != nil {
		return err
	}

	filename := fmt.Sprintf("job_%d_%s.json", job.ID, time.Now().UTC().Format("20060102T150405"))
	path := filepath.Join(a.archivePath, filename)

	data, err := json.MarshalIndent(&archivedJob{Job: job, Slots: slots}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal archive: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write archive file: %w", err)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, db.InsertArchiveRecord, job.ID, filename); err != nil {
		return fmt.Errorf("failed to record archive: %w", err)
	}

	if _, err := tx.ExecContext(ctx, db.DeleteJobSlots, job.ID); err != nil {
		return fmt.Errorf("failed to delete archived slots: %w", err)
	}

	if _, err := tx.ExecContext(ctx, db.DeleteJob, job.ID); err != nil {
		return fmt.Errorf("failed to delete archived job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to commit archive: %w", err)
	}

	return nil
}
