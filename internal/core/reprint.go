package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scentcraft/printflow/internal/db"
)

// ReprintFactory spawns a fresh job from a failed one. The failed job is
// read, never written: lineage lives entirely on the child via reprint_of.
type ReprintFactory struct {
	db *sql.DB
}

func NewReprintFactory(database *sql.DB) *ReprintFactory {
	return &ReprintFactory{db: database}
}

// Create copies the failed source job and all of its slots into a new job.
// When the composed PDF is still usable the child starts at ready_for_print
// and reuses it; otherwise it starts at draft for re-composition. Reprints
// jump ahead of their peers by one priority step.
func (f *ReprintFactory) Create(ctx context.Context, sourceID int64, reason string, createdBy *int64) (*db.Job, error) {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, db.GetJobByID, sourceID)
	source, err := db.ScanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	if JobStatus(source.Status) != StatusFailed {
		return nil, ErrSourceNotFailed
	}

	var maxPos int
	if err := tx.QueryRowContext(ctx, db.MaxQueuePosition, source.PrinterID).Scan(&maxPos); err != nil {
		return nil, fmt.Errorf("failed to read max queue position: %w", err)
	}

	status := StatusDraft
	var submittedAt *time.Time
	if source.ComposedPDFPath != "" {
		status = StatusReadyForPrint
		now := time.Now().UTC()
		submittedAt = &now
	}

	res, err := tx.ExecContext(ctx, db.InsertJob,
		source.PrinterID, source.TemplateID, string(status), maxPos+1, source.Priority+1,
		reprintName(source.JobName), source.EventName, source.EventDate, source.Copies,
		source.ComposedPDFPath, createdBy, source.ID, reason, source.DesignerNotes, submittedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create reprint job: %w", err)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get reprint job id: %w", err)
	}

	slotRows, err := tx.QueryContext(ctx, db.ListJobSlots, source.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list source slots: %w", err)
	}
	var slots []*db.JobSlot
	for slotRows.Next() {
		s := &db.JobSlot{}
		if err := slotRows.Scan(
			&s.ID, &s.JobID, &s.TemplateSlotID, &s.SlotPosition, &s.SlotLabel,
			&s.LabelAssetPath, &s.LabelPreviewPath, &s.GuestName, &s.Recipient,
			&s.FragranceID, &s.FragranceName, &s.ProductType, &s.QRUID, &s.CreatedAt); err != nil {
			slotRows.Close()
			return nil, fmt.Errorf("failed to scan source slot: %w", err)
		}
		slots = append(slots, s)
	}
	slotRows.Close()
	if err := slotRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read source slots: %w", err)
	}

	for _, s := range slots {
		if _, err := tx.ExecContext(ctx, db.InsertJobSlot,
			newID, s.TemplateSlotID, s.SlotPosition, s.SlotLabel, s.LabelAssetPath,
			s.LabelPreviewPath, s.GuestName, s.Recipient, s.FragranceID,
			s.FragranceName, s.ProductType, s.QRUID); err != nil {
			return nil, fmt.Errorf("failed to copy slot %s: %w", s.TemplateSlotID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reprint: %w", err)
	}

	row = f.db.QueryRowContext(ctx, db.GetJobByID, newID)
	return db.ScanJob(row)
}

func reprintName(name string) string {
	if name == "" {
		return "Reprint"
	}
	return name + " (Reprint)"
}
