package core

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/scentcraft/printflow/internal/db"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	if err := db.Init(db.Config{Path: path}); err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db.GetDB()
}

func createTestPrinter(t *testing.T, id string) {
	t.Helper()

	err := db.Printers.CreatePrinter(context.Background(), &db.Printer{
		ID:            id,
		Name:          "Printer " + id,
		Location:      "Test floor",
		APIKey:        "key-" + id,
		HotFolderPath: "/tmp/hot-" + id,
	})
	if err != nil {
		t.Fatalf("failed to create printer: %v", err)
	}
}

func createTestTemplate(t *testing.T, id string) {
	t.Helper()

	template := &db.Template{
		ID:          id,
		Name:        "Template " + id,
		BedWidthMM:  600,
		BedHeightMM: 400,
		IsActive:    true,
	}
	slots := []*db.TemplateSlot{
		{ID: id + "-slot-1", TemplateID: id, Name: "Slot 1", SlotPosition: "A1", Width: 90, Height: 50},
		{ID: id + "-slot-2", TemplateID: id, Name: "Slot 2", SlotPosition: "A2", Width: 90, Height: 50},
	}
	if err := db.Templates.CreateTemplate(context.Background(), template, slots); err != nil {
		t.Fatalf("failed to create template: %v", err)
	}
}

type jobOpts struct {
	printerID string
	status    JobStatus
	priority  int
	pdfPath   string
	localPos  *int
}

func createTestJob(t *testing.T, database *sql.DB, opts jobOpts) int64 {
	t.Helper()

	if opts.printerID == "" {
		opts.printerID = "printer-1"
	}
	if opts.status == "" {
		opts.status = StatusDraft
	}

	ctx := context.Background()

	var maxPos int
	if err := database.QueryRowContext(ctx, db.MaxQueuePosition, opts.printerID).Scan(&maxPos); err != nil {
		t.Fatalf("failed to read max queue position: %v", err)
	}

	res, err := database.ExecContext(ctx, db.InsertJob,
		opts.printerID, "template-1", string(opts.status), maxPos+1, opts.priority,
		"Test Job", "Test Event", nil, 1, opts.pdfPath, nil, nil, "", "", nil)
	if err != nil {
		t.Fatalf("failed to create job: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("failed to get job id: %v", err)
	}

	if opts.localPos != nil {
		if _, err := database.ExecContext(ctx, db.SetLocalQueuePosition, *opts.localPos, id); err != nil {
			t.Fatalf("failed to set local position: %v", err)
		}
	}

	for _, slotID := range []string{"template-1-slot-1", "template-1-slot-2"} {
		if _, err := database.ExecContext(ctx, db.InsertJobSlot,
			id, slotID, "A1", "Label", "/assets/label.png", "", "Guest", "Recipient",
			"frag-1", "Lavender", "vial", "QR-"+slotID); err != nil {
			t.Fatalf("failed to create job slot: %v", err)
		}
	}

	return id
}

func setupCoreFixtures(t *testing.T) *sql.DB {
	t.Helper()

	database := setupTestDB(t)
	createTestPrinter(t, "printer-1")
	createTestTemplate(t, "template-1")
	return database
}

func getTestJob(t *testing.T, jobID int64) *db.Job {
	t.Helper()

	job, err := db.Jobs.GetJobByID(context.Background(), jobID)
	if err != nil {
		t.Fatalf("failed to get job %d: %v", jobID, err)
	}
	return job
}

func intPtr(n int) *int { return &n }

func touchHeartbeat(t *testing.T, database *sql.DB, printerID string, at time.Time) {
	t.Helper()

	if _, err := database.ExecContext(context.Background(), db.TouchPrinterHeartbeat, at, printerID); err != nil {
		t.Fatalf("failed to touch heartbeat: %v", err)
	}
}
