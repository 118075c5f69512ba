package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/scentcraft/printflow/internal/db"
)

type recordingSink struct {
	mu         sync.Mutex
	downloaded []int64
	printed    []int64
	failed     []int64
	printers   []string
}

func (r *recordingSink) JobDownloaded(job *db.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downloaded = append(r.downloaded, job.ID)
}

func (r *recordingSink) JobPrinted(job *db.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.printed = append(r.printed, job.ID)
}

func (r *recordingSink) JobFailed(job *db.Job, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, job.ID)
}

func (r *recordingSink) PrinterStatusChanged(printerID string, online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.printers = append(r.printers, printerID)
}

func TestFetchReadyOrdersByPriority(t *testing.T) {
	database := setupCoreFixtures(t)
	queue := NewQueueManager(database)
	bridge := NewAgentSyncBridge(database, queue, nil, 0)
	ctx := context.Background()

	low := createTestJob(t, database, jobOpts{status: StatusReadyForPrint, priority: 0})
	high := createTestJob(t, database, jobOpts{status: StatusReadyForPrint, priority: 5})
	createTestJob(t, database, jobOpts{status: StatusDraft})

	jobs, err := bridge.FetchReady(ctx, "printer-1")
	if err != nil {
		t.Fatalf("fetch ready failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}
	if jobs[0].ID != high || jobs[1].ID != low {
		t.Errorf("order = [%d %d], want [%d %d]", jobs[0].ID, jobs[1].ID, high, low)
	}

	// Repeated fetches before any job advances are identical.
	again, err := bridge.FetchReady(ctx, "printer-1")
	if err != nil {
		t.Fatalf("fetch ready failed: %v", err)
	}
	if len(again) != 2 || again[0].ID != high {
		t.Error("repeat fetch returned different jobs")
	}
}

func TestReportDownloadedMovesJobAndAssignsPosition(t *testing.T) {
	database := setupCoreFixtures(t)
	queue := NewQueueManager(database)
	sink := &recordingSink{}
	bridge := NewAgentSyncBridge(database, queue, sink, 0)
	ctx := context.Background()

	jobID := createTestJob(t, database, jobOpts{status: StatusReadyForPrint})

	job, err := bridge.ReportDownloaded(ctx, "printer-1", jobID)
	if err != nil {
		t.Fatalf("report downloaded failed: %v", err)
	}
	if JobStatus(job.Status) != StatusQueuedLocal {
		t.Fatalf("status = %s, want queued_local", job.Status)
	}
	if job.LocalQueuePosition == nil || *job.LocalQueuePosition != 1 {
		t.Errorf("position = %v, want 1", job.LocalQueuePosition)
	}
	if job.DownloadedAt == nil {
		t.Error("downloaded_at not set")
	}
	if len(sink.downloaded) != 1 || sink.downloaded[0] != jobID {
		t.Errorf("downloaded events = %v, want [%d]", sink.downloaded, jobID)
	}
}

func TestReportDownloadedIsIdempotent(t *testing.T) {
	database := setupCoreFixtures(t)
	queue := NewQueueManager(database)
	sink := &recordingSink{}
	bridge := NewAgentSyncBridge(database, queue, sink, 0)
	ctx := context.Background()

	jobID := createTestJob(t, database, jobOpts{status: StatusReadyForPrint})

	first, err := bridge.ReportDownloaded(ctx, "printer-1", jobID)
	if err != nil {
		t.Fatalf("report downloaded failed: %v", err)
	}

	// The agent retries after a crash; the repeat must be a no-op success.
	second, err := bridge.ReportDownloaded(ctx, "printer-1", jobID)
	if err != nil {
		t.Fatalf("repeat report failed: %v", err)
	}
	if *second.LocalQueuePosition != *first.LocalQueuePosition {
		t.Errorf("repeat changed position: %d -> %d", *first.LocalQueuePosition, *second.LocalQueuePosition)
	}
	if len(sink.downloaded) != 1 {
		t.Errorf("downloaded events = %d, want 1", len(sink.downloaded))
	}
}

func TestReportDownloadedConflictReturnsFreshStatus(t *testing.T) {
	database := setupCoreFixtures(t)
	queue := NewQueueManager(database)
	bridge := NewAgentSyncBridge(database, queue, nil, 0)
	ctx := context.Background()

	jobID := createTestJob(t, database, jobOpts{status: StatusReadyForPrint})

	// Park the report on the printer lock, fail the job underneath it, then
	// let it proceed. It must come back with the current status, not hang.
	unlock := queue.LockPrinter("printer-1")
	done := make(chan error, 1)
	go func() {
		_, err := bridge.ReportDownloaded(ctx, "printer-1", jobID)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	if _, err := database.ExecContext(ctx,
		"UPDATE jobs SET status = 'failed' WHERE id = ?", jobID); err != nil {
		t.Fatal(err)
	}
	unlock()

	select {
	case err := <-done:
		terr, ok := AsTransitionError(err)
		if !ok {
			t.Fatalf("error = %v, want TransitionError", err)
		}
		if terr.From != StatusFailed {
			t.Errorf("error from = %s, want failed", terr.From)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("report did not return after losing the race")
	}
}

func TestReportDownloadedRejectsWrongStatus(t *testing.T) {
	database := setupCoreFixtures(t)
	queue := NewQueueManager(database)
	bridge := NewAgentSyncBridge(database, queue, nil, 0)

	jobID := createTestJob(t, database, jobOpts{status: StatusDraft})

	_, err := bridge.ReportDownloaded(context.Background(), "printer-1", jobID)
	terr, ok := AsTransitionError(err)
	if !ok {
		t.Fatalf("error = %v, want TransitionError", err)
	}
	if terr.From != StatusDraft || terr.Actor != ActorAgent {
		t.Errorf("unexpected edge in error: %+v", terr)
	}
}

func TestReportDownloadedScopedToPrinter(t *testing.T) {
	database := setupCoreFixtures(t)
	createTestPrinter(t, "printer-2")
	queue := NewQueueManager(database)
	bridge := NewAgentSyncBridge(database, queue, nil, 0)

	jobID := createTestJob(t, database, jobOpts{printerID: "printer-1", status: StatusReadyForPrint})

	if _, err := bridge.ReportDownloaded(context.Background(), "printer-2", jobID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("error = %v, want ErrJobNotFound", err)
	}
}

func TestHeartbeatUnknownPrinter(t *testing.T) {
	database := setupCoreFixtures(t)
	bridge := NewAgentSyncBridge(database, NewQueueManager(database), nil, 0)

	if _, err := bridge.Heartbeat(context.Background(), "no-such-printer"); !errors.Is(err, ErrPrinterNotFound) {
		t.Errorf("error = %v, want ErrPrinterNotFound", err)
	}
}

func TestHeartbeatFiresOnlineEventOnce(t *testing.T) {
	database := setupCoreFixtures(t)
	sink := &recordingSink{}
	bridge := NewAgentSyncBridge(database, NewQueueManager(database), sink, 0)
	ctx := context.Background()

	if _, err := bridge.Heartbeat(ctx, "printer-1"); err != nil {
		t.Fatalf("heartbeat failed: %v", err)
	}
	if _, err := bridge.Heartbeat(ctx, "printer-1"); err != nil {
		t.Fatalf("heartbeat failed: %v", err)
	}

	// New printers start offline; only the first beat flips the flag.
	if len(sink.printers) != 1 {
		t.Errorf("status events = %v, want one", sink.printers)
	}
}

func TestConcurrentFirstHeartbeatsFireOneEvent(t *testing.T) {
	database := setupCoreFixtures(t)
	sink := &recordingSink{}
	bridge := NewAgentSyncBridge(database, NewQueueManager(database), sink, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := bridge.Heartbeat(ctx, "printer-1"); err != nil {
				t.Errorf("heartbeat failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(sink.printers) != 1 {
		t.Errorf("status events = %v, want one", sink.printers)
	}
}

func TestPrinterOnlineDerivedFromLastSeen(t *testing.T) {
	database := setupCoreFixtures(t)
	bridge := NewAgentSyncBridge(database, NewQueueManager(database), nil, 2*time.Minute)

	now := time.Now().UTC()
	fresh := now.Add(-30 * time.Second)
	stale := now.Add(-3 * time.Minute)

	cases := []struct {
		name     string
		lastSeen *time.Time
		want     bool
	}{
		{"never seen", nil, false},
		{"recent heartbeat", &fresh, true},
		{"stale heartbeat", &stale, false},
	}

	for _, tc := range cases {
		p := &db.Printer{ID: "printer-1", LastSeen: tc.lastSeen}
		if got := bridge.PrinterOnline(p, now); got != tc.want {
			t.Errorf("%s: online = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestQueueStatusCountsAllStatuses(t *testing.T) {
	database := setupCoreFixtures(t)
	bridge := NewAgentSyncBridge(database, NewQueueManager(database), nil, 0)

	createTestJob(t, database, jobOpts{status: StatusReadyForPrint})
	createTestJob(t, database, jobOpts{status: StatusReadyForPrint})
	createTestJob(t, database, jobOpts{status: StatusQueuedLocal, localPos: intPtr(1)})

	counts, err := bridge.QueueStatus(context.Background(), "printer-1")
	if err != nil {
		t.Fatalf("queue status failed: %v", err)
	}

	if counts[StatusReadyForPrint] != 2 {
		t.Errorf("ready_for_print = %d, want 2", counts[StatusReadyForPrint])
	}
	if counts[StatusQueuedLocal] != 1 {
		t.Errorf("queued_local = %d, want 1", counts[StatusQueuedLocal])
	}
	// Every status appears even with zero jobs.
	for _, s := range AllStatuses() {
		if _, ok := counts[s]; !ok {
			t.Errorf("status %s missing from counts", s)
		}
	}
}

func TestGetPrintInfo(t *testing.T) {
	database := setupCoreFixtures(t)
	bridge := NewAgentSyncBridge(database, NewQueueManager(database), nil, 0)
	ctx := context.Background()

	jobID := createTestJob(t, database, jobOpts{status: StatusSentToPrinter, localPos: intPtr(1)})

	info, err := bridge.GetPrintInfo(ctx, "printer-1", jobID)
	if err != nil {
		t.Fatalf("print info failed: %v", err)
	}
	if info.HotFolderPath != "/tmp/hot-printer-1" {
		t.Errorf("hot folder = %s", info.HotFolderPath)
	}
	if info.Filename == "" {
		t.Error("filename empty")
	}

	queued := createTestJob(t, database, jobOpts{status: StatusQueuedLocal, localPos: intPtr(2)})
	if _, err := bridge.GetPrintInfo(ctx, "printer-1", queued); !errors.Is(err, ErrNotAtPrintHead) {
		t.Errorf("error = %v, want ErrNotAtPrintHead", err)
	}
}
