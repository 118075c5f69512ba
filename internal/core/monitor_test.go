package core

import (
	"context"
	"testing"
	"time"
)

func TestSweepMarksStalePrintersOffline(t *testing.T) {
	database := setupCoreFixtures(t)
	createTestPrinter(t, "printer-2")
	sink := &recordingSink{}
	monitor := NewPrinterMonitor(database, sink, 2*time.Minute, time.Hour)
	ctx := context.Background()

	now := time.Now().UTC()
	touchHeartbeat(t, database, "printer-1", now.Add(-10*time.Minute))
	touchHeartbeat(t, database, "printer-2", now)

	if err := monitor.Sweep(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	var online bool
	if err := database.QueryRowContext(ctx,
		"SELECT is_online FROM printers WHERE id = 'printer-1'").Scan(&online); err != nil {
		t.Fatal(err)
	}
	if online {
		t.Error("stale printer still online")
	}

	if err := database.QueryRowContext(ctx,
		"SELECT is_online FROM printers WHERE id = 'printer-2'").Scan(&online); err != nil {
		t.Fatal(err)
	}
	if !online {
		t.Error("fresh printer went offline")
	}

	if len(sink.printers) != 1 || sink.printers[0] != "printer-1" {
		t.Errorf("status events = %v, want [printer-1]", sink.printers)
	}

	// A second sweep does not re-announce the same printer.
	if err := monitor.Sweep(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if len(sink.printers) != 1 {
		t.Errorf("status events = %v after repeat sweep", sink.printers)
	}
}
