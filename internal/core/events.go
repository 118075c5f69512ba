package core

import (
	"github.com/scentcraft/printflow/internal/db"
)

// EventSink receives lifecycle notifications after the owning transaction
// has committed. Implemented by the webhook sender; components tolerate a
// nil sink.
type EventSink interface {
	JobDownloaded(job *db.Job)
	JobPrinted(job *db.Job)
	JobFailed(job *db.Job, reason string)
	PrinterStatusChanged(printerID string, online bool)
}
