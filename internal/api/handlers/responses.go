package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scentcraft/printflow/internal/core"
	"github.com/scentcraft/printflow/internal/db"
)

// writeError maps core and db errors onto HTTP statuses. Lifecycle conflicts
// carry the job's current status so clients can refresh instead of guessing.
func writeError(c *gin.Context, err error) {
	var terr *core.TransitionError
	if errors.As(err, &terr) {
		c.JSON(http.StatusConflict, gin.H{
			"error":            terr.Error(),
			"current_status":   string(terr.From),
			"requested_status": string(terr.To),
		})
		return
	}

	switch {
	case errors.Is(err, core.ErrJobNotFound),
		errors.Is(err, core.ErrPrinterNotFound),
		errors.Is(err, sql.ErrNoRows):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, core.ErrPrinterBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "Printer already has a job at the print head"})
	case errors.Is(err, core.ErrStaleQueue):
		c.JSON(http.StatusConflict, gin.H{"error": "Queue changed since it was fetched, refresh and retry"})
	case errors.Is(err, core.ErrAlreadyQueued):
		c.JSON(http.StatusConflict, gin.H{"error": "Job already holds a local queue position"})
	case errors.Is(err, core.ErrSourceNotFailed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only failed jobs can be reprinted"})
	case errors.Is(err, core.ErrReasonRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "A reason is required"})
	case errors.Is(err, core.ErrJobNotReady):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrNotAtPrintHead):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Job must be in sent_to_printer status"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
	}
}

type JobDetail struct {
	*db.Job
	Slots []*db.JobSlot `json:"slots"`
}
