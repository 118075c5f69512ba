package handlers

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scentcraft/printflow/internal/api/middleware"
	"github.com/scentcraft/printflow/internal/core"
	"github.com/scentcraft/printflow/internal/db"
)

// AgentHandler is the poll-only surface spoken by the on-site agent. Every
// route sits behind AgentAuth, so requests are always scoped to the printer
// the API key belongs to.
type AgentHandler struct {
	bridge *core.AgentSyncBridge
}

func NewAgentHandler(bridge *core.AgentSyncBridge) *AgentHandler {
	return &AgentHandler{bridge: bridge}
}

func (h *AgentHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/heartbeat", h.Heartbeat)
	r.GET("/jobs", h.ListReadyJobs)
	r.GET("/jobs/:id/download", h.DownloadJob)
	r.POST("/jobs/:id/mark-downloaded", h.MarkDownloaded)
	r.GET("/jobs/:id/print-info", h.PrintInfo)
	r.POST("/jobs/:id/confirm-sent", h.ConfirmSent)
	r.GET("/queue-status", h.QueueStatus)
}

func (h *AgentHandler) Heartbeat(c *gin.Context) {
	printer := middleware.PrinterFromContext(c)

	serverTime, err := h.bridge.Heartbeat(c.Request.Context(), printer.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"printer_id":  printer.ID,
		"server_time": serverTime.Format(time.RFC3339),
	})
}

func (h *AgentHandler) ListReadyJobs(c *gin.Context) {
	printer := middleware.PrinterFromContext(c)

	jobs, err := h.bridge.FetchReady(c.Request.Context(), printer.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

// DownloadJob streams the composed PDF. Downloading does not change status;
// the agent reports mark-downloaded once the file is safely on disk.
func (h *AgentHandler) DownloadJob(c *gin.Context) {
	printer := middleware.PrinterFromContext(c)

	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}

	job, err := db.Jobs.GetJobForPrinter(c.Request.Context(), jobID, printer.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	if job.ComposedPDFPath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job has no composed PDF"})
		return
	}
	if _, err := os.Stat(job.ComposedPDFPath); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Composed PDF missing from storage"})
		return
	}

	c.Header("Content-Type", "application/pdf")
	c.FileAttachment(job.ComposedPDFPath, filenameForJob(job))
}

// MarkDownloaded is the agent's durable acknowledgement. Repeating it for a
// job already queued locally answers 200 with the unchanged job.
func (h *AgentHandler) MarkDownloaded(c *gin.Context) {
	printer := middleware.PrinterFromContext(c)

	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}

	job, err := h.bridge.ReportDownloaded(c.Request.Context(), printer.ID, jobID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// PrintInfo tells the agent where to drop the PDF for a job the operator
// just sent to print.
func (h *AgentHandler) PrintInfo(c *gin.Context) {
	printer := middleware.PrinterFromContext(c)

	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}

	info, err := h.bridge.GetPrintInfo(c.Request.Context(), printer.ID, jobID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, info)
}

func (h *AgentHandler) ConfirmSent(c *gin.Context) {
	printer := middleware.PrinterFromContext(c)

	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}

	if err := h.bridge.ConfirmSent(c.Request.Context(), printer.ID, jobID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "confirmed", "job_id": jobID})
}

func (h *AgentHandler) QueueStatus(c *gin.Context) {
	printer := middleware.PrinterFromContext(c)

	counts, err := h.bridge.QueueStatus(c.Request.Context(), printer.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"printer_id": printer.ID,
		"counts":     counts,
	})
}

func filenameForJob(job *db.Job) string {
	if job.JobName == "" {
		return "job.pdf"
	}
	return job.JobName + ".pdf"
}
