package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/scentcraft/printflow/internal/api/middleware"
	"github.com/scentcraft/printflow/internal/core"
	"github.com/scentcraft/printflow/internal/db"
)

type ReorderRequest struct {
	JobIDs []int64 `json:"job_ids" binding:"required,min=1"`
}

type CompleteRequest struct {
	Notes string `json:"notes"`
}

type FailRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// OperatorHandler exposes the print-floor console: the local queue for one
// printer and the actions that walk a job through the physical print.
type OperatorHandler struct {
	queue    *core.QueueManager
	actions  *core.OperatorActions
	operator gin.HandlerFunc
}

func NewOperatorHandler(queue *core.QueueManager, actions *core.OperatorActions) *OperatorHandler {
	return &OperatorHandler{
		queue:    queue,
		actions:  actions,
		operator: middleware.RequireRole(middleware.RoleOperator),
	}
}

func (h *OperatorHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/printers/:id/queue", h.GetQueue)
	r.GET("/printers/:id/history", h.GetHistory)
	r.PUT("/printers/:id/queue/order", h.operator, h.ReorderQueue)
	r.POST("/operator/jobs/:id/jig-loaded", h.operator, h.JigLoaded)
	r.POST("/operator/jobs/:id/print", h.operator, h.Print)
	r.POST("/operator/jobs/:id/complete", h.operator, h.Complete)
	r.POST("/operator/jobs/:id/fail", h.operator, h.Fail)
	r.POST("/operator/jobs/:id/return", h.operator, h.ReturnToQueue)
}

// GetQueue returns the printer's active local queue in operator order, plus
// the job the operator should pick up next.
func (h *OperatorHandler) GetQueue(c *gin.Context) {
	printerID := c.Param("id")
	ctx := c.Request.Context()

	jobs, err := db.Jobs.GetOperatorQueue(ctx, printerID)
	if err != nil {
		writeError(c, err)
		return
	}

	next, err := h.queue.Next(ctx, printerID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"printer_id": printerID,
		"jobs":       jobs,
		"next":       next,
		"count":      len(jobs),
	})
}

func (h *OperatorHandler) GetHistory(c *gin.Context) {
	printerID := c.Param("id")

	limit := 50
	if v := c.Query("limit"); v != "" {
		if parsed, err := parseLimit(v); err == nil {
			limit = parsed
		}
	}

	jobs, err := db.Jobs.GetPrintHistory(c.Request.Context(), printerID, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

// ReorderQueue rewrites the local queue order. The request must carry the
// complete current queued set; a stale snapshot gets a 409 and re-fetches.
func (h *OperatorHandler) ReorderQueue(c *gin.Context) {
	printerID := c.Param("id")

	var req ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_ids is required"})
		return
	}

	if err := h.queue.Reorder(c.Request.Context(), printerID, req.JobIDs); err != nil {
		writeError(c, err)
		return
	}

	jobs, err := db.Jobs.GetOperatorQueue(c.Request.Context(), printerID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

func (h *OperatorHandler) JigLoaded(c *gin.Context) {
	h.runAction(c, func(jobID int64) (*db.Job, error) {
		return h.actions.JigLoaded(c.Request.Context(), jobID)
	})
}

func (h *OperatorHandler) Print(c *gin.Context) {
	h.runAction(c, func(jobID int64) (*db.Job, error) {
		return h.actions.Print(c.Request.Context(), jobID)
	})
}

func (h *OperatorHandler) Complete(c *gin.Context) {
	var req CompleteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
	}

	h.runAction(c, func(jobID int64) (*db.Job, error) {
		return h.actions.Complete(c.Request.Context(), jobID, req.Notes)
	})
}

func (h *OperatorHandler) Fail(c *gin.Context) {
	var req FailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A failure reason is required"})
		return
	}

	h.runAction(c, func(jobID int64) (*db.Job, error) {
		return h.actions.Fail(c.Request.Context(), jobID, req.Reason)
	})
}

func (h *OperatorHandler) ReturnToQueue(c *gin.Context) {
	h.runAction(c, func(jobID int64) (*db.Job, error) {
		return h.actions.ReturnToQueue(c.Request.Context(), jobID)
	})
}

func (h *OperatorHandler) runAction(c *gin.Context, action func(jobID int64) (*db.Job, error)) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}

	job, err := action(jobID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

func parseLimit(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		n = 1
	}
	if n > 500 {
		n = 500
	}
	return n, nil
}
