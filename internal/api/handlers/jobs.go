package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scentcraft/printflow/internal/api/middleware"
	"github.com/scentcraft/printflow/internal/core"
	"github.com/scentcraft/printflow/internal/db"
)

type CreateSlotRequest struct {
	TemplateSlotID string `json:"template_slot_id" binding:"required"`
	SlotLabel      string `json:"slot_label"`
	GuestName      string `json:"guest_name"`
	Recipient      string `json:"recipient"`
	FragranceID    string `json:"fragrance_id"`
	FragranceName  string `json:"fragrance_name"`
	ProductType    string `json:"product_type"`
	QRUID          string `json:"qr_uid"`
}

type CreateJobRequest struct {
	PrinterID     string              `json:"printer_id" binding:"required"`
	TemplateID    string              `json:"template_id" binding:"required"`
	JobName       string              `json:"job_name" binding:"required"`
	EventName     string              `json:"event_name"`
	EventDate     string              `json:"event_date"`
	Copies        int                 `json:"copies"`
	Priority      int                 `json:"priority"`
	DesignerNotes string              `json:"designer_notes"`
	Slots         []CreateSlotRequest `json:"slots" binding:"required,min=1"`
}

type UpdateJobRequest struct {
	JobName       *string `json:"job_name"`
	EventName     *string `json:"event_name"`
	EventDate     *string `json:"event_date"`
	Copies        *int    `json:"copies"`
	Priority      *int    `json:"priority"`
	DesignerNotes *string `json:"designer_notes"`
}

type SubmitJobRequest struct {
	SkipReview bool `json:"skip_review"`
}

type ReprintRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type ListJobsQuery struct {
	PrinterID string `form:"printer_id"`
	Status    string `form:"status"`
	Limit     int    `form:"limit" binding:"max=200"`
	Offset    int    `form:"offset"`
}

// JobHandler covers the design-side surface: drafting jobs, routing them
// through review, and spawning reprints. Queue and print actions live on
// OperatorHandler.
type JobHandler struct {
	db          *sql.DB
	reprints    *core.ReprintFactory
	assetDir    string
	composedDir string
}

func NewJobHandler(database *sql.DB, reprints *core.ReprintFactory, assetDir, composedDir string) *JobHandler {
	return &JobHandler{
		db:          database,
		reprints:    reprints,
		assetDir:    assetDir,
		composedDir: composedDir,
	}
}

func (h *JobHandler) RegisterRoutes(r *gin.RouterGroup) {
	designer := middleware.RequireRole(middleware.RoleDesigner)
	reviewer := middleware.RequireRole(middleware.RoleReviewer)

	r.GET("/jobs", h.ListJobs)
	r.GET("/jobs/:id", h.GetJob)
	r.POST("/jobs", designer, h.CreateJob)
	r.PUT("/jobs/:id", designer, h.UpdateJob)
	r.DELETE("/jobs/:id", designer, h.DeleteJob)
	r.POST("/jobs/:id/submit", designer, h.SubmitJob)
	r.POST("/jobs/:id/approve", reviewer, h.ApproveJob)
	r.POST("/jobs/:id/reprint", h.ReprintJob)
	r.POST("/jobs/:id/pdf", designer, h.UploadComposedPDF)
	r.POST("/jobs/:id/slots/:slotId/asset", designer, h.UploadSlotAsset)
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	var query ListJobsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}

	if query.Status != "" && !core.JobStatus(query.Status).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status: " + query.Status})
		return
	}

	jobs, err := db.Jobs.ListJobs(c.Request.Context(), db.JobFilter{
		PrinterID: query.PrinterID,
		Status:    query.Status,
		Limit:     query.Limit,
		Offset:    query.Offset,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}

	job, err := db.Jobs.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		writeError(c, err)
		return
	}

	slots, err := db.Slots.ListJobSlots(c.Request.Context(), jobID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, &JobDetail{Job: job, Slots: slots})
}

func (h *JobHandler) CreateJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	ctx := c.Request.Context()

	if _, err := db.Printers.GetPrinterByID(ctx, req.PrinterID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown printer: " + req.PrinterID})
			return
		}
		writeError(c, err)
		return
	}

	templateSlots, err := db.Templates.ListTemplateSlots(ctx, req.TemplateID)
	if err != nil {
		writeError(c, err)
		return
	}
	if _, err := db.Templates.GetTemplateByID(ctx, req.TemplateID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown template: " + req.TemplateID})
			return
		}
		writeError(c, err)
		return
	}

	slotPositions := make(map[string]string, len(templateSlots))
	for _, ts := range templateSlots {
		slotPositions[ts.ID] = ts.SlotPosition
	}

	seen := make(map[string]bool, len(req.Slots))
	for _, s := range req.Slots {
		if _, ok := slotPositions[s.TemplateSlotID]; !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Slot does not belong to template: " + s.TemplateSlotID})
			return
		}
		if seen[s.TemplateSlotID] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Duplicate slot: " + s.TemplateSlotID})
			return
		}
		seen[s.TemplateSlotID] = true
	}

	var eventDate *time.Time
	if req.EventDate != "" {
		parsed, err := time.Parse("2006-01-02", req.EventDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event_date, expected YYYY-MM-DD"})
			return
		}
		eventDate = &parsed
	}

	copies := req.Copies
	if copies <= 0 {
		copies = 1
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		writeError(c, err)
		return
	}
	defer tx.Rollback()

	var maxPos int
	if err := tx.QueryRowContext(ctx, db.MaxQueuePosition, req.PrinterID).Scan(&maxPos); err != nil {
		writeError(c, err)
		return
	}

	res, err := tx.ExecContext(ctx, db.InsertJob,
		req.PrinterID, req.TemplateID, string(core.StatusDraft), maxPos+1, req.Priority,
		req.JobName, req.EventName, eventDate, copies, "",
		middleware.UserIDFromContext(c), nil, "", req.DesignerNotes, nil)
	if err != nil {
		writeError(c, err)
		return
	}
	jobID, err := res.LastInsertId()
	if err != nil {
		writeError(c, err)
		return
	}

	for _, s := range req.Slots {
		if _, err := tx.ExecContext(ctx, db.InsertJobSlot,
			jobID, s.TemplateSlotID, slotPositions[s.TemplateSlotID], s.SlotLabel, "",
			"", s.GuestName, s.Recipient, s.FragranceID,
			s.FragranceName, s.ProductType, s.QRUID); err != nil {
			writeError(c, err)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		writeError(c, err)
		return
	}

	job, err := db.Jobs.GetJobByID(ctx, jobID)
	if err != nil {
		writeError(c, err)
		return
	}
	slots, err := db.Slots.ListJobSlots(ctx, jobID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, &JobDetail{Job: job, Slots: slots})
}

// UpdateJob edits job metadata. Only drafts and jobs waiting on review are
// editable; anything further along belongs to the operator side.
func (h *JobHandler) UpdateJob(c *gin.Context) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}

	var req UpdateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	ctx := c.Request.Context()
	job, err := db.Jobs.GetJobByID(ctx, jobID)
	if err != nil {
		writeError(c, err)
		return
	}

	if !jobEditable(job) {
		c.JSON(http.StatusConflict, gin.H{
			"error":          "Job is no longer editable",
			"current_status": job.Status,
		})
		return
	}

	if req.JobName != nil {
		job.JobName = *req.JobName
	}
	if req.EventName != nil {
		job.EventName = *req.EventName
	}
	if req.EventDate != nil {
		if *req.EventDate == "" {
			job.EventDate = nil
		} else {
			parsed, err := time.Parse("2006-01-02", *req.EventDate)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event_date, expected YYYY-MM-DD"})
				return
			}
			job.EventDate = &parsed
		}
	}
	if req.Copies != nil && *req.Copies > 0 {
		job.Copies = *req.Copies
	}
	if req.Priority != nil {
		job.Priority = *req.Priority
	}
	if req.DesignerNotes != nil {
		job.DesignerNotes = *req.DesignerNotes
	}

	if _, err := h.db.ExecContext(ctx, `
		UPDATE jobs SET job_name = ?, event_name = ?, event_date = ?, copies = ?,
			priority = ?, designer_notes = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, job.JobName, job.EventName, job.EventDate, job.Copies, job.Priority, job.DesignerNotes, jobID); err != nil {
		writeError(c, err)
		return
	}

	fresh, err := db.Jobs.GetJobByID(ctx, jobID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, fresh)
}

// DeleteJob removes a draft. Anything past draft is part of the audit trail
// and can only be failed, never deleted.
func (h *JobHandler) DeleteJob(c *gin.Context) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	job, err := db.Jobs.GetJobByID(ctx, jobID)
	if err != nil {
		writeError(c, err)
		return
	}

	if core.JobStatus(job.Status) != core.StatusDraft {
		c.JSON(http.StatusConflict, gin.H{
			"error":          "Only draft jobs can be deleted",
			"current_status": job.Status,
		})
		return
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		writeError(c, err)
		return
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, db.DeleteJobSlots, jobID); err != nil {
		writeError(c, err)
		return
	}
	if _, err := tx.ExecContext(ctx, db.DeleteJob, jobID); err != nil {
		writeError(c, err)
		return
	}
	if err := tx.Commit(); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": jobID})
}

// SubmitJob sends a draft to review, or straight to ready_for_print when the
// designer skips review. The direct path applies the same readiness checks
// as approval.
func (h *JobHandler) SubmitJob(c *gin.Context) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}

	var req SubmitJobRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
	}

	ctx := c.Request.Context()

	if !req.SkipReview {
		job, err := core.Transition(ctx, h.db, jobID, core.StatusPendingReview, core.ActorDesigner, nil)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, job)
		return
	}

	job, err := h.release(ctx, jobID, core.ActorDesigner)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// ApproveJob is the reviewer's sign-off: pending_review to ready_for_print.
func (h *JobHandler) ApproveJob(c *gin.Context) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}

	job, err := h.release(c.Request.Context(), jobID, core.ActorReviewer)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// release moves a job to ready_for_print after checking it is actually
// printable: every slot carries a label asset and the composed PDF exists.
func (h *JobHandler) release(ctx context.Context, jobID int64, actor core.Actor) (*db.Job, error) {
	job, err := db.Jobs.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.ComposedPDFPath == "" {
		return nil, fmt.Errorf("%w: composed PDF not uploaded", core.ErrJobNotReady)
	}

	slots, err := db.Slots.ListJobSlots(ctx, jobID)
	if err != nil {
		return nil, err
	}
	for _, s := range slots {
		if s.LabelAssetPath == "" {
			return nil, fmt.Errorf("%w: slot %s has no label asset", core.ErrJobNotReady, s.TemplateSlotID)
		}
	}

	return core.Transition(ctx, h.db, jobID, core.StatusReadyForPrint, actor,
		func(tx *sql.Tx, job *db.Job, now time.Time) error {
			_, err := tx.ExecContext(ctx, "UPDATE jobs SET submitted_at = ? WHERE id = ?", now, jobID)
			return err
		})
}

// ReprintJob creates a new job from a failed one. Open to designers and
// operators alike: reprints are usually requested at the printer.
func (h *JobHandler) ReprintJob(c *gin.Context) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}

	var req ReprintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A reprint reason is required"})
		return
	}

	job, err := h.reprints.Create(c.Request.Context(), jobID, req.Reason, middleware.UserIDFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

func (h *JobHandler) UploadComposedPDF(c *gin.Context) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	job, err := db.Jobs.GetJobByID(ctx, jobID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !jobEditable(job) {
		c.JSON(http.StatusConflict, gin.H{
			"error":          "Job is no longer editable",
			"current_status": job.Status,
		})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A file upload is required"})
		return
	}

	if err := os.MkdirAll(h.composedDir, 0755); err != nil {
		writeError(c, err)
		return
	}

	path := filepath.Join(h.composedDir, fmt.Sprintf("job_%d.pdf", jobID))
	if err := c.SaveUploadedFile(file, path); err != nil {
		writeError(c, err)
		return
	}

	if _, err := h.db.ExecContext(ctx,
		"UPDATE jobs SET composed_pdf_path = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		path, jobID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"composed_pdf_path": path})
}

func (h *JobHandler) UploadSlotAsset(c *gin.Context) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}
	slotID, err := strconv.ParseInt(c.Param("slotId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid slot id"})
		return
	}

	ctx := c.Request.Context()
	job, err := db.Jobs.GetJobByID(ctx, jobID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !jobEditable(job) {
		c.JSON(http.StatusConflict, gin.H{
			"error":          "Job is no longer editable",
			"current_status": job.Status,
		})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A file upload is required"})
		return
	}

	dir := filepath.Join(h.assetDir, fmt.Sprintf("job_%d", jobID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		writeError(c, err)
		return
	}

	path := filepath.Join(dir, fmt.Sprintf("slot_%d%s", slotID, filepath.Ext(file.Filename)))
	if err := c.SaveUploadedFile(file, path); err != nil {
		writeError(c, err)
		return
	}

	if err := db.Slots.UpdateSlotAsset(ctx, slotID, jobID, path); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"label_asset_path": path})
}

func jobEditable(job *db.Job) bool {
	s := core.JobStatus(job.Status)
	return s == core.StatusDraft || s == core.StatusPendingReview
}

func jobIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job id"})
		return 0, false
	}
	return id, true
}
