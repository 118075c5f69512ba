package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scentcraft/printflow/internal/api/middleware"
	"github.com/scentcraft/printflow/internal/db"
)

type CreateTemplateSlotRequest struct {
	Name         string  `json:"name" binding:"required"`
	SlotPosition string  `json:"slot_position" binding:"required"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Width        float64 `json:"width" binding:"required"`
	Height       float64 `json:"height" binding:"required"`
	Rotation     float64 `json:"rotation"`
	ProductType  string  `json:"product_type"`
	DisplayOrder int     `json:"display_order"`
}

type CreateTemplateRequest struct {
	Name        string                      `json:"name" binding:"required"`
	Description string                      `json:"description"`
	BedWidthMM  float64                     `json:"bed_width_mm" binding:"required"`
	BedHeightMM float64                     `json:"bed_height_mm" binding:"required"`
	PDFPath     string                      `json:"pdf_path"`
	Slots       []CreateTemplateSlotRequest `json:"slots" binding:"required,min=1"`
}

type TemplateDetail struct {
	*db.Template
	Slots []*db.TemplateSlot `json:"slots"`
}

// TemplateHandler manages the jig template catalog. Slot geometry is stored
// and served as-is; composition happens design-side.
type TemplateHandler struct{}

func NewTemplateHandler() *TemplateHandler {
	return &TemplateHandler{}
}

func (h *TemplateHandler) RegisterRoutes(r *gin.RouterGroup) {
	admin := middleware.RequireRole(middleware.RoleAdmin)

	r.GET("/templates", h.ListTemplates)
	r.GET("/templates/:id", h.GetTemplate)
	r.POST("/templates", admin, h.CreateTemplate)
}

func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	templates, err := db.Templates.ListTemplates(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"templates": templates, "count": len(templates)})
}

func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	template, err := db.Templates.GetTemplateByID(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}

	slots, err := db.Templates.ListTemplateSlots(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, &TemplateDetail{Template: template, Slots: slots})
}

func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var req CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	template := &db.Template{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		BedWidthMM:  req.BedWidthMM,
		BedHeightMM: req.BedHeightMM,
		PDFPath:     req.PDFPath,
		IsActive:    true,
	}

	slots := make([]*db.TemplateSlot, 0, len(req.Slots))
	for _, s := range req.Slots {
		slots = append(slots, &db.TemplateSlot{
			ID:           uuid.New().String(),
			TemplateID:   template.ID,
			Name:         s.Name,
			SlotPosition: s.SlotPosition,
			X:            s.X,
			Y:            s.Y,
			Width:        s.Width,
			Height:       s.Height,
			Rotation:     s.Rotation,
			ProductType:  s.ProductType,
			DisplayOrder: s.DisplayOrder,
		})
	}

	if err := db.Templates.CreateTemplate(c.Request.Context(), template, slots); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, &TemplateDetail{Template: template, Slots: slots})
}
