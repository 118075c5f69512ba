package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scentcraft/printflow/internal/api/middleware"
	"github.com/scentcraft/printflow/internal/core"
	"github.com/scentcraft/printflow/internal/db"
)

type CreatePrinterRequest struct {
	Name          string `json:"name" binding:"required"`
	Location      string `json:"location"`
	HotFolderPath string `json:"hot_folder_path"`
}

type UpdatePrinterRequest struct {
	Name          *string `json:"name"`
	Location      *string `json:"location"`
	HotFolderPath *string `json:"hot_folder_path"`
}

// PrinterResponse carries the derived online flag. The stored is_online
// column only tracks the last heartbeat write; staleness is computed per
// request so a dead agent shows offline without any background sweep.
type PrinterResponse struct {
	*db.Printer
	Online bool `json:"online"`
}

type PrinterHandler struct {
	bridge *core.AgentSyncBridge
}

func NewPrinterHandler(bridge *core.AgentSyncBridge) *PrinterHandler {
	return &PrinterHandler{bridge: bridge}
}

func (h *PrinterHandler) RegisterRoutes(r *gin.RouterGroup) {
	admin := middleware.RequireRole(middleware.RoleAdmin)

	r.GET("/printers", h.ListPrinters)
	r.GET("/printers/:id", h.GetPrinter)
	r.POST("/printers", admin, h.CreatePrinter)
	r.PUT("/printers/:id", admin, h.UpdatePrinter)
	r.DELETE("/printers/:id", admin, h.DeletePrinter)
	r.POST("/printers/:id/rotate-key", admin, h.RotateAPIKey)
}

func (h *PrinterHandler) ListPrinters(c *gin.Context) {
	printers, err := db.Printers.ListPrinters(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	now := time.Now().UTC()
	out := make([]*PrinterResponse, 0, len(printers))
	for _, p := range printers {
		out = append(out, &PrinterResponse{Printer: p, Online: h.bridge.PrinterOnline(p, now)})
	}

	c.JSON(http.StatusOK, gin.H{"printers": out, "count": len(out)})
}

func (h *PrinterHandler) GetPrinter(c *gin.Context) {
	printer, err := db.Printers.GetPrinterByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, &PrinterResponse{
		Printer: printer,
		Online:  h.bridge.PrinterOnline(printer, time.Now().UTC()),
	})
}

// CreatePrinter registers a printer and mints its agent API key. The key is
// returned once here and never again; rotate it if lost.
func (h *PrinterHandler) CreatePrinter(c *gin.Context) {
	var req CreatePrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Printer name is required"})
		return
	}

	printer := &db.Printer{
		ID:            uuid.New().String(),
		Name:          req.Name,
		Location:      req.Location,
		APIKey:        uuid.New().String(),
		HotFolderPath: req.HotFolderPath,
	}

	if err := db.Printers.CreatePrinter(c.Request.Context(), printer); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"printer": printer,
		"api_key": printer.APIKey,
	})
}

func (h *PrinterHandler) UpdatePrinter(c *gin.Context) {
	var req UpdatePrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	ctx := c.Request.Context()
	printer, err := db.Printers.GetPrinterByID(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	if req.Name != nil {
		printer.Name = *req.Name
	}
	if req.Location != nil {
		printer.Location = *req.Location
	}
	if req.HotFolderPath != nil {
		printer.HotFolderPath = *req.HotFolderPath
	}

	if err := db.Printers.UpdatePrinter(ctx, printer); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, &PrinterResponse{
		Printer: printer,
		Online:  h.bridge.PrinterOnline(printer, time.Now().UTC()),
	})
}

func (h *PrinterHandler) DeletePrinter(c *gin.Context) {
	id := c.Param("id")

	if _, err := db.Printers.GetPrinterByID(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	if err := db.Printers.DeletePrinter(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (h *PrinterHandler) RotateAPIKey(c *gin.Context) {
	ctx := c.Request.Context()
	printer, err := db.Printers.GetPrinterByID(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	newKey := uuid.New().String()
	if err := db.Printers.RotateAPIKey(ctx, printer.ID, newKey); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"printer_id": printer.ID, "api_key": newKey})
}
