package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/scentcraft/printflow/internal/archive"
	"github.com/scentcraft/printflow/internal/db"
)

type ArchiveHandler struct {
	archiver *archive.Archiver
}

func NewArchiveHandler(archiver *archive.Archiver) *ArchiveHandler {
	return &ArchiveHandler{archiver: archiver}
}

func (h *ArchiveHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/archive", h.ListRecords)
	r.POST("/archive/run", h.TriggerArchive)
}

func (h *ArchiveHandler) ListRecords(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if parsed, err := parseLimit(v); err == nil {
			limit = parsed
		}
	}
	offset := 0
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			offset = parsed
		}
	}

	records, err := db.Archive.ListArchiveRecords(c.Request.Context(), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

// TriggerArchive runs one sweep immediately instead of waiting for the
// scheduled interval.
func (h *ArchiveHandler) TriggerArchive(c *gin.Context) {
	archived, err := h.archiver.RunArchive(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"archived": archived})
}
