package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/scentcraft/printflow/internal/db"
	"github.com/scentcraft/printflow/internal/webhook"
)

type WebhookRequest struct {
	Name    string   `json:"name" binding:"required"`
	URL     string   `json:"url" binding:"required,url"`
	Secret  string   `json:"secret"`
	Events  []string `json:"events" binding:"required,min=1"`
	Enabled *bool    `json:"enabled"`
}

type WebhookHandler struct{}

func NewWebhookHandler() *WebhookHandler {
	return &WebhookHandler{}
}

func (h *WebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/webhooks", h.ListWebhooks)
	r.GET("/webhooks/:id", h.GetWebhook)
	r.POST("/webhooks", h.CreateWebhook)
	r.PUT("/webhooks/:id", h.UpdateWebhook)
	r.DELETE("/webhooks/:id", h.DeleteWebhook)
}

func (h *WebhookHandler) ListWebhooks(c *gin.Context) {
	webhooks, err := db.Webhooks.ListWebhooks(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"webhooks": webhooks, "count": len(webhooks)})
}

func (h *WebhookHandler) GetWebhook(c *gin.Context) {
	id, ok := webhookIDParam(c)
	if !ok {
		return
	}

	wh, err := db.Webhooks.GetWebhookByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, wh)
}

func (h *WebhookHandler) CreateWebhook(c *gin.Context) {
	req, eventsJSON, ok := bindWebhookRequest(c)
	if !ok {
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	wh := &db.Webhook{
		Name:       req.Name,
		URL:        req.URL,
		Secret:     req.Secret,
		EventsJSON: eventsJSON,
		Enabled:    enabled,
	}

	if err := db.Webhooks.CreateWebhook(c.Request.Context(), wh); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, wh)
}

func (h *WebhookHandler) UpdateWebhook(c *gin.Context) {
	id, ok := webhookIDParam(c)
	if !ok {
		return
	}

	req, eventsJSON, ok := bindWebhookRequest(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	wh, err := db.Webhooks.GetWebhookByID(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}

	wh.Name = req.Name
	wh.URL = req.URL
	wh.Secret = req.Secret
	wh.EventsJSON = eventsJSON
	if req.Enabled != nil {
		wh.Enabled = *req.Enabled
	}

	if err := db.Webhooks.UpdateWebhook(ctx, wh); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, wh)
}

func (h *WebhookHandler) DeleteWebhook(c *gin.Context) {
	id, ok := webhookIDParam(c)
	if !ok {
		return
	}

	if _, err := db.Webhooks.GetWebhookByID(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	if err := db.Webhooks.DeleteWebhook(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func bindWebhookRequest(c *gin.Context) (*WebhookRequest, string, bool) {
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return nil, "", false
	}

	for _, e := range req.Events {
		if !webhook.ValidEvent(e) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown event: " + e})
			return nil, "", false
		}
	}

	eventsJSON, err := json.Marshal(req.Events)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return nil, "", false
	}

	return &req, string(eventsJSON), true
}

func webhookIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook id"})
		return 0, false
	}
	return id, true
}
