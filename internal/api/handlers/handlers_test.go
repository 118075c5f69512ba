package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/scentcraft/printflow/internal/api/middleware"
	"github.com/scentcraft/printflow/internal/core"
	"github.com/scentcraft/printflow/internal/db"
)

const testAPIKey = "agent-key-1"

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	if err := db.Init(db.Config{Path: path}); err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	err := db.Printers.CreatePrinter(ctx, &db.Printer{
		ID:            "printer-1",
		Name:          "Front desk UV",
		APIKey:        testAPIKey,
		HotFolderPath: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("failed to create printer: %v", err)
	}

	// asRole injects user id 1; jobs.created_by references users(id), so the
	// row must exist for handlers that record the acting user.
	user := &db.User{Username: "operator-1", PasswordHash: "x", Role: middleware.RoleOperator}
	if err := db.Users.CreateUser(ctx, user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	template := &db.Template{ID: "template-1", Name: "12-up vial jig", BedWidthMM: 600, BedHeightMM: 400, IsActive: true}
	slots := []*db.TemplateSlot{
		{ID: "slot-1", TemplateID: "template-1", Name: "Slot 1", SlotPosition: "A1", Width: 90, Height: 50},
	}
	if err := db.Templates.CreateTemplate(ctx, template, slots); err != nil {
		t.Fatalf("failed to create template: %v", err)
	}

	return db.GetDB()
}

func createJobWithStatus(t *testing.T, database *sql.DB, status core.JobStatus, localPos int) int64 {
	t.Helper()

	ctx := context.Background()
	res, err := database.ExecContext(ctx, db.InsertJob,
		"printer-1", "template-1", string(status), 1, 0,
		"Gala favors", "Spring Gala", nil, 1, "", nil, nil, "", "", nil)
	if err != nil {
		t.Fatalf("failed to create job: %v", err)
	}
	id, _ := res.LastInsertId()

	if localPos > 0 {
		if _, err := database.ExecContext(ctx, db.SetLocalQueuePosition, localPos, id); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := database.ExecContext(ctx, db.InsertJobSlot,
		id, "slot-1", "A1", "Lavender 10ml", "/assets/label.png", "", "Guest", "",
		"frag-1", "Lavender", "vial", "QR1"); err != nil {
		t.Fatal(err)
	}

	return id
}

func asRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextRole, role)
		c.Set(middleware.ContextUserID, int64(1))
		c.Next()
	}
}

func newOperatorRouter(t *testing.T, database *sql.DB) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	queue := core.NewQueueManager(database)
	actions := core.NewOperatorActions(database, queue, nil)

	router := gin.New()
	api := router.Group("/api")
	api.Use(asRole(middleware.RoleOperator))
	NewOperatorHandler(queue, actions).RegisterRoutes(api)
	return router
}

func newAgentRouter(t *testing.T, database *sql.DB) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	queue := core.NewQueueManager(database)
	bridge := core.NewAgentSyncBridge(database, queue, nil, 0)

	router := gin.New()
	agent := router.Group("/api/agent")
	agent.Use(middleware.AgentAuth())
	NewAgentHandler(bridge).RegisterRoutes(agent)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func agentHeaders() map[string]string {
	return map[string]string{"X-API-Key": testAPIKey}
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode body %q: %v", w.Body.String(), err)
	}
	return out
}

func TestMarkDownloadedIdempotent(t *testing.T) {
	database := setupTestDB(t)
	router := newAgentRouter(t, database)

	jobID := createJobWithStatus(t, database, core.StatusReadyForPrint, 0)
	path := fmt.Sprintf("/api/agent/jobs/%d/mark-downloaded", jobID)

	w := doJSON(t, router, "POST", path, nil, agentHeaders())
	if w.Code != http.StatusOK {
		t.Fatalf("first mark-downloaded = %d: %s", w.Code, w.Body.String())
	}
	first := decodeBody(t, w)
	if first["status"] != "queued_local" {
		t.Errorf("status = %v, want queued_local", first["status"])
	}

	// Agent retry after crash: same call, same answer, no duplicate position.
	w = doJSON(t, router, "POST", path, nil, agentHeaders())
	if w.Code != http.StatusOK {
		t.Fatalf("repeat mark-downloaded = %d: %s", w.Code, w.Body.String())
	}
	second := decodeBody(t, w)
	if second["local_queue_position"] != first["local_queue_position"] {
		t.Errorf("position changed on repeat: %v -> %v",
			first["local_queue_position"], second["local_queue_position"])
	}
}

func TestMarkDownloadedWrongStatusConflict(t *testing.T) {
	database := setupTestDB(t)
	router := newAgentRouter(t, database)

	jobID := createJobWithStatus(t, database, core.StatusDraft, 0)

	w := doJSON(t, router, "POST", fmt.Sprintf("/api/agent/jobs/%d/mark-downloaded", jobID), nil, agentHeaders())
	if w.Code != http.StatusConflict {
		t.Fatalf("code = %d, want 409: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["current_status"] != "draft" {
		t.Errorf("current_status = %v, want draft", body["current_status"])
	}
}

func TestAgentAuthRejectsBadKey(t *testing.T) {
	database := setupTestDB(t)
	router := newAgentRouter(t, database)

	w := doJSON(t, router, "GET", "/api/agent/jobs", nil, map[string]string{"X-API-Key": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d, want 401", w.Code)
	}

	w = doJSON(t, router, "GET", "/api/agent/jobs", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("code without key = %d, want 401", w.Code)
	}
}

func TestAgentHeartbeat(t *testing.T) {
	database := setupTestDB(t)
	router := newAgentRouter(t, database)

	w := doJSON(t, router, "POST", "/api/agent/heartbeat", nil, agentHeaders())
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["printer_id"] != "printer-1" {
		t.Errorf("printer_id = %v", body["printer_id"])
	}
}

func TestFailWithoutReasonRejected(t *testing.T) {
	database := setupTestDB(t)
	router := newOperatorRouter(t, database)

	jobID := createJobWithStatus(t, database, core.StatusSentToPrinter, 1)

	w := doJSON(t, router, "POST", fmt.Sprintf("/api/operator/jobs/%d/fail", jobID),
		map[string]string{}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestPrintWhileBusyConflict(t *testing.T) {
	database := setupTestDB(t)
	router := newOperatorRouter(t, database)

	createJobWithStatus(t, database, core.StatusSentToPrinter, 1)
	waiting := createJobWithStatus(t, database, core.StatusAwaitingOperator, 2)

	w := doJSON(t, router, "POST", fmt.Sprintf("/api/operator/jobs/%d/print", waiting), nil, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("code = %d, want 409: %s", w.Code, w.Body.String())
	}
}

func TestReorderStaleConflict(t *testing.T) {
	database := setupTestDB(t)
	router := newOperatorRouter(t, database)

	a := createJobWithStatus(t, database, core.StatusQueuedLocal, 1)
	createJobWithStatus(t, database, core.StatusQueuedLocal, 2)

	w := doJSON(t, router, "PUT", "/api/printers/printer-1/queue/order",
		map[string][]int64{"job_ids": {a}}, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("code = %d, want 409: %s", w.Code, w.Body.String())
	}
}

func TestOperatorQueueOrdering(t *testing.T) {
	database := setupTestDB(t)
	router := newOperatorRouter(t, database)

	second := createJobWithStatus(t, database, core.StatusQueuedLocal, 2)
	first := createJobWithStatus(t, database, core.StatusQueuedLocal, 1)

	w := doJSON(t, router, "GET", "/api/printers/printer-1/queue", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Jobs []struct {
			ID int64 `json:"id"`
		} `json:"jobs"`
		Next struct {
			ID int64 `json:"id"`
		} `json:"next"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Jobs) != 2 || body.Jobs[0].ID != first || body.Jobs[1].ID != second {
		t.Errorf("queue order wrong: %+v", body.Jobs)
	}
	if body.Next.ID != first {
		t.Errorf("next = %d, want %d", body.Next.ID, first)
	}
}

func TestOperatorRoleRequired(t *testing.T) {
	database := setupTestDB(t)

	gin.SetMode(gin.TestMode)
	queue := core.NewQueueManager(database)
	actions := core.NewOperatorActions(database, queue, nil)

	router := gin.New()
	api := router.Group("/api")
	api.Use(asRole(middleware.RoleDesigner))
	NewOperatorHandler(queue, actions).RegisterRoutes(api)

	jobID := createJobWithStatus(t, database, core.StatusQueuedLocal, 1)

	w := doJSON(t, router, "POST", fmt.Sprintf("/api/operator/jobs/%d/jig-loaded", jobID), nil, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("code = %d, want 403", w.Code)
	}
}

func TestReprintEndpoint(t *testing.T) {
	database := setupTestDB(t)

	gin.SetMode(gin.TestMode)
	reprints := core.NewReprintFactory(database)
	router := gin.New()
	api := router.Group("/api")
	api.Use(asRole(middleware.RoleOperator))
	NewJobHandler(database, reprints, t.TempDir(), t.TempDir()).RegisterRoutes(api)

	failed := createJobWithStatus(t, database, core.StatusFailed, 0)

	w := doJSON(t, router, "POST", fmt.Sprintf("/api/jobs/%d/reprint", failed),
		map[string]string{"reason": "smeared vials"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("code = %d, want 201: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["reprint_of"] == nil {
		t.Error("reprint_of missing")
	}

	// Reprinting a non-failed job is a client error.
	draft := createJobWithStatus(t, database, core.StatusDraft, 0)
	w = doJSON(t, router, "POST", fmt.Sprintf("/api/jobs/%d/reprint", draft),
		map[string]string{"reason": "nope"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400: %s", w.Code, w.Body.String())
	}
}
