package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"pulseguard/internal/models"
	"pulseguard/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Service{}, &models.Heartbeat{}, &models.Alert{},
		&models.Playbook{}, &models.PlaybookStep{}, &models.Trigger{},
		&models.PlaybookExecution{}, &models.ApprovalRequest{}, &models.AuditLogEntry{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

type nopNotifier struct{}

func (nopNotifier) PostMessage(context.Context, string, string, []services.SlackBlock) (string, error) {
	return "1700000000.000001", nil
}

func (nopNotifier) UpdateMessage(context.Context, string, string, string, []services.SlackBlock) error {
	return nil
}

func TestServiceCRUDAndHeartbeatIngest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	beats := services.NewHeartbeatService(db, quietLogger())

	r := gin.New()
	api := r.Group("/api")
	RegisterServiceRoutes(api, NewServiceHandler(beats, quietLogger()))
	hh := NewHeartbeatHandler(beats, quietLogger())
	RegisterIngestRoutes(api, hh)
	RegisterHeartbeatRoutes(api, hh)

	// Create a service.
	body := `{"name":"worker-prod","interval_seconds":60,"grace_seconds":30,"alert_threshold":3}`
	req, _ := http.NewRequest("POST", "/api/services", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var created models.Service
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Missing interval fails binding.
	req, _ = http.NewRequest("POST", "/api/services", strings.NewReader(`{"name":"bad"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing interval status = %d, want 400", w.Code)
	}

	// Ingest a heartbeat by name.
	req, _ = http.NewRequest("POST", "/api/heartbeats/worker-prod", strings.NewReader(`{"version":"1.4"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("ingest status = %d, body = %s", w.Code, w.Body.String())
	}

	// Heartbeat for an unknown service.
	req, _ = http.NewRequest("POST", "/api/heartbeats/ghost", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown service ingest status = %d, want 404", w.Code)
	}

	// Latest heartbeat query.
	req, _ = http.NewRequest("GET", "/api/services/1/heartbeats/latest", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("latest status = %d, body = %s", w.Code, w.Body.String())
	}

	// Non-numeric id.
	req, _ = http.NewRequest("GET", "/api/services/abc/heartbeats/latest", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d, want 400", w.Code)
	}
}

func TestSlackInteractionWebhook(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	log := quietLogger()

	audit := services.NewAuditService(db, log)
	execs := services.NewExecutionService(db, log, audit, nil)
	execs.SetSynchronous()
	approvals := services.NewApprovalService(db, log, nopNotifier{}, "C123", execs, audit, nil)

	// Seed an execution awaiting approval.
	svc := models.Service{Name: "worker-prod", IntervalSeconds: 60, AlertThreshold: 3, Enabled: true}
	if err := db.Create(&svc).Error; err != nil {
		t.Fatalf("seed service: %v", err)
	}
	pb := models.Playbook{Name: "restart-worker", Enabled: true}
	if err := db.Create(&pb).Error; err != nil {
		t.Fatalf("seed playbook: %v", err)
	}
	exec, err := execs.CreateExecution(context.Background(), pb.ID, svc.ID, nil)
	if err != nil {
		t.Fatalf("seed execution: %v", err)
	}
	if result := approvals.SendApprovalRequest(context.Background(), exec.ID, pb.Name, svc.Name, nil, nil); !result.Success {
		t.Fatalf("send approval: %s", result.Message)
	}

	r := gin.New()
	h := NewApprovalHandler(approvals, log)
	// No signature middleware here; it has its own tests.
	r.POST("/webhooks/slack/interactions", h.SlackInteraction)

	post := func(payload string) *httptest.ResponseRecorder {
		form := url.Values{"payload": {payload}}
		req, _ := http.NewRequest("POST", "/webhooks/slack/interactions", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	// Approve via button click.
	w := post(`{"type":"block_actions","user":{"id":"U42"},"actions":[{"action_id":"approve_playbook","value":"1"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("interaction status = %d, body = %s", w.Code, w.Body.String())
	}
	var result services.ApprovalResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !result.Success {
		t.Fatalf("interaction failed: %s", result.Message)
	}

	// Second click on the same message reports the conflict.
	w = post(`{"type":"block_actions","user":{"id":"U43"},"actions":[{"action_id":"approve_playbook","value":"1"}]}`)
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Success {
		t.Fatal("double approve must fail")
	}
	if !strings.Contains(result.Message, "already approved") {
		t.Fatalf("message = %q", result.Message)
	}

	// Malformed payloads.
	w = post(`{"type":"message_action"}`)
	_ = json.Unmarshal(w.Body.Bytes(), &result)
	if result.Success || !strings.Contains(result.Message, "unsupported interaction type") {
		t.Fatalf("unexpected result for wrong type: %+v", result)
	}

	w = post(`not json`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed json status = %d, want 400", w.Code)
	}

	// Missing payload field entirely.
	req, _ := http.NewRequest("POST", "/webhooks/slack/interactions", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing payload status = %d, want 400", rec.Code)
	}
}

func TestPlaybookAndTriggerRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	log := quietLogger()

	playbooks := services.NewPlaybookService(db, log)
	triggers := services.NewTriggerService(db, log)
	execs := services.NewExecutionService(db, log, services.NewAuditService(db, log), nil)

	r := gin.New()
	api := r.Group("/api")
	RegisterPlaybookRoutes(api, NewPlaybookHandler(playbooks, triggers, execs, log))

	body := `{
		"name": "restart-worker",
		"description": "restart via admin endpoint",
		"steps": [
			{"name": "restart", "type": "http_request", "params": {"url": "http://example.internal/restart"}},
			{"name": "settle", "type": "wait", "params": {"seconds": 5}}
		]
	}`
	req, _ := http.NewRequest("POST", "/api/playbooks", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create playbook status = %d, body = %s", w.Code, w.Body.String())
	}

	// Bad step type is rejected.
	bad := `{"name":"weird","steps":[{"name":"x","type":"teleport"}]}`
	req, _ = http.NewRequest("POST", "/api/playbooks", strings.NewReader(bad))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code == http.StatusCreated {
		t.Fatal("playbook with unknown step type must be rejected")
	}

	// Attach a trigger.
	trig := `{"playbook_id":1,"service_glob_pattern":"worker-*","consecutive_failure_threshold":3}`
	req, _ = http.NewRequest("POST", "/api/triggers", strings.NewReader(trig))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create trigger status = %d, body = %s", w.Code, w.Body.String())
	}

	// Playbook referenced by a trigger refuses deletion.
	req, _ = http.NewRequest("DELETE", "/api/playbooks/1", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code == http.StatusOK {
		t.Fatal("playbook with triggers must not be deletable")
	}

	// Remove the trigger, then deletion succeeds.
	req, _ = http.NewRequest("DELETE", "/api/triggers/1", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("delete trigger status = %d, body = %s", w.Code, w.Body.String())
	}
	req, _ = http.NewRequest("DELETE", "/api/playbooks/1", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("delete playbook status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)

	r := gin.New()
	RegisterHealthRoutes(r, NewHealthHandler(db, quietLogger()))

	req, _ := http.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "healthy" {
		t.Fatalf("status = %q", resp.Status)
	}
	if resp.Services["database"].Status != "healthy" {
		t.Fatalf("database = %+v", resp.Services["database"])
	}

	req, _ = http.NewRequest("GET", "/ready", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("ready status = %d", w.Code)
	}
}
