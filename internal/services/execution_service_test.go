package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"pulseguard/internal/models"

	"gorm.io/gorm"
)

func newExecFixture(t *testing.T) (*ExecutionService, *AuditService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	audit := NewAuditService(db, quietLogger())
	execs := NewExecutionService(db, quietLogger(), audit, nil)
	execs.SetSynchronous()
	return execs, audit, db
}

func seedPlaybookWithSteps(t *testing.T, db *gorm.DB, steps []models.PlaybookStep) (*models.Playbook, *models.Service) {
	t.Helper()
	svc := models.Service{Name: "worker-prod", IntervalSeconds: 60, AlertThreshold: 3, Enabled: true}
	if err := db.Create(&svc).Error; err != nil {
		t.Fatalf("create service: %v", err)
	}
	pb := models.Playbook{Name: "restart-worker", Enabled: true}
	if err := db.Create(&pb).Error; err != nil {
		t.Fatalf("create playbook: %v", err)
	}
	for i := range steps {
		steps[i].PlaybookID = pb.ID
		if err := db.Create(&steps[i]).Error; err != nil {
			t.Fatalf("create step: %v", err)
		}
	}
	return &pb, &svc
}

func TestApproveRunsStepsAndCompletes(t *testing.T) {
	execs, audit, db := newExecFixture(t)
	ctx := context.Background()

	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("restarted"))
	}))
	defer server.Close()

	pb, svc := seedPlaybookWithSteps(t, db, []models.PlaybookStep{
		{StepIndex: 0, Name: "restart", Type: models.StepTypeHTTPRequest, Params: map[string]interface{}{"url": server.URL, "method": "POST"}, TimeoutSeconds: 5},
		{StepIndex: 1, Name: "settle", Type: models.StepTypeWait, Params: map[string]interface{}{"seconds": 1}, TimeoutSeconds: 5},
	})

	exec, err := execs.CreateExecution(ctx, pb.ID, svc.ID, nil)
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}
	if exec.Status != models.ExecutionPendingApproval {
		t.Fatalf("initial status = %s", exec.Status)
	}

	if !execs.ApprovePlaybookExecution(ctx, exec.ID) {
		t.Fatal("approve refused")
	}
	if hits != 1 {
		t.Fatalf("http step ran %d times, want 1", hits)
	}

	done, err := execs.GetExecution(ctx, exec.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if done.Status != models.ExecutionCompleted {
		t.Fatalf("status = %s, want completed", done.Status)
	}
	if done.FinishedAt == nil {
		t.Fatal("finished_at not set")
	}

	entries, err := audit.GetForExecution(ctx, exec.ID, 0)
	if err != nil {
		t.Fatalf("audit read: %v", err)
	}
	var types []models.ActionType
	for _, e := range entries {
		types = append(types, e.ActionType)
	}
	want := []models.ActionType{
		models.ActionExecutionStarted,
		models.ActionStepCompleted,
		models.ActionStepCompleted,
		models.ActionExecutionCompleted,
	}
	if len(types) != len(want) {
		t.Fatalf("audit trail = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("audit trail = %v, want %v", types, want)
		}
	}
}

func TestStepFailureStopsExecution(t *testing.T) {
	execs, audit, db := newExecFixture(t)
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	var secondRan bool
	after := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondRan = true
	}))
	defer after.Close()

	pb, svc := seedPlaybookWithSteps(t, db, []models.PlaybookStep{
		{StepIndex: 0, Name: "restart", Type: models.StepTypeHTTPRequest, Params: map[string]interface{}{"url": server.URL}, TimeoutSeconds: 5},
		{StepIndex: 1, Name: "verify", Type: models.StepTypeHTTPRequest, Params: map[string]interface{}{"url": after.URL}, TimeoutSeconds: 5},
	})

	exec, err := execs.CreateExecution(ctx, pb.ID, svc.ID, nil)
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}
	if !execs.ApprovePlaybookExecution(ctx, exec.ID) {
		t.Fatal("approve refused")
	}
	if secondRan {
		t.Fatal("step after a failure must not run")
	}

	done, err := execs.GetExecution(ctx, exec.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if done.Status != models.ExecutionFailed {
		t.Fatalf("status = %s, want failed", done.Status)
	}

	entries, err := audit.GetByActionType(ctx, models.ActionStepFailed, 0)
	if err != nil {
		t.Fatalf("audit read: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("step_failed entries = %d, want 1", len(entries))
	}
	if _, ok := entries[0].Details["error_message"]; !ok {
		t.Fatalf("step_failed entry missing error_message: %+v", entries[0].Details)
	}
}

func TestApproveOnlyOnce(t *testing.T) {
	execs, _, db := newExecFixture(t)
	ctx := context.Background()

	pb, svc := seedPlaybookWithSteps(t, db, nil)
	exec, err := execs.CreateExecution(ctx, pb.ID, svc.ID, nil)
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}

	if !execs.ApprovePlaybookExecution(ctx, exec.ID) {
		t.Fatal("first approve refused")
	}
	if execs.ApprovePlaybookExecution(ctx, exec.ID) {
		t.Fatal("second approve must be a no-op")
	}
}

func TestCancelOnlyFromPending(t *testing.T) {
	execs, _, db := newExecFixture(t)
	ctx := context.Background()

	pb, svc := seedPlaybookWithSteps(t, db, nil)
	exec, err := execs.CreateExecution(ctx, pb.ID, svc.ID, nil)
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}

	if !execs.CancelPlaybookExecution(ctx, exec.ID) {
		t.Fatal("cancel refused")
	}
	done, _ := execs.GetExecution(ctx, exec.ID)
	if done.Status != models.ExecutionCancelled {
		t.Fatalf("status = %s, want cancelled", done.Status)
	}

	// Terminal states do not move.
	if execs.CancelPlaybookExecution(ctx, exec.ID) {
		t.Fatal("cancel of a cancelled execution must be a no-op")
	}
	if execs.ApprovePlaybookExecution(ctx, exec.ID) {
		t.Fatal("approve of a cancelled execution must be a no-op")
	}
}

func TestUnsupportedStepTypeFailsExecution(t *testing.T) {
	execs, _, db := newExecFixture(t)
	ctx := context.Background()

	pb, svc := seedPlaybookWithSteps(t, db, []models.PlaybookStep{
		{StepIndex: 0, Name: "mystery", Type: "teleport", TimeoutSeconds: 5},
	})

	exec, err := execs.CreateExecution(ctx, pb.ID, svc.ID, nil)
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}
	if !execs.ApprovePlaybookExecution(ctx, exec.ID) {
		t.Fatal("approve refused")
	}

	done, _ := execs.GetExecution(ctx, exec.ID)
	if done.Status != models.ExecutionFailed {
		t.Fatalf("status = %s, want failed", done.Status)
	}
}
