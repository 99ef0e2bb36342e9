package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pulseguard/internal/metrics"
	"pulseguard/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ExecutionEngine is the contract the approval gate drives. The gate
// only reads execution status; all execution writes happen here.
type ExecutionEngine interface {
	GetExecution(ctx context.Context, id uint) (*models.PlaybookExecution, error)
	ApprovePlaybookExecution(ctx context.Context, id uint) bool
	CancelPlaybookExecution(ctx context.Context, id uint) bool
	UpdateExecutionStatus(ctx context.Context, id uint, status models.ExecutionStatus) error
}

// ExecutionService runs approved playbook executions step by step and
// records every lifecycle event in the audit log.
type ExecutionService struct {
	db         *gorm.DB
	logger     *logrus.Logger
	audit      *AuditService
	events     *EventHub
	httpClient *http.Client
	// async controls whether approved executions run in a goroutine.
	// Tests set it false to run inline.
	async bool
}

func NewExecutionService(db *gorm.DB, logger *logrus.Logger, audit *AuditService, events *EventHub) *ExecutionService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ExecutionService{
		db:         db,
		logger:     logger,
		audit:      audit,
		events:     events,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		async:      true,
	}
}

// SetSynchronous makes ApprovePlaybookExecution run the playbook inline
// instead of in a background goroutine.
func (s *ExecutionService) SetSynchronous() {
	s.async = false
}

// CreateExecution opens a new execution in pending_approval.
func (s *ExecutionService) CreateExecution(ctx context.Context, playbookID, serviceID uint, alertID *uint) (*models.PlaybookExecution, error) {
	exec := models.PlaybookExecution{
		PlaybookID: playbookID,
		ServiceID:  serviceID,
		AlertID:    alertID,
		Status:     models.ExecutionPendingApproval,
	}
	if err := s.db.WithContext(ctx).Create(&exec).Error; err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}
	return &exec, nil
}

// GetExecution loads one execution with its playbook, steps and service.
func (s *ExecutionService) GetExecution(ctx context.Context, id uint) (*models.PlaybookExecution, error) {
	var exec models.PlaybookExecution
	if err := s.db.WithContext(ctx).
		Preload("Playbook").
		Preload("Playbook.Steps", func(db *gorm.DB) *gorm.DB { return db.Order("step_index ASC") }).
		Preload("Service").
		First(&exec, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("execution %d not found", id)
		}
		return nil, fmt.Errorf("load execution %d: %w", id, err)
	}
	return &exec, nil
}

// ListExecutions returns recent executions, newest first.
func (s *ExecutionService) ListExecutions(ctx context.Context, limit int) ([]models.PlaybookExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	var execs []models.PlaybookExecution
	if err := s.db.WithContext(ctx).
		Preload("Playbook").
		Preload("Service").
		Order("id DESC").
		Limit(limit).
		Find(&execs).Error; err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	return execs, nil
}

// ApprovePlaybookExecution transitions pending_approval -> running and
// starts the step runner. Returns false when the execution is missing or
// not awaiting approval; the conditional update makes a double approve a
// no-op.
func (s *ExecutionService) ApprovePlaybookExecution(ctx context.Context, id uint) bool {
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&models.PlaybookExecution{}).
		Where("id = ? AND status = ?", id, models.ExecutionPendingApproval).
		Updates(map[string]interface{}{"status": models.ExecutionRunning, "started_at": now})
	if result.Error != nil {
		s.logger.Errorf("approve execution %d: %v", id, result.Error)
		return false
	}
	if result.RowsAffected == 0 {
		s.logger.Warnf("approve execution %d: not in pending_approval", id)
		return false
	}

	if s.async {
		go s.run(context.Background(), id)
	} else {
		s.run(ctx, id)
	}
	return true
}

// CancelPlaybookExecution transitions pending_approval -> cancelled.
func (s *ExecutionService) CancelPlaybookExecution(ctx context.Context, id uint) bool {
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&models.PlaybookExecution{}).
		Where("id = ? AND status = ?", id, models.ExecutionPendingApproval).
		Updates(map[string]interface{}{"status": models.ExecutionCancelled, "finished_at": now})
	if result.Error != nil {
		s.logger.Errorf("cancel execution %d: %v", id, result.Error)
		return false
	}
	if result.RowsAffected == 0 {
		s.logger.Warnf("cancel execution %d: not in pending_approval", id)
		return false
	}
	metrics.ExecutionsTotal.WithLabelValues(string(models.ExecutionCancelled)).Inc()
	s.events.Broadcast(EventExecutionUpdate, map[string]interface{}{
		"execution_id": id,
		"status":       models.ExecutionCancelled,
	})
	return true
}

// UpdateExecutionStatus sets an execution's status after validating it.
func (s *ExecutionService) UpdateExecutionStatus(ctx context.Context, id uint, status models.ExecutionStatus) error {
	if _, err := models.ParseExecutionStatus(string(status)); err != nil {
		return err
	}
	updates := map[string]interface{}{"status": status}
	if status.Terminal() {
		updates["finished_at"] = time.Now().UTC()
	}
	result := s.db.WithContext(ctx).Model(&models.PlaybookExecution{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("update execution %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("execution %d not found", id)
	}
	return nil
}

// run executes the playbook's steps in order. Step failure stops the run.
func (s *ExecutionService) run(ctx context.Context, id uint) {
	exec, err := s.GetExecution(ctx, id)
	if err != nil {
		s.logger.Errorf("run execution %d: %v", id, err)
		return
	}

	started := time.Now()
	s.audit.LogExecutionStarted(ctx, exec.ID, exec.Playbook.Name, exec.Service.Name)
	s.events.Broadcast(EventExecutionUpdate, map[string]interface{}{
		"execution_id": exec.ID,
		"status":       models.ExecutionRunning,
	})

	completed := 0
	for _, step := range exec.Playbook.Steps {
		stepStart := time.Now()
		output, err := s.runStep(ctx, exec, step)
		durationMs := time.Since(stepStart).Milliseconds()

		s.db.WithContext(ctx).Model(&models.PlaybookExecution{}).
			Where("id = ?", exec.ID).
			Update("current_step", step.StepIndex)

		if err != nil {
			msg := err.Error()
			s.audit.LogStepFailed(ctx, exec.ID, step.Name, step.StepIndex, &msg, &durationMs)
			if uerr := s.UpdateExecutionStatus(ctx, exec.ID, models.ExecutionFailed); uerr != nil {
				s.logger.Errorf("mark execution %d failed: %v", exec.ID, uerr)
			}
			s.audit.LogExecutionFailed(ctx, exec.ID, &step.Name, &msg)
			metrics.ExecutionsTotal.WithLabelValues(string(models.ExecutionFailed)).Inc()
			metrics.ExecutionDurationSeconds.WithLabelValues(exec.Playbook.Name).Observe(time.Since(started).Seconds())
			s.events.Broadcast(EventExecutionUpdate, map[string]interface{}{
				"execution_id": exec.ID,
				"status":       models.ExecutionFailed,
				"failed_step":  step.Name,
			})
			return
		}

		stepType := step.Type
		s.audit.LogStepCompleted(ctx, exec.ID, step.Name, step.StepIndex, &stepType, output, &durationMs)
		completed++
	}

	totalMs := time.Since(started).Milliseconds()
	if err := s.UpdateExecutionStatus(ctx, exec.ID, models.ExecutionCompleted); err != nil {
		s.logger.Errorf("mark execution %d completed: %v", exec.ID, err)
	}
	s.audit.LogExecutionCompleted(ctx, exec.ID, completed, &totalMs)
	metrics.ExecutionsTotal.WithLabelValues(string(models.ExecutionCompleted)).Inc()
	metrics.ExecutionDurationSeconds.WithLabelValues(exec.Playbook.Name).Observe(time.Since(started).Seconds())
	s.events.Broadcast(EventExecutionUpdate, map[string]interface{}{
		"execution_id": exec.ID,
		"status":       models.ExecutionCompleted,
	})
}

// runStep dispatches on step type. Config decode failures fail the step.
func (s *ExecutionService) runStep(ctx context.Context, exec *models.PlaybookExecution, step models.PlaybookStep) (*string, error) {
	timeout := time.Duration(step.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch step.Type {
	case models.StepTypeHTTPRequest:
		return s.runHTTPStep(ctx, step)
	case models.StepTypeWait:
		return s.runWaitStep(ctx, step)
	case models.StepTypeNotify:
		s.events.Broadcast(EventExecutionUpdate, map[string]interface{}{
			"execution_id": exec.ID,
			"step":         step.Name,
			"message":      stringParam(step.Params, "message"),
		})
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported step type %q", step.Type)
	}
}

func (s *ExecutionService) runHTTPStep(ctx context.Context, step models.PlaybookStep) (*string, error) {
	url := stringParam(step.Params, "url")
	if url == "" {
		return nil, fmt.Errorf("http_request step %q missing url", step.Name)
	}
	method := strings.ToUpper(stringParam(step.Params, "method"))
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if raw, ok := step.Params["body"]; ok {
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("encode body for step %q: %w", step.Name, err)
		}
		body = strings.NewReader(string(encoded))
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request for step %q: %w", step.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("step %q request failed: %w", step.Name, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("step %q returned status %d: %s", step.Name, resp.StatusCode, string(raw))
	}
	output := fmt.Sprintf("status %d: %s", resp.StatusCode, string(raw))
	return &output, nil
}

func (s *ExecutionService) runWaitStep(ctx context.Context, step models.PlaybookStep) (*string, error) {
	seconds := intParam(step.Params, "seconds")
	if seconds <= 0 {
		seconds = 1
	}
	select {
	case <-time.After(time.Duration(seconds) * time.Second):
		output := fmt.Sprintf("waited %ds", seconds)
		return &output, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func stringParam(params map[string]interface{}, key string) string {
	if params == nil {
		return ""
	}
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func intParam(params map[string]interface{}, key string) int {
	if params == nil {
		return 0
	}
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}
