package services

import (
	"context"
	"time"

	"pulseguard/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Truncation caps for oversized detail strings. Truncation is a storage
// bound, lossy and intentional, not an error.
const (
	auditOutputCap       = 4096
	auditErrorMessageCap = 2048
)

// AuditService is the append-only record of every state transition in a
// playbook execution's lifecycle. Writes are best-effort: a failed write
// is logged and swallowed so it never aborts the caller's primary
// operation.
type AuditService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewAuditService(db *gorm.DB, logger *logrus.Logger) *AuditService {
	if logger == nil {
		logger = logrus.New()
	}
	return &AuditService{db: db, logger: logger}
}

// Record appends one audit entry. Returns nil (never an error) when the
// store write fails; callers treat audit failure as non-fatal.
func (s *AuditService) Record(ctx context.Context, executionID uint, actionType models.ActionType, details map[string]interface{}, actor *string) *models.AuditLogEntry {
	if _, err := models.ParseActionType(string(actionType)); err != nil {
		s.logger.Warnf("audit: refusing to record entry for execution %d: %v", executionID, err)
		return nil
	}

	entry := models.AuditLogEntry{
		ExecutionID: executionID,
		ActionType:  actionType,
		Details:     truncateDetails(details),
		Actor:       actor,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logger.Warnf("audit: failed to record %s for execution %d: %v", actionType, executionID, err)
		return nil
	}
	return &entry
}

// truncateDetails applies the storage caps to known oversized string
// fields. Keys whose values were never supplied are absent, not null.
func truncateDetails(details map[string]interface{}) map[string]interface{} {
	if details == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(details))
	for k, v := range details {
		out[k] = v
	}
	if v, ok := out["output"].(string); ok && len(v) > auditOutputCap {
		out["output"] = v[:auditOutputCap]
	}
	if v, ok := out["error_message"].(string); ok && len(v) > auditErrorMessageCap {
		out["error_message"] = v[:auditErrorMessageCap]
	}
	return out
}

// LogExecutionStarted records that the engine began running an execution.
func (s *AuditService) LogExecutionStarted(ctx context.Context, executionID uint, playbookName, serviceName string) *models.AuditLogEntry {
	return s.Record(ctx, executionID, models.ActionExecutionStarted, map[string]interface{}{
		"playbook_name": playbookName,
		"service_name":  serviceName,
	}, nil)
}

// LogStepCompleted records a successful step. stepType, output and
// durationMs are optional and omitted from details when not supplied.
func (s *AuditService) LogStepCompleted(ctx context.Context, executionID uint, stepName string, stepIndex int, stepType, output *string, durationMs *int64) *models.AuditLogEntry {
	details := map[string]interface{}{
		"step_name":  stepName,
		"step_index": stepIndex,
	}
	if stepType != nil {
		details["step_type"] = *stepType
	}
	if output != nil {
		details["output"] = *output
	}
	if durationMs != nil {
		details["duration_ms"] = *durationMs
	}
	return s.Record(ctx, executionID, models.ActionStepCompleted, details, nil)
}

// LogStepFailed records a failed step. errorMessage and durationMs are
// optional.
func (s *AuditService) LogStepFailed(ctx context.Context, executionID uint, stepName string, stepIndex int, errorMessage *string, durationMs *int64) *models.AuditLogEntry {
	details := map[string]interface{}{
		"step_name":  stepName,
		"step_index": stepIndex,
	}
	if errorMessage != nil {
		details["error_message"] = *errorMessage
	}
	if durationMs != nil {
		details["duration_ms"] = *durationMs
	}
	return s.Record(ctx, executionID, models.ActionStepFailed, details, nil)
}

// LogApprovalRequested records that a human approval gate was opened.
func (s *AuditService) LogApprovalRequested(ctx context.Context, executionID uint, requestID string, expiresAt *time.Time) *models.AuditLogEntry {
	details := map[string]interface{}{
		"request_id": requestID,
	}
	if expiresAt != nil {
		details["expires_at"] = expiresAt.UTC().Format(time.RFC3339)
	}
	return s.Record(ctx, executionID, models.ActionApprovalRequested, details, nil)
}

// LogApproved records an approval decision. reason is optional.
func (s *AuditService) LogApproved(ctx context.Context, executionID uint, decidedBy string, reason *string) *models.AuditLogEntry {
	details := map[string]interface{}{}
	if reason != nil {
		details["reason"] = *reason
	}
	return s.Record(ctx, executionID, models.ActionApproved, details, &decidedBy)
}

// LogRejected records a rejection decision. reason is optional.
func (s *AuditService) LogRejected(ctx context.Context, executionID uint, decidedBy string, reason *string) *models.AuditLogEntry {
	details := map[string]interface{}{}
	if reason != nil {
		details["reason"] = *reason
	}
	return s.Record(ctx, executionID, models.ActionRejected, details, &decidedBy)
}

// LogExecutionCompleted records a successful terminal state. durationMs
// is optional.
func (s *AuditService) LogExecutionCompleted(ctx context.Context, executionID uint, stepsCompleted int, durationMs *int64) *models.AuditLogEntry {
	details := map[string]interface{}{
		"steps_completed": stepsCompleted,
	}
	if durationMs != nil {
		details["duration_ms"] = *durationMs
	}
	return s.Record(ctx, executionID, models.ActionExecutionCompleted, details, nil)
}

// LogExecutionFailed records a failed terminal state. errorMessage is
// optional.
func (s *AuditService) LogExecutionFailed(ctx context.Context, executionID uint, failedStep *string, errorMessage *string) *models.AuditLogEntry {
	details := map[string]interface{}{}
	if failedStep != nil {
		details["failed_step"] = *failedStep
	}
	if errorMessage != nil {
		details["error_message"] = *errorMessage
	}
	return s.Record(ctx, executionID, models.ActionExecutionFailed, details, nil)
}

// GetForExecution returns the entries for one execution in chronological
// order. Rows whose action_type fails enum validation are skipped with a
// warning; the store may contain legacy or corrupt rows and reads must be
// resilient.
func (s *AuditService) GetForExecution(ctx context.Context, executionID uint, limit int) ([]models.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []models.AuditLogEntry
	if err := s.db.WithContext(ctx).
		Where("execution_id = ?", executionID).
		Order("timestamp ASC, id ASC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return s.filterValid(entries), nil
}

// GetByActionType returns entries of one action type, newest first.
func (s *AuditService) GetByActionType(ctx context.Context, actionType models.ActionType, limit int) ([]models.AuditLogEntry, error) {
	if _, err := models.ParseActionType(string(actionType)); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	var entries []models.AuditLogEntry
	if err := s.db.WithContext(ctx).
		Where("action_type = ?", actionType).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// GetByActor returns entries recorded for one actor, newest first.
func (s *AuditService) GetByActor(ctx context.Context, actor string, limit int) ([]models.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []models.AuditLogEntry
	if err := s.db.WithContext(ctx).
		Where("actor = ?", actor).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return s.filterValid(entries), nil
}

func (s *AuditService) filterValid(entries []models.AuditLogEntry) []models.AuditLogEntry {
	out := entries[:0]
	for _, e := range entries {
		if _, err := models.ParseActionType(string(e.ActionType)); err != nil {
			s.logger.Warnf("audit: skipping entry %d: %v", e.ID, err)
			continue
		}
		out = append(out, e)
	}
	return out
}
