package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// ActionType identifies one lifecycle event in a playbook execution.
type ActionType string

const (
	ActionExecutionStarted   ActionType = "execution_started"
	ActionStepCompleted      ActionType = "step_completed"
	ActionStepFailed         ActionType = "step_failed"
	ActionApprovalRequested  ActionType = "approval_requested"
	ActionApproved           ActionType = "approved"
	ActionRejected           ActionType = "rejected"
	ActionExecutionCompleted ActionType = "execution_completed"
	ActionExecutionFailed    ActionType = "execution_failed"
)

// ParseActionType decodes a wire value into an ActionType. Unknown values
// are an error, never silently accepted.
func ParseActionType(s string) (ActionType, error) {
	switch ActionType(s) {
	case ActionExecutionStarted, ActionStepCompleted, ActionStepFailed,
		ActionApprovalRequested, ActionApproved, ActionRejected,
		ActionExecutionCompleted, ActionExecutionFailed:
		return ActionType(s), nil
	}
	return "", fmt.Errorf("invalid audit action type %q", s)
}

// AuditLogEntry is one immutable record of a single lifecycle event for a
// playbook execution. Append-only; entries are never updated or deleted.
//
// Details is an open key/value map whose shape is fixed per action type.
// Optional fields are omitted entirely when not supplied; consumers may
// check for key presence, so absent is not the same as null.
type AuditLogEntry struct {
	ID          uint              `gorm:"primaryKey" json:"log_id"`
	ExecutionID uint              `gorm:"index;not null" json:"execution_id"`
	ActionType  ActionType        `gorm:"index;not null" json:"action_type"`
	Details     datatypes.JSONMap `gorm:"type:jsonb" json:"details,omitempty"`
	Actor       *string           `gorm:"index" json:"actor,omitempty"`
	Timestamp   time.Time         `gorm:"index;not null" json:"timestamp"`
	CreatedAt   time.Time         `json:"created_at"`
}

// TableName overrides gorm's default pluralisation.
func (AuditLogEntry) TableName() string {
	return "audit_log_entries"
}
