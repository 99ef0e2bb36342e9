package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Playbook is a named, ordered sequence of remediation steps.
type Playbook struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"unique;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Enabled     bool      `gorm:"default:true" json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Steps []PlaybookStep `gorm:"foreignKey:PlaybookID" json:"steps,omitempty"`
}

// Step types understood by the execution engine.
const (
	StepTypeHTTPRequest = "http_request"
	StepTypeWait        = "wait"
	StepTypeNotify      = "notify"
)

// PlaybookStep is one remediation action within a playbook. Params is a
// per-type JSON config blob, decoded by the execution engine.
type PlaybookStep struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	PlaybookID     uint              `gorm:"index;not null" json:"playbook_id"`
	StepIndex      int               `gorm:"not null" json:"step_index"`
	Name           string            `gorm:"not null" json:"name"`
	Type           string            `gorm:"not null" json:"type"` // http_request, wait, notify
	Params         datatypes.JSONMap `gorm:"type:jsonb" json:"params,omitempty"`
	TimeoutSeconds int               `gorm:"default:30" json:"timeout_seconds"`
}

// Trigger maps a service-name glob pattern and a consecutive-failure
// threshold to a playbook. Immutable once matched against.
type Trigger struct {
	ID                          uint      `gorm:"primaryKey" json:"id"`
	PlaybookID                  uint      `gorm:"index;not null" json:"playbook_id"`
	ServiceGlobPattern          string    `gorm:"not null" json:"service_glob_pattern"`
	ConsecutiveFailureThreshold int       `gorm:"not null;default:1" json:"consecutive_failure_threshold"`
	Enabled                     bool      `gorm:"default:true" json:"enabled"`
	CreatedAt                   time.Time `json:"created_at"`
	UpdatedAt                   time.Time `json:"updated_at"`

	Playbook Playbook `gorm:"foreignKey:PlaybookID" json:"playbook,omitempty"`
}

// MatchedPlaybook is the ephemeral result of resolving an alert against
// the trigger rules. Never persisted.
type MatchedPlaybook struct {
	PlaybookID     uint   `json:"playbook_id"`
	PlaybookName   string `json:"playbook_name"`
	TriggerID      uint   `json:"trigger_id"`
	MatchedPattern string `json:"matched_pattern"`
	Threshold      int    `json:"threshold"`
}

// ExecutionStatus is the lifecycle state of a playbook execution.
type ExecutionStatus string

const (
	ExecutionPendingApproval ExecutionStatus = "pending_approval"
	ExecutionRunning         ExecutionStatus = "running"
	ExecutionCompleted       ExecutionStatus = "completed"
	ExecutionFailed          ExecutionStatus = "failed"
	ExecutionCancelled       ExecutionStatus = "cancelled"
)

// ParseExecutionStatus decodes a wire value into an ExecutionStatus.
func ParseExecutionStatus(s string) (ExecutionStatus, error) {
	switch ExecutionStatus(s) {
	case ExecutionPendingApproval, ExecutionRunning, ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
		return ExecutionStatus(s), nil
	}
	return "", fmt.Errorf("invalid execution status %q", s)
}

// Terminal reports whether the execution can no longer change state.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
		return true
	}
	return false
}

// PlaybookExecution is one run of a playbook against one alerting service.
type PlaybookExecution struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	PlaybookID  uint            `gorm:"index;not null" json:"playbook_id"`
	ServiceID   uint            `gorm:"index;not null" json:"service_id"`
	AlertID     *uint           `gorm:"index" json:"alert_id,omitempty"`
	Status      ExecutionStatus `gorm:"default:'pending_approval'" json:"status"`
	CurrentStep int             `gorm:"default:0" json:"current_step"`
	StartedAt   *time.Time      `json:"started_at"`
	FinishedAt  *time.Time      `json:"finished_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`

	Playbook Playbook `gorm:"foreignKey:PlaybookID" json:"playbook,omitempty"`
	Service  Service  `gorm:"foreignKey:ServiceID" json:"service,omitempty"`
}
