package models

import (
	"fmt"
	"time"
)

// ApprovalStatus is the state of a human-approval request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

// ParseApprovalStatus decodes a wire value into an ApprovalStatus.
func ParseApprovalStatus(s string) (ApprovalStatus, error) {
	switch ApprovalStatus(s) {
	case ApprovalPending, ApprovalApproved, ApprovalRejected, ApprovalExpired:
		return ApprovalStatus(s), nil
	}
	return "", fmt.Errorf("invalid approval status %q", s)
}

// Terminal reports whether the request can no longer change state.
// PENDING is the only non-terminal state.
func (s ApprovalStatus) Terminal() bool {
	return s != ApprovalPending
}

// ApprovalRequest gates one playbook execution behind a human decision
// delivered through a Slack interactive message. At most one active
// (pending) request may exist per execution.
type ApprovalRequest struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	RequestID      string         `gorm:"unique;not null" json:"request_id"` // public uuid
	ExecutionID    uint           `gorm:"index;not null" json:"execution_id"`
	Status         ApprovalStatus `gorm:"default:'pending'" json:"status"`
	RequestedAt    time.Time      `gorm:"not null" json:"requested_at"`
	ExpiresAt      *time.Time     `gorm:"index" json:"expires_at,omitempty"`
	DecidedBy      *string        `json:"decided_by,omitempty"`
	DecidedAt      *time.Time     `json:"decided_at,omitempty"`
	SlackMessageTS string         `json:"slack_message_ts"`
	SlackChannelID string         `json:"slack_channel_id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`

	Execution PlaybookExecution `gorm:"foreignKey:ExecutionID" json:"execution,omitempty"`
}
