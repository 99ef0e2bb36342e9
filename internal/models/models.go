package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service is a monitored service that is expected to POST heartbeats.
type Service struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	Name                string         `gorm:"unique;not null" json:"name"`
	Team                string         `json:"team"`
	Description         string         `gorm:"type:text" json:"description"`
	IntervalSeconds     int            `gorm:"not null;default:60" json:"interval_seconds"`
	GraceSeconds        int            `gorm:"default:0" json:"grace_seconds"`
	AlertThreshold      int            `gorm:"not null;default:3" json:"alert_threshold"`
	ConsecutiveFailures int            `gorm:"default:0" json:"consecutive_failures"`
	Enabled             bool           `gorm:"default:true" json:"enabled"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

// Heartbeat is a single "I'm alive" signal received from a service.
type Heartbeat struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	ServiceID  uint              `gorm:"index;not null" json:"service_id"`
	Source     string            `json:"source"` // remote address of the sender
	Metadata   datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	ReceivedAt time.Time         `gorm:"index;not null" json:"received_at"`

	Service Service `gorm:"foreignKey:ServiceID" json:"service,omitempty"`
}

// Alert states.
const (
	AlertStatusOpen     = "open"
	AlertStatusResolved = "resolved"
)

// Alert is opened when a service misses its interval for its threshold
// number of consecutive cycles. At most one open alert per service.
type Alert struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	ServiceID           uint       `gorm:"index;not null" json:"service_id"`
	DedupKey            string     `gorm:"unique;not null" json:"dedup_key"`
	Status              string     `gorm:"default:'open'" json:"status"` // open, resolved
	Title               string     `json:"title"`
	Description         string     `gorm:"type:text" json:"description"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	StartedAt           *time.Time `json:"started_at"`
	ResolvedAt          *time.Time `json:"resolved_at"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`

	Service Service `gorm:"foreignKey:ServiceID" json:"service,omitempty"`
}
