package services

import (
	"context"
	"fmt"
	"time"

	"pulseguard/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// HeartbeatService owns the service registry and heartbeat ingestion.
type HeartbeatService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewHeartbeatService(db *gorm.DB, logger *logrus.Logger) *HeartbeatService {
	if logger == nil {
		logger = logrus.New()
	}
	return &HeartbeatService{db: db, logger: logger}
}

// ServiceCreateRequest registers a monitored service.
type ServiceCreateRequest struct {
	Name            string `json:"name" binding:"required"`
	Team            string `json:"team"`
	Description     string `json:"description"`
	IntervalSeconds int    `json:"interval_seconds" binding:"required,min=1"`
	GraceSeconds    int    `json:"grace_seconds"`
	AlertThreshold  int    `json:"alert_threshold"`
	Enabled         *bool  `json:"enabled"`
}

// ServiceUpdateRequest edits a registered service. Nil fields are left
// unchanged.
type ServiceUpdateRequest struct {
	Team            *string `json:"team"`
	Description     *string `json:"description"`
	IntervalSeconds *int    `json:"interval_seconds"`
	GraceSeconds    *int    `json:"grace_seconds"`
	AlertThreshold  *int    `json:"alert_threshold"`
	Enabled         *bool   `json:"enabled"`
}

func (s *HeartbeatService) CreateService(ctx context.Context, req *ServiceCreateRequest) (*models.Service, error) {
	if req.IntervalSeconds < 1 {
		return nil, fmt.Errorf("interval_seconds must be >= 1")
	}
	svc := models.Service{
		Name:            req.Name,
		Team:            req.Team,
		Description:     req.Description,
		IntervalSeconds: req.IntervalSeconds,
		GraceSeconds:    req.GraceSeconds,
		AlertThreshold:  req.AlertThreshold,
		Enabled:         true,
	}
	if svc.AlertThreshold < 1 {
		svc.AlertThreshold = 3
	}
	if req.Enabled != nil {
		svc.Enabled = *req.Enabled
	}
	if err := s.db.WithContext(ctx).Create(&svc).Error; err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	return &svc, nil
}

func (s *HeartbeatService) GetService(ctx context.Context, id uint) (*models.Service, error) {
	var svc models.Service
	if err := s.db.WithContext(ctx).First(&svc, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("service %d not found", id)
		}
		return nil, fmt.Errorf("load service %d: %w", id, err)
	}
	return &svc, nil
}

func (s *HeartbeatService) GetServiceByName(ctx context.Context, name string) (*models.Service, error) {
	var svc models.Service
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&svc).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("service %q not found", name)
		}
		return nil, fmt.Errorf("load service %q: %w", name, err)
	}
	return &svc, nil
}

func (s *HeartbeatService) ListServices(ctx context.Context) ([]models.Service, error) {
	var svcs []models.Service
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&svcs).Error; err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return svcs, nil
}

func (s *HeartbeatService) UpdateService(ctx context.Context, id uint, req *ServiceUpdateRequest) (*models.Service, error) {
	svc, err := s.GetService(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Team != nil {
		updates["team"] = *req.Team
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.IntervalSeconds != nil {
		if *req.IntervalSeconds < 1 {
			return nil, fmt.Errorf("interval_seconds must be >= 1")
		}
		updates["interval_seconds"] = *req.IntervalSeconds
	}
	if req.GraceSeconds != nil {
		updates["grace_seconds"] = *req.GraceSeconds
	}
	if req.AlertThreshold != nil {
		if *req.AlertThreshold < 1 {
			return nil, fmt.Errorf("alert_threshold must be >= 1")
		}
		updates["alert_threshold"] = *req.AlertThreshold
	}
	if req.Enabled != nil {
		updates["enabled"] = *req.Enabled
	}
	if len(updates) == 0 {
		return svc, nil
	}

	if err := s.db.WithContext(ctx).Model(svc).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update service %d: %w", id, err)
	}
	return s.GetService(ctx, id)
}

func (s *HeartbeatService) DeleteService(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.Service{}, id)
	if result.Error != nil {
		return fmt.Errorf("delete service %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("service %d not found", id)
	}
	return nil
}

// RecordHeartbeat ingests one "I'm alive" signal for the named service
// and resets its consecutive-failure counter.
func (s *HeartbeatService) RecordHeartbeat(ctx context.Context, serviceName, source string, metadata map[string]interface{}) (*models.Heartbeat, error) {
	svc, err := s.GetServiceByName(ctx, serviceName)
	if err != nil {
		return nil, err
	}
	if !svc.Enabled {
		return nil, fmt.Errorf("service %q is disabled", serviceName)
	}

	hb := models.Heartbeat{
		ServiceID:  svc.ID,
		Source:     source,
		Metadata:   metadata,
		ReceivedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&hb).Error; err != nil {
		return nil, fmt.Errorf("record heartbeat: %w", err)
	}

	if svc.ConsecutiveFailures != 0 {
		if err := s.db.WithContext(ctx).Model(&models.Service{}).
			Where("id = ?", svc.ID).
			Update("consecutive_failures", 0).Error; err != nil {
			s.logger.Warnf("reset failure counter for service %d: %v", svc.ID, err)
		}
	}
	return &hb, nil
}

// LatestHeartbeat returns the most recent heartbeat for a service, or nil
// when none has been received yet.
func (s *HeartbeatService) LatestHeartbeat(ctx context.Context, serviceID uint) (*models.Heartbeat, error) {
	var hb models.Heartbeat
	err := s.db.WithContext(ctx).
		Where("service_id = ?", serviceID).
		Order("received_at DESC, id DESC").
		First(&hb).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest heartbeat for service %d: %w", serviceID, err)
	}
	return &hb, nil
}

// ListHeartbeats returns recent heartbeats for a service, newest first.
func (s *HeartbeatService) ListHeartbeats(ctx context.Context, serviceID uint, limit int) ([]models.Heartbeat, error) {
	if limit <= 0 {
		limit = 50
	}
	var beats []models.Heartbeat
	if err := s.db.WithContext(ctx).
		Where("service_id = ?", serviceID).
		Order("received_at DESC, id DESC").
		Limit(limit).
		Find(&beats).Error; err != nil {
		return nil, fmt.Errorf("list heartbeats for service %d: %w", serviceID, err)
	}
	return beats, nil
}

// Stale reports whether a service has missed its current cycle: no beat
// within interval + grace. A service that never beat is stale once its
// first interval has elapsed since registration.
func (s *HeartbeatService) Stale(ctx context.Context, svc *models.Service, now time.Time) (bool, error) {
	window := time.Duration(svc.IntervalSeconds+svc.GraceSeconds) * time.Second
	last, err := s.LatestHeartbeat(ctx, svc.ID)
	if err != nil {
		return false, err
	}
	if last == nil {
		return now.Sub(svc.CreatedAt) > window, nil
	}
	return now.Sub(last.ReceivedAt) > window, nil
}
