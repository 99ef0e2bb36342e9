package services

import (
	"context"
	"fmt"
	"path"
	"strings"

	"pulseguard/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TriggerService resolves failing services to remediation playbooks and
// owns trigger rule CRUD for the operator API.
type TriggerService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewTriggerService(db *gorm.DB, logger *logrus.Logger) *TriggerService {
	if logger == nil {
		logger = logrus.New()
	}
	return &TriggerService{db: db, logger: logger}
}

// FindMatchingTrigger returns the single best-matching enabled trigger for
// the given service, or nil when no remediation is configured.
//
// Triggers are evaluated highest threshold first (ties broken by lowest
// id) so that a specific, harder-to-trigger rule wins over a catch-all
// `*` rule when both match, while lower failure counts still fall through
// to the general rule. A trigger matches when the service name matches
// its glob pattern case-insensitively AND consecutiveFailures has reached
// its threshold.
func (s *TriggerService) FindMatchingTrigger(ctx context.Context, serviceName string, consecutiveFailures int) (*models.Trigger, error) {
	var triggers []models.Trigger
	if err := s.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("consecutive_failure_threshold DESC, id ASC").
		Find(&triggers).Error; err != nil {
		return nil, fmt.Errorf("load triggers: %w", err)
	}

	for i := range triggers {
		trig := &triggers[i]
		if consecutiveFailures < trig.ConsecutiveFailureThreshold {
			continue
		}
		ok, err := matchServiceGlob(trig.ServiceGlobPattern, serviceName)
		if err != nil {
			s.logger.Warnf("trigger %d has invalid pattern %q: %v", trig.ID, trig.ServiceGlobPattern, err)
			continue
		}
		if ok {
			return trig, nil
		}
	}

	return nil, nil
}

// FindPlaybookForAlert wraps the trigger match with a playbook lookup.
// A trigger referencing a playbook that no longer exists is treated as
// misconfiguration: logged, and nil returned.
func (s *TriggerService) FindPlaybookForAlert(ctx context.Context, serviceName string, consecutiveFailures int) (*models.MatchedPlaybook, error) {
	trig, err := s.FindMatchingTrigger(ctx, serviceName, consecutiveFailures)
	if err != nil {
		return nil, err
	}
	if trig == nil {
		return nil, nil
	}

	var playbook models.Playbook
	if err := s.db.WithContext(ctx).First(&playbook, trig.PlaybookID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			s.logger.Warnf("trigger %d references missing playbook %d", trig.ID, trig.PlaybookID)
			return nil, nil
		}
		return nil, fmt.Errorf("load playbook %d: %w", trig.PlaybookID, err)
	}

	return &models.MatchedPlaybook{
		PlaybookID:     playbook.ID,
		PlaybookName:   playbook.Name,
		TriggerID:      trig.ID,
		MatchedPattern: trig.ServiceGlobPattern,
		Threshold:      trig.ConsecutiveFailureThreshold,
	}, nil
}

// matchServiceGlob matches name against pattern case-insensitively.
// Supported syntax: `*` any run, `?` single char, `[...]` class,
// `[!...]` negated class (translated to path.Match's `[^...]`).
func matchServiceGlob(pattern, name string) (bool, error) {
	p := strings.ReplaceAll(strings.ToLower(pattern), "[!", "[^")
	return path.Match(p, strings.ToLower(name))
}

// TriggerCreateRequest creates a trigger rule.
type TriggerCreateRequest struct {
	PlaybookID                  uint   `json:"playbook_id" binding:"required"`
	ServiceGlobPattern          string `json:"service_glob_pattern" binding:"required"`
	ConsecutiveFailureThreshold int    `json:"consecutive_failure_threshold" binding:"required,min=1"`
	Enabled                     *bool  `json:"enabled"`
}

func (s *TriggerService) CreateTrigger(ctx context.Context, req *TriggerCreateRequest) (*models.Trigger, error) {
	if req.ConsecutiveFailureThreshold < 1 {
		return nil, fmt.Errorf("consecutive_failure_threshold must be >= 1")
	}
	if _, err := path.Match(strings.ReplaceAll(strings.ToLower(req.ServiceGlobPattern), "[!", "[^"), "probe"); err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", req.ServiceGlobPattern, err)
	}

	var playbook models.Playbook
	if err := s.db.WithContext(ctx).First(&playbook, req.PlaybookID).Error; err != nil {
		return nil, fmt.Errorf("playbook %d not found", req.PlaybookID)
	}

	trig := models.Trigger{
		PlaybookID:                  req.PlaybookID,
		ServiceGlobPattern:          req.ServiceGlobPattern,
		ConsecutiveFailureThreshold: req.ConsecutiveFailureThreshold,
		Enabled:                     true,
	}
	if req.Enabled != nil {
		trig.Enabled = *req.Enabled
	}
	if err := s.db.WithContext(ctx).Create(&trig).Error; err != nil {
		return nil, fmt.Errorf("create trigger: %w", err)
	}
	return &trig, nil
}

func (s *TriggerService) ListTriggers(ctx context.Context) ([]models.Trigger, error) {
	var triggers []models.Trigger
	if err := s.db.WithContext(ctx).
		Order("consecutive_failure_threshold DESC, id ASC").
		Find(&triggers).Error; err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	return triggers, nil
}

func (s *TriggerService) DeleteTrigger(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.Trigger{}, id)
	if result.Error != nil {
		return fmt.Errorf("delete trigger %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("trigger %d not found", id)
	}
	return nil
}
