package services

import (
	"context"
	"fmt"

	"pulseguard/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PlaybookService owns playbook and step CRUD for the operator API.
type PlaybookService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewPlaybookService(db *gorm.DB, logger *logrus.Logger) *PlaybookService {
	if logger == nil {
		logger = logrus.New()
	}
	return &PlaybookService{db: db, logger: logger}
}

// PlaybookStepRequest defines one step of a new playbook.
type PlaybookStepRequest struct {
	Name           string                 `json:"name" binding:"required"`
	Type           string                 `json:"type" binding:"required"`
	Params         map[string]interface{} `json:"params"`
	TimeoutSeconds int                    `json:"timeout_seconds"`
}

// PlaybookCreateRequest creates a playbook with its ordered steps.
type PlaybookCreateRequest struct {
	Name        string                `json:"name" binding:"required"`
	Description string                `json:"description"`
	Steps       []PlaybookStepRequest `json:"steps" binding:"required,min=1"`
}

func (s *PlaybookService) CreatePlaybook(ctx context.Context, req *PlaybookCreateRequest) (*models.Playbook, error) {
	for _, step := range req.Steps {
		switch step.Type {
		case models.StepTypeHTTPRequest, models.StepTypeWait, models.StepTypeNotify:
		default:
			return nil, fmt.Errorf("unsupported step type %q", step.Type)
		}
	}

	playbook := models.Playbook{
		Name:        req.Name,
		Description: req.Description,
		Enabled:     true,
	}
	for i, step := range req.Steps {
		timeout := step.TimeoutSeconds
		if timeout <= 0 {
			timeout = 30
		}
		playbook.Steps = append(playbook.Steps, models.PlaybookStep{
			StepIndex:      i,
			Name:           step.Name,
			Type:           step.Type,
			Params:         datatypes.JSONMap(step.Params),
			TimeoutSeconds: timeout,
		})
	}

	if err := s.db.WithContext(ctx).Create(&playbook).Error; err != nil {
		return nil, fmt.Errorf("create playbook: %w", err)
	}
	return &playbook, nil
}

func (s *PlaybookService) GetPlaybook(ctx context.Context, id uint) (*models.Playbook, error) {
	var playbook models.Playbook
	err := s.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("step_index ASC") }).
		First(&playbook, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("playbook %d not found", id)
		}
		return nil, fmt.Errorf("load playbook %d: %w", id, err)
	}
	return &playbook, nil
}

func (s *PlaybookService) ListPlaybooks(ctx context.Context) ([]models.Playbook, error) {
	var playbooks []models.Playbook
	if err := s.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("step_index ASC") }).
		Order("name ASC").
		Find(&playbooks).Error; err != nil {
		return nil, fmt.Errorf("list playbooks: %w", err)
	}
	return playbooks, nil
}

func (s *PlaybookService) DeletePlaybook(ctx context.Context, id uint) error {
	// Refuse to delete a playbook still referenced by trigger rules.
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Trigger{}).
		Where("playbook_id = ?", id).
		Count(&count).Error; err != nil {
		return fmt.Errorf("count triggers for playbook %d: %w", id, err)
	}
	if count > 0 {
		return fmt.Errorf("playbook %d is referenced by %d trigger(s)", id, count)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("playbook_id = ?", id).Delete(&models.PlaybookStep{}).Error; err != nil {
			return fmt.Errorf("delete steps for playbook %d: %w", id, err)
		}
		result := tx.Delete(&models.Playbook{}, id)
		if result.Error != nil {
			return fmt.Errorf("delete playbook %d: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("playbook %d not found", id)
		}
		return nil
	})
}
