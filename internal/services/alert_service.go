package services

import (
	"context"
	"fmt"
	"time"

	"pulseguard/internal/metrics"
	"pulseguard/internal/models"
	"pulseguard/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AlertPolicy controls how alert notifications are routed.
type AlertPolicy struct {
	// SlackChannel receives alert notifications when non-empty.
	SlackChannel string
	// PageOnlyOutsideWorkingHours suppresses PagerDuty pages while the
	// team is at their desks; Slack still gets the alert.
	PageOnlyOutsideWorkingHours bool
	WorkingHours                utils.WorkingHours
	// ApprovalTTL bounds how long a remediation approval stays open.
	ApprovalTTL time.Duration
}

// AlertService detects staleness, opens and resolves alerts, notifies
// PagerDuty/Slack and kicks off approval-gated remediation.
type AlertService struct {
	db        *gorm.DB
	logger    *logrus.Logger
	beats     *HeartbeatService
	triggers  *TriggerService
	execs     *ExecutionService
	approvals *ApprovalService
	notifier  SlackNotifier
	pagerduty *PagerDutyClient
	policy    AlertPolicy
	events    *EventHub
}

func NewAlertService(db *gorm.DB, logger *logrus.Logger, beats *HeartbeatService, triggers *TriggerService, execs *ExecutionService, approvals *ApprovalService, notifier SlackNotifier, pagerduty *PagerDutyClient, policy AlertPolicy, events *EventHub) *AlertService {
	if logger == nil {
		logger = logrus.New()
	}
	return &AlertService{
		db:        db,
		logger:    logger,
		beats:     beats,
		triggers:  triggers,
		execs:     execs,
		approvals: approvals,
		notifier:  notifier,
		pagerduty: pagerduty,
		policy:    policy,
		events:    events,
	}
}

// EvaluateServices runs one staleness pass over every enabled service:
// stale services accrue a consecutive failure, services at their alert
// threshold get an open alert (at most one per service) plus
// notifications and a remediation attempt, and recovered services get
// their alert resolved.
func (s *AlertService) EvaluateServices(ctx context.Context) error {
	var services []models.Service
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Find(&services).Error; err != nil {
		return fmt.Errorf("load services: %w", err)
	}

	now := time.Now().UTC()
	for i := range services {
		if err := s.evaluateOne(ctx, &services[i], now); err != nil {
			s.logger.Errorf("evaluate service %s: %v", services[i].Name, err)
		}
	}
	return nil
}

func (s *AlertService) evaluateOne(ctx context.Context, svc *models.Service, now time.Time) error {
	stale, err := s.beats.Stale(ctx, svc, now)
	if err != nil {
		return err
	}

	if !stale {
		return s.resolveIfOpen(ctx, svc, now)
	}

	failures := svc.ConsecutiveFailures + 1
	if err := s.db.WithContext(ctx).Model(&models.Service{}).
		Where("id = ?", svc.ID).
		Update("consecutive_failures", failures).Error; err != nil {
		return fmt.Errorf("increment failure counter: %w", err)
	}
	svc.ConsecutiveFailures = failures

	if failures < svc.AlertThreshold {
		s.logger.Debugf("service %s stale (%d/%d cycles)", svc.Name, failures, svc.AlertThreshold)
		return nil
	}

	alert, opened, err := s.openAlert(ctx, svc, now)
	if err != nil {
		return err
	}
	if !opened {
		// Alert already open; remediation was attempted when it opened.
		return nil
	}

	s.notifyOpened(ctx, svc, alert, now)
	s.startRemediation(ctx, svc, alert, failures)
	return nil
}

// openAlert opens an alert unless one is already open for the service.
func (s *AlertService) openAlert(ctx context.Context, svc *models.Service, now time.Time) (*models.Alert, bool, error) {
	var existing models.Alert
	err := s.db.WithContext(ctx).
		Where("service_id = ? AND status = ?", svc.ID, models.AlertStatusOpen).
		First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, false, fmt.Errorf("lookup open alert: %w", err)
	}

	alert := models.Alert{
		ServiceID:           svc.ID,
		DedupKey:            uuid.NewString(),
		Status:              models.AlertStatusOpen,
		Title:               fmt.Sprintf("Heartbeat missing: %s", svc.Name),
		Description:         fmt.Sprintf("%s missed %d consecutive heartbeat cycles (interval %ds).", svc.Name, svc.ConsecutiveFailures, svc.IntervalSeconds),
		ConsecutiveFailures: svc.ConsecutiveFailures,
		StartedAt:           &now,
	}
	if err := s.db.WithContext(ctx).Create(&alert).Error; err != nil {
		return nil, false, fmt.Errorf("create alert: %w", err)
	}

	metrics.AlertsTotal.WithLabelValues(svc.Name, "opened").Inc()
	s.events.Broadcast(EventAlertOpened, map[string]interface{}{
		"alert_id": alert.ID,
		"service":  svc.Name,
		"failures": svc.ConsecutiveFailures,
	})
	s.logger.Warnf("alert opened for service %s after %d missed cycles", svc.Name, svc.ConsecutiveFailures)
	return &alert, true, nil
}

func (s *AlertService) resolveIfOpen(ctx context.Context, svc *models.Service, now time.Time) error {
	var alert models.Alert
	err := s.db.WithContext(ctx).
		Where("service_id = ? AND status = ?", svc.ID, models.AlertStatusOpen).
		First(&alert).Error
	if err == gorm.ErrRecordNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup open alert: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&models.Alert{}).
		Where("id = ? AND status = ?", alert.ID, models.AlertStatusOpen).
		Updates(map[string]interface{}{"status": models.AlertStatusResolved, "resolved_at": now}).Error; err != nil {
		return fmt.Errorf("resolve alert %d: %w", alert.ID, err)
	}

	metrics.AlertsTotal.WithLabelValues(svc.Name, "resolved").Inc()
	s.events.Broadcast(EventAlertResolved, map[string]interface{}{
		"alert_id": alert.ID,
		"service":  svc.Name,
	})
	s.logger.Infof("alert resolved for service %s, heartbeats resumed", svc.Name)

	if s.pagerduty != nil && s.pagerduty.Configured() {
		if err := s.pagerduty.Resolve(ctx, alert.DedupKey, alert.Title, svc.Name); err != nil {
			s.logger.Warnf("pagerduty resolve for alert %d: %v", alert.ID, err)
		}
	}
	if s.notifier != nil && s.policy.SlackChannel != "" {
		text := fmt.Sprintf(":white_check_mark: *%s* recovered, heartbeats resumed.", svc.Name)
		if _, err := s.notifier.PostMessage(ctx, s.policy.SlackChannel, text, nil); err != nil {
			s.logger.Warnf("slack resolve notice for alert %d: %v", alert.ID, err)
		}
	}
	return nil
}

func (s *AlertService) notifyOpened(ctx context.Context, svc *models.Service, alert *models.Alert, now time.Time) {
	page := true
	if s.policy.PageOnlyOutsideWorkingHours && utils.WithinWorkingHours(now, s.policy.WorkingHours) {
		page = false
	}

	if page && s.pagerduty != nil && s.pagerduty.Configured() {
		details := map[string]interface{}{
			"service":              svc.Name,
			"team":                 svc.Team,
			"consecutive_failures": alert.ConsecutiveFailures,
			"interval_seconds":     svc.IntervalSeconds,
		}
		if err := s.pagerduty.Trigger(ctx, alert.DedupKey, alert.Title, svc.Name, details); err != nil {
			s.logger.Warnf("pagerduty trigger for alert %d: %v", alert.ID, err)
		}
	}

	if s.notifier != nil && s.policy.SlackChannel != "" {
		text := fmt.Sprintf(":rotating_light: *%s* missed %d consecutive heartbeat cycles.", svc.Name, alert.ConsecutiveFailures)
		if _, err := s.notifier.PostMessage(ctx, s.policy.SlackChannel, text, nil); err != nil {
			s.logger.Warnf("slack alert notice for alert %d: %v", alert.ID, err)
		}
	}
}

// startRemediation consults the trigger rules and, on a match, opens a
// pending execution behind an approval gate. No match simply means no
// remediation is configured for this service.
func (s *AlertService) startRemediation(ctx context.Context, svc *models.Service, alert *models.Alert, failures int) {
	match, err := s.triggers.FindPlaybookForAlert(ctx, svc.Name, failures)
	if err != nil {
		s.logger.Errorf("resolve playbook for %s: %v", svc.Name, err)
		return
	}
	if match == nil {
		return
	}

	exec, err := s.execs.CreateExecution(ctx, match.PlaybookID, svc.ID, &alert.ID)
	if err != nil {
		s.logger.Errorf("create execution for %s: %v", svc.Name, err)
		return
	}

	var expiresAt *time.Time
	if s.policy.ApprovalTTL > 0 {
		t := time.Now().UTC().Add(s.policy.ApprovalTTL)
		expiresAt = &t
	}
	description := fmt.Sprintf("Matched trigger #%d (pattern `%s`, threshold %d).", match.TriggerID, match.MatchedPattern, match.Threshold)

	result := s.approvals.SendApprovalRequest(ctx, exec.ID, match.PlaybookName, svc.Name, expiresAt, &description)
	if !result.Success {
		s.logger.Errorf("approval request for execution %d: %s", exec.ID, result.Message)
	}
}
