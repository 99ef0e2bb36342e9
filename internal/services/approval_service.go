package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"pulseguard/internal/metrics"
	"pulseguard/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Slack action ids carried on the approval message buttons.
const (
	ActionIDApprove = "approve_playbook"
	ActionIDReject  = "reject_playbook"
)

// ApprovalResult is the outcome of any approval-gate operation. Domain
// failures (not found, already decided, expired, malformed payload) are
// reported here, never as errors across the component boundary.
type ApprovalResult struct {
	Success bool                    `json:"success"`
	Message string                  `json:"message"`
	Request *models.ApprovalRequest `json:"request,omitempty"`
}

func failure(format string, args ...interface{}) ApprovalResult {
	return ApprovalResult{Success: false, Message: fmt.Sprintf(format, args...)}
}

// ApprovalService governs human sign-off before a playbook execution
// proceeds. It exclusively owns ApprovalRequest writes; the execution
// engine only ever reads execution status.
//
// The data store is the sole arbiter of consistency: every
// PENDING -> terminal transition is a conditional update guarded by
// status = 'pending', so a race between the expiry sweep and a late
// button click resolves to exactly one winner and the loser fails with a
// state-conflict message. That guard is also what makes engine
// invocation at-most-once per execution.
type ApprovalService struct {
	db       *gorm.DB
	logger   *logrus.Logger
	notifier SlackNotifier
	channel  string
	engine   ExecutionEngine
	audit    *AuditService
	events   *EventHub
}

func NewApprovalService(db *gorm.DB, logger *logrus.Logger, notifier SlackNotifier, channel string, engine ExecutionEngine, audit *AuditService, events *EventHub) *ApprovalService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ApprovalService{
		db:       db,
		logger:   logger,
		notifier: notifier,
		channel:  channel,
		engine:   engine,
		audit:    audit,
		events:   events,
	}
}

// SendApprovalRequest opens the approval gate for an execution: persists
// a PENDING request, posts the interactive Slack message and records the
// message handle for later in-place editing.
//
// Fails fast, before any persistence, when no notification channel is
// configured. If the Slack post fails after the PENDING row was written,
// the row is flipped to EXPIRED as a compensating transition so no
// phantom active request survives the failure.
func (s *ApprovalService) SendApprovalRequest(ctx context.Context, executionID uint, playbookName, serviceName string, expiresAt *time.Time, description *string) ApprovalResult {
	if s.notifier == nil || s.channel == "" {
		return failure("no notification channel configured")
	}

	var existing models.ApprovalRequest
	err := s.db.WithContext(ctx).
		Where("execution_id = ? AND status = ?", executionID, models.ApprovalPending).
		First(&existing).Error
	if err == nil {
		return failure("approval request already pending for execution %d", executionID)
	}
	if err != gorm.ErrRecordNotFound {
		return failure("lookup approval request: %v", err)
	}

	req := models.ApprovalRequest{
		RequestID:   uuid.NewString(),
		ExecutionID: executionID,
		Status:      models.ApprovalPending,
		RequestedAt: time.Now().UTC(),
		ExpiresAt:   expiresAt,
	}
	if err := s.db.WithContext(ctx).Create(&req).Error; err != nil {
		return failure("persist approval request: %v", err)
	}

	text := fmt.Sprintf("Remediation playbook %q requires approval for service %q", playbookName, serviceName)
	blocks := buildApprovalBlocks(executionID, playbookName, serviceName, expiresAt, description)

	ts, err := s.notifier.PostMessage(ctx, s.channel, text, blocks)
	if err != nil {
		s.logger.Errorf("approval request %s: slack dispatch failed: %v", req.RequestID, err)
		if cerr := s.db.WithContext(ctx).Model(&models.ApprovalRequest{}).
			Where("id = ? AND status = ?", req.ID, models.ApprovalPending).
			Update("status", models.ApprovalExpired).Error; cerr != nil {
			s.logger.Errorf("approval request %s: compensating expiry failed: %v", req.RequestID, cerr)
		}
		return failure("notification dispatch failed: %v", err)
	}

	req.SlackMessageTS = ts
	req.SlackChannelID = s.channel
	if err := s.db.WithContext(ctx).Model(&models.ApprovalRequest{}).
		Where("id = ?", req.ID).
		Updates(map[string]interface{}{"slack_message_ts": ts, "slack_channel_id": s.channel}).Error; err != nil {
		s.logger.Warnf("approval request %s: store message handle: %v", req.RequestID, err)
	}

	s.audit.LogApprovalRequested(ctx, executionID, req.RequestID, expiresAt)
	s.events.Broadcast(EventApprovalRequested, map[string]interface{}{
		"execution_id": executionID,
		"request_id":   req.RequestID,
		"playbook":     playbookName,
		"service":      serviceName,
	})

	return ApprovalResult{Success: true, Message: "approval request sent", Request: &req}
}

// GetApprovalRequestByExecution returns the most recent request for an
// execution, or nil when none exists.
func (s *ApprovalService) GetApprovalRequestByExecution(ctx context.Context, executionID uint) (*models.ApprovalRequest, error) {
	var req models.ApprovalRequest
	err := s.db.WithContext(ctx).
		Where("execution_id = ?", executionID).
		Order("id DESC").
		First(&req).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup approval request for execution %d: %w", executionID, err)
	}
	return &req, nil
}

// ApproveRequest records an approval decision and hands the execution to
// the engine. A request whose expiry has passed is transitioned to
// EXPIRED instead (lazy expiry at decision time, independent of the
// background sweep) and the attempt fails with an "expired" message.
func (s *ApprovalService) ApproveRequest(ctx context.Context, executionID uint, decidedBy string, reason *string) ApprovalResult {
	return s.decide(ctx, executionID, decidedBy, reason, models.ApprovalApproved)
}

// RejectRequest records a rejection decision and cancels the execution.
func (s *ApprovalService) RejectRequest(ctx context.Context, executionID uint, decidedBy string, reason *string) ApprovalResult {
	return s.decide(ctx, executionID, decidedBy, reason, models.ApprovalRejected)
}

func (s *ApprovalService) decide(ctx context.Context, executionID uint, decidedBy string, reason *string, target models.ApprovalStatus) ApprovalResult {
	req, err := s.GetApprovalRequestByExecution(ctx, executionID)
	if err != nil {
		return failure("%v", err)
	}
	if req == nil {
		return failure("no approval request found for execution %d", executionID)
	}

	// Double decisions are an error, not a silent success, so a race
	// between a human click and the expiry sweep stays observable.
	if req.Status.Terminal() {
		return failure("approval request already %s", req.Status)
	}

	now := time.Now().UTC()

	if req.ExpiresAt != nil && req.ExpiresAt.Before(now) {
		if s.expireOne(ctx, req) {
			return failure("approval request expired at %s", req.ExpiresAt.UTC().Format(time.RFC3339))
		}
		// Lost the transition race; report the state we lost to.
		fresh, _ := s.GetApprovalRequestByExecution(ctx, executionID)
		if fresh != nil && fresh.Status.Terminal() {
			return failure("approval request already %s", fresh.Status)
		}
		return failure("approval request expired")
	}

	result := s.db.WithContext(ctx).Model(&models.ApprovalRequest{}).
		Where("id = ? AND status = ?", req.ID, models.ApprovalPending).
		Updates(map[string]interface{}{
			"status":     target,
			"decided_by": decidedBy,
			"decided_at": now,
		})
	if result.Error != nil {
		return failure("record decision: %v", result.Error)
	}
	if result.RowsAffected == 0 {
		// Another path (sweep or concurrent click) won.
		fresh, _ := s.GetApprovalRequestByExecution(ctx, executionID)
		if fresh != nil {
			return failure("approval request already %s", fresh.Status)
		}
		return failure("approval request already decided")
	}

	req.Status = target
	req.DecidedBy = &decidedBy
	req.DecidedAt = &now

	switch target {
	case models.ApprovalApproved:
		if !s.engine.ApprovePlaybookExecution(ctx, executionID) {
			s.logger.Errorf("execution %d: engine refused approval", executionID)
		}
		s.audit.LogApproved(ctx, executionID, decidedBy, reason)
	case models.ApprovalRejected:
		if !s.engine.CancelPlaybookExecution(ctx, executionID) {
			s.logger.Errorf("execution %d: engine refused cancellation", executionID)
		}
		s.audit.LogRejected(ctx, executionID, decidedBy, reason)
	}

	metrics.ApprovalsTotal.WithLabelValues(string(target)).Inc()
	s.events.Broadcast(EventApprovalDecided, map[string]interface{}{
		"execution_id": executionID,
		"request_id":   req.RequestID,
		"status":       target,
		"decided_by":   decidedBy,
	})

	return ApprovalResult{Success: true, Message: fmt.Sprintf("request %s", target), Request: req}
}

// expireOne performs the guarded PENDING -> EXPIRED transition and, when
// it wins, the execution cancel the sweep would otherwise have done.
func (s *ApprovalService) expireOne(ctx context.Context, req *models.ApprovalRequest) bool {
	result := s.db.WithContext(ctx).Model(&models.ApprovalRequest{}).
		Where("id = ? AND status = ?", req.ID, models.ApprovalPending).
		Update("status", models.ApprovalExpired)
	if result.Error != nil {
		s.logger.Errorf("expire approval request %s: %v", req.RequestID, result.Error)
		return false
	}
	if result.RowsAffected == 0 {
		return false
	}
	if !s.engine.CancelPlaybookExecution(ctx, req.ExecutionID) {
		s.logger.Warnf("execution %d: cancel after expiry was a no-op", req.ExecutionID)
	}
	metrics.ApprovalsTotal.WithLabelValues(string(models.ApprovalExpired)).Inc()
	s.events.Broadcast(EventApprovalDecided, map[string]interface{}{
		"execution_id": req.ExecutionID,
		"request_id":   req.RequestID,
		"status":       models.ApprovalExpired,
	})
	return true
}

// ExpirePendingRequests is the background sweep: every PENDING request
// whose expiry has passed is transitioned to EXPIRED and its execution
// cancelled. Idempotent: the lookup only returns currently-PENDING rows,
// so re-running over already-expired requests is a no-op. Returns the
// number of requests expired on this pass.
func (s *ApprovalService) ExpirePendingRequests(ctx context.Context) int {
	metrics.SweepRunsTotal.Inc()

	var pending []models.ApprovalRequest
	if err := s.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", models.ApprovalPending, time.Now().UTC()).
		Find(&pending).Error; err != nil {
		s.logger.Errorf("expiry sweep: load pending requests: %v", err)
		return 0
	}

	count := 0
	for i := range pending {
		if s.expireOne(ctx, &pending[i]) {
			count++
		}
	}
	if count > 0 {
		s.logger.Infof("expiry sweep: expired %d approval request(s)", count)
	}
	return count
}

// SlackInteractionPayload is the decoded `payload` field of a Slack
// interactivity callback.
type SlackInteractionPayload struct {
	Type string `json:"type"`
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
	Message struct {
		TS string `json:"ts"`
	} `json:"message"`
	Actions []struct {
		ActionID string `json:"action_id"`
		Value    string `json:"value"`
	} `json:"actions"`
}

// HandleSlackInteraction is the webhook entry point for button clicks.
// Every malformed input maps to a structured failure result; this path
// never panics and never returns an error.
func (s *ApprovalService) HandleSlackInteraction(ctx context.Context, payload SlackInteractionPayload) ApprovalResult {
	if payload.Type != "block_actions" {
		return failure("unsupported interaction type %q", payload.Type)
	}
	if len(payload.Actions) == 0 {
		return failure("no action element in payload")
	}

	action := payload.Actions[0]
	if action.ActionID != ActionIDApprove && action.ActionID != ActionIDReject {
		return failure("unknown action %q", action.ActionID)
	}

	executionID, err := strconv.ParseUint(action.Value, 10, 32)
	if err != nil {
		return failure("invalid execution id %q", action.Value)
	}

	// Display names are best-effort; a missing execution record degrades
	// the message text but never aborts the decision.
	playbookName, serviceName := "unknown playbook", "unknown service"
	if exec, err := s.engine.GetExecution(ctx, uint(executionID)); err == nil {
		if exec.Playbook.Name != "" {
			playbookName = exec.Playbook.Name
		}
		if exec.Service.Name != "" {
			serviceName = exec.Service.Name
		}
	} else {
		s.logger.Warnf("slack interaction: resolve execution %d: %v", executionID, err)
	}

	decidedBy := payload.User.ID

	var result ApprovalResult
	if action.ActionID == ActionIDApprove {
		result = s.ApproveRequest(ctx, uint(executionID), decidedBy, nil)
	} else {
		result = s.RejectRequest(ctx, uint(executionID), decidedBy, nil)
	}
	if !result.Success {
		return result
	}

	s.updateDecisionMessage(ctx, result.Request, playbookName, serviceName)
	return result
}

// updateDecisionMessage edits the original approval message in place to
// show the outcome rather than posting a new message.
func (s *ApprovalService) updateDecisionMessage(ctx context.Context, req *models.ApprovalRequest, playbookName, serviceName string) {
	if s.notifier == nil || req == nil || req.SlackMessageTS == "" || req.SlackChannelID == "" {
		return
	}

	icon, verb := ":white_check_mark:", "Approved"
	if req.Status == models.ApprovalRejected {
		icon, verb = ":no_entry:", "Declined"
	}
	decidedBy := ""
	if req.DecidedBy != nil {
		decidedBy = *req.DecidedBy
	}
	decidedAt := time.Now().UTC()
	if req.DecidedAt != nil {
		decidedAt = req.DecidedAt.UTC()
	}

	text := fmt.Sprintf("%s %s by <@%s>", verb, playbookName, decidedBy)
	blocks := []SlackBlock{
		{
			Type: "section",
			Text: &SlackTextObject{
				Type: "mrkdwn",
				Text: fmt.Sprintf("%s *%s* — playbook *%s* for service *%s*", icon, verb, playbookName, serviceName),
			},
		},
		{
			Type: "context",
			Elements: []SlackElement{
				{
					Type: "mrkdwn",
					Text: &SlackTextObject{
						Type: "mrkdwn",
						Text: fmt.Sprintf("Decided by <@%s> at %s", decidedBy, decidedAt.Format("2006-01-02 15:04:05 UTC")),
					},
				},
			},
		},
	}

	if err := s.notifier.UpdateMessage(ctx, req.SlackChannelID, req.SlackMessageTS, text, blocks); err != nil {
		s.logger.Warnf("slack interaction: update message %s: %v", req.SlackMessageTS, err)
	}
}

// buildApprovalBlocks assembles the interactive approval message: header,
// body naming playbook/service/execution, optional expiry and free-text
// description, and the two mutually exclusive decision buttons carrying
// the execution id as their value.
func buildApprovalBlocks(executionID uint, playbookName, serviceName string, expiresAt *time.Time, description *string) []SlackBlock {
	body := fmt.Sprintf("Playbook *%s* is ready to run against service *%s* (execution #%d).", playbookName, serviceName, executionID)
	if expiresAt != nil {
		body += fmt.Sprintf("\nExpires at %s.", expiresAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	}

	blocks := []SlackBlock{
		{
			Type: "header",
			Text: &SlackTextObject{Type: "plain_text", Text: "Remediation approval required", Emoji: true},
		},
		{
			Type: "section",
			Text: &SlackTextObject{Type: "mrkdwn", Text: body},
		},
	}

	if description != nil && *description != "" {
		blocks = append(blocks, SlackBlock{
			Type: "section",
			Text: &SlackTextObject{Type: "mrkdwn", Text: *description},
		})
	}

	value := strconv.FormatUint(uint64(executionID), 10)
	blocks = append(blocks, SlackBlock{
		Type: "actions",
		Elements: []SlackElement{
			{
				Type:     "button",
				Text:     &SlackTextObject{Type: "plain_text", Text: "Approve", Emoji: true},
				ActionID: ActionIDApprove,
				Value:    value,
				Style:    "primary",
			},
			{
				Type:     "button",
				Text:     &SlackTextObject{Type: "plain_text", Text: "Reject", Emoji: true},
				ActionID: ActionIDReject,
				Value:    value,
				Style:    "danger",
			},
		},
	})

	return blocks
}
