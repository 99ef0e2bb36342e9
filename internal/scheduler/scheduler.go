package scheduler

import (
	"context"
	"fmt"
	"time"

	"pulseguard/internal/services"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler runs the two periodic jobs: staleness evaluation over all
// monitored services and the expiry sweep over pending approvals.
type Scheduler struct {
	cron      *cron.Cron
	alerts    *services.AlertService
	approvals *services.ApprovalService
	logger    *logrus.Logger

	evaluationInterval time.Duration
	sweepInterval      time.Duration
}

func New(alerts *services.AlertService, approvals *services.ApprovalService, evaluationInterval, sweepInterval time.Duration, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	if evaluationInterval <= 0 {
		evaluationInterval = 30 * time.Second
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	return &Scheduler{
		cron:               cron.New(),
		alerts:             alerts,
		approvals:          approvals,
		logger:             logger,
		evaluationInterval: evaluationInterval,
		sweepInterval:      sweepInterval,
	}
}

// Start registers both jobs and begins the cron loop. Each job runs
// once immediately so a restart does not wait a full interval before
// noticing stale services or overdue approvals.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(every(s.evaluationInterval), func() { s.evaluate(ctx) }); err != nil {
		return fmt.Errorf("register evaluation job: %w", err)
	}
	if _, err := s.cron.AddFunc(every(s.sweepInterval), func() { s.sweep(ctx) }); err != nil {
		return fmt.Errorf("register sweep job: %w", err)
	}

	go func() {
		s.evaluate(ctx)
		s.sweep(ctx)
	}()

	s.cron.Start()
	s.logger.WithFields(logrus.Fields{
		"evaluation_interval": s.evaluationInterval.String(),
		"sweep_interval":      s.sweepInterval.String(),
	}).Info("scheduler started")
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) evaluate(ctx context.Context) {
	if err := s.alerts.EvaluateServices(ctx); err != nil {
		s.logger.Errorf("staleness evaluation failed: %v", err)
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	expired := s.approvals.ExpirePendingRequests(ctx)
	if expired > 0 {
		s.logger.WithField("expired", expired).Info("expiry sweep closed pending approvals")
	}
}

func every(d time.Duration) string {
	return "@every " + d.String()
}
