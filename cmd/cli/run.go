package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pulseguard/internal/config"
	"pulseguard/internal/scheduler"
	"pulseguard/internal/services"
	"pulseguard/internal/utils"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// runCmd starts the monitor loops without the operator API. Useful for
// running evaluation and the expiry sweep on a separate host from the
// HTTP surface; only /health and the metrics endpoint are served.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the heartbeat monitor loops without the operator API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if err := config.InitLogger(cfg); err != nil {
			logrus.Warnf("init logger: %v", err)
		}
		appLogger := logrus.StandardLogger()

		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
			cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port,
		)
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}

		auditService := services.NewAuditService(db, appLogger)
		heartbeatService := services.NewHeartbeatService(db, appLogger)
		triggerService := services.NewTriggerService(db, appLogger)
		executionService := services.NewExecutionService(db, appLogger, auditService, nil)

		slackClient := services.NewSlackClient(cfg.Slack.APIBaseURL, cfg.Slack.BotToken, cfg.Slack.Timeout, appLogger)
		pagerdutyClient := services.NewPagerDutyClient(cfg.PagerDuty.EventsURL, cfg.PagerDuty.RoutingKey, cfg.PagerDuty.Timeout, appLogger)
		approvalService := services.NewApprovalService(db, appLogger, slackClient, cfg.Slack.ApprovalChannel, executionService, auditService, nil)

		policy := services.AlertPolicy{
			SlackChannel:                cfg.Slack.AlertChannel,
			PageOnlyOutsideWorkingHours: cfg.WorkingHours.PageOnlyOutsideWorkingHours,
			WorkingHours: utils.WorkingHours{
				Timezone: cfg.WorkingHours.Timezone,
				Start:    cfg.WorkingHours.Start,
				End:      cfg.WorkingHours.End,
			},
			ApprovalTTL: cfg.Approval.TTL,
		}
		alertService := services.NewAlertService(db, appLogger, heartbeatService, triggerService, executionService, approvalService, slackClient, pagerdutyClient, policy, nil)

		sched := scheduler.New(alertService, approvalService, cfg.Heartbeat.EvaluationInterval, cfg.Approval.SweepInterval, appLogger)
		schedCtx, cancelSched := context.WithCancel(context.Background())
		if err := sched.Start(schedCtx); err != nil {
			cancelSched()
			return fmt.Errorf("start scheduler: %w", err)
		}

		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, `{"status":"healthy"}`)
		})
		if cfg.Monitoring.Enabled {
			path := cfg.Monitoring.MetricsPath
			if path == "" {
				path = "/metrics"
			}
			mux.Handle(path, promhttp.Handler())
		}
		srv := &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: mux,
		}
		go func() {
			appLogger.Infof("Monitor listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				appLogger.Fatalf("Failed to start monitor endpoint: %v", err)
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		appLogger.Info("Shutting down monitor...")

		cancelSched()
		sched.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			appLogger.Errorf("Monitor forced to shutdown: %v", err)
		}
		appLogger.Info("Monitor exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
