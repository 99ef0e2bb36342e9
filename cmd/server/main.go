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
	"pulseguard/internal/handlers"
	"pulseguard/internal/middleware"
	"pulseguard/internal/models"
	"pulseguard/internal/observability"
	"pulseguard/internal/scheduler"
	"pulseguard/internal/services"
	"pulseguard/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	_ = godotenv.Load()

	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()
	if err := config.InitLogger(cfg); err != nil {
		logrus.Warnf("init logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	shutdownTracing, err := observability.SetupTracing(context.Background(), cfg)
	if err != nil {
		appLogger.Warnf("tracing setup failed, continuing without it: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	db := openDatabase(cfg, appLogger)

	if err := db.AutoMigrate(
		&models.Service{}, &models.Heartbeat{}, &models.Alert{},
		&models.Playbook{}, &models.PlaybookStep{}, &models.Trigger{},
		&models.PlaybookExecution{}, &models.ApprovalRequest{}, &models.AuditLogEntry{},
	); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}

	eventHub := services.NewEventHub(appLogger)
	go eventHub.Run()

	auditService := services.NewAuditService(db, appLogger)
	heartbeatService := services.NewHeartbeatService(db, appLogger)
	playbookService := services.NewPlaybookService(db, appLogger)
	triggerService := services.NewTriggerService(db, appLogger)
	executionService := services.NewExecutionService(db, appLogger, auditService, eventHub)

	slackClient := services.NewSlackClient(cfg.Slack.APIBaseURL, cfg.Slack.BotToken, cfg.Slack.Timeout, appLogger)
	pagerdutyClient := services.NewPagerDutyClient(cfg.PagerDuty.EventsURL, cfg.PagerDuty.RoutingKey, cfg.PagerDuty.Timeout, appLogger)

	approvalService := services.NewApprovalService(db, appLogger, slackClient, cfg.Slack.ApprovalChannel, executionService, auditService, eventHub)

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
	alertService := services.NewAlertService(db, appLogger, heartbeatService, triggerService, executionService, approvalService, slackClient, pagerdutyClient, policy, eventHub)

	sched := scheduler.New(alertService, approvalService, cfg.Heartbeat.EvaluationInterval, cfg.Approval.SweepInterval, appLogger)
	schedCtx, cancelSched := context.WithCancel(context.Background())
	if err := sched.Start(schedCtx); err != nil {
		appLogger.Fatalf("Failed to start scheduler: %v", err)
	}

	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	if cfg.Monitoring.Tracing.Enabled {
		r.Use(otelgin.Middleware("pulseguard"))
	}

	handlers.RegisterHealthRoutes(r, handlers.NewHealthHandler(db, appLogger))
	handlers.RegisterEventRoutes(r, handlers.NewEventsHandler(eventHub, appLogger))
	if cfg.Monitoring.Enabled {
		path := cfg.Monitoring.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(promhttp.Handler()))
	}

	heartbeatHandler := handlers.NewHeartbeatHandler(heartbeatService, appLogger)
	approvalHandler := handlers.NewApprovalHandler(approvalService, appLogger)

	// Agents push heartbeats and Slack calls back without a JWT; the
	// webhook is guarded by its request signature instead.
	ingest := r.Group("/api")
	ingest.Use(middleware.IngestTokenMiddleware(cfg.Heartbeat.IngestToken))
	handlers.RegisterIngestRoutes(ingest, heartbeatHandler)
	handlers.RegisterWebhookRoutes(r, approvalHandler, cfg.Slack.SigningSecret)

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(cfg.Auth.JWTSecret))
	handlers.RegisterServiceRoutes(api, handlers.NewServiceHandler(heartbeatService, appLogger))
	handlers.RegisterHeartbeatRoutes(api, heartbeatHandler)
	handlers.RegisterPlaybookRoutes(api, handlers.NewPlaybookHandler(playbookService, triggerService, executionService, appLogger))
	handlers.RegisterApprovalRoutes(api, approvalHandler)
	handlers.RegisterAuditRoutes(api, handlers.NewAuditHandler(auditService, appLogger))

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: r,
	}
	go func() {
		appLogger.Infof("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	cancelSched()
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Fatalf("Server forced to shutdown: %v", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		appLogger.Warnf("tracing shutdown: %v", err)
	}
	appLogger.Info("Server exited")
}

func openDatabase(cfg *config.Config, appLogger *logrus.Logger) *gorm.DB {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		appLogger.Fatalf("Failed to connect to database: %v", err)
	}

	if cfg.Monitoring.Tracing.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			appLogger.Warnf("gorm tracing plugin: %v", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		appLogger.Fatalf("Failed to access connection pool: %v", err)
	}
	if cfg.Database.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	}
	return db
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
