package main

import (
	"flag"
	"fmt"
	"log"

	"pulseguard/internal/config"
	"pulseguard/internal/models"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	seed := flag.Bool("seed", false, "insert a demo service and playbook after migrating")
	flag.Parse()

	_ = godotenv.Load()

	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.Println("Starting database migration...")

	err = db.AutoMigrate(
		&models.Service{},
		&models.Heartbeat{},
		&models.Alert{},
		&models.Playbook{},
		&models.PlaybookStep{},
		&models.Trigger{},
		&models.PlaybookExecution{},
		&models.ApprovalRequest{},
		&models.AuditLogEntry{},
	)
	if err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	log.Println("Database migration completed successfully!")

	log.Println("Creating additional indexes...")

	// Hot read paths: latest heartbeat per service, timeline per
	// execution, trail per actor.
	db.Exec("CREATE INDEX IF NOT EXISTS idx_heartbeats_service_received ON heartbeats(service_id, received_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_audit_log_entries_execution_ts ON audit_log_entries(execution_id, timestamp)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_audit_log_entries_actor ON audit_log_entries(actor)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_alerts_service_status ON alerts(service_id, status)")

	// One live approval request per execution, enforced at the
	// database so two concurrent senders cannot both insert.
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS ux_approval_requests_active ON approval_requests(execution_id) WHERE status = 'pending'")

	log.Println("Indexes created successfully!")

	if *seed {
		seedDemoData(db)
	}
}

func seedDemoData(db *gorm.DB) {
	log.Println("Seeding demo data...")

	svc := models.Service{
		Name:            "worker-demo",
		IntervalSeconds: 60,
		GraceSeconds:    30,
		AlertThreshold:  3,
		Enabled:         true,
	}
	if err := db.Where(models.Service{Name: svc.Name}).FirstOrCreate(&svc).Error; err != nil {
		log.Fatalf("Failed to seed service: %v", err)
	}

	playbook := models.Playbook{
		Name:        "restart-worker",
		Description: "Restart the demo worker via its admin endpoint",
		Steps: []models.PlaybookStep{
			{
				StepIndex: 0,
				Name:      "restart",
				Type:      models.StepTypeHTTPRequest,
				Params: map[string]interface{}{
					"method": "POST",
					"url":    "http://worker-demo.internal/admin/restart",
				},
				TimeoutSeconds: 30,
			},
			{
				StepIndex: 1,
				Name:      "settle",
				Type:      models.StepTypeWait,
				Params: map[string]interface{}{
					"seconds": 10,
				},
				TimeoutSeconds: 30,
			},
		},
	}
	if err := db.Where(models.Playbook{Name: playbook.Name}).FirstOrCreate(&playbook).Error; err != nil {
		log.Fatalf("Failed to seed playbook: %v", err)
	}

	trigger := models.Trigger{
		PlaybookID:                  playbook.ID,
		ServiceGlobPattern:          "worker-*",
		ConsecutiveFailureThreshold: 3,
		Enabled:                     true,
	}
	if err := db.Where(models.Trigger{PlaybookID: playbook.ID, ServiceGlobPattern: trigger.ServiceGlobPattern}).FirstOrCreate(&trigger).Error; err != nil {
		log.Fatalf("Failed to seed trigger: %v", err)
	}

	log.Println("Demo data seeded successfully!")
}
