package main

import (
	"context"
	"fmt"

	"pulseguard/internal/config"
	"pulseguard/internal/services"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sweepCmd runs one expiry pass and exits. Useful when the server is
// down and pending approvals need closing out from a cron job or by
// hand.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire overdue approval requests and exit",
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
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}

		audit := services.NewAuditService(db, appLogger)
		execs := services.NewExecutionService(db, appLogger, audit, nil)
		approvals := services.NewApprovalService(db, appLogger, nil, "", execs, audit, nil)

		expired := approvals.ExpirePendingRequests(context.Background())
		fmt.Printf("expired %d approval request(s)\n", expired)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
