package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"pulseguard/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Service{}, &models.Heartbeat{}, &models.Alert{},
		&models.Playbook{}, &models.PlaybookStep{}, &models.Trigger{},
		&models.PlaybookExecution{}, &models.ApprovalRequest{}, &models.AuditLogEntry{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// fakeNotifier records Slack calls and can be told to fail posting.
type fakeNotifier struct {
	mu       sync.Mutex
	failPost bool
	posts    []string
	updates  []string
	nextTS   int
}

func (f *fakeNotifier) PostMessage(_ context.Context, channel, text string, _ []SlackBlock) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPost {
		return "", fmt.Errorf("channel_not_found")
	}
	f.posts = append(f.posts, channel+": "+text)
	f.nextTS++
	return fmt.Sprintf("1700000000.%06d", f.nextTS), nil
}

func (f *fakeNotifier) UpdateMessage(_ context.Context, channel, ts, text string, _ []SlackBlock) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, channel+"/"+ts+": "+text)
	return nil
}

func (f *fakeNotifier) postCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

func (f *fakeNotifier) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

// fakeEngine records approve/cancel calls without running anything.
type fakeEngine struct {
	mu        sync.Mutex
	db        *gorm.DB
	approved  []uint
	cancelled []uint
}

func (f *fakeEngine) GetExecution(ctx context.Context, id uint) (*models.PlaybookExecution, error) {
	var exec models.PlaybookExecution
	if err := f.db.WithContext(ctx).Preload("Playbook").Preload("Service").First(&exec, id).Error; err != nil {
		return nil, err
	}
	return &exec, nil
}

func (f *fakeEngine) ApprovePlaybookExecution(_ context.Context, id uint) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approved = append(f.approved, id)
	return true
}

func (f *fakeEngine) CancelPlaybookExecution(_ context.Context, id uint) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return true
}

func (f *fakeEngine) UpdateExecutionStatus(_ context.Context, _ uint, _ models.ExecutionStatus) error {
	return nil
}

func (f *fakeEngine) approveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.approved)
}

func (f *fakeEngine) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cancelled)
}

func seedExecution(t *testing.T, db *gorm.DB) *models.PlaybookExecution {
	t.Helper()
	svc := models.Service{Name: "worker-prod", IntervalSeconds: 60, AlertThreshold: 3, Enabled: true}
	if err := db.Create(&svc).Error; err != nil {
		t.Fatalf("create service: %v", err)
	}
	pb := models.Playbook{Name: "restart-worker", Enabled: true}
	if err := db.Create(&pb).Error; err != nil {
		t.Fatalf("create playbook: %v", err)
	}
	exec := models.PlaybookExecution{PlaybookID: pb.ID, ServiceID: svc.ID, Status: models.ExecutionPendingApproval}
	if err := db.Create(&exec).Error; err != nil {
		t.Fatalf("create execution: %v", err)
	}
	return &exec
}
