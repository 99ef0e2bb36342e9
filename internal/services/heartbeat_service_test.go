package services

import (
	"context"
	"testing"
	"time"
)

func TestRecordHeartbeatResetsFailureCounter(t *testing.T) {
	db := newTestDB(t)
	svc := NewHeartbeatService(db, quietLogger())
	ctx := context.Background()

	created, err := svc.CreateService(ctx, &ServiceCreateRequest{Name: "worker-prod", IntervalSeconds: 60})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.Model(created).Update("consecutive_failures", 4).Error; err != nil {
		t.Fatalf("seed failures: %v", err)
	}

	hb, err := svc.RecordHeartbeat(ctx, "worker-prod", "10.0.0.1", map[string]interface{}{"version": "1.4"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if hb.ServiceID != created.ID {
		t.Fatalf("heartbeat bound to service %d, want %d", hb.ServiceID, created.ID)
	}

	fresh, err := svc.GetService(ctx, created.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if fresh.ConsecutiveFailures != 0 {
		t.Fatalf("consecutive_failures = %d, want 0 after a heartbeat", fresh.ConsecutiveFailures)
	}
}

func TestRecordHeartbeatUnknownService(t *testing.T) {
	db := newTestDB(t)
	svc := NewHeartbeatService(db, quietLogger())

	if _, err := svc.RecordHeartbeat(context.Background(), "ghost", "", nil); err == nil {
		t.Fatal("heartbeat for unknown service must fail")
	}
}

func TestRecordHeartbeatDisabledService(t *testing.T) {
	db := newTestDB(t)
	svc := NewHeartbeatService(db, quietLogger())
	ctx := context.Background()

	disabled := false
	if _, err := svc.CreateService(ctx, &ServiceCreateRequest{Name: "paused", IntervalSeconds: 60, Enabled: &disabled}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.RecordHeartbeat(ctx, "paused", "", nil); err == nil {
		t.Fatal("heartbeat for disabled service must fail")
	}
}

func TestStale(t *testing.T) {
	db := newTestDB(t)
	svc := NewHeartbeatService(db, quietLogger())
	ctx := context.Background()

	created, err := svc.CreateService(ctx, &ServiceCreateRequest{Name: "worker-prod", IntervalSeconds: 60, GraceSeconds: 30})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.RecordHeartbeat(ctx, "worker-prod", "", nil); err != nil {
		t.Fatalf("record: %v", err)
	}

	now := time.Now().UTC()
	stale, err := svc.Stale(ctx, created, now)
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if stale {
		t.Fatal("fresh heartbeat must not be stale")
	}

	// Just inside the window: 89s elapsed against interval 60 + grace 30.
	stale, err = svc.Stale(ctx, created, now.Add(89*time.Second))
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if stale {
		t.Fatal("heartbeat inside interval+grace must not be stale")
	}

	stale, err = svc.Stale(ctx, created, now.Add(91*time.Second))
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if !stale {
		t.Fatal("heartbeat past interval+grace must be stale")
	}
}

func TestStaleNeverBeat(t *testing.T) {
	db := newTestDB(t)
	svc := NewHeartbeatService(db, quietLogger())
	ctx := context.Background()

	created, err := svc.CreateService(ctx, &ServiceCreateRequest{Name: "silent", IntervalSeconds: 60})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	stale, err := svc.Stale(ctx, created, created.CreatedAt.Add(30*time.Second))
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if stale {
		t.Fatal("service inside its first interval must not be stale")
	}

	stale, err = svc.Stale(ctx, created, created.CreatedAt.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if !stale {
		t.Fatal("service that never beat must go stale after its first window")
	}
}

func TestLatestHeartbeatNil(t *testing.T) {
	db := newTestDB(t)
	svc := NewHeartbeatService(db, quietLogger())

	hb, err := svc.LatestHeartbeat(context.Background(), 42)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if hb != nil {
		t.Fatalf("expected nil for a service with no beats, got %+v", hb)
	}
}

func TestUpdateServicePartial(t *testing.T) {
	db := newTestDB(t)
	svc := NewHeartbeatService(db, quietLogger())
	ctx := context.Background()

	created, err := svc.CreateService(ctx, &ServiceCreateRequest{Name: "worker-prod", Team: "infra", IntervalSeconds: 60})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	interval := 120
	updated, err := svc.UpdateService(ctx, created.ID, &ServiceUpdateRequest{IntervalSeconds: &interval})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.IntervalSeconds != 120 {
		t.Fatalf("interval = %d, want 120", updated.IntervalSeconds)
	}
	if updated.Team != "infra" {
		t.Fatalf("team changed unexpectedly: %q", updated.Team)
	}

	bad := 0
	if _, err := svc.UpdateService(ctx, created.ID, &ServiceUpdateRequest{IntervalSeconds: &bad}); err == nil {
		t.Fatal("zero interval must be rejected")
	}
}
