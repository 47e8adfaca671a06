package correlate

import (
	"context"
	"testing"
	"time"

	"github.com/linnemanlabs/vendorwatch/internal/monitoring"
	"github.com/linnemanlabs/vendorwatch/internal/store/memstore"
)

func TestSchedulerDue(t *testing.T) {
	t.Parallel()
	s := memstore.New()
	ctx := context.Background()

	cfg := monitoring.Defaults("t1")
	cfg.ScanInterval = time.Hour
	s.PutConfig(cfg)

	sched := NewScheduler(newTestService(s, nil), s, nil, time.Minute)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	sched.now = func() time.Time { return clock }

	if !sched.due(ctx, "t1") {
		t.Fatal("due() = false on first check, want true")
	}
	if sched.due(ctx, "t1") {
		t.Error("due() = true immediately after a run, want false")
	}

	clock = base.Add(30 * time.Minute)
	if sched.due(ctx, "t1") {
		t.Error("due() = true before the interval elapsed, want false")
	}

	clock = base.Add(time.Hour)
	if !sched.due(ctx, "t1") {
		t.Error("due() = false after the interval elapsed, want true")
	}
}

func TestSchedulerSkipsDisabledTenant(t *testing.T) {
	t.Parallel()
	s := memstore.New()

	cfg := monitoring.Defaults("t1")
	cfg.Enabled = false
	s.PutConfig(cfg)

	sched := NewScheduler(newTestService(s, nil), s, nil, time.Minute)
	if sched.due(context.Background(), "t1") {
		t.Error("due() = true for disabled tenant, want false")
	}
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	s := memstore.New()
	sched := NewScheduler(newTestService(s, nil), s, nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
