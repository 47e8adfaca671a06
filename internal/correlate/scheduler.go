package correlate

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/vendorwatch/internal/monitoring"
)

// Scheduler runs scans on each tenant's configured cadence. It ticks at a
// fixed resolution and scans a tenant whenever its interval has elapsed
// since the last run; scans for different tenants run sequentially within
// one tick to keep database load predictable.
type Scheduler struct {
	svc     *Service
	configs monitoring.Store
	logger  log.Logger
	tick    time.Duration

	mu      sync.Mutex
	lastRun map[string]time.Time
	now     func() time.Time
}

// NewScheduler creates a scheduler ticking at the given resolution.
func NewScheduler(svc *Service, configs monitoring.Store, logger log.Logger, tick time.Duration) *Scheduler {
	if logger == nil {
		logger = log.Nop()
	}
	if tick <= 0 {
		tick = 15 * time.Minute
	}
	return &Scheduler{
		svc:     svc,
		configs: configs,
		logger:  logger,
		tick:    tick,
		lastRun: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Run blocks until ctx is cancelled, scanning due tenants on every tick.
func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(s.tick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.runDue(ctx)
		}
	}
}

func (s *Scheduler) runDue(ctx context.Context) {
	tenants, err := s.configs.ListTenants(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "list tenants for scheduled scan failed")
		return
	}

	for _, tenant := range tenants {
		if ctx.Err() != nil {
			return
		}
		if !s.due(ctx, tenant) {
			continue
		}
		if _, err := s.svc.ScanAndCorrelate(ctx, tenant, 0); err != nil {
			s.logger.Error(ctx, err, "scheduled scan failed", "tenant", tenant)
		}
	}
}

func (s *Scheduler) due(ctx context.Context, tenant string) bool {
	cfg, err := s.configs.GetConfig(ctx, tenant)
	if err != nil {
		s.logger.Error(ctx, err, "load config for scheduled scan failed", "tenant", tenant)
		return false
	}
	if !cfg.Enabled {
		return false
	}

	interval := cfg.ScanInterval
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastRun[tenant]
	if ok && s.now().Sub(last) < interval {
		return false
	}
	s.lastRun[tenant] = s.now()
	return true
}
