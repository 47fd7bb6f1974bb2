// Package workers contains background loops that advance custom domains
// without a caller polling the API.
package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/artpar/linkhost/internal/core/domain"
	"github.com/artpar/linkhost/internal/shell/domains"
)

// DomainProcessor is the part of the domain service the refresher drives.
// *domains.Service implements it.
type DomainProcessor interface {
	ListByStatus(ctx context.Context, status domain.Status, limit int) ([]domain.CustomDomain, error)
	VerifyDomain(ctx context.Context, d *domain.CustomDomain) (*domains.VerifyResult, error)
	RefreshDomain(ctx context.Context, d *domain.CustomDomain) (*domains.RefreshResult, error)
}

// RefresherConfig configures the refresher.
type RefresherConfig struct {
	Interval      time.Duration
	MaxConcurrent int
	BatchSize     int

	// StartDelay postpones the first cycle after Start.
	StartDelay time.Duration

	// CycleTimeout bounds a single cycle.
	CycleTimeout time.Duration
}

// DefaultRefresherConfig returns default configuration.
func DefaultRefresherConfig() RefresherConfig {
	return RefresherConfig{
		Interval:      60 * time.Second,
		MaxConcurrent: 5,
		BatchSize:     100,
		StartDelay:    10 * time.Second,
		CycleTimeout:  2 * time.Minute,
	}
}

// CycleStats summarizes one refresher cycle.
type CycleStats struct {
	Verified  int // pending_dns domains whose DNS matched
	Pending   int // pending_dns domains still waiting on DNS
	Refreshed int // verifying domains refreshed from the provider
	Failed    int
}

// Refresher periodically verifies pending_dns domains and refreshes
// verifying domains.
type Refresher struct {
	processor DomainProcessor
	config    RefresherConfig
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewRefresher creates a new refresher. Zero config fields take defaults.
func NewRefresher(p DomainProcessor, config RefresherConfig, logger *slog.Logger) *Refresher {
	def := DefaultRefresherConfig()
	if config.Interval == 0 {
		config.Interval = def.Interval
	}
	if config.MaxConcurrent == 0 {
		config.MaxConcurrent = def.MaxConcurrent
	}
	if config.BatchSize == 0 {
		config.BatchSize = def.BatchSize
	}
	if config.CycleTimeout == 0 {
		config.CycleTimeout = def.CycleTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Refresher{
		processor: p,
		config:    config,
		logger:    logger.With("component", "refresher"),
	}
}

// Start begins the refresher background goroutine.
func (r *Refresher) Start() {
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.wg.Add(1)
	go r.run()
	r.logger.Info("refresher started", "interval", r.config.Interval)
}

// Stop gracefully stops the refresher and waits for the running cycle.
func (r *Refresher) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info("refresher stopped")
}

func (r *Refresher) run() {
	defer r.wg.Done()

	if r.config.StartDelay > 0 {
		timer := time.NewTimer(r.config.StartDelay)
		select {
		case <-r.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
	r.RunCycle(r.ctx)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.RunCycle(r.ctx)
		}
	}
}

// RunCycle processes one batch of verifying and pending_dns domains.
// Failures are logged and counted, never returned.
func (r *Refresher) RunCycle(parent context.Context) CycleStats {
	ctx, cancel := context.WithTimeout(parent, r.config.CycleTimeout)
	defer cancel()

	var (
		stats CycleStats
		mu    sync.Mutex
	)
	count := func(f func(*CycleStats)) {
		mu.Lock()
		f(&stats)
		mu.Unlock()
	}

	verifying, err := r.processor.ListByStatus(ctx, domain.StatusVerifying, r.config.BatchSize)
	if err != nil {
		r.logger.Error("failed to list verifying domains", "error", err)
	}
	pending, err := r.processor.ListByStatus(ctx, domain.StatusPendingDNS, r.config.BatchSize)
	if err != nil {
		r.logger.Error("failed to list pending domains", "error", err)
	}
	if len(verifying)+len(pending) == 0 {
		return stats
	}

	r.logger.Debug("refreshing custom domains", "verifying", len(verifying), "pending_dns", len(pending))

	sem := make(chan struct{}, r.config.MaxConcurrent)
	var wg sync.WaitGroup
	dispatch := func(d domain.CustomDomain, work func(context.Context, *domain.CustomDomain)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case sem <- struct{}{}:
				defer func() { <-sem }()
			}
			work(ctx, &d)
		}()
	}

	refresh := func(ctx context.Context, d *domain.CustomDomain) {
		if _, err := r.processor.RefreshDomain(ctx, d); err != nil {
			r.logger.Warn("domain refresh failed",
				"domain_id", d.ID, "hostname", d.Hostname, "code", string(domain.KindOf(err)), "error", err)
			count(func(s *CycleStats) { s.Failed++ })
			return
		}
		count(func(s *CycleStats) { s.Refreshed++ })
	}

	for _, d := range verifying {
		dispatch(d, refresh)
	}

	// A pending_dns domain that already has an edge hostname was sent back by
	// the provider; only the provider can move it forward again.
	for _, d := range pending {
		if d.HasEdgeHostname() {
			dispatch(d, refresh)
			continue
		}
		dispatch(d, func(ctx context.Context, d *domain.CustomDomain) {
			_, err := r.processor.VerifyDomain(ctx, d)
			switch {
			case err == nil:
				count(func(s *CycleStats) { s.Verified++ })
			case domain.KindOf(err) == domain.KindDNSNotReady:
				count(func(s *CycleStats) { s.Pending++ })
			default:
				r.logger.Warn("domain verify failed",
					"domain_id", d.ID, "hostname", d.Hostname, "code", string(domain.KindOf(err)), "error", err)
				count(func(s *CycleStats) { s.Failed++ })
			}
		})
	}

	wg.Wait()
	return stats
}
