package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/artpar/linkhost/internal/core/domain"
	"github.com/artpar/linkhost/internal/core/hostname"
	"github.com/artpar/linkhost/internal/core/proxy"
	"github.com/artpar/linkhost/internal/shell/store"
)

// Default TTLs. Negative entries expire sooner so a newly activated domain
// becomes routable without an invalidation signal.
const (
	DefaultPositiveTTL = 60 * time.Second
	DefaultNegativeTTL = 30 * time.Second
)

// Lookup is the read-only store path used on a cache miss.
type Lookup interface {
	GetDomainByHostname(ctx context.Context, hostname string) (*domain.CustomDomain, error)
}

// Config holds resolver settings.
type Config struct {
	PositiveTTL  time.Duration
	NegativeTTL  time.Duration
	DefaultHosts proxy.DefaultHosts
	Logger       *slog.Logger
}

// Result is the outcome of resolving an inbound Host header.
type Result struct {
	// Default is set for platform hosts, which skip custom domain routing.
	Default bool
	Found   bool
	Route   proxy.Route
}

// Resolver maps Host headers to routes through a Backend.
type Resolver struct {
	backend Backend
	lookup  Lookup
	cfg     Config
	logger  *slog.Logger
}

// NewResolver creates a caching resolver.
func NewResolver(backend Backend, lookup Lookup, cfg Config) *Resolver {
	if cfg.PositiveTTL <= 0 {
		cfg.PositiveTTL = DefaultPositiveTTL
	}
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = DefaultNegativeTTL
	}
	if cfg.DefaultHosts == nil {
		cfg.DefaultHosts = proxy.NewDefaultHosts()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		backend: backend,
		lookup:  lookup,
		cfg:     cfg,
		logger:  logger.With("component", "resolution_cache"),
	}
}

// Resolve returns the route for the raw Host header value. Backend errors
// fall through to the store; only store errors are returned. Hosts that are
// not valid hostnames resolve negative without touching the cache or the store.
func (r *Resolver) Resolve(ctx context.Context, rawHost string) (Result, error) {
	if r.cfg.DefaultHosts.Contains(rawHost) {
		return Result{Default: true}, nil
	}

	key, err := hostname.Normalize(proxy.HostOnly(rawHost))
	if err != nil {
		return Result{}, nil
	}

	entry, ok, err := r.backend.Get(ctx, key)
	if err != nil {
		r.logger.Warn("cache read failed", "host", key, "error", err)
	} else if ok {
		return Result{Found: entry.Found, Route: entry.Route}, nil
	}

	entry, err = r.load(ctx, key)
	if err != nil {
		return Result{}, err
	}

	ttl := r.cfg.NegativeTTL
	if entry.Found {
		ttl = r.cfg.PositiveTTL
	}
	if err := r.backend.Set(ctx, key, entry, ttl); err != nil {
		r.logger.Warn("cache write failed", "host", key, "error", err)
	}

	return Result{Found: entry.Found, Route: entry.Route}, nil
}

func (r *Resolver) load(ctx context.Context, host string) (Entry, error) {
	d, err := r.lookup.GetDomainByHostname(ctx, host)
	if errors.Is(err, store.ErrNotFound) {
		return Entry{}, nil
	}
	if err != nil {
		return Entry{}, err
	}

	route, ok := proxy.RouteFor(d)
	return Entry{Found: ok, Route: route}, nil
}
