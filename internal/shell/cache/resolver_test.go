package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/artpar/linkhost/internal/core/domain"
	"github.com/artpar/linkhost/internal/core/proxy"
	"github.com/artpar/linkhost/internal/shell/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeLookup struct {
	mu      sync.Mutex
	domains map[string]*domain.CustomDomain
	err     error
	calls   int
}

func (f *fakeLookup) GetDomainByHostname(ctx context.Context, hostname string) (*domain.CustomDomain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.domains[hostname]
	if !ok {
		return nil, store.NewStoreError("GetDomainByHostname", "custom_domain", hostname, "not found", store.ErrNotFound)
	}
	return d, nil
}

type failingBackend struct{}

func (failingBackend) Get(ctx context.Context, key string) (Entry, bool, error) {
	return Entry{}, false, errors.New("connection refused")
}

func (failingBackend) Set(ctx context.Context, key string, e Entry, ttl time.Duration) error {
	return errors.New("connection refused")
}

func activeDomain(host string) *domain.CustomDomain {
	return &domain.CustomDomain{
		ID:             "cdom_1",
		Hostname:       host,
		Status:         domain.StatusActive,
		DistributionID: "dist-1",
		Distribution:   &domain.Distribution{ID: "dist-1", Code: "sale"},
	}
}

func newTestResolver(t *testing.T, lookup Lookup) (*Resolver, *fakeClock) {
	t.Helper()
	r, _, clock := newTestResolverWithBackend(t, lookup, 0)
	return r, clock
}

func newTestResolverWithBackend(t *testing.T, lookup Lookup, maxEntries int) (*Resolver, *MemoryBackend, *fakeClock) {
	t.Helper()
	backend, clock := newTestMemoryBackend(t, maxEntries)
	return NewResolver(backend, lookup, Config{
		DefaultHosts: proxy.NewDefaultHosts("https://linkhost.app"),
	}), backend, clock
}

// =============================================================================
// Tests
// =============================================================================

func TestResolve_DefaultHostsBypass(t *testing.T) {
	lookup := &fakeLookup{}
	r, _ := newTestResolver(t, lookup)

	for _, host := range []string{"localhost:8080", "127.0.0.1", "linkhost.app"} {
		res, err := r.Resolve(context.Background(), host)
		require.NoError(t, err)
		assert.True(t, res.Default, host)
	}
	assert.Zero(t, lookup.calls)
}

func TestResolve_PositiveCached(t *testing.T) {
	lookup := &fakeLookup{domains: map[string]*domain.CustomDomain{"shop.example.com": activeDomain("shop.example.com")}}
	r, clock := newTestResolver(t, lookup)
	ctx := context.Background()

	res, err := r.Resolve(ctx, "Shop.Example.com:443")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, "sale", res.Route.LinkCode)

	clock.now = clock.now.Add(59 * time.Second)
	res, err = r.Resolve(ctx, "shop.example.com")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, 1, lookup.calls)

	clock.now = clock.now.Add(time.Second)
	_, err = r.Resolve(ctx, "shop.example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, lookup.calls, "positive entry expires after 60s")
}

func TestResolve_NegativeCachedShorter(t *testing.T) {
	lookup := &fakeLookup{domains: map[string]*domain.CustomDomain{}}
	r, clock := newTestResolver(t, lookup)
	ctx := context.Background()

	res, err := r.Resolve(ctx, "shop.example.com")
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.False(t, res.Default)

	// The domain becomes active without any invalidation.
	lookup.domains["shop.example.com"] = activeDomain("shop.example.com")

	clock.now = clock.now.Add(29 * time.Second)
	res, err = r.Resolve(ctx, "shop.example.com")
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, 1, lookup.calls)

	clock.now = clock.now.Add(time.Second)
	res, err = r.Resolve(ctx, "shop.example.com")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, 2, lookup.calls)
}

func TestResolve_InactiveIsNegative(t *testing.T) {
	pending := activeDomain("shop.example.com")
	pending.Status = domain.StatusVerifying
	lookup := &fakeLookup{domains: map[string]*domain.CustomDomain{"shop.example.com": pending}}
	r, _ := newTestResolver(t, lookup)

	res, err := r.Resolve(context.Background(), "shop.example.com")
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestResolve_InvalidHostIsNegative(t *testing.T) {
	lookup := &fakeLookup{}
	r, _ := newTestResolver(t, lookup)

	res, err := r.Resolve(context.Background(), "not_a_host")
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Zero(t, lookup.calls)
}

func TestResolve_InvalidHostsAreNotCached(t *testing.T) {
	lookup := &fakeLookup{}
	r, backend, _ := newTestResolverWithBackend(t, lookup, 0)

	for _, host := range []string{"not_a_host", "*.example.com", "bad host", "a..b.example.com"} {
		res, err := r.Resolve(context.Background(), host)
		require.NoError(t, err)
		assert.False(t, res.Found, host)
	}
	assert.Zero(t, backend.Len())
	assert.Zero(t, lookup.calls)
}

func TestResolve_DistinctHostsStayBounded(t *testing.T) {
	lookup := &fakeLookup{domains: map[string]*domain.CustomDomain{}}
	r, backend, clock := newTestResolverWithBackend(t, lookup, 100)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		res, err := r.Resolve(ctx, fmt.Sprintf("x%d.attacker.example", i))
		require.NoError(t, err)
		assert.False(t, res.Found)
	}
	assert.Equal(t, 100, backend.Len())

	clock.now = clock.now.Add(time.Hour)
	_, err := r.Resolve(ctx, "late.attacker.example")
	require.NoError(t, err)
	assert.LessOrEqual(t, backend.Len(), 100)
}

func TestResolve_CaseAndPortShareEntry(t *testing.T) {
	lookup := &fakeLookup{domains: map[string]*domain.CustomDomain{"shop.example.com": activeDomain("shop.example.com")}}
	r, _ := newTestResolver(t, lookup)
	ctx := context.Background()

	for _, host := range []string{"shop.example.com", "SHOP.example.com:443", "shop.example.com."} {
		res, err := r.Resolve(ctx, host)
		require.NoError(t, err)
		assert.True(t, res.Found, host)
	}
	assert.Equal(t, 1, lookup.calls)
}

func TestResolve_StoreError(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("database is locked")}
	r, _ := newTestResolver(t, lookup)

	_, err := r.Resolve(context.Background(), "shop.example.com")
	assert.Error(t, err)
}

func TestResolve_BackendErrorsDegradeToStore(t *testing.T) {
	lookup := &fakeLookup{domains: map[string]*domain.CustomDomain{"shop.example.com": activeDomain("shop.example.com")}}
	r := NewResolver(failingBackend{}, lookup, Config{})

	for i := 0; i < 2; i++ {
		res, err := r.Resolve(context.Background(), "shop.example.com")
		require.NoError(t, err)
		assert.True(t, res.Found)
	}
	assert.Equal(t, 2, lookup.calls)
}
