package store

import (
	"context"

	"github.com/artpar/linkhost/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for custom domains.
type Store interface {
	// Custom domain operations
	CreateDomain(ctx context.Context, d *domain.CustomDomain) error
	GetDomain(ctx context.Context, id string) (*domain.CustomDomain, error)
	GetDomainByHostname(ctx context.Context, hostname string) (*domain.CustomDomain, error)
	ListDomainsByOwner(ctx context.Context, ownerID string, opts ListOptions) ([]domain.CustomDomain, error)
	ListDomainsByStatus(ctx context.Context, status domain.Status, opts ListOptions) ([]domain.CustomDomain, error)
	UpdateDomain(ctx context.Context, id string, patch domain.Patch) (*domain.CustomDomain, error)

	// Distribution lookups (distributions are owned by the link service)
	CreateDistribution(ctx context.Context, dist *domain.Distribution) error
	GetDistribution(ctx context.Context, id string) (*domain.Distribution, error)

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
