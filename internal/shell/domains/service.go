// Package domains orchestrates the custom domain lifecycle: creation,
// DNS verification, edge hostname provisioning and status refresh.
// This is part of the Imperative Shell - it sequences store, DNS and
// provider I/O around the pure decisions in internal/core.
package domains

import (
	"context"
	"errors"
	"log/slog"
	"time"

	coredns "github.com/artpar/linkhost/internal/core/dns"
	"github.com/artpar/linkhost/internal/core/domain"
	"github.com/artpar/linkhost/internal/core/hostname"
	"github.com/artpar/linkhost/internal/shell/edge"
	"github.com/artpar/linkhost/internal/shell/probe"
	"github.com/artpar/linkhost/internal/shell/store"
)

// =============================================================================
// Ports
// =============================================================================

// DNSResolver looks up the records named by a domain's instructions.
type DNSResolver interface {
	Resolve(ctx context.Context, inst domain.Instructions) coredns.VerificationInput
}

// =============================================================================
// Service
// =============================================================================

// Config holds orchestrator settings.
type Config struct {
	// DNSTarget is the default CNAME target for new domains.
	DNSTarget string

	// StrictDNS fails verify with DNS_LOOKUP_FAILED when the resolver errors,
	// instead of treating the failure as missing records.
	StrictDNS bool

	Logger *slog.Logger
	Now    func() time.Time
}

// Service implements the custom domain operations.
type Service struct {
	store    store.Store
	resolver DNSResolver
	edge     edge.Client
	prober   probe.Prober
	cfg      Config
	logger   *slog.Logger
}

// NewService creates a new domain service. prober may be nil to skip
// liveness checks.
func NewService(s store.Store, resolver DNSResolver, edgeClient edge.Client, prober probe.Prober, cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:    s,
		resolver: resolver,
		edge:     edgeClient,
		prober:   prober,
		cfg:      cfg,
		logger:   logger.With("component", "domains"),
	}
}

// =============================================================================
// Results
// =============================================================================

// CreateInput is a request to attach a hostname.
type CreateInput struct {
	Hostname       string
	DistributionID string
	DNSTarget      string // overrides the configured default when set
}

// VerifyResult is the outcome of a successful verify.
type VerifyResult struct {
	Domain *domain.CustomDomain
	DNS    coredns.Check
}

// ProviderState is the provider status reported by refresh.
type ProviderState struct {
	HostnameStatus string   `json:"hostname_status"`
	SSLStatus      string   `json:"ssl_status"`
	Errors         []string `json:"errors"`
}

// RefreshResult is the outcome of a refresh.
type RefreshResult struct {
	Domain   *domain.CustomDomain
	Provider ProviderState
	HTTPS    *probe.Result // set only when the domain is active
}

// Resolution maps a hostname to the link it serves.
type Resolution struct {
	Hostname       string        `json:"hostname"`
	DistributionID string        `json:"distribution_id"`
	LinkCode       string        `json:"link_code"`
	Status         domain.Status `json:"status"`
}

// =============================================================================
// Create / Read
// =============================================================================

// Create validates and persists a new custom domain in pending_dns.
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (*domain.CustomDomain, error) {
	if ownerID == "" {
		return nil, domain.NewError(domain.KindUnauthenticated, "authentication required")
	}

	host, err := hostname.ForCreation(in.Hostname)
	if err != nil {
		return nil, hostnameError(err)
	}

	target := s.cfg.DNSTarget
	if in.DNSTarget != "" {
		target, err = hostname.Normalize(in.DNSTarget)
		if err != nil {
			return nil, domain.WrapError(domain.KindInvalidRequest, "invalid dns target", err)
		}
	}
	if target == "" {
		return nil, domain.NewError(domain.KindInternal, "no default dns target configured")
	}

	var dist *domain.Distribution
	if in.DistributionID != "" {
		dist, err = s.store.GetDistribution(ctx, in.DistributionID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.NewError(domain.KindDistributionNotFound, "distribution not found")
		}
		if err != nil {
			return nil, internalError(err)
		}
		if dist.OwnerID != ownerID {
			return nil, domain.NewError(domain.KindForbiddenDistribution, "distribution belongs to another user")
		}
	}

	d, err := domain.NewCustomDomain(ownerID, in.DistributionID, host, target)
	if err != nil {
		return nil, internalError(err)
	}

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		if _, err := tx.GetDomainByHostname(ctx, host); err == nil {
			return store.ErrDuplicateHostname
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		// The unique index is authoritative for concurrent creators.
		return tx.CreateDomain(ctx, d)
	})
	switch {
	case errors.Is(err, store.ErrDuplicateHostname):
		return nil, domain.NewError(domain.KindHostnameExists, "hostname "+host+" is already registered")
	case errors.Is(err, store.ErrForeignKey):
		return nil, domain.NewError(domain.KindDistributionNotFound, "distribution not found")
	case err != nil:
		return nil, internalError(err)
	}

	d.Distribution = dist
	s.logger.Info("custom domain created", "domain_id", d.ID, "hostname", d.Hostname, "owner_id", ownerID)
	return d, nil
}

// Get returns an owned domain. Domains of other owners are reported as not found.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*domain.CustomDomain, error) {
	if ownerID == "" {
		return nil, domain.NewError(domain.KindUnauthenticated, "authentication required")
	}
	if id == "" {
		return nil, domain.NewError(domain.KindInvalidRequest, "domain id is required")
	}

	d, err := s.store.GetDomain(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && d.OwnerID != ownerID) {
		return nil, domain.NewError(domain.KindDomainNotFound, "custom domain not found")
	}
	if err != nil {
		return nil, internalError(err)
	}
	return d, nil
}

// List returns the owner's domains, newest first.
func (s *Service) List(ctx context.Context, ownerID string, opts store.ListOptions) ([]domain.CustomDomain, error) {
	if ownerID == "" {
		return nil, domain.NewError(domain.KindUnauthenticated, "authentication required")
	}
	domains, err := s.store.ListDomainsByOwner(ctx, ownerID, opts)
	if err != nil {
		return nil, internalError(err)
	}
	return domains, nil
}

// ListByStatus returns domains in status for background processing.
func (s *Service) ListByStatus(ctx context.Context, status domain.Status, limit int) ([]domain.CustomDomain, error) {
	domains, err := s.store.ListDomainsByStatus(ctx, status, store.ListOptions{Limit: limit})
	if err != nil {
		return nil, internalError(err)
	}
	return domains, nil
}

// Resolve maps an inbound hostname to its link. It does not require an owner.
func (s *Service) Resolve(ctx context.Context, raw string) (*Resolution, error) {
	host, err := hostname.Normalize(raw)
	if err != nil {
		return nil, domain.WrapError(domain.KindInvalidHostname, "invalid hostname", err)
	}

	d, err := s.store.GetDomainByHostname(ctx, host)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.NewError(domain.KindNotFound, "no custom domain for "+host)
	}
	if err != nil {
		return nil, internalError(err)
	}

	res := &Resolution{
		Hostname:       d.Hostname,
		DistributionID: d.DistributionID,
		Status:         d.Status,
	}
	if d.Distribution != nil {
		res.LinkCode = d.Distribution.Code
	}
	return res, nil
}

// =============================================================================
// Verify
// =============================================================================

// Verify checks the owner's DNS records and, when both match, provisions the
// edge hostname.
func (s *Service) Verify(ctx context.Context, ownerID, id string) (*VerifyResult, error) {
	d, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	return s.VerifyDomain(ctx, d)
}

// VerifyDomain runs the verify transition for d without an ownership check.
// A failed DNS check persists pending_dns and returns DNS_NOT_READY carrying
// the check. A provider failure leaves the record untouched.
func (s *Service) VerifyDomain(ctx context.Context, d *domain.CustomDomain) (*VerifyResult, error) {
	inst := d.Instructions()
	input := s.resolver.Resolve(ctx, inst)
	check := coredns.Verify(input, inst)

	if s.cfg.StrictDNS && (input.CNAMEError != "" || input.TXTError != "") {
		return nil, domain.NewError(domain.KindDNSLookupFailed, "DNS resolver failed; try again later").
			WithDetail(map[string]any{"dns": check})
	}

	now := s.cfg.Now().UTC()

	if !check.OK {
		msg := domain.DNSFailureMessage(check.CNAME.OK, check.TXT.OK)
		updated, err := s.transition(ctx, d, domain.StatusPendingDNS, domain.Patch{
			LastError:     &msg,
			LastCheckedAt: &now,
		})
		if err != nil {
			return nil, err
		}
		return nil, domain.NewError(domain.KindDNSNotReady, msg).
			WithDetail(map[string]any{"dns": check, "domain_id": updated.ID, "status": updated.Status})
	}

	edgeID, err := s.ensureEdgeHostname(ctx, d)
	if err != nil {
		return nil, err
	}

	cleared := ""
	updated, err := s.transition(ctx, d, domain.StatusVerifying, domain.Patch{
		CFHostnameID:  &edgeID,
		LastError:     &cleared,
		LastCheckedAt: &now,
	})
	if err != nil {
		return nil, err
	}
	return &VerifyResult{Domain: updated, DNS: check}, nil
}

// ensureEdgeHostname returns the provider id for d, creating the hostname
// only when d has none. A create rejected as a duplicate adopts the
// provider's existing hostname.
func (s *Service) ensureEdgeHostname(ctx context.Context, d *domain.CustomDomain) (string, error) {
	if d.HasEdgeHostname() {
		return d.CFHostnameID, nil
	}

	h, err := s.edge.CreateHostname(ctx, d.Hostname)
	if edge.IsDuplicate(err) {
		s.logger.Info("edge hostname already exists, adopting it", "domain_id", d.ID, "hostname", d.Hostname)
		h, err = s.edge.FindHostname(ctx, d.Hostname)
	}
	if err != nil {
		s.logger.Warn("edge hostname creation failed", "domain_id", d.ID, "hostname", d.Hostname, "error", err)
		return "", providerError(err)
	}
	if h.ID == "" {
		return "", domain.NewError(domain.KindCloudflareError, "cloudflare: provider returned no hostname id")
	}
	return h.ID, nil
}

// =============================================================================
// Refresh
// =============================================================================

// Refresh polls the provider for an owned domain and applies the result.
func (s *Service) Refresh(ctx context.Context, ownerID, id string) (*RefreshResult, error) {
	d, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	return s.RefreshDomain(ctx, d)
}

// RefreshDomain runs the refresh transition for d without an ownership check.
func (s *Service) RefreshDomain(ctx context.Context, d *domain.CustomDomain) (*RefreshResult, error) {
	if !d.HasEdgeHostname() {
		return nil, domain.NewError(domain.KindCloudflareHostnameMissing, "domain has not been verified yet; run verify first")
	}

	h, err := s.edge.GetHostname(ctx, d.CFHostnameID)
	if err != nil {
		s.logger.Warn("edge hostname poll failed", "domain_id", d.ID, "cf_hostname_id", d.CFHostnameID, "error", err)
		return nil, providerError(err)
	}

	state := h.EdgeState()
	outcome := domain.DecideRefresh(state)
	now := s.cfg.Now().UTC()

	updated, err := s.transition(ctx, d, outcome.Status, domain.Patch{
		LastError:     &outcome.LastError,
		LastCheckedAt: &now,
	})
	if err != nil {
		return nil, err
	}

	result := &RefreshResult{
		Domain: updated,
		Provider: ProviderState{
			HostnameStatus: state.HostnameStatus,
			SSLStatus:      state.SSLStatus,
			Errors:         state.Errors,
		},
	}
	if updated.Status == domain.StatusActive && s.prober != nil {
		r := s.prober.Probe(ctx, updated.Hostname)
		result.HTTPS = &r
	}
	return result, nil
}

// =============================================================================
// Helpers
// =============================================================================

// transition persists patch with status to and logs status changes.
func (s *Service) transition(ctx context.Context, d *domain.CustomDomain, to domain.Status, patch domain.Patch) (*domain.CustomDomain, error) {
	if !d.CanTransition(to) {
		return nil, domain.NewError(domain.KindInternal, "illegal transition from "+string(d.Status)+" to "+string(to))
	}
	patch.Status = &to

	updated, err := s.store.UpdateDomain(ctx, d.ID, patch)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.NewError(domain.KindDomainNotFound, "custom domain not found")
	}
	if err != nil {
		return nil, internalError(err)
	}

	if d.Status != to {
		s.logger.Info("custom domain status changed",
			"domain_id", d.ID,
			"hostname", d.Hostname,
			"from", d.Status,
			"to", to,
			"last_error", updated.LastError,
		)
	}
	return updated, nil
}

func hostnameError(err error) *domain.Error {
	switch {
	case errors.Is(err, hostname.ErrWildcard):
		return domain.WrapError(domain.KindWildcardNotAllowed, "wildcard hostnames are not allowed", err)
	case errors.Is(err, hostname.ErrApex):
		return domain.WrapError(domain.KindApexNotAllowed, "apex domains are not supported; use a subdomain such as www", err)
	default:
		return domain.WrapError(domain.KindInvalidHostname, err.Error(), err)
	}
}

func providerError(err error) *domain.Error {
	if errors.Is(err, edge.ErrNotConfigured) {
		return domain.WrapError(domain.KindCloudflareNotConfigured, "edge provider credentials are not configured", err)
	}
	var pe *edge.ProviderError
	if errors.As(err, &pe) {
		return domain.WrapError(domain.KindCloudflareError, pe.Error(), err).
			WithDetail(map[string]any{"upstream_status": pe.StatusCode, "upstream_body": pe.Body})
	}
	if edge.IsProviderError(err) {
		return domain.WrapError(domain.KindCloudflareError, err.Error(), err)
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return de
	}
	return internalError(err)
}

func internalError(err error) *domain.Error {
	var de *domain.Error
	if errors.As(err, &de) {
		return de
	}
	return domain.WrapError(domain.KindInternal, "internal error", err)
}
