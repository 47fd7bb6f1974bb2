package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	coredns "github.com/artpar/linkhost/internal/core/dns"
	"github.com/artpar/linkhost/internal/core/domain"
	"github.com/artpar/linkhost/internal/shell/domains"
	"github.com/artpar/linkhost/internal/shell/probe"
	"github.com/artpar/linkhost/internal/shell/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

// stubService implements DomainService for testing.
type stubService struct {
	domains map[string]*domain.CustomDomain
	err     error // If set, all operations return this error

	lastOwner string
	lastInput domains.CreateInput
	lastOpts  store.ListOptions
	verify    *domains.VerifyResult
	refresh   *domains.RefreshResult
}

func newStubService() *stubService {
	return &stubService{domains: make(map[string]*domain.CustomDomain)}
}

func (s *stubService) Create(ctx context.Context, ownerID string, in domains.CreateInput) (*domain.CustomDomain, error) {
	s.lastOwner, s.lastInput = ownerID, in
	if s.err != nil {
		return nil, s.err
	}
	d := sampleDomain("dom_new", ownerID, in.Hostname)
	s.domains[d.ID] = d
	return d, nil
}

func (s *stubService) List(ctx context.Context, ownerID string, opts store.ListOptions) ([]domain.CustomDomain, error) {
	s.lastOwner, s.lastOpts = ownerID, opts
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.CustomDomain
	for _, d := range s.domains {
		if d.OwnerID == ownerID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *stubService) Get(ctx context.Context, ownerID, id string) (*domain.CustomDomain, error) {
	if s.err != nil {
		return nil, s.err
	}
	d, ok := s.domains[id]
	if !ok || d.OwnerID != ownerID {
		return nil, domain.NewError(domain.KindDomainNotFound, "custom domain not found")
	}
	return d, nil
}

func (s *stubService) Verify(ctx context.Context, ownerID, id string) (*domains.VerifyResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.verify, nil
}

func (s *stubService) Refresh(ctx context.Context, ownerID, id string) (*domains.RefreshResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.refresh, nil
}

func (s *stubService) Resolve(ctx context.Context, hostname string) (*domains.Resolution, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, d := range s.domains {
		if d.Hostname == hostname {
			return &domains.Resolution{Hostname: d.Hostname, DistributionID: d.DistributionID, LinkCode: "abc", Status: d.Status}, nil
		}
	}
	return nil, domain.NewError(domain.KindNotFound, "no custom domain for "+hostname)
}

func sampleDomain(id, owner, host string) *domain.CustomDomain {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &domain.CustomDomain{
		ID:                 id,
		OwnerID:            owner,
		Hostname:           host,
		Status:             domain.StatusPendingDNS,
		VerificationMethod: domain.VerificationMethodTXT,
		VerificationToken:  "tok123",
		DNSTarget:          "edge.linkhost.app",
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func setupHandler(svc DomainService, cfg Config) http.Handler {
	return NewHandler(svc, cfg).Routes()
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any, owner string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if owner != "" {
		req.Header.Set("X-User-ID", owner)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorObject {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Errors, 1)
	return resp.Errors[0]
}

// =============================================================================
// Health / Middleware
// =============================================================================

func TestHealth(t *testing.T) {
	h := setupHandler(newStubService(), Config{RequireAuth: true})

	rec := doRequest(t, h, http.MethodGet, "/health", nil, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
}

func TestDomains_RequireAuth(t *testing.T) {
	h := setupHandler(newStubService(), Config{RequireAuth: true})

	rec := doRequest(t, h, http.MethodGet, "/api/v1/domains", nil, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHENTICATED", decodeError(t, rec).Code)
}

func TestDomains_SharedSecret(t *testing.T) {
	h := setupHandler(newStubService(), Config{SharedSecret: "s3cret"})

	rec := doRequest(t, h, http.MethodGet, "/api/v1/domains", nil, "user_1")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/domains", nil)
	req.Header.Set("X-User-ID", "user_1")
	req.Header.Set("X-Gateway-Secret", "s3cret")
	ok := httptest.NewRecorder()
	h.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)
}

// =============================================================================
// Domain Handlers
// =============================================================================

func TestCreateDomain(t *testing.T) {
	svc := newStubService()
	h := setupHandler(svc, Config{RequireAuth: true})

	rec := doRequest(t, h, http.MethodPost, "/api/v1/domains", CreateDomainRequest{
		Hostname:       "links.example.com",
		DistributionID: "dist_1",
	}, "user_1")

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "user_1", svc.lastOwner)
	assert.Equal(t, "dist_1", svc.lastInput.DistributionID)

	var resp DomainEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "links.example.com", resp.Data.Hostname)
	assert.Equal(t, "pending_dns", resp.Data.Status)
	assert.Nil(t, resp.Data.CFHostnameID)
	assert.Nil(t, resp.Data.LastError)
	assert.Equal(t, "CNAME", resp.Data.Instructions.CNAME.Type)
	assert.Equal(t, "edge.linkhost.app", resp.Data.Instructions.CNAME.Value)
	assert.Equal(t, resp.Data.Instructions.TXT.Name, resp.Data.TXTName)
	assert.Equal(t, resp.Data.Instructions.TXT.Value, resp.Data.TXTValue)
}

func TestCreateDomain_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		svcErr     error
		wantStatus int
		wantCode   string
	}{
		{"malformed json", "{", nil, http.StatusBadRequest, "INVALID_REQUEST"},
		{"missing hostname", `{}`, nil, http.StatusBadRequest, "INVALID_HOSTNAME"},
		{"wildcard", `{"hostname":"*.example.com"}`, domain.NewError(domain.KindWildcardNotAllowed, "wildcard"), http.StatusBadRequest, "WILDCARD_NOT_ALLOWED"},
		{"apex", `{"hostname":"example.com"}`, domain.NewError(domain.KindApexNotAllowed, "apex"), http.StatusBadRequest, "APEX_NOT_ALLOWED"},
		{"duplicate", `{"hostname":"a.example.com"}`, domain.NewError(domain.KindHostnameExists, "exists"), http.StatusConflict, "HOSTNAME_EXISTS"},
		{"foreign distribution", `{"hostname":"a.example.com","distribution_id":"d"}`, domain.NewError(domain.KindForbiddenDistribution, "forbidden"), http.StatusForbidden, "FORBIDDEN_DISTRIBUTION"},
		{"unknown distribution", `{"hostname":"a.example.com","distribution_id":"d"}`, domain.NewError(domain.KindDistributionNotFound, "missing"), http.StatusNotFound, "DISTRIBUTION_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newStubService()
			svc.err = tt.svcErr
			h := setupHandler(svc, Config{RequireAuth: true})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/domains", bytes.NewBufferString(tt.body))
			req.Header.Set("X-User-ID", "user_1")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			obj := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, obj.Code)
			assert.Equal(t, http.StatusText(tt.wantStatus), obj.Title)
		})
	}
}

func TestListDomains(t *testing.T) {
	svc := newStubService()
	svc.domains["dom_1"] = sampleDomain("dom_1", "user_1", "a.example.com")
	svc.domains["dom_2"] = sampleDomain("dom_2", "user_2", "b.example.com")
	h := setupHandler(svc, Config{RequireAuth: true})

	rec := doRequest(t, h, http.MethodGet, "/api/v1/domains?limit=10&offset=0", nil, "user_1")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp DomainListEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "a.example.com", resp.Data[0].Hostname)
	assert.Equal(t, 1, resp.Meta.Count)
	assert.Equal(t, 10, resp.Meta.Limit)
	assert.Equal(t, 10, svc.lastOpts.Limit)
}

func TestListDomains_EmptyIsArray(t *testing.T) {
	h := setupHandler(newStubService(), Config{RequireAuth: true})

	rec := doRequest(t, h, http.MethodGet, "/api/v1/domains", nil, "user_1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestListDomains_BadPaging(t *testing.T) {
	h := setupHandler(newStubService(), Config{RequireAuth: true})

	rec := doRequest(t, h, http.MethodGet, "/api/v1/domains?limit=abc", nil, "user_1")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeError(t, rec).Code)
}

func TestGetDomain_OtherOwnerIsNotFound(t *testing.T) {
	svc := newStubService()
	svc.domains["dom_1"] = sampleDomain("dom_1", "user_1", "a.example.com")
	h := setupHandler(svc, Config{RequireAuth: true})

	rec := doRequest(t, h, http.MethodGet, "/api/v1/domains/dom_1", nil, "user_2")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "DOMAIN_NOT_FOUND", decodeError(t, rec).Code)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/domains/dom_1", nil, "user_1")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVerifyDomain(t *testing.T) {
	svc := newStubService()
	d := sampleDomain("dom_1", "user_1", "a.example.com")
	d.Status = domain.StatusVerifying
	d.CFHostnameID = "cf_1"
	svc.verify = &domains.VerifyResult{
		Domain: d,
		DNS: coredns.Check{
			OK:    true,
			CNAME: coredns.RecordCheck{Type: "CNAME", OK: true, Expected: "edge.linkhost.app", Found: []string{"edge.linkhost.app"}},
			TXT:   coredns.RecordCheck{Type: "TXT", OK: true, Found: []string{"tok"}},
		},
	}
	h := setupHandler(svc, Config{RequireAuth: true})

	rec := doRequest(t, h, http.MethodPost, "/api/v1/domains/dom_1/verify", nil, "user_1")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp VerifyEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "verifying", resp.Data.Status)
	require.NotNil(t, resp.Data.CFHostnameID)
	assert.Equal(t, "cf_1", *resp.Data.CFHostnameID)
	assert.True(t, resp.Meta.DNS.OK)
	assert.Equal(t, []string{"edge.linkhost.app"}, resp.Meta.DNS.CNAME.Found)
}

func TestVerifyDomain_DNSNotReadyCarriesDetail(t *testing.T) {
	svc := newStubService()
	check := coredns.Check{CNAME: coredns.RecordCheck{Type: "CNAME", Expected: "edge.linkhost.app", Found: []string{}}}
	svc.err = domain.NewError(domain.KindDNSNotReady, domain.MsgCNAMENotDetected).
		WithDetail(map[string]any{"dns": check, "domain_id": "dom_1", "status": "pending_dns"})
	h := setupHandler(svc, Config{RequireAuth: true})

	rec := doRequest(t, h, http.MethodPost, "/api/v1/domains/dom_1/verify", nil, "user_1")

	assert.Equal(t, http.StatusConflict, rec.Code)
	obj := decodeError(t, rec)
	assert.Equal(t, "DNS_NOT_READY", obj.Code)
	assert.Equal(t, "409", obj.Status)
	assert.Equal(t, domain.MsgCNAMENotDetected, obj.Detail)
	assert.Equal(t, "dom_1", obj.Meta["domain_id"])
	dns, ok := obj.Meta["dns"].(map[string]any)
	require.True(t, ok)
	cname := dns["cname"].(map[string]any)
	assert.Equal(t, "edge.linkhost.app", cname["expected"])
}

func TestRefreshDomain(t *testing.T) {
	svc := newStubService()
	d := sampleDomain("dom_1", "user_1", "a.example.com")
	d.Status = domain.StatusActive
	d.CFHostnameID = "cf_1"
	svc.refresh = &domains.RefreshResult{
		Domain:   d,
		Provider: domains.ProviderState{HostnameStatus: "active", SSLStatus: "active", Errors: []string{}},
		HTTPS:    &probe.Result{Checked: true, OK: true, StatusCode: 200},
	}
	h := setupHandler(svc, Config{RequireAuth: true})

	rec := doRequest(t, h, http.MethodPost, "/api/v1/domains/dom_1/refresh", nil, "user_1")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp RefreshEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "active", resp.Data.Status)
	assert.Equal(t, "active", resp.Meta.Provider.SSLStatus)
	assert.True(t, resp.Meta.HTTPS.Checked)
	assert.Equal(t, 200, resp.Meta.HTTPS.StatusCode)
}

func TestRefreshDomain_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"missing hostname", domain.NewError(domain.KindCloudflareHostnameMissing, "verify first"), http.StatusBadRequest, "CLOUDFLARE_HOSTNAME_MISSING"},
		{"provider", domain.NewError(domain.KindCloudflareError, "cloudflare: boom"), http.StatusBadGateway, "CLOUDFLARE_ERROR"},
		{"not configured", domain.NewError(domain.KindCloudflareNotConfigured, "missing credentials"), http.StatusInternalServerError, "CLOUDFLARE_NOT_CONFIGURED"},
		{"untyped", assert.AnError, http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newStubService()
			svc.err = tt.err
			h := setupHandler(svc, Config{RequireAuth: true})

			rec := doRequest(t, h, http.MethodPost, "/api/v1/domains/dom_1/refresh", nil, "user_1")

			assert.Equal(t, tt.wantStatus, rec.Code)
			obj := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, obj.Code)
			assert.NotContains(t, obj.Detail, assert.AnError.Error())
		})
	}
}

// =============================================================================
// Resolve Handler
// =============================================================================

func TestResolve(t *testing.T) {
	svc := newStubService()
	svc.domains["dom_1"] = sampleDomain("dom_1", "user_1", "a.example.com")
	h := setupHandler(svc, Config{RequireAuth: true})

	rec := doRequest(t, h, http.MethodGet, "/api/v1/resolve?hostname=a.example.com", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ResolveEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "abc", resp.Data.LinkCode)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/resolve?hostname=other.example.com", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/resolve", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_HOSTNAME", decodeError(t, rec).Code)
}

// =============================================================================
// OpenAPI
// =============================================================================

func TestOpenAPIDocument(t *testing.T) {
	h := setupHandler(newStubService(), Config{Version: "test"})

	rec := doRequest(t, h, http.MethodGet, "/openapi.json", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	paths := doc["paths"].(map[string]any)
	for _, p := range []string{"/health", "/api/v1/domains", "/api/v1/domains/{id}", "/api/v1/domains/{id}/verify", "/api/v1/domains/{id}/refresh", "/api/v1/resolve"} {
		assert.Contains(t, paths, p)
	}

	rec = doRequest(t, h, http.MethodGet, "/openapi.yaml", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "openapi: 3.0.3")
}
