package api

import (
	"time"

	coredns "github.com/artpar/linkhost/internal/core/dns"
	"github.com/artpar/linkhost/internal/core/domain"
	"github.com/artpar/linkhost/internal/shell/domains"
	"github.com/artpar/linkhost/internal/shell/probe"
)

// =============================================================================
// Request Types
// =============================================================================

// CreateDomainRequest is the request body for attaching a custom domain.
type CreateDomainRequest struct {
	Hostname       string `json:"hostname"`
	DistributionID string `json:"distribution_id,omitempty"`
	DNSTarget      string `json:"dns_target,omitempty"`
}

// =============================================================================
// Response Types
// =============================================================================

// DistributionResponse is the joined distribution summary of a domain.
type DistributionResponse struct {
	ID    string `json:"id"`
	Code  string `json:"code"`
	Title string `json:"title"`
}

// DomainResponse is the JSON representation of a custom domain.
type DomainResponse struct {
	ID                 string                `json:"id"`
	OwnerID            string                `json:"owner_id"`
	DistributionID     *string               `json:"distribution_id"`
	Distribution       *DistributionResponse `json:"distribution,omitempty"`
	Hostname           string                `json:"hostname"`
	Status             string                `json:"status"`
	VerificationMethod string                `json:"verification_method"`
	VerificationToken  string                `json:"verification_token"`
	CFHostnameID       *string               `json:"cf_hostname_id"`
	DNSTarget          string                `json:"dns_target"`
	TXTName            string                `json:"txt_name"`
	TXTValue           string                `json:"txt_value"`
	LastError          *string               `json:"last_error"`
	LastCheckedAt      *time.Time            `json:"last_checked_at"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
	Instructions       domain.Instructions   `json:"instructions"`
}

// DomainEnvelope wraps a single domain.
type DomainEnvelope struct {
	Data DomainResponse `json:"data"`
}

// DomainListMeta carries list pagination.
type DomainListMeta struct {
	Count  int `json:"count"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// DomainListEnvelope wraps a list of domains.
type DomainListEnvelope struct {
	Data []DomainResponse `json:"data"`
	Meta DomainListMeta   `json:"meta"`
}

// VerifyMeta carries the DNS check of a verify.
type VerifyMeta struct {
	DNS coredns.Check `json:"dns"`
}

// VerifyEnvelope is the response of a successful verify.
type VerifyEnvelope struct {
	Data DomainResponse `json:"data"`
	Meta VerifyMeta     `json:"meta"`
}

// RefreshMeta carries the provider state and liveness result of a refresh.
type RefreshMeta struct {
	Provider domains.ProviderState `json:"provider"`
	HTTPS    probe.Result          `json:"https"`
}

// RefreshEnvelope is the response of a refresh.
type RefreshEnvelope struct {
	Data DomainResponse `json:"data"`
	Meta RefreshMeta    `json:"meta"`
}

// ResolveEnvelope is the response of a hostname resolution.
type ResolveEnvelope struct {
	Data domains.Resolution `json:"data"`
}

// HealthResponse is the response for health check.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorObject is a single API error.
type ErrorObject struct {
	Status string         `json:"status"`
	Code   string         `json:"code"`
	Title  string         `json:"title"`
	Detail string         `json:"detail,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// ErrorResponse is the response body for all errors.
type ErrorResponse struct {
	Errors []ErrorObject `json:"errors"`
}

// =============================================================================
// Conversion
// =============================================================================

// domainToResponse converts a domain.CustomDomain to DomainResponse.
func domainToResponse(d *domain.CustomDomain) DomainResponse {
	resp := DomainResponse{
		ID:                 d.ID,
		OwnerID:            d.OwnerID,
		DistributionID:     optional(d.DistributionID),
		Hostname:           d.Hostname,
		Status:             string(d.Status),
		VerificationMethod: string(d.VerificationMethod),
		VerificationToken:  d.VerificationToken,
		CFHostnameID:       optional(d.CFHostnameID),
		DNSTarget:          d.DNSTarget,
		LastError:          optional(d.LastError),
		LastCheckedAt:      d.LastCheckedAt,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
		Instructions:       d.Instructions(),
	}
	resp.TXTName = resp.Instructions.TXT.Name
	resp.TXTValue = resp.Instructions.TXT.Value
	if d.Distribution != nil {
		resp.Distribution = &DistributionResponse{
			ID:    d.Distribution.ID,
			Code:  d.Distribution.Code,
			Title: d.Distribution.Title,
		}
	}
	return resp
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
