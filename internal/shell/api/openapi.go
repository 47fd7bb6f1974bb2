package api

import (
	"net/http"

	"github.com/artpar/linkhost/internal/shell/api/openapi"
)

var domainIDParam = openapi.Param{Name: "id", In: "path", Description: "Custom domain ID"}

// operations describes every route for the OpenAPI document.
func operations() []openapi.Operation {
	ownerErrors := []int{http.StatusUnauthorized, http.StatusNotFound}
	return []openapi.Operation{
		{
			Method:   http.MethodGet,
			Path:     "/health",
			ID:       "health",
			Summary:  "Liveness check",
			Tag:      "System",
			Response: HealthResponse{},
		},
		{
			Method:   http.MethodPost,
			Path:     "/api/v1/domains",
			ID:       "createDomain",
			Summary:  "Attach a custom domain",
			Tag:      "Domains",
			Request:  CreateDomainRequest{},
			Response: DomainEnvelope{},
			Status:   http.StatusCreated,
			Errors:   []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
			Secured:  true,
		},
		{
			Method:  http.MethodGet,
			Path:    "/api/v1/domains",
			ID:      "listDomains",
			Summary: "List the caller's custom domains, newest first",
			Tag:     "Domains",
			Params: []openapi.Param{
				{Name: "limit", In: "query", Description: "Page size (max 1000)"},
				{Name: "offset", In: "query", Description: "Page offset"},
			},
			Response: DomainListEnvelope{},
			Errors:   []int{http.StatusBadRequest, http.StatusUnauthorized},
			Secured:  true,
		},
		{
			Method:   http.MethodGet,
			Path:     "/api/v1/domains/{id}",
			ID:       "getDomain",
			Summary:  "Get a custom domain with its DNS instructions",
			Tag:      "Domains",
			Params:   []openapi.Param{domainIDParam},
			Response: DomainEnvelope{},
			Errors:   ownerErrors,
			Secured:  true,
		},
		{
			Method:   http.MethodPost,
			Path:     "/api/v1/domains/{id}/verify",
			ID:       "verifyDomain",
			Summary:  "Check DNS records and provision the edge hostname",
			Tag:      "Domains",
			Params:   []openapi.Param{domainIDParam},
			Response: VerifyEnvelope{},
			Errors:   append(ownerErrors, http.StatusConflict, http.StatusInternalServerError, http.StatusBadGateway),
			Secured:  true,
		},
		{
			Method:   http.MethodPost,
			Path:     "/api/v1/domains/{id}/refresh",
			ID:       "refreshDomain",
			Summary:  "Refresh the edge hostname status",
			Tag:      "Domains",
			Params:   []openapi.Param{domainIDParam},
			Response: RefreshEnvelope{},
			Errors:   append(ownerErrors, http.StatusBadRequest, http.StatusInternalServerError, http.StatusBadGateway),
			Secured:  true,
		},
		{
			Method:  http.MethodGet,
			Path:    "/api/v1/resolve",
			ID:      "resolveHostname",
			Summary: "Resolve an inbound hostname to its link",
			Tag:     "Routing",
			Params: []openapi.Param{
				{Name: "hostname", In: "query", Description: "Inbound Host header value", Required: true},
			},
			Response: ResolveEnvelope{},
			Errors:   []int{http.StatusBadRequest, http.StatusNotFound},
		},
	}
}
