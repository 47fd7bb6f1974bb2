package api

import (
	"encoding/json"
	"net/http"

	"github.com/artpar/linkhost/internal/core/auth"
	"github.com/artpar/linkhost/internal/core/domain"
	"github.com/artpar/linkhost/internal/shell/domains"
	"github.com/go-chi/chi/v5"
)

// =============================================================================
// Domain Handlers
// =============================================================================

func (h *Handler) handleCreateDomain(w http.ResponseWriter, r *http.Request) {
	var req CreateDomainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, domain.WrapError(domain.KindInvalidRequest, "invalid JSON body", err))
		return
	}
	if req.Hostname == "" {
		h.writeError(w, r, domain.NewError(domain.KindInvalidHostname, "hostname is required"))
		return
	}

	owner := auth.FromContext(r.Context()).OwnerID
	d, err := h.service.Create(r.Context(), owner, domains.CreateInput{
		Hostname:       req.Hostname,
		DistributionID: req.DistributionID,
		DNSTarget:      req.DNSTarget,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, DomainEnvelope{Data: domainToResponse(d)})
}

func (h *Handler) handleListDomains(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	owner := auth.FromContext(r.Context()).OwnerID
	list, err := h.service.List(r.Context(), owner, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	data := make([]DomainResponse, 0, len(list))
	for i := range list {
		data = append(data, domainToResponse(&list[i]))
	}
	h.writeJSON(w, http.StatusOK, DomainListEnvelope{
		Data: data,
		Meta: DomainListMeta{Count: len(data), Limit: opts.Limit, Offset: opts.Offset},
	})
}

func (h *Handler) handleGetDomain(w http.ResponseWriter, r *http.Request) {
	owner := auth.FromContext(r.Context()).OwnerID
	d, err := h.service.Get(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, DomainEnvelope{Data: domainToResponse(d)})
}

func (h *Handler) handleVerifyDomain(w http.ResponseWriter, r *http.Request) {
	owner := auth.FromContext(r.Context()).OwnerID
	res, err := h.service.Verify(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, VerifyEnvelope{
		Data: domainToResponse(res.Domain),
		Meta: VerifyMeta{DNS: res.DNS},
	})
}

func (h *Handler) handleRefreshDomain(w http.ResponseWriter, r *http.Request) {
	owner := auth.FromContext(r.Context()).OwnerID
	res, err := h.service.Refresh(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	meta := RefreshMeta{Provider: res.Provider}
	if res.HTTPS != nil {
		meta.HTTPS = *res.HTTPS
	}
	h.writeJSON(w, http.StatusOK, RefreshEnvelope{
		Data: domainToResponse(res.Domain),
		Meta: meta,
	})
}

// =============================================================================
// Resolve Handler
// =============================================================================

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("hostname")
	if host == "" {
		h.writeError(w, r, domain.NewError(domain.KindInvalidHostname, "hostname query parameter is required"))
		return
	}

	res, err := h.service.Resolve(r.Context(), host)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ResolveEnvelope{Data: *res})
}
