// Package api provides HTTP handlers for the Linkhost API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/artpar/linkhost/internal/core/domain"
	"github.com/artpar/linkhost/internal/shell/api/middleware"
	"github.com/artpar/linkhost/internal/shell/api/openapi"
	"github.com/artpar/linkhost/internal/shell/domains"
	"github.com/artpar/linkhost/internal/shell/store"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// =============================================================================
// Service Port
// =============================================================================

// DomainService is the set of domain operations the API exposes.
// *domains.Service implements it.
type DomainService interface {
	Create(ctx context.Context, ownerID string, in domains.CreateInput) (*domain.CustomDomain, error)
	List(ctx context.Context, ownerID string, opts store.ListOptions) ([]domain.CustomDomain, error)
	Get(ctx context.Context, ownerID, id string) (*domain.CustomDomain, error)
	Verify(ctx context.Context, ownerID, id string) (*domains.VerifyResult, error)
	Refresh(ctx context.Context, ownerID, id string) (*domains.RefreshResult, error)
	Resolve(ctx context.Context, hostname string) (*domains.Resolution, error)
}

// =============================================================================
// Handler
// =============================================================================

// Config holds API handler settings.
type Config struct {
	// SharedSecret, when set, must match the X-Gateway-Secret header.
	SharedSecret string

	// RequireAuth rejects domain routes without an owner identity.
	RequireAuth bool

	// Version is reported in the OpenAPI document.
	Version string

	Logger *slog.Logger
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	service DomainService
	cfg     Config
	logger  *slog.Logger
	spec    *openapi.Generator
}

// NewHandler creates a new API handler.
func NewHandler(svc DomainService, cfg Config) *Handler {
	l := cfg.Logger
	if l == nil {
		l = slog.Default()
	}
	h := &Handler{
		service: svc,
		cfg:     cfg,
		logger:  l.With("component", "api"),
		spec: openapi.NewGenerator(
			openapi.WithVersion(cfg.Version),
			openapi.WithErrorModel(ErrorResponse{}),
		),
	}
	h.spec.Register(operations()...)
	return h
}

// Routes returns the HTTP router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(h.requestIDHeader)

	r.Get("/openapi.json", h.spec.Handler())
	r.Get("/openapi.yaml", h.spec.YAMLHandler())

	r.Group(func(r chi.Router) {
		r.Use(h.jsonContentType)
		r.Use(middleware.NewAuthMiddleware(middleware.AuthConfig{
			SharedSecret: h.cfg.SharedSecret,
			Logger:       h.logger,
		}).Handler)

		r.Get("/health", h.handleHealth)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/resolve", h.handleResolve)

			r.Route("/domains", func(r chi.Router) {
				if h.cfg.RequireAuth {
					r.Use(middleware.RequireAuth(h.logger))
				}
				r.Post("/", h.handleCreateDomain)
				r.Get("/", h.handleListDomains)
				r.Get("/{id}", h.handleGetDomain)
				r.Post("/{id}/verify", h.handleVerifyDomain)
				r.Post("/{id}/refresh", h.handleRefreshDomain)
			})
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := chimw.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

// writeError maps err to its HTTP status. Errors without a kind are
// reported as internal without leaking their message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		de = domain.WrapError(domain.KindInternal, "internal server error", err)
	}

	status := de.Kind.Status()
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"code", string(de.Kind),
			"error", err,
		)
	}

	obj := ErrorObject{
		Status: strconv.Itoa(status),
		Code:   string(de.Kind),
		Title:  http.StatusText(status),
		Detail: de.Message,
	}
	if de.Detail != nil {
		obj.Meta = detailMeta(de.Detail)
	}
	h.writeJSON(w, status, ErrorResponse{Errors: []ErrorObject{obj}})
}

func detailMeta(detail any) map[string]any {
	if m, ok := detail.(map[string]any); ok {
		return m
	}
	return map[string]any{"detail": detail}
}

// listOptions reads limit and offset query parameters.
func listOptions(r *http.Request) (store.ListOptions, error) {
	opts := store.DefaultListOptions()
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, domain.NewError(domain.KindInvalidRequest, "limit must be a non-negative integer")
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, domain.NewError(domain.KindInvalidRequest, "offset must be a non-negative integer")
		}
		opts.Offset = n
	}
	return opts.Normalize(), nil
}
