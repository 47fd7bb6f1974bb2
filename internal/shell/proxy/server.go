// Package proxy implements the request router that maps the Host header of
// incoming requests to a link and forwards them to the link backend.
package proxy

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/artpar/linkhost/internal/core/proxy"
	"github.com/artpar/linkhost/internal/shell/cache"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Forwarded headers set on requests for custom domains.
const (
	HeaderLinkCode = "X-Link-Code"
	HeaderDomainID = "X-Custom-Domain-ID"
)

// Resolver maps a Host header to a route.
type Resolver interface {
	Resolve(ctx context.Context, rawHost string) (cache.Result, error)
}

// Config holds proxy server configuration.
type Config struct {
	Address      string        // Listen address, e.g., "0.0.0.0:9091"
	UpstreamURL  string        // Link backend, e.g., "http://localhost:3000"
	ReadTimeout  time.Duration // HTTP read timeout
	WriteTimeout time.Duration // HTTP write timeout
	IdleTimeout  time.Duration // HTTP idle timeout
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Address:      "0.0.0.0:9091",
		UpstreamURL:  "http://localhost:3000",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// Server is the HTTP server that handles custom domain routing.
type Server struct {
	resolver Resolver
	upstream *url.URL
	proxy    *httputil.ReverseProxy
	logger   *slog.Logger
	config   Config
	errTmpl  *template.Template
}

type routeKey struct{}

// NewServer creates a new proxy server.
func NewServer(cfg Config, resolver Resolver, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "proxy")

	upstream, err := url.Parse(cfg.UpstreamURL)
	if err != nil || upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("invalid upstream url %q", cfg.UpstreamURL)
	}

	// Parse error templates
	errTmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		resolver: resolver,
		upstream: upstream,
		logger:   logger,
		config:   cfg,
		errTmpl:  errTmpl,
	}
	s.proxy = s.newReverseProxy()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Health endpoint - responds regardless of hostname
	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		s.serveHealth(w, r)
		return
	}

	host := proxy.HostOnly(r.Host)

	s.logger.Debug("proxy request",
		"host", r.Host,
		"path", r.URL.Path,
		"method", r.Method,
	)

	res, err := s.resolver.Resolve(r.Context(), r.Host)
	if err != nil {
		s.logger.Error("failed to resolve host", "host", host, "error", err)
		s.serveError(w, r, proxy.NewUnavailableError(host))
		return
	}

	switch {
	case res.Default:
		s.proxy.ServeHTTP(w, r)
	case res.Found:
		ctx := context.WithValue(r.Context(), routeKey{}, res.Route)
		s.proxy.ServeHTTP(w, r.WithContext(ctx))
	default:
		s.serveError(w, r, proxy.NewNotFoundError(host))
	}
}

func (s *Server) newReverseProxy() *httputil.ReverseProxy {
	reverseProxy := httputil.NewSingleHostReverseProxy(s.upstream)

	// Customize director to set proper headers
	originalDirector := reverseProxy.Director
	reverseProxy.Director = func(req *http.Request) {
		host := req.Host
		originalDirector(req)
		req.Header.Set("X-Forwarded-Host", host)
		req.Header.Set("X-Real-IP", getRealIP(req))

		// Never trust routing headers from the client.
		req.Header.Del(HeaderLinkCode)
		req.Header.Del(HeaderDomainID)
		if route, ok := req.Context().Value(routeKey{}).(proxy.Route); ok {
			req.Header.Set(HeaderLinkCode, route.LinkCode)
			req.Header.Set(HeaderDomainID, route.DomainID)
		}
	}

	// Handle errors
	reverseProxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		s.logger.Error("upstream error",
			"host", r.Host,
			"upstream", s.upstream.String(),
			"error", err,
		)
		s.serveError(w, r, proxy.NewUnavailableError(proxy.HostOnly(r.Host)))
	}

	return reverseProxy
}

func (s *Server) serveError(w http.ResponseWriter, r *http.Request, err proxy.ProxyError) {
	s.logger.Warn("proxy error",
		"type", err.Type,
		"hostname", err.Hostname,
		"status", err.StatusCode,
	)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(err.StatusCode)

	// Select template based on error type
	tmplName := "unavailable.html"
	if err.Type == proxy.ErrorNotFound {
		tmplName = "not_found.html"
	}

	data := map[string]interface{}{
		"Hostname": err.Hostname,
		"Message":  err.Message,
	}

	if execErr := s.errTmpl.ExecuteTemplate(w, tmplName, data); execErr != nil {
		s.logger.Error("failed to execute error template", "error", execErr)
	}
}

// getRealIP extracts the real client IP from the request.
func getRealIP(r *http.Request) string {
	// Check X-Real-IP header first (from upstream proxy)
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}

	// Check X-Forwarded-For header
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP in the chain
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	// Fall back to remote address
	return r.RemoteAddr
}

// HealthResponse is the JSON response for the health endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Upstream string `json:"upstream"`
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{
		Status:   "ok",
		Upstream: s.upstream.String(),
	})
}
