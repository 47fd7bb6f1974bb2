package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	coreproxy "github.com/artpar/linkhost/internal/core/proxy"
	"github.com/artpar/linkhost/internal/shell/api"
	"github.com/artpar/linkhost/internal/shell/cache"
	shelldns "github.com/artpar/linkhost/internal/shell/dns"
	"github.com/artpar/linkhost/internal/shell/domains"
	"github.com/artpar/linkhost/internal/shell/edge"
	"github.com/artpar/linkhost/internal/shell/probe"
	"github.com/artpar/linkhost/internal/shell/proxy"
	"github.com/artpar/linkhost/internal/shell/store"
	"github.com/artpar/linkhost/internal/shell/workers"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitCacheError      = 3
	ExitHTTPServerError = 4
)

// =============================================================================
// Server
// =============================================================================

// Server represents the Linkhost application server.
type Server struct {
	config      *Config
	httpServer  *http.Server
	proxyServer *http.Server
	store       store.Store
	redis       *cache.RedisBackend
	refresher   *workers.Refresher
	logger      *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(ctx context.Context, cfg *Config, logger *slog.Logger) (*Server, error) {
	if cfg.Database.AutoMigrate {
		if err := store.Migrate(cfg.Database.Driver, cfg.Database.DSN); err != nil {
			return nil, &ServerError{Op: "Migrate", Err: err, ExitCode: ExitDatabaseError}
		}
		logger.Info("database migrations applied", "driver", cfg.Database.Driver)
	}

	// Connect to database; the schema must already exist
	s, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
	}

	if !cfg.Cloudflare.Configured() {
		logger.Warn("cloudflare credentials not configured; verify and refresh will fail",
			"zone_id_set", cfg.Cloudflare.ZoneID != "",
			"api_token_set", cfg.Cloudflare.APIToken != "",
		)
	}

	edgeClient := edge.NewCloudflareClient(edge.Config{
		BaseURL:       cfg.Cloudflare.BaseURL,
		ZoneID:        cfg.Cloudflare.ZoneID,
		APIToken:      cfg.Cloudflare.APIToken,
		Timeout:       cfg.Cloudflare.Timeout,
		RetryAttempts: cfg.Cloudflare.RetryAttempts,
		Logger:        logger,
	})

	resolver := shelldns.NewResolver(shelldns.Config{
		URL:           cfg.DNS.ResolverURL,
		Timeout:       cfg.DNS.Timeout,
		RetryAttempts: cfg.DNS.RetryAttempts,
		Logger:        logger,
	})

	svc := domains.NewService(s, resolver, edgeClient, probe.NewHTTPSProber(cfg.Domains.ProbeTimeout), domains.Config{
		DNSTarget: cfg.Domains.DNSTarget,
		StrictDNS: cfg.DNS.Strict,
		Logger:    logger,
	})

	handler := api.NewHandler(svc, api.Config{
		SharedSecret: cfg.Auth.SharedSecret,
		RequireAuth:  cfg.Auth.RequireAuth,
		Version:      Version,
		Logger:       logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	srv := &Server{
		config:     cfg,
		httpServer: httpServer,
		store:      s,
		logger:     logger,
	}

	if cfg.Proxy.Enabled {
		if err := srv.setupProxy(ctx); err != nil {
			srv.close()
			return nil, err
		}
	} else {
		logger.Info("domain proxy disabled")
	}

	if cfg.Refresher.Enabled {
		rc := workers.DefaultRefresherConfig()
		rc.Interval = cfg.Refresher.Interval
		rc.MaxConcurrent = cfg.Refresher.MaxConcurrent
		rc.BatchSize = cfg.Refresher.BatchSize
		srv.refresher = workers.NewRefresher(svc, rc, logger)
	}

	return srv, nil
}

// setupProxy builds the resolution cache and the domain proxy server.
func (s *Server) setupProxy(ctx context.Context) error {
	cfg := s.config

	var backend cache.Backend
	switch cfg.Cache.Backend {
	case "redis":
		client, err := cache.Connect(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return &ServerError{Op: "ConnectCache", Err: err, ExitCode: ExitCacheError}
		}
		s.redis = cache.NewRedisBackend(client)
		backend = s.redis
	default:
		mem, err := cache.NewMemoryBackend(cfg.Cache.MaxEntries)
		if err != nil {
			return &ServerError{Op: "CreateCache", Err: err, ExitCode: ExitCacheError}
		}
		backend = mem
	}

	var platform []string
	if h := cfg.Domains.PublicHost(); h != "" {
		platform = append(platform, h)
	}

	routes := cache.NewResolver(backend, s.store, cache.Config{
		PositiveTTL:  cfg.Cache.PositiveTTL,
		NegativeTTL:  cfg.Cache.NegativeTTL,
		DefaultHosts: coreproxy.NewDefaultHosts(platform...),
		Logger:       s.logger,
	})

	proxyHandler, err := proxy.NewServer(proxy.Config{
		Address:      cfg.Proxy.Address(),
		UpstreamURL:  cfg.Proxy.UpstreamURL,
		ReadTimeout:  cfg.Proxy.ReadTimeout,
		WriteTimeout: cfg.Proxy.WriteTimeout,
		IdleTimeout:  cfg.Proxy.IdleTimeout,
	}, routes, s.logger)
	if err != nil {
		return &ServerError{Op: "NewProxy", Err: err, ExitCode: ExitConfigError}
	}

	s.proxyServer = &http.Server{
		Addr:         cfg.Proxy.Address(),
		Handler:      proxyHandler,
		ReadTimeout:  cfg.Proxy.ReadTimeout,
		WriteTimeout: cfg.Proxy.WriteTimeout,
		IdleTimeout:  cfg.Proxy.IdleTimeout,
	}

	s.logger.Info("domain proxy enabled",
		"address", cfg.Proxy.Address(),
		"upstream", cfg.Proxy.UpstreamURL,
		"cache_backend", cfg.Cache.Backend,
	)
	return nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if s.refresher != nil {
		s.refresher.Start()
	}

	errCh := make(chan error, 2)
	if s.proxyServer != nil {
		go func() {
			s.logger.Info("starting domain proxy server", "address", s.proxyServer.Addr)
			if err := s.proxyServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	go func() {
		s.logger.Info("starting HTTP server", "address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		s.Shutdown(context.Background())
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.proxyServer != nil {
		if err := s.proxyServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("domain proxy shutdown error", "error", err)
		}
	}

	if s.refresher != nil {
		s.refresher.Stop()
	}

	s.close()
	s.logger.Info("shutdown complete")
	return nil
}

func (s *Server) close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
		}
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
