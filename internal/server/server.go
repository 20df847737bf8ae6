// Package server wires the service together and runs the HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/foliolabs/folio/internal/api"
	"github.com/foliolabs/folio/internal/cache"
	"github.com/foliolabs/folio/internal/config"
	"github.com/foliolabs/folio/internal/covers"
	"github.com/foliolabs/folio/internal/events"
	"github.com/foliolabs/folio/internal/generate"
	"github.com/foliolabs/folio/internal/query"
	"github.com/foliolabs/folio/internal/render"
	"github.com/foliolabs/folio/internal/server/endpoints"
	"github.com/foliolabs/folio/internal/storage"
	"github.com/foliolabs/folio/internal/store"
	"github.com/foliolabs/folio/internal/svcctx"
)

// pruneInterval is how often terminal jobs past the retention window are
// swept.
const pruneInterval = time.Hour

// Server is the Folio HTTP server. It owns every backing connection and
// the generation worker pool, starting them on Start and draining them on
// shutdown.
type Server struct {
	httpServer *http.Server
	configMgr  *config.Manager
	logger     *slog.Logger

	db      *store.Postgres
	gateway storage.Gateway
	sink    events.Sink
	cache   *cache.JobCache
	pool    *generate.Pool

	// services holds all core services for context enrichment
	services *svcctx.Services

	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server construction settings.
type Config struct {
	ConfigManager *config.Manager
	Logger        *slog.Logger
}

// New creates a Server. Backing connections are opened in Start.
func New(cfg Config) (*Server, error) {
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		configMgr: cfg.ConfigManager,
		logger:    cfg.Logger,
	}

	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	c := cfg.ConfigManager.Get()
	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(c.Server.Host, c.Server.Port),
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start opens all backing connections, starts the worker pool, and serves
// HTTP until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	cfg := s.configMgr.Get()

	s.logger.Info("connecting to database")
	db, err := store.NewPostgres(ctx, config.ResolveEnvVars(cfg.Database.URL))
	if err != nil {
		s.setNotRunning()
		return fmt.Errorf("connecting to database: %w", err)
	}
	s.db = db
	if err := db.Migrate(ctx); err != nil {
		s.setNotRunning()
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("connecting to object storage", "endpoint", cfg.Storage.Endpoint)
	gateway, err := storage.NewMinio(ctx, storage.MinioConfig{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: config.ResolveEnvVars(cfg.Storage.AccessKey),
		SecretKey: config.ResolveEnvVars(cfg.Storage.SecretKey),
		Bucket:    cfg.Storage.Bucket,
		UseSSL:    cfg.Storage.UseSSL,
	}, s.logger)
	if err != nil {
		s.setNotRunning()
		return fmt.Errorf("connecting to object storage: %w", err)
	}
	s.gateway = gateway

	if cfg.Events.URL != "" {
		sink, err := events.NewAMQPSink(config.ResolveEnvVars(cfg.Events.URL), cfg.Events.Exchange, s.logger)
		if err != nil {
			s.setNotRunning()
			return fmt.Errorf("connecting to event broker: %w", err)
		}
		s.sink = sink
		s.logger.Info("event sink connected", "exchange", cfg.Events.Exchange)
	} else {
		s.sink = &events.LogSink{Logger: s.logger}
	}

	if cfg.Cache.Addr != "" {
		jobCache, err := cache.New(ctx, cfg.Cache.Addr, config.ResolveEnvVars(cfg.Cache.Password), cfg.Cache.DB)
		if err != nil {
			s.logger.Warn("job cache unavailable, continuing without it", "error", err)
		} else {
			s.cache = jobCache
			s.logger.Info("job cache connected", "addr", cfg.Cache.Addr)
		}
	}

	coverSvc := &covers.Service{
		Store:   s.db,
		Storage: s.gateway,
		Events:  s.sink,
		Logger:  s.logger,
	}
	batch := &generate.BatchProcessor{
		Store:    s.db,
		Storage:  s.gateway,
		Renderer: render.NewPopplerRenderer(cfg.Generate.PageTimeout),
		Covers:   coverSvc,
		Logger:   s.logger,
	}
	coordinator := &generate.Coordinator{
		Store:     s.db,
		Opener:    &generate.GatewayOpener{Storage: s.gateway},
		Batch:     batch,
		Events:    s.sink,
		Cache:     s.cache,
		Logger:    s.logger,
		BatchSize: cfg.Generate.BatchSize,
	}
	s.pool = generate.NewPool(cfg.Generate.Workers, cfg.Generate.QueueSize, s.logger, coordinator.Process)

	s.services = &svcctx.Services{
		Store:       s.db,
		Storage:     s.gateway,
		Events:      s.sink,
		Cache:       s.cache,
		Pool:        s.pool,
		Coordinator: coordinator,
		Covers:      coverSvc,
		Query: &query.Service{
			Store:   s.db,
			Storage: s.gateway,
			Cache:   s.cache,
			Logger:  s.logger,
		},
		Config: cfg,
		Logger: s.logger,
	}

	poolCtx, cancelPool := context.WithCancel(context.Background())
	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		s.pool.Start(poolCtx)
	}()

	// Requeue jobs orphaned by a previous run so their documents do not
	// stay locked behind the active-job index.
	if err := coordinator.Recover(ctx, s.pool); err != nil {
		s.logger.Error("recovering orphaned jobs", "error", err)
	}

	go s.pruneLoop(poolCtx, cfg.Generate.JobTTL)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			cancelPool()
			<-poolDone
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	cancelPool()
	<-poolDone
	return s.shutdown()
}

// pruneLoop periodically deletes terminal jobs past the retention window.
func (s *Server) pruneLoop(ctx context.Context, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned, err := s.db.PruneJobs(ctx, ttl)
			if err != nil {
				s.logger.Error("pruning jobs", "error", err)
				continue
			}
			if pruned > 0 {
				s.logger.Info("pruned terminal jobs", "count", pruned)
			}
		}
	}
}

// shutdown gracefully stops the HTTP server and closes every backing
// connection.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}
	if s.sink != nil {
		if err := s.sink.Close(); err != nil {
			s.logger.Error("event sink close error", "error", err)
		}
	}
	if err := s.cache.Close(); err != nil {
		s.logger.Error("job cache close error", "error", err)
	}
	if s.db != nil {
		s.db.Close()
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit ensures backing services are ready before handling a request.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.services == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
