// ABOUTME: Server orchestrator that wires the sync engine, dispatcher and HTTP API together
// ABOUTME: Owns the store and every long-lived component, and manages their lifecycle

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

	"github.com/2389/regionsync/internal/auth"
	"github.com/2389/regionsync/internal/config"
	"github.com/2389/regionsync/internal/dedupe"
	"github.com/2389/regionsync/internal/dispatch"
	"github.com/2389/regionsync/internal/fetch"
	"github.com/2389/regionsync/internal/geofence"
	"github.com/2389/regionsync/internal/metrics"
	"github.com/2389/regionsync/internal/records"
	"github.com/2389/regionsync/internal/region"
	"github.com/2389/regionsync/internal/store"
	"github.com/2389/regionsync/internal/syncer"
)

// Server orchestrates the regionsync components.
type Server struct {
	config     *config.Config
	store      store.Store
	records    *records.Service
	monitor    *geofence.Monitor
	registry   *region.Registry
	engine     *syncer.Engine
	dispatcher *dispatch.Dispatcher
	dedupe     *dedupe.Cache
	metrics    *metrics.Metrics
	httpServer *http.Server
	logger     *slog.Logger

	// background holds the dispatcher and resync goroutines started by Start.
	background sync.WaitGroup
	cancel     context.CancelFunc
	startOnce  sync.Once
	closeOnce  sync.Once
	started    bool
	mu         sync.Mutex
}

// Option customizes a Server.
type Option func(*serverOptions)

type serverOptions struct {
	store   store.Store
	fetcher syncer.Fetcher
}

// WithStore uses s instead of opening the configured database.
func WithStore(s store.Store) Option {
	return func(o *serverOptions) { o.store = s }
}

// WithFetcher uses f instead of the HTTP fetch client.
func WithFetcher(f syncer.Fetcher) Option {
	return func(o *serverOptions) { o.fetcher = f }
}

// initStore opens the configured database.
func initStore(cfg *config.Config) (store.Store, error) {
	s, err := store.NewSQLiteStoreWithDriver(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

func newFetcher(cfg *config.Config, logger *slog.Logger) (syncer.Fetcher, error) {
	client, err := fetch.NewClient(fetch.Options{
		BaseURL:         cfg.Fetch.BaseURL,
		Timeout:         cfg.Fetch.Timeout,
		MaxAttempts:     cfg.Fetch.Retry.MaxAttempts,
		InitialInterval: cfg.Fetch.Retry.InitialInterval,
		MaxInterval:     cfg.Fetch.Retry.MaxInterval,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating fetch client: %w", err)
	}
	return client, nil
}

// New creates a Server from cfg. Nothing runs until Start or Run.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}

	s := o.store
	if s == nil {
		var err error
		if s, err = initStore(cfg); err != nil {
			return nil, err
		}
	}

	fetcher := o.fetcher
	if fetcher == nil {
		var err error
		if fetcher, err = newFetcher(cfg, logger); err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	m := metrics.New()
	recordSvc := records.NewService(s, logger)

	monitor := geofence.NewMonitor(geofence.Options{
		BufferSize:          cfg.Dispatcher.QueueSize,
		InitialTriggerEnter: cfg.Regions.TriggerOnEnter(),
		Logger:              logger,
	})

	registry := region.NewRegistry(region.Options{
		Platform:            monitor,
		Authorizer:          region.StaticAuthorizer(cfg.Regions.LocationPermission),
		DefaultRadiusMeters: cfg.Regions.DefaultRadiusMeters,
		Metrics:             m,
		Logger:              logger,
	})

	engine := syncer.New(syncer.Config{
		Fetcher:      fetcher,
		Records:      recordSvc,
		Fingerprints: s,
		RadiusMiles:  cfg.Fetch.RadiusMiles,
		Metrics:      m,
		Logger:       logger,
	})

	seen := dedupe.New(dedupe.Options{
		TTL:     cfg.Dispatcher.DedupeTTL,
		MaxSize: cfg.Dispatcher.DedupeSize,
	})

	dispatcher := dispatch.New(dispatch.Config{
		Syncer:  engine,
		States:  s,
		Workers: cfg.Dispatcher.Workers,
		Dedupe:  seen,
		Metrics: m,
		Logger:  logger,
	})

	srv := &Server{
		config:     cfg,
		store:      s,
		records:    recordSvc,
		monitor:    monitor,
		registry:   registry,
		engine:     engine,
		dispatcher: dispatcher,
		dedupe:     seen,
		metrics:    m,
		logger:     logger.With("component", "server"),
	}

	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("GET /health", srv.handleHealth)
	mux.HandleFunc("GET /health/ready", srv.handleReady)

	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, m.Handler())
	}

	// API endpoints - auth required if JWT secret is configured
	srv.registerAPIRoutes(mux, cfg, logger)

	srv.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return srv, nil
}

func (s *Server) registerAPIRoutes(mux *http.ServeMux, cfg *config.Config, logger *slog.Logger) {
	var verifier auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		logger.Info("HTTP auth middleware enabled")
	} else {
		logger.Warn("HTTP auth disabled - no jwt_secret configured")
	}
	authMiddleware := auth.Middleware(verifier)

	read := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(auth.RequireScope(auth.ScopeRead, h))
	}
	write := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(auth.RequireScope(auth.ScopeWrite, h))
	}

	mux.Handle("GET /api/records", read(s.handleListRecords))
	mux.Handle("GET /api/records/stream", read(s.handleStreamRecords))
	mux.Handle("GET /api/records/{token}", read(s.handleGetRecord))
	mux.Handle("PATCH /api/records/{token}", write(s.handlePatchRecord))
	mux.Handle("DELETE /api/records/{token}", write(s.handleDeleteRecord))

	mux.Handle("GET /api/regions", read(s.handleListRegions))
	mux.Handle("PUT /api/regions/{id}", write(s.handlePutRegion))
	mux.Handle("DELETE /api/regions/{id}", write(s.handleDeleteRegion))
	mux.Handle("GET /api/regions/{id}/state", read(s.handleRegionState))
	mux.Handle("POST /api/regions/resync", write(s.handleResync))

	mux.Handle("POST /api/locations", write(s.handlePostLocation))
	mux.Handle("POST /api/events", write(s.handlePostEvent))
}

// Handler returns the HTTP handler serving health, metrics and the API.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Metrics returns the server's metrics.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Start launches the dispatcher, registers static regions and starts the
// resync loop. It does not listen for HTTP; Run does that.
func (s *Server) Start(ctx context.Context) error {
	var err error
	s.startOnce.Do(func() {
		err = s.start(ctx)
	})
	return err
}

func (s *Server) start(ctx context.Context) error {
	events, err := s.registry.Events()
	if err != nil {
		return fmt.Errorf("opening transition stream: %w", err)
	}

	bgCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.cancel = cancel
	s.started = true
	s.mu.Unlock()

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		if err := s.dispatcher.Run(bgCtx, events); err != nil {
			s.logger.Error("dispatcher stopped with error", "error", err)
		}
	}()

	if err := s.registerStaticRegions(ctx); err != nil {
		return err
	}

	if interval := s.config.Resync.Interval; interval > 0 {
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			s.resyncLoop(bgCtx, interval)
		}()
	}

	return nil
}

func (s *Server) registerStaticRegions(ctx context.Context) error {
	for _, r := range s.config.Regions.Static {
		if err := s.registry.RegisterAt(ctx, r.ID, r.Lat, r.Lon, r.RadiusMeters); err != nil {
			return fmt.Errorf("registering static region %s: %w", r.ID, err)
		}
	}
	return nil
}

// startHTTP starts the HTTP server in a goroutine, returning its error channel.
func (s *Server) startHTTP(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (s *Server) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts every component and serves HTTP until ctx is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting regionsync", "http_addr", s.config.Server.HTTPAddr)

	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	if err := s.Start(ctx); err != nil {
		_ = ln.Close()
		_ = s.gracefulShutdown()
		return err
	}

	errCh := s.startHTTP(ln)
	serverErr := s.waitForShutdownSignal(ctx, errCh)

	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() since the original context is already canceled.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// stopBackground cancels the dispatcher and resync loop and waits for
// in-flight transitions to finish, or for ctx to expire.
func (s *Server) stopBackground(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight transitions: %w", ctx.Err())
	}
}

// Shutdown stops the HTTP server and background work, then closes the store.
// Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	s.closeOnce.Do(func() {
		s.logger.Info("shutting down regionsync")

		// Closing the watchers first ends open record streams so the HTTP
		// server can drain.
		s.records.Close()

		errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))
		errs = appendCloseError(errs, "background shutdown", s.stopBackground(ctx))
		errs = appendCloseError(errs, "monitor close", s.monitor.Close())

		s.dedupe.Close()

		errs = appendCloseError(errs, "store close", s.store.Close())
	})

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once background work is running and the store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if !started {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not started"))
		return
	}

	if _, err := s.store.ListRegionStates(r.Context()); err != nil {
		s.logger.Error("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d regions)", len(s.registry.Regions()))
}
