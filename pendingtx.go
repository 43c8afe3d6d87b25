package pendingtx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jpalmerr/pendingtx/dashboard"
	"github.com/jpalmerr/pendingtx/internal/server"
	"github.com/jpalmerr/pendingtx/internal/tracker"
	"github.com/jpalmerr/pendingtx/pending"
	"github.com/jpalmerr/pendingtx/storage"
)

const defaultPort = 8080

// Service runs a pending bookings store behind an HTTP API and dashboard.
//
// Service is created using [New] with functional options and started with
// [Service.Start]. The store is usable as soon as New returns, so
// collaborators can add bookings before or while the service runs.
//
// The typical lifecycle is:
//
//	svc, err := pendingtx.New(pendingtx.WithPort(8080))
//	if err != nil {
//	    slog.Error("failed to create service", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	svc.Start(ctx) // blocks until context cancelled
//
// The caller controls the lifecycle via the context. A Service can only be
// started once.
type Service struct {
	title   string
	port    int
	store   *pending.Store
	tracker *tracker.Tracker
	logger  *slog.Logger

	// cancel ends the store's subscriptions.
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
}

// New creates a new [Service] and loads the pending list from its backend.
//
// Defaults:
//   - Backend: a context of a private in-memory origin
//   - Storage key: [pending.DefaultKey]
//   - Port: 8080
//   - Tracker: disabled
//
// Returns an error if any option or the tracker configuration is invalid.
//
// Example:
//
//	svc, err := pendingtx.New(
//	    pendingtx.WithBackend(backend),
//	    pendingtx.WithPort(9090),
//	    pendingtx.WithTitle("StackStay"),
//	)
func New(opts ...Option) (*Service, error) {
	cfg := &serviceConfig{
		port: defaultPort,
		key:  pending.DefaultKey,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.backend
	if backend == nil {
		backend = storage.NewMemoryOrigin().NewContext()
	}

	storeOpts := []pending.Option{pending.WithKey(cfg.key), pending.WithLogger(logger)}
	if cfg.bus != nil {
		storeOpts = append(storeOpts, pending.WithBus(cfg.bus))
	}

	ctx, cancel := context.WithCancel(context.Background())
	st, err := pending.NewStore(ctx, backend, storeOpts...)
	if err != nil {
		cancel()
		return nil, err
	}

	for _, cb := range cfg.changeCallbacks {
		st.Subscribe(cb)
	}

	var tr *tracker.Tracker
	if cfg.tracker != nil {
		tr, err = tracker.New(st, toTrackerConfig(*cfg.tracker), logger)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("invalid tracker configuration: %w", err)
		}
	}

	return &Service{
		title:   cfg.title,
		port:    cfg.port,
		store:   st,
		tracker: tr,
		logger:  logger,
		cancel:  cancel,
	}, nil
}

// toTrackerConfig converts the public tracker settings to the tracker's own.
func toTrackerConfig(tc TrackerConfig) tracker.Config {
	return tracker.Config{
		URLTemplate:    tc.URLTemplate,
		StatusPath:     tc.StatusPath,
		Extractor:      tc.Extractor,
		PendingValues:  append([]string(nil), tc.PendingValues...),
		Headers:        copyMap(tc.Headers),
		Interval:       tc.Interval,
		Timeout:        tc.Timeout,
		MaxConcurrency: tc.MaxConcurrency,
	}
}

// copyMap returns a copy of the map, or nil if input is nil.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	result := make(map[string]string, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}

// Start serves the API and dashboard and runs the tracker, if configured.
//
// Start is a blocking call that runs until the provided context is
// cancelled. On return the store stops following other stores; see
// [Service.Close].
//
// Returns nil on graceful shutdown. Returns an error if the service was
// already started or the HTTP server fails to start.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("service already started")
	}
	s.started = true
	s.mu.Unlock()

	s.logger.Info("pendingtx starting", "key", s.store.Key(), "pending_count", len(s.store.GetAll()))
	s.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", s.port))

	// check if context already cancelled
	if ctx.Err() != nil {
		s.Close()
		return nil
	}

	cleanup := func() {
		if s.tracker != nil {
			s.tracker.Stop()
		}
		s.Close()
	}

	if s.tracker != nil {
		s.logger.Info("transaction tracker enabled")
		s.tracker.Start(ctx)
	}

	httpServer := server.NewServer(s.store, s.port, dashboard.Assets, s.title, s.logger)
	if err := httpServer.Start(ctx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	<-ctx.Done()
	cleanup()
	s.logger.Info("pendingtx stopped")
	return nil
}

// Store returns the pending bookings store.
func (s *Service) Store() *pending.Store {
	return s.store
}

// Port returns the configured HTTP port.
func (s *Service) Port() int {
	return s.port
}

// Close stops the store from following other stores. Mutations through
// [Service.Store] keep working. Close is idempotent.
func (s *Service) Close() {
	s.cancel()
	s.store.Close()
}
