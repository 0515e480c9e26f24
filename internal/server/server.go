// Package server orchestrates the development host: manifest, NATS client,
// optional Postgres store, dispatcher, websocket hub and HTTP endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/morezero/widget-bridge/internal/config"
	"github.com/morezero/widget-bridge/pkg/commsutil"
	"github.com/morezero/widget-bridge/pkg/db"
	"github.com/morezero/widget-bridge/pkg/devhost"
	"github.com/morezero/widget-bridge/pkg/events"
	"github.com/morezero/widget-bridge/pkg/manifest"
	"github.com/morezero/widget-bridge/pkg/metrics"
	"github.com/morezero/widget-bridge/pkg/widget"
)

const logPrefix = "server:server"

const shutdownTimeout = 5 * time.Second

// Server is the development host orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	sub        *comms.Subscription
	host       *devhost.Host
	hub        *devhost.WSHub
	notes      *devhost.RecordingNotifier
	registry   *prometheus.Registry
	httpServer *http.Server
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	cfg.SetupLogging()
	if err := cfg.ValidateForHost(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting widget dev host", logPrefix))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	return s.Serve(ctx)
}

// New connects to NATS and the optional database and wires the host.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	// Step 1: Load manifest
	m, err := manifest.Load(cfg.ManifestFile)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to load manifest: %w", logPrefix, err)
	}
	resolved, err := manifest.Resolve(m)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid manifest: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Manifest %s %s (%d methods, sdk %s)", logPrefix, resolved.Name(), resolved.Version(), len(resolved.Methods()), resolved.SDKRange()))

	// Step 2: Connect to NATS
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName, commsutil.RoleHost)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Connected to NATS at %s", logPrefix, cfg.COMMSURL))

	// Step 3: Storage
	store, pool, err := openStore(ctx, cfg)
	if err != nil {
		nc.Close()
		return nil, err
	}

	// Step 4: Dispatcher, hub and host
	s, err := assemble(cfg, resolved, store, nc)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		nc.Close()
		return nil, err
	}
	s.pool = pool

	// Step 5: Serve widget requests on NATS
	sub, err := s.host.ServeComms(ctx, nc, cfg.HostSubject)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.sub = sub
	return s, nil
}

// openStore returns a Postgres store when DATABASE_URL is set, otherwise an
// in-memory one.
func openStore(ctx context.Context, cfg *config.Config) (devhost.Store, *pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		slog.Info(fmt.Sprintf("%s - DATABASE_URL not set, using in-memory storage", logPrefix))
		return devhost.NewMemoryStore(), nil, nil
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	if cfg.RunMigrations {
		if err := migrate(ctx, cfg, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	return devhost.NewPostgresStore(db.NewRepository(pool)), pool, nil
}

// Migrate applies the schema using MIGRATION_PATH or the embedded migrations.
func Migrate(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
	return migrate(ctx, cfg, pool)
}

func migrate(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
	var (
		files []string
		err   error
	)
	if cfg.MigrationPath != "" {
		files, err = db.LoadMigrationFiles(cfg.MigrationPath)
	} else {
		files, err = db.EmbeddedMigrations()
	}
	if err != nil {
		return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
	}
	if err := db.RunMigrations(ctx, pool, files); err != nil {
		return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
	}
	return nil
}

// assemble builds the host components. nc may be nil, in which case events
// only reach websocket widgets.
func assemble(cfg *config.Config, m *manifest.Resolved, store devhost.Store, nc *comms.Conn) (*Server, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	hostMetrics := metrics.NewHost(reg)

	initial := make(map[string]widget.Context)
	for _, id := range m.WidgetIDs() {
		c, _ := m.Widget(id)
		initial[id] = c
	}

	notes := devhost.NewRecordingNotifier(50)
	disp, err := devhost.NewDispatcher(devhost.DispatcherParams{
		Manifest: m,
		Store:    store,
		Contexts: devhost.NewContextStore(initial, devhost.DefaultContext()),
		Notifier: devhost.Notifiers{devhost.LogNotifier{}, notes},
		Confirm:  devhost.FixedConfirm(cfg.ConfirmDefault),
		Metrics:  hostMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create dispatcher: %w", logPrefix, err)
	}

	hub := devhost.NewWSHub()
	publishers := events.MultiPublisher{hub}
	if nc != nil {
		publishers = append(publishers, events.NewCommsPublisher(nc, &events.CommsPublisherOpts{EventSubject: cfg.EventSubject}))
	}
	host := devhost.NewHost(devhost.HostParams{
		Dispatcher:     disp,
		Publisher:      publishers,
		Metrics:        hostMetrics,
		RequestTimeout: cfg.RequestTimeout,
	})
	hub.Bind(host)

	s := &Server{
		cfg:      cfg,
		nc:       nc,
		host:     host,
		hub:      hub,
		notes:    notes,
		registry: reg,
	}
	s.httpServer = &http.Server{Addr: cfg.Addr(), Handler: s.Handler()}
	return s, nil
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down.
func (s *Server) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s - HTTP server error: %w", logPrefix, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info(fmt.Sprintf("%s - Shutting down", logPrefix))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.hub.Close()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	slog.Info(fmt.Sprintf("%s - Widget dev host is ready", logPrefix))
	return g.Wait()
}

// Close releases the NATS subscription, connection and database pool.
func (s *Server) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Drain()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
}
