// Package daemon composes the full pipeline behind a single long-running
// process: store, governor, service clients, resolver, cache, job registry,
// video poller, session, and the HTTP API. A lock file enforces one instance
// per state directory.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"postforge/internal/analysis"
	"postforge/internal/api"
	"postforge/internal/assets"
	"postforge/internal/cache"
	"postforge/internal/config"
	"postforge/internal/governor"
	"postforge/internal/jobs"
	"postforge/internal/logging"
	"postforge/internal/notifications"
	"postforge/internal/services/imagegen"
	"postforge/internal/services/research"
	"postforge/internal/services/videogen"
	"postforge/internal/session"
	"postforge/internal/store"
	"postforge/internal/videopoll"
)

// Daemon owns the composed subsystems and their lifecycle.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	gov      *governor.Governor
	cache    *cache.Cache
	registry *jobs.Registry
	poller   *videopoll.Poller
	server   *http.Server

	lockPath string
	lock     *flock.Flock

	running  atomic.Bool
	addr     atomic.Value
	cancel   context.CancelFunc
	workers  sync.WaitGroup
	serveErr chan error
}

// New opens the store and wires every subsystem. Nothing starts running
// until Start.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	gov := governor.New(cfg.Governor, logger)
	notifier := notifications.NewService(cfg.Notifications, st, logger)

	researchClient := research.NewClient(research.Config{
		APIKey:         cfg.Research.APIKey,
		BaseURL:        cfg.Research.BaseURL,
		Model:          cfg.Research.Model,
		TimeoutSeconds: cfg.Research.TimeoutSeconds,
	})
	imageClient := imagegen.NewClient(imagegen.Config{
		APIKey:         cfg.Image.APIKey,
		BaseURL:        cfg.Image.BaseURL,
		Model:          cfg.Image.Model,
		TimeoutSeconds: cfg.Image.TimeoutSeconds,
	})
	videoClient := videogen.NewClient(videogen.Config{
		APIKey:         cfg.Video.APIKey,
		BaseURL:        cfg.Video.BaseURL,
		Model:          cfg.Video.Model,
		TimeoutSeconds: cfg.Video.TimeoutSeconds,
	})

	resolver := assets.NewResolver(cfg.Resolver, gov, imageClient, logger)
	contentCache := cache.New(cfg.Cache, st, logger)
	poller := videopoll.NewPoller(cfg.VideoPoll, gov, videoClient, st, notifier, logger)
	registry := jobs.NewRegistry(context.Background(), st, notifier, func() *analysis.Machine {
		return analysis.NewMachine(cfg.Analysis, gov, researchClient, st, logger)
	}, logger)

	sess := session.New(session.Deps{
		Store:      st,
		Cache:      contentCache,
		Resolver:   resolver,
		Governor:   gov,
		Registry:   registry,
		Poller:     poller,
		Researcher: researchClient,
		Analysis:   cfg.Analysis,
		Resolution: cfg.Resolver,
		Logger:     logger,
	})

	apiServer := api.NewServer(api.Deps{
		Session:  sess,
		Registry: registry,
		Notifier: notifier,
		Cache:    contentCache,
		Governor: gov,
		Store:    st,
		APIToken: cfg.Paths.APIToken,
		Logger:   logger,
	})

	lockPath := filepath.Join(cfg.Paths.StateDir, "postforged.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		gov:      gov,
		cache:    contentCache,
		registry: registry,
		poller:   poller,
		server: &http.Server{
			Addr:              cfg.Paths.APIBind,
			Handler:           apiServer.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		serveErr: make(chan error, 1),
	}, nil
}

// Start acquires the instance lock, reconciles interrupted jobs, and launches
// the HTTP server, cache sweeper, and video poller.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another postforge daemon holds %s", d.lockPath)
	}

	if err := d.registry.Reconcile(ctx); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	listener, err := net.Listen("tcp", d.server.Addr)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("bind %s: %w", d.server.Addr, err)
	}
	d.addr.Store(listener.Addr().String())

	runCtx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	d.workers.Add(2)
	go func() {
		defer d.workers.Done()
		d.cache.RunSweeper(runCtx)
	}()
	go func() {
		defer d.workers.Done()
		d.poller.Run(runCtx)
	}()
	go func() {
		err := d.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.serveErr <- err
			return
		}
		d.serveErr <- nil
	}()

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("addr", d.Addr()),
		logging.String("lock", d.lockPath),
		logging.String("db", d.store.Path()))
	return nil
}

// Addr returns the bound listen address once Start has succeeded.
func (d *Daemon) Addr() string {
	if addr, ok := d.addr.Load().(string); ok {
		return addr
	}
	return d.server.Addr
}

// Wait blocks until the HTTP server exits and reports its error, if any.
func (d *Daemon) Wait() error {
	return <-d.serveErr
}

// Stop shuts everything down in dependency order: HTTP first so no new work
// arrives, then the background workers and the governor, then the store.
func (d *Daemon) Stop() {
	if !d.running.Swap(false) {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("http shutdown incomplete", logging.Error(err))
	}

	if d.cancel != nil {
		d.cancel()
	}
	d.workers.Wait()

	d.gov.Stop()
	if err := d.store.Close(); err != nil {
		d.logger.Warn("store close failed", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("lock release failed", logging.Error(err))
	}
	d.logger.Info("daemon stopped")
}
