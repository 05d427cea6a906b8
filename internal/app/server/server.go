package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"autoprofile/internal/api"
	"autoprofile/internal/applier"
	"autoprofile/internal/config"
	"autoprofile/internal/engine"
	"autoprofile/internal/listener"
	"autoprofile/internal/manager"
	"autoprofile/internal/param"
	"autoprofile/internal/storage"
)

// Server owns every long-lived component of the daemon.
type Server struct {
	cfg     config.Config
	params  *param.Source
	repo    *storage.Repository
	store   *storage.Store
	applier manager.Applier
	mgr     *manager.Manager
	httpSrv *http.Server

	listen  func(ctx context.Context, t listener.Target) error
	closers []func()
	ready   chan struct{}
}

func New(ctx context.Context, cfg config.Config) (*Server, error) {
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	eng := engine.NewEngine(reg)
	s := &Server{cfg: cfg, params: param.NewSource(reg, 64), ready: make(chan struct{})}

	var (
		backend storage.Backend
		codec   storage.Codec
	)
	switch cfg.Store.Driver {
	case "postgres":
		pg, err := storage.NewPostgres(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		s.closers = append(s.closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		backend, codec = pg, storage.JSONCodec{}
		s.listen = func(ctx context.Context, t listener.Target) error {
			go listener.ListenAndRefresh(ctx, pg, t, cfg.Listener.Channel, cfg.Backoff(), cfg.ListenerDebounce())
			return nil
		}
	default:
		backend, codec = storage.NewFileBackend(cfg.Store.Path), storage.YAMLCodec{}
		s.listen = func(ctx context.Context, t listener.Target) error {
			return listener.WatchFile(ctx, cfg.Store.Path, t, cfg.ListenerDebounce())
		}
	}
	s.repo = storage.NewRepository(backend, codec, eng.CheckSet)
	s.store = storage.NewStore(s.repo, eng)

	switch cfg.Applier.Kind {
	case "command":
		cmd, err := applier.NewCommand(cfg.Applier.Command, cfg.ApplyTimeout())
		if err != nil {
			s.Close()
			return nil, err
		}
		s.applier = cmd
	default:
		s.applier = applier.NewMemory(0)
	}

	s.mgr = manager.New(eng, s.repo, s.params, s.applier, storage.NewStateFile(cfg.Store.StatePath), manager.Options{
		Enabled:             cfg.Manager.Enabled,
		ResumeOnStateChange: cfg.Manager.ResumeOnStateChange,
		Debounce:            cfg.Debounce(),
		BoundaryCap:         cfg.BoundaryCap(),
		OnSwitch: func(sw manager.Switch) {
			log.Info().Str("from", sw.From).Str("to", sw.To).Bool("manual", sw.Manual).Msg("profile switched")
		},
	})
	s.store.OnChange(func(ctx context.Context) {
		if err := s.mgr.ProfilesChanged(ctx); err != nil {
			log.Warn().Err(err).Msg("notify manager of profile change")
		}
	})

	s.httpSrv = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.Router(api.NewHandler(s.store, s.mgr, s.params, eng)),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// Ready is closed once Start has launched the manager and the listener.
func (s *Server) Ready() <-chan struct{} { return s.ready }

func (s *Server) Close() {
	for _, c := range s.closers {
		c()
	}
	s.closers = nil
}

// Start runs the manager, the change listener and the HTTP server until ctx
// is cancelled or one of them fails, then shuts everything down.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.Close()

	errc := make(chan error, 2)
	go func() {
		if err := s.mgr.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errc <- fmt.Errorf("manager: %w", err)
		}
	}()

	target := listener.Target{Repo: s.repo, Notify: s.mgr.ProfilesChanged}
	if err := s.listen(ctx, target); err != nil {
		log.Warn().Err(err).Msg("profile change listener disabled")
	}
	close(s.ready)

	go func() {
		log.Info().Str("addr", s.cfg.Server.Addr).Msg("http server starting")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
	}
	log.Info().Msg("shutdown...")

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	_ = s.httpSrv.Shutdown(shCtx)
	cancel() // stop background goroutines
	return runErr
}

// Run builds the daemon from cfg and serves until SIGINT or SIGTERM.
func Run(cfg config.Config) error {
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := New(rootCtx, cfg)
	if err != nil {
		return err
	}
	go func() {
		waitForSignal(rootCtx)
		cancel()
	}()
	return srv.Start(rootCtx)
}

func waitForSignal(ctx context.Context) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)
	select {
	case <-c:
	case <-ctx.Done():
	}
}
