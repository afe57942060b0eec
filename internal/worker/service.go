// Package worker provides the main worker service for threadwatch.
package worker

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/threadwatch/internal/config"
	"github.com/thebtf/threadwatch/internal/hub"
	"github.com/thebtf/threadwatch/internal/notify"
	"github.com/thebtf/threadwatch/internal/thread"
	"github.com/thebtf/threadwatch/internal/watcher"
)

// Service is the threadwatch worker: it owns the thread registry, the file
// watcher feeding it, the notification intake, and the event hub all live
// clients subscribe to.
type Service struct {
	version string
	config  *config.Config

	registry *thread.Registry
	watcher  *watcher.Watcher
	store    *notify.Store
	intake   *notify.Intake
	hub      *hub.Hub

	router *chi.Mux

	ctx       context.Context
	cancel    context.CancelFunc
	ready     atomic.Bool
	startTime time.Time
}

// NewService wires the full pipeline. The watcher is constructed but not
// started; Run starts it after the listener is up.
func NewService(version string, cfg *config.Config) (*Service, error) {
	store, err := notify.OpenStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open notification store: %w", err)
	}

	eventHub := hub.New()
	registry := thread.NewRegistry()

	fw, err := watcher.New(cfg.WatchRoots, registry, eventHub, cfg.Debounce())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	svc := &Service{
		version:   version,
		config:    cfg,
		registry:  registry,
		watcher:   fw,
		store:     store,
		intake:    notify.NewIntake(store, eventHub, cfg.DedupWindow()),
		hub:       eventHub,
		router:    chi.NewRouter(),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
	svc.setupRoutes()
	return svc, nil
}

func (s *Service) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/version", s.handleVersion)
		r.Get("/ready", s.handleReady)

		r.Group(func(r chi.Router) {
			r.Use(s.requireReady)

			r.Post("/notifications/hook", s.handleHook)
			r.Get("/notifications", s.handleListNotifications)
			r.Post("/notifications/read-all", s.handleMarkAllRead)
			r.Post("/notifications/{id}/read", s.handleMarkRead)
			r.Delete("/notifications/{id}", s.handleDeleteNotification)
			r.Delete("/notifications", s.handleDeleteAll)

			r.Get("/conversations", s.handleConversations)
			r.Get("/stats", s.handleStats)
		})
	})

	s.router.Get("/ws/updates", s.hub.HandleWS)
}

// requestLogger emits one debug line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request")
	})
}

// requireReady rejects requests until the initial scan has completed, so
// clients never observe a half-built thread set.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeError(w, http.StatusServiceUnavailable, "service is starting up")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run starts the watcher and HTTP listener and blocks until ctx is cancelled
// or the server fails. Shutdown is graceful: in-flight requests drain, then
// the watcher and hub are torn down.
func (s *Service) Run(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.config.WorkerPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	if err := s.watcher.Start(); err != nil {
		listener.Close()
		return fmt.Errorf("start watcher: %w", err)
	}
	s.ready.Store(true)

	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", addr).Str("version", s.version).Msg("Worker service listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	s.Close()
	return err
}

// Close tears down the pipeline. Safe to call more than once.
func (s *Service) Close() {
	s.ready.Store(false)
	s.cancel()
	if err := s.watcher.Stop(); err != nil {
		log.Warn().Err(err).Msg("Watcher stop failed")
	}
	s.hub.Close()
	if err := s.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Notification store close failed")
	}
}

// Router exposes the HTTP handler, mainly for tests.
func (s *Service) Router() http.Handler {
	return s.router
}
