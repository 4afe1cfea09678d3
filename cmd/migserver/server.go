package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"migdash/internal/eventbus"
	"migdash/internal/jobmanager"
	"migdash/internal/store"
)

const shutdownTimeout = 10 * time.Second

type server struct {
	manager *jobmanager.Manager
	status  *store.StatusStore
	docs    *store.DocumentStore
	bus     *eventbus.Bus
	logger  *slog.Logger
	cfg     *serverConfig
}

func newServer(
	manager *jobmanager.Manager,
	status *store.StatusStore,
	docs *store.DocumentStore,
	bus *eventbus.Bus,
	logger *slog.Logger,
	cfg *serverConfig,
) *server {
	return &server{
		manager: manager,
		status:  status,
		docs:    docs,
		bus:     bus,
		logger:  logger,
		cfg:     cfg,
	}
}

func runServer(ctx context.Context, cfg *serverConfig) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	level := slog.LevelInfo
	if cfg.debug {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(
		os.Stdout,
		&slog.HandlerOptions{Level: level},
	))

	docs := store.NewDocumentStore(cfg.workspace)

	status := store.NewStatusStore(
		filepath.Join(cfg.workspace, store.StatusDocument),
	)

	bus := eventbus.NewBusWithDefaults()

	manager, err := jobmanager.NewManager(
		cfg.migrationCommand(),
		status,
		bus,
		logger,
		cfg.stopGrace,
	)
	if err != nil {
		return err
	}

	s := newServer(manager, status, docs, bus, logger, cfg)

	httpServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.host, strconv.Itoa(int(cfg.port))),
		Handler: s.routes(),
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info(
			"server listening",
			"addr", httpServer.Addr,
			"workspace", cfg.workspace,
		)

		if err := httpServer.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		shutdownTimeout,
	)
	defer cancel()

	return httpServer.Shutdown(shutdownCtx)
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/transfers", s.handleTransfers)
		r.Get("/config", s.handleGetConfig)
		r.Post("/config", s.handleSetConfig)
		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)
		r.Get("/events", s.handleEvents)
	})

	if s.cfg.staticDir != "" {
		r.NotFound(s.serveStatic)
	}

	return r
}

// requestLogger logs one line per request once the response is written.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// WrapResponseWriter keeps http.Flusher intact for the event stream.
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Info(
			"http request",
			"req_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// serveStatic serves the built frontend, falling back to index.html so
// client-side routes resolve after a page reload.
func (s *server) serveStatic(w http.ResponseWriter, r *http.Request) {
	name := filepath.Join(s.cfg.staticDir, filepath.Clean("/"+r.URL.Path))

	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		http.ServeFile(w, r, name)

		return
	}

	http.ServeFile(w, r, filepath.Join(s.cfg.staticDir, "index.html"))
}
