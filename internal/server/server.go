package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alertsift/alertsift/internal/common"
	"github.com/alertsift/alertsift/internal/metrics"
	"github.com/alertsift/alertsift/internal/task"
)

// Server is the dashboard's JSON API: upload workbooks, start processing,
// poll progress, download the result partitions, edit configuration.
type Server struct {
	cfg        common.Config
	configPath string
	store      *task.Store
	runner     *task.Runner
	logger     *slog.Logger
	metrics    *metrics.Metrics
	registry   *prometheus.Registry

	httpServer *http.Server
}

func New(cfg common.Config, configPath string, store *task.Store, runner *task.Runner, logger *slog.Logger, m *metrics.Metrics, reg *prometheus.Registry) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		store:      store,
		runner:     runner,
		logger:     logger,
		metrics:    m,
		registry:   reg,
	}
}

// Router assembles all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/upload", s.handleUpload)
	r.Get("/tasks", s.handleListTasks)
	r.Get("/tasks/{taskID}", s.handleGetTask)
	r.Delete("/tasks/{taskID}", s.handleDeleteTask)
	r.Post("/tasks/{taskID}/process", s.handleProcess)
	r.Get("/tasks/{taskID}/progress", s.handleProgress)
	r.Get("/tasks/{taskID}/preview", s.handlePreview)
	r.Get("/tasks/{taskID}/download/{kind}", s.handleDownload)
	r.Get("/config", s.handleGetConfig)
	r.Put("/config", s.handleUpdateConfig)

	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return r
}

// ListenAndServe blocks until the context is cancelled, then drains.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Web.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server.listening", "addr", s.cfg.Web.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("server.shutdown_error", "error", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
