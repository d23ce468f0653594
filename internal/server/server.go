// Package server exposes the pulse counts over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/and161185/s0-pulse-counter/internal/config"
	"github.com/and161185/s0-pulse-counter/internal/errs"
	"github.com/and161185/s0-pulse-counter/internal/ingest"
	"github.com/and161185/s0-pulse-counter/internal/server/middleware"
	"github.com/and161185/s0-pulse-counter/model"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Querier answers count requests.
type Querier interface {
	GetChannel(id string) (uint64, error)
	GetAll() []model.ChannelCount
}

// HealthReporter reports whether counts are still being updated.
type HealthReporter interface {
	Healthy() bool
	Snapshot() ingest.StatusSnapshot
}

type Server struct {
	Query   Querier
	Health  HealthReporter
	Metrics http.Handler // optional
	Logger  *zap.SugaredLogger
	Addr    string
}

func NewServer(query Querier, health HealthReporter, metrics http.Handler, cfg *config.Config) *Server {
	return &Server{
		Query:   query,
		Health:  health,
		Metrics: metrics,
		Logger:  cfg.Logger,
		Addr:    cfg.Addr(),
	}
}

func (srv *Server) Router() http.Handler {
	logger := srv.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	router := chi.NewRouter()
	router.Use(chiMiddleware.StripSlashes)
	router.Use(chiMiddleware.Recoverer)
	router.Use(middleware.LogMiddleware(logger))
	router.Use(middleware.CompressMiddleware)

	router.Get("/", srv.ListChannelsHandler)
	router.Get("/healthz", srv.HealthHandler)
	if srv.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", srv.Metrics)
	}
	router.Get("/{channel}", srv.GetChannelHandler)

	return router
}

// Run serves on srv.Addr until ctx is cancelled, then shuts down gracefully.
func (srv *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	return srv.Serve(ctx, ln)
}

func (srv *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpSrv := &http.Server{
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (srv *Server) ListChannelsHandler(w http.ResponseWriter, r *http.Request) {
	srv.writeJSON(w, http.StatusOK, srv.Query.GetAll())
}

func (srv *Server) GetChannelHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "channel")

	count, err := srv.Query.GetChannel(id)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrNotFound):
			srv.writeError(w, http.StatusNotFound, "not found")
		case errors.Is(err, errs.ErrInvalidChannel):
			srv.writeError(w, http.StatusBadRequest, "bad index")
		default:
			srv.logger().Errorw("failed to read channel", "channel", id, "error", err)
			srv.writeError(w, http.StatusInternalServerError, "error")
		}
		return
	}

	srv.writeJSON(w, http.StatusOK, count)
}

// HealthHandler answers 503 while counts are frozen, so pollers can tell
// stale counts from quiet inputs.
func (srv *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	if !srv.Health.Healthy() {
		status = http.StatusServiceUnavailable
	}
	srv.writeJSON(w, status, srv.Health.Snapshot())
}

func (srv *Server) writeError(w http.ResponseWriter, status int, message string) {
	srv.writeJSON(w, status, struct {
		Message string `json:"message"`
	}{message})
}

func (srv *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		srv.logger().Errorw("failed to write response JSON", "error", err)
	}
}

func (srv *Server) logger() *zap.SugaredLogger {
	if srv.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return srv.Logger
}
