package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/autopeer-io/stepguard/internal/monitor/core/model"
	"github.com/autopeer-io/stepguard/internal/pkg/metrics"
	mw "github.com/autopeer-io/stepguard/internal/pkg/middleware/http"
	"github.com/autopeer-io/stepguard/pkg/log"
	"github.com/autopeer-io/stepguard/pkg/options"
)

// Service is the part of the monitor exposed over HTTP.
type Service interface {
	Devices() []model.Device
	Device(id string) (model.Device, error)
	Rename(ctx context.Context, id, name string) error
	Ready() bool
}

type Server struct {
	server          *http.Server
	svc             Service
	shutdownTimeout time.Duration
	logger          log.Logger
}

func NewServer(opts *options.HttpOptions, svc Service) *Server {
	s := &Server{
		svc:             svc,
		shutdownTimeout: opts.ShutdownTimeout,
		logger:          log.WithName("http"),
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = 5 * time.Second
	}

	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(opts.Timeout),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) routes(timeout time.Duration) http.Handler {
	r := mux.NewRouter()
	r.Use(mw.Logging(s.logger), mw.Timeout(timeout))

	// Basic Liveness Probe
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	// Readiness Probe: ready once the broker connection is up
	r.HandleFunc("/readyz", s.readyz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/devices", s.listDevices).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}", s.getDevice).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}/name", s.renameDevice).Methods(http.MethodPut)

	return r
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP Server", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}
