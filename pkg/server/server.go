package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/Zanooda/sunshine-homeassistant/pkg/config"
	"github.com/Zanooda/sunshine-homeassistant/pkg/coordinator"
	"github.com/Zanooda/sunshine-homeassistant/pkg/entity"
)

const shutdownTimeout = 5 * time.Second

// Fleet is the coordinator surface the status API reads and refreshes
type Fleet interface {
	Data() coordinator.Snapshot
	LastUpdateSuccess() bool
	LastError() error
	LastUpdated() time.Time
	Refresh(ctx context.Context) error
}

// Server is the optional local status API
type Server struct {
	config         *config.ServerConfig
	fleet          Fleet
	registry       *entity.Registry
	commandTimeout time.Duration
	version        string
	logger         *logrus.Logger

	httpServer *http.Server
	listener   net.Listener
	done       chan error
}

func New(
	cfg *config.ServerConfig,
	fleet Fleet,
	registry *entity.Registry,
	commandTimeout time.Duration,
	version string,
	logger *logrus.Logger,
) *Server {
	s := &Server{
		config:         cfg,
		fleet:          fleet,
		registry:       registry,
		commandTimeout: commandTimeout,
		version:        version,
		logger:         logger,
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Router builds the chi route table
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/scooters", s.handleScooters)
		r.Get("/scooters/{scooterID}", s.handleScooter)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/entities", s.handleEntities)
		r.Post("/entities/{uniqueID}", s.handleCommand)
	})

	return r
}

// Start binds the listen address and serves in the background (implements
// Service interface)
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}
	s.listener = listener
	s.done = make(chan error, 1)

	s.logger.WithField("listen", listener.Addr().String()).Info("Status API listening")

	go func() {
		err := s.httpServer.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()

	return nil
}

// Stop shuts the server down gracefully (implements Service interface)
func (s *Server) Stop() error {
	if s.listener == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.listener = nil
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down status API: %w", err)
	}

	if err := <-s.done; err != nil {
		return fmt.Errorf("status API stopped with error: %w", err)
	}

	s.logger.Info("Status API stopped")
	return nil
}

// Addr is the bound address while started
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.config.Listen
	}
	return s.listener.Addr().String()
}
