package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"todolist/internal/adapter/database"
	"todolist/internal/adapter/database/postgres"
	"todolist/internal/adapter/database/sqlite"
	"todolist/pkg/config"
	"todolist/pkg/logger"
)

const defaultShutdownTimeout = 10 * time.Second

// OpenDatabase connects and migrates the store selected by cfg.Driver.
func OpenDatabase(cfg config.DatabaseConfig) (*database.DB, error) {
	switch cfg.Driver {
	case database.DriverSQLite, "":
		return sqlite.NewDB(cfg)
	case database.DriverPostgres:
		return postgres.NewDB(cfg)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

type Server struct {
	srv             *http.Server
	db              *database.DB
	logger          *logger.Logger
	shutdownTimeout time.Duration
	inFlight        atomic.Int64
}

func NewServer(cfg *config.AppConfig, handler http.Handler, db *database.DB, log *logger.Logger) *Server {
	timeout := cfg.ShutdownTimeout.Duration

	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	s := &Server{
		srv: &http.Server{
			Addr:              ":" + cfg.Port,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		db:              db,
		logger:          log,
		shutdownTimeout: timeout,
	}

	s.srv.Handler = s.track(handler)

	return s
}

// track counts running handlers; srv.Close does not wait for them.
func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.inFlight.Add(1)
		defer s.inFlight.Add(-1)

		next.ServeHTTP(w, r)
	})
}

// waitHandlers polls until no handler runs or timeout passes.
func (s *Server) waitHandlers(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for s.inFlight.Load() > 0 {
		if time.Now().After(deadline) {
			return false
		}

		<-ticker.C
	}

	return true
}

// Run serves until ctx is done, then drains in-flight requests and only
// afterwards closes the database.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.srv.Addr)

	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.srv.Addr, err)
	}

	return s.Serve(ctx, listener)
}

func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	serveErr := make(chan error, 1)

	go func() {
		s.logger.Info("Server starting", zap.String("addr", listener.Addr().String()))

		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}

		close(serveErr)
	}()

	var runErr error

	select {
	case err := <-serveErr:
		runErr = err
	case <-ctx.Done():
		s.logger.Info("Shutting down gracefully...", zap.Duration("timeout", s.shutdownTimeout))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("Graceful shutdown timed out, closing connections", zap.Error(err))
		s.srv.Close()

		// handlers keep running after Close; give them one more timeout
		// before the database goes away under them
		if !s.waitHandlers(s.shutdownTimeout) {
			s.logger.Error("Handlers still running, closing database anyway",
				zap.Int64("in_flight", s.inFlight.Load()))
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database", zap.Error(err))

			runErr = errors.Join(runErr, err)
		}
	}

	s.logger.Info("Server stopped")

	return runErr
}
