// Package server wires the HTTP surface of weatherdash.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/apimgr/weatherdash/src/config"
	"github.com/apimgr/weatherdash/src/database"
	"github.com/apimgr/weatherdash/src/scheduler"
	"github.com/apimgr/weatherdash/src/server/service"
	"github.com/apimgr/weatherdash/src/utils"
)

// ShutdownTimeout bounds graceful shutdown
const ShutdownTimeout = 5 * time.Second

// Deps holds everything the server needs. Scheduler and Watcher are
// optional.
type Deps struct {
	Config    *config.Config
	Logger    *utils.Logger
	DB        *database.DB
	Cache     *service.CacheManager
	Hub       *service.Hub
	Weather   *service.WeatherService
	Alerts    *service.AlertService
	Auth      *service.AuthService
	Scheduler *scheduler.Scheduler
	Watcher   *config.Watcher
	Version   string
}

// Server owns the HTTP listener and the lifecycle of its dependencies
type Server struct {
	deps Deps
	http *http.Server
}

// New creates a server; nothing is started until Run
func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = utils.NewDiscardLogger()
	}
	return &Server{
		deps: d,
		http: &http.Server{
			Addr:              d.Config.ListenAddr(),
			Handler:           NewRouter(d),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
	}
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run starts the hub, the scheduler and the listener, then blocks until ctx
// is cancelled or the listener fails. Everything is shut down before it
// returns.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		s.close()
		return fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.deps.Hub != nil {
		go s.deps.Hub.Run()
	}
	if s.deps.Scheduler != nil {
		s.deps.Scheduler.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s", ln.Addr())
		s.deps.Logger.Info("Listening on %s", ln.Addr())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Println("Shutting down gracefully...")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		s.deps.Logger.Error("Server forced to shutdown: %v", err)
	}
	if s.deps.Scheduler != nil {
		if err := s.deps.Scheduler.Stop(shutdownCtx); err != nil {
			s.deps.Logger.Error("Scheduler shutdown error: %v", err)
		}
	}
	s.close()

	if serveErr != nil {
		return fmt.Errorf("server error: %w", serveErr)
	}
	log.Println("Server exited gracefully")
	return nil
}

func (s *Server) close() {
	if s.deps.Hub != nil {
		s.deps.Hub.Stop()
	}
	if s.deps.Watcher != nil {
		if err := s.deps.Watcher.Stop(); err != nil {
			s.deps.Logger.Error("Config watcher shutdown error: %v", err)
		}
	}
	if s.deps.Cache != nil {
		if err := s.deps.Cache.Close(); err != nil {
			s.deps.Logger.Error("Cache shutdown error: %v", err)
		}
	}
	if s.deps.DB != nil {
		if err := s.deps.DB.Close(); err != nil {
			s.deps.Logger.Error("Database close error: %v", err)
		}
	}
}
