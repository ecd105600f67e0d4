package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/louisbranch/vvebeheer/internal/platform/logging"
	"github.com/louisbranch/vvebeheer/internal/platform/timeouts"
	"github.com/louisbranch/vvebeheer/internal/services/vve/api/httpapi"
	"github.com/louisbranch/vvebeheer/internal/services/vve/storage/sqlite"
)

// ServerConfig controls the API runtime.
type ServerConfig struct {
	Addr         string
	DBPath       string
	CORSOrigin   string
	PingInterval time.Duration
	Compose      Config
}

// Server hosts the HTTP API.
type Server struct {
	store      *sqlite.Store
	app        *App
	listener   net.Listener
	httpServer *http.Server
}

// NewServer opens the store, composes the services and binds the listener.
func NewServer(ctx context.Context, cfg ServerConfig) (*Server, error) {
	store, err := OpenStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	composed, err := Compose(store, cfg.Compose)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	pingInterval := cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = timeouts.StreamPing
	}
	handler, err := httpapi.NewHandler(composed.Services, httpapi.Options{
		Logger:       *logging.FromContext(ctx),
		CORSOrigin:   cfg.CORSOrigin,
		PingInterval: pingInterval,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}
	return &Server{
		store:    store,
		app:      composed,
		listener: listener,
		httpServer: &http.Server{
			Handler:           otelhttp.NewHandler(handler, "vvebeheer.api"),
			ReadHeaderTimeout: timeouts.ReadHeader,
		},
	}, nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// App exposes the composed services.
func (s *Server) App() *App {
	return s.app
}

// Serve blocks until ctx is cancelled or the server fails, then drains
// in-flight requests and closes the store.
func (s *Server) Serve(ctx context.Context) error {
	defer func() {
		if err := s.store.Close(); err != nil {
			logging.FromContext(ctx).Warn().Err(err).Msg("close sqlite store")
		}
	}()
	logging.FromContext(ctx).Info().Str("addr", s.listener.Addr().String()).Msg("api server listening")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

// Run starts the API and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg ServerConfig) error {
	server, err := NewServer(ctx, cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}
