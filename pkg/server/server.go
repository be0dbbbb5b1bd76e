package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"wayfarer-hq/keeper/pkg/config"
	"wayfarer-hq/keeper/pkg/identity"
	"wayfarer-hq/keeper/pkg/server/handlers"
	"wayfarer-hq/keeper/pkg/server/middleware"
	"wayfarer-hq/keeper/pkg/telemetry/health"
	"wayfarer-hq/keeper/pkg/telemetry/logging"
	"wayfarer-hq/keeper/pkg/telemetry/metrics"
	"wayfarer-hq/keeper/pkg/telemetry/tracing"
)

// Facade routes.
const (
	RouteRoot       = "/"
	RouteStatus     = "/status"
	RouteConfig     = "/config"
	RouteConfigJSON = "/config.json"
	RouteEvents     = "/events"
)

// Deps are the components the facade reads from.
type Deps struct {
	Identity    identity.Parameters
	DisplayName string

	Status  handlers.StatusSource
	Journal handlers.EventSource
	Checker *health.Checker

	Metrics     *metrics.Collector
	MetricsPath string
	Tracer      *tracing.Tracer
	Logger      *logging.Logger

	// Tunnel forwards WebSocket upgrades to the proxy inbound when set.
	Tunnel *middleware.TunnelConfig

	Version   string
	Commit    string
	BuildTime string
}

// Server is the HTTP facade in front of the supervised proxy.
type Server struct {
	config       *config.ServerConfig
	deps         Deps
	logger       *logging.Logger
	httpServer   *http.Server
	listener     net.Listener
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates a facade server.
func NewServer(cfg *config.ServerConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Tracer == nil {
		deps.Tracer = tracing.Noop()
	}
	if deps.Checker == nil {
		deps.Checker = health.New(0)
	}
	return &Server{
		config:       cfg,
		deps:         deps,
		logger:       deps.Logger.Component("server"),
		shutdownChan: make(chan struct{}),
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}

// Listen binds the listener without serving. Start calls it when needed;
// calling it first lets the caller learn the bound address.
func (s *Server) Listen() (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr(), nil
	}

	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.Addr(), err)
	}
	s.listener = ln
	return ln.Addr(), nil
}

// Start serves until ctx is cancelled, a shutdown signal arrives, Shutdown
// is called, or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	if _, err := s.Listen(); err != nil {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	srv, ln := s.httpServer, s.listener
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting facade", "address", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		s.logger.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Stop asks a running Start to return.
func (s *Server) Stop() {
	select {
	case <-s.shutdownChan:
	default:
		close(s.shutdownChan)
	}
}

// Shutdown gracefully drains the facade within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		srv := s.httpServer
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if srv != nil {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("facade stopped")
	})

	return shutdownErr
}

// IsRunning reports whether Start is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the facade routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()
	slogger := s.deps.Logger.Component("handlers").Slog()

	configHandler := handlers.NewConfigHandler(s.deps.Identity, s.deps.DisplayName, slogger)

	mux.Handle(RouteRoot, handlers.NewRootHandler())
	mux.Handle(RouteStatus, handlers.NewStatusHandler(s.deps.Status, slogger))
	mux.Handle(RouteConfig, configHandler)
	mux.Handle(RouteConfigJSON, configHandler.JSON())
	routes := []string{RouteRoot, RouteStatus, RouteConfig, RouteConfigJSON, "/health", "/ready", "/version"}

	if s.deps.Journal != nil {
		mux.Handle(RouteEvents, handlers.NewEventsHandler(s.deps.Journal, slogger))
		routes = append(routes, RouteEvents)
	}

	health.Mount(mux, s.deps.Checker, health.BuildInfo{Version: s.deps.Version, Commit: s.deps.Commit, BuildTime: s.deps.BuildTime})

	if s.deps.Metrics != nil && s.deps.MetricsPath != "" {
		mux.Handle(s.deps.MetricsPath, s.deps.Metrics.Handler())
		routes = append(routes, s.deps.MetricsPath)
	}

	var handler http.Handler = mux

	if s.deps.Tunnel != nil {
		handler = middleware.Tunnel(*s.deps.Tunnel, s.deps.Logger)(handler)
	}
	handler = tracing.HTTPMiddleware(s.deps.Tracer)(handler)
	handler = middleware.Metrics(s.deps.Metrics, routes...)(handler)
	handler = middleware.Logging(s.deps.Logger)(handler)
	handler = middleware.RequestID(handler)

	// Recovery middleware (outermost)
	handler = middleware.Recovery(s.deps.Logger)(handler)

	return handler
}
