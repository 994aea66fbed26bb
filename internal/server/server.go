package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/vibesql/pgquery/internal/config"
	"github.com/vibesql/pgquery/internal/query"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	listener   net.Listener
	handler    *Handler
	metrics    *Metrics
	ready      atomic.Bool
}

// NewServer wires the router for executor. drivers are reported on /healthz.
func NewServer(cfg *config.Config, executor query.QueryExecutor, drivers []string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := NewMetrics()

	server := &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		handler: NewHandler(executor, Options{
			Metrics:      metrics,
			Logger:       logger,
			QueryTimeout: cfg.QueryTimeout,
			Drivers:      drivers,
		}),
	}
	server.ready.Store(false)
	return server
}

// Router builds the HTTP routes and middleware chain
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Use(RequestID)
	router.Use(s.metrics.Middleware)
	router.Use(RequestLogger(s.logger))

	s.handler.RegisterRoutes(router)
	return router
}

func (s *Server) Start() error {
	addr := s.cfg.Addr()

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", addr, err)
	}
	s.listener = listener

	limitListener := &limitedListener{
		Listener:  listener,
		semaphore: make(chan struct{}, s.cfg.MaxConnections),
	}

	s.httpServer = &http.Server{
		Handler:           s.Router(),
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
	}

	s.ready.Store(true)
	s.logger.Info("HTTP server listening",
		slog.String("addr", listener.Addr().String()),
		slog.Int("max_connections", s.cfg.MaxConnections),
	)

	go func() {
		if err := s.httpServer.Serve(limitListener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Shutting down HTTP server gracefully")
	s.ready.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

func (s *Server) IsReady() bool {
	return s.ready.Load()
}

func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr()
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then stops the server
func (s *Server) WaitForShutdown() {
	if !s.IsReady() {
		s.logger.Warn("WaitForShutdown called but server not started")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	s.logger.Info("Received signal", slog.String("signal", sig.String()))

	if err := s.Stop(); err != nil {
		s.logger.Error("Failed to stop server", slog.String("error", err.Error()))
	}
}

// limitedListener caps the number of open client connections. Accept
// blocks while the cap is reached.
type limitedListener struct {
	net.Listener
	semaphore chan struct{}
}

func (l *limitedListener) Accept() (net.Conn, error) {
	l.semaphore <- struct{}{}

	conn, err := l.Listener.Accept()
	if err != nil {
		<-l.semaphore
		return nil, err
	}

	return &limitedConn{
		Conn:      conn,
		semaphore: l.semaphore,
	}, nil
}

type limitedConn struct {
	net.Conn
	semaphore chan struct{}
	once      sync.Once
}

func (c *limitedConn) Close() error {
	var err error
	c.once.Do(func() {
		<-c.semaphore
		err = c.Conn.Close()
	})
	return err
}
