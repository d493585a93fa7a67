// Package httpapi is galley's HTTP boundary.
//
// Two audiences share one Echo router:
//   - menu ordering clients submit and edit orders and read them back
//   - kitchen stations read the queue view, follow it as a server-sent
//     event stream, and bump, advance, reorder, cancel or edit orders
//
// Every route is scoped by the :tenant path segment. Handlers never touch a
// store directly; they call the queue, the KDS dispatcher and the ledger.
// Domain error codes are mapped to HTTP statuses in one place (errors.go).
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/roach88/galley/internal/kds"
	"github.com/roach88/galley/internal/ledger"
	"github.com/roach88/galley/internal/metrics"
	"github.com/roach88/galley/internal/queue"
	"github.com/roach88/galley/internal/retry"
)

// Server serves the ordering and KDS endpoints.
type Server struct {
	echo       *echo.Echo
	queue      *queue.Queue
	dispatcher *kds.Dispatcher
	ledger     *ledger.Ledger
	retry      retry.Policy
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the access and error logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics records request metrics and mounts /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithRetry sets the backoff for submit, edit and read calls.
func WithRetry(p retry.Policy) Option {
	return func(s *Server) { s.retry = p }
}

// New builds the router.
func New(q *queue.Queue, d *kds.Dispatcher, led *ledger.Ledger, opts ...Option) *Server {
	s := &Server{
		queue:      q,
		dispatcher: d,
		ledger:     led,
		retry:      retry.DefaultPolicy(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.retry.Logger == nil {
		s.retry.Logger = s.logger
	}
	if s.retry.Metrics == nil {
		s.retry.Metrics = s.metrics
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(requestID)
	e.Use(s.recordMetrics)
	e.Use(s.accessLog)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	t := e.Group("/tenants/:tenant")

	t.POST("/orders", s.submitOrder)
	t.GET("/orders/:id", s.getOrder)
	t.PUT("/orders/:id/lines", s.editOrder)
	t.GET("/orders/:id/history", s.orderHistory)

	t.GET("/kds", s.kdsView)
	t.GET("/kds/stream", s.kdsStream)
	t.POST("/kds/tasks", s.kdsPrepTask)
	t.POST("/kds/orders/:id/bump", s.kdsBump)
	t.POST("/kds/orders/:id/advance", s.kdsAdvance)
	t.POST("/kds/orders/:id/reorder", s.kdsReorder)
	t.POST("/kds/orders/:id/cancel", s.kdsCancel)
	t.PUT("/kds/orders/:id/lines", s.kdsEdit)

	t.GET("/stock", s.stockLevels)
	t.GET("/stock/history", s.stockHistory)

	s.echo = e
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown is called. A clean shutdown returns
// nil.
func (s *Server) Start(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
