package httpapi

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const headerRequestID = "X-Request-ID"

// requestID keeps a caller-supplied X-Request-ID or assigns a new one.
func requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
			c.Request().Header.Set(headerRequestID, id)
		}
		c.Response().Header().Set(headerRequestID, id)
		c.Set("request_id", id)
		return next(c)
	}
}

// accessLog writes one line per request. Handler errors are passed to the
// error handler first so the logged status is the one the client saw.
func (s *Server) accessLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		if err := next(c); err != nil {
			c.Error(err)
		}
		req := c.Request()
		status := c.Response().Status
		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		}
		s.logger.Log(req.Context(), level, "http request",
			"request_id", c.Get("request_id"),
			"method", req.Method,
			"path", c.Path(),
			"tenant_id", c.Param("tenant"),
			"status", status,
			"duration", time.Since(start),
		)
		return nil
	}
}

func (s *Server) recordMetrics(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		s.metrics.HTTPRequest(c.Request().Method, c.Path(), c.Response().Status, time.Since(start))
		return err
	}
}
