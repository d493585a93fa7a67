package httpapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/queue"
	"github.com/roach88/galley/internal/retry"
)

type submitRequest struct {
	Lines       []domain.OrderLine `json:"lines"`
	CustomerRef string             `json:"customer_ref"`
}

type editRequest struct {
	Lines []domain.OrderLine `json:"lines"`
}

func tenantOf(c echo.Context) domain.TenantID {
	return domain.TenantID(c.Param("tenant"))
}

// customerLines clears station-only line flags from a menu-ordering request.
// Only a station may void a line.
func customerLines(lines []domain.OrderLine) []domain.OrderLine {
	out := domain.CloneLines(lines)
	for i := range out {
		out[i].Voided = false
	}
	return out
}

// submitOrder is not retried: a store failure after the commit would leave a
// second copy of the order behind.
func (s *Server) submitOrder(c echo.Context) error {
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid order body: %v", err)
	}
	var opts []queue.SubmitOption
	if req.CustomerRef != "" {
		opts = append(opts, queue.WithCustomerRef(req.CustomerRef))
	}

	o, err := s.queue.Submit(c.Request().Context(), tenantOf(c), customerLines(req.Lines), opts...)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, o)
}

func (s *Server) getOrder(c echo.Context) error {
	tenant, id := tenantOf(c), c.Param("id")
	o, err := retry.Value(c.Request().Context(), s.retry.Named("get_order"), func(ctx context.Context) (domain.Order, error) {
		return s.queue.Get(ctx, tenant, id)
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

// editOrder replaces the lines of an active order. Status and position are
// unchanged.
func (s *Server) editOrder(c echo.Context) error {
	var req editRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid edit body: %v", err)
	}
	tenant, id, lines := tenantOf(c), c.Param("id"), customerLines(req.Lines)
	o, err := retry.Value(c.Request().Context(), s.retry.Named("edit"), func(ctx context.Context) (domain.Order, error) {
		return s.queue.Edit(ctx, tenant, id, lines)
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

func (s *Server) orderHistory(c echo.Context) error {
	tenant, id := tenantOf(c), c.Param("id")
	log, err := retry.Value(c.Request().Context(), s.retry.Named("order_history"), func(ctx context.Context) ([]queue.Transition, error) {
		return s.queue.History(ctx, tenant, id)
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"transitions": log})
}
