package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/ledger"
	"github.com/roach88/galley/internal/retry"
)

// stockLevels returns levels for ?item= ids, or every item when none given.
func (s *Server) stockLevels(c echo.Context) error {
	var ids []string
	for _, raw := range c.QueryParams()["item"] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	tenant := tenantOf(c)
	levels, err := retry.Value(c.Request().Context(), s.retry.Named("stock_levels"), func(ctx context.Context) ([]domain.StockLevel, error) {
		return s.ledger.Levels(ctx, tenant, ids)
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"policy": s.ledger.Policy(),
		"levels": levels,
	})
}

func (s *Server) stockHistory(c echo.Context) error {
	tenant, item := tenantOf(c), c.QueryParam("item")
	mv, err := retry.Value(c.Request().Context(), s.retry.Named("stock_history"), func(ctx context.Context) ([]ledger.Movement, error) {
		return s.ledger.History(ctx, tenant, item)
	})
	if errors.Is(err, ledger.ErrNoHistory) {
		return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"movements": mv})
}
