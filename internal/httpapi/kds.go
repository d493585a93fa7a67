package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/queue"
)

type advanceRequest struct {
	Status domain.Status `json:"status"`
}

type prepTaskRequest struct {
	Lines []domain.OrderLine `json:"lines"`
	Ref   string             `json:"ref"`
}

type reorderRequest struct {
	PrevID string `json:"prev_id"`
	NextID string `json:"next_id"`
}

type advanceResponse struct {
	Order      domain.Order        `json:"order"`
	Duplicate  bool                `json:"duplicate,omitempty"`
	Deducted   bool                `json:"deducted,omitempty"`
	Deductions []domain.Deduction  `json:"deductions,omitempty"`
	Levels     []domain.StockLevel `json:"levels,omitempty"`
	Warnings   []apiError          `json:"warnings,omitempty"`
}

func newAdvanceResponse(r queue.AdvanceResult) advanceResponse {
	return advanceResponse{
		Order:      r.Order,
		Duplicate:  r.Duplicate,
		Deducted:   r.Deducted,
		Deductions: r.Deductions,
		Levels:     r.Levels,
		Warnings:   toAPIWarnings(r.Warnings),
	}
}

// parseStatuses reads ?status= filters. Repeated and comma-separated values
// are both accepted.
func parseStatuses(c echo.Context) ([]domain.Status, error) {
	var out []domain.Status
	for _, raw := range c.QueryParams()["status"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			st := domain.Status(part)
			if !st.Valid() {
				return nil, badRequest("unknown status %q", part)
			}
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *Server) kdsView(c echo.Context) error {
	statuses, err := parseStatuses(c)
	if err != nil {
		return err
	}
	v, err := s.dispatcher.View(c.Request().Context(), tenantOf(c), statuses...)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

// kdsStream sends the station view as server-sent events: the current view
// first, then a new event after every queue change. A slow reader skips
// intermediate views.
func (s *Server) kdsStream(c echo.Context) error {
	statuses, err := parseStatuses(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	sub, err := s.dispatcher.Subscribe(ctx, tenantOf(c), statuses...)
	if err != nil {
		return err
	}
	defer sub.Close()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case v, ok := <-sub.C:
			if !ok {
				return nil
			}
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: view\ndata: %s\n\n", v.Version, data); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

func (s *Server) kdsBump(c echo.Context) error {
	res, err := s.dispatcher.Bump(c.Request().Context(), tenantOf(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newAdvanceResponse(res))
}

func (s *Server) kdsAdvance(c echo.Context) error {
	var req advanceRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid advance body: %v", err)
	}
	if req.Status == "" {
		return badRequest("status is required")
	}
	res, err := s.dispatcher.Advance(c.Request().Context(), tenantOf(c), c.Param("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newAdvanceResponse(res))
}

func (s *Server) kdsReorder(c echo.Context) error {
	var req reorderRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid reorder body: %v", err)
	}
	o, err := s.dispatcher.Reorder(c.Request().Context(), tenantOf(c), c.Param("id"), req.PrevID, req.NextID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

func (s *Server) kdsCancel(c echo.Context) error {
	o, err := s.dispatcher.Cancel(c.Request().Context(), tenantOf(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

// kdsEdit edits through an edit session bound to the path's order id, so a
// station edit can never create a new order.
func (s *Server) kdsEdit(c echo.Context) error {
	var req editRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid edit body: %v", err)
	}
	ctx := c.Request().Context()
	session, err := s.dispatcher.OpenEdit(ctx, tenantOf(c), c.Param("id"))
	if err != nil {
		return err
	}
	o, err := session.Commit(ctx, req.Lines)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

// kdsPrepTask queues a prep or opening task. Completing it deducts no stock.
// Like customer submits it is not retried.
func (s *Server) kdsPrepTask(c echo.Context) error {
	var req prepTaskRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid task body: %v", err)
	}
	opts := []queue.SubmitOption{queue.WithSkipDeduction()}
	if req.Ref != "" {
		opts = append(opts, queue.WithCustomerRef(req.Ref))
	}
	o, err := s.queue.Submit(c.Request().Context(), tenantOf(c), req.Lines, opts...)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, o)
}
