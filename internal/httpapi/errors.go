package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/roach88/galley/internal/domain"
)

// Codes for failures that are not domain errors.
const (
	codeBadRequest = "BAD_REQUEST"
	codeNotFound   = "NOT_FOUND"
	codeInternal   = "INTERNAL"
)

// apiError is the JSON shape of a domain error or warning.
type apiError struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	TenantID domain.TenantID   `json:"tenant_id,omitempty"`
	OrderID  string            `json:"order_id,omitempty"`
	ItemID   string            `json:"item_id,omitempty"`
	Details  map[string]string `json:"details,omitempty"`
}

type errorBody struct {
	Error apiError `json:"error"`
}

func toAPIError(e *domain.Error) apiError {
	return apiError{
		Code:     string(e.Code),
		Message:  e.Message,
		TenantID: e.TenantID,
		OrderID:  e.OrderID,
		ItemID:   e.ItemID,
		Details:  e.Details,
	}
}

func toAPIWarnings(ws []*domain.Error) []apiError {
	if len(ws) == 0 {
		return nil
	}
	out := make([]apiError, len(ws))
	for i, w := range ws {
		out[i] = toAPIError(w)
	}
	return out
}

// statusFor maps a domain code to an HTTP status.
func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.ErrCodeEmptyOrder,
		domain.ErrCodeInvalidLine,
		domain.ErrCodeInvalidPlacement,
		domain.ErrCodeModifierNotApplicable:
		return http.StatusBadRequest
	case domain.ErrCodeOrderNotFound:
		return http.StatusNotFound
	case domain.ErrCodeImmutableOrder,
		domain.ErrCodeInvalidTransition:
		return http.StatusConflict
	case domain.ErrCodeTenantMismatch,
		domain.ErrCodeDanglingReference,
		domain.ErrCodeInsufficientStock:
		return http.StatusUnprocessableEntity
	case domain.ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// errorResponse picks the status and body for err.
func errorResponse(err error) (int, errorBody) {
	var de *domain.Error
	if errors.As(err, &de) {
		return statusFor(de.Code), errorBody{Error: toAPIError(de)}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code := codeBadRequest
		switch {
		case he.Code == http.StatusNotFound:
			code = codeNotFound
		case he.Code >= 500:
			code = codeInternal
		}
		msg := http.StatusText(he.Code)
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		return he.Code, errorBody{Error: apiError{Code: code, Message: msg}}
	}

	return http.StatusInternalServerError, errorBody{Error: apiError{Code: codeInternal, Message: "internal error"}}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, body := errorResponse(err)
	if status >= 500 {
		s.logger.Error("request failed",
			"request_id", c.Get("request_id"),
			"path", c.Path(),
			"tenant_id", c.Param("tenant"),
			"error", err,
		)
	}
	if status == http.StatusServiceUnavailable {
		c.Response().Header().Set("Retry-After", "1")
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, body)
	}
	if werr != nil {
		s.logger.Error("write error response", "error", werr)
	}
}

// badRequest reports a malformed request.
func badRequest(format string, args ...any) error {
	return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf(format, args...))
}
