package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/apirest/internal/service"
	"github.com/Skotchmaster/apirest/internal/transport"
)

// ErrorHandler renders every error in the uniform API shape. Messages of
// 401 and 5xx responses never carry internal detail.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := http.StatusText(code)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		switch m := he.Message.(type) {
		case string:
			msg = m
		case error:
			msg = m.Error()
		default:
			msg = fmt.Sprint(m)
		}
	}
	if code == http.StatusUnauthorized || code >= http.StatusInternalServerError {
		msg = http.StatusText(code)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, transport.ErrorResponse{
			Error:     msg,
			Code:      code,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Path:      c.Request().URL.Path,
		})
	}
	if err != nil {
		slog.Error("cannot write error response", "error", err)
	}
}

// toHTTP maps a service error to the HTTP error the client sees and logs it
// with the handler's logger.
func toHTTP(l *slog.Logger, event string, err error) error {
	code, msg := classify(err)
	reason := service.FailureReason(err)
	if code >= http.StatusInternalServerError {
		l.Error(event, "status", code, "reason", reason, "error", err)
	} else {
		l.Warn(event, "status", code, "reason", reason, "error", err)
	}
	return echo.NewHTTPError(code, msg).SetInternal(err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case service.IsTokenError(err),
		errors.Is(err, service.ErrStaleRefreshToken),
		errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrAccountDisabled):
		return http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized)
	case errors.Is(err, service.ErrInsufficientRole):
		return http.StatusForbidden, http.StatusText(http.StatusForbidden)
	case errors.Is(err, service.ErrFeatureDisabled):
		return http.StatusNotFound, http.StatusText(http.StatusNotFound)
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable)
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}
