package httpserver

import (
	"bytes"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/apirest/internal/middleware/auth"
	"github.com/Skotchmaster/apirest/internal/service"
	"github.com/Skotchmaster/apirest/internal/transport"
	"github.com/Skotchmaster/apirest/pkg/logging"
)

// maxRefreshBody bounds the raw refresh token body.
const maxRefreshBody = 8 << 10

type AuthHTTP struct {
	Svc *service.AuthService
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.login")

	var req transport.LoginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return toHTTP(l, "login_failed", err)
	}

	pair, err := h.Svc.Login(ctx, req.Username, req.Password)
	if err != nil {
		return toHTTP(l, "login_failed", err)
	}
	return c.JSON(http.StatusOK, tokenResponse(pair))
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.register")

	if !h.Svc.RegistrationEnabled {
		return toHTTP(l, "register_failed", service.ErrFeatureDisabled)
	}

	var req transport.RegisterRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return toHTTP(l, "register_failed", err)
	}

	acc, err := h.Svc.Register(ctx, service.RegisterInput{
		Username:  req.Username,
		Password:  req.Password,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return toHTTP(l, "register_failed", err)
	}
	return c.JSON(http.StatusCreated, transport.NewAccountResponse(acc))
}

// Refresh takes the refresh token as the whole request body, not JSON.
func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.refresh")

	if !h.Svc.Tokens.RefreshEnabled() {
		return toHTTP(l, "refresh_failed", service.ErrFeatureDisabled)
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxRefreshBody))
	if err != nil {
		l.Warn("refresh_failed", "status", 400, "reason", "cannot read body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	pair, err := h.Svc.Refresh(ctx, string(bytes.TrimSpace(body)))
	if err != nil {
		return toHTTP(l, "refresh_failed", err)
	}
	return c.JSON(http.StatusOK, tokenResponse(pair))
}

func (h *AuthHTTP) Me(c echo.Context) error {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized)
	}
	return c.JSON(http.StatusOK, transport.MeResponse{Username: id.Subject, Roles: id.Roles})
}

// LogoutAll invalidates every refresh token of the caller.
func (h *AuthHTTP) LogoutAll(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.logout_all")

	id, ok := auth.IdentityFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized)
	}

	version, err := h.Svc.RevokeSessions(ctx, id.Subject)
	if err != nil {
		return toHTTP(l, "logout_all_failed", err)
	}
	return c.JSON(http.StatusOK, transport.RevokeResponse{Username: id.Subject, TokenVersion: version})
}

func tokenResponse(p *service.TokenPair) transport.TokenResponse {
	return transport.TokenResponse{
		AccessToken:  p.AccessToken,
		ExpiresIn:    p.ExpiresIn,
		RefreshToken: p.RefreshToken,
	}
}
