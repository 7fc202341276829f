package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/apirest/internal/service"
	"github.com/Skotchmaster/apirest/internal/transport"
	"github.com/Skotchmaster/apirest/pkg/logging"
)

type AccountHTTP struct {
	Svc  *service.AccountService
	Auth *service.AuthService
}

func (h *AccountHTTP) List(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "account.list")

	page, size := pageParams(c)
	res, err := h.Svc.List(ctx, page, size)
	if err != nil {
		return toHTTP(l, "list_accounts_failed", err)
	}

	items := make([]transport.AccountResponse, 0, len(res.Items))
	for i := range res.Items {
		items = append(items, transport.NewAccountResponse(&res.Items[i]))
	}
	return c.JSON(http.StatusOK, transport.NewPage(items, res.Page, res.Size, res.Total))
}

func (h *AccountHTTP) Get(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "account.get")

	id, ok := parseID(c)
	if !ok {
		l.Warn("get_account_failed", "status", 400, "reason", "id is not a positive integer")
		return echo.NewHTTPError(http.StatusBadRequest, "id is not a positive integer")
	}

	acc, err := h.Svc.Get(ctx, id)
	if err != nil {
		return toHTTP(l, "get_account_failed", err)
	}
	return c.JSON(http.StatusOK, transport.NewAccountResponse(acc))
}

// Disable soft-deletes the account named in the path.
func (h *AccountHTTP) Disable(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "account.disable")

	username := c.Param("username")
	if err := h.Svc.Disable(ctx, username); err != nil {
		return toHTTP(l, "disable_account_failed", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Revoke forces a global logout of another account.
func (h *AccountHTTP) Revoke(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "account.revoke")

	username := c.Param("username")
	version, err := h.Auth.RevokeSessions(ctx, username)
	if err != nil {
		return toHTTP(l, "revoke_sessions_failed", err)
	}
	return c.JSON(http.StatusOK, transport.RevokeResponse{Username: username, TokenVersion: version})
}
