package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/apirest/internal/metrics"
	"github.com/Skotchmaster/apirest/internal/service"
	"github.com/Skotchmaster/apirest/pkg/logging"
	"github.com/Skotchmaster/apirest/pkg/tokens"
)

// TokenValidator is satisfied by *service.TokenService.
type TokenValidator interface {
	Validate(token string) (*tokens.Claims, error)
}

type GateConfig struct {
	Validator      TokenValidator
	PublicPrefixes []string
	Metrics        *metrics.Recorder
}

// Gate turns a bearer token into an Identity. Requests without a bearer
// token continue anonymously; a bearer token that fails validation ends the
// request with 401.
func Gate(cfg GateConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if IsPublic(c.Request().URL.Path, cfg.PublicPrefixes) {
				return next(c)
			}

			raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return next(c)
			}

			ctx := c.Request().Context()
			claims, err := cfg.Validator.Validate(raw)
			if err != nil {
				reason := service.FailureReason(err)
				cfg.Metrics.AuthFailure(ctx, reason)
				logging.FromContext(ctx).Warn("token_rejected", "reason", reason)
				return echo.NewHTTPError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized)).SetInternal(err)
			}

			setIdentity(c, Identity{Subject: claims.Subject, Roles: NormalizeRoles(claims.Roles)})
			l := logging.FromContext(ctx).With("sub", claims.Subject)
			c.SetRequest(c.Request().WithContext(logging.IntoContext(ctx, l)))
			return next(c)
		}
	}
}

func IsPublic(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func bearerToken(header string) (string, bool) {
	const scheme = "Bearer "
	if len(header) < len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(scheme):])
	return tok, tok != ""
}
