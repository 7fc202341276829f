package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/Skotchmaster/apirest/internal/metrics"
	"github.com/Skotchmaster/apirest/internal/middleware/auth"
	"github.com/Skotchmaster/apirest/pkg/db"
	loggingmw "github.com/Skotchmaster/apirest/pkg/middleware/logging"
)

type Deps struct {
	DB       *gorm.DB
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
	Tokens   auth.TokenValidator
	Policy   *auth.Policy
	Auth     *AuthHTTP
	Products *ProductHTTP
	Accounts *AccountHTTP

	PublicPrefixes     []string
	CORSAllowedOrigins []string
	// AuthRateLimit is requests per second per client IP on /api/v1/auth.
	// Zero turns the limiter off.
	AuthRateLimit float64
	AuthRateBurst int
}

func Register(e *echo.Echo, d *Deps) {
	e.HTTPErrorHandler = ErrorHandler
	e.Validator = NewValidator()

	policy := d.Policy
	if policy == nil {
		policy = auth.DefaultPolicy()
	}
	origins := d.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	e.Use(middleware.Recover())
	e.Use(loggingmw.RequestLogger(d.Logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(middleware.BodyLimit("1M"))
	e.Use(auth.Gate(auth.GateConfig{
		Validator:      d.Tokens,
		PublicPrefixes: d.PublicPrefixes,
		Metrics:        d.Metrics,
	}))
	e.Use(policy.Enforce(d.PublicPrefixes))

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx, d.DB); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable).SetInternal(err)
		}
		return c.NoContent(http.StatusOK)
	})

	v1 := e.Group("/api/v1")

	authGroup := v1.Group("/auth")
	if d.AuthRateLimit > 0 {
		authGroup.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(d.AuthRateLimit),
				Burst:     d.AuthRateBurst,
				ExpiresIn: 3 * time.Minute,
			}),
			IdentifierExtractor: func(c echo.Context) (string, error) {
				return c.RealIP(), nil
			},
		}))
	}
	authGroup.POST("/login", d.Auth.Login)
	authGroup.POST("/register", d.Auth.Register)
	authGroup.POST("/refresh", d.Auth.Refresh)

	me := v1.Group("/me")
	me.GET("", d.Auth.Me)
	me.POST("/logout-all", d.Auth.LogoutAll)

	products := v1.Group("/products")
	products.GET("", d.Products.List)
	products.GET("/active", d.Products.ListActive)
	products.GET("/search", d.Products.Search)
	products.GET("/:id", d.Products.Get)
	products.POST("", d.Products.Create)
	products.PUT("/:id", d.Products.Update)
	products.PATCH("/:id", d.Products.Deactivate)

	accounts := v1.Group("/accounts")
	accounts.GET("", d.Accounts.List)
	accounts.GET("/:id", d.Accounts.Get)
	accounts.PATCH("/:username", d.Accounts.Disable)
	accounts.POST("/:username/revoke", d.Accounts.Revoke)
}
