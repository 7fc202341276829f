package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/Skotchmaster/apirest/internal/config"
	"github.com/Skotchmaster/apirest/internal/events"
	"github.com/Skotchmaster/apirest/internal/httpserver"
	"github.com/Skotchmaster/apirest/internal/metrics"
	"github.com/Skotchmaster/apirest/internal/middleware/auth"
	"github.com/Skotchmaster/apirest/internal/repo"
	"github.com/Skotchmaster/apirest/internal/search"
	"github.com/Skotchmaster/apirest/internal/service"
	"github.com/Skotchmaster/apirest/pkg/db"
	"github.com/Skotchmaster/apirest/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		slog.Error("apirest stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.IntoContext(ctx, logger)

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	gdb, err := db.Open(initCtx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer closeDB(gdb)

	gormRepo := &repo.GormRepo{DB: gdb}
	if cfg.DBAutoMigrate {
		if err := gormRepo.Migrate(initCtx); err != nil {
			return err
		}
	}

	tokens, err := service.NewTokenService(cfg.TokenConfig())
	if err != nil {
		return err
	}

	recorder, shutdownMetrics, err := newMetrics(cfg)
	if err != nil {
		return err
	}
	defer shutdownMetrics()

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		producer := events.NewProducer(cfg.KafkaBrokers)
		defer func() {
			if err := producer.Close(); err != nil {
				logger.Error("kafka close error", "error", err)
			}
		}()
		publisher = producer
	} else {
		logger.Info("KAFKA_BROKERS is empty, domain events are dropped")
	}

	var index search.Index
	if cfg.ESURL != "" {
		client, err := search.NewClient(initCtx, cfg.ESURL, cfg.ESUser, cfg.ESPassword)
		if err != nil {
			return err
		}
		index = &search.ESIndex{Client: client, Name: cfg.ESProductIndex}
	}

	policy := auth.DefaultPolicy()
	if cfg.Auth.PolicyFile != "" {
		if policy, err = auth.LoadPolicyFile(cfg.Auth.PolicyFile); err != nil {
			return err
		}
	}
	if cfg.JWT.DenylistEnabled {
		logger.Warn("JWT_DENYLIST_ENABLED is set but no denylist is implemented; tokenVersion is the only revocation")
	}

	authSvc := &service.AuthService{
		Repo:                gormRepo,
		Tokens:              tokens,
		Events:              publisher,
		Metrics:             recorder,
		EventsTopic:         cfg.KafkaAuthTopic,
		RegistrationEnabled: cfg.Auth.RegistrationEnabled,
		LookupTimeout:       cfg.Auth.LookupTimeout,
	}

	if cfg.BootstrapAdminUsername != "" {
		if _, err := authSvc.EnsureAdmin(initCtx, cfg.BootstrapAdminUsername, cfg.BootstrapAdminPassword); err != nil {
			return err
		}
	}
	cancel()

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	httpserver.Register(e, &httpserver.Deps{
		DB:      gdb,
		Logger:  logger,
		Metrics: recorder,
		Tokens:  tokens,
		Policy:  policy,
		Auth:    &httpserver.AuthHTTP{Svc: authSvc},
		Products: &httpserver.ProductHTTP{Svc: &service.CatalogService{
			Repo:        gormRepo,
			Index:       index,
			Events:      publisher,
			EventsTopic: cfg.KafkaProductTopic,
		}},
		Accounts: &httpserver.AccountHTTP{
			Svc: &service.AccountService{
				Repo:        gormRepo,
				Events:      publisher,
				EventsTopic: cfg.KafkaAuthTopic,
			},
			Auth: authSvc,
		},
		PublicPrefixes:     cfg.Auth.PublicPrefixes,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		AuthRateLimit:      cfg.Auth.RateLimit,
		AuthRateBurst:      cfg.Auth.RateBurst,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTPAddr,
			"refresh_enabled", cfg.JWT.RefreshEnabled,
			"registration_enabled", cfg.Auth.RegistrationEnabled)
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

// newMetrics prints counters to stdout when METRICS_STDOUT is set and
// otherwise records into the global (no-op by default) meter provider.
func newMetrics(cfg config.Config) (*metrics.Recorder, func(), error) {
	if !cfg.MetricsStdout {
		rec, err := metrics.New(otel.Meter(metrics.ScopeName))
		return rec, func() {}, err
	}

	exp, err := stdoutmetric.New()
	if err != nil {
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(
		sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(cfg.MetricsInterval)),
	))
	rec, err := metrics.New(mp.Meter(metrics.ScopeName))
	if err != nil {
		return nil, nil, err
	}

	return rec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mp.Shutdown(ctx); err != nil {
			slog.Error("metrics shutdown error", "error", err)
		}
	}, nil
}

func closeDB(gdb *gorm.DB) {
	sqlDB, err := gdb.DB()
	if err != nil {
		slog.Error("db() error", "error", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		slog.Error("db close error", "error", err)
	}
}
