package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/joho/godotenv"

	"github.com/Skotchmaster/apirest/internal/service"
	"github.com/Skotchmaster/apirest/pkg/config"
	"github.com/Skotchmaster/apirest/pkg/db"
	"github.com/Skotchmaster/apirest/pkg/tokens"
)

type JWTConfig struct {
	Secret          []byte
	Issuer          string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	RefreshEnabled  bool
	DenylistEnabled bool
}

type AuthConfig struct {
	RegistrationEnabled bool
	LookupTimeout       time.Duration
	PublicPrefixes      []string
	PolicyFile          string
	RateLimit           float64
	RateBurst           int
}

type Config struct {
	HTTPAddr string
	LogLevel string

	DBDriver      string
	DatabaseURL   string
	DBAutoMigrate bool

	JWT  JWTConfig
	Auth AuthConfig

	CORSAllowedOrigins []string

	KafkaBrokers      []string
	KafkaAuthTopic    string
	KafkaProductTopic string

	ESURL          string
	ESUser         string
	ESPassword     string
	ESProductIndex string

	MetricsStdout   bool
	MetricsInterval time.Duration

	BootstrapAdminUsername string
	BootstrapAdminPassword string
}

// TokenConfig adapts the JWT section for service.NewTokenService.
func (c Config) TokenConfig() service.TokenConfig {
	return service.TokenConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTTL:      c.JWT.AccessTTL,
		RefreshTTL:     c.JWT.RefreshTTL,
		RefreshEnabled: c.JWT.RefreshEnabled,
	}
}

// Load reads .env (when present) and the environment. The result is
// immutable for the life of the process.
func Load() (Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("cannot read .env, using process environment", "error", err)
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Config{
		HTTPAddr: config.EnvDefault("HTTP_ADDR", ":8080"),
		LogLevel: config.EnvDefault("LOG_LEVEL", "info"),

		DBDriver:      config.EnvDefault("DB_DRIVER", db.DriverPostgres),
		DatabaseURL:   config.EnvDefault("DATABASE_URL", ""),
		DBAutoMigrate: config.EnvBoolDefault("DB_AUTO_MIGRATE", true),

		JWT: JWTConfig{
			Secret:          []byte(config.EnvDefault("JWT_SECRET", "")),
			Issuer:          config.EnvDefault("JWT_ISSUER", "apirest"),
			AccessTTL:       config.EnvDurationDefault("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTTL:      config.EnvDurationDefault("JWT_REFRESH_TTL", 7*24*time.Hour),
			RefreshEnabled:  config.EnvBoolDefault("JWT_REFRESH_ENABLED", true),
			DenylistEnabled: config.EnvBoolDefault("JWT_DENYLIST_ENABLED", false),
		},
		Auth: AuthConfig{
			RegistrationEnabled: config.EnvBoolDefault("AUTH_REGISTRATION_ENABLED", false),
			LookupTimeout:       config.EnvDurationDefault("AUTH_LOOKUP_TIMEOUT", 2*time.Second),
			PublicPrefixes:      config.CSV(config.EnvDefault("AUTH_PUBLIC_PREFIXES", "/api/v1/auth/,/health/")),
			PolicyFile:          config.EnvDefault("AUTH_POLICY_FILE", ""),
			RateLimit:           config.EnvFloatDefault("AUTH_RATE_LIMIT", 5),
			RateBurst:           config.EnvIntDefault("AUTH_RATE_BURST", 10),
		},

		CORSAllowedOrigins: config.CSV(config.EnvDefault("CORS_ALLOWED_ORIGINS", "")),

		KafkaBrokers:      config.CSV(config.EnvDefault("KAFKA_BROKERS", "")),
		KafkaAuthTopic:    config.EnvDefault("KAFKA_AUTH_TOPIC", "auth_events"),
		KafkaProductTopic: config.EnvDefault("KAFKA_PRODUCT_TOPIC", "product_events"),

		ESURL:          config.EnvDefault("ES_URL", ""),
		ESUser:         config.EnvDefault("ES_USER", ""),
		ESPassword:     config.EnvDefault("ES_PASSWORD", ""),
		ESProductIndex: config.EnvDefault("ES_PRODUCT_INDEX", "products"),

		MetricsStdout:   config.EnvBoolDefault("METRICS_STDOUT", false),
		MetricsInterval: config.EnvDurationDefault("METRICS_INTERVAL", 30*time.Second),

		BootstrapAdminUsername: config.EnvDefault("BOOTSTRAP_ADMIN_USERNAME", ""),
		BootstrapAdminPassword: config.EnvDefault("BOOTSTRAP_ADMIN_PASSWORD", ""),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if err := config.NonEmpty(c.DatabaseURL, "DATABASE_URL"); err != nil {
		return err
	}
	if err := config.NonEmpty(string(c.JWT.Secret), "JWT_SECRET"); err != nil {
		return fmt.Errorf("%w: %v", tokens.ErrConfiguration, err)
	}
	if err := tokens.CheckSecret(c.JWT.Secret); err != nil {
		return fmt.Errorf("JWT_SECRET: %w", err)
	}
	if c.JWT.Issuer == "" {
		return fmt.Errorf("%w: JWT_ISSUER is empty", tokens.ErrConfiguration)
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return fmt.Errorf("%w: JWT_ACCESS_TTL and JWT_REFRESH_TTL must be positive", tokens.ErrConfiguration)
	}
	if c.Auth.LookupTimeout <= 0 {
		return fmt.Errorf("AUTH_LOOKUP_TIMEOUT must be positive")
	}
	if c.Auth.RateLimit < 0 || c.Auth.RateBurst < 0 {
		return fmt.Errorf("AUTH_RATE_LIMIT and AUTH_RATE_BURST cannot be negative")
	}
	if (c.BootstrapAdminUsername == "") != (c.BootstrapAdminPassword == "") {
		return fmt.Errorf("BOOTSTRAP_ADMIN_USERNAME and BOOTSTRAP_ADMIN_PASSWORD must be set together")
	}
	return nil
}
