package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Skotchmaster/apirest/internal/models"
	"github.com/Skotchmaster/apirest/pkg/tokens"
)

// ClockSkew is how far past exp a token is still accepted.
const ClockSkew = 30 * time.Second

type TokenConfig struct {
	Secret         []byte
	Issuer         string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	RefreshEnabled bool
}

// TokenService issues and validates tokens. It holds no mutable state and is
// shared by every request goroutine.
type TokenService struct {
	secret         []byte
	issuer         string
	accessTTL      time.Duration
	refreshTTL     time.Duration
	refreshEnabled bool
	now            func() time.Time
}

type TokenOption func(*TokenService)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

func NewTokenService(cfg TokenConfig, opts ...TokenOption) (*TokenService, error) {
	if err := tokens.CheckSecret(cfg.Secret); err != nil {
		return nil, err
	}
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("%w: issuer is empty", ErrConfiguration)
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("%w: token ttl must be positive", ErrConfiguration)
	}

	s := &TokenService{
		secret:         append([]byte(nil), cfg.Secret...),
		issuer:         cfg.Issuer,
		accessTTL:      cfg.AccessTTL,
		refreshTTL:     cfg.RefreshTTL,
		refreshEnabled: cfg.RefreshEnabled,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }
func (s *TokenService) RefreshEnabled() bool      { return s.refreshEnabled }
func (s *TokenService) Issuer() string            { return s.issuer }

func (s *TokenService) IssueAccessToken(acc *models.Account) (string, error) {
	return s.issue(acc, s.accessTTL)
}

func (s *TokenService) IssueRefreshToken(acc *models.Account) (string, error) {
	if !s.refreshEnabled {
		return "", fmt.Errorf("%w: refresh tokens are disabled", ErrFeatureDisabled)
	}
	return s.issue(acc, s.refreshTTL)
}

func (s *TokenService) issue(acc *models.Account, ttl time.Duration) (string, error) {
	if acc == nil {
		return "", fmt.Errorf("%w: no account", tokens.ErrEncoding)
	}
	if !acc.Enabled {
		return "", ErrAccountDisabled
	}

	now := s.now()
	claims := tokens.Claims{
		Roles:   acc.RoleNames(),
		Version: acc.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.Username,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	return tokens.Encode(claims, s.secret)
}

// Validate checks signature, issuer and expiry. It does not compare the
// token version with the account; refresh callers must do that.
func (s *TokenService) Validate(token string) (*tokens.Claims, error) {
	claims, err := tokens.Decode(token, s.secret)
	if err != nil {
		return nil, err
	}

	if claims.Issuer != s.issuer {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIssuer, claims.Issuer)
	}
	if claims.ExpiresAt == nil || claims.ExpiresAt.Time.Before(s.now().Add(-ClockSkew)) {
		return nil, ErrTokenExpired
	}
	return claims, nil
}

// IsTokenError reports whether err means the presented token is unusable.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrMalformedToken) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrInvalidIssuer) ||
		errors.Is(err, ErrTokenExpired)
}
