package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Skotchmaster/apirest/internal/events"
	"github.com/Skotchmaster/apirest/internal/metrics"
	"github.com/Skotchmaster/apirest/internal/models"
	"github.com/Skotchmaster/apirest/internal/repo"
	pkg_hash "github.com/Skotchmaster/apirest/pkg/hash"
	"github.com/Skotchmaster/apirest/pkg/logging"
)

const DefaultLookupTimeout = 2 * time.Second

// AccountStore is the credential store the auth flows depend on.
type AccountStore interface {
	FindByUsername(ctx context.Context, username string) (*models.Account, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	CreateAccount(ctx context.Context, acc *models.Account) error
	IncrementTokenVersion(ctx context.Context, username string) (int, error)
}

type AuthService struct {
	Repo                AccountStore
	Tokens              *TokenService
	Events              events.Publisher
	Metrics             *metrics.Recorder
	EventsTopic         string
	RegistrationEnabled bool
	LookupTimeout       time.Duration
}

// TokenPair is what login and refresh hand back to the client.
// RefreshToken is nil when refresh issuance is disabled.
type TokenPair struct {
	AccessToken  string
	ExpiresIn    int64
	RefreshToken *string
}

type RegisterInput struct {
	Username  string
	Password  string
	Email     string
	FirstName string
	LastName  string
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login", "username", username)

	if strings.TrimSpace(username) == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrValidation)
	}

	acc, err := s.lookup(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			s.Metrics.AuthFailure(ctx, "invalid_credentials")
			l.Warn("login_failed", "status", 401, "reason", "unknown user")
			return nil, ErrInvalidCredentials
		}
		l.Error("login_failed", "status", 500, "reason", "credential store", "error", err)
		return nil, err
	}

	if !pkg_hash.CheckPassword(acc.PasswordHash, password) {
		s.Metrics.AuthFailure(ctx, "invalid_credentials")
		l.Warn("login_failed", "status", 401, "reason", "wrong password")
		return nil, ErrInvalidCredentials
	}
	if !acc.Enabled {
		s.Metrics.AuthFailure(ctx, "account_disabled")
		l.Warn("login_failed", "status", 401, "reason", "account disabled")
		return nil, ErrAccountDisabled
	}

	pair, err := s.issuePair(ctx, acc, s.Tokens.RefreshEnabled())
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot issue tokens", "error", err)
		return nil, err
	}

	l.Info("login_successful")
	return pair, nil
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.Account, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register", "username", in.Username)

	if !s.RegistrationEnabled {
		return nil, fmt.Errorf("%w: registration is disabled", ErrFeatureDisabled)
	}
	if strings.TrimSpace(in.Username) == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrValidation)
	}

	exists, err := s.Repo.ExistsByUsername(ctx, in.Username)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot check username", "error", err)
		return nil, err
	}
	if exists {
		l.Warn("register_error", "status", 409, "reason", "user already exist")
		return nil, fmt.Errorf("%w: username already exists", ErrConflict)
	}

	pwHash, err := pkg_hash.HashPassword(in.Password)
	if err != nil {
		if errors.Is(err, pkg_hash.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	acc := &models.Account{
		Username:     in.Username,
		PasswordHash: pwHash,
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Enabled:      true,
		Roles:        []models.AccountRole{{Role: models.RoleUser}},
	}
	if err := s.Repo.CreateAccount(ctx, acc); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) {
			l.Warn("register_error", "status", 409, "reason", "user already exist")
			return nil, fmt.Errorf("%w: username already exists", ErrConflict)
		}
		l.Error("register_error", "status", 500, "reason", "cannot create account", "error", err)
		return nil, err
	}

	s.publish(ctx, acc.Username, map[string]any{
		"type":      events.TypeUserRegistered,
		"accountID": acc.ID,
		"username":  acc.Username,
	})
	l.Info("register_successful")
	return acc, nil
}

// Refresh rotates a refresh token into a new access/refresh pair. The
// account is re-read on every call so a bumped token version takes effect
// immediately.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	if !s.Tokens.RefreshEnabled() {
		return nil, fmt.Errorf("%w: refresh tokens are disabled", ErrFeatureDisabled)
	}

	claims, err := s.Tokens.Validate(strings.TrimSpace(refreshToken))
	if err != nil {
		s.rejectRefresh(ctx, l, err)
		return nil, err
	}

	acc, err := s.lookup(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			s.rejectRefresh(ctx, l, ErrInvalidCredentials)
			return nil, ErrInvalidCredentials
		}
		s.Metrics.Refresh(ctx, "error")
		l.Error("refresh_failed", "status", 500, "reason", "credential store", "error", err)
		return nil, err
	}
	if !acc.Enabled {
		s.rejectRefresh(ctx, l, ErrAccountDisabled)
		return nil, ErrAccountDisabled
	}
	if claims.Version != acc.TokenVersion {
		err := fmt.Errorf("%w: token version %d, account version %d", ErrStaleRefreshToken, claims.Version, acc.TokenVersion)
		s.rejectRefresh(ctx, l, err)
		return nil, err
	}

	pair, err := s.issuePair(ctx, acc, true)
	if err != nil {
		s.Metrics.Refresh(ctx, "error")
		l.Error("refresh_failed", "status", 500, "reason", "cannot issue tokens", "error", err)
		return nil, err
	}

	s.Metrics.Refresh(ctx, "rotated")
	l.Info("refresh_successful", "username", acc.Username)
	return pair, nil
}

// RevokeSessions bumps the account token version, which makes every refresh
// token issued so far stale. Access tokens keep working until they expire.
func (s *AuthService) RevokeSessions(ctx context.Context, username string) (int, error) {
	l := logging.FromContext(ctx).With("svc", "auth.revoke_sessions", "username", username)

	ctx, cancel := context.WithTimeout(ctx, s.lookupTimeout())
	defer cancel()

	version, err := s.Repo.IncrementTokenVersion(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			return 0, fmt.Errorf("%w: account %q", ErrNotFound, username)
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		l.Error("revoke_sessions_failed", "status", 500, "error", err)
		return 0, err
	}

	s.publish(ctx, username, map[string]any{
		"type":         events.TypeSessionsRevoked,
		"username":     username,
		"tokenVersion": version,
	})
	l.Info("sessions_revoked", "token_version", version)
	return version, nil
}

func (s *AuthService) issuePair(ctx context.Context, acc *models.Account, withRefresh bool) (*TokenPair, error) {
	access, err := s.Tokens.IssueAccessToken(acc)
	if err != nil {
		return nil, err
	}
	s.Metrics.TokenIssued(ctx, "access")

	pair := &TokenPair{
		AccessToken: access,
		ExpiresIn:   int64(s.Tokens.AccessTTL() / time.Second),
	}
	if withRefresh {
		refresh, err := s.Tokens.IssueRefreshToken(acc)
		if err != nil {
			return nil, err
		}
		s.Metrics.TokenIssued(ctx, "refresh")
		pair.RefreshToken = &refresh
	}
	return pair, nil
}

// lookup reads the account with a deadline. A timeout is reported as
// ErrStoreUnavailable and never treated as a valid account.
func (s *AuthService) lookup(ctx context.Context, username string) (*models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.lookupTimeout())
	defer cancel()

	acc, err := s.Repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			return nil, err
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: lookup timed out: %v", ErrStoreUnavailable, err)
		}
		return nil, fmt.Errorf("account lookup: %w", err)
	}
	return acc, nil
}

func (s *AuthService) lookupTimeout() time.Duration {
	if s.LookupTimeout > 0 {
		return s.LookupTimeout
	}
	return DefaultLookupTimeout
}

func (s *AuthService) rejectRefresh(ctx context.Context, l interface {
	Warn(msg string, args ...any)
}, err error) {
	reason := FailureReason(err)
	s.Metrics.AuthFailure(ctx, reason)
	s.Metrics.Refresh(ctx, reason)
	l.Warn("refresh_rejected", "status", 401, "reason", reason)
}

func (s *AuthService) publish(ctx context.Context, key string, event map[string]any) {
	if s.Events == nil {
		return
	}
	topic := s.EventsTopic
	if topic == "" {
		topic = "auth_events"
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.Events.Publish(pubCtx, topic, key, event); err != nil {
		logging.FromContext(ctx).Error("publish_event_failed", "topic", topic, "type", event["type"], "error", err)
	}
}
