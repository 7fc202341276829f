package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/apirest/internal/models"
)

const testSecret = "s3cret-key-thats-long-enough-0123456789"

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func newTokenService(t *testing.T, clock *fakeClock, refresh bool) *TokenService {
	t.Helper()

	s, err := NewTokenService(TokenConfig{
		Secret:         []byte(testSecret),
		Issuer:         "apirest",
		AccessTTL:      15 * time.Minute,
		RefreshTTL:     7 * 24 * time.Hour,
		RefreshEnabled: refresh,
	}, WithClock(clock.Now))
	require.NoError(t, err)
	return s
}

func account(username string, version int, roles ...models.Role) *models.Account {
	acc := &models.Account{Username: username, Enabled: true, TokenVersion: version}
	for _, r := range roles {
		acc.Roles = append(acc.Roles, models.AccountRole{Role: r})
	}
	return acc
}

func TestTokenService_IssueAndValidate(t *testing.T) {
	t.Parallel()

	clock := newClock()
	s := newTokenService(t, clock, true)

	tok, err := s.IssueAccessToken(account("alice", 0, models.RoleUser, models.RoleAdmin))
	require.NoError(t, err)

	claims, err := s.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "apirest", claims.Issuer)
	assert.Equal(t, []string{"USER", "ADMIN"}, claims.Roles)
	assert.Equal(t, 0, claims.Version)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, clock.Now().Add(15*time.Minute).Unix(), claims.ExpiresAt.Unix())
}

func TestTokenService_AccessTokenLifetime(t *testing.T) {
	t.Parallel()

	clock := newClock()
	s := newTokenService(t, clock, true)

	tok, err := s.IssueAccessToken(account("alice", 0, models.RoleUser))
	require.NoError(t, err)

	clock.Advance(14 * time.Minute)
	claims, err := s.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, []string{"USER"}, claims.Roles)

	clock.Advance(2 * time.Minute)
	_, err = s.Validate(tok)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenService_ClockSkew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		after   time.Duration
		wantErr error
	}{
		{name: "exactly at exp", after: 15 * time.Minute},
		{name: "inside skew", after: 15*time.Minute + 29*time.Second},
		{name: "at skew edge", after: 15*time.Minute + ClockSkew},
		{name: "past skew", after: 15*time.Minute + 31*time.Second, wantErr: ErrTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			clock := newClock()
			s := newTokenService(t, clock, true)
			tok, err := s.IssueAccessToken(account("alice", 0, models.RoleUser))
			require.NoError(t, err)

			clock.Advance(tt.after)
			_, err = s.Validate(tok)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestTokenService_RejectsForeignIssuer(t *testing.T) {
	t.Parallel()

	clock := newClock()
	other, err := NewTokenService(TokenConfig{
		Secret:     []byte(testSecret),
		Issuer:     "someone-else",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}, WithClock(clock.Now))
	require.NoError(t, err)

	tok, err := other.IssueAccessToken(account("alice", 0, models.RoleUser))
	require.NoError(t, err)

	_, err = newTokenService(t, clock, true).Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidIssuer)
	assert.True(t, IsTokenError(err))
}

func TestTokenService_RejectsOtherSecret(t *testing.T) {
	t.Parallel()

	clock := newClock()
	other, err := NewTokenService(TokenConfig{
		Secret:     []byte("another-secret-that-is-long-enough-xyz"),
		Issuer:     "apirest",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}, WithClock(clock.Now))
	require.NoError(t, err)

	tok, err := other.IssueAccessToken(account("alice", 0, models.RoleUser))
	require.NoError(t, err)

	_, err = newTokenService(t, clock, true).Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestTokenService_DisabledAccount(t *testing.T) {
	t.Parallel()

	s := newTokenService(t, newClock(), true)
	acc := account("alice", 0, models.RoleUser)
	acc.Enabled = false

	_, err := s.IssueAccessToken(acc)
	assert.ErrorIs(t, err, ErrAccountDisabled)

	_, err = s.IssueRefreshToken(acc)
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestTokenService_RefreshDisabled(t *testing.T) {
	t.Parallel()

	s := newTokenService(t, newClock(), false)

	_, err := s.IssueRefreshToken(account("alice", 0, models.RoleUser))
	assert.ErrorIs(t, err, ErrFeatureDisabled)

	_, err = s.IssueAccessToken(account("alice", 0, models.RoleUser))
	assert.NoError(t, err)
}

func TestTokenService_RefreshCarriesVersion(t *testing.T) {
	t.Parallel()

	s := newTokenService(t, newClock(), true)

	tok, err := s.IssueRefreshToken(account("alice", 3, models.RoleUser))
	require.NoError(t, err)

	claims, err := s.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, 3, claims.Version)
}

func TestNewTokenService_Config(t *testing.T) {
	t.Parallel()

	valid := TokenConfig{
		Secret:     []byte(testSecret),
		Issuer:     "apirest",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}

	tests := []struct {
		name   string
		mutate func(*TokenConfig)
	}{
		{name: "short secret", mutate: func(c *TokenConfig) { c.Secret = []byte("too-short") }},
		{name: "empty secret", mutate: func(c *TokenConfig) { c.Secret = nil }},
		{name: "empty issuer", mutate: func(c *TokenConfig) { c.Issuer = "" }},
		{name: "zero access ttl", mutate: func(c *TokenConfig) { c.AccessTTL = 0 }},
		{name: "negative refresh ttl", mutate: func(c *TokenConfig) { c.RefreshTTL = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid
			tt.mutate(&cfg)
			_, err := NewTokenService(cfg)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}

	_, err := NewTokenService(valid)
	assert.NoError(t, err)
}

func TestTokenService_MalformedInput(t *testing.T) {
	t.Parallel()

	s := newTokenService(t, newClock(), true)

	for _, in := range []string{"", "abc", "a.b", "a.b.c.d"} {
		_, err := s.Validate(in)
		assert.ErrorIs(t, err, ErrMalformedToken, "input %q", in)
	}
}

func TestFailureReason(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", FailureReason(nil))
	assert.Equal(t, "expired", FailureReason(ErrTokenExpired))
	assert.Equal(t, "stale_refresh", FailureReason(ErrStaleRefreshToken))
	assert.Equal(t, "invalid_signature", FailureReason(ErrInvalidSignature))
	assert.Equal(t, "internal", FailureReason(assert.AnError))
}
