package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/apirest/internal/models"
	"github.com/Skotchmaster/apirest/internal/repo"
	"github.com/Skotchmaster/apirest/internal/service"
	"github.com/Skotchmaster/apirest/pkg/db"
	pkg_hash "github.com/Skotchmaster/apirest/pkg/hash"
	"github.com/Skotchmaster/apirest/pkg/logging"
)

const testSecret = "s3cret-key-thats-long-enough-0123456789"

type testServer struct {
	e    *echo.Echo
	repo *repo.GormRepo
	auth *service.AuthService
}

type serverOpts struct {
	refresh      bool
	registration bool
	issuer       string
}

func newServer(t *testing.T, o serverOpts) *testServer {
	t.Helper()

	gdb, err := db.Open(context.Background(), db.DriverSQLite, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	r := &repo.GormRepo{DB: gdb}
	require.NoError(t, r.Migrate(context.Background()))

	issuer := o.issuer
	if issuer == "" {
		issuer = "apirest"
	}
	tokens, err := service.NewTokenService(service.TokenConfig{
		Secret:         []byte(testSecret),
		Issuer:         issuer,
		AccessTTL:      15 * time.Minute,
		RefreshTTL:     7 * 24 * time.Hour,
		RefreshEnabled: o.refresh,
	})
	require.NoError(t, err)

	authSvc := &service.AuthService{
		Repo:                r,
		Tokens:              tokens,
		RegistrationEnabled: o.registration,
		LookupTimeout:       time.Second,
	}

	e := echo.New()
	Register(e, &Deps{
		DB:             gdb,
		Logger:         logging.NewWithWriter(io.Discard, "error"),
		Tokens:         tokens,
		Auth:           &AuthHTTP{Svc: authSvc},
		Products:       &ProductHTTP{Svc: &service.CatalogService{Repo: r}},
		Accounts:       &AccountHTTP{Svc: &service.AccountService{Repo: r}, Auth: authSvc},
		PublicPrefixes: []string{"/api/v1/auth/", "/health/"},
	})
	return &testServer{e: e, repo: r, auth: authSvc}
}

func (s *testServer) seed(t *testing.T, username, password string, roles ...models.Role) {
	t.Helper()

	pwHash, err := pkg_hash.HashPassword(password)
	require.NoError(t, err)
	acc := &models.Account{Username: username, PasswordHash: pwHash, Enabled: true}
	for _, r := range roles {
		acc.Roles = append(acc.Roles, models.AccountRole{Role: r})
	}
	require.NoError(t, s.repo.CreateAccount(context.Background(), acc))
}

func (s *testServer) do(method, path, bearer, contentType string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doJSON(method, path, bearer string, payload any) *httptest.ResponseRecorder {
	var body io.Reader
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = bytes.NewReader(b)
	}
	return s.do(method, path, bearer, echo.MIMEApplicationJSON, body)
}

type tokenBody struct {
	AccessToken  string  `json:"accessToken"`
	ExpiresIn    int64   `json:"expiresIn"`
	RefreshToken *string `json:"refreshToken"`
}

func (s *testServer) login(t *testing.T, username, password string) tokenBody {
	t.Helper()

	rec := s.doJSON(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tb tokenBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tb))
	return tb
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s := newServer(t, serverOpts{})
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health/live", "", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health/ready", "", "", nil).Code)
}

func TestLogin_ReturnsTokenPair(t *testing.T) {
	t.Parallel()

	s := newServer(t, serverOpts{refresh: true})
	s.seed(t, "alice", "password1", models.RoleUser)

	tb := s.login(t, "alice", "password1")
	assert.NotEmpty(t, tb.AccessToken)
	assert.EqualValues(t, 900, tb.ExpiresIn)
	require.NotNil(t, tb.RefreshToken)
	assert.NotEmpty(t, *tb.RefreshToken)
}

func TestLogin_RefreshTokenNullWhenDisabled(t *testing.T) {
	t.Parallel()

	s := newServer(t, serverOpts{refresh: false})
	s.seed(t, "alice", "password1", models.RoleUser)

	rec := s.doJSON(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "alice", "password": "password1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, "null", string(raw["refreshToken"]))
}

func TestLogin_Failures(t *testing.T) {
	t.Parallel()

	s := newServer(t, serverOpts{refresh: true})
	s.seed(t, "alice", "password1", models.RoleUser)

	rec := s.doJSON(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "alice", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "Unauthorized", body["error"])
	assert.EqualValues(t, 401, body["code"])
	assert.Equal(t, "/api/v1/auth/login", body["path"])
	_, err := time.Parse(time.RFC3339, body["timestamp"].(string))
	assert.NoError(t, err)

	rec = s.doJSON(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/auth/login", "", echo.MIMEApplicationJSON, strings.NewReader("{"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefresh_RawBody(t *testing.T) {
	t.Parallel()

	s := newServer(t, serverOpts{refresh: true})
	s.seed(t, "alice", "password1", models.RoleUser)
	tb := s.login(t, "alice", "password1")

	rec := s.do(http.MethodPost, "/api/v1/auth/refresh", "", echo.MIMETextPlain, strings.NewReader(*tb.RefreshToken+"\n"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var next tokenBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &next))
	assert.NotEmpty(t, next.AccessToken)
	require.NotNil(t, next.RefreshToken)
}

func TestRefresh_StaleAfterLogoutAll(t *testing.T) {
	t.Parallel()

	s := newServer(t, serverOpts{refresh: true})
	s.seed(t, "alice", "password1", models.RoleUser)
	tb := s.login(t, "alice", "password1")

	rec := s.do(http.MethodPost, "/api/v1/me/logout-all", tb.AccessToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"username":"alice","tokenVersion":1}`, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/v1/auth/refresh", "", echo.MIMETextPlain, strings.NewReader(*tb.RefreshToken))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "Unauthorized", body["error"])
	assert.Equal(t, "/api/v1/auth/refresh", body["path"])

	// the access token itself stays usable until it expires
	rec = s.do(http.MethodGet, "/api/v1/me", tb.AccessToken, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefresh_InvalidBody(t *testing.T) {
	t.Parallel()

	s := newServer(t, serverOpts{refresh: true})

	for _, body := range []string{"", "garbage", "a.b.c"} {
		rec := s.do(http.MethodPost, "/api/v1/auth/refresh", "", echo.MIMETextPlain, strings.NewReader(body))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, body)
	}
}

func TestRefresh_NotFoundWhenDisabled(t *testing.T) {
	t.Parallel()

	s := newServer(t, serverOpts{refresh: false})
	s.seed(t, "alice", "password1", models.RoleUser)

	acc, err := s.repo.FindByUsername(context.Background(), "alice")
	require.NoError(t, err)
	// a token that would otherwise be valid
	other, err := service.NewTokenService(service.TokenConfig{
		Secret: []byte(testSecret), Issuer: "apirest",
		AccessTTL: time.Minute, RefreshTTL: time.Hour, RefreshEnabled: true,
	})
	require.NoError(t, err)
	tok, err := other.IssueRefreshToken(acc)
	require.NoError(t, err)

	rec := s.do(http.MethodPost, "/api/v1/auth/refresh", "", echo.MIMETextPlain, strings.NewReader(tok))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.EqualValues(t, 404, decodeError(t, rec)["code"])
}

func TestRegister(t *testing.T) {
	t.Parallel()

	s := newServer(t, serverOpts{refresh: true, registration: true})

	rec := s.doJSON(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "carol", "password": "password1", "email": "carol@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var acc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acc))
	assert.Equal(t, "carol", acc["username"])
	assert.Equal(t, []any{"USER"}, acc["roles"])
	assert.NotContains(t, acc, "passwordHash")

	rec = s.doJSON(http.MethodPost, "/api/v1/auth/register", "", map[string]string{"username": "carol", "password": "password2"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.doJSON(http.MethodPost, "/api/v1/auth/register", "", map[string]string{"username": "dave", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.login(t, "carol", "password1")
}

func TestRegister_NotFoundWhenDisabled(t *testing.T) {
	t.Parallel()

	s := newServer(t, serverOpts{refresh: true})

	rec := s.doJSON(http.MethodPost, "/api/v1/auth/register", "", map[string]string{"username": "carol", "password": "password1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProtectedRoute_ForbiddenVersusUnauthorized(t *testing.T) {
	t.Parallel()

	s := newServer(t, serverOpts{refresh: true})
	foreign := newServer(t, serverOpts{refresh: true, issuer: "someone-else"})
	foreign.seed(t, "alice", "password1", models.RoleUser)
	wrongIssuer := foreign.login(t, "alice", "password1").AccessToken

	rec := s.do(http.MethodGet, "/api/v1/products", "", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "Forbidden", body["error"])
	assert.EqualValues(t, 403, body["code"])

	rec = s.do(http.MethodGet, "/api/v1/products", wrongIssuer, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body = decodeError(t, rec)
	assert.Equal(t, "Unauthorized", body["error"])
	assert.EqualValues(t, 401, body["code"])
}

func TestProducts_AdminLifecycle(t *testing.T) {
	t.Parallel()

	s := newServer(t, serverOpts{refresh: true})
	s.seed(t, "root", "password1", models.RoleAdmin)
	s.seed(t, "alice", "password1", models.RoleUser)
	admin := s.login(t, "root", "password1").AccessToken
	user := s.login(t, "alice", "password1").AccessToken

	rec := s.doJSON(http.MethodPost, "/api/v1/products", user, map[string]any{"name": "Lamp", "price": 10})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.doJSON(http.MethodPost, "/api/v1/products", admin, map[string]any{"name": "Lamp", "description": "Desk lamp", "stock": 3, "price": 10})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var prod models.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prod))
	assert.True(t, prod.Active)

	rec = s.doJSON(http.MethodPost, "/api/v1/products", admin, map[string]any{"name": "Lamp", "price": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.doJSON(http.MethodPost, "/api/v1/products", admin, map[string]any{"name": "Bad", "price": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.doJSON(http.MethodPut, "/api/v1/products/1", admin, map[string]any{"name": "Lamp XL", "stock": 5, "price": 12})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/v1/products/1", user, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prod))
	assert.Equal(t, "Lamp XL", prod.Name)

	rec = s.do(http.MethodGet, "/api/v1/products/search?q=lamp", user, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	rec = s.do(http.MethodPatch, "/api/v1/products/1", user, "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPatch, "/api/v1/products/1", admin, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prod))
	assert.False(t, prod.Active)

	rec = s.do(http.MethodGet, "/api/v1/products/active", user, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":0`)

	rec = s.do(http.MethodGet, "/api/v1/products?page=1&size=5", user, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	rec = s.do(http.MethodGet, "/api/v1/products/999", user, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/products/abc", user, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccounts_AdminOnly(t *testing.T) {
	t.Parallel()

	s := newServer(t, serverOpts{refresh: true})
	s.seed(t, "root", "password1", models.RoleAdmin)
	s.seed(t, "alice", "password1", models.RoleUser)
	admin := s.login(t, "root", "password1").AccessToken
	alice := s.login(t, "alice", "password1")

	rec := s.do(http.MethodGet, "/api/v1/accounts", alice.AccessToken, "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/accounts", admin, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":2`)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = s.do(http.MethodGet, "/api/v1/accounts/2", admin, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)

	rec = s.do(http.MethodPost, "/api/v1/accounts/alice/revoke", admin, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"username":"alice","tokenVersion":1}`, rec.Body.String())

	rec = s.do(http.MethodPatch, "/api/v1/accounts/alice", admin, "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.doJSON(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "alice", "password": "password1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPatch, "/api/v1/accounts/nobody", admin, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMe(t *testing.T) {
	t.Parallel()

	s := newServer(t, serverOpts{refresh: true})
	s.seed(t, "alice", "password1", models.RoleUser, models.RoleAdmin)
	tb := s.login(t, "alice", "password1")

	rec := s.do(http.MethodGet, "/api/v1/me", tb.AccessToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"username":"alice","roles":["ROLE_USER","ROLE_ADMIN"]}`, rec.Body.String())
}

func TestUnknownRoute_UniformError(t *testing.T) {
	t.Parallel()

	s := newServer(t, serverOpts{})

	rec := s.do(http.MethodGet, "/health/nope", "", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeError(t, rec)
	assert.EqualValues(t, 404, body["code"])
	assert.Equal(t, "/health/nope", body["path"])
}
