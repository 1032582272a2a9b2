package routes_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/BradenHooton/wazgo/internal/auth"
	"github.com/BradenHooton/wazgo/internal/handlers"
	"github.com/BradenHooton/wazgo/internal/middleware"
	"github.com/BradenHooton/wazgo/internal/models"
	"github.com/BradenHooton/wazgo/internal/routes"
	"github.com/BradenHooton/wazgo/internal/services"
	"github.com/BradenHooton/wazgo/internal/session"
	pkgauth "github.com/BradenHooton/wazgo/pkg/auth"
	pkghttp "github.com/BradenHooton/wazgo/pkg/http"
	pkglogger "github.com/BradenHooton/wazgo/pkg/logger"
)

const (
	cookieName   = "wazgo_session"
	testPassword = "Str0ng!Passw0rd"
)

type testServer struct {
	*httptest.Server
	repo  *services.FakeAccountRepository
	totp  *auth.TOTPManager
	store *session.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	audit := pkglogger.NewAuditLogger(logger)

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	totpManager, err := auth.NewTOTPManager(key, "Wazgo", 1)
	require.NoError(t, err)

	hasher := pkgauth.NewBcryptHasher(bcrypt.MinCost)
	repo := services.NewFakeAccountRepository(hasher)
	store := session.NewMemoryStore()
	sessions := session.NewManager(store, time.Hour)
	notifier := services.NopNotifier{}

	lockout := auth.NewLockoutPolicy(5, 15*time.Minute)
	login := services.NewLoginService(repo, hasher, lockout, auth.NewTimingDelay(0, 0), sessions, true, logger, audit)
	twoFactor := services.NewTwoFactorService(repo, totpManager, auth.NewLockoutPolicy(5, 15*time.Minute),
		sessions, notifier, logger, audit)
	password := services.NewPasswordService(repo, hasher, lockout, sessions, notifier, logger, audit)
	admin := services.NewAdminService(repo, hasher, lockout, sessions, true, logger, audit)

	router := chi.NewRouter()
	router.Use(middleware.ClientContext(pkghttp.NewIPConfig(nil)))
	routes.RegisterRoutes(router, routes.Dependencies{
		Sessions:  sessions,
		Cookie:    session.CookieConfig{Name: cookieName, SameSite: http.SameSiteStrictMode},
		Accounts:  repo,
		Auth:      handlers.NewAuthHandler(login, password, sessions),
		TwoFactor: handlers.NewTwoFactorHandler(twoFactor),
		Admin:     handlers.NewAdminHandler(admin),
		Health:    handlers.NewHealthHandler(map[string]handlers.HealthCheck{"database": func(context.Context) error { return nil }}),
		Logger:    logger,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, repo: repo, totp: totpManager, store: store}
}

func (ts *testServer) seed(email string, mutate ...func(*models.Account)) *models.Account {
	a := models.Account{Email: email, Password: testPassword, Role: models.RoleAdmin}
	for _, m := range mutate {
		m(&a)
	}
	return ts.repo.Seed(a)
}

func (ts *testServer) enableTwoFactor(t *testing.T, a *models.Account) string {
	t.Helper()
	enrollment, err := ts.totp.Generate(a.Email)
	require.NoError(t, err)
	sealed, nonce, err := ts.totp.Seal(enrollment.Secret)
	require.NoError(t, err)

	stored, err := ts.repo.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	stored.TwoFactorSecretEncrypted = sealed
	stored.TwoFactorSecretNonce = nonce
	stored.TwoFactorEnabled = true
	require.NoError(t, ts.repo.Save(context.Background(), stored))
	return enrollment.Secret
}

// browser keeps cookies and the CSRF token between requests.
type browser struct {
	t      *testing.T
	base   string
	client *http.Client
	csrf   string
}

func (ts *testServer) browser(t *testing.T) *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{t: t, base: ts.URL, client: &http.Client{Jar: jar}}
}

func (b *browser) do(method, path string, body interface{}) *http.Response {
	b.t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(b.t, err)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, b.base+path, reader)
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/json")
	if b.csrf != "" {
		req.Header.Set(middleware.CSRFHeader, b.csrf)
	}

	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	b.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (b *browser) fetchCSRF() {
	b.t.Helper()
	resp := b.do(http.MethodGet, "/auth/csrf", nil)
	require.Equal(b.t, http.StatusOK, resp.StatusCode)
	var out handlers.CSRFResponse
	decode(b.t, resp, &out)
	require.NotEmpty(b.t, out.CSRFToken)
	b.csrf = out.CSRFToken
}

func (b *browser) login(email, password string) *http.Response {
	b.t.Helper()
	return b.do(http.MethodPost, "/auth/login", handlers.LoginRequest{Email: email, Password: password})
}

func decode(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var out pkghttp.ErrorResponse
	decode(t, resp, &out)
	return out.Error
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t)

	resp := b.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out handlers.HealthResponse
	decode(t, resp, &out)
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, "ok", out.Checks["database"])
}

func TestLoginRequiresCSRFToken(t *testing.T) {
	ts := newTestServer(t)
	ts.seed("admin@example.com")
	b := ts.browser(t)

	resp := b.login("admin@example.com", testPassword)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "csrf_invalid", errorCode(t, resp))

	b.fetchCSRF()
	resp = b.login("admin@example.com", testPassword)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProtectedRoutesRequireLogin(t *testing.T) {
	ts := newTestServer(t)
	b := ts.browser(t)
	b.fetchCSRF()

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/auth/me"},
		{http.MethodPost, "/auth/password"},
		{http.MethodPost, "/auth/2fa/setup"},
		{http.MethodGet, "/admin/manage"},
		{http.MethodGet, "/admin/manage/admins"},
	} {
		resp := b.do(tc.method, tc.path, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "%s %s", tc.method, tc.path)
	}
}

func TestLoginSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	a := ts.seed("admin@example.com")
	b := ts.browser(t)
	b.fetchCSRF()

	resp := b.login("Admin@Example.com", testPassword)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status handlers.StatusResponse
	decode(t, resp, &status)
	assert.Equal(t, "authenticated", status.Status)
	require.NotNil(t, status.Account)
	assert.Equal(t, a.ID, status.Account.AccountID)

	var sessionCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == cookieName {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie)
	assert.True(t, sessionCookie.HttpOnly)

	resp = b.do(http.MethodGet, "/auth/me", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me handlers.IdentityResponse
	decode(t, resp, &me)
	assert.Equal(t, "admin@example.com", me.Email)

	resp = b.do(http.MethodPost, "/auth/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = b.do(http.MethodGet, "/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginLockout(t *testing.T) {
	ts := newTestServer(t)
	ts.seed("admin@example.com")
	b := ts.browser(t)
	b.fetchCSRF()

	for i := 0; i < 4; i++ {
		resp := b.login("admin@example.com", "Wr0ng!Password")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	resp := b.login("admin@example.com", "Wr0ng!Password")
	require.Equal(t, http.StatusLocked, resp.StatusCode)
	assert.Equal(t, "900", resp.Header.Get("Retry-After"))

	var locked pkghttp.LockedResponse
	decode(t, resp, &locked)
	assert.Equal(t, 15, locked.MinutesRemaining)

	resp = b.login("admin@example.com", testPassword)
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
}

func TestTwoFactorLogin(t *testing.T) {
	ts := newTestServer(t)
	a := ts.seed("admin@example.com")
	secret := ts.enableTwoFactor(t, a)
	b := ts.browser(t)
	b.fetchCSRF()

	resp := b.login("admin@example.com", testPassword)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = b.do(http.MethodGet, "/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	resp = b.do(http.MethodPost, "/auth/2fa/verify", handlers.VerifyRequest{
		Code:    code,
		Context: handlers.VerifyContextLogin,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = b.do(http.MethodGet, "/auth/me", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminManagement(t *testing.T) {
	ts := newTestServer(t)
	ts.seed("main@example.com", func(a *models.Account) { a.IsMainAdmin = true })
	ts.seed("other@example.com")

	t.Run("main admin", func(t *testing.T) {
		b := ts.browser(t)
		b.fetchCSRF()
		require.Equal(t, http.StatusOK, b.login("main@example.com", testPassword).StatusCode)

		resp := b.do(http.MethodGet, "/admin/manage", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var status handlers.ManagementStatusResponse
		decode(t, resp, &status)
		assert.False(t, status.ManagementAuthenticated)

		resp = b.do(http.MethodGet, "/admin/manage/admins", nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "management_auth_required", errorCode(t, resp))

		resp = b.do(http.MethodPost, "/admin/manage/login", handlers.ManagementLoginRequest{Password: testPassword})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = b.do(http.MethodPost, "/admin/manage/admins", handlers.CreateAdminRequest{
			Email:    "new@example.com",
			Password: "An0ther!Passw0rd",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var created models.AdminSummary
		decode(t, resp, &created)

		resp = b.do(http.MethodGet, "/admin/manage/admins", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var list handlers.AdminListResponse
		decode(t, resp, &list)
		assert.Len(t, list.Admins, 3)

		resp = b.do(http.MethodDelete, "/admin/manage/admins/"+created.ID, nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	t.Run("other admin is denied", func(t *testing.T) {
		b := ts.browser(t)
		b.fetchCSRF()
		require.Equal(t, http.StatusOK, b.login("other@example.com", testPassword).StatusCode)

		resp := b.do(http.MethodGet, "/admin/manage", nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp = b.do(http.MethodPost, "/admin/manage/login", handlers.ManagementLoginRequest{Password: testPassword})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestDeletedAccountLosesSession(t *testing.T) {
	ts := newTestServer(t)
	a := ts.seed("admin@example.com")
	b := ts.browser(t)
	b.fetchCSRF()
	require.Equal(t, http.StatusOK, b.login("admin@example.com", testPassword).StatusCode)

	require.NoError(t, ts.repo.Delete(context.Background(), a.ID))

	resp := b.do(http.MethodGet, "/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
