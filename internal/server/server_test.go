package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ecoagris/portal/internal/auth"
	"github.com/ecoagris/portal/internal/identity"
	"github.com/ecoagris/portal/internal/models"
	"github.com/ecoagris/portal/internal/store/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	adminEmail    = "admin@ecoagris.org"
	adminPassword = "admin-password-1"
	opsEmail      = "ops@ecoagris.org"
	opsPassword   = "ops-password-12"
	trustedOrigin = "https://console.ecoagris.org"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testPortal struct {
	handler   http.Handler
	authority *identity.Authority
	clock     *testClock
	admin     *models.User
	ops       *models.User
	attacker  *models.User
}

func newTestPortal(t *testing.T) *testPortal {
	t.Helper()
	ctx := context.Background()

	keys, err := identity.NewKeyManager()
	require.NoError(t, err)

	clock := &testClock{now: time.Now()}
	users := memory.NewUserStore()
	profiles := memory.NewProfileStore()

	authority, err := identity.NewAuthority(keys, users, identity.AuthorityConfig{
		Issuer:   "https://portal.ecoagris.test",
		Audience: "ecoagris-portal",
		Now:      clock.Now,
	})
	require.NoError(t, err)

	admin, err := authority.CreateUser(ctx, adminEmail, adminPassword, "Admin")
	require.NoError(t, err)
	ops, err := authority.CreateUser(ctx, opsEmail, opsPassword, "Ops")
	require.NoError(t, err)
	attacker, err := authority.CreateUser(ctx, "attacker@example.com", "attacker-password", "Mallory")
	require.NoError(t, err)

	srv, err := NewServer(Config{
		Authority:   authority,
		Users:       users,
		Profiles:    profiles,
		AllowList:   auth.NewAllowList(adminEmail, opsEmail),
		Cookies:     auth.DefaultCookiePolicy(),
		CORSOrigins: []string{trustedOrigin},
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	handler, err := srv.Handler()
	require.NoError(t, err)

	return &testPortal{
		handler:   handler,
		authority: authority,
		clock:     clock,
		admin:     admin,
		ops:       ops,
		attacker:  attacker,
	}
}

func (p *testPortal) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	p.handler.ServeHTTP(rec, req)
	return rec
}

func (p *testPortal) get(t *testing.T, path, cookie string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: auth.DefaultCookieName, Value: cookie})
	}
	return p.do(t, req)
}

func (p *testPortal) post(t *testing.T, path, cookie, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: auth.DefaultCookieName, Value: cookie})
	}
	return p.do(t, req)
}

func (p *testPortal) signIn(t *testing.T, email, password string) string {
	t.Helper()
	rec := p.post(t, "/api/admin/login", "", `{"email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0].Value
}

func requireRedirectToLogin(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	require.Equal(t, auth.DefaultLoginPath, rec.Header().Get("Location"))
	require.Empty(t, rec.Body.String())
}

func requireCookieDeleted(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	setCookie := rec.Header().Get("Set-Cookie")
	require.True(t, strings.HasPrefix(setCookie, "admin-token=;"), setCookie)
	require.Contains(t, setCookie, "Max-Age=0")
}

func TestDashboardWithoutCookie(t *testing.T) {
	p := newTestPortal(t)

	rec := p.get(t, "/admin/admin-dashboard", "")
	requireRedirectToLogin(t, rec)
	require.Empty(t, rec.Header().Values("Set-Cookie"))
}

func TestDashboardWithExpiredCookie(t *testing.T) {
	p := newTestPortal(t)
	cookie := p.signIn(t, adminEmail, adminPassword)

	p.clock.Advance(auth.DefaultSessionTTL + time.Second)

	rec := p.get(t, "/admin/admin-dashboard", cookie)
	requireRedirectToLogin(t, rec)
	requireCookieDeleted(t, rec)
}

func TestDashboardWithGarbageCookie(t *testing.T) {
	p := newTestPortal(t)

	rec := p.get(t, "/admin/admin-dashboard", "not-a-session")
	requireRedirectToLogin(t, rec)
	requireCookieDeleted(t, rec)
}

func TestLoginAndDashboard(t *testing.T) {
	p := newTestPortal(t)

	rec := p.post(t, "/api/admin/login", "", `{"email":"`+adminEmail+`","password":"`+adminPassword+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"success":true,"redirectTo":"/admin/admin-dashboard"}`, rec.Body.String())

	setCookies := rec.Header().Values("Set-Cookie")
	require.Len(t, setCookies, 1)
	require.Contains(t, setCookies[0], "HttpOnly")
	require.Contains(t, setCookies[0], "Secure")
	require.Contains(t, setCookies[0], "Max-Age=604800")

	cookie := rec.Result().Cookies()[0].Value

	rec = p.get(t, "/admin/admin-dashboard", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), adminEmail)
	require.Empty(t, rec.Header().Values("Set-Cookie"))

	rec = p.get(t, "/api/admin/session", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), p.admin.UID.String())
}

func TestLoginAccessDenied(t *testing.T) {
	p := newTestPortal(t)

	rec := p.post(t, "/api/admin/login", "", `{"email":"attacker@example.com","password":"attacker-password"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.JSONEq(t, `{"error":"Access denied. Admin only.","code":"access_denied"}`, rec.Body.String())
	require.Empty(t, rec.Header().Values("Set-Cookie"))
}

func TestLoginPageRendersWithValidCookie(t *testing.T) {
	p := newTestPortal(t)
	cookie := p.signIn(t, adminEmail, adminPassword)

	rec := p.get(t, "/admin/login", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "<form")
	require.Empty(t, rec.Header().Values("Set-Cookie"))

	rec = p.get(t, "/admin/login", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRevocationRejectsNextRequest(t *testing.T) {
	p := newTestPortal(t)
	adminCookie := p.signIn(t, adminEmail, adminPassword)
	opsCookie := p.signIn(t, opsEmail, opsPassword)

	require.Equal(t, http.StatusOK, p.get(t, "/admin/admin-dashboard", opsCookie).Code)

	rec := p.post(t, "/api/admin/users/"+p.ops.UID.String()+"/revoke", adminCookie, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = p.get(t, "/admin/admin-dashboard", opsCookie)
	requireRedirectToLogin(t, rec)
	requireCookieDeleted(t, rec)

	rec = p.get(t, "/api/admin/session", opsCookie)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// the revoking admin keeps their session
	require.Equal(t, http.StatusOK, p.get(t, "/admin/admin-dashboard", adminCookie).Code)

	// and ops can sign in again
	p.clock.Advance(time.Millisecond)
	fresh := p.signIn(t, opsEmail, opsPassword)
	require.Equal(t, http.StatusOK, p.get(t, "/admin/admin-dashboard", fresh).Code)
}

func TestDisableRejectsNextRequest(t *testing.T) {
	p := newTestPortal(t)
	adminCookie := p.signIn(t, adminEmail, adminPassword)
	opsCookie := p.signIn(t, opsEmail, opsPassword)

	rec := p.post(t, "/api/admin/users/"+p.ops.UID.String()+"/disable", adminCookie, "")
	require.Equal(t, http.StatusOK, rec.Code)

	requireRedirectToLogin(t, p.get(t, "/admin/admin-dashboard", opsCookie))

	rec = p.post(t, "/api/admin/login", "", `{"email":"`+opsEmail+`","password":"`+opsPassword+`"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReenableKeepsEarlierSessionsRevoked(t *testing.T) {
	p := newTestPortal(t)
	adminCookie := p.signIn(t, adminEmail, adminPassword)
	opsCookie := p.signIn(t, opsEmail, opsPassword)

	uid := p.ops.UID.String()
	require.Equal(t, http.StatusOK, p.post(t, "/api/admin/users/"+uid+"/disable", adminCookie, "").Code)
	require.Equal(t, http.StatusOK, p.post(t, "/api/admin/users/"+uid+"/enable", adminCookie, "").Code)

	requireRedirectToLogin(t, p.get(t, "/admin/admin-dashboard", opsCookie))
}

func TestLogout(t *testing.T) {
	p := newTestPortal(t)
	cookie := p.signIn(t, adminEmail, adminPassword)

	rec := p.post(t, "/api/admin/logout", cookie, "")
	require.Equal(t, http.StatusOK, rec.Code)
	requireCookieDeleted(t, rec)

	rec = p.get(t, "/admin/admin-dashboard", cookie)
	requireRedirectToLogin(t, rec)

	rec = p.get(t, "/api/admin/session", cookie)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutLaterInTheSameSecond(t *testing.T) {
	p := newTestPortal(t)
	start := p.clock.Now().Truncate(time.Second).Add(time.Second + 100*time.Millisecond)
	p.clock.Advance(start.Sub(p.clock.Now()))

	cookie := p.signIn(t, adminEmail, adminPassword)
	p.clock.Advance(400 * time.Millisecond)

	rec := p.post(t, "/api/admin/logout", cookie, "")
	require.Equal(t, http.StatusOK, rec.Code)

	requireRedirectToLogin(t, p.get(t, "/admin/admin-dashboard", cookie))

	p.clock.Advance(time.Millisecond)
	fresh := p.signIn(t, adminEmail, adminPassword)
	require.Equal(t, http.StatusOK, p.get(t, "/admin/admin-dashboard", fresh).Code)
}

func TestGateCoversWholeAdminTree(t *testing.T) {
	p := newTestPortal(t)

	for _, path := range []string{"/admin", "/admin/", "/admin/unknown", "/admin/uploads/new"} {
		t.Run(path, func(t *testing.T) {
			requireRedirectToLogin(t, p.get(t, path, ""))
		})
	}

	cookie := p.signIn(t, adminEmail, adminPassword)
	require.Equal(t, http.StatusNotFound, p.get(t, "/admin/unknown", cookie).Code)
}

func TestPublicRoutesSkipTheGate(t *testing.T) {
	p := newTestPortal(t)

	for _, path := range []string{"/", "/health", "/.well-known/jwks.json", "/.well-known/openid-configuration"} {
		t.Run(path, func(t *testing.T) {
			rec := p.get(t, path, "garbage")
			require.Equal(t, http.StatusOK, rec.Code)
			require.Empty(t, rec.Header().Values("Set-Cookie"))
		})
	}

	require.Equal(t, http.StatusNotFound, p.get(t, "/administrator", "").Code)
}

func TestAdminAPIRequiresSession(t *testing.T) {
	p := newTestPortal(t)

	rec := p.get(t, "/api/admin/users", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = p.post(t, "/api/admin/users/"+p.attacker.UID.String()+"/enable", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRateLimited(t *testing.T) {
	p := newTestPortal(t)

	for range 5 {
		rec := p.post(t, "/api/admin/login", "", `{"email":"`+adminEmail+`","password":"wrong-password"}`)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := p.post(t, "/api/admin/login", "", `{"email":"`+adminEmail+`","password":"`+adminPassword+`"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Empty(t, rec.Header().Values("Set-Cookie"))
}

func TestCrossOriginProtection(t *testing.T) {
	p := newTestPortal(t)
	body := `{"email":"` + adminEmail + `","password":"` + adminPassword + `"}`

	t.Run("cross-site login is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Sec-Fetch-Site", "cross-site")
		req.Header.Set("Origin", "https://evil.example.com")

		rec := p.do(t, req)
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Empty(t, rec.Header().Values("Set-Cookie"))
	})

	t.Run("trusted origin may log in", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Sec-Fetch-Site", "cross-site")
		req.Header.Set("Origin", trustedOrigin)

		rec := p.do(t, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, trustedOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/admin/login", nil)
		req.Header.Set("Origin", trustedOrigin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "Content-Type")

		rec := p.do(t, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, trustedOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(Config{})
	require.Error(t, err)
}
