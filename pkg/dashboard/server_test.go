package dashboard

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webfleet-sh/webfleet/pkg/config"
	"github.com/webfleet-sh/webfleet/pkg/manager"
	"github.com/webfleet-sh/webfleet/pkg/runner"
)

func testServer(t *testing.T) (*Server, *Auth) {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{Paths: config.Paths{
		AppsDir:        filepath.Join(root, "apps"),
		NginxAvailable: filepath.Join(root, "sites-available"),
		NginxEnabled:   filepath.Join(root, "sites-enabled"),
		NginxConf:      filepath.Join(root, "nginx.conf"),
		SystemdDir:     filepath.Join(root, "systemd"),
		LogDir:         filepath.Join(root, "logs"),
		RegistryFile:   filepath.Join(root, "registry.json"),
		BackupDir:      filepath.Join(root, "backups"),
		MaintenanceDir: filepath.Join(root, "maintenance"),
	}}
	require.NoError(t, os.MkdirAll(cfg.Paths.SystemdDir, 0o755))

	mgr := manager.New(cfg, runner.NewFake())
	store := testStore(t)
	auth := NewAuth(store, "test-secret")
	_, err := auth.EnsureDefaultUser("admin", "changeme")
	require.NoError(t, err)

	return NewServer(mgr, store, auth, zerolog.Nop()), auth
}

func login(t *testing.T, srv *Server) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"username":"admin","password":"changeme"}`))
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == SessionCookie {
			return cookie
		}
	}
	t.Fatal("login did not set a session cookie")
	return nil
}

func TestLoginRejectsBadPassword(t *testing.T) {
	srv, _ := testServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"username":"admin","password":"nope"}`))
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIRequiresSession(t *testing.T) {
	srv, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/applications", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListApplicationsEmpty(t *testing.T) {
	srv, _ := testServer(t)
	cookie := login(t, srv)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/applications", nil)
	req.AddCookie(cookie)
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestUnknownAppIs404(t *testing.T) {
	srv, _ := testServer(t)
	cookie := login(t, srv)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/applications/ghost.example.com", nil)
	req.AddCookie(cookie)
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/applications/ghost.example.com/actions/restart", nil)
	req.AddCookie(cookie)
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownActionIs400(t *testing.T) {
	srv, _ := testServer(t)
	cookie := login(t, srv)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications/x.example.com/actions/explode", nil)
	req.AddCookie(cookie)
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfigRoundTrip(t *testing.T) {
	srv, _ := testServer(t)
	cookie := login(t, srv)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/config/theme",
		strings.NewReader(`{"value":"dark"}`))
	req.AddCookie(cookie)
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/config/theme", nil)
	req.AddCookie(cookie)
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"key":"theme","value":"dark"}`, rec.Body.String())
}

func TestPageShellServed(t *testing.T) {
	srv, _ := testServer(t)

	for _, page := range []string{"/", "/login", "/domains", "/monitoring", "/settings"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, page, nil))
		assert.Equal(t, http.StatusOK, rec.Code, page)
		assert.Contains(t, rec.Body.String(), `data-page="`+page+`"`)
	}
}
