package nginx

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webfleet-sh/webfleet/pkg/config"
	"github.com/webfleet-sh/webfleet/pkg/runner"
)

func testPaths(t *testing.T) config.Paths {
	t.Helper()
	root := t.TempDir()
	return config.Paths{
		AppsDir:        filepath.Join(root, "apps"),
		NginxAvailable: filepath.Join(root, "sites-available"),
		NginxEnabled:   filepath.Join(root, "sites-enabled"),
		NginxConf:      filepath.Join(root, "nginx", "nginx.conf"),
		LogDir:         filepath.Join(root, "log"),
		MaintenanceDir: filepath.Join(root, "maintenance"),
	}
}

func okNginxT(fake *runner.Fake) {
	fake.Respond("nginx -t", runner.Result{
		Stderr: "nginx: the configuration file syntax is ok\nnginx: configuration file test is successful",
	}, nil)
}

func TestRenderNextJSVhost(t *testing.T) {
	out, err := Render(VHost{
		Domain: "example.com", Port: 3000, AppType: "nextjs",
		Mode: ModeNormal, LogDir: "/var/log/apps",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "server_name example.com;")
	assert.Contains(t, out, "proxy_pass http://localhost:3000;")
	assert.Contains(t, out, "limit_req zone=webapp_global burst=50 nodelay;")
	assert.Contains(t, out, "proxy_buffer_size 128k;")
	assert.Contains(t, out, "/var/log/apps/example.com-access.log")
	assert.NotContains(t, out, "location /docs")
}

func TestRenderFastAPIVhostHasDocsLocations(t *testing.T) {
	out, err := Render(VHost{
		Domain: "api.example.com", Port: 8001, AppType: "fastapi",
		Mode: ModeNormal, LogDir: "/var/log/apps",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "limit_req zone=webapp_global burst=100 nodelay;")
	assert.Contains(t, out, "location /docs {")
	assert.Contains(t, out, "proxy_pass http://localhost:8001/docs;")
	assert.Contains(t, out, "location /redoc {")
	assert.Contains(t, out, "proxy_buffers 8 64k;")
}

func TestRenderStaticVhostServesRoot(t *testing.T) {
	out, err := Render(VHost{
		Domain: "site.example.com", AppType: "static", Mode: ModeNormal,
		Root: "/var/www/apps/site.example.com", LogDir: "/var/log/apps",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "root /var/www/apps/site.example.com;")
	assert.Contains(t, out, "try_files $uri $uri/ =404;")
	assert.Contains(t, out, "expires 1y;")
	assert.NotContains(t, out, "proxy_pass")
}

func TestRenderMaintenanceOverridesType(t *testing.T) {
	out, err := Render(VHost{
		Domain: "example.com", Port: 3000, AppType: "nextjs",
		Mode: ModeMaintenance, LogDir: "/var/log/apps",
		MaintenanceDir: "/var/www/maintenance",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "root /var/www/maintenance;")
	assert.Contains(t, out, "try_files /index.html =404;")
	assert.NotContains(t, out, "proxy_pass")
}

func TestRenderSSLVhost(t *testing.T) {
	out, err := Render(VHost{
		Domain: "example.com", Port: 3000, AppType: "nextjs",
		Mode: ModeNormal, SSL: true, LogDir: "/var/log/apps",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "listen 443 ssl;")
	assert.Contains(t, out, "ssl_certificate /etc/letsencrypt/live/example.com/fullchain.pem;")
	assert.Contains(t, out, "ssl_certificate_key /etc/letsencrypt/live/example.com/privkey.pem;")
	assert.Contains(t, out, "return 301 https://$host$request_uri;")
	assert.Contains(t, out, "proxy_pass http://localhost:3000;")

	plain, err := Render(VHost{
		Domain: "example.com", Port: 3000, AppType: "nextjs",
		Mode: ModeNormal, LogDir: "/var/log/apps",
	})
	require.NoError(t, err)
	assert.NotContains(t, plain, "443")
	assert.NotContains(t, plain, "ssl_certificate")
}

func TestCreateVhostInstallsAndEnables(t *testing.T) {
	paths := testPaths(t)
	fake := runner.NewFake()
	okNginxT(fake)
	m := NewManager(fake, paths)

	err := m.CreateVhost(context.Background(), VHost{Domain: "example.com", Port: 3000, AppType: "nodejs"})
	require.NoError(t, err)

	assert.True(t, m.VhostExists("example.com"))
	assert.True(t, m.VhostEnabled("example.com"))

	link, err := os.Readlink(filepath.Join(paths.NginxEnabled, "example.com"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(paths.NginxAvailable, "example.com"), link)

	// temp file cleaned up
	_, err = os.Stat(filepath.Join(paths.NginxAvailable, "example.com.temp"))
	assert.True(t, os.IsNotExist(err))
}

func TestCreateVhostRollsBackOnFailedTest(t *testing.T) {
	paths := testPaths(t)
	fake := runner.NewFake()
	fake.Respond("nginx -t", runner.Result{Stderr: "emerg: unknown directive"}, nil)
	m := NewManager(fake, paths)

	err := m.CreateVhost(context.Background(), VHost{Domain: "bad.example.com", Port: 3000, AppType: "nodejs"})
	require.Error(t, err)
	assert.False(t, m.VhostExists("bad.example.com"))
	assert.False(t, m.VhostEnabled("bad.example.com"))
}

func TestCreateVhostRestoresPreviousOnFailedTest(t *testing.T) {
	paths := testPaths(t)
	fake := runner.NewFake()
	okNginxT(fake)
	m := NewManager(fake, paths)

	require.NoError(t, m.CreateVhost(context.Background(), VHost{Domain: "example.com", Port: 3000, AppType: "nodejs"}))
	before, err := os.ReadFile(filepath.Join(paths.NginxAvailable, "example.com"))
	require.NoError(t, err)

	fake.Respond("nginx -t", runner.Result{Stderr: "emerg: broken"}, nil)
	err = m.CreateVhost(context.Background(), VHost{Domain: "example.com", Port: 4000, AppType: "nodejs"})
	require.Error(t, err)

	after, err := os.ReadFile(filepath.Join(paths.NginxAvailable, "example.com"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRemoveVhost(t *testing.T) {
	paths := testPaths(t)
	fake := runner.NewFake()
	okNginxT(fake)
	m := NewManager(fake, paths)

	require.NoError(t, m.CreateVhost(context.Background(), VHost{Domain: "example.com", Port: 3000, AppType: "nodejs"}))
	require.NoError(t, m.RemoveVhost("example.com"))
	assert.False(t, m.VhostExists("example.com"))
	assert.False(t, m.VhostEnabled("example.com"))

	// removing an absent vhost is not an error
	assert.NoError(t, m.RemoveVhost("ghost.example.com"))
}

func TestSetMaintenanceRendersMaintenanceMode(t *testing.T) {
	paths := testPaths(t)
	fake := runner.NewFake()
	okNginxT(fake)
	m := NewManager(fake, paths)

	v := VHost{Domain: "example.com", Port: 3000, AppType: "nextjs"}
	require.NoError(t, m.CreateVhost(context.Background(), v))
	require.NoError(t, m.SetMaintenance(context.Background(), v, true))

	data, err := os.ReadFile(filepath.Join(paths.NginxAvailable, "example.com"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Maintenance mode")
	assert.NotContains(t, string(data), "proxy_pass")

	_, err = os.Stat(filepath.Join(paths.MaintenanceDir, "index.html"))
	assert.NoError(t, err)
	assert.NotEmpty(t, fake.CallsMatching("systemctl reload nginx"))

	require.NoError(t, m.SetMaintenance(context.Background(), v, false))
	data, err = os.ReadFile(filepath.Join(paths.NginxAvailable, "example.com"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "proxy_pass http://localhost:3000;")
}

func TestMaintenanceCycleKeepsTLSBlock(t *testing.T) {
	paths := testPaths(t)
	fake := runner.NewFake()
	okNginxT(fake)
	m := NewManager(fake, paths)

	v := VHost{Domain: "example.com", Port: 3000, AppType: "nextjs", SSL: true}
	require.NoError(t, m.CreateVhost(context.Background(), v))

	require.NoError(t, m.SetMaintenance(context.Background(), v, true))
	data, err := os.ReadFile(filepath.Join(paths.NginxAvailable, "example.com"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Maintenance mode")
	assert.Contains(t, string(data), "listen 443 ssl;")
	assert.Contains(t, string(data), "ssl_certificate /etc/letsencrypt/live/example.com/fullchain.pem;")

	require.NoError(t, m.SetMaintenance(context.Background(), v, false))
	data, err = os.ReadFile(filepath.Join(paths.NginxAvailable, "example.com"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "proxy_pass http://localhost:3000;")
	assert.Contains(t, string(data), "listen 443 ssl;")
	assert.Contains(t, string(data), "return 301 https://$host$request_uri;")
}

func TestEnsureRateLimitZone(t *testing.T) {
	paths := testPaths(t)
	fake := runner.NewFake()
	m := NewManager(fake, paths)

	require.NoError(t, m.EnsureRateLimitZone())
	zonePath := filepath.Join(filepath.Dir(paths.NginxConf), "conf.d", "webfleet-rate-limit.conf")
	data, err := os.ReadFile(zonePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "zone=webapp_global:10m")

	// idempotent
	require.NoError(t, m.EnsureRateLimitZone())
}
