package manager

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/webfleet-sh/webfleet/pkg/deployer"
)

// Issue is one human-readable finding from a diagnostic pass.
type Issue struct {
	Severity string // "error" or "warning"
	Message  string
}

// Diagnose runs read-only checks for one app and returns the findings.
// An empty slice means everything looks healthy.
func (m *Manager) Diagnose(ctx context.Context, domain string) ([]Issue, error) {
	doc, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	app, err := doc.Get(domain)
	if err != nil {
		return nil, err
	}

	var issues []Issue
	report := func(severity, format string, args ...interface{}) {
		issues = append(issues, Issue{Severity: severity, Message: fmt.Sprintf(format, args...)})
	}

	appDir := m.cfg.Paths.AppDir(domain)
	if _, err := os.Stat(appDir); err != nil {
		report("error", "app directory %s is missing", appDir)
	}

	if deployer.NeedsService(app.AppType) {
		if !m.systemd.UnitExists(domain) {
			report("error", "service unit %s is not installed", app.ServiceName())
		} else if !m.systemd.IsActive(ctx, domain) {
			report("error", "service %s is not active (state: %s)", app.ServiceName(), m.systemd.Status(ctx, domain))
		}
		if !portListening(app.Port) {
			report("error", "nothing is listening on port %d", app.Port)
		}
		if err := m.probe(ctx, app.Port); err != nil {
			report("warning", "HTTP probe on port %d failed: %v", app.Port, err)
		}
	}

	if !m.nginx.VhostExists(domain) {
		report("error", "nginx vhost for %s is missing", domain)
	} else if !m.nginx.VhostEnabled(domain) {
		report("error", "nginx vhost for %s exists but is not enabled", domain)
	}
	if err := m.nginx.Test(ctx); err != nil {
		report("error", "nginx configuration test failed: %v", err)
	}

	if app.SSL && !m.dns.Resolves(ctx, domain) {
		report("warning", "%s does not resolve in public DNS, certificate renewal will fail", domain)
	}
	return issues, nil
}

// prerequisites maps each required command to whether its absence blocks
// all operation or only some app types.
var prerequisites = []struct {
	command  string
	required bool
	reason   string
}{
	{"git", true, "source fetching"},
	{"nginx", true, "reverse proxying"},
	{"systemctl", true, "service management"},
	{"node", false, "Node.js and Next.js apps"},
	{"npm", false, "Node.js and Next.js apps"},
	{"python3", false, "FastAPI apps"},
	{"certbot", false, "TLS provisioning"},
}

// CheckPrerequisites verifies the external tools are installed. Missing
// required tools are errors; missing optional ones are warnings.
func (m *Manager) CheckPrerequisites() []Issue {
	var issues []Issue
	for _, p := range prerequisites {
		if m.run.CommandExists(p.command) {
			continue
		}
		severity := "warning"
		if p.required {
			severity = "error"
		}
		issues = append(issues, Issue{
			Severity: severity,
			Message:  fmt.Sprintf("%s is not installed (needed for %s)", p.command, p.reason),
		})
	}
	return issues
}

func portListening(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("localhost:%d", port), 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
