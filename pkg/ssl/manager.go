// Package ssl provisions and revokes Let's Encrypt certificates through
// certbot's nginx plugin.
package ssl

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/webfleet-sh/webfleet/pkg/runner"
)

// ErrCertbotMissing is returned when the certbot binary is not installed.
var ErrCertbotMissing = errors.New("certbot is not installed")

// CertStatus describes an issued certificate.
type CertStatus struct {
	Domain     string
	Issued     bool
	ExpiryDate time.Time
	DaysLeft   int
}

// Manager drives certbot.
type Manager struct {
	run   runner.Runner
	email string
}

// NewManager creates an SSL manager. email is the registration contact
// passed to certbot on first issuance.
func NewManager(run runner.Runner, email string) *Manager {
	return &Manager{run: run, email: email}
}

// Provision requests a certificate for domain and lets certbot rewrite the
// nginx vhost for HTTPS with an HTTP redirect.
func (m *Manager) Provision(ctx context.Context, domain string) error {
	if !m.run.CommandExists("certbot") {
		return ErrCertbotMissing
	}

	args := []string{
		"certbot", "--nginx",
		"-d", domain,
		"--non-interactive",
		"--agree-tos",
		"--redirect",
	}
	if m.email != "" {
		args = append(args, "--email", m.email)
	} else {
		args = append(args, "--register-unsafely-without-email")
	}

	res, err := m.run.RunSudo(ctx, args[0], args[1:]...)
	if err != nil {
		return fmt.Errorf("certbot for %s: %w: %s", domain, err, strings.TrimSpace(res.Stderr))
	}

	out := res.Combined()
	if !strings.Contains(out, "Congratulations") &&
		!strings.Contains(out, "Successfully deployed certificate") &&
		!strings.Contains(out, "Certificate not yet due for renewal") {
		return fmt.Errorf("certbot for %s did not confirm issuance: %s", domain, tailLines(out, 5))
	}
	return nil
}

// Remove deletes the certificate for domain. Missing certificates are not
// an error; removal is best-effort during app teardown.
func (m *Manager) Remove(ctx context.Context, domain string) error {
	if !m.run.CommandExists("certbot") {
		return nil
	}
	res, err := m.run.RunSudo(ctx, "certbot", "delete",
		"--cert-name", domain, "--non-interactive")
	if err != nil {
		if strings.Contains(res.Combined(), "No certificate found") {
			return nil
		}
		return fmt.Errorf("certbot delete %s: %w", domain, err)
	}
	return nil
}

var expiryRe = regexp.MustCompile(`Expiry Date: (\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})`)

// Status reports whether a certificate exists for domain and when it
// expires, parsed from certbot's human-readable listing.
func (m *Manager) Status(ctx context.Context, domain string) (CertStatus, error) {
	status := CertStatus{Domain: domain}
	if !m.run.CommandExists("certbot") {
		return status, ErrCertbotMissing
	}

	res, err := m.run.RunSudo(ctx, "certbot", "certificates", "--cert-name", domain)
	if err != nil {
		return status, fmt.Errorf("certbot certificates %s: %w", domain, err)
	}

	out := res.Combined()
	if !strings.Contains(out, "Certificate Name: "+domain) {
		return status, nil
	}
	status.Issued = true

	if match := expiryRe.FindStringSubmatch(out); match != nil {
		expiry, err := time.Parse("2006-01-02 15:04:05", match[1])
		if err == nil {
			status.ExpiryDate = expiry
			status.DaysLeft = int(time.Until(expiry).Hours() / 24)
		}
	}
	return status, nil
}

func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
