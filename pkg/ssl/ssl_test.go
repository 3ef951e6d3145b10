package ssl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webfleet-sh/webfleet/pkg/runner"
)

func TestProvisionSuccess(t *testing.T) {
	fake := runner.NewFake()
	fake.Respond("certbot --nginx", runner.Result{
		Stdout: "Congratulations! You have successfully enabled HTTPS",
	}, nil)

	m := NewManager(fake, "ops@example.com")
	require.NoError(t, m.Provision(context.Background(), "example.com"))

	calls := fake.CallsMatching("certbot --nginx -d example.com")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], "--non-interactive")
	assert.Contains(t, calls[0], "--agree-tos")
	assert.Contains(t, calls[0], "--redirect")
	assert.Contains(t, calls[0], "--email ops@example.com")
}

func TestProvisionWithoutEmail(t *testing.T) {
	fake := runner.NewFake()
	fake.Respond("certbot --nginx", runner.Result{
		Stdout: "Successfully deployed certificate for example.com",
	}, nil)

	m := NewManager(fake, "")
	require.NoError(t, m.Provision(context.Background(), "example.com"))
	assert.Contains(t, fake.CallsMatching("certbot")[0], "--register-unsafely-without-email")
}

func TestProvisionUnconfirmedOutputFails(t *testing.T) {
	fake := runner.NewFake()
	fake.Respond("certbot --nginx", runner.Result{Stdout: "Some challenges have failed."}, nil)

	m := NewManager(fake, "ops@example.com")
	err := m.Provision(context.Background(), "example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not confirm issuance")
}

func TestProvisionCertbotMissing(t *testing.T) {
	fake := runner.NewFake()
	fake.MarkMissing("certbot")

	m := NewManager(fake, "ops@example.com")
	assert.ErrorIs(t, m.Provision(context.Background(), "example.com"), ErrCertbotMissing)
}

func TestRemoveTolerantOfMissingCert(t *testing.T) {
	fake := runner.NewFake()
	fake.Respond("certbot delete", runner.Result{
		Stderr: "No certificate found with name example.com", ExitCode: 1,
	}, errors.New("exit status 1"))

	m := NewManager(fake, "")
	assert.NoError(t, m.Remove(context.Background(), "example.com"))

	missing := runner.NewFake()
	missing.MarkMissing("certbot")
	assert.NoError(t, NewManager(missing, "").Remove(context.Background(), "example.com"))
}

func TestStatusParsesExpiry(t *testing.T) {
	fake := runner.NewFake()
	fake.Respond("certbot certificates", runner.Result{Stdout: `Found the following certs:
  Certificate Name: example.com
    Domains: example.com
    Expiry Date: 2030-06-15 12:00:00+00:00 (VALID: 89 days)
`}, nil)

	m := NewManager(fake, "")
	status, err := m.Status(context.Background(), "example.com")
	require.NoError(t, err)
	assert.True(t, status.Issued)
	assert.Equal(t, time.Date(2030, 6, 15, 12, 0, 0, 0, time.UTC), status.ExpiryDate)
	assert.Positive(t, status.DaysLeft)
}

func TestStatusNoCertificate(t *testing.T) {
	fake := runner.NewFake()
	fake.Respond("certbot certificates", runner.Result{Stdout: "No certificates found.\n"}, nil)

	m := NewManager(fake, "")
	status, err := m.Status(context.Background(), "example.com")
	require.NoError(t, err)
	assert.False(t, status.Issued)
}
