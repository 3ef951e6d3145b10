package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomain(t *testing.T) {
	tests := []struct {
		domain string
		ok     bool
	}{
		{"example.com", true},
		{"sub.example.com", true},
		{"my-app.example.co.uk", true},
		{"Example.COM", true},
		{"", false},
		{"localhost", false},
		{"-bad.example.com", false},
		{"bad-.example.com", false},
		{"exa mple.com", false},
		{"example.c", false},
		{"example.123", false},
		{"192.168.1.1", false},
	}
	for _, tt := range tests {
		err := Domain(tt.domain)
		if tt.ok {
			assert.NoError(t, err, tt.domain)
		} else {
			assert.Error(t, err, tt.domain)
		}
	}
}

func TestPort(t *testing.T) {
	assert.Error(t, Port(80))
	assert.Error(t, Port(1023))
	assert.NoError(t, Port(1024))
	assert.NoError(t, Port(3000))
	assert.NoError(t, Port(65535))
	assert.Error(t, Port(65536))
	assert.Error(t, Port(0))
	assert.Error(t, Port(-1))
}

func TestBranch(t *testing.T) {
	assert.NoError(t, Branch("main"))
	assert.NoError(t, Branch("feature/login"))
	assert.NoError(t, Branch("release-1.2"))
	assert.Error(t, Branch(""))
	assert.Error(t, Branch("  "))
	assert.Error(t, Branch("-main"))
	assert.Error(t, Branch("a..b"))
	assert.Error(t, Branch("has space"))
	assert.Error(t, Branch("tilde~1"))
	assert.Error(t, Branch("trailing/"))
	assert.Error(t, Branch("main.lock"))
}

func TestEmail(t *testing.T) {
	assert.NoError(t, Email("ops@example.com"))
	assert.NoError(t, Email("first.last+tag@sub.example.org"))
	assert.Error(t, Email("not-an-email"))
	assert.Error(t, Email("@example.com"))
	assert.Error(t, Email("user@"))
}

func TestAppType(t *testing.T) {
	for _, typ := range AppTypes {
		assert.NoError(t, AppType(typ))
	}
	assert.Error(t, AppType("rails"))
	assert.Error(t, AppType(""))
	assert.Error(t, AppType("NextJS"))
}

func TestEnvVars(t *testing.T) {
	assert.NoError(t, EnvVars(map[string]string{"PORT": "3000", "API_KEY_2": "x", "_HIDDEN": "y"}))
	assert.Error(t, EnvVars(map[string]string{"lower": "x"}))
	assert.Error(t, EnvVars(map[string]string{"1BAD": "x"}))
	assert.Error(t, EnvVars(map[string]string{"WITH-DASH": "x"}))
}
