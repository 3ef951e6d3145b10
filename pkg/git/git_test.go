package git

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webfleet-sh/webfleet/pkg/runner"
)

func TestBranchCandidatesOrderAndDedup(t *testing.T) {
	assert.Equal(t,
		[]string{"feature", "main", "master", "develop", "dev"},
		branchCandidates("feature"))
	assert.Equal(t,
		[]string{"main", "master", "develop", "dev"},
		branchCandidates("main"))
	assert.Equal(t,
		[]string{"master", "main", "develop", "dev"},
		branchCandidates("master"))
	assert.Equal(t,
		[]string{"main", "master", "develop", "dev"},
		branchCandidates(""))
}

func TestCloneUsesRequestedBranchFirst(t *testing.T) {
	fake := runner.NewFake()
	c := NewClient(fake)
	dest := filepath.Join(t.TempDir(), "checkout")

	res, err := c.Clone(context.Background(), "https://github.com/acme/app.git", "release", dest)
	require.NoError(t, err)
	assert.Equal(t, "release", res.Branch)
	assert.False(t, res.Fallback)
	assert.Len(t, fake.CallsMatching("git clone"), 1)
}

func TestCloneFallsThroughLadder(t *testing.T) {
	fake := runner.NewFake()
	boom := errors.New("branch not found")
	fake.Respond("git clone --depth 1 --branch topic", runner.Result{}, boom)
	fake.Respond("git clone --depth 1 --branch main", runner.Result{}, boom)
	// master succeeds (no scripted error)

	c := NewClient(fake)
	res, err := c.Clone(context.Background(), "https://github.com/acme/app.git", "topic", t.TempDir()+"/x")
	require.NoError(t, err)
	assert.Equal(t, "master", res.Branch)
	assert.True(t, res.Fallback)
}

func TestCloneExhaustedLadderFails(t *testing.T) {
	fake := runner.NewFake()
	fake.Respond("git clone", runner.Result{}, errors.New("no such branch"))

	c := NewClient(fake)
	_, err := c.Clone(context.Background(), "https://github.com/acme/app.git", "main", t.TempDir()+"/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable branch")
}

func TestCloneSSHFallsBackToHTTPS(t *testing.T) {
	fake := runner.NewFake()
	fake.Respond("git clone --depth 1 --branch main git@github.com:acme/app.git",
		runner.Result{}, errors.New("permission denied (publickey)"))
	// ladder for SSH url: all fail
	fake.Respond("git clone --depth 1 --branch master git@github.com:acme/app.git",
		runner.Result{}, errors.New("permission denied (publickey)"))
	fake.Respond("git clone --depth 1 --branch develop git@github.com:acme/app.git",
		runner.Result{}, errors.New("permission denied (publickey)"))
	fake.Respond("git clone --depth 1 --branch dev git@github.com:acme/app.git",
		runner.Result{}, errors.New("permission denied (publickey)"))

	c := NewClient(fake)
	res, err := c.Clone(context.Background(), "git@github.com:acme/app.git", "main", t.TempDir()+"/x")
	require.NoError(t, err)
	assert.Equal(t, "main", res.Branch)

	https := fake.CallsMatching("git clone --depth 1 --branch main https://github.com/acme/app.git")
	assert.Len(t, https, 1)
}

func TestUpdateSkipsMissingRemoteBranches(t *testing.T) {
	fake := runner.NewFake()
	fake.Respond("git ls-remote --exit-code --heads origin gone",
		runner.Result{}, errors.New("exit 2"))

	c := NewClient(fake)
	res, err := c.Update(context.Background(), "/var/www/apps/x", "gone")
	require.NoError(t, err)
	assert.Equal(t, "main", res.Branch)
	assert.True(t, res.Fallback)

	assert.Len(t, fake.CallsMatching("git fetch origin --prune"), 1)
	assert.Len(t, fake.CallsMatching("git reset --hard origin/main"), 1)
}

func TestSSHToHTTPS(t *testing.T) {
	https, ok := sshToHTTPS("git@github.com:acme/app.git")
	assert.True(t, ok)
	assert.Equal(t, "https://github.com/acme/app.git", https)

	_, ok = sshToHTTPS("https://github.com/acme/app.git")
	assert.False(t, ok)
	_, ok = sshToHTTPS("git@gitlab.com:acme/app.git")
	assert.False(t, ok)
}
