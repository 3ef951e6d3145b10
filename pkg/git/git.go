// Package git fetches application source code. Clones are shallow; when
// the requested branch does not exist the common default branch names are
// tried in order before giving up.
package git

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/webfleet-sh/webfleet/pkg/runner"
)

// FallbackBranches are tried, in order, after the requested branch.
var FallbackBranches = []string{"main", "master", "develop", "dev"}

// Client performs git operations through a command runner.
type Client struct {
	run runner.Runner
}

// NewClient creates a git client.
func NewClient(run runner.Runner) *Client {
	return &Client{run: run}
}

// CloneResult reports which branch a clone ended up on.
type CloneResult struct {
	Branch   string
	Fallback bool
}

// Clone fetches source into dest with --depth 1. The requested branch is
// tried first, then the fallback ladder. For github.com SSH remotes a
// second pass retries over HTTPS, since deploy hosts rarely carry the
// operator's SSH keys.
func (c *Client) Clone(ctx context.Context, source, branch, dest string) (*CloneResult, error) {
	res, err := c.cloneLadder(ctx, source, branch, dest)
	if err == nil {
		return res, nil
	}

	if https, ok := sshToHTTPS(source); ok {
		res, retryErr := c.cloneLadder(ctx, https, branch, dest)
		if retryErr == nil {
			return res, nil
		}
	}
	return nil, err
}

func (c *Client) cloneLadder(ctx context.Context, source, branch, dest string) (*CloneResult, error) {
	candidates := branchCandidates(branch)
	var lastErr error
	for i, b := range candidates {
		os.RemoveAll(dest)
		_, err := c.run.Run(ctx, "git", "clone", "--depth", "1", "--branch", b, source, dest)
		if err == nil {
			return &CloneResult{Branch: b, Fallback: i > 0}, nil
		}
		lastErr = err
	}
	os.RemoveAll(dest)
	return nil, fmt.Errorf("clone %s: no usable branch among %s: %w",
		source, strings.Join(candidates, ", "), lastErr)
}

// Update refreshes an existing checkout in dir to the latest commit of
// branch, falling back through the ladder when the branch has vanished
// upstream. The working tree is hard-reset; deploy checkouts carry no
// local changes worth keeping.
func (c *Client) Update(ctx context.Context, dir, branch string) (*CloneResult, error) {
	if _, err := c.run.RunIn(ctx, dir, "git", "fetch", "origin", "--prune"); err != nil {
		return nil, fmt.Errorf("fetch origin in %s: %w", dir, err)
	}

	candidates := branchCandidates(branch)
	var lastErr error
	for i, b := range candidates {
		if _, err := c.run.RunIn(ctx, dir, "git", "ls-remote", "--exit-code", "--heads", "origin", b); err != nil {
			lastErr = err
			continue
		}
		if _, err := c.run.RunIn(ctx, dir, "git", "checkout", b); err != nil {
			lastErr = err
			continue
		}
		if _, err := c.run.RunIn(ctx, dir, "git", "reset", "--hard", "origin/"+b); err != nil {
			lastErr = err
			continue
		}
		return &CloneResult{Branch: b, Fallback: i > 0}, nil
	}
	return nil, fmt.Errorf("update %s: no usable branch among %s: %w",
		dir, strings.Join(candidates, ", "), lastErr)
}

// CurrentCommit returns the short HEAD hash of the checkout in dir.
func (c *Client) CurrentCommit(ctx context.Context, dir string) (string, error) {
	res, err := c.run.RunIn(ctx, dir, "git", "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("rev-parse in %s: %w", dir, err)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// IsRepository reports whether dir is a git checkout.
func (c *Client) IsRepository(ctx context.Context, dir string) bool {
	_, err := c.run.RunIn(ctx, dir, "git", "rev-parse", "--git-dir")
	return err == nil
}

// branchCandidates returns the requested branch followed by the fallback
// ladder, deduplicated, preserving order.
func branchCandidates(branch string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range append([]string{branch}, FallbackBranches...) {
		if b == "" || seen[b] {
			continue
		}
		seen[b] = true
		out = append(out, b)
	}
	return out
}

// sshToHTTPS rewrites a git@github.com:owner/repo.git remote to its HTTPS
// equivalent.
func sshToHTTPS(source string) (string, bool) {
	if !strings.HasPrefix(source, "git@github.com:") {
		return "", false
	}
	path := strings.TrimPrefix(source, "git@github.com:")
	return "https://github.com/" + path, true
}
