// Package gitcli implements the gitclient port using the git CLI.
package gitcli

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/teemtee/tmtweb/internal/domain/metadata"
	"github.com/teemtee/tmtweb/internal/git"
	"github.com/teemtee/tmtweb/internal/resilience"
)

// Client runs git commands through a shared pool. Network operations are
// additionally guarded by a circuit breaker so a dead remote does not tie
// up every executor worker in retries.
type Client struct {
	pool    *git.Pool
	breaker *resilience.Breaker
}

// New creates a Client limited by pool and guarded by breaker.
// Both may be nil, in which case operations run unguarded.
func New(pool *git.Pool, breaker *resilience.Breaker) *Client {
	return &Client{pool: pool, breaker: breaker}
}

// Clone clones url into dest and checks out ref. An empty ref leaves the
// repository on its default branch. Failures are *metadata.FetchError.
func (c *Client) Clone(ctx context.Context, url, ref, dest string) error {
	err := c.pool.Run(ctx, func() error {
		return c.guard(func() error {
			if _, execErr := runGit(ctx, "", "clone", "--", url, dest); execErr != nil {
				return execErr
			}
			return nil
		})
	})
	if err != nil {
		return &metadata.FetchError{URL: url, Ref: ref, Err: err}
	}

	if ref == "" {
		return nil
	}
	if _, err := runGit(ctx, dest, "checkout", ref); err != nil {
		return &metadata.FetchError{URL: url, Ref: ref, Err: err}
	}
	return nil
}

// Checkout fetches and checks out ref in an existing working copy at dir.
// url names the remote repository in error reports.
func (c *Client) Checkout(ctx context.Context, dir, url, ref string) error {
	err := c.pool.Run(ctx, func() error {
		return c.guard(func() error {
			_, fetchErr := runGit(ctx, dir, "fetch", "origin")
			return fetchErr
		})
	})
	if err != nil {
		return &metadata.FetchError{URL: url, Ref: ref, Err: err}
	}

	if _, err := runGit(ctx, dir, "checkout", ref); err != nil {
		return &metadata.FetchError{URL: url, Ref: ref, Err: err}
	}
	return nil
}

// CurrentRef returns the branch currently checked out at dir, or the commit
// hash when HEAD is detached.
func (c *Client) CurrentRef(ctx context.Context, dir string) (string, error) {
	out, err := runGit(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("gitcli: current ref: %w", err)
	}
	ref := strings.TrimSpace(out)
	if ref != "HEAD" {
		return ref, nil
	}
	out, err = runGit(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("gitcli: current commit: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// guard runs fn through the breaker when one is configured.
func (c *Client) guard(fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	return c.breaker.Execute(fn)
}

// runGit executes a git command and returns its combined stdout.
func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w", strings.TrimSpace(stderr.String()), err)
	}
	return stdout.String(), nil
}
