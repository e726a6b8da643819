// Package gitclient defines the port interface for git transport.
package gitclient

import "context"

// Client is the port interface for clone and checkout operations.
// Failures are reported as *metadata.FetchError so callers can apply their
// retry policy; the client itself never retries.
type Client interface {
	// Clone clones url into dest and checks out ref. An empty ref leaves
	// the repository on its default branch.
	Clone(ctx context.Context, url, ref, dest string) error

	// Checkout fetches and checks out ref in an existing working copy at
	// dir. url names the remote in error reports.
	Checkout(ctx context.Context, dir, url, ref string) error

	// CurrentRef returns the symbolic ref or commit currently checked out at dir.
	CurrentRef(ctx context.Context, dir string) (string, error)
}
