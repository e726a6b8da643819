// Package metatree defines the port interface for the metadata-tree library.
package metatree

import (
	"context"

	"github.com/teemtee/tmtweb/internal/domain/metadata"
)

// Parser opens a metadata tree rooted at a local path.
// A structural failure is reported as *metadata.MalformedTreeError.
type Parser interface {
	// Parse walks the tree rooted at root (a checked-out working copy,
	// optionally narrowed by treePath) and returns a handle for lookups.
	Parse(ctx context.Context, root, treePath string) (Tree, error)
}

// Tree resolves named objects against a parsed metadata tree.
type Tree interface {
	// Resolve returns the fully resolved record for the named object of
	// the given kind, or *metadata.ObjectNotFoundError.
	Resolve(ctx context.Context, kind metadata.Kind, name string) (*metadata.Record, error)
}
