// Package service implements the use-case layer: task submission, status
// and rendering, metadata extraction, and queue-driven task execution.
package service

import (
	"context"

	twotel "github.com/teemtee/tmtweb/internal/adapter/otel"
	"github.com/teemtee/tmtweb/internal/domain/metadata"
	"github.com/teemtee/tmtweb/internal/port/metatree"
	"github.com/teemtee/tmtweb/internal/repocache"
)

// Extractor resolves one descriptor against a cached working copy of its
// repository. It never mutates the working copy.
type Extractor struct {
	repos  *repocache.Cache
	parser metatree.Parser
}

// NewExtractor creates an Extractor over a repository cache and tree parser.
func NewExtractor(repos *repocache.Cache, parser metatree.Parser) *Extractor {
	return &Extractor{repos: repos, parser: parser}
}

// Extract acquires the working copy for the descriptor's repository, parses
// the metadata tree, and resolves the named object. The repository handle
// stays held for the whole parse-and-resolve window so a concurrent task
// cannot switch the checkout underneath us.
func (e *Extractor) Extract(ctx context.Context, desc metadata.Descriptor) (*metadata.Record, error) {
	ctx, span := twotel.StartCloneSpan(ctx, desc.URL, desc.Ref)
	handle, err := e.repos.Acquire(ctx, desc.URL, desc.Ref)
	span.End()
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	tree, err := e.parser.Parse(ctx, handle.Path(), desc.Path)
	if err != nil {
		return nil, err
	}

	rec, err := tree.Resolve(ctx, desc.Kind, desc.Name)
	if err != nil {
		return nil, err
	}

	rec.Descriptor = desc
	return rec, nil
}
