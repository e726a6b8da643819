package metadata

import (
	"context"
	"errors"
	"fmt"
)

// Error kind tags used on the wire and in rendered results.
const (
	ErrKindFetch         = "fetch"
	ErrKindObjectMissing = "object-not-found"
	ErrKindMalformedTree = "malformed-tree"
	ErrKindTimeout       = "timeout"
	ErrKindInternal      = "internal"
)

// FetchError reports a failed clone or fetch: network failures, auth
// failures, and unresolvable refs. Retryable.
type FetchError struct {
	URL string
	Ref string
	Err error
}

func (e *FetchError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("fetch %s@%s: %v", e.URL, e.Ref, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ObjectNotFoundError reports that no object with the requested name exists
// under the tree path. Deterministic, not retried.
type ObjectNotFoundError struct {
	Kind Kind
	Name string
}

func (e *ObjectNotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Kind, e.Name)
}

// MalformedTreeError reports that the metadata tree itself could not be
// parsed. Deterministic, not retried.
type MalformedTreeError struct {
	Path   string
	Reason string
}

func (e *MalformedTreeError) Error() string {
	return fmt.Sprintf("malformed metadata tree at %s: %s", e.Path, e.Reason)
}

// ExtractionError is the wire form of a per-descriptor failure, embedded in
// the task result rather than aborting the whole task.
type ExtractionError struct {
	Kind    string `json:"kind" yaml:"kind"`
	Message string `json:"message" yaml:"message"`
}

func (e *ExtractionError) Error() string { return e.Message }

// Classify converts an extraction failure into its wire form.
func Classify(err error) *ExtractionError {
	var fetchErr *FetchError
	var missingErr *ObjectNotFoundError
	var treeErr *MalformedTreeError

	// Timeout wins over fetch: a clone killed by the deadline surfaces as
	// a FetchError wrapping context.DeadlineExceeded.
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ExtractionError{Kind: ErrKindTimeout, Message: err.Error()}
	case errors.As(err, &fetchErr):
		return &ExtractionError{Kind: ErrKindFetch, Message: fetchErr.Error()}
	case errors.As(err, &missingErr):
		return &ExtractionError{Kind: ErrKindObjectMissing, Message: missingErr.Error()}
	case errors.As(err, &treeErr):
		return &ExtractionError{Kind: ErrKindMalformedTree, Message: treeErr.Error()}
	default:
		return &ExtractionError{Kind: ErrKindInternal, Message: err.Error()}
	}
}
