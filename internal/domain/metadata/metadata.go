// Package metadata defines the descriptor, record, and result types for
// metadata resolution against a git-hosted fmf tree.
package metadata

import (
	"errors"
	"strings"
)

// Kind identifies the type of a requested metadata object.
type Kind string

const (
	KindTest  Kind = "test"
	KindPlan  Kind = "plan"
	KindStory Kind = "story"
)

// Valid reports whether k is a known object kind.
func (k Kind) Valid() bool {
	switch k {
	case KindTest, KindPlan, KindStory:
		return true
	}
	return false
}

// Descriptor identifies one requested object. It is immutable once a task
// has been created.
type Descriptor struct {
	Kind Kind   `json:"kind" yaml:"kind"`
	URL  string `json:"url" yaml:"url"`
	Ref  string `json:"ref,omitempty" yaml:"ref,omitempty"`
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	Name string `json:"name" yaml:"name"`
}

// Validate checks the descriptor's required fields.
func (d Descriptor) Validate() error {
	if !d.Kind.Valid() {
		return errors.New("unknown object kind: " + string(d.Kind))
	}
	if strings.TrimSpace(d.URL) == "" {
		return errors.New("repository url is required")
	}
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("object name is required")
	}
	return nil
}

// Record is the fully resolved metadata for one descriptor. Immutable once
// produced.
type Record struct {
	Descriptor Descriptor     `json:"descriptor" yaml:"descriptor"`
	Data       map[string]any `json:"data" yaml:"data"`
	// Source is the tree file the object was resolved from, relative to
	// the repository root.
	Source string `json:"source" yaml:"source"`
}

// Outcome is the tagged per-descriptor result: exactly one of Record or
// Error is set.
type Outcome struct {
	Record *Record          `json:"record,omitempty" yaml:"record,omitempty"`
	Error  *ExtractionError `json:"error,omitempty" yaml:"error,omitempty"`
}

// OK reports whether the descriptor resolved cleanly.
func (o Outcome) OK() bool { return o.Record != nil && o.Error == nil }

// Result aggregates the per-descriptor outcomes of one task, in request
// order.
type Result struct {
	Outcomes []Outcome `json:"outcomes" yaml:"outcomes"`
}

// Resolved returns the number of outcomes that resolved cleanly.
func (r *Result) Resolved() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}
