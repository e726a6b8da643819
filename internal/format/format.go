// Package format renders task results into their wire representations.
// Rendering is pure: the same result always produces the same bytes.
package format

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/teemtee/tmtweb/internal/domain/metadata"
)

// Representation selects the output encoding of a rendered result.
type Representation string

const (
	RepJSON Representation = "json"
	RepYAML Representation = "yaml"
	RepHTML Representation = "html"
)

// ParseRepresentation maps a request format string to a Representation.
// The empty string defaults to JSON.
func ParseRepresentation(s string) (Representation, error) {
	switch s {
	case "", "json":
		return RepJSON, nil
	case "yaml":
		return RepYAML, nil
	case "html":
		return RepHTML, nil
	}
	return "", fmt.Errorf("unknown format %q, expected json, yaml or html", s)
}

// ContentType returns the HTTP content type for the representation.
func (r Representation) ContentType() string {
	switch r {
	case RepYAML:
		return "text/yaml; charset=utf-8"
	case RepHTML:
		return "text/html; charset=utf-8"
	default:
		return "application/json"
	}
}

// Render encodes the result in the given representation. Map keys are
// emitted in sorted order in every representation, so rendering the same
// result twice yields identical bytes.
func Render(res *metadata.Result, rep Representation) ([]byte, error) {
	if res == nil {
		return nil, fmt.Errorf("nil result")
	}

	switch rep {
	case RepJSON:
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("render json: %w", err)
		}
		return data, nil
	case RepYAML:
		data, err := yaml.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("render yaml: %w", err)
		}
		return data, nil
	case RepHTML:
		return renderHTML(res)
	}
	return nil, fmt.Errorf("unknown representation %q", rep)
}
