package format

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teemtee/tmtweb/internal/domain/metadata"
	"github.com/teemtee/tmtweb/internal/domain/task"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

type htmlField struct {
	Key   string
	Value string
}

type htmlOutcome struct {
	Kind   string
	Name   string
	URL    string
	Ref    string
	Source string
	Fields []htmlField
	Err    *metadata.ExtractionError
}

type resultPage struct {
	Outcomes []htmlOutcome
}

// statusPage feeds the auto-refreshing status template. RedirectURL wins
// over CallbackURL: a finished task sends the browser straight to the
// rendered result.
type statusPage struct {
	TaskID      string
	Status      string
	CallbackURL string
	RedirectURL string
	Error       string
}

func renderHTML(res *metadata.Result) ([]byte, error) {
	page := resultPage{Outcomes: make([]htmlOutcome, 0, len(res.Outcomes))}
	for _, o := range res.Outcomes {
		out := htmlOutcome{Err: o.Error}
		if o.Record != nil {
			out.Kind = string(o.Record.Descriptor.Kind)
			out.Name = o.Record.Descriptor.Name
			out.URL = o.Record.Descriptor.URL
			out.Ref = o.Record.Descriptor.Ref
			out.Source = o.Record.Source
			out.Fields = sortedFields(o.Record.Data)
		}
		page.Outcomes = append(page.Outcomes, out)
	}

	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, "result.html.tmpl", page); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderStatusPage produces the auto-refreshing status callback page. While
// the task is pending or running the page reloads callbackURL every few
// seconds; once the task succeeds it redirects to resultURL.
func RenderStatusPage(t *task.Task, callbackURL, resultURL string) ([]byte, error) {
	page := statusPage{
		TaskID: t.ID,
		Status: string(t.Status),
		Error:  t.Error,
	}
	switch {
	case t.Status == task.StatusSuccess:
		page.RedirectURL = resultURL
	case !t.Status.Terminal():
		page.CallbackURL = callbackURL
	}

	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, "status.html.tmpl", page); err != nil {
		return nil, fmt.Errorf("render status page: %w", err)
	}
	return buf.Bytes(), nil
}

// sortedFields flattens a data map into key-sorted rows with YAML-encoded
// values, so the HTML table is stable across renders.
func sortedFields(data map[string]any) []htmlField {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]htmlField, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, htmlField{Key: k, Value: fieldValue(data[k])})
	}
	return fields
}

func fieldValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimRight(string(data), "\n")
}
