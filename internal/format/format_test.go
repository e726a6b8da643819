package format

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/teemtee/tmtweb/internal/domain/metadata"
	"github.com/teemtee/tmtweb/internal/domain/task"
)

func sampleResult() *metadata.Result {
	return &metadata.Result{
		Outcomes: []metadata.Outcome{
			{
				Record: &metadata.Record{
					Descriptor: metadata.Descriptor{
						Kind: metadata.KindTest,
						URL:  "https://example.com/repo",
						Ref:  "main",
						Name: "/tests/smoke",
					},
					Data: map[string]any{
						"summary":  "Smoke test",
						"duration": "5m",
						"tag":      []any{"core", "smoke"},
						"adjust":   map[string]any{"when": "arch == s390x", "enabled": false},
					},
					Source: "tests/smoke.fmf",
				},
			},
			{
				Error: &metadata.ExtractionError{
					Kind:    metadata.ErrKindObjectMissing,
					Message: "test '/tests/missing' not found",
				},
			},
		},
	}
}

func TestParseRepresentation(t *testing.T) {
	tests := []struct {
		in      string
		want    Representation
		wantErr bool
	}{
		{"", RepJSON, false},
		{"json", RepJSON, false},
		{"yaml", RepYAML, false},
		{"html", RepHTML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRepresentation(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseRepresentation(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRepresentation(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRepresentation(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderJSON(t *testing.T) {
	data, err := Render(sampleResult(), RepJSON)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	var decoded metadata.Result
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(decoded.Outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(decoded.Outcomes))
	}
	if decoded.Outcomes[0].Record == nil || decoded.Outcomes[0].Record.Data["summary"] != "Smoke test" {
		t.Error("first outcome lost its record data")
	}
	if decoded.Outcomes[1].Error == nil || decoded.Outcomes[1].Error.Kind != metadata.ErrKindObjectMissing {
		t.Error("second outcome lost its error")
	}
}

func TestRenderYAML(t *testing.T) {
	data, err := Render(sampleResult(), RepYAML)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	out := string(data)
	for _, want := range []string{"outcomes:", "summary: Smoke test", "source: tests/smoke.fmf", "kind: object-not-found"} {
		if !strings.Contains(out, want) {
			t.Errorf("yaml output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "record: null") {
		t.Errorf("yaml output renders empty record explicitly:\n%s", out)
	}
}

func TestRenderHTML(t *testing.T) {
	data, err := Render(sampleResult(), RepHTML)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	out := string(data)
	for _, want := range []string{
		"test /tests/smoke",
		"https://example.com/repo",
		"tests/smoke.fmf",
		"Smoke test",
		"object-not-found",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("html output missing %q", want)
		}
	}

	// Table rows must come out key-sorted.
	if strings.Index(out, "adjust") > strings.Index(out, "summary") {
		t.Error("html fields are not sorted by key")
	}
}

func TestRenderDeterministic(t *testing.T) {
	for _, rep := range []Representation{RepJSON, RepYAML, RepHTML} {
		first, err := Render(sampleResult(), rep)
		if err != nil {
			t.Fatalf("Render(%s): %v", rep, err)
		}
		for range 10 {
			again, err := Render(sampleResult(), rep)
			if err != nil {
				t.Fatalf("Render(%s): %v", rep, err)
			}
			if !bytes.Equal(first, again) {
				t.Fatalf("Render(%s) is not deterministic", rep)
			}
		}
	}
}

func TestRenderStatusPagePending(t *testing.T) {
	page, err := RenderStatusPage(
		&task.Task{ID: "abc", Status: task.StatusPending},
		"/status/html?task-id=abc", "/tasks/abc/result?format=html",
	)
	if err != nil {
		t.Fatalf("RenderStatusPage: %v", err)
	}

	out := string(page)
	if !strings.Contains(out, `http-equiv="refresh"`) {
		t.Error("pending page does not auto-refresh")
	}
	if !strings.Contains(out, "/status/html?task-id=abc") {
		t.Error("pending page does not point at the status callback")
	}
}

func TestRenderStatusPageSuccessRedirects(t *testing.T) {
	page, err := RenderStatusPage(
		&task.Task{ID: "abc", Status: task.StatusSuccess},
		"/status/html?task-id=abc", "/tasks/abc/result?format=html",
	)
	if err != nil {
		t.Fatalf("RenderStatusPage: %v", err)
	}

	out := string(page)
	if !strings.Contains(out, "/tasks/abc/result?format=html") {
		t.Error("success page does not redirect to the result")
	}
	if !strings.Contains(out, `content="0;`) {
		t.Error("success page should redirect immediately")
	}
}

func TestRenderStatusPageFailureShowsError(t *testing.T) {
	page, err := RenderStatusPage(
		&task.Task{ID: "abc", Status: task.StatusFailure, Error: "all descriptors failed"},
		"/status/html?task-id=abc", "/tasks/abc/result?format=html",
	)
	if err != nil {
		t.Fatalf("RenderStatusPage: %v", err)
	}

	out := string(page)
	if strings.Contains(out, `http-equiv="refresh"`) {
		t.Error("terminal failure page should not refresh")
	}
	if !strings.Contains(out, "all descriptors failed") {
		t.Error("failure page does not show the task error")
	}
}

func TestRenderNilResult(t *testing.T) {
	if _, err := Render(nil, RepJSON); err == nil {
		t.Error("expected error for nil result")
	}
}
