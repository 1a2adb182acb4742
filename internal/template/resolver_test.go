package template

import (
	"errors"
	"reflect"
	"testing"

	"github.com/opsgate/opsgate/internal/security"
	"github.com/opsgate/opsgate/internal/tool"
)

func testCtx() Context {
	dur := int64(42)
	return Context{
		Input: map[string]any{
			"host":  "db1",
			"count": float64(3),
			"flag":  true,
			"conn":  map[string]any{"port": float64(5432)},
		},
		Steps: map[string]*tool.Envelope{
			"check": {
				Success:    true,
				Tool:       "mcp_http",
				DurationMS: &dur,
				Result:     map[string]any{"status_code": float64(200), "body": "pong"},
			},
		},
		KnownSteps: map[string]bool{"check": true, "later": true},
		Env: func(name string) string {
			switch name {
			case "REGION":
				return "eu-west-1"
			case "DB_PASSWORD":
				return "hunter2-long"
			}
			return ""
		},
		Redactor: security.NewRedactor(),
	}
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	var te *tool.ToolError
	if !errors.As(err, &te) {
		t.Fatalf("error type = %T, want *ToolError", err)
	}
	return te.Code
}

func TestResolveValue_WholeExpressionKeepsType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want any
	}{
		{"string input", "{{ input.host }}", "db1"},
		{"number input", "{{ input.count }}", float64(3)},
		{"bool input", "{{ input.flag }}", true},
		{"nested input", "{{ input.conn.port }}", float64(5432)},
		{"step envelope field", "{{ steps.check.success }}", true},
		{"step result key", "{{ steps.check.status_code }}", float64(200)},
		{"step duration", "{{ steps.check.duration_ms }}", int64(42)},
		{"env", "{{ env.REGION }}", "eu-west-1"},
		{"optional missing", "{{ ?input.absent }}", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ResolveValue(tt.in, testCtx())
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("resolve(%q) = %v (%T), want %v (%T)", tt.in, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestResolveValue_Interpolation(t *testing.T) {
	t.Parallel()

	got, err := ResolveValue("host={{ input.host }} n={{ input.count }} ok={{ steps.check.success }}", testCtx())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "host=db1 n=3 ok=true" {
		t.Errorf("interpolated = %q", got)
	}
}

func TestResolveValue_WalksContainers(t *testing.T) {
	t.Parallel()

	in := map[string]any{
		"url":  "https://{{ input.host }}/health",
		"list": []any{"{{ input.count }}", "plain"},
	}
	got, err := ResolveValue(in, testCtx())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	m := got.(map[string]any)
	if m["url"] != "https://db1/health" {
		t.Errorf("url = %v", m["url"])
	}
	list := m["list"].([]any)
	if list[0] != float64(3) || list[1] != "plain" {
		t.Errorf("list = %v", list)
	}
}

func TestResolveValue_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		code string
	}{
		{"missing input", "{{ input.absent }}", "template_missing_input"},
		{"forward reference", "{{ steps.later.success }}", "template_forward_ref"},
		{"unknown step", "{{ steps.ghost.success }}", "template_missing_step"},
		{"missing step field", "{{ steps.check.absent }}", "template_missing_step"},
		{"unknown root", "{{ nope.x }}", "template_syntax"},
		{"bare input", "{{ input }}", "template_syntax"},
		{"step without field", "{{ steps.check }}", "template_syntax"},
		{"env with path", "{{ env.A.B }}", "template_syntax"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ResolveValue(tt.in, testCtx())
			if err == nil {
				t.Fatalf("resolve(%q) succeeded, want error", tt.in)
			}
			if code := errCode(t, err); code != tt.code {
				t.Errorf("code = %q, want %q", code, tt.code)
			}
		})
	}
}

func TestResolveValue_SecretEnvIsRedacted(t *testing.T) {
	t.Parallel()

	got, err := ResolveValue("{{ env.DB_PASSWORD }}", testCtx())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != security.RedactPlaceholder {
		t.Errorf("secret env = %v, want placeholder", got)
	}
}

func TestResolveValue_ResolvedValuesAreNotRescanned(t *testing.T) {
	t.Parallel()

	ctx := testCtx()
	ctx.Input["tricky"] = "{{ input.host }}"

	got, err := ResolveValue("{{ input.tricky }}", ctx)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "{{ input.host }}" {
		t.Errorf("resolved value was re-scanned: %v", got)
	}
}

func TestResolveValue_NonStringLeavesPassThrough(t *testing.T) {
	t.Parallel()

	got, err := ResolveValue(float64(7), testCtx())
	if err != nil || got != float64(7) {
		t.Errorf("number leaf = %v, %v", got, err)
	}
}
