// Package template interpolates {{ input.x }}, {{ steps.id.field }}, and
// {{ env.NAME }} expressions inside runbook step arguments.
package template

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/opsgate/opsgate/internal/security"
	"github.com/opsgate/opsgate/internal/tool"
)

var (
	exprPattern  = regexp.MustCompile(`\{\{\s*(\??)\s*([A-Za-z_][A-Za-z0-9_-]*(?:\.[A-Za-z_][A-Za-z0-9_-]*)*)\s*\}\}`)
	wholePattern = regexp.MustCompile(`^\{\{\s*(\??)\s*([A-Za-z_][A-Za-z0-9_-]*(?:\.[A-Za-z_][A-Za-z0-9_-]*)*)\s*\}\}$`)
)

// Context supplies the three template roots. KnownSteps lists every step
// id of the runbook so references to later steps are reported as forward
// references rather than missing ones.
type Context struct {
	Input      map[string]any
	Steps      map[string]*tool.Envelope
	KnownSteps map[string]bool
	Env        func(string) string
	Redactor   *security.Redactor
}

func (c Context) getenv(name string) string {
	get := c.Env
	if get == nil {
		get = os.Getenv
	}
	v := get(name)
	if v != "" && c.Redactor != nil && c.Redactor.SecretKey(name) {
		return security.RedactPlaceholder
	}
	return v
}

// ResolveValue walks a JSON value tree and substitutes every template
// expression. A string that is exactly one expression preserves the
// resolved value's JSON type; otherwise resolved values are
// string-coerced and interpolated. Resolved values are never re-scanned.
func ResolveValue(v any, ctx Context) (any, error) {
	switch val := v.(type) {
	case string:
		return resolveString(val, ctx)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := ResolveValue(item, ctx)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := ResolveValue(item, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func resolveString(s string, ctx Context) (any, error) {
	if m := wholePattern.FindStringSubmatch(s); m != nil {
		return lookup(m[2], m[1] == "?", ctx)
	}
	var firstErr error
	out := exprPattern.ReplaceAllStringFunc(s, func(match string) string {
		m := exprPattern.FindStringSubmatch(match)
		v, err := lookup(m[2], m[1] == "?", ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return match
		}
		return coerce(v)
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// lookup resolves a dotted path. Optional expressions resolve missing
// values to nil instead of erroring.
func lookup(path string, optional bool, ctx Context) (any, error) {
	parts := strings.Split(path, ".")
	root, rest := parts[0], parts[1:]

	switch root {
	case "input":
		if len(rest) == 0 {
			return nil, tool.InvalidArgs("template_syntax", "input reference needs a key: {{ %s }}", path)
		}
		v, ok := ctx.Input[rest[0]]
		if !ok {
			if optional {
				return nil, nil
			}
			return nil, tool.InvalidArgs("template_missing_input", "runbook input %q is not set", rest[0])
		}
		return descend(v, rest[1:], path)

	case "steps":
		if len(rest) < 2 {
			return nil, tool.InvalidArgs("template_syntax", "step reference needs an id and a field: {{ %s }}", path)
		}
		id := rest[0]
		env, ok := ctx.Steps[id]
		if !ok {
			if optional {
				return nil, nil
			}
			if ctx.KnownSteps[id] {
				return nil, tool.InvalidArgs("template_forward_ref", "step %q has not executed yet", id)
			}
			return nil, tool.InvalidArgs("template_missing_step", "no step with id %q", id)
		}
		v, ok := env.Field(rest[1])
		if !ok {
			if optional {
				return nil, nil
			}
			return nil, tool.InvalidArgs("template_missing_step", "step %q has no field %q", id, rest[1])
		}
		return descend(v, rest[2:], path)

	case "env":
		if len(rest) != 1 {
			return nil, tool.InvalidArgs("template_syntax", "env reference takes one name: {{ %s }}", path)
		}
		return ctx.getenv(rest[0]), nil

	default:
		return nil, tool.InvalidArgs("template_syntax", "unknown template root %q in {{ %s }}", root, path)
	}
}

func descend(v any, parts []string, full string) (any, error) {
	for _, p := range parts {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, tool.InvalidArgs("template_missing_step", "cannot descend into %q at %q", full, p)
		}
		v, ok = m[p]
		if !ok {
			return nil, tool.InvalidArgs("template_missing_step", "no value at %q in {{ %s }}", p, full)
		}
	}
	return v, nil
}

// coerce renders a resolved value for interpolation into a larger string.
func coerce(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return fmt.Sprintf("%t", val)
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case int, int64:
		return fmt.Sprintf("%d", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
