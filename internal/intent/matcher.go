// Package intent routes high-level intents onto runbook plans through
// the capability catalog.
package intent

import (
	"strings"

	"github.com/opsgate/opsgate/internal/tool"
)

// Matches evaluates a capability predicate against an intent input.
// An empty predicate matches everything. Supported forms:
//
//	{"equals": {"field": value}}
//	{"in": {"field": [v1, v2]}}
//	{"contains": {"field": "substr"}}
//	{"tags_any": ["a", "b"]}  / {"tags_all": ["a", "b"]}
//	{"all_of": [pred...]} / {"any_of": [pred...]} / {"not": pred}
//
// Clauses combined in one object must all hold.
func Matches(pred map[string]any, input map[string]any) (bool, error) {
	if len(pred) == 0 {
		return true, nil
	}
	for op, operand := range pred {
		ok, err := matchClause(op, operand, input)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchClause(op string, operand any, input map[string]any) (bool, error) {
	switch op {
	case "equals":
		fields, err := asObject(op, operand)
		if err != nil {
			return false, err
		}
		for field, want := range fields {
			if !looseEqual(input[field], want) {
				return false, nil
			}
		}
		return true, nil

	case "in":
		fields, err := asObject(op, operand)
		if err != nil {
			return false, err
		}
		for field, wantAny := range fields {
			want, ok := wantAny.([]any)
			if !ok {
				return false, tool.InvalidArgs("capability_invalid", "in predicate on %q needs an array", field)
			}
			have := input[field]
			found := false
			for _, w := range want {
				if looseEqual(have, w) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		}
		return true, nil

	case "contains":
		fields, err := asObject(op, operand)
		if err != nil {
			return false, err
		}
		for field, wantAny := range fields {
			want, ok := wantAny.(string)
			if !ok {
				return false, tool.InvalidArgs("capability_invalid", "contains predicate on %q needs a string", field)
			}
			have, ok := input[field].(string)
			if !ok || !strings.Contains(have, want) {
				return false, nil
			}
		}
		return true, nil

	case "tags_any":
		want, err := asStrings(op, operand)
		if err != nil {
			return false, err
		}
		have := inputTags(input)
		for _, w := range want {
			if have[w] {
				return true, nil
			}
		}
		return false, nil

	case "tags_all":
		want, err := asStrings(op, operand)
		if err != nil {
			return false, err
		}
		have := inputTags(input)
		for _, w := range want {
			if !have[w] {
				return false, nil
			}
		}
		return true, nil

	case "all_of":
		preds, err := asPredicates(op, operand)
		if err != nil {
			return false, err
		}
		for _, p := range preds {
			ok, err := Matches(p, input)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case "any_of":
		preds, err := asPredicates(op, operand)
		if err != nil {
			return false, err
		}
		for _, p := range preds {
			ok, err := Matches(p, input)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case "not":
		p, err := asObject(op, operand)
		if err != nil {
			return false, err
		}
		ok, err := Matches(p, input)
		return !ok, err

	default:
		return false, tool.InvalidArgs("capability_invalid", "unknown predicate operator %q", op)
	}
}

func asObject(op string, v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, tool.InvalidArgs("capability_invalid", "%s predicate needs an object", op)
	}
	return m, nil
}

func asPredicates(op string, v any) ([]map[string]any, error) {
	raw, ok := v.([]any)
	if !ok {
		return nil, tool.InvalidArgs("capability_invalid", "%s predicate needs an array", op)
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, tool.InvalidArgs("capability_invalid", "%s predicate entries must be objects", op)
		}
		out = append(out, m)
	}
	return out, nil
}

func asStrings(op string, v any) ([]string, error) {
	raw, ok := v.([]any)
	if !ok {
		return nil, tool.InvalidArgs("capability_invalid", "%s predicate needs an array of strings", op)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, tool.InvalidArgs("capability_invalid", "%s predicate needs an array of strings", op)
		}
		out = append(out, s)
	}
	return out, nil
}

func inputTags(input map[string]any) map[string]bool {
	out := map[string]bool{}
	raw, ok := input["tags"].([]any)
	if !ok {
		return out
	}
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out[s] = true
		}
	}
	return out
}

func looseEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
