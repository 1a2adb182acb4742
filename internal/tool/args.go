package tool

import (
	"encoding/json"
	"math"
)

// Args wraps a free-form argument map with typed accessors. Each accessor
// returns an InvalidArgs error on a type mismatch so handlers can convert
// loose JSON into concrete request values without reflection.
type Args map[string]any

// String returns the string at key, or "" when absent.
func (a Args) String(key string) (string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", InvalidArgs("arg_type", "argument %q must be a string", key)
	}
	return s, nil
}

// RequiredString returns the string at key, failing when absent or empty.
func (a Args) RequiredString(key string) (string, error) {
	s, err := a.String(key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", InvalidArgs("arg_missing", "argument %q is required", key)
	}
	return s, nil
}

// Int returns the integer at key, or def when absent. JSON numbers arrive
// as float64; a fractional value is a mismatch.
func (a Args) Int(key string, def int) (int, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, InvalidArgs("arg_type", "argument %q must be an integer", key)
		}
		return int(n), nil
	case int:
		return n, nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, InvalidArgs("arg_type", "argument %q must be an integer", key)
		}
		return int(i), nil
	}
	return 0, InvalidArgs("arg_type", "argument %q must be an integer", key)
}

// Bool returns the boolean at key, or def when absent.
func (a Args) Bool(key string, def bool) (bool, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, InvalidArgs("arg_type", "argument %q must be a boolean", key)
	}
	return b, nil
}

// Map returns the object at key, or nil when absent.
func (a Args) Map(key string) (map[string]any, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, InvalidArgs("arg_type", "argument %q must be an object", key)
	}
	return m, nil
}

// StringSlice returns the array of strings at key, or nil when absent.
// A bare string is accepted as a one-element slice.
func (a Args) StringSlice(key string) ([]string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		return []string{s}, nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, InvalidArgs("arg_type", "argument %q must be an array of strings", key)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, InvalidArgs("arg_type", "argument %q must be an array of strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}
