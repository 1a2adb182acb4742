package tool

import (
	"errors"
	"reflect"
	"testing"
)

func argErrCode(t *testing.T, err error) string {
	t.Helper()
	var te *ToolError
	if !errors.As(err, &te) {
		t.Fatalf("error type = %T, want *ToolError", err)
	}
	if te.Kind != KindInvalidArgs {
		t.Fatalf("kind = %s, want InvalidArgs", te.Kind)
	}
	return te.Code
}

func TestArgs_String(t *testing.T) {
	t.Parallel()

	a := Args{"host": "db1", "port": float64(5432)}

	if s, err := a.String("host"); err != nil || s != "db1" {
		t.Errorf("String(host) = %q, %v", s, err)
	}
	if s, err := a.String("missing"); err != nil || s != "" {
		t.Errorf("String(missing) = %q, %v, want empty", s, err)
	}
	if _, err := a.String("port"); argErrCode(t, err) != "arg_type" {
		t.Error("String on a number should be arg_type")
	}
}

func TestArgs_RequiredString(t *testing.T) {
	t.Parallel()

	a := Args{"name": "prod", "empty": ""}

	if s, err := a.RequiredString("name"); err != nil || s != "prod" {
		t.Errorf("RequiredString(name) = %q, %v", s, err)
	}
	if _, err := a.RequiredString("empty"); argErrCode(t, err) != "arg_missing" {
		t.Error("empty required string should be arg_missing")
	}
	if _, err := a.RequiredString("absent"); argErrCode(t, err) != "arg_missing" {
		t.Error("absent required string should be arg_missing")
	}
}

func TestArgs_Int(t *testing.T) {
	t.Parallel()

	a := Args{"limit": float64(50), "frac": 1.5, "word": "ten"}

	if n, err := a.Int("limit", 0); err != nil || n != 50 {
		t.Errorf("Int(limit) = %d, %v", n, err)
	}
	if n, err := a.Int("absent", 7); err != nil || n != 7 {
		t.Errorf("Int(absent) = %d, %v, want default 7", n, err)
	}
	if _, err := a.Int("frac", 0); argErrCode(t, err) != "arg_type" {
		t.Error("fractional number should be arg_type")
	}
	if _, err := a.Int("word", 0); argErrCode(t, err) != "arg_type" {
		t.Error("string should be arg_type")
	}
}

func TestArgs_Bool(t *testing.T) {
	t.Parallel()

	a := Args{"apply": true, "word": "yes"}

	if b, err := a.Bool("apply", false); err != nil || !b {
		t.Errorf("Bool(apply) = %t, %v", b, err)
	}
	if b, err := a.Bool("absent", true); err != nil || !b {
		t.Errorf("Bool(absent) = %t, %v, want default", b, err)
	}
	if _, err := a.Bool("word", false); argErrCode(t, err) != "arg_type" {
		t.Error("string should be arg_type")
	}
}

func TestArgs_StringSlice(t *testing.T) {
	t.Parallel()

	a := Args{
		"tags":  []any{"db", "prod"},
		"one":   "solo",
		"mixed": []any{"ok", 3},
	}

	if got, err := a.StringSlice("tags"); err != nil || !reflect.DeepEqual(got, []string{"db", "prod"}) {
		t.Errorf("StringSlice(tags) = %v, %v", got, err)
	}
	if got, err := a.StringSlice("one"); err != nil || !reflect.DeepEqual(got, []string{"solo"}) {
		t.Errorf("StringSlice(one) = %v, %v, want single-element slice", got, err)
	}
	if got, err := a.StringSlice("absent"); err != nil || got != nil {
		t.Errorf("StringSlice(absent) = %v, %v, want nil", got, err)
	}
	if _, err := a.StringSlice("mixed"); argErrCode(t, err) != "arg_type" {
		t.Error("mixed array should be arg_type")
	}
}

func TestValidateArgs(t *testing.T) {
	t.Parallel()

	schema := []byte(`{
		"type": "object",
		"properties": {"host": {"type": "string"}},
		"required": ["host"]
	}`)

	if err := ValidateArgs(nil, map[string]any{"anything": 1}); err != nil {
		t.Errorf("nil schema should accept everything, got %v", err)
	}
	if err := ValidateArgs(schema, map[string]any{"host": "db1"}); err != nil {
		t.Errorf("valid args rejected: %v", err)
	}
	if err := ValidateArgs(schema, map[string]any{}); argErrCode(t, err) != "schema_violation" {
		t.Error("missing required key should be schema_violation")
	}
	if err := ValidateArgs(schema, nil); argErrCode(t, err) != "schema_violation" {
		t.Error("nil args with required key should be schema_violation")
	}
}
