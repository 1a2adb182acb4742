package tool

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateArgs checks an argument map against a tool's JSON Schema.
// A nil schema accepts everything. Violations map to
// InvalidArgs/schema_violation with each failure listed in the message.
func ValidateArgs(schema []byte, args map[string]any) error {
	if len(schema) == 0 {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return Internal("schema_invalid", "tool schema is not a valid JSON Schema: %s", err.Error())
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return InvalidArgs("schema_violation", "%s", strings.Join(msgs, "; "))
}
