package tool

import (
	"context"
	"encoding/json"
)

// Handler executes one tool. Implementations receive the fully resolved
// call and return a JSON-marshalable result or a *ToolError.
// The context carries the effective deadline; handlers must honour it at
// every blocking operation.
type Handler interface {
	// Name is the canonical tool name.
	Name() string

	// Description is a one-line summary shown in catalogs.
	Description() string

	// Schema returns the JSON Schema for the arguments map, or nil when
	// the tool accepts free-form arguments.
	Schema() json.RawMessage

	// Execute runs the tool and materialises the full result before
	// returning. It must not retain call.Args.
	Execute(ctx context.Context, call ResolvedCall) (any, error)
}

// Exampler is implemented by handlers that publish a concrete example
// payload for the help surface.
type Exampler interface {
	Example() map[string]any
}

// LocalClass is implemented by handlers in the local-execution class.
// These are refused unless the unsafe-local gate is open.
type LocalClass interface {
	LocalExecution() bool
}

// SecretCarrier is implemented by handlers whose results may carry raw
// secret material on specific calls. The executor skips result
// redaction only for calls the handler reports, and only while the
// secret-export gate is open.
type SecretCarrier interface {
	CarriesSecrets(call ResolvedCall) bool
}

// Func adapts a function to the Handler interface for small built-ins.
type Func struct {
	ToolName    string
	Desc        string
	InputSchema json.RawMessage
	Run         func(ctx context.Context, call ResolvedCall) (any, error)
}

func (f *Func) Name() string                { return f.ToolName }
func (f *Func) Description() string         { return f.Desc }
func (f *Func) Schema() json.RawMessage     { return f.InputSchema }
func (f *Func) Execute(ctx context.Context, call ResolvedCall) (any, error) {
	return f.Run(ctx, call)
}
