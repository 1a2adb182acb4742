// Package tooltest provides stub handlers, an in-memory audit sink, and
// a fixed clock for executor and handler tests.
package tooltest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/opsgate/opsgate/internal/audit"
	"github.com/opsgate/opsgate/internal/tool"
)

// Stub builds a handler that returns a fixed result.
func Stub(name string, result any) *tool.Func {
	return &tool.Func{
		ToolName: name,
		Desc:     "stub handler " + name,
		Run: func(_ context.Context, _ tool.ResolvedCall) (any, error) {
			return result, nil
		},
	}
}

// StubFunc builds a handler around fn.
func StubFunc(name string, fn func(ctx context.Context, call tool.ResolvedCall) (any, error)) *tool.Func {
	return &tool.Func{ToolName: name, Desc: "stub handler " + name, Run: fn}
}

// StubSchema builds a handler with a fixed result and an input schema.
func StubSchema(name string, schema string, result any) *tool.Func {
	return &tool.Func{
		ToolName:    name,
		Desc:        "stub handler " + name,
		InputSchema: json.RawMessage(schema),
		Run: func(_ context.Context, _ tool.ResolvedCall) (any, error) {
			return result, nil
		},
	}
}

// LocalStub is a stub handler in the local-execution class.
type LocalStub struct {
	tool.Func
}

// NewLocalStub builds a local-class handler returning result.
func NewLocalStub(name string, result any) *LocalStub {
	s := &LocalStub{}
	s.ToolName = name
	s.Desc = "local stub handler " + name
	s.Run = func(_ context.Context, _ tool.ResolvedCall) (any, error) {
		return result, nil
	}
	return s
}

// LocalExecution marks the stub as local-class.
func (s *LocalStub) LocalExecution() bool { return true }

// MemorySink collects audit records in memory. Set Fail to make Append
// return an error for fail-closed tests.
type MemorySink struct {
	mu      sync.Mutex
	records []audit.Record

	Fail bool
}

// Append implements audit.Sink.
func (s *MemorySink) Append(rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return errors.New("sink unavailable")
	}
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy of everything appended so far.
func (s *MemorySink) Records() []audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Record, len(s.records))
	copy(out, s.records)
	return out
}

// Last returns the most recent record, or false when none was appended.
func (s *MemorySink) Last() (audit.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return audit.Record{}, false
	}
	return s.records[len(s.records)-1], true
}

// Clock is a fixed test clock advanced manually.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at a stable instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
