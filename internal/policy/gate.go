// Package policy evaluates the process-wide safety flags before any
// handler dispatch.
package policy

import (
	"os"
	"time"

	"github.com/opsgate/opsgate/internal/tool"
)

// DefaultMaxDepth bounds composite-tool re-entry.
const DefaultMaxDepth = 4

// Gate holds the process-wide safety flags. Frozen after startup.
type Gate struct {
	UnsafeLocal       bool
	AllowSecretExport bool
	MaxDepth          int
}

// FromEnv builds a gate from INFRA_UNSAFE_LOCAL and
// INFRA_ALLOW_SECRET_EXPORT.
func FromEnv() *Gate {
	return &Gate{
		UnsafeLocal:       os.Getenv("INFRA_UNSAFE_LOCAL") == "1",
		AllowSecretExport: os.Getenv("INFRA_ALLOW_SECRET_EXPORT") == "1",
		MaxDepth:          DefaultMaxDepth,
	}
}

// Check runs after alias and preset resolution and before dispatch.
// It refuses local-execution handlers when the unsafe-local flag is off,
// bounds re-entry depth, and fails already-expired deadlines before any
// work happens.
func (g *Gate) Check(call tool.ResolvedCall, h tool.Handler, now time.Time) error {
	if !call.Deadline.IsZero() && !now.Before(call.Deadline) {
		return tool.Timeout("deadline_exceeded", "deadline already exceeded before dispatch")
	}

	maxDepth := g.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if call.Depth > maxDepth {
		return tool.Policy("recursion_depth", "composite re-entry depth %d exceeds limit %d", call.Depth, maxDepth)
	}

	if lc, ok := h.(tool.LocalClass); ok && lc.LocalExecution() && !g.UnsafeLocal {
		return tool.Policy("unsafe_local_disabled",
			"local execution tools are disabled").WithHint("set INFRA_UNSAFE_LOCAL=1 to enable")
	}
	return nil
}

// SecretExportAllowed reports whether profile exports may include
// secret material.
func (g *Gate) SecretExportAllowed() bool {
	return g.AllowSecretExport
}
