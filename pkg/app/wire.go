package app

import (
	"log/slog"
	"os"

	"github.com/opsgate/opsgate/internal/artifact"
	"github.com/opsgate/opsgate/internal/audit"
	"github.com/opsgate/opsgate/internal/config"
	"github.com/opsgate/opsgate/internal/diag"
	"github.com/opsgate/opsgate/internal/executor"
	"github.com/opsgate/opsgate/internal/handlers/admin"
	"github.com/opsgate/opsgate/internal/handlers/echo"
	"github.com/opsgate/opsgate/internal/handlers/helpx"
	"github.com/opsgate/opsgate/internal/handlers/httpx"
	"github.com/opsgate/opsgate/internal/handlers/localx"
	"github.com/opsgate/opsgate/internal/handlers/pipeline"
	"github.com/opsgate/opsgate/internal/handlers/postgres"
	"github.com/opsgate/opsgate/internal/handlers/sshx"
	"github.com/opsgate/opsgate/internal/intent"
	"github.com/opsgate/opsgate/internal/policy"
	"github.com/opsgate/opsgate/internal/profile"
	"github.com/opsgate/opsgate/internal/runbook"
	"github.com/opsgate/opsgate/internal/security"
	"github.com/opsgate/opsgate/internal/state"
	"github.com/opsgate/opsgate/internal/tool"
)

// defaultAliases are always available; config aliases add to them.
var defaultAliases = map[string]string{
	"ssh":   "mcp_ssh",
	"http":  "mcp_http",
	"pg":    "mcp_postgres",
	"psql":  "mcp_postgres",
	"local": "mcp_local",
	"help":  "mcp_help",
}

type wireDeps struct {
	cfg      *config.Config
	gate     *policy.Gate
	sink     audit.Sink
	arts     *artifact.Store
	states   *state.Store
	profiles *profile.Store
	runbooks *runbook.Catalog
	caps     *intent.CapCatalog
	redactor *security.Redactor
	logger   *slog.Logger
	metrics  *diag.Metrics
}

// wire registers every handler, applies aliases and presets, and
// returns the registry with its executor. The runbook engine dispatches
// back through the executor, so both engines are built against it.
func wire(d wireDeps) (*tool.Registry, *executor.Executor, error) {
	registry := tool.NewRegistry()

	exec := executor.New(executor.Config{
		Registry:         registry,
		Gate:             d.gate,
		Audit:            d.sink,
		Artifacts:        d.arts,
		Redactor:         d.redactor,
		Logger:           d.logger,
		Metrics:          d.metrics,
		MaxEnvelopeBytes: d.cfg.Executor.MaxEnvelopeBytes,
		MaxInlineBytes:   d.cfg.Executor.MaxInlineBytes,
		MaxSpills:        d.cfg.Executor.MaxSpills,
	})

	rbEngine := runbook.NewEngine(runbook.EngineConfig{
		Dispatcher: exec,
		Artifacts:  d.arts,
		State:      d.states,
		Redactor:   d.redactor,
		Logger:     d.logger,
		Env:        os.Getenv,
	})
	intentEngine := intent.NewEngine(d.caps, d.runbooks, rbEngine)

	handlers := []tool.Handler{
		echo.New(),
		helpx.New(registry),
		admin.NewRunbookHandler(d.runbooks, rbEngine),
		admin.NewIntentHandler(intentEngine),
		admin.NewCapabilityHandler(d.caps),
		admin.NewProfileHandler(d.profiles, d.gate),
		admin.NewArtifactHandler(d.arts),
		admin.NewAuditHandler(d.states),
		admin.NewRunsHandler(d.states),
		sshx.New(d.profiles),
		httpx.New(d.profiles),
		postgres.New(d.profiles),
		localx.New(),
		pipeline.New(d.arts, d.profiles),
	}
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			return nil, nil, err
		}
	}

	for alias, target := range defaultAliases {
		if err := registry.Alias(alias, target); err != nil {
			return nil, nil, err
		}
	}
	for alias, target := range d.cfg.Aliases {
		if err := registry.Alias(alias, registry.Canonical(target)); err != nil {
			return nil, nil, err
		}
	}
	for _, preset := range d.cfg.Presets {
		canonical := registry.Canonical(preset.Tool)
		if err := registry.Preset(canonical, preset.Action, preset.Args); err != nil {
			return nil, nil, err
		}
	}

	return registry, exec, nil
}
