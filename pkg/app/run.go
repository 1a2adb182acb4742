// Package app provides the shared entry point for the opsgate binary.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/opsgate/opsgate/internal/artifact"
	"github.com/opsgate/opsgate/internal/audit"
	"github.com/opsgate/opsgate/internal/config"
	"github.com/opsgate/opsgate/internal/diag"
	"github.com/opsgate/opsgate/internal/gateway"
	"github.com/opsgate/opsgate/internal/intent"
	"github.com/opsgate/opsgate/internal/policy"
	"github.com/opsgate/opsgate/internal/profile"
	"github.com/opsgate/opsgate/internal/runbook"
	"github.com/opsgate/opsgate/internal/security"
	"github.com/opsgate/opsgate/internal/state"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is consulted; a missing file falls
	// back to built-in defaults.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// LogLevel sets the minimum log level. Defaults to slog.LevelInfo.
	LogLevel slog.Level
}

// Run wires every component and serves MCP on stdio until the client
// closes the stream.
func Run(params RunParams) error {
	cfg, err := loadConfig(params.ConfigPath)
	if err != nil {
		return err
	}

	redactor := security.NewRedactor(cfg.Security.SecretKeys...)

	// Logs go to stderr; stdout belongs to the protocol.
	innerHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg, params.LogLevel),
	})
	logger := slog.New(security.NewRedactingHandler(innerHandler, redactor))

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = cfg.DataDir
	}
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	artifacts, err := artifact.NewStore(filepath.Join(dataDir, "artifacts"))
	if err != nil {
		return err
	}
	states, err := state.Open(filepath.Join(dataDir, "state.db"))
	if err != nil {
		return err
	}
	defer states.Close()

	sink, err := audit.NewFileSink(audit.FileSinkConfig{
		Dir:      filepath.Join(dataDir, "audit"),
		Redactor: redactor,
		Indexer:  states,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	profiles, err := profile.NewStore(filepath.Join(dataDir, "profiles"), redactor)
	if err != nil {
		return err
	}
	runbooks, err := runbook.LoadCatalog(filepath.Join(dataDir, "runbooks.json"))
	if err != nil {
		return err
	}
	caps, err := intent.LoadCapCatalog(filepath.Join(dataDir, "capabilities.json"))
	if err != nil {
		return err
	}

	gate := policy.FromEnv()
	if cfg.Policy.MaxRecursionDepth > 0 {
		gate.MaxDepth = cfg.Policy.MaxRecursionDepth
	}

	metrics := diag.NewMetrics()

	registry, exec, err := wire(wireDeps{
		cfg:      cfg,
		gate:     gate,
		sink:     sink,
		arts:     artifacts,
		states:   states,
		profiles: profiles,
		runbooks: runbooks,
		caps:     caps,
		redactor: redactor,
		logger:   logger,
		metrics:  metrics,
	})
	if err != nil {
		return err
	}
	registry.Freeze()

	if addr := diagAddr(cfg); addr != "" {
		srv := diag.NewServer(addr, metrics, logger)
		srv.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			srv.Stop(ctx)
		}()
	}

	if cfg.Retention != nil {
		collector := artifact.NewCollector(artifacts, retentionPolicy(cfg.Retention), logger)
		if err := collector.Start(); err != nil {
			return err
		}
		defer collector.Stop()
	}

	gw := gateway.New(exec, params.Version, logger)
	logger.Info("opsgate starting", "version", params.Version, "data_dir", dataDir)
	return gw.Serve()
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return config.Default(), nil
		}
		path = resolved
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func logLevel(cfg *config.Config, fallback slog.Level) slog.Level {
	switch cfg.Logging.Level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return fallback
}

func diagAddr(cfg *config.Config) string {
	if addr := os.Getenv("OPSGATE_DIAG_ADDR"); addr != "" {
		return addr
	}
	return cfg.DiagAddr
}

func retentionPolicy(rc *config.RetentionConfig) artifact.RetentionPolicy {
	policy := artifact.RetentionPolicy{
		Schedule: rc.Schedule,
		MaxAge:   map[string]time.Duration{},
	}
	if policy.Schedule == "" {
		policy.Schedule = "0 3 * * *"
	}
	for kind, raw := range rc.MaxAge {
		d, err := time.ParseDuration(raw)
		if err != nil {
			continue
		}
		policy.MaxAge[kind] = d
	}
	return policy
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/opsgate/opsgate.yaml →
// ~/.config/opsgate/opsgate.yaml → ./opsgate.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "opsgate", "opsgate.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "opsgate", "opsgate.yaml"))
	}

	candidates = append(candidates, "opsgate.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/opsgate if set, otherwise ~/.local/share/opsgate.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "opsgate")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "opsgate")
}
