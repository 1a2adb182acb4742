package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate checks the structural validity of a Config. It verifies the
// version field, logging level, alias and preset shapes, and retention
// durations.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: unknown logging level %q", cfg.Logging.Level))
	}

	if cfg.Policy.MaxRecursionDepth < 0 {
		errs = append(errs, errors.New("config: policy.max_recursion_depth must not be negative"))
	}
	if cfg.Executor.MaxEnvelopeBytes < 0 || cfg.Executor.MaxInlineBytes < 0 || cfg.Executor.MaxSpills < 0 {
		errs = append(errs, errors.New("config: executor bounds must not be negative"))
	}

	for alias, target := range cfg.Aliases {
		if alias == "" || target == "" {
			errs = append(errs, errors.New("config: aliases must map a non-empty name to a non-empty target"))
		}
		if alias == target {
			errs = append(errs, fmt.Errorf("config: alias %q points at itself", alias))
		}
	}

	for i, preset := range cfg.Presets {
		if preset.Tool == "" {
			errs = append(errs, fmt.Errorf("config: presets[%d]: tool is required", i))
		}
		if len(preset.Args) == 0 {
			errs = append(errs, fmt.Errorf("config: presets[%d]: args must not be empty", i))
		}
	}

	if cfg.Retention != nil {
		for kind, raw := range cfg.Retention.MaxAge {
			if _, err := time.ParseDuration(raw); err != nil {
				errs = append(errs, fmt.Errorf("config: retention.max_age[%s]: %w", kind, err))
			}
		}
	}

	return errors.Join(errs...)
}
