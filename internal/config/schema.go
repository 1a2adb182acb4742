// Package config handles YAML configuration loading, environment
// variable expansion, and structural validation for opsgate.
package config

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// DataDir is the root for catalogs, profiles, artifacts, audit logs,
	// and the state database. Defaults to the XDG data directory.
	DataDir string `yaml:"data_dir,omitempty"`

	Logging  LoggingConfig  `yaml:"logging,omitempty"`
	Security SecurityConfig `yaml:"security,omitempty"`
	Policy   PolicyConfig   `yaml:"policy,omitempty"`
	Executor ExecutorConfig `yaml:"executor,omitempty"`

	// Aliases maps alternate tool names onto canonical ones.
	Aliases map[string]string `yaml:"aliases,omitempty"`

	// Presets fill missing arguments for a tool, optionally per action.
	Presets []PresetConfig `yaml:"presets,omitempty"`

	Retention *RetentionConfig `yaml:"retention,omitempty"`

	// DiagAddr enables the diagnostics HTTP listener when non-empty.
	// Also settable through OPSGATE_DIAG_ADDR.
	DiagAddr string `yaml:"diag_addr,omitempty"`
}

// LoggingConfig controls the slog output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level,omitempty"`
}

// SecurityConfig extends the redaction rules.
type SecurityConfig struct {
	// SecretKeys appends key-name substrings to the built-in redaction
	// list (password, token, secret, api_key, authorization, cookie,
	// private_key, passphrase).
	SecretKeys []string `yaml:"secret_keys,omitempty"`
}

// PolicyConfig tunes the policy gate. The environment switches
// INFRA_UNSAFE_LOCAL and INFRA_ALLOW_SECRET_EXPORT stay authoritative
// for the two capability gates.
type PolicyConfig struct {
	// MaxRecursionDepth caps nested dispatch. Defaults to 4.
	MaxRecursionDepth int `yaml:"max_recursion_depth,omitempty"`
}

// ExecutorConfig tunes result capture bounds.
type ExecutorConfig struct {
	MaxEnvelopeBytes int `yaml:"max_envelope_bytes,omitempty"`
	MaxInlineBytes   int `yaml:"max_inline_bytes,omitempty"`
	MaxSpills        int `yaml:"max_spills,omitempty"`
}

// PresetConfig is one argument overlay.
type PresetConfig struct {
	// Tool is the canonical tool or an alias.
	Tool string `yaml:"tool"`

	// Action scopes the preset to one action when set.
	Action string `yaml:"action,omitempty"`

	// Args are filled into calls that omit them.
	Args map[string]any `yaml:"args"`
}

// RetentionConfig drives the artifact garbage collector.
type RetentionConfig struct {
	// Schedule is a cron expression. Defaults to "0 3 * * *".
	Schedule string `yaml:"schedule,omitempty"`

	// MaxAge maps artifact kinds to Go duration strings.
	MaxAge map[string]string `yaml:"max_age,omitempty"`
}
