package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func(mutate func(*Config)) *Config {
		cfg := &Config{
			Version: "1",
			Logging: LoggingConfig{Level: "info"},
			Aliases: map[string]string{"ssh": "mcp_ssh"},
			Presets: []PresetConfig{
				{Tool: "mcp_http", Args: map[string]any{"timeout_ms": 5000}},
			},
			Retention: &RetentionConfig{MaxAge: map[string]string{"calls": "168h"}},
		}
		if mutate != nil {
			mutate(cfg)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", nil, ""},
		{"missing version", func(c *Config) { c.Version = "" }, "version field is required"},
		{"unsupported version", func(c *Config) { c.Version = "2" }, "unsupported version"},
		{"bad logging level", func(c *Config) { c.Logging.Level = "verbose" }, "unknown logging level"},
		{"negative depth", func(c *Config) { c.Policy.MaxRecursionDepth = -1 }, "must not be negative"},
		{"negative executor bound", func(c *Config) { c.Executor.MaxSpills = -1 }, "executor bounds"},
		{"empty alias target", func(c *Config) { c.Aliases = map[string]string{"x": ""} }, "non-empty target"},
		{"self alias", func(c *Config) { c.Aliases = map[string]string{"x": "x"} }, "points at itself"},
		{"preset without tool", func(c *Config) { c.Presets[0].Tool = "" }, "tool is required"},
		{"preset without args", func(c *Config) { c.Presets[0].Args = nil }, "args must not be empty"},
		{"bad retention duration", func(c *Config) { c.Retention.MaxAge["calls"] = "soon" }, "retention.max_age[calls]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(valid(tt.mutate))
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Version: "3",
		Logging: LoggingConfig{Level: "loud"},
		Policy:  PolicyConfig{MaxRecursionDepth: -2},
	}
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported version")
	assert.Contains(t, err.Error(), "unknown logging level")
	assert.Contains(t, err.Error(), "must not be negative")
}
