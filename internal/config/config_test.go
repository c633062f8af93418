package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPlainValues(t *testing.T) {
	t.Setenv("RULECORE_DB", "")
	t.Setenv("RULECORE_LOG_LEVEL", "info")
	t.Setenv("RULECORE_FORMAT", "text")
	t.Setenv("RULECORE_PARALLEL", "4")
	t.Setenv("RULECORE_MAX_CYCLES", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Config{LogLevel: "info", Format: "text", Parallel: 4}, cfg)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RULECORE_DB", "/tmp/trace.db")
	t.Setenv("RULECORE_LOG_LEVEL", "debug")
	t.Setenv("RULECORE_FORMAT", "json")
	t.Setenv("RULECORE_PARALLEL", "8")
	t.Setenv("RULECORE_MAX_CYCLES", "50")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/trace.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, 8, cfg.Parallel)
	assert.Equal(t, 50, cfg.MaxCycles)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"not a number", "RULECORE_PARALLEL", "many", "parse env"},
		{"zero parallel", "RULECORE_PARALLEL", "0", "parallel must be at least 1"},
		{"bad format", "RULECORE_FORMAT", "xml", `invalid format "xml"`},
		{"bad level", "RULECORE_LOG_LEVEL", "loud", `invalid log level "loud"`},
		{"negative cycles", "RULECORE_MAX_CYCLES", "-1", "max cycles must be non-negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("RULECORE_PARALLEL", "4")
			t.Setenv("RULECORE_FORMAT", "text")
			t.Setenv("RULECORE_LOG_LEVEL", "info")
			t.Setenv("RULECORE_MAX_CYCLES", "0")
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for name, want := range tests {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
}
