package log

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv(EnvLevel, "")
		t.Setenv(EnvFormat, "")
		t.Setenv(EnvOutput, "")
		t.Setenv(EnvMode, "")

		cfg := NewConfigFromEnv()
		assert.Equal(t, "info", cfg.Level)
		assert.Equal(t, "console", cfg.Format)
		assert.Equal(t, "stdout", cfg.Output)
	})

	t.Run("development overrides level", func(t *testing.T) {
		t.Setenv(EnvMode, "development")
		t.Setenv(EnvLevel, "error")
		t.Setenv(EnvFormat, "json")

		cfg := NewConfigFromEnv()
		assert.Equal(t, "debug", cfg.Level)
		assert.Equal(t, "json", cfg.Format)
		assert.True(t, cfg.AddSource)
	})

	t.Run("file output", func(t *testing.T) {
		t.Setenv(EnvMode, "")
		t.Setenv(EnvOutput, "file:/var/log/nodegate.log")

		cfg := NewConfigFromEnv()
		assert.Equal(t, "/var/log/nodegate.log", cfg.outputPath())
	})
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("NODEGATE_TEST_BOOL", "invalid")
	assert.True(t, getEnvBool("NODEGATE_TEST_BOOL", true))

	t.Setenv("NODEGATE_TEST_BOOL", "false")
	assert.False(t, getEnvBool("NODEGATE_TEST_BOOL", true))

	assert.True(t, getEnvBool("NODEGATE_MISSING_BOOL", true))
}

func TestInit_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.log")
	Init(&Config{Level: "debug", Format: "text", Output: "file:" + path})
	t.Cleanup(func() { Init(&Config{Level: "info", Format: "console", Output: "stdout"}) })

	require.True(t, IsDebugMode())
	NewModuleLogger("test", "file").Info("written to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
	assert.Contains(t, string(data), "module=test")
}

func TestLogCtxFromContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithAgentID(ctx, "adam")

	attrs := LogCtxFromContext(ctx)
	require.Len(t, attrs, 2)
	assert.Equal(t, slog.String("request_id", "req-1"), attrs[0])
	assert.Equal(t, slog.String("agent_id", "adam"), attrs[1])
}
