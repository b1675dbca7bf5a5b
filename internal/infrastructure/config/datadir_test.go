package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetDataDir_Default(t *testing.T) {
	ResetDataDir()
	t.Setenv(EnvDataDir, "")

	homeDir, err := os.UserHomeDir()
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(homeDir, ".nodegate"), GetDataDir())
}

func TestGetDataDir_EnvOverrideIsCached(t *testing.T) {
	ResetDataDir()
	t.Setenv(EnvDataDir, "/first/path")
	assert.Equal(t, "/first/path", GetDataDir())

	t.Setenv(EnvDataDir, "/second/path")
	assert.Equal(t, "/first/path", GetDataDir(), "cached value should win until reset")

	ResetDataDir()
	assert.Equal(t, "/second/path", GetDataDir())
	ResetDataDir()
}

func TestDatabasePath(t *testing.T) {
	ResetDataDir()
	t.Setenv(EnvDataDir, "/data")
	defer ResetDataDir()

	assert.Equal(t, filepath.Join("/data", "nodegate.db"), (&DatabaseConfig{}).DatabasePath())
	assert.Equal(t, "/tmp/x.db", (&DatabaseConfig{Path: "/tmp/x.db"}).DatabasePath())
}
