package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := LoadWithConfigFile("")
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.False(t, cfg.Storage.Enabled)
	assert.Equal(t, 5432, cfg.Storage.Port)
	assert.Equal(t, "require", cfg.Storage.SSLMode)
	assert.Equal(t, 25, cfg.Storage.MaxConns)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 6379, cfg.Cache.Port)
	assert.Equal(t, "realm-authz", cfg.Cache.Prefix)
	assert.Equal(t, "export", cfg.Export.Dir)
	assert.False(t, cfg.Export.Condensed)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("REALM_ENVIRONMENT", "development")
	t.Setenv("REALM_STORAGE_ENABLED", "true")
	t.Setenv("REALM_STORAGE_HOST", "db.internal")
	t.Setenv("REALM_CACHE_PORT", "6380")
	t.Setenv("REALM_EXPORT_DIR", "/var/exports")

	cfg, err := LoadWithConfigFile("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.True(t, cfg.Storage.Enabled)
	assert.Equal(t, "db.internal", cfg.Storage.Host)
	assert.Equal(t, 6380, cfg.Cache.Port)
	assert.Equal(t, "/var/exports", cfg.Export.Dir)
}

func TestLoadWithConfigFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
environment: test
storage:
  enabled: true
  host: localhost
  dbname: realms
cache:
  enabled: true
  host: localhost
export:
  condensed: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadWithConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Environment)
	assert.True(t, cfg.Storage.Enabled)
	assert.Equal(t, "localhost", cfg.Storage.Host)
	assert.Equal(t, "realms", cfg.Storage.DBName)
	assert.True(t, cfg.Cache.Enabled)
	assert.True(t, cfg.Export.Condensed)

	// unset keys keep their defaults
	assert.Equal(t, 5432, cfg.Storage.Port)
}

func TestLoadWithMissingConfigFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	_, err := LoadWithConfigFile("/nonexistent/config.yaml")
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	for _, environment := range []string{"development", "test", "production"} {
		t.Run(environment, func(t *testing.T) {
			logger, err := NewLogger(environment)
			require.NoError(t, err)
			require.NotNil(t, logger)
			logger.Info("logger smoke test")
		})
	}
}
