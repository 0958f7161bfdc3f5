package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Kernel.BaseTTL)
	assert.Equal(t, 20, cfg.Kernel.MaxTTL)
	assert.Equal(t, 3, cfg.Kernel.MaxNestingDepth)
	assert.NotEmpty(t, cfg.Tools)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
oracle:
  model: test-model
  timeout: 5s
kernel:
  base_ttl: 2
  max_ttl: 6
  max_nesting_depth: 4
tools:
  - search
criteria:
  - dimension: completeness
    threshold: 0.8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-model", cfg.Oracle.Model)
	assert.Equal(t, 5*time.Second, cfg.OracleTimeout())
	assert.Equal(t, 6, cfg.Kernel.MaxTTL)
	assert.Equal(t, []string{"search"}, cfg.Tools)
	require.Len(t, cfg.Criteria, 1)
	assert.Equal(t, 0.8, cfg.Criteria[0].Threshold)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("COGITO_MODEL", "env-model")
	t.Setenv("COGITO_API_KEY", "sk-env")
	t.Setenv("COGITO_MAX_TTL", "9")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "env-model", cfg.Oracle.Model)
	assert.Equal(t, "sk-env", cfg.Oracle.APIKey)
	assert.Equal(t, 9, cfg.Kernel.MaxTTL)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kernel: [not a map"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Kernel.BaseTTL = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Kernel.MaxTTL = 1
	assert.Error(t, cfg.Validate(), "max below base")

	cfg = DefaultConfig()
	cfg.Kernel.MaxNestingDepth = 0
	assert.Error(t, cfg.Validate())
}

func TestOracleTimeout_BadValueFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Oracle.Timeout = "soon"
	assert.Equal(t, 120*time.Second, cfg.OracleTimeout())
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Oracle.Model = "saved-model"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "saved-model", loaded.Oracle.Model)
}
