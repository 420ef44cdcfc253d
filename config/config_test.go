package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvAPIKey, EnvOpenAIAPIKey, EnvBaseURL, EnvModel, EnvDB} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "stitch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_url: http://localhost:8080/v1
api_key: from-file
model: local-model
retry: standard
format: yaml
`), 0o644))
	t.Setenv(EnvAPIKey, "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/v1", cfg.BaseURL)
	assert.Equal(t, "from-env", cfg.APIKey)
	assert.Equal(t, "local-model", cfg.Model)
	assert.Equal(t, "yaml", cfg.Format)
	assert.Equal(t, 2, cfg.RetryPolicy().MaxRetries)
	assert.Equal(t, ":2389", cfg.Listen)
}

func TestStitchKeyWinsOverOpenAIKey(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvOpenAIAPIKey, "openai")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.APIKey)

	t.Setenv(EnvAPIKey, "stitch")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "stitch", cfg.APIKey)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	for name, body := range map[string]string{
		"retry":  "retry: forever\n",
		"format": "format: pdf\n",
		"level":  "log_level: loud\n",
		"syntax": "base_url: [\n",
	} {
		path := filepath.Join(dir, name+".yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := Load(path)
		assert.Error(t, err, name)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(`
# comment
STITCH_TEST_PLAIN=plain
export STITCH_TEST_EXPORTED="quoted value"
STITCH_TEST_SINGLE='single'
STITCH_TEST_EQUALS=a=b
STITCH_TEST_KEEP=from-file
not a pair
`), 0o644))

	t.Setenv("STITCH_TEST_KEEP", "from-env")
	for _, k := range []string{"STITCH_TEST_PLAIN", "STITCH_TEST_EXPORTED", "STITCH_TEST_SINGLE", "STITCH_TEST_EQUALS"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "plain", os.Getenv("STITCH_TEST_PLAIN"))
	assert.Equal(t, "quoted value", os.Getenv("STITCH_TEST_EXPORTED"))
	assert.Equal(t, "single", os.Getenv("STITCH_TEST_SINGLE"))
	assert.Equal(t, "a=b", os.Getenv("STITCH_TEST_EQUALS"))
	assert.Equal(t, "from-env", os.Getenv("STITCH_TEST_KEEP"))
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "nope")))
}
