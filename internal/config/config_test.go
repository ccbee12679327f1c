package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowsketch/internal/llm"
	"github.com/rendis/flowsketch/internal/render"
	"github.com/rendis/flowsketch/pkg/schema"
)

// isolate runs the test in an empty directory with no flowsketch variables set.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, key := range []string{
		"FLOWSKETCH_CONFIG", "FLOWSKETCH_API_KEY", "FLOWSKETCH_LOG_LEVEL", "FLOWSKETCH_MODEL_PROVIDER",
		"FLOWSKETCH_MODEL", "FLOWSKETCH_RENDER_ENGINE", "FLOWSKETCH_RENDER_COMMAND", "FLOWSKETCH_MAX_CONCURRENT",
		"FLOWSKETCH_ALLOWED_ORIGINS", "FLOWSKETCH_RENDER_TIMEOUT", "FLOWSKETCH_KEEP_DANGLING",
		"GEMINI_API", "GEMINI_API_KEY", "OPENROUTER_API_KEY",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
	assert.Equal(t, ":5001", cfg.Server.Addr)
	assert.Equal(t, render.EngineMermaid, cfg.Render.Engine)
	assert.Equal(t, 30, cfg.Diagram.WrapWidth)
}

func TestLoadYAMLWithExpansion(t *testing.T) {
	dir := isolate(t)
	t.Setenv("FS_TEST_KEY", "from-env")
	yml := `
log_level: debug
model:
  provider: openrouter
  api_key: ${FS_TEST_KEY}
  timeout: 45s
render:
  engine: graphviz
  command: [mmdc]
server:
  max_concurrent: 8
  allowed_origins: ["https://app.example"]
mcp:
  allow_roots: [/data/in]
`
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, llm.ProviderOpenRouter, cfg.Model.Provider)
	assert.Equal(t, "from-env", cfg.Model.APIKey)
	assert.Equal(t, 45*time.Second, cfg.Model.Timeout)
	assert.Equal(t, render.EngineGraphviz, cfg.Render.Engine)
	assert.Equal(t, []string{"mmdc"}, cfg.Render.Command)
	assert.Equal(t, 8, cfg.Server.MaxConcurrent)
	assert.Equal(t, []string{"https://app.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, []string{"/data/in"}, cfg.MCP.Confinement.AllowRoots)
	// untouched keys keep their defaults
	assert.Equal(t, ":5001", cfg.Server.Addr)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultPath), []byte("log_level: warn\nrender:\n  engine: graphviz\n"), 0o644))
	t.Setenv("FLOWSKETCH_LOG_LEVEL", "error")
	t.Setenv("FLOWSKETCH_RENDER_COMMAND", "npx -y mmdc")
	t.Setenv("FLOWSKETCH_ALLOWED_ORIGINS", "http://a, http://b ,")
	t.Setenv("FLOWSKETCH_KEEP_DANGLING", "1")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, render.EngineGraphviz, cfg.Render.Engine)
	assert.Equal(t, []string{"npx", "-y", "mmdc"}, cfg.Render.Command)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.Diagram.KeepDangling)
}

func TestLoadInvalidEnv(t *testing.T) {
	isolate(t)
	t.Setenv("FLOWSKETCH_MAX_CONCURRENT", "many")
	t.Setenv("FLOWSKETCH_RENDER_TIMEOUT", "soon")

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeConfig))
	assert.Contains(t, err.Error(), "FLOWSKETCH_MAX_CONCURRENT")
	assert.Contains(t, err.Error(), "FLOWSKETCH_RENDER_TIMEOUT")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)
	_, err := Load("nope.yaml")
	assert.True(t, schema.HasCode(err, schema.ErrCodeConfig))

	t.Setenv("FLOWSKETCH_CONFIG", "also-missing.yaml")
	_, err = Load("")
	assert.True(t, schema.HasCode(err, schema.ErrCodeConfig))
}

func TestLoadBadYAML(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultPath), []byte("server: [unclosed"), 0o644))
	_, err := Load("")
	assert.True(t, schema.HasCode(err, schema.ErrCodeConfig))
}

func TestAPIKeyResolution(t *testing.T) {
	t.Run("gemini reads GEMINI_API first", func(t *testing.T) {
		isolate(t)
		t.Setenv("GEMINI_API", "g1")
		t.Setenv("GEMINI_API_KEY", "g2")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "g1", cfg.Model.APIKey)
	})

	t.Run("gemini falls back to GEMINI_API_KEY", func(t *testing.T) {
		isolate(t)
		t.Setenv("GEMINI_API_KEY", "g2")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "g2", cfg.Model.APIKey)
	})

	t.Run("openrouter", func(t *testing.T) {
		isolate(t)
		t.Setenv("FLOWSKETCH_MODEL_PROVIDER", "openrouter")
		t.Setenv("GEMINI_API", "ignored")
		t.Setenv("OPENROUTER_API_KEY", "or")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "or", cfg.Model.APIKey)
	})

	t.Run("explicit key wins", func(t *testing.T) {
		isolate(t)
		t.Setenv("GEMINI_API", "g1")
		t.Setenv("FLOWSKETCH_API_KEY", "explicit")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "explicit", cfg.Model.APIKey)
	})
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)
	t.Cleanup(func() { os.Unsetenv("FS_DOTENV_ONLY") })
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GEMINI_API=from-dotenv\nFS_DOTENV_ONLY=1\n"), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	// GEMINI_API is already set (empty) in the environment, so .env does not override it.
	assert.Empty(t, cfg.Model.APIKey)
	assert.Equal(t, "1", os.Getenv("FS_DOTENV_ONLY"))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Model.APIKey = "k"
	require.NoError(t, cfg.Validate(true))

	cfg.Model.APIKey = ""
	require.NoError(t, cfg.Validate(false))
	err := cfg.Validate(true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no API key")

	bad := Default()
	bad.Model.Provider = "mystery"
	bad.Render.Engine = "canvas"
	bad.Diagram.WrapWidth = 0
	bad.Server.MaxConcurrent = 0
	bad.LogFormat = "xml"
	err = bad.Validate(false)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeConfig))

	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	problems, ok := fe.Details["problems"].([]string)
	require.True(t, ok)
	assert.Len(t, problems, 5)
}
