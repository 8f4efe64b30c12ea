package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "meshrouter", cfg.Name)
	assert.Equal(t, 9876, cfg.Backend.Port)
	assert.Equal(t, 0.5, cfg.Pattern.DetectionThreshold)
	assert.True(t, cfg.Correction.EnableModeSwitch)
	assert.True(t, cfg.Correction.EnableClamping)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
backend:
  host: geo-box
  port: 7777
  connect_timeout: 2s
scene:
  cache_ttl: 500ms
vector:
  search_threshold: 0.7
correction:
  enable_mode_switch: false
  enable_selection: true
  enable_clamping: true
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "geo-box", cfg.Backend.Host)
	assert.Equal(t, 7777, cfg.Backend.Port)
	assert.Equal(t, 2*time.Second, cfg.GetConnectTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.GetCacheTTL())
	assert.Equal(t, 0.7, cfg.Vector.SearchThreshold)
	assert.False(t, cfg.Correction.EnableModeSwitch)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("backend host and port", func(t *testing.T) {
		t.Setenv("MESHROUTER_BACKEND_HOST", "10.0.0.5")
		t.Setenv("MESHROUTER_BACKEND_PORT", "4242")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "10.0.0.5", cfg.Backend.Host)
		assert.Equal(t, 4242, cfg.Backend.Port)
	})

	t.Run("bad port is ignored", func(t *testing.T) {
		t.Setenv("MESHROUTER_BACKEND_PORT", "not-a-port")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, 9876, cfg.Backend.Port)
	})

	t.Run("GEMINI_API_KEY selects genai provider if unset", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "gk")
		t.Setenv("OLLAMA_HOST", "")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "gk", cfg.Embedding.GenAIAPIKey)
		assert.Equal(t, "genai", cfg.Embedding.Provider)
	})

	t.Run("key does not override explicit provider", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "gk")

		cfg := DefaultConfig()
		cfg.Embedding.Provider = "ollama"
		cfg.applyEnvOverrides()

		assert.Equal(t, "ollama", cfg.Embedding.Provider)
	})
}

func TestDurationFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend.CommandTimeout = "garbage"
	cfg.Scene.CacheTTL = ""

	assert.Equal(t, 15*time.Second, cfg.GetCommandTimeout())
	assert.Equal(t, 2*time.Second, cfg.GetCacheTTL())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Backend.Host = "saved-host"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "saved-host", loaded.Backend.Host)
}
