package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("ESTIMATE_MIN", "")
	t.Setenv("ESTIMATE_MAX", "")
	t.Setenv("PRIMARY_TIMEZONE", "")
	t.Setenv("COOKIE_SECURE", "")
	t.Setenv("GOOGLE_REDIRECT_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.Estimate.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Estimate.Bounds.Min)
	assert.Equal(t, 24*time.Hour, cfg.Estimate.Bounds.Max)
	assert.Equal(t, "UTC", cfg.TimeZone.String())
	assert.False(t, cfg.SecureCookie)
	assert.Equal(t, "http://localhost:8080/api/google/callback", cfg.Google.RedirectURL)
}

func TestLoadBoundsFromNaturalLanguage(t *testing.T) {
	t.Setenv("ESTIMATE_MIN", "15 minutes")
	t.Setenv("ESTIMATE_MAX", "8h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.Estimate.Bounds.Min)
	assert.Equal(t, 8*time.Hour, cfg.Estimate.Bounds.Max)
}

func TestLoadErrors(t *testing.T) {
	t.Run("min above max", func(t *testing.T) {
		t.Setenv("ESTIMATE_MIN", "10 hours")
		t.Setenv("ESTIMATE_MAX", "2 hours")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("genai without key", func(t *testing.T) {
		t.Setenv("LLM_PROVIDER", "genai")
		t.Setenv("GENAI_API_KEY", "")
		_, err := Load()
		assert.ErrorContains(t, err, "GENAI_API_KEY")
	})

	t.Run("unknown provider", func(t *testing.T) {
		t.Setenv("LLM_PROVIDER", "chroma")
		_, err := Load()
		assert.ErrorContains(t, err, "unknown LLM_PROVIDER")
	})

	t.Run("bad attempts", func(t *testing.T) {
		t.Setenv("ESTIMATE_MAX_ATTEMPTS", "0")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("bad cookie flag", func(t *testing.T) {
		t.Setenv("COOKIE_SECURE", "sometimes")
		_, err := Load()
		assert.ErrorContains(t, err, "invalid COOKIE_SECURE")
	})

	t.Run("bad timezone", func(t *testing.T) {
		t.Setenv("PRIMARY_TIMEZONE", "Mars/Olympus")
		_, err := Load()
		assert.ErrorContains(t, err, "invalid timezone")
	})
}
