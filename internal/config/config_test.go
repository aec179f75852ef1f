package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("PORT", "8081")
	t.Setenv("AI_PROVIDER", "ollama")
	t.Setenv("CORS_ORIGINS", "")
	// unparsable numbers fall back to defaults
	t.Setenv("MATCH_TOP_K", "not-a-number")
	t.Setenv("AI_TIMEOUT", "")
	t.Setenv("MATCH_RATE_RPS", "")

	cfg := Load()
	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, "ollama", cfg.AI.Provider)
	assert.Equal(t, 2, cfg.Match.TopK)
	assert.Equal(t, 20*time.Second, cfg.AI.Timeout)
	assert.Equal(t, 2.0, cfg.Match.RateRPS)
	assert.Empty(t, cfg.CORSOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("AI_PROVIDER", "Gemini")
	t.Setenv("AI_API_KEY", "  key-123 ")
	t.Setenv("MATCH_TOP_K", "3")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")

	cfg := Load()
	assert.Equal(t, "gemini", cfg.AI.Provider)
	assert.Equal(t, "key-123", cfg.AI.APIKey)
	assert.Equal(t, 3, cfg.Match.TopK)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}
