package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fraclaims/internal/config"
	"fraclaims/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.Engine.BaseURL)
	assert.Equal(t, domain.ProtocolSync, cfg.Engine.Protocol)
	assert.Equal(t, 60*time.Second, cfg.Engine.IdleTimeout)
	assert.Equal(t, 2, cfg.Engine.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Engine.RetryBackoff)
	assert.Equal(t, "memory", cfg.Guard.Backend)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_EngineOverridesFromEnv(t *testing.T) {
	t.Setenv("FRACLAIMS_ENGINE_BASE_URL", "https://ocr.example.org")
	t.Setenv("FRACLAIMS_ENGINE_PROTOCOL", "ASYNC")
	t.Setenv("FRACLAIMS_ENGINE_IDLE_TIMEOUT", "5s")
	t.Setenv("FRACLAIMS_ENGINE_MAX_RETRIES", "1")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "https://ocr.example.org", cfg.Engine.BaseURL)
	assert.Equal(t, domain.ProtocolAsync, cfg.Engine.Protocol)
	assert.Equal(t, 5*time.Second, cfg.Engine.IdleTimeout)
	assert.Equal(t, 1, cfg.Engine.MaxRetries)
}

func TestLoad_RejectsUnknownProtocol(t *testing.T) {
	t.Setenv("FRACLAIMS_ENGINE_PROTOCOL", "carrier-pigeon")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_PortEnvFallback(t *testing.T) {
	t.Setenv("PORT", "9999")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Port)
}

func TestEngineConfig_URLs(t *testing.T) {
	tests := []struct {
		base       string
		wantStatus string
		wantSubmit string
	}{
		{"http://localhost:8000", "ws://localhost:8000/ws/doc-1", "http://localhost:8000/ocr/extract-text"},
		{"https://ocr.example.org/", "wss://ocr.example.org/ws/doc-1", "https://ocr.example.org/ocr/extract-text"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			e := config.EngineConfig{BaseURL: tt.base, ExtractPath: "/ocr/extract-text"}
			assert.Equal(t, tt.wantStatus, e.StatusURL("doc-1"))
			assert.Equal(t, tt.wantSubmit, e.ExtractURL())
		})
	}
}
