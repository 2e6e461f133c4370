package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8090", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "pocketbase", cfg.StoreDriver)
	assert.Equal(t, "BRL", cfg.Currency)
	assert.Equal(t, "log", cfg.MailDriver)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 60, cfg.ScanRateLimit)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "http://localhost:8090", cfg.BaseURL)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENVIRONMENT", "Production")
	t.Setenv("BASE_URL", "https://teatro.example.com/")
	t.Setenv("STORE_DRIVER", "bolt")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("WEBHOOK_LOCK_TTL", "30s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "https://teatro.example.com", cfg.BaseURL)
	assert.Equal(t, "bolt", cfg.StoreDriver)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 2525, cfg.SMTPPort)
	assert.Equal(t, 30*time.Second, cfg.WebhookLockTTL)
}

func TestLoadConfig_InvalidValue(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SMTP_PORT", "not-a-port")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_BaseURL(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		expected    string
		expectError bool
	}{
		{"Development default", map[string]string{"PORT": "9000"}, "http://localhost:9000", false},
		{"Production requires it", map[string]string{"ENVIRONMENT": "production"}, "", true},
		{"Production with value", map[string]string{"ENVIRONMENT": "production", "BASE_URL": "https://teatro.example.com"}, "https://teatro.example.com", false},
		{"Relative value", map[string]string{"BASE_URL": "/teatro"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := LoadConfig()
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, cfg.BaseURL)
		})
	}
}
