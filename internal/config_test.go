package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/coffeehouse")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "mock", cfg.EngineProvider)
	assert.Equal(t, "none", cfg.BillingProvider)
	assert.Equal(t, 10*time.Second, cfg.LockWait)
	assert.Equal(t, int64(8<<20), cfg.MaxImageBytes)
	assert.Empty(t, cfg.RedisURL)
}

func TestNewConfig_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := NewConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestNewConfig_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/coffeehouse")
	t.Setenv("PORT", "9000")
	t.Setenv("DEBUG", "true")
	t.Setenv("ENGINE_PROVIDER", "http")
	t.Setenv("ENGINE_URL", "https://engine.internal:5600")
	t.Setenv("LOCK_WAIT", "2s")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "https://engine.internal:5600", cfg.EngineURL)
	assert.Equal(t, 2*time.Second, cfg.LockWait)
	assert.Equal(t, 30*time.Second, cfg.RateLimitWindow)
}

func TestNewConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/coffeehouse")
	t.Setenv("PORT", "not-a-number")
	t.Setenv("LOCK_WAIT", "soon")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.LockWait)
}

func TestNewConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "unknown engine provider",
			env:  map[string]string{"ENGINE_PROVIDER": "grpc"},
			want: "ENGINE_PROVIDER",
		},
		{
			name: "http engine without url",
			env:  map[string]string{"ENGINE_PROVIDER": "http"},
			want: "ENGINE_URL is required",
		},
		{
			name: "relative engine url",
			env:  map[string]string{"ENGINE_PROVIDER": "http", "ENGINE_URL": "engine:5600"},
			want: "absolute",
		},
		{
			name: "stripe without key",
			env:  map[string]string{"BILLING_PROVIDER": "stripe"},
			want: "STRIPE_SECRET_KEY",
		},
		{
			name: "unknown billing provider",
			env:  map[string]string{"BILLING_PROVIDER": "paypal"},
			want: "BILLING_PROVIDER",
		},
		{
			name: "lock ttl shorter than call timeout",
			env:  map[string]string{"LOCK_TTL": "5s", "EXTERNAL_CALL_TIMEOUT": "10s"},
			want: "LOCK_TTL",
		},
		{
			name: "non-positive image limit",
			env:  map[string]string{"MAX_IMAGE_BYTES": "-1"},
			want: "MAX_IMAGE_BYTES",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/coffeehouse")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := NewConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
