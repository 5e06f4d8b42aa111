package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()
	req.NoError(err)
	req.Equal(":8080", cfg.Addr)
	req.Equal(5, cfg.RateLimitMessages)
	req.Equal(5*time.Second, cfg.RateLimitInterval)
	req.Equal(256, cfg.SendBufferSize)
	req.Equal("chat-events", cfg.RedisChannel)
	req.Empty(cfg.RedisAddr)
}

func TestLoad_Overrides(t *testing.T) {
	req := require.New(t)
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DB_DSN", "postgres://chat@localhost/chat")
	t.Setenv("RATE_LIMIT_MESSAGES", "10")
	t.Setenv("RATE_LIMIT_INTERVAL", "1m")
	t.Setenv("API_RPS", "2.5")

	cfg, err := Load()
	req.NoError(err)
	req.Equal(10, cfg.RateLimitMessages)
	req.Equal(time.Minute, cfg.RateLimitInterval)
	req.InDelta(2.5, cfg.APIRequestsPerSec, 0.0001)
}

func TestValidate(t *testing.T) {
	valid := Config{
		StoreDriver:       StoreMemory,
		JWTSecret:         "secret",
		RateLimitMessages: 5,
		RateLimitInterval: 5 * time.Second,
		SendBufferSize:    256,
		HistoryPageSize:   50,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"Valid memory config", func(*Config) {}, ""},
		{"Postgres without DSN", func(c *Config) { c.StoreDriver = StorePostgres }, "DB_DSN is required"},
		{"Unknown driver", func(c *Config) { c.StoreDriver = "mongo" }, "STORE_DRIVER must be"},
		{"Missing secret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET is not set"},
		{"Zero rate window", func(c *Config) { c.RateLimitMessages = 0 }, "must be positive"},
		{"Oversized history page", func(c *Config) { c.HistoryPageSize = 500 }, "HISTORY_PAGE_SIZE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
