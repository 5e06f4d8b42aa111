package config

import (
	"errors"
	"fmt"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Addr              string        `env:"ADDR,default=:8080"`
	StoreDriver       string        `env:"STORE_DRIVER,default=postgres"`
	DatabaseDSN       string        `env:"DB_DSN"`
	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	RedisAddr         string        `env:"REDIS_ADDR"`
	RedisChannel      string        `env:"REDIS_CHANNEL,default=chat-events"`
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`
	RateLimitMessages int           `env:"RATE_LIMIT_MESSAGES,default=5"`
	RateLimitInterval time.Duration `env:"RATE_LIMIT_INTERVAL,default=5s"`
	APIRequestsPerSec float64       `env:"API_RPS,default=5"`
	APIBurst          int           `env:"API_BURST,default=10"`
	SendBufferSize    int           `env:"SEND_BUFFER_SIZE,default=256"`
	HistoryPageSize   int           `env:"HISTORY_PAGE_SIZE,default=50"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case StorePostgres:
		if c.DatabaseDSN == "" {
			errs = append(errs, errors.New("DB_DSN is required when STORE_DRIVER=postgres"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StorePostgres, StoreMemory, c.StoreDriver))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	}
	if c.RateLimitMessages <= 0 || c.RateLimitInterval <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_MESSAGES and RATE_LIMIT_INTERVAL must be positive"))
	}
	if c.SendBufferSize <= 0 {
		errs = append(errs, errors.New("SEND_BUFFER_SIZE must be positive"))
	}
	if c.HistoryPageSize <= 0 || c.HistoryPageSize > 100 {
		errs = append(errs, errors.New("HISTORY_PAGE_SIZE must be between 1 and 100"))
	}
	return errors.Join(errs...)
}
