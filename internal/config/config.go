// Package config loads service configuration from the environment.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `env:",prefix=SERVER_"`
	Hardware  HardwareConfig  `env:",prefix=HARDWARE_"`
	Auth      AuthConfig      `env:",prefix=AUTH_"`
	Scheduler SchedulerConfig `env:",prefix=SCHEDULER_"`

	DatabaseURL   string `env:"DATABASE_URL"`
	DBMigrate     bool   `env:"DB_MIGRATE,default=true"`
	MigrationsDir string `env:"MIGRATIONS_DIR,default=db/migrations"`
	RedisURL      string `env:"REDIS_URL"`
	SeedFile      string `env:"SEED_FILE"`
	LogLevel      string `env:"LOG_LEVEL,default=info"`
}

type ServerConfig struct {
	Host              string `env:"HOST,default=0.0.0.0"`
	Port              string `env:"PORT,default=8080"`
	ReadHeaderTimeout int    `env:"READ_HEADER_TIMEOUT,default=5"` // seconds
}

// HardwareConfig covers the device-facing endpoints: shared API key and a
// per-device rate limit on polling.
type HardwareConfig struct {
	APIKey     string  `env:"API_KEY"`
	RatePerSec float64 `env:"RATE_PER_SEC,default=2"`
	RateBurst  int     `env:"RATE_BURST,default=5"`
}

type AuthConfig struct {
	HMACSecret string `env:"HMAC_SECRET"`
}

type SchedulerConfig struct {
	Enabled            bool `env:"ENABLED,default=true"`
	RefreshIntervalMin int  `env:"REFRESH_INTERVAL_MINUTES,default=120"`
	PregenHour         int  `env:"PREGEN_HOUR,default=23"`
	MorningHour        int  `env:"MORNING_HOUR,default=6"`
	TaskTimeoutMin     int  `env:"TASK_TIMEOUT_MINUTES,default=10"`
}

func (s ServerConfig) Addr() string { return s.Host + ":" + s.Port }

func (s SchedulerConfig) RefreshInterval() time.Duration {
	return time.Duration(s.RefreshIntervalMin) * time.Minute
}

func (s SchedulerConfig) TaskTimeout() time.Duration {
	return time.Duration(s.TaskTimeoutMin) * time.Minute
}

// Load reads configuration from environment variables.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}
	return &cfg, nil
}
