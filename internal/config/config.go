package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port                 int    `env:"PORT" envDefault:"8080"`
	DatabaseURL          string `env:"DATABASE_URL"`
	RedisURL             string `env:"REDIS_URL"`
	SessionTTLSeconds    int    `env:"SESSION_TTL_SECONDS" envDefault:"1800"`
	SweepIntervalSeconds int    `env:"SWEEP_INTERVAL_SECONDS" envDefault:"30"`
	JournalRetentionDays int    `env:"JOURNAL_RETENTION_DAYS" envDefault:"30"`
	CreateLimitPerMin    int    `env:"CREATE_LIMIT_PER_MIN" envDefault:"10"`
	LogLevel             string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c *Config) JournalRetention() time.Duration {
	return time.Duration(c.JournalRetentionDays) * 24 * time.Hour
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate() error {
	if c.SessionTTLSeconds < MinSessionTTLSeconds || c.SessionTTLSeconds > MaxSessionTTLSeconds {
		return fmt.Errorf("SESSION_TTL_SECONDS must be between %d and %d", MinSessionTTLSeconds, MaxSessionTTLSeconds)
	}
	// Expired sessions must be swept at least once a minute so abandoned
	// pairings do not accumulate.
	if c.SweepIntervalSeconds <= 0 || c.SweepIntervalSeconds > MaxSweepIntervalSeconds {
		return fmt.Errorf("SWEEP_INTERVAL_SECONDS must be between 1 and %d", MaxSweepIntervalSeconds)
	}
	if c.JournalRetentionDays <= 0 {
		return fmt.Errorf("JOURNAL_RETENTION_DAYS must be positive")
	}
	if c.CreateLimitPerMin <= 0 {
		return fmt.Errorf("CREATE_LIMIT_PER_MIN must be positive")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
