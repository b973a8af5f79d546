package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rhp/rhp/internal/platform/replay"
	"github.com/rhp/rhp/internal/platform/scheduler"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	StagingAreaPath       string `mapstructure:"STAGING_AREA_PATH"`
	IsAbsoluteStagingPath bool   `mapstructure:"IS_ABSOLUTE_STAGING_AREA_PATH"`
	Crontab               string `mapstructure:"CRONTAB"`
	CronTimeZone          string `mapstructure:"CRON_TIMEZONE"`

	ReplayMisfirePolicy  string        `mapstructure:"REPLAY_MISFIRE_POLICY"`
	ReplayCommitPolicy   string        `mapstructure:"REPLAY_COMMIT_POLICY"`
	ReplayLockTTL        time.Duration `mapstructure:"REPLAY_LOCK_TTL"`
	RedisURL             string        `mapstructure:"REDIS_URL"`
	DBBreakerMaxFailures uint32        `mapstructure:"DB_BREAKER_MAX_FAILURES"`
	DBBreakerOpenTimeout time.Duration `mapstructure:"DB_BREAKER_OPEN_TIMEOUT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("STAGING_AREA_PATH", "data/")
	v.SetDefault("IS_ABSOLUTE_STAGING_AREA_PATH", false)
	v.SetDefault("CRONTAB", scheduler.DefaultSpec)
	v.SetDefault("CRON_TIMEZONE", "")
	v.SetDefault("REPLAY_MISFIRE_POLICY", string(scheduler.MisfireSkip))
	v.SetDefault("REPLAY_COMMIT_POLICY", string(replay.CommitBatch))
	v.SetDefault("REPLAY_LOCK_TTL", "30m")
	v.SetDefault("DB_BREAKER_MAX_FAILURES", 5)
	v.SetDefault("DB_BREAKER_OPEN_TIMEOUT", "30s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
		"STAGING_AREA_PATH", "IS_ABSOLUTE_STAGING_AREA_PATH",
		"CRONTAB", "CRON_TIMEZONE",
		"REPLAY_MISFIRE_POLICY", "REPLAY_COMMIT_POLICY", "REPLAY_LOCK_TTL", "REDIS_URL",
		"DB_BREAKER_MAX_FAILURES", "DB_BREAKER_OPEN_TIMEOUT",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// StagingRoot resolves STAGING_AREA_PATH. A relative path is taken from the
// working directory unless IS_ABSOLUTE_STAGING_AREA_PATH is set, in which
// case the path is used as given.
func (c *Config) StagingRoot() (string, error) {
	if c.IsAbsoluteStagingPath {
		return filepath.Clean(c.StagingAreaPath), nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return filepath.Join(wd, c.StagingAreaPath), nil
}

// Validate rejects settings that would only fail later, at the first
// scheduled replay.
func (c *Config) Validate() error {
	if c.StagingAreaPath == "" {
		return fmt.Errorf("STAGING_AREA_PATH must not be empty")
	}
	if err := scheduler.ValidateSpec(c.Crontab); err != nil {
		return fmt.Errorf("CRONTAB: %w", err)
	}
	if c.CronTimeZone != "" {
		if _, err := time.LoadLocation(c.CronTimeZone); err != nil {
			return fmt.Errorf("CRON_TIMEZONE: %w", err)
		}
	}
	if _, err := scheduler.ParseMisfirePolicy(c.ReplayMisfirePolicy); err != nil {
		return fmt.Errorf("REPLAY_MISFIRE_POLICY: %w", err)
	}
	if _, err := replay.ParseCommitPolicy(c.ReplayCommitPolicy); err != nil {
		return fmt.Errorf("REPLAY_COMMIT_POLICY: %w", err)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	return nil
}
