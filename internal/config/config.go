package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/p-blackswan/santa-bot/internal/coordinator"
	"github.com/p-blackswan/santa-bot/internal/matcher"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Session rules
	MinParticipants  int           `envconfig:"SANTA_MIN_PARTICIPANTS" default:"2"`
	MaxParticipants  int           `envconfig:"SANTA_MAX_PARTICIPANTS" default:"0"` // 0 = unlimited
	RequireEven      bool          `envconfig:"SANTA_REQUIRE_EVEN" default:"true"`
	Timeout          time.Duration `envconfig:"SANTA_TIMEOUT" default:"48h"`
	RevokeEnabled    bool          `envconfig:"SANTA_REVOKE_ENABLED" default:"false"`
	Matcher          string        `envconfig:"SANTA_MATCHER" default:"cycle"` // "cycle" or "rejection"
	ArchiveEnabled   bool          `envconfig:"SANTA_ARCHIVE_ENABLED" default:"true"`
	ArchiveRetention time.Duration `envconfig:"SANTA_ARCHIVE_RETENTION" default:"720h"`
	TextsFile        string        `envconfig:"TEXTS_FILE"`

	// Sweeper
	SweepInterval    time.Duration `envconfig:"SWEEP_INTERVAL" default:"30m"`
	SweepFirstDelay  time.Duration `envconfig:"SWEEP_FIRST_DELAY" default:"1m"`
	SweepConcurrency int           `envconfig:"SWEEP_CONCURRENCY" default:"8"`

	// Store
	StoreDriver  string `envconfig:"STORE_DRIVER" default:"sqlite"` // "sqlite" or "memory"
	StorePath    string `envconfig:"STORE_PATH" default:"santa.db"`
	StoreRetries int    `envconfig:"STORE_RETRIES" default:"3"`

	// Slack (optional, the bot starts in mgmt-only mode without it)
	SlackBotToken  string        `envconfig:"SLACK_BOT_TOKEN"`
	SlackAppToken  string        `envconfig:"SLACK_APP_TOKEN"` // xapp- token for Socket Mode
	AdminCacheTTL  time.Duration `envconfig:"ADMIN_CACHE_TTL" default:"1h"`
	AdminCacheSize int           `envconfig:"ADMIN_CACHE_SIZE" default:"1024"`

	// Management API
	MgmtListenAddr     string `envconfig:"MGMT_LISTEN_ADDR" default:":8090"`
	MgmtAuthMode       string `envconfig:"MGMT_AUTH_MODE" default:"api-key"` // "api-key", "jwt" or "none"
	MgmtAPIKey         string `envconfig:"MGMT_API_KEY"`
	MgmtJWTSecret      string `envconfig:"MGMT_JWT_SECRET"`
	MgmtRateLimitRPS   int    `envconfig:"MGMT_RATE_LIMIT_RPS" default:"50"`
	MgmtRateLimitBurst int    `envconfig:"MGMT_RATE_LIMIT_BURST" default:"100"`
	MgmtCORSOrigins    string `envconfig:"MGMT_CORS_ORIGINS"`
}

// SlackEnabled returns true if Slack tokens are configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackAppToken != ""
}

// Rules projects the session settings.
func (c *Config) Rules() coordinator.Rules {
	return coordinator.Rules{
		MinParticipants:  c.MinParticipants,
		MaxParticipants:  c.MaxParticipants,
		RequireEven:      c.RequireEven,
		Timeout:          c.Timeout,
		RevokeEnabled:    c.RevokeEnabled,
		ArchiveEnabled:   c.ArchiveEnabled,
		ArchiveRetention: c.ArchiveRetention,
	}
}

// MatcherStrategy returns the configured drafting strategy.
func (c *Config) MatcherStrategy() matcher.Strategy {
	return matcher.Strategy(strings.ToLower(strings.TrimSpace(c.Matcher)))
}

// CORSOrigins returns the parsed list of allowed origins.
func (c *Config) CORSOrigins() []string {
	if c.MgmtCORSOrigins == "" {
		return nil
	}
	parts := strings.Split(c.MgmtCORSOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, o := range parts {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	if c.MinParticipants < 2 {
		return fmt.Errorf("SANTA_MIN_PARTICIPANTS must be at least 2, got %d", c.MinParticipants)
	}
	if c.MaxParticipants != 0 && c.MaxParticipants < c.MinParticipants {
		return fmt.Errorf("SANTA_MAX_PARTICIPANTS (%d) is below SANTA_MIN_PARTICIPANTS (%d)", c.MaxParticipants, c.MinParticipants)
	}
	switch c.MatcherStrategy() {
	case matcher.StrategyCycle, matcher.StrategyRejection:
	default:
		return fmt.Errorf("unknown SANTA_MATCHER %q", c.Matcher)
	}
	switch strings.ToLower(c.StoreDriver) {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.MgmtAuthMode {
	case "api-key":
		if c.MgmtAPIKey == "" {
			return fmt.Errorf("MGMT_API_KEY is required when MGMT_AUTH_MODE=api-key")
		}
	case "jwt":
		if c.MgmtJWTSecret == "" {
			return fmt.Errorf("MGMT_JWT_SECRET is required when MGMT_AUTH_MODE=jwt")
		}
	case "none":
	default:
		return fmt.Errorf("unknown MGMT_AUTH_MODE %q", c.MgmtAuthMode)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}
