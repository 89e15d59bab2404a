// Package config loads the funnel bot configuration: the shared core block
// plus storage, funnel links, verification, broadcast and side services.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "github.com/m3rciful/funnelbot/core/config"
	coredatabase "github.com/m3rciful/funnelbot/core/database"
)

const (
	// StorageJSON keeps users in a single JSON file.
	StorageJSON = "json"
	// StorageSQL keeps users in the database block.
	StorageSQL = "sql"

	// LockNone disables the instance lock.
	LockNone = "none"
	// LockFile uses a pid file.
	LockFile = "file"
	// LockRedis uses a Redis key with a TTL.
	LockRedis = "redis"
)

// StorageConfig selects the user store backend.
type StorageConfig struct {
	Backend string `yaml:"backend" envconfig:"STORAGE_BACKEND"`
	Path    string `yaml:"path" envconfig:"STORAGE_PATH"`
}

// LinksConfig holds the partner and support destinations.
type LinksConfig struct {
	// Referral may contain {user_id}.
	Referral string `yaml:"referral" envconfig:"REFERRAL_URL"`
	WebApp   string `yaml:"webapp" envconfig:"WEBAPP_URL"`
	Support  string `yaml:"support" envconfig:"SUPPORT_HANDLE"`
	HelpURL  string `yaml:"help_url" envconfig:"HELP_URL"`
	Promo    string `yaml:"promo" envconfig:"PROMO_CODE"`
}

// ImagesConfig points at the menu photos.
type ImagesConfig struct {
	Main     string `yaml:"main" envconfig:"IMAGE_MAIN"`
	Register string `yaml:"register" envconfig:"IMAGE_REGISTER"`
	Deposit  string `yaml:"deposit" envconfig:"IMAGE_DEPOSIT"`
}

// VerifyConfig configures the partner verification endpoint. An empty
// BaseURL disables it.
type VerifyConfig struct {
	BaseURL             string `yaml:"base_url" envconfig:"VERIFY_BASE_URL"`
	TimeoutSeconds      int    `yaml:"timeout_seconds" envconfig:"VERIFY_TIMEOUT_SECONDS"`
	RequireRegistration bool   `yaml:"require_registration" envconfig:"VERIFY_REQUIRE_REGISTRATION"`
	RequireDeposit      bool   `yaml:"require_deposit" envconfig:"VERIFY_REQUIRE_DEPOSIT"`
}

// BroadcastConfig tunes admin broadcasts.
type BroadcastConfig struct {
	PaceMS        int `yaml:"pace_ms" envconfig:"BROADCAST_PACE_MS"`
	ProgressEvery int `yaml:"progress_every" envconfig:"BROADCAST_PROGRESS_EVERY"`
	MaxCauses     int `yaml:"max_causes" envconfig:"BROADCAST_MAX_CAUSES"`
}

// RetryConfig is the outbound retry policy.
type RetryConfig struct {
	MaxAttempts           int `yaml:"max_attempts" envconfig:"RETRY_MAX_ATTEMPTS"`
	BaseDelayMS           int `yaml:"base_delay_ms" envconfig:"RETRY_BASE_DELAY_MS"`
	AttemptTimeoutSeconds int `yaml:"attempt_timeout_seconds" envconfig:"RETRY_ATTEMPT_TIMEOUT_SECONDS"`
}

// PostbackConfig enables the partner callback receiver.
type PostbackConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"POSTBACK_ENABLED"`
	Listen  string `yaml:"listen" envconfig:"POSTBACK_LISTEN"`
	Secret  string `yaml:"secret" envconfig:"POSTBACK_SECRET"`
}

// LockConfig selects the single-instance guard.
type LockConfig struct {
	Backend    string `yaml:"backend" envconfig:"LOCK_BACKEND"`
	Path       string `yaml:"path" envconfig:"LOCK_PATH"`
	RedisURL   string `yaml:"redis_url" envconfig:"REDIS_URL"`
	Key        string `yaml:"key" envconfig:"LOCK_KEY"`
	TTLSeconds int    `yaml:"ttl_seconds" envconfig:"LOCK_TTL_SECONDS"`
}

// Config is the full application configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Storage   StorageConfig       `yaml:"storage"`
	Database  coredatabase.Config `yaml:"database"`
	Links     LinksConfig         `yaml:"links"`
	Images    ImagesConfig        `yaml:"images"`
	Verify    VerifyConfig        `yaml:"verify"`
	Broadcast BroadcastConfig     `yaml:"broadcast"`
	Retry     RetryConfig         `yaml:"retry"`
	Postback  PostbackConfig      `yaml:"postback"`
	Lock      LockConfig          `yaml:"lock"`
}

// CoreConfig exposes the embedded core block.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Config }

// Default returns the values used for keys absent from file and environment.
func Default() Config {
	return Config{
		Storage: StorageConfig{Backend: StorageJSON, Path: "users.json"},
		Links: LinksConfig{
			Referral: "https://1wzyuh.com/casino/list?open=register&p=h53j&sub1={user_id}",
			WebApp:   "https://feedox-ai-software-zdwq.vercel.app/",
			Support:  "@BrandFD19",
			HelpURL:  "https://t.me/BrandFD19",
			Promo:    "VVIP500",
		},
		Images: ImagesConfig{Main: "main.jpg", Register: "register.jpg", Deposit: "deposit.jpg"},
		Verify: VerifyConfig{
			TimeoutSeconds:      10,
			RequireRegistration: true,
		},
		Broadcast: BroadcastConfig{PaceMS: 50, ProgressEvery: 50, MaxCauses: 10},
		Retry:     RetryConfig{MaxAttempts: 5, BaseDelayMS: 1000, AttemptTimeoutSeconds: 30},
		Postback:  PostbackConfig{Listen: ":8080"},
		Lock:      LockConfig{Backend: LockFile, Path: "bot.lock", Key: "funnelbot:lock", TTLSeconds: 30},
	}
}

// Load reads path, overlays the environment and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the core block and the application sections.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}

	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	switch cfg.Storage.Backend {
	case "", StorageJSON:
		cfg.Storage.Backend = StorageJSON
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return fmt.Errorf("storage.path is required for the json backend")
		}
	case StorageSQL:
		if err := cfg.Database.Normalize(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid storage.backend %q; allowed: json, sql", cfg.Storage.Backend)
	}

	if !strings.Contains(cfg.Links.Referral, "{user_id}") {
		return fmt.Errorf("links.referral must contain {user_id}")
	}
	if cfg.Verify.TimeoutSeconds <= 0 {
		cfg.Verify.TimeoutSeconds = 10
	}
	cfg.Verify.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Verify.BaseURL), "/")

	if cfg.Broadcast.PaceMS < 0 {
		return fmt.Errorf("broadcast.pace_ms must be >= 0")
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 5
	}
	if cfg.Retry.BaseDelayMS <= 0 {
		cfg.Retry.BaseDelayMS = 1000
	}
	if cfg.Retry.AttemptTimeoutSeconds <= 0 {
		cfg.Retry.AttemptTimeoutSeconds = 30
	}

	if cfg.Postback.Enabled {
		if strings.TrimSpace(cfg.Postback.Listen) == "" {
			return fmt.Errorf("postback.listen is required when postback.enabled is true")
		}
		if strings.TrimSpace(cfg.Postback.Secret) == "" {
			return fmt.Errorf("postback.secret is required when postback.enabled is true")
		}
	}

	cfg.Lock.Backend = strings.ToLower(strings.TrimSpace(cfg.Lock.Backend))
	switch cfg.Lock.Backend {
	case "", LockNone:
		cfg.Lock.Backend = LockNone
	case LockFile:
		if strings.TrimSpace(cfg.Lock.Path) == "" {
			return fmt.Errorf("lock.path is required for the file lock")
		}
	case LockRedis:
		if strings.TrimSpace(cfg.Lock.RedisURL) == "" {
			return fmt.Errorf("lock.redis_url is required for the redis lock")
		}
		if cfg.Lock.TTLSeconds <= 0 {
			cfg.Lock.TTLSeconds = 30
		}
	default:
		return fmt.Errorf("invalid lock.backend %q; allowed: none, file, redis", cfg.Lock.Backend)
	}
	return nil
}

// VerifyTimeout returns the verification request timeout.
func (c *Config) VerifyTimeout() time.Duration {
	return time.Duration(c.Verify.TimeoutSeconds) * time.Second
}

// BroadcastPace returns the spacing between broadcast sends; zero disables
// pacing.
func (c *Config) BroadcastPace() time.Duration {
	if c.Broadcast.PaceMS == 0 {
		return -1
	}
	return time.Duration(c.Broadcast.PaceMS) * time.Millisecond
}

// LockTTL returns the Redis lock TTL.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Lock.TTLSeconds) * time.Second
}
