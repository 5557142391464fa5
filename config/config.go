package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the runtime configuration of the reward engine.
type Config struct {
	DatabaseURL  string `env:"DATABASE_URL,required,notEmpty"`
	ListenAddr   string `env:"LISTEN_ADDR" envDefault:":5200"`
	ServiceToken string `env:"GAME_SERVICE_TOKEN,required,notEmpty"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile     string `env:"LOG_FILE"` // rotated with lumberjack when set

	ConfigCacheTTL      time.Duration `env:"CONFIG_CACHE_TTL" envDefault:"2m"`
	ConfigSweepInterval time.Duration `env:"CONFIG_SWEEP_INTERVAL" envDefault:"5m"`
	WorkCooldown        time.Duration `env:"WORK_COOLDOWN" envDefault:"1h"`
	LevelUpQueueSize    int           `env:"LEVELUP_QUEUE_SIZE" envDefault:"256"`

	// JobCatalog is a YAML file path or an s3://bucket/key object. Empty
	// serves the built-in catalog.
	JobCatalog string `env:"JOB_CATALOG"`

	// NotifierURL receives level-up events as JSON. Empty logs them instead.
	NotifierURL string `env:"NOTIFIER_URL"`

	Vault VaultConfig `envPrefix:"VAULT_"`
	R2    R2Config
}

// VaultConfig holds the capacity and upgrade-cost curve constants.
type VaultConfig struct {
	BaseCapacity     int64   `env:"BASE_CAPACITY" envDefault:"50000"`
	PerLevelCapacity int64   `env:"PER_LEVEL_CAPACITY" envDefault:"25000"`
	BaseUpgradeCost  int64   `env:"BASE_UPGRADE_COST" envDefault:"15000"`
	UpgradeGrowth    float64 `env:"UPGRADE_GROWTH" envDefault:"1.5"`
}

// R2Config holds Cloudflare R2 credentials used to fetch an s3:// job catalog.
type R2Config struct {
	AccountID       string `env:"CLOUDFLARE_ACCOUNT_ID"`
	AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"R2_ACCESS_KEY_SECRET"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	return FromEnv()
}

// FromEnv parses and validates the configuration from the environment only.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.ConfigCacheTTL <= 0 {
		errs = append(errs, errors.New("CONFIG_CACHE_TTL must be positive"))
	}
	if c.ConfigSweepInterval <= 0 {
		errs = append(errs, errors.New("CONFIG_SWEEP_INTERVAL must be positive"))
	}
	if c.WorkCooldown <= 0 {
		errs = append(errs, errors.New("WORK_COOLDOWN must be positive"))
	}
	if c.LevelUpQueueSize <= 0 {
		errs = append(errs, errors.New("LEVELUP_QUEUE_SIZE must be positive"))
	}
	if c.Vault.BaseCapacity < 0 || c.Vault.PerLevelCapacity < 0 {
		errs = append(errs, errors.New("vault capacity constants must not be negative"))
	}
	if c.Vault.BaseUpgradeCost < 1 {
		errs = append(errs, errors.New("VAULT_BASE_UPGRADE_COST must be at least 1"))
	}
	if c.Vault.UpgradeGrowth <= 1 {
		errs = append(errs, errors.New("VAULT_UPGRADE_GROWTH must be greater than 1"))
	}
	return errors.Join(errs...)
}
