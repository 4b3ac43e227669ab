package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"github.com/CloudNativeWorks/cnw-activation-sdk/cnwactivation"
	"github.com/CloudNativeWorks/cnw-activation-sdk/cnwactivation/persistence"
)

const envPrefix = "CNW_ACTIVATION"

// Config is read from CNW_ACTIVATION_* environment variables.
type Config struct {
	ServerURL       string        `envconfig:"SERVER_URL" required:"true"`
	ProductID       string        `envconfig:"PRODUCT_ID" required:"true"`
	PublicKeyFile   string        `envconfig:"PUBLIC_KEY_FILE" required:"true"`
	StoreDriver     string        `envconfig:"STORE_DRIVER" default:"file"`
	StoreDSN        string        `envconfig:"STORE_DSN"`
	StorePassphrase string        `envconfig:"STORE_PASSPHRASE"`
	AppVersion      string        `envconfig:"APP_VERSION"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	Timeout         time.Duration `envconfig:"TIMEOUT" default:"10s"`
	RateLimit       float64       `envconfig:"RATE_LIMIT"`
	MetricsAddr     string        `envconfig:"METRICS_ADDR"`
}

// loadConfig loads envFile into the environment when it exists, then reads
// the configuration. Variables already set win over the file.
func loadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.StoreDSN == "" {
		dsn, err := defaultStoreDir(cfg.ProductID)
		if err != nil {
			return nil, err
		}
		cfg.StoreDSN = dsn
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if !cnwactivation.ValidateProductID(c.ProductID) {
		return fmt.Errorf("%s_PRODUCT_ID %q is not a UUID", envPrefix, c.ProductID)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%s_LOG_LEVEL: %w", envPrefix, err)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%s_TIMEOUT must be positive", envPrefix)
	}
	switch strings.ToLower(c.StoreDriver) {
	case persistence.DriverFile, persistence.DriverSQLite, persistence.DriverMemory:
	case persistence.DriverPostgres, persistence.DriverMongo, persistence.DriverRedis:
		if c.StoreDSN == "" {
			return fmt.Errorf("%s_STORE_DSN is required for driver %s", envPrefix, c.StoreDriver)
		}
	default:
		return fmt.Errorf("%s_STORE_DRIVER %q is not supported", envPrefix, c.StoreDriver)
	}
	return nil
}

// defaultStoreDir is the per-user state directory for file and sqlite stores.
func defaultStoreDir(productID string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve state dir: %w", err)
	}
	return filepath.Join(dir, "cnw-activation", productID), nil
}
