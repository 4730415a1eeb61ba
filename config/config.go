package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/code-payments/billing-bridge/bridge"
	"github.com/code-payments/billing-bridge/event"
)

// Config holds the bridge configuration.
type Config struct {
	Env string

	ActionPolicy  event.Policy
	ActionTimeout time.Duration
	Strict        bool
	QueueSize     int
	Platform      string
	PackageName   string
}

// Load reads configuration from the environment, after loading a .env file if
// one exists.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Env:         getEnv("BRIDGE_ENV", "development"),
		Platform:    getEnv("BRIDGE_PLATFORM", "Android"),
		PackageName: getEnv("BRIDGE_PACKAGE_NAME", "com.example.app"),
	}

	policy, err := ParsePolicy(getEnv("BRIDGE_ACTION_POLICY", "once"))
	if err != nil {
		return nil, err
	}
	cfg.ActionPolicy = policy

	if cfg.ActionTimeout, err = getEnvDuration("BRIDGE_ACTION_TIMEOUT", 0); err != nil {
		return nil, err
	}
	if cfg.Strict, err = getEnvBool("BRIDGE_STRICT", false); err != nil {
		return nil, err
	}
	if cfg.QueueSize, err = getEnvInt("BRIDGE_QUEUE_SIZE", 256); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Options maps the configuration onto session options.
func (c *Config) Options() []bridge.Option {
	return []bridge.Option{
		bridge.WithActionPolicy(c.ActionPolicy),
		bridge.WithActionTimeout(c.ActionTimeout),
		bridge.WithStrictMode(c.Strict),
		bridge.WithQueueSize(c.QueueSize),
		bridge.WithPlatform(c.Platform),
	}
}

// Logger builds a development or production zap logger to match Env.
func (c *Config) Logger() (*zap.Logger, error) {
	if c.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func ParsePolicy(s string) (event.Policy, error) {
	switch strings.ToLower(s) {
	case "once", "":
		return event.FireOnce, nil
	case "per_item", "per-item":
		return event.FirePerItem, nil
	default:
		return event.FireOnce, errors.Errorf("unknown action policy %q", s)
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	return d, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Wrapf(err, "invalid %s", key)
	}
	return b, nil
}

func getEnvInt(key string, fallback int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	return n, nil
}
