package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/layer-3/promox/core"
	"github.com/layer-3/promox/paygate"
)

// Prefix is prepended to every environment variable, e.g. PROMOX_PORT
const Prefix = "PROMOX"

const minSecretLength = 32

// Config contains all configuration parameters for the server
type Config struct {
	Port   string `envconfig:"PORT" default:"9000"`
	Domain string `envconfig:"DOMAIN"`

	EncryptionSecret string `envconfig:"ENCRYPTION_SECRET" required:"true"`
	JWTSecret        string `envconfig:"JWT_SECRET" required:"true"`

	// Empty URLs select the in-memory implementations
	RedisURL    string `envconfig:"REDIS_URL"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	RPCURL      string `envconfig:"RPC_URL"`

	RPCTimeout time.Duration `envconfig:"RPC_TIMEOUT" default:"10s"`

	Network            string        `envconfig:"NETWORK" default:"base-sepolia"`
	FacilitatorURL     string        `envconfig:"FACILITATOR_URL" default:"https://x402.org/facilitator"`
	FacilitatorAPIKey  string        `envconfig:"FACILITATOR_API_KEY"`
	FacilitatorTimeout time.Duration `envconfig:"FACILITATOR_TIMEOUT" default:"30s"`
	ResourceRootURL    string        `envconfig:"RESOURCE_ROOT_URL"`

	NonceTTL      time.Duration `envconfig:"NONCE_TTL" default:"5m"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"168h"`
	SecureCookies bool          `envconfig:"SECURE_COOKIES" default:"true"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads the configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(Prefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	return cfg, nil
}

// Validate reports settings the server cannot start with
func (c *Config) Validate() error {
	if len(c.EncryptionSecret) < minSecretLength {
		return fmt.Errorf("%w: ENCRYPTION_SECRET must be at least %d characters", core.ErrConfiguration, minSecretLength)
	}
	if len(c.JWTSecret) < minSecretLength {
		return fmt.Errorf("%w: JWT_SECRET must be at least %d characters", core.ErrConfiguration, minSecretLength)
	}
	if _, err := paygate.LookupNetwork(c.Network); err != nil {
		return fmt.Errorf("%w: %v", core.ErrConfiguration, err)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("%w: unknown LOG_LEVEL %q", core.ErrConfiguration, c.LogLevel)
	}
	return level, nil
}
