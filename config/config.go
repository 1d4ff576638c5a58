package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the escrowd node configuration.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	// DataDir holds the LevelDB state. Empty keeps state in memory.
	DataDir     string `toml:"DataDir"`
	GenesisFile string `toml:"GenesisFile"`
	Environment string `toml:"Environment"`
	LogFile     string `toml:"LogFile"`

	Escrow      EscrowConfig      `toml:"Escrow"`
	Auth        AuthConfig        `toml:"Auth"`
	RateLimit   RateLimitConfig   `toml:"RateLimit"`
	Idempotency IdempotencyConfig `toml:"Idempotency"`
	OrderBook   OrderBookConfig   `toml:"OrderBook"`
	Telemetry   TelemetryConfig   `toml:"Telemetry"`
}

type EscrowConfig struct {
	// Profile selects a preset order details limit: "compact" or "extended".
	Profile string `toml:"Profile"`
	// MaxOrderDetailsLen overrides the profile when positive.
	MaxOrderDetailsLen int    `toml:"MaxOrderDetailsLen"`
	Reserve            uint64 `toml:"Reserve"`
}

type AuthConfig struct {
	HMACSecret string        `toml:"HMACSecret"`
	Issuer     string        `toml:"Issuer"`
	Audience   string        `toml:"Audience"`
	ClockSkew  time.Duration `toml:"ClockSkew"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `toml:"RequestsPerMinute"`
	Burst             int `toml:"Burst"`
}

// IdempotencyConfig selects the gateway database. The order book shares it.
type IdempotencyConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

type OrderBookConfig struct {
	Enabled bool `toml:"Enabled"`
}

type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

// Default returns the configuration written for a fresh node.
func Default() *Config {
	return &Config{
		ListenAddress: ":8080",
		DataDir:       "./agri-data",
		Environment:   "dev",
		Escrow: EscrowConfig{
			Profile: ProfileCompact,
		},
		Auth: AuthConfig{
			Issuer:    "agrichain",
			Audience:  "escrowd",
			ClockSkew: time.Minute,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 120,
			Burst:             20,
		},
		Idempotency: IdempotencyConfig{
			Driver: "sqlite",
			DSN:    "file:idempotency.db?cache=shared",
		},
		OrderBook: OrderBookConfig{Enabled: true},
	}
}

// Load reads the configuration at path, creating it with defaults when it
// does not exist. Environment overrides are applied before validation.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := persist(path, cfg); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
		return finish(cfg)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0])
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
