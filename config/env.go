package config

import (
	"fmt"
	"strconv"
	"time"
)

const envPrefix = "AGRI_"

type lookupFunc func(string) (string, bool)

// applyEnv overrides file values with AGRI_* environment variables.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}
	str("LISTEN_ADDRESS", &cfg.ListenAddress)
	str("DATA_DIR", &cfg.DataDir)
	str("GENESIS_FILE", &cfg.GenesisFile)
	str("ENV", &cfg.Environment)
	str("LOG_FILE", &cfg.LogFile)
	str("ESCROW_PROFILE", &cfg.Escrow.Profile)
	str("AUTH_HMAC_SECRET", &cfg.Auth.HMACSecret)
	str("AUTH_ISSUER", &cfg.Auth.Issuer)
	str("AUTH_AUDIENCE", &cfg.Auth.Audience)
	str("IDEMPOTENCY_DRIVER", &cfg.Idempotency.Driver)
	str("IDEMPOTENCY_DSN", &cfg.Idempotency.DSN)
	str("OTLP_ENDPOINT", &cfg.Telemetry.Endpoint)

	if v, ok := lookup(envPrefix + "ESCROW_RESERVE"); ok {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sESCROW_RESERVE: %w", envPrefix, err)
		}
		cfg.Escrow.Reserve = parsed
	}
	if v, ok := lookup(envPrefix + "RATE_LIMIT_RPM"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sRATE_LIMIT_RPM: %w", envPrefix, err)
		}
		cfg.RateLimit.RequestsPerMinute = parsed
	}
	if v, ok := lookup(envPrefix + "AUTH_CLOCK_SKEW"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sAUTH_CLOCK_SKEW: %w", envPrefix, err)
		}
		cfg.Auth.ClockSkew = parsed
	}
	if v, ok := lookup(envPrefix + "ORDERBOOK_ENABLED"); ok {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sORDERBOOK_ENABLED: %w", envPrefix, err)
		}
		cfg.OrderBook.Enabled = parsed
	}
	if v, ok := lookup(envPrefix + "OTLP_INSECURE"); ok {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sOTLP_INSECURE: %w", envPrefix, err)
		}
		cfg.Telemetry.Insecure = parsed
	}
	return nil
}
