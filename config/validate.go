package config

import (
	"fmt"
	"strings"

	"agrichain/native/escrow"
)

const (
	ProfileCompact  = "compact"
	ProfileExtended = "extended"
)

// Validate checks the configuration for values the node cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress must be set")
	}
	if _, err := c.EscrowEngineConfig(); err != nil {
		return err
	}
	if len(c.Auth.HMACSecret) < 32 {
		return fmt.Errorf("auth: HMACSecret must be at least 32 bytes")
	}
	if c.Auth.ClockSkew < 0 {
		return fmt.Errorf("auth: ClockSkew must not be negative")
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("ratelimit: RequestsPerMinute must be positive")
	}
	if c.RateLimit.Burst <= 0 {
		return fmt.Errorf("ratelimit: Burst must be positive")
	}
	switch strings.ToLower(c.Idempotency.Driver) {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("idempotency: unsupported driver %q", c.Idempotency.Driver)
	}
	if strings.TrimSpace(c.Idempotency.DSN) == "" {
		return fmt.Errorf("idempotency: DSN must be set")
	}
	return nil
}

// EscrowEngineConfig resolves the escrow section into engine parameters.
func (c *Config) EscrowEngineConfig() (escrow.Config, error) {
	out := escrow.Config{Reserve: c.Escrow.Reserve}
	switch strings.ToLower(strings.TrimSpace(c.Escrow.Profile)) {
	case "", ProfileCompact:
		out.MaxOrderDetailsLen = escrow.ProfileCompact
	case ProfileExtended:
		out.MaxOrderDetailsLen = escrow.ProfileExtended
	default:
		return out, fmt.Errorf("escrow: unknown profile %q", c.Escrow.Profile)
	}
	if c.Escrow.MaxOrderDetailsLen < 0 {
		return out, fmt.Errorf("escrow: MaxOrderDetailsLen must not be negative")
	}
	if c.Escrow.MaxOrderDetailsLen > 0 {
		out.MaxOrderDetailsLen = c.Escrow.MaxOrderDetailsLen
	}
	return out, nil
}
