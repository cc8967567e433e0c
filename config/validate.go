package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for values the daemon cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress must not be empty")
	}
	switch strings.ToLower(strings.TrimSpace(c.Backend)) {
	case "memory", "leveldb", "bolt":
	default:
		return fmt.Errorf("config: unsupported Backend %q (memory, leveldb, bolt)", c.Backend)
	}
	if c.Backend != "memory" && strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required for backend %q", c.Backend)
	}
	if c.Fees.BpsDenom == 0 {
		return fmt.Errorf("config: fees.BpsDenom must be positive")
	}
	if c.Fees.FeeBps > c.Fees.BpsDenom {
		return fmt.Errorf("config: fees.FeeBps %d exceeds denominator %d", c.Fees.FeeBps, c.Fees.BpsDenom)
	}
	switch strings.ToLower(strings.TrimSpace(c.Venue.Mode)) {
	case "static":
		for _, rate := range c.Venue.StaticRates {
			if rate.Denominator == 0 {
				return fmt.Errorf("config: venue rate %s->%s has zero denominator", rate.Source, rate.Destination)
			}
		}
	case "http":
		if strings.TrimSpace(c.Venue.Endpoint) == "" {
			return fmt.Errorf("config: venue.Endpoint required for http venue")
		}
	default:
		return fmt.Errorf("config: unsupported venue.Mode %q (static, http)", c.Venue.Mode)
	}
	if c.RPC.RateLimitPerSecond < 0 {
		return fmt.Errorf("config: rpc.RateLimitPerSecond must not be negative")
	}
	if c.RPC.RateBurst < 0 {
		return fmt.Errorf("config: rpc.RateBurst must not be negative")
	}
	return nil
}
