package config

import (
	"fmt"

	"golang.org/x/time/rate"
)

// APIConfig configures the HTTP server. An empty Token disables
// authentication.
type APIConfig struct {
	Addr  string `json:"addr"`
	Token string `json:"token"`
	// PlansPerMinute limits on-demand planning runs. Zero disables the limit.
	PlansPerMinute float64 `json:"plans_per_minute"`
	PlanBurst      int     `json:"plan_burst"`
}

// SetDefaults applies sane defaults.
func (c *APIConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.PlanBurst <= 0 {
		c.PlanBurst = 1
	}
}

// Validate rejects negative rates.
func (c APIConfig) Validate() error {
	if c.PlansPerMinute < 0 {
		return fmt.Errorf("plans_per_minute must not be negative")
	}
	return nil
}

// PlanLimiter returns the limiter of planning requests, nil when unlimited.
func (c APIConfig) PlanLimiter() *rate.Limiter {
	if c.PlansPerMinute == 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(c.PlansPerMinute/60), c.PlanBurst)
}
