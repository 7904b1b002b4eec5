package config

import (
	"fmt"
	"time"
)

// SolverConfig bounds the optimisation.
type SolverConfig struct {
	TimeoutSeconds int `json:"timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *SolverConfig) SetDefaults() {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 30
	}
}

// Validate checks the timeout.
func (c SolverConfig) Validate() error {
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must not be negative")
	}
	return nil
}

// Timeout returns the solver time budget.
func (c SolverConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
