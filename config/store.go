package config

import "fmt"

// StoreConfig selects the schedule store: "memory" or "sqlite".
type StoreConfig struct {
	Backend string `json:"backend"`
	Path    string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.Backend == "sqlite" && c.Path == "" {
		c.Path = "data/schedules.db"
	}
}

// Validate checks mandatory fields.
func (c StoreConfig) Validate() error {
	if c.Backend != "memory" && c.Backend != "sqlite" {
		return fmt.Errorf("unknown backend %s", c.Backend)
	}
	return nil
}
