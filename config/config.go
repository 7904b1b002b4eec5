package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/induction/core/factory"
	"github.com/kilianp07/induction/core/metrics"
	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/infra/logger"
	"github.com/kilianp07/induction/infra/mqtt"
)

type Config struct {
	Planning PlanningConfig         `json:"planning"`
	Policy   model.Policy           `json:"policy"`
	Solver   SolverConfig           `json:"solver"`
	Store    StoreConfig            `json:"store"`
	Audit    []factory.ModuleConfig `json:"audit"`
	Metrics  metrics.Config         `json:"metrics"`
	MQTT     mqtt.Config            `json:"mqtt"`
	API      APIConfig              `json:"api"`
	Sentry   SentryConfig           `json:"sentry"`
	Logging  logger.Config          `json:"logging"`
}

// Load reads a YAML or JSON file, applies K_ environment overrides
// (K_SOLVER__TIMEOUT_SECONDS=10 sets solver.timeout_seconds) and validates
// every section.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	// Keys absent from the file keep the reference policy; a zero capacity
	// that is present stays zero.
	cfg := Config{Policy: model.DefaultPolicy()}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied. It plans the
// synthetic fleet and keeps schedules in memory.
func Default() *Config {
	cfg := &Config{Policy: model.DefaultPolicy()}
	cfg.Planning.Fleet.Kind = "synthetic"
	cfg.SetDefaults()
	return cfg
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.Planning.SetDefaults()
	c.Policy.SetDefaults()
	c.Solver.SetDefaults()
	c.Store.SetDefaults()
	c.API.SetDefaults()
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = mqtt.DefaultTopicPrefix
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Planning.Validate(); err != nil {
		return fmt.Errorf("planning: %w", err)
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	if err := c.Solver.Validate(); err != nil {
		return fmt.Errorf("solver: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt: broker is required when enabled")
	}
	return nil
}
