package fleet

import (
	"fmt"
	"time"

	"github.com/kilianp07/induction/auth"
	"github.com/kilianp07/induction/core/logger"
	"github.com/kilianp07/induction/core/snapshot"
)

// Source kinds accepted by NewSource.
const (
	KindFile      = "file"
	KindSynthetic = "synthetic"
	KindHTTP      = "http"
)

// DefaultSyntheticSize is the size of the generated fleet.
const DefaultSyntheticSize = 25

// Config selects the fleet source.
type Config struct {
	Kind           string    `json:"kind"`
	Path           string    `json:"path"`
	Watch          bool      `json:"watch"`
	Trainsets      int       `json:"trainsets"`
	URL            string    `json:"url"`
	TimeoutSeconds int       `json:"timeout_seconds"`
	Auth           auth.Conf `json:"auth"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Kind == "" {
		c.Kind = KindFile
	}
	if c.Trainsets <= 0 {
		c.Trainsets = DefaultSyntheticSize
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	switch c.Kind {
	case KindFile:
		if c.Path == "" {
			return fmt.Errorf("fleet path is required")
		}
	case KindHTTP:
		if c.URL == "" {
			return fmt.Errorf("fleet url is required")
		}
	case KindSynthetic:
		if c.Trainsets < 4 {
			return fmt.Errorf("synthetic fleet needs at least 4 trainsets")
		}
	default:
		return fmt.Errorf("unknown fleet source %q", c.Kind)
	}
	return nil
}

// NewSource builds the snapshot source described by cfg. A watched file
// source must be closed; it implements io.Closer.
func NewSource(cfg Config, log logger.Logger) (snapshot.Source, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case KindSynthetic:
		return snapshot.SyntheticFleet(cfg.Trainsets), nil
	case KindHTTP:
		return NewHTTPSource(cfg.URL, cfg.Auth, time.Duration(cfg.TimeoutSeconds)*time.Second), nil
	}
	if cfg.Watch {
		return WatchFile(cfg.Path, log)
	}
	return FileSource{Path: cfg.Path}, nil
}
