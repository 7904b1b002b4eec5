package audit

import (
	"fmt"

	"github.com/kilianp07/induction/core/factory"
	"github.com/kilianp07/induction/core/schedule"
)

var registry = factory.NewRegistry[schedule.Ledger]("audit ledger")

// JSONLConfig configures the rotating JSONL ledger. The ledger is append
// only, so retention settings are rejected rather than honoured.
type JSONLConfig struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Validate rejects settings that would delete rotated entries.
func (c JSONLConfig) Validate() error {
	if c.MaxBackups != 0 || c.MaxAgeDays != 0 {
		return fmt.Errorf("jsonl ledger keeps every rotated file: max_backups and max_age_days must be 0")
	}
	if c.MaxSizeMB < 0 {
		return fmt.Errorf("max_size_mb must not be negative")
	}
	return nil
}

// SQLiteConfig configures the SQLite ledger.
type SQLiteConfig struct {
	Path string `json:"path"`
}

func init() {
	registry.MustRegister("memory", func(map[string]any) (schedule.Ledger, error) {
		return schedule.NewMemoryLedger(), nil
	})
	registry.MustRegister("jsonl", func(conf map[string]any) (schedule.Ledger, error) {
		c := JSONLConfig{Path: "data/ledger.jsonl", MaxSizeMB: 10}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		l, err := NewJSONLLedger(c.Path, c.MaxSizeMB)
		if err != nil {
			return nil, err
		}
		return l, nil
	})
	registry.MustRegister("sqlite", func(conf map[string]any) (schedule.Ledger, error) {
		c := SQLiteConfig{Path: "data/ledger.db"}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		l, err := NewSQLiteLedger(c.Path)
		if err != nil {
			return nil, err
		}
		return l, nil
	})
}

// NewLedger builds the configured ledgers. No configuration yields an
// in-memory ledger; several backends are combined so the first one serves
// reads.
func NewLedger(cfgs []factory.ModuleConfig) (schedule.Ledger, error) {
	return registry.Build(cfgs,
		func() schedule.Ledger { return schedule.NewMemoryLedger() },
		func(l []schedule.Ledger) schedule.Ledger { return schedule.MultiLedger(l) },
	)
}
