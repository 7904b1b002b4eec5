package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"github.com/kilianp07/induction/infra/fleet"
)

// PlanningConfig drives the nightly runs.
type PlanningConfig struct {
	// Depots lists the depots planned every night.
	Depots []string `json:"depots"`
	// Operator signs drafts produced by scheduled runs.
	Operator string `json:"operator"`
	// PlanCron triggers the nightly run, ExecuteCron marks the finalized
	// schedule of the operating day as executed.
	PlanCron    string `json:"plan_cron"`
	ExecuteCron string `json:"execute_cron"`
	TimeZone    string `json:"time_zone"`
	// DayOffset selects the operating day relative to the trigger time.
	DayOffset *int `json:"day_offset"`
	// Parallelism bounds the depots solved at the same time.
	Parallelism int          `json:"parallelism"`
	Fleet       fleet.Config `json:"fleet"`
}

// SetDefaults applies sane defaults.
func (c *PlanningConfig) SetDefaults() {
	if len(c.Depots) == 0 {
		c.Depots = []string{"MUT"}
	}
	if c.Operator == "" {
		c.Operator = "induction-planner"
	}
	if c.PlanCron == "" {
		c.PlanCron = "0 21 * * *"
	}
	if c.ExecuteCron == "" {
		c.ExecuteCron = "0 5 * * *"
	}
	if c.TimeZone == "" {
		c.TimeZone = "UTC"
	}
	if c.DayOffset == nil {
		one := 1
		c.DayOffset = &one
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 2
	}
	c.Fleet.SetDefaults()
}

// Validate checks the schedule expressions and fleet source.
func (c PlanningConfig) Validate() error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, expr := range map[string]string{"plan_cron": c.PlanCron, "execute_cron": c.ExecuteCron} {
		if _, err := parser.Parse(expr); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("time_zone: %w", err)
	}
	for _, d := range c.Depots {
		if d == "" {
			return fmt.Errorf("empty depot id")
		}
	}
	return c.Fleet.Validate()
}

// Location returns the configured time zone.
func (c PlanningConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// OperatingDay returns the day planned by a run triggered at t.
func (c PlanningConfig) OperatingDay(t time.Time) time.Time {
	offset := 1
	if c.DayOffset != nil {
		offset = *c.DayOffset
	}
	local := t.In(c.Location())
	y, m, d := local.Date()
	return time.Date(y, m, d+offset, 0, 0, 0, 0, time.UTC)
}
