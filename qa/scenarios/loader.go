package scenarios

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/core/snapshot"
	"github.com/kilianp07/induction/infra/fleet"
)

// Expected describes the outcome a scenario must produce. Zero fields are
// not checked.
type Expected struct {
	// Error is "data_incomplete" or "infeasible" when the run must fail.
	Error           string         `yaml:"error,omitempty"`
	InfeasibleClass string         `yaml:"infeasible_class,omitempty"`
	Missing         []string       `yaml:"missing,omitempty"`
	Code            string         `yaml:"code,omitempty"`
	Service         *int           `yaml:"service,omitempty"`
	InService       []string       `yaml:"in_service,omitempty"`
	InIBL           []string       `yaml:"in_ibl,omitempty"`
	Conflicts       map[string]int `yaml:"conflicts,omitempty"`
}

// Scenario is a depot night replayed through the planning pipeline.
type Scenario struct {
	Name          string                    `yaml:"name"`
	Description   string                    `yaml:"description,omitempty"`
	ServiceQuota  int                       `yaml:"service_quota"`
	IBLCapacity   *int                      `yaml:"ibl_capacity,omitempty"`
	CleaningSlots *int                      `yaml:"cleaning_slots,omitempty"`
	Layout        fleet.Layout              `yaml:"layout"`
	Trainsets     []snapshot.TrainsetRecord `yaml:"trainsets"`
	Expected      Expected                  `yaml:"expected"`
}

// Policy returns the default policy with the scenario's capacities.
func (s *Scenario) Policy() model.Policy {
	p := model.DefaultPolicy()
	p.ServiceQuota = s.ServiceQuota
	if s.IBLCapacity != nil {
		p.IBLCapacity = *s.IBLCapacity
	}
	if s.CleaningSlots != nil {
		p.CleaningSlots = *s.CleaningSlots
	}
	return p
}

// Source serves the scenario's records for any depot.
func (s *Scenario) Source() snapshot.StaticSource {
	return snapshot.StaticSource{
		Records: s.Trainsets,
		Layout:  snapshot.Topology{Groups: s.Layout.Groups()},
	}
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("%s: scenario name is required", path)
	}
	if sc.ServiceQuota <= 0 {
		return nil, fmt.Errorf("%s: service_quota must be positive", path)
	}
	return &sc, nil
}
