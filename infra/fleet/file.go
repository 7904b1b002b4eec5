// Package fleet provides snapshot sources backed by fleet definition files
// or a generated demonstration fleet.
package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/core/snapshot"
)

// ErrUnknownDepot is returned for a depot missing from the fleet file.
var ErrUnknownDepot = errors.New("unknown depot")

// Layout is the coarse depot description used by depot records: a number
// of stabling lines, maintenance bays and wash lines.
type Layout struct {
	StablingLines   int `json:"stablingLines" yaml:"stabling_lines"`
	MaintenanceBays int `json:"maintenanceBays" yaml:"maintenance_bays"`
	WashLines       int `json:"washLines" yaml:"wash_lines"`
}

// Groups expands the layout into bay groups.
func (l Layout) Groups() []model.BayGroup {
	var out []model.BayGroup
	for _, g := range []model.BayGroup{
		{Class: model.BayStabling, Count: l.StablingLines},
		{Class: model.BayMaintenance, Count: l.MaintenanceBays},
		{Class: model.BayWash, Count: l.WashLines},
	} {
		if g.Count > 0 {
			out = append(out, g)
		}
	}
	return out
}

// Depot is the fleet definition of one depot.
type Depot struct {
	Name      string                    `json:"name,omitempty" yaml:"name,omitempty"`
	Layout    *Layout                   `json:"layout,omitempty" yaml:"layout,omitempty"`
	Topology  snapshot.Topology         `json:"topology" yaml:"topology"`
	Trainsets []snapshot.TrainsetRecord `json:"trainsets" yaml:"trainsets"`
}

// topology merges the layout groups ahead of the explicit topology.
func (d Depot) topology() snapshot.Topology {
	t := snapshot.Topology{Bays: d.Topology.Bays}
	if d.Layout != nil {
		t.Groups = append(t.Groups, d.Layout.Groups()...)
	}
	t.Groups = append(t.Groups, d.Topology.Groups...)
	return t
}

// File is the content of a fleet definition file.
type File struct {
	Depots map[string]Depot `json:"depots" yaml:"depots"`
}

// Load parses a YAML or JSON fleet file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	case ".json":
		err = json.Unmarshal(data, &f)
	default:
		return nil, fmt.Errorf("unsupported fleet file format: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &f, nil
}

// FileSource reads the fleet file on every call so that the nightly run
// sees the records exported that evening.
type FileSource struct {
	Path string
}

var _ snapshot.Source = FileSource{}

func (f *File) depot(id string) (Depot, error) {
	d, ok := f.Depots[id]
	if !ok {
		return Depot{}, fmt.Errorf("%w: %s", ErrUnknownDepot, id)
	}
	return d, nil
}

func (s FileSource) depot(id string) (Depot, error) {
	f, err := Load(s.Path)
	if err != nil {
		return Depot{}, err
	}
	return f.depot(id)
}

// Trainsets returns the trainset records of a depot.
func (s FileSource) Trainsets(_ context.Context, depotID string) ([]snapshot.TrainsetRecord, error) {
	d, err := s.depot(depotID)
	if err != nil {
		return nil, err
	}
	return d.Trainsets, nil
}

// Topology returns the bay layout of a depot.
func (s FileSource) Topology(_ context.Context, depotID string) (snapshot.Topology, error) {
	d, err := s.depot(depotID)
	if err != nil {
		return snapshot.Topology{}, err
	}
	return d.topology(), nil
}
