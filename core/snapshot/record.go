package snapshot

import (
	"context"

	"github.com/kilianp07/induction/core/model"
)

// CertificateRecord is the raw certificate state reported by the fleet
// records. A nil field means the certificate record is missing.
type CertificateRecord struct {
	RollingStock *bool `json:"rollingStock" yaml:"rolling_stock"`
	Signaling    *bool `json:"signaling" yaml:"signaling"`
	Telecom      *bool `json:"telecom" yaml:"telecom"`
}

// BrandingRecord is the raw branding assignment of a trainset. Either the
// visibility pair or VisibilityDeficit is expected.
type BrandingRecord struct {
	Tier               string   `json:"tier" yaml:"tier"`
	RequiredVisibility float64  `json:"requiredVisibility" yaml:"required_visibility"`
	CurrentVisibility  float64  `json:"currentVisibility" yaml:"current_visibility"`
	VisibilityDeficit  *float64 `json:"visibilityDeficit,omitempty" yaml:"visibility_deficit,omitempty"`
}

// TrainsetRecord is one trainset as read from the fleet records.
type TrainsetRecord struct {
	ID                  string             `json:"id" yaml:"id"`
	Certificates        *CertificateRecord `json:"certificates" yaml:"certificates"`
	OpenCriticalJobCard *bool              `json:"openCriticalJobCard" yaml:"open_critical_job_card"`
	Mileage             *float64           `json:"mileage,omitempty" yaml:"mileage,omitempty"`
	Branding            *BrandingRecord    `json:"branding,omitempty" yaml:"branding,omitempty"`
	CleaningDue         bool               `json:"cleaningDue" yaml:"cleaning_due"`
	CurrentBay          string             `json:"currentBay,omitempty" yaml:"current_bay,omitempty"`
}

// Topology describes the bays of a depot either as class counts, explicit
// bays, or both. Groups are expanded before explicit bays are appended.
type Topology struct {
	Groups []model.BayGroup `json:"groups" yaml:"groups"`
	Bays   []model.DepotBay `json:"bays" yaml:"bays"`
}

// Expand returns the concrete bays of the topology.
func (t Topology) Expand() ([]model.DepotBay, error) {
	bays, err := model.ExpandBays(t.Groups)
	if err != nil {
		return nil, err
	}
	return append(bays, t.Bays...), nil
}

// Source provides the fleet data of a depot. Implementations read whatever
// system of record holds trainset, job-card and branding data.
type Source interface {
	Trainsets(ctx context.Context, depotID string) ([]TrainsetRecord, error)
	Topology(ctx context.Context, depotID string) (Topology, error)
}

// StaticSource serves fixed records for every depot.
type StaticSource struct {
	Records []TrainsetRecord
	Layout  Topology
}

func (s StaticSource) Trainsets(context.Context, string) ([]TrainsetRecord, error) {
	return append([]TrainsetRecord(nil), s.Records...), nil
}

func (s StaticSource) Topology(context.Context, string) (Topology, error) { return s.Layout, nil }

// Bool returns a pointer to v. It keeps record literals short.
func Bool(v bool) *bool { return &v }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
