package snapshot

import (
	"fmt"

	"github.com/kilianp07/induction/core/model"
)

// SyntheticFleet generates a deterministic demonstration fleet of n
// trainsets. Trainset 5 fails every certificate, trainset 10 carries an open
// critical job card, branding tiers cycle High, Medium, Low and mileage grows
// by 1000 km per trainset. Every fourth campaign is behind its visibility
// target and every fifth trainset is due for cleaning.
func SyntheticFleet(n int) StaticSource {
	layout := Topology{Groups: []model.BayGroup{
		{Class: model.BayStabling, Count: n - 3},
		{Class: model.BayMaintenance, Count: 2},
		{Class: model.BayWash, Count: 3},
	}}
	bays, _ := layout.Expand()
	tiers := []string{"high", "medium", "low"}
	recs := make([]TrainsetRecord, 0, n)
	for i := 0; i < n; i++ {
		num := i + 1
		certOK := num != 5
		current := 92.0
		if i%4 == 0 {
			current = 60
		}
		r := TrainsetRecord{
			ID: fmt.Sprintf("TS-%02d", num),
			Certificates: &CertificateRecord{
				RollingStock: Bool(certOK),
				Signaling:    Bool(certOK),
				Telecom:      Bool(certOK),
			},
			OpenCriticalJobCard: Bool(num == 10),
			Mileage:             Float(float64(num) * 1000),
			Branding: &BrandingRecord{
				Tier:               tiers[i%3],
				RequiredVisibility: 90,
				CurrentVisibility:  current,
			},
			CleaningDue: i%5 == 2,
		}
		if i < len(bays) {
			r.CurrentBay = bays[i].ID
		}
		recs = append(recs, r)
	}
	return StaticSource{Records: recs, Layout: layout}
}
