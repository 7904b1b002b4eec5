package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/induction/core/model"
)

var testDate = time.Date(2025, 3, 14, 21, 30, 0, 0, time.UTC)

func record(id string, mileage float64) TrainsetRecord {
	return TrainsetRecord{
		ID:                  id,
		Certificates:        &CertificateRecord{RollingStock: Bool(true), Signaling: Bool(true), Telecom: Bool(true)},
		OpenCriticalJobCard: Bool(false),
		Mileage:             Float(mileage),
	}
}

func stabling(n int) []model.DepotBay {
	bays, _ := model.ExpandBays([]model.BayGroup{{Class: model.BayStabling, Count: n}})
	return bays
}

func TestAssembleSortsAndNormalizes(t *testing.T) {
	recs := []TrainsetRecord{record("TS-02", 2000), record("TS-01", 1000)}
	snap, err := Assemble("MUT", testDate, recs, stabling(2), model.Policy{ServiceQuota: 1}, testDate)
	require.NoError(t, err)
	assert.Equal(t, "TS-01", snap.Trainsets[0].ID)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), snap.Date)
	assert.Equal(t, 1500.0, snap.FleetMeanMileage)
	assert.Equal(t, 0.98, snap.Policy.SLAThreshold)
	assert.Empty(t, snap.Defaults)

	ts, ok := snap.Trainset("TS-02")
	require.True(t, ok)
	assert.True(t, ts.MileageKnown)
	_, ok = snap.Trainset("TS-99")
	assert.False(t, ok)
}

func TestAssembleReportsEveryMissingField(t *testing.T) {
	noCert := record("TS-01", 1000)
	noCert.Certificates = nil
	partial := record("TS-02", 1000)
	partial.Certificates.Telecom = nil
	noJob := record("TS-03", 1000)
	noJob.OpenCriticalJobCard = nil
	badBay := record("TS-04", 1000)
	badBay.CurrentBay = "STB-99"
	dup := record("TS-04", 1000)

	_, err := Assemble("MUT", testDate, []TrainsetRecord{noCert, partial, noJob, badBay, dup}, stabling(5), model.Policy{}, testDate)
	var dErr *DataIncompleteError
	require.True(t, errors.As(err, &dErr), "got %v", err)
	assert.ElementsMatch(t, []MissingField{
		{TrainsetID: "TS-01", Field: "certificates"},
		{TrainsetID: "TS-02", Field: "certificates.telecom"},
		{TrainsetID: "TS-03", Field: "open_critical_job_card"},
		{TrainsetID: "TS-04", Field: "current_bay"},
		{TrainsetID: "TS-04", Field: "duplicate_id"},
	}, dErr.Missing)
	assert.Contains(t, dErr.Error(), "TS-02.certificates.telecom")
}

func TestAssembleRejectsEmptyTopology(t *testing.T) {
	_, err := Assemble("MUT", testDate, []TrainsetRecord{record("TS-01", 1)}, nil, model.Policy{}, testDate)
	var dErr *DataIncompleteError
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, "topology", dErr.Missing[0].Field)
}

func TestAssembleDefaultsMissingMileageToMean(t *testing.T) {
	unknown := record("TS-03", 0)
	unknown.Mileage = nil
	recs := []TrainsetRecord{record("TS-01", 1000), record("TS-02", 3000), unknown}
	snap, err := Assemble("MUT", testDate, recs, stabling(3), model.Policy{}, testDate)
	require.NoError(t, err)
	ts, _ := snap.Trainset("TS-03")
	assert.False(t, ts.MileageKnown)
	assert.Equal(t, 2000.0, ts.Mileage)
	require.Len(t, snap.Defaults, 1)
	assert.Contains(t, snap.Defaults[0], "TS-03")
}

func TestAssembleBranding(t *testing.T) {
	deficit := record("TS-01", 1)
	deficit.Branding = &BrandingRecord{Tier: "High", VisibilityDeficit: Float(30)}
	none := record("TS-02", 1)
	none.Branding = &BrandingRecord{Tier: "none"}
	bad := record("TS-03", 1)
	bad.Branding = &BrandingRecord{Tier: "platinum"}

	_, err := Assemble("MUT", testDate, []TrainsetRecord{deficit, none, bad}, stabling(3), model.Policy{}, testDate)
	var dErr *DataIncompleteError
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, []MissingField{{TrainsetID: "TS-03", Field: "branding.tier"}}, dErr.Missing)

	snap, err := Assemble("MUT", testDate, []TrainsetRecord{deficit, none}, stabling(2), model.Policy{}, testDate)
	require.NoError(t, err)
	ts, _ := snap.Trainset("TS-01")
	require.NotNil(t, ts.Branding)
	assert.Equal(t, model.TierHigh, ts.Branding.Tier)
	assert.Equal(t, 30.0, ts.Branding.Deficit())
	assert.True(t, ts.BrandingAtRisk(snap.Policy.SLAThreshold))
	ts, _ = snap.Trainset("TS-02")
	assert.Nil(t, ts.Branding)
}

func TestAssembleRejectsInvalidPolicy(t *testing.T) {
	_, err := Assemble("MUT", testDate, []TrainsetRecord{record("TS-01", 1)}, stabling(1), model.Policy{SLAThreshold: 2}, testDate)
	require.Error(t, err)
	var dErr *DataIncompleteError
	assert.False(t, errors.As(err, &dErr))
}

func TestAssembleKeepsZeroCapacities(t *testing.T) {
	pol := model.DefaultPolicy()
	pol.CleaningSlots = 0
	pol.IBLCapacity = 0
	snap, err := Assemble("MUT", testDate, []TrainsetRecord{record("TS-01", 1)}, stabling(1), pol, testDate)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Policy.CleaningSlots)
	assert.Equal(t, 0, snap.Policy.IBLCapacity)
	assert.Equal(t, model.DefaultServiceQuota, snap.Policy.ServiceQuota)
}

func TestFingerprintIgnoresTakenAt(t *testing.T) {
	recs := []TrainsetRecord{record("TS-01", 1000)}
	a, err := Assemble("MUT", testDate, recs, stabling(1), model.Policy{}, testDate)
	require.NoError(t, err)
	b, err := Assemble("MUT", testDate, recs, stabling(1), model.Policy{}, testDate.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	recs[0].Mileage = Float(1001)
	c, err := Assemble("MUT", testDate, recs, stabling(1), model.Policy{}, testDate)
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

type failingSource struct{ StaticSource }

func (failingSource) Topology(context.Context, string) (Topology, error) {
	return Topology{}, errors.New("depot registry offline")
}

func TestBuilderBuild(t *testing.T) {
	now := time.Date(2025, 3, 14, 22, 0, 0, 0, time.UTC)
	b := NewBuilder(SyntheticFleet(25), model.DefaultPolicy(), nil).WithClock(func() time.Time { return now })
	snap, err := b.Build(context.Background(), "MUT", testDate)
	require.NoError(t, err)
	assert.Len(t, snap.Trainsets, 25)
	assert.Equal(t, now, snap.TakenAt)
	counts := snap.BayCounts()
	assert.Equal(t, 22, counts[model.BayStabling])
	assert.Equal(t, 2, counts[model.BayMaintenance])
	assert.Equal(t, 3, counts[model.BayWash])

	a, _ := snap.Trainset("TS-05")
	assert.False(t, a.Certificates.Valid())
	bts, _ := snap.Trainset("TS-10")
	assert.True(t, bts.OpenCriticalJobCard)

	_, err = NewBuilder(failingSource{SyntheticFleet(3)}, model.DefaultPolicy(), nil).Build(context.Background(), "MUT", testDate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read topology")
}
