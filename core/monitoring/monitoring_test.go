package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	errs    []error
	panics  []any
	tags    []map[string]string
	flushes int
}

func (r *recorder) CaptureException(err error, tags map[string]string) {
	r.errs = append(r.errs, err)
	r.tags = append(r.tags, tags)
}

func (r *recorder) CapturePanic(v any, tags map[string]string) {
	r.panics = append(r.panics, v)
	r.tags = append(r.tags, tags)
}

func (r *recorder) Flush(time.Duration) { r.flushes++ }

func install(t *testing.T) *recorder {
	t.Helper()
	r := &recorder{}
	Init(r)
	t.Cleanup(func() { Init(nil) })
	return r
}

func TestCaptureException(t *testing.T) {
	r := install(t)
	CaptureException(nil, nil)
	CaptureException(errors.New("solver crashed"), RunTags("MUT", time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), StageSolve))
	require.Len(t, r.errs, 1)
	assert.Equal(t, map[string]string{"depot_id": "MUT", "stage": "solve", "date": "2025-03-15"}, r.tags[0])

	Flush(time.Second)
	assert.Equal(t, 1, r.flushes)
}

func TestRecoverReportsAndRepanics(t *testing.T) {
	r := install(t)
	assert.PanicsWithValue(t, "bay index out of range", func() {
		defer Recover(map[string]string{"module": "scheduler"})
		panic("bay index out of range")
	})
	require.Equal(t, []any{"bay index out of range"}, r.panics)
	assert.Equal(t, "scheduler", r.tags[0]["module"])
	assert.Equal(t, 1, r.flushes)
}

func TestRunTagsWithoutDate(t *testing.T) {
	assert.NotContains(t, RunTags("ALV", time.Time{}, StageSnapshot), "date")
}
