// Package monitoring routes planning failures to the configured error
// tracker. Packages report through the functions of this package; the
// process installs the tracker once with Init.
package monitoring

import (
	"sync/atomic"
	"time"
)

// Monitor is implemented by error trackers.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	CapturePanic(v any, tags map[string]string)
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) CapturePanic(any, map[string]string)       {}
func (NopMonitor) Flush(time.Duration)                       {}

type holder struct{ m Monitor }

var current atomic.Pointer[holder]

func init() { current.Store(&holder{m: NopMonitor{}}) }

// Init installs m as the process monitor. A nil m restores the no-op one.
func Init(m Monitor) {
	if m == nil {
		m = NopMonitor{}
	}
	current.Store(&holder{m: m})
}

func get() Monitor { return current.Load().m }

// CaptureException records err with optional tags.
func CaptureException(err error, tags map[string]string) {
	if err != nil {
		get().CaptureException(err, tags)
	}
}

// Recover reports a panic of the calling goroutine, flushes and panics
// again. It must be deferred directly:
//
//	defer monitoring.Recover(map[string]string{"module": "scheduler"})
func Recover(tags map[string]string) {
	if r := recover(); r != nil {
		m := get()
		m.CapturePanic(r, tags)
		m.Flush(2 * time.Second)
		panic(r)
	}
}

// Flush waits up to d for buffered reports to be sent.
func Flush(d time.Duration) { get().Flush(d) }

// Stage names the pipeline step a planning error was raised in.
type Stage string

const (
	StageSnapshot Stage = "snapshot"
	StageSolve    Stage = "solve"
	StagePublish  Stage = "publish"
)

// RunTags returns the tags attached to errors of a planning run.
func RunTags(depotID string, date time.Time, stage Stage) map[string]string {
	tags := map[string]string{"depot_id": depotID, "stage": string(stage)}
	if !date.IsZero() {
		tags["date"] = date.Format(time.DateOnly)
	}
	return tags
}
