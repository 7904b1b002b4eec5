package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/induction/core/metrics"
	"github.com/kilianp07/induction/infra/logger"
)

// InfluxSink writes planning runs to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// InfluxConfig locates the bucket receiving planning points.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordPlanningRun writes one planning_run point and one planning_conflicts
// point when the run raised conflicts.
func (s *InfluxSink) RecordPlanningRun(run coremetrics.PlanningRun) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.writeAPI.WritePoint(ctx, runPoint(run)); err != nil {
		return err
	}
	if len(run.Conflicts) == 0 {
		return nil
	}
	p := write.NewPointWithMeasurement("planning_conflicts").
		AddTag("depot_id", run.DepotID).
		AddTag("date", run.Date.Format(time.DateOnly))
	for kind, n := range run.Conflicts {
		p = p.AddField(kind, n)
	}
	return s.writeAPI.WritePoint(ctx, p.SetTime(run.Time))
}

// RecordScheduleAction writes a schedule_action point.
func (s *InfluxSink) RecordScheduleAction(ev coremetrics.ScheduleAction) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("schedule_action").
		AddTag("depot_id", ev.DepotID).
		AddTag("kind", ev.Kind).
		AddField("schedule_id", ev.ScheduleID)
	if ev.From != "" || ev.To != "" {
		p = p.AddField("from", ev.From).AddField("to", ev.To)
	}
	return s.writeAPI.WritePoint(ctx, p.SetTime(ev.Time))
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

func runPoint(run coremetrics.PlanningRun) *write.Point {
	p := write.NewPointWithMeasurement("planning_run").
		AddTag("depot_id", run.DepotID).
		AddTag("date", run.Date.Format(time.DateOnly)).
		AddTag("code", run.Code).
		AddTag("quality", run.Quality).
		AddTag("failed", strconv.FormatBool(run.Failed)).
		AddField("duration_ms", round3(run.Duration.Seconds()*1000)).
		AddField("nodes", run.Nodes)
	if !run.Failed {
		p = p.AddField("objective", round3(run.Objective)).
			AddField("service", run.Service).
			AddField("standby", run.Standby).
			AddField("maintenance", run.Maintenance).
			AddField("cleaned", run.Cleaned)
		for term, v := range run.Terms {
			p = p.AddField("term_"+term, round3(v))
		}
	}
	return p.SetTime(run.Time)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
