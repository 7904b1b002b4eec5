package metrics

import (
	"github.com/kilianp07/induction/core/factory"
	coremetrics "github.com/kilianp07/induction/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func mustRegister(name string, f factory.Factory[coremetrics.MetricsSink]) {
	if err := coremetrics.RegisterMetricsSink(name, f); err != nil {
		panic(err)
	}
}

// init registers built-in metrics sinks.
func init() {
	mustRegister("nop", func(map[string]any) (coremetrics.MetricsSink, error) {
		return coremetrics.NopSink{}, nil
	})

	mustRegister("prometheus", func(map[string]any) (coremetrics.MetricsSink, error) {
		// The listen address lives in metrics.Config; the sink only registers collectors.
		s, err := NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
		if err != nil {
			return nil, err
		}
		return s, nil
	})

	mustRegister("influx", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c InfluxConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c), nil
	})
}
