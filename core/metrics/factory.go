package metrics

import "github.com/kilianp07/induction/core/factory"

var sinkRegistry = factory.NewRegistry[MetricsSink]("metrics sink")

// RegisterMetricsSink adds a metrics sink factory identified by name.
func RegisterMetricsSink(name string, f factory.Factory[MetricsSink]) error {
	return sinkRegistry.Register(name, f)
}

// NewMetricsSink creates the configured sinks. Without configuration runs
// are not recorded; several sinks are fanned out through a MultiSink.
func NewMetricsSink(cfgs []factory.ModuleConfig) (MetricsSink, error) {
	return sinkRegistry.Build(cfgs,
		func() MetricsSink { return NopSink{} },
		func(s []MetricsSink) MetricsSink { return NewMultiSink(s...) },
	)
}
