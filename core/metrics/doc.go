// Package metrics defines the sinks recording planning activity. A sink
// receives one PlanningRun per planning run and may implement the optional
// recorder interfaces for schedule actions and solver stages. Sinks are
// built from configuration through the factory registry and combined with
// NewMultiSink when more than one is configured.
package metrics
