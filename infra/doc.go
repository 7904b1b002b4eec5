// Package infra holds the adapters of the induction planner: fleet record
// sources, schedule stores, audit ledgers, MQTT and metrics exporters. They
// implement interfaces owned by the core packages and never the reverse.
package infra
