// Package events defines the planning related events emitted on the event bus.
//
// Available event types:
//   - RunEvent: a planning run finished or failed
//   - ScheduleEvent: a schedule changed state or received an operator decision
package events
