// Package store persists schedules in SQLite. One row holds the JSON document
// of a schedule next to the columns used for lookups and optimistic locking.
package store
