// Package audit provides durable schedule ledgers: a rotating JSONL file and
// a SQLite table. Backends are selected from configuration with NewLedger.
package audit
