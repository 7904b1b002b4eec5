// Package snapshot assembles the immutable, timestamped view of a depot that
// one planning cycle works on. Missing mandatory data aborts the cycle; it is
// never defaulted to eligible.
package snapshot
