// Package monitoring reports planning failures to Sentry.
package monitoring

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/kilianp07/induction/config"
	coremon "github.com/kilianp07/induction/core/monitoring"
)

// NewSentryMonitor initializes Sentry using the provided configuration and
// returns a Monitor implementation. Without a DSN it returns a NopMonitor.
func NewSentryMonitor(cfg config.SentryConfig) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		TracesSampleRate: cfg.TracesSampleRate,
		Release:          cfg.Release,
		ServerName:       cfg.ServerName,
	})
	if err != nil {
		return nil, err
	}
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("service", "induction-planner")
		scope.SetTags(cfg.Tags)
	})
	return &sentryMonitor{}, nil
}

type sentryMonitor struct{}

// CaptureException reports err with tags. Planning failures are grouped
// per depot and pipeline stage rather than by stack trace.
func (s *sentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	if len(tags) == 0 {
		sentry.CaptureException(err)
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		if fp := fingerprint(tags); fp != nil {
			scope.SetFingerprint(fp)
		}
		sentry.CaptureException(err)
	})
}

func fingerprint(tags map[string]string) []string {
	stage, ok := tags["stage"]
	if !ok {
		return nil
	}
	return []string{"planning", tags["depot_id"], stage}
}

// CapturePanic reports a recovered panic value with tags.
func (s *sentryMonitor) CapturePanic(v any, tags map[string]string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		scope.SetLevel(sentry.LevelFatal)
		sentry.CurrentHub().Recover(v)
	})
}

func (s *sentryMonitor) Flush(timeout time.Duration) { sentry.Flush(timeout) }
