// Package telemetry reports unexpected errors to Sentry when a DSN is
// configured.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/facilityops/watchpost/internal/conf"
	"github.com/getsentry/sentry-go"
)

// Reporter captures errors. The zero value and a nil *Reporter are disabled
// and drop everything.
type Reporter struct {
	hub *sentry.Hub
}

// New creates a Reporter from settings. An empty DSN returns a disabled
// reporter.
func New(cfg conf.SentrySettings, release string) (*Reporter, error) {
	if cfg.DSN == "" {
		return &Reporter{}, nil
	}
	return NewWithOptions(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          release,
		AttachStacktrace: true,
	})
}

// NewWithOptions creates a Reporter with full control over the client.
func NewWithOptions(opts sentry.ClientOptions) (*Reporter, error) {
	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create sentry client: %w", err)
	}
	return &Reporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// Enabled reports whether errors are sent anywhere.
func (r *Reporter) Enabled() bool {
	return r != nil && r.hub != nil
}

// CaptureError sends err with the given tags.
func (r *Reporter) CaptureError(err error, tags map[string]string) {
	if !r.Enabled() || err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		r.hub.CaptureException(err)
	})
}

// Recover reports a recovered panic value and returns it unchanged.
func (r *Reporter) Recover(ctx context.Context, v any) any {
	if r.Enabled() && v != nil {
		r.hub.RecoverWithContext(ctx, v)
	}
	return v
}

// Flush waits up to timeout for buffered events to be sent.
func (r *Reporter) Flush(timeout time.Duration) bool {
	if !r.Enabled() {
		return true
	}
	return r.hub.Flush(timeout)
}
