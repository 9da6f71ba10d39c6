package extract

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// failedAttempts counts generate-then-extract attempts that did not yield a
// usable payload. Lazy so telemetry.Init has run before the meter is taken.
var failedAttempts = sync.OnceValue(func() metric.Int64Counter {
	c, _ := otel.Meter("stratalens/extract").Int64Counter("extract_failed_attempts_total",
		metric.WithDescription("Generate-then-extract attempts that failed"))
	return c
})

// GenerateFunc produces one raw model response.
type GenerateFunc func(ctx context.Context) (string, error)

// Policy retries a generate-then-extract round trip a bounded number of
// times with jittered exponential backoff. Generation errors and extraction
// failures both consume an attempt; the last error is returned when the
// budget runs out.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Logger      *slog.Logger
}

// DefaultPolicy matches the service-wide extraction retry budget.
func DefaultPolicy(logger *slog.Logger) Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, Logger: logger}
}

// Do runs fn until a response yields parseable JSON or attempts run out.
func (p Policy) Do(ctx context.Context, fn GenerateFunc) (json.RawMessage, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		raw, err := fn(ctx)
		if err == nil {
			payload, xerr := Extract(raw)
			if xerr == nil {
				return payload, nil
			}
			err = xerr
		}
		lastErr = err
		failedAttempts().Add(ctx, 1)
		if attempt == attempts {
			break
		}
		if p.Logger != nil {
			p.Logger.Warn("extract: attempt failed, retrying",
				"attempt", attempt, "max_attempts", attempts, "error", err)
		}
		jitter := time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
	return nil, lastErr
}

// DoInto runs fn like Do and unmarshals the extracted payload into v.
// A payload that does not fit v's structure consumes an attempt like any
// other extraction failure.
func (p Policy) DoInto(ctx context.Context, v any, fn GenerateFunc) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		raw, err := fn(ctx)
		if err == nil {
			derr := DecodeInto(raw, v)
			if derr == nil {
				return nil
			}
			err = derr
		}
		lastErr = err
		failedAttempts().Add(ctx, 1)
		if attempt == attempts {
			break
		}
		if p.Logger != nil {
			p.Logger.Warn("extract: attempt failed, retrying",
				"attempt", attempt, "max_attempts", attempts, "error", err)
		}
		jitter := time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
	return lastErr
}
