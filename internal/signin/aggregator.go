// Package signin reduces raw sign-in events to the most recent sign-in per
// identity over a bounded lookback window.
package signin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/celerix-dev/tenacity-audit/internal/graph"
	"github.com/celerix-dev/tenacity-audit/pkg/schema"
)

const (
	// Lookback bounds: the queried window never exceeds what the audit log
	// retains and never drops below a useful minimum.
	minWindowDays = 30
	maxWindowDays = 365

	// chunkDays partitions the window so single requests stay small enough
	// for large tenants.
	chunkDays = 30

	maxAttempts    = 3
	backoffStep    = 5 * time.Second
	backoffCeiling = 15 * time.Second
)

// Result carries the aggregated lookup and whether evaluation ran at all.
// When Skipped is set the lookup is empty and every user is later treated as
// recently active.
type Result struct {
	Lookup  schema.SignInLookup
	Skipped bool
}

// Aggregator folds chunked sign-in queries into a per-identity lookup.
type Aggregator struct {
	source graph.SignInSource
	logger *slog.Logger

	// test seams
	now   func() time.Time
	sleep func(time.Duration)
}

func New(source graph.SignInSource, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		source: source,
		logger: logger,
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// Aggregate queries the lookback window derived from thresholdDays in
// 30-day chunks, oldest first, and keeps the newest timestamp per identity.
// With skip set, no queries run at all.
func (a *Aggregator) Aggregate(ctx context.Context, thresholdDays int, skip bool) (Result, error) {
	result := Result{Lookup: schema.SignInLookup{}, Skipped: skip}
	if skip {
		return result, nil
	}

	windowDays := clamp(thresholdDays, minWindowDays, maxWindowDays)
	end := a.now().UTC()
	start := end.AddDate(0, 0, -windowDays)

	for chunkStart := start; chunkStart.Before(end); chunkStart = chunkStart.AddDate(0, 0, chunkDays) {
		chunkEnd := chunkStart.AddDate(0, 0, chunkDays)
		if chunkEnd.After(end) {
			chunkEnd = end
		}

		events, err := a.fetchChunk(ctx, chunkStart, chunkEnd)
		if err != nil {
			return result, fmt.Errorf("sign-in chunk %s..%s: %w",
				chunkStart.Format("2006-01-02"), chunkEnd.Format("2006-01-02"), err)
		}
		for _, ev := range events {
			result.Lookup.Record(ev.UserPrincipalName, ev.CreatedAt)
		}
	}
	return result, nil
}

// fetchChunk retries one window chunk with linear backoff before giving up.
func (a *Aggregator) fetchChunk(ctx context.Context, from, to time.Time) ([]graph.SignInEvent, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * backoffStep
			if delay > backoffCeiling {
				delay = backoffCeiling
			}
			a.logger.Warn("retrying sign-in chunk",
				slog.Time("from", from),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay))
			a.sleep(delay)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		events, err := a.source.ListSignIns(ctx, from, to)
		if err == nil {
			return events, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
