package signin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/tenacity-audit/internal/graph"
)

type window struct {
	from, to time.Time
}

// fakeSignInSource records every query window and can fail the first N calls.
type fakeSignInSource struct {
	calls    []window
	events   []graph.SignInEvent
	failures int
	err      error
}

func (f *fakeSignInSource) ListSignIns(_ context.Context, from, to time.Time) ([]graph.SignInEvent, error) {
	f.calls = append(f.calls, window{from, to})
	if f.failures > 0 {
		f.failures--
		return nil, f.err
	}
	return f.events, nil
}

func newTestAggregator(source graph.SignInSource, at time.Time) (*Aggregator, *[]time.Duration) {
	var slept []time.Duration
	agg := New(source, slog.New(slog.NewTextHandler(io.Discard, nil)))
	agg.now = func() time.Time { return at }
	agg.sleep = func(d time.Duration) { slept = append(slept, d) }
	return agg, &slept
}

func TestAggregate_SkipRunsNoQueries(t *testing.T) {
	source := &fakeSignInSource{}
	agg, _ := newTestAggregator(source, time.Now())

	result, err := agg.Aggregate(context.Background(), 90, true)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Empty(t, result.Lookup)
	assert.Empty(t, source.calls)
}

func TestAggregate_WindowChunking(t *testing.T) {
	end := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		thresholdDays int
		wantChunks    int
		wantStart     time.Time
	}{
		{"exact multiple", 90, 3, end.AddDate(0, 0, -90)},
		{"below minimum clamps to 30", 7, 1, end.AddDate(0, 0, -30)},
		{"above maximum clamps to 365", 1000, 13, end.AddDate(0, 0, -365)},
		{"partial tail chunk", 100, 4, end.AddDate(0, 0, -100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &fakeSignInSource{}
			agg, _ := newTestAggregator(source, end)

			_, err := agg.Aggregate(context.Background(), tt.thresholdDays, false)
			require.NoError(t, err)
			require.Len(t, source.calls, tt.wantChunks)

			// Oldest chunk first, contiguous, ending exactly at now.
			assert.Equal(t, tt.wantStart, source.calls[0].from)
			for i := 1; i < len(source.calls); i++ {
				assert.Equal(t, source.calls[i-1].to, source.calls[i].from)
			}
			assert.Equal(t, end, source.calls[len(source.calls)-1].to)
		})
	}
}

func TestAggregate_KeepsNewestPerIdentity(t *testing.T) {
	end := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	older := end.AddDate(0, 0, -20)
	newer := end.AddDate(0, 0, -2)

	source := &fakeSignInSource{events: []graph.SignInEvent{
		{UserPrincipalName: "alice@contoso.com", CreatedAt: older},
		{UserPrincipalName: "Alice@contoso.com", CreatedAt: newer},
		{UserPrincipalName: "bob@contoso.com", CreatedAt: older},
	}}
	agg, _ := newTestAggregator(source, end)

	result, err := agg.Aggregate(context.Background(), 30, false)
	require.NoError(t, err)

	got, ok := result.Lookup.Lookup("alice@contoso.com")
	require.True(t, ok)
	assert.Equal(t, newer, got)

	got, ok = result.Lookup.Lookup("BOB@contoso.com")
	require.True(t, ok)
	assert.Equal(t, older, got)
}

func TestAggregate_RetriesWithLinearBackoff(t *testing.T) {
	source := &fakeSignInSource{
		failures: 2,
		err:      errors.New("throttled"),
	}
	agg, slept := newTestAggregator(source, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

	_, err := agg.Aggregate(context.Background(), 30, false)
	require.NoError(t, err)

	// Two failed attempts plus the successful third, one chunk total.
	assert.Len(t, source.calls, 3)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, *slept)
}

func TestAggregate_FailsAfterExhaustedRetries(t *testing.T) {
	source := &fakeSignInSource{
		failures: 100,
		err:      errors.New("boom"),
	}
	agg, slept := newTestAggregator(source, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

	result, err := agg.Aggregate(context.Background(), 30, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Len(t, source.calls, 3)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, *slept)

	// The partial lookup is still usable by the caller.
	assert.NotNil(t, result.Lookup)
	assert.False(t, result.Skipped)
}

func TestAggregate_PartialResultsSurviveLateFailure(t *testing.T) {
	end := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	seen := end.AddDate(0, 0, -50)

	source := &sequenceSource{
		responses: []chunkResponse{
			{events: []graph.SignInEvent{{UserPrincipalName: "carol@contoso.com", CreatedAt: seen}}},
			{err: errors.New("gateway timeout")},
			{err: errors.New("gateway timeout")},
			{err: errors.New("gateway timeout")},
		},
	}
	agg, _ := newTestAggregator(source, end)

	result, err := agg.Aggregate(context.Background(), 60, false)
	require.Error(t, err)

	got, ok := result.Lookup.Lookup("carol@contoso.com")
	require.True(t, ok)
	assert.Equal(t, seen, got)
}

func TestAggregate_ContextCancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	source := &fakeSignInSource{failures: 100, err: errors.New("boom")}
	agg, _ := newTestAggregator(source, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	agg.sleep = func(time.Duration) { cancel() }

	_, err := agg.Aggregate(ctx, 30, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, source.calls, 1)
}

type chunkResponse struct {
	events []graph.SignInEvent
	err    error
}

// sequenceSource returns canned responses in call order, repeating the last
// one once exhausted.
type sequenceSource struct {
	responses []chunkResponse
	call      int
}

func (s *sequenceSource) ListSignIns(context.Context, time.Time, time.Time) ([]graph.SignInEvent, error) {
	idx := s.call
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.call++
	resp := s.responses[idx]
	return resp.events, resp.err
}
