package evaluate

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sla-clock/internal/config"
	"sla-clock/internal/eventlog"
	"sla-clock/internal/sla"
)

var errBoom = errors.New("boom")

type fakeProvider struct {
	issues map[string]eventlog.Issue

	delay    time.Duration
	inFlight atomic.Int32
	mu       sync.Mutex
	peak     int32
}

func (f *fakeProvider) Fetch(ctx context.Context, ref eventlog.Ref) (eventlog.Issue, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	f.mu.Lock()
	f.peak = max(f.peak, n)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return eventlog.Issue{}, ctx.Err()
		}
	}

	issue, ok := f.issues[ref.Key]
	if !ok {
		return eventlog.Issue{}, errBoom
	}
	issue.Ref = ref
	return issue, nil
}

func ist(t *testing.T, day, hour int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return time.Date(2024, 7, day, hour, 0, 0, 0, loc)
}

func refs(keys ...string) []eventlog.Ref {
	out := make([]eventlog.Ref, 0, len(keys))
	for _, k := range keys {
		out = append(out, eventlog.Ref{Source: eventlog.SourceJira, Key: k})
	}
	return out
}

func TestEvaluator_Run(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{issues: map[string]eventlog.Issue{
		"A-1": {Priority: sla.P1, Events: []sla.StatusEvent{
			{Label: "In Progress", Timestamp: ist(t, 1, 10)},
			{Label: "Done", Timestamp: ist(t, 1, 13)},
		}},
		// Still open: clocked up to the shared evaluation instant.
		"B-1": {Events: []sla.StatusEvent{
			{Label: "in progress", Timestamp: ist(t, 1, 10)},
		}},
		"D-1": {Events: []sla.StatusEvent{{Label: "In Progress"}}},
	}}

	now := ist(t, 8, 11)
	ev := &Evaluator{
		Policy:      config.DefaultPolicy(),
		Provider:    provider,
		Now:         func() time.Time { return now },
		Concurrency: 2,
		RunID:       "run-1",
	}

	batch, err := ev.Run(context.Background(), refs("A-1", "B-1", "C-1", "D-1"))
	require.NoError(t, err)

	assert.Equal(t, "run-1", batch.RunID)
	assert.True(t, batch.EvaluatedAt.Equal(now))
	require.Len(t, batch.Outcomes, 4)
	assert.Equal(t, 2, batch.Failed())

	a := batch.Outcomes[0]
	assert.Equal(t, "A-1", a.Ref.Key)
	require.NoError(t, a.Err)
	assert.Equal(t, int64(3*3600), a.Result.ElapsedSeconds)
	assert.Equal(t, int64(16*3600), a.Result.ThresholdSeconds)
	assert.False(t, a.Result.Breached)

	b := batch.Outcomes[1]
	require.NoError(t, b.Err)
	assert.Equal(t, int64(41*3600), b.Result.ElapsedSeconds)
	assert.Equal(t, int64(40*3600), b.Result.ThresholdSeconds, "no priority falls back to the largest threshold")
	assert.True(t, b.Result.Breached)

	assert.ErrorIs(t, batch.Outcomes[2].Err, errBoom)
	assert.ErrorIs(t, batch.Outcomes[3].Err, sla.ErrMissingTimestamp)
}

func TestEvaluator_PriorityOverride(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{issues: map[string]eventlog.Issue{
		"A-1": {Priority: sla.P4, Events: []sla.StatusEvent{
			{Label: "Triage", Timestamp: ist(t, 1, 10)},
			{Label: "Waiting for Customer", Timestamp: ist(t, 3, 11)},
		}},
	}}

	ev := &Evaluator{Policy: config.DefaultPolicy(), Provider: provider, Priority: sla.P1}
	batch, err := ev.Run(context.Background(), refs("A-1"))
	require.NoError(t, err)

	res := batch.Outcomes[0].Result
	assert.Equal(t, sla.P1, res.Priority)
	assert.Equal(t, int64(17*3600), res.ElapsedSeconds)
	assert.True(t, res.Breached)
}

func TestEvaluator_RespectsConcurrencyLimit(t *testing.T) {
	t.Parallel()

	issues := map[string]eventlog.Issue{}
	keys := []string{"K-1", "K-2", "K-3", "K-4", "K-5", "K-6", "K-7", "K-8"}
	for _, k := range keys {
		issues[k] = eventlog.Issue{}
	}
	provider := &fakeProvider{issues: issues, delay: 20 * time.Millisecond}

	ev := &Evaluator{Policy: config.DefaultPolicy(), Provider: provider, Concurrency: 3}
	batch, err := ev.Run(context.Background(), refs(keys...))
	require.NoError(t, err)

	assert.LessOrEqual(t, provider.peak, int32(3))
	for i, o := range batch.Outcomes {
		assert.Equal(t, keys[i], o.Ref.Key, "input order is preserved")
		assert.NoError(t, o.Err)
		assert.Zero(t, o.Result.ElapsedSeconds)
	}
}

func TestEvaluator_CanceledContext(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{issues: map[string]eventlog.Issue{"A-1": {}}, delay: time.Second}
	ev := &Evaluator{Policy: config.DefaultPolicy(), Provider: provider}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ev.Run(ctx, refs("A-1"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluator_Interval(t *testing.T) {
	t.Parallel()

	ev := &Evaluator{Policy: config.DefaultPolicy()}

	// Friday 17:00 to Monday 11:00 is two business hours.
	res, err := ev.Interval(ist(t, 5, 17), ist(t, 8, 11), sla.P1)
	require.NoError(t, err)
	assert.Equal(t, int64(7200), res.ElapsedSeconds)
	assert.Equal(t, sla.VerdictWithinSLA, res.Verdict())

	res, err = ev.Interval(ist(t, 8, 11), ist(t, 5, 17), sla.P1)
	require.NoError(t, err)
	assert.Zero(t, res.ElapsedSeconds, "an inverted interval is empty")

	p := config.DefaultPolicy()
	p.Statuses.Active = nil
	_, err = (&Evaluator{Policy: p}).Interval(ist(t, 5, 17), ist(t, 8, 11), sla.P1)
	assert.ErrorIs(t, err, ErrNoActiveStatus)
}

func TestTraceObserver(t *testing.T) {
	t.Parallel()

	cal, err := config.DefaultPolicy().Calendar()
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	total := sla.RunClock(cal, []sla.Transition{
		{Category: sla.Active, At: ist(t, 1, 10), Label: "Triage"},
		{Category: sla.Paused, At: ist(t, 1, 12), Label: "Done"},
	}, ist(t, 1, 12), TraceObserver(logger))

	assert.Equal(t, int64(7200), total)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"label":"Triage"`)
	assert.Contains(t, lines[0], `"to":"running"`)
	assert.Contains(t, lines[1], `"added":7200`)
}
