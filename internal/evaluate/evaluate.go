// Package evaluate runs the SLA clock over a batch of issues.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"sla-clock/internal/config"
	"sla-clock/internal/eventlog"
	"sla-clock/internal/sla"
)

// ErrNoActiveStatus is returned by Interval when the policy has no active label.
var ErrNoActiveStatus = errors.New("policy has no active status")

// Provider resolves issue references into their status histories.
type Provider interface {
	Fetch(ctx context.Context, ref eventlog.Ref) (eventlog.Issue, error)
}

// Evaluator computes SLA results for many issues against one policy.
type Evaluator struct {
	Policy   *config.Policy
	Provider Provider
	// Now supplies the evaluation instant; defaults to time.Now.
	Now func() time.Time
	// Concurrency bounds in-flight fetches; values below 1 mean 1.
	Concurrency int
	// Priority, when set, overrides every issue's own priority.
	Priority sla.Priority
	// RunID tags the batch; a fresh UUID is used when empty.
	RunID string
}

// Outcome is the result for one reference. Err is set when the issue could
// not be fetched or evaluated; Result is then zero.
type Outcome struct {
	Ref    eventlog.Ref
	Result sla.Result
	Err    error
}

// Batch is one evaluation run.
type Batch struct {
	RunID       string
	EvaluatedAt time.Time
	Outcomes    []Outcome
}

// Failed reports how many outcomes carry an error.
func (b *Batch) Failed() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Run evaluates refs concurrently. Outcomes keep the order of refs and share
// one evaluation instant. Per-issue failures are reported in the outcome;
// only context cancellation aborts the run.
func (e *Evaluator) Run(ctx context.Context, refs []eventlog.Ref) (*Batch, error) {
	cal, err := e.Policy.Calendar()
	if err != nil {
		return nil, fmt.Errorf("policy calendar: %w", err)
	}
	cats := e.Policy.Categories()
	thresholds := e.Policy.Thresholds()

	batch := &Batch{
		RunID:       e.runID(),
		EvaluatedAt: e.now(),
		Outcomes:    make([]Outcome, len(refs)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, e.Concurrency))

	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			out := Outcome{Ref: ref}
			defer func() { batch.Outcomes[i] = out }()

			issue, err := e.Provider.Fetch(gctx, ref)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				out.Err = err
				log.Warn().Err(err).Str("issue", ref.String()).Msg("Fetch failed")
				return nil
			}

			priority := e.Policy.ResolvePriority(issue.Priority)
			if e.Priority != "" {
				priority = e.Priority
			}

			issueLog := log.With().Str("issue", ref.String()).Logger()
			res, err := sla.ComputeSLA(issue.Events, priority, cal, cats, thresholds, batch.EvaluatedAt,
				sla.Options{Observer: TraceObserver(issueLog)})
			if err != nil {
				out.Err = fmt.Errorf("%s: %w", ref, err)
				issueLog.Warn().Err(err).Msg("Evaluation failed")
				return nil
			}
			out.Result = res

			issueLog.Info().
				Str("priority", string(res.Priority)).
				Int64("elapsed_seconds", res.ElapsedSeconds).
				Int64("threshold_seconds", res.ThresholdSeconds).
				Bool("breached", res.Breached).
				Msg("Evaluated")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return batch, nil
}

// Interval evaluates a single active period from start to end, the way a
// ticket that went active at start and is still open at end would be clocked.
func (e *Evaluator) Interval(start, end time.Time, priority sla.Priority) (sla.Result, error) {
	cats := e.Policy.Categories()
	if len(cats.Active) == 0 {
		return sla.Result{}, ErrNoActiveStatus
	}
	cal, err := e.Policy.Calendar()
	if err != nil {
		return sla.Result{}, fmt.Errorf("policy calendar: %w", err)
	}

	events := []sla.StatusEvent{{Label: cats.Active[0], Timestamp: start}}
	return sla.ComputeSLA(events, e.Policy.ResolvePriority(priority), cal, cats, e.Policy.Thresholds(), end,
		sla.Options{Observer: TraceObserver(log.Logger)})
}

// TraceObserver logs every clock step at debug level.
func TraceObserver(logger zerolog.Logger) sla.Observer {
	return sla.ObserverFunc(func(step sla.Step) {
		logger.Debug().
			Str("label", step.Transition.Label).
			Stringer("category", step.Transition.Category).
			Time("at", step.Transition.At).
			Stringer("from", step.From).
			Stringer("to", step.To).
			Int64("added", step.Added).
			Int64("discarded", step.Discarded).
			Int64("accumulated", step.Accumulated).
			Msg("Clock step")
	})
}

func (e *Evaluator) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Evaluator) runID() string {
	if e.RunID != "" {
		return e.RunID
	}
	return uuid.NewString()
}
