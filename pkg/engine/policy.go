package engine

import (
	"context"
	"time"

	"github.com/streamsql/workbench/pkg/errors"
)

// PollResult tells the poll loop whether to keep going.
type PollResult int

const (
	// PollContinue schedules another iteration after the interval.
	PollContinue PollResult = iota
	// PollDone ends the loop successfully.
	PollDone
)

// PollPolicy is the single retry/backoff policy shared by the first-page
// wait, batch polling, and stream polling loops. The three loops differ only
// in their configuration.
type PollPolicy struct {
	// Interval between iterations.
	Interval time.Duration
	// MaxAttempts bounds the number of iterations; zero or negative means
	// effectively unbounded.
	MaxAttempts int
	// FailureThreshold is how many consecutive non-fatal errors are tolerated
	// before the loop escalates. A success resets the counter.
	FailureThreshold int
	// InitialFailures seeds the consecutive-failure counter, so a failure
	// observed before the loop started keeps counting toward the threshold.
	InitialFailures int
	// Fatal reports errors that abort the loop on first occurrence.
	Fatal func(error) bool
}

// ErrAttemptsExhausted ends a bounded loop that never completed.
var ErrAttemptsExhausted = errors.New(errors.CodeDeadlineExceeded, "polling attempts exhausted")

// Run drives fn until it reports done, a fatal or repeated error occurs, the
// attempt bound is hit, or the context is canceled. Cancellation is
// cooperative: it is checked at the top of each iteration, so a blocked call
// finishes before the loop observes it.
func (p PollPolicy) Run(ctx context.Context, fn func(ctx context.Context) (PollResult, error)) error {
	threshold := p.FailureThreshold
	if threshold <= 0 {
		threshold = 1
	}

	failures := p.InitialFailures
	lastErr := error(nil)
	for attempt := 0; p.MaxAttempts <= 0 || attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.CodeCanceled, "polling canceled")
		}

		result, err := fn(ctx)
		switch {
		case err == nil:
			failures = 0
			lastErr = nil
			if result == PollDone {
				return nil
			}
		case errors.IsCanceled(err):
			return err
		case p.Fatal != nil && p.Fatal(err):
			return err
		default:
			failures++
			lastErr = err
			if failures >= threshold {
				return errors.Wrapf(err, errors.GetCode(err), "polling failed %d times in a row", failures)
			}
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), errors.CodeCanceled, "polling canceled")
		case <-time.After(p.Interval):
		}
	}

	if lastErr != nil {
		return errors.Wrap(lastErr, errors.GetCode(lastErr), "polling attempts exhausted")
	}
	return ErrAttemptsExhausted
}
