package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/mediaflow/internal/metrics"
	"github.com/example/mediaflow/internal/tools"
)

// PollOutcome is how a poll ended.
type PollOutcome string

const (
	PollSucceeded   PollOutcome = "succeeded"
	PollFailed      PollOutcome = "failed"
	PollCanceled    PollOutcome = "canceled" // provider reported canceled
	PollTimedOut    PollOutcome = "timed_out"
	PollAborted     PollOutcome = "aborted" // caller canceled the run
	PollCheckFailed PollOutcome = "check_failed"
)

type PollOptions struct {
	Tool     string // metrics and log label
	Interval time.Duration
	Timeout  time.Duration
	// MaxStatusErrors is how many consecutive failed status checks are retried
	// before the poll gives up.
	MaxStatusErrors int
}

// PollResult is the terminal result of one poll. Status is the last status
// successfully observed.
type PollResult struct {
	Outcome PollOutcome
	Status  tools.JobStatus
	Checks  int
	Err     error
}

// Poller watches one job handle until it reaches a terminal state.
type Poller struct {
	Logger *slog.Logger
}

func (p *Poller) logger() *slog.Logger {
	if p != nil && p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Poll checks h immediately and then every opts.Interval. A status check that
// errors is retried on the same cadence; only opts.MaxStatusErrors consecutive
// failures end the poll. Cancelling ctx stops polling without retracting the
// provider job.
func (p *Poller) Poll(ctx context.Context, a tools.Adapter, h tools.Handle, opts PollOptions) PollResult {
	if opts.Interval <= 0 {
		opts.Interval = 3 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	if opts.MaxStatusErrors < 0 {
		opts.MaxStatusErrors = 0
	}
	log := p.logger().With("tool", opts.Tool, "job", h.ID)

	pollCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	res := PollResult{Status: tools.JobStatus{State: tools.JobPending}}
	failures := 0
	wait := time.NewTimer(0)
	defer wait.Stop()
	<-wait.C

	for {
		st, err := a.Status(pollCtx, h)
		res.Checks++
		switch {
		case err != nil:
			if out, done := p.interrupted(ctx, pollCtx); done {
				res.Outcome = out
				if out == PollAborted {
					res.Err = ctx.Err()
				}
				return res
			}
			failures++
			res.Err = err
			metrics.StatusChecks.WithLabelValues(opts.Tool, "error").Inc()
			log.Warn("status check failed", "attempt", failures, "error", err)
			if failures > opts.MaxStatusErrors {
				res.Outcome = PollCheckFailed
				return res
			}
		default:
			failures = 0
			res.Err = nil
			metrics.StatusChecks.WithLabelValues(opts.Tool, "ok").Inc()
			if st.State != res.Status.State {
				log.Debug("job state changed", "from", res.Status.State, "to", st.State)
			}
			res.Status = st
			switch st.State {
			case tools.JobSucceeded:
				res.Outcome = PollSucceeded
				return res
			case tools.JobFailed:
				res.Outcome = PollFailed
				return res
			case tools.JobCanceled:
				res.Outcome = PollCanceled
				return res
			}
		}

		wait.Reset(opts.Interval)
		select {
		case <-pollCtx.Done():
			res.Outcome, _ = p.interrupted(ctx, pollCtx)
			if res.Outcome == PollAborted {
				res.Err = ctx.Err()
			}
			return res
		case <-wait.C:
		}
	}
}

// interrupted distinguishes a caller cancel from the poll's own timeout.
func (p *Poller) interrupted(parent, pollCtx context.Context) (PollOutcome, bool) {
	if parent.Err() != nil {
		return PollAborted, true
	}
	if errors.Is(pollCtx.Err(), context.DeadlineExceeded) {
		return PollTimedOut, true
	}
	return "", false
}
