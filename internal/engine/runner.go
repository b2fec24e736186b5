package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/mediaflow/internal/metrics"
	"github.com/example/mediaflow/internal/models"
	"github.com/example/mediaflow/internal/tools"
)

// PollPolicy is the polling cadence and per-job timeout for one tool.
type PollPolicy struct {
	Interval time.Duration
	Timeout  time.Duration
}

// DefaultPolicies polls slow video-class jobs less often than image jobs.
func DefaultPolicies() map[string]PollPolicy {
	return map[string]PollPolicy{
		"image":             {Interval: 2 * time.Second, Timeout: 5 * time.Minute},
		"video":             {Interval: 4 * time.Second, Timeout: 30 * time.Minute},
		"lipsync":           {Interval: 4 * time.Second, Timeout: 30 * time.Minute},
		"tts":               {Interval: 2 * time.Second, Timeout: 5 * time.Minute},
		"transcription":     {Interval: 3 * time.Second, Timeout: 10 * time.Minute},
		"enhance":           {Interval: 3 * time.Second, Timeout: 10 * time.Minute},
		"background-remove": {Interval: 2 * time.Second, Timeout: 5 * time.Minute},
		"document":          {Interval: time.Second, Timeout: 2 * time.Minute},
		"prompt":            {Interval: time.Second, Timeout: 2 * time.Minute},
	}
}

var fallbackPolicy = PollPolicy{Interval: 3 * time.Second, Timeout: 10 * time.Minute}

// StepRunner drives one step: resolve inputs, validate, submit, poll.
type StepRunner struct {
	Tools        *tools.Registry
	Requirements *Requirements
	Poller       *Poller
	Policies     map[string]PollPolicy
	// MaxStatusErrors is passed to the poller; see PollOptions.
	MaxStatusErrors int
	Logger          *slog.Logger
}

func (r *StepRunner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *StepRunner) policy(tool string) PollPolicy {
	if p, ok := r.Policies[tool]; ok {
		return p
	}
	return fallbackPolicy
}

// Run executes step with cfg, reading upstream outputs from prev. It never
// returns an error: every failure is reported in the Result.
func (r *StepRunner) Run(ctx context.Context, step *models.Step, cfg models.StepConfig, prev map[string]models.Output) models.Result {
	start := time.Now()
	res := r.run(ctx, step, cfg, prev)
	res.StepID = step.ID
	res.Duration = time.Since(start)
	metrics.StepDuration.WithLabelValues(step.Tool, string(res.Status)).Observe(res.Duration.Seconds())
	return res
}

func (r *StepRunner) run(ctx context.Context, step *models.Step, cfg models.StepConfig, prev map[string]models.Output) models.Result {
	log := r.logger().With("step", step.ID, "tool", step.Tool, "model", cfg.Model)

	for _, dep := range step.Dependencies {
		if o, ok := prev[dep]; !ok || o.Empty() {
			return fail(step, KindUnresolvedReference, &UnresolvedReferenceError{StepID: dep}, "")
		}
	}
	inputs, err := Resolve(cfg.Inputs, prev)
	if err != nil {
		return fail(step, KindUnresolvedReference, err, "")
	}
	adapter, ok := r.Tools.Get(step.Tool)
	if !ok {
		return fail(step, KindValidation, fmt.Errorf("no provider configured for tool %q", step.Tool), "")
	}
	reqs := r.Requirements
	if reqs == nil {
		reqs = DefaultRequirements()
	}
	if err := reqs.Check(step.Tool, cfg.Model, inputs); err != nil {
		return fail(step, KindValidation, err, "")
	}

	h, err := adapter.Submit(ctx, cfg.Model, inputs)
	if err != nil {
		if ctx.Err() != nil {
			return fail(step, KindCanceled, errors.New("run canceled"), "")
		}
		log.Warn("submission rejected", "error", err)
		return fail(step, KindSubmission, err, "")
	}
	log.Info("job submitted", "job", h.ID)

	pol := r.policy(step.Tool)
	pr := r.Poller.Poll(ctx, adapter, h, PollOptions{
		Tool:            step.Tool,
		Interval:        pol.Interval,
		Timeout:         pol.Timeout,
		MaxStatusErrors: r.MaxStatusErrors,
	})
	log.Info("job finished", "job", h.ID, "outcome", pr.Outcome, "checks", pr.Checks)

	last := string(pr.Status.State)
	switch pr.Outcome {
	case PollSucceeded:
		if pr.Status.OutputURL == "" && pr.Status.OutputText == "" {
			return fail(step, KindProviderFailure, errors.New("job succeeded without output"), last)
		}
		return models.Result{Status: models.StepComplete, OutputURL: pr.Status.OutputURL, OutputText: pr.Status.OutputText}
	case PollFailed, PollCanceled:
		reason := pr.Status.Reason
		if reason == "" {
			reason = "provider reported " + last
		}
		return fail(step, KindProviderFailure, errors.New(reason), last)
	case PollTimedOut:
		return fail(step, KindTimeout, fmt.Errorf("no terminal state after %s (last status: %s)", pol.Timeout, last), last)
	case PollAborted:
		r.cancelJob(ctx, adapter, h, log)
		return fail(step, KindCanceled, errors.New("run canceled"), last)
	default:
		return fail(step, KindProviderFailure, fmt.Errorf("status check failed %d times in a row: %w", r.MaxStatusErrors+1, pr.Err), last)
	}
}

// cancelJob asks the provider to retract h when it supports that. Errors are
// only logged; the run is already over.
func (r *StepRunner) cancelJob(ctx context.Context, a tools.Adapter, h tools.Handle, log *slog.Logger) {
	c, ok := a.(tools.Canceler)
	if !ok {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.Cancel(cctx, h); err != nil {
		log.Warn("provider cancel failed", "job", h.ID, "error", err)
	}
}

func fail(step *models.Step, kind ErrorKind, err error, lastStatus string) models.Result {
	se := &StepError{Kind: kind, StepID: step.ID, Message: err.Error(), LastStatus: lastStatus, Err: err}
	return models.Result{
		Status:    models.StepError,
		Error:     se.Message,
		ErrorKind: string(kind),
		Err:       se,
	}
}
