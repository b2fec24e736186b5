package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/mediaflow/internal/metrics"
	"github.com/example/mediaflow/internal/models"
)

// Request describes one run. With StartStepID set, the run resumes at that step
// and PreviousOutputs must hold an output for every step before it.
type Request struct {
	RunID           string
	Plan            *models.Plan
	Configs         map[string]models.StepConfig
	PreviousOutputs map[string]models.Output
	StartStepID     string
}

// Executor runs a plan's steps one at a time in list order. Step dependencies
// are assumed to precede their dependents; see models.ValidatePlan.
type Executor struct {
	Runner *StepRunner
	Logger *slog.Logger
}

// Run is a started execution. Events carries every RunEvent in emission order
// and is closed after the done event.
type Run struct {
	ID string

	events chan models.RunEvent
	done   chan struct{}

	mu    sync.RWMutex
	state *models.RunState
	seq   int
}

func (r *Run) Events() <-chan models.RunEvent { return r.events }

// Done is closed once the run has emitted its done event.
func (r *Run) Done() <-chan struct{} { return r.done }

// State returns a snapshot of per-step state.
func (r *Run) State() *models.RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Clone()
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// RunFrom re-executes the suffix of plan starting at stepID, reusing the
// recorded outputs of the steps before it.
func (e *Executor) RunFrom(ctx context.Context, plan *models.Plan, stepID string, configs map[string]models.StepConfig, prev map[string]models.Output) (*Run, error) {
	return e.Execute(ctx, Request{Plan: plan, StartStepID: stepID, Configs: configs, PreviousOutputs: prev})
}

// Execute validates the request and starts the run in its own goroutine.
// Cancelling ctx stops the run: the in-flight step ends with a canceled error
// and no further step starts.
func (e *Executor) Execute(ctx context.Context, req Request) (*Run, error) {
	if req.Plan == nil || len(req.Plan.Steps) == 0 {
		return nil, ErrEmptyPlan
	}
	start := 0
	if req.StartStepID != "" {
		start = req.Plan.StepIndex(req.StartStepID)
		if start < 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStep, req.StartStepID)
		}
	}
	// Earlier outputs are trusted as given; only their presence is checked.
	outputs := make(map[string]models.Output, len(req.Plan.Steps))
	for _, s := range req.Plan.Steps[:start] {
		o, ok := req.PreviousOutputs[s.ID]
		if !ok || o.Empty() {
			return nil, fmt.Errorf("%w for step %q", ErrMissingPreviousOutput, s.ID)
		}
		outputs[s.ID] = o
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	slice := req.Plan.Steps[start:]
	run := &Run{
		ID:     req.RunID,
		events: make(chan models.RunEvent, 2*len(slice)+1),
		done:   make(chan struct{}),
		state:  models.NewRunState(req.Plan, outputs),
	}
	go e.execute(ctx, run, req, slice, outputs)
	return run, nil
}

func (e *Executor) execute(ctx context.Context, run *Run, req Request, slice []*models.Step, outputs map[string]models.Output) {
	defer close(run.done)
	defer close(run.events)

	log := e.logger().With("run", run.ID)
	log.Info("run started", "steps", len(slice), "from", slice[0].ID)
	metrics.RunsActive.Inc()
	defer metrics.RunsActive.Dec()

	finish := func(status models.RunStatus, msg string) {
		metrics.RunsTotal.WithLabelValues(string(status)).Inc()
		log.Info("run finished", "status", status)
		e.emit(run, models.RunEvent{Type: models.EventDone, Status: status, Error: msg, Outputs: copyOutputs(outputs)})
	}

	for _, step := range slice {
		if ctx.Err() != nil {
			finish(models.RunCanceled, "run canceled")
			return
		}
		e.emit(run, models.RunEvent{Type: models.EventStepStart, StepID: step.ID})
		res := e.Runner.Run(ctx, step, step.Effective(req.Configs), outputs)
		if res.Status != models.StepComplete {
			e.emit(run, models.RunEvent{Type: models.EventStepError, StepID: step.ID, Error: res.Error, ErrorKind: res.ErrorKind})
			if res.ErrorKind == string(KindCanceled) {
				finish(models.RunCanceled, res.Error)
			} else {
				finish(models.RunError, res.Error)
			}
			return
		}
		outputs[step.ID] = res.Output()
		e.emit(run, models.RunEvent{Type: models.EventStepComplete, StepID: step.ID, OutputURL: res.OutputURL, OutputText: res.OutputText})
	}
	finish(models.RunSuccess, "")
}

// emit never blocks: the channel holds every event a run can produce.
func (e *Executor) emit(run *Run, ev models.RunEvent) {
	run.mu.Lock()
	run.seq++
	ev.Seq = run.seq
	ev.RunID = run.ID
	ev.Time = time.Now().UTC()
	run.state.Apply(ev)
	run.mu.Unlock()
	run.events <- ev
}

func copyOutputs(in map[string]models.Output) map[string]models.Output {
	out := make(map[string]models.Output, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
