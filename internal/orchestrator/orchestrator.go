package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/example/mediaflow/internal/agents"
	"github.com/example/mediaflow/internal/engine"
	"github.com/example/mediaflow/internal/models"
)

// DefaultRetention applies when Orchestrator.Retention is unset.
const DefaultRetention = time.Hour

var (
	ErrRunNotFound = errors.New("run not found")
	ErrRunFinished = errors.New("run already finished")
)

// Observer receives every event of every run after the hub has it. Observe
// must not block for long; it runs on the run's event pump.
type Observer interface {
	Observe(ctx context.Context, ev models.RunEvent)
}

// StartRequest starts a run, or with StartStepID set, retries a plan from that
// step using PreviousOutputs for the steps before it.
type StartRequest struct {
	Plan            *models.Plan                 `json:"plan"`
	Configs         map[string]models.StepConfig `json:"configs,omitempty"`
	PreviousOutputs map[string]models.Output     `json:"previous_outputs,omitempty"`
	StartStepID     string                       `json:"start_step_id,omitempty"`
}

// RunInfo is a point-in-time view of a run.
type RunInfo struct {
	ID          string                   `json:"id"`
	Plan        *models.Plan             `json:"plan"`
	StartStepID string                   `json:"startStepId,omitempty"`
	State       *models.RunState         `json:"state"`
	Outputs     map[string]models.Output `json:"outputs,omitempty"`
	CreatedAt   time.Time                `json:"createdAt"`
	FinishedAt  *time.Time               `json:"finishedAt,omitempty"`
}

type run struct {
	id      string
	plan    *models.Plan
	start   string
	exec    *engine.Run
	cancel  context.CancelFunc
	created time.Time

	mu       sync.Mutex
	finished time.Time
	outputs  map[string]models.Output
}

// Orchestrator owns the runs started through the service: it plans, validates,
// starts and cancels them and republishes their events.
type Orchestrator struct {
	Planner   agents.Planner
	Verifier  agents.Verifier
	Executor  *engine.Executor
	Observers []Observer
	Logger    *slog.Logger
	// Retention is how long a finished run and its event history are kept
	// before Get, List and Subscribe stop reporting it.
	Retention time.Duration

	mu   sync.RWMutex
	runs map[string]*run
	hub  *Hub
}

func New(planner agents.Planner, verifier agents.Verifier, executor *engine.Executor, observers ...Observer) *Orchestrator {
	return &Orchestrator{
		Planner:   planner,
		Verifier:  verifier,
		Executor:  executor,
		Observers: observers,
		runs:      map[string]*run{},
		hub:       NewHub(),
	}
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Plan asks the planner for a plan and verifies it before returning.
func (o *Orchestrator) Plan(ctx context.Context, req agents.PlanRequest) (*models.Plan, error) {
	plan, err := o.Planner.Plan(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := o.Verify(plan, nil); err != nil {
		return nil, fmt.Errorf("planner produced an unusable plan: %w", err)
	}
	return plan, nil
}

// Verify checks plan with configs applied, the way StartRun does.
func (o *Orchestrator) Verify(plan *models.Plan, configs map[string]models.StepConfig) error {
	if o.Verifier == nil {
		return models.ValidatePlan(plan)
	}
	return o.Verifier.Verify(plan, configs)
}

// StartRun starts a run that outlives the caller's request; stop it with Cancel.
func (o *Orchestrator) StartRun(req StartRequest) (RunInfo, error) {
	ctx, cancel := context.WithCancel(context.Background())
	return o.start(ctx, cancel, req)
}

// StreamRun starts a run bound to ctx: when ctx ends, the run is canceled.
func (o *Orchestrator) StreamRun(ctx context.Context, req StartRequest) (RunInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	return o.start(ctx, cancel, req)
}

func (o *Orchestrator) start(ctx context.Context, cancel context.CancelFunc, req StartRequest) (RunInfo, error) {
	if err := o.Verify(req.Plan, req.Configs); err != nil {
		cancel()
		return RunInfo{}, err
	}
	plan := req.Plan.Clone()
	exec, err := o.Executor.Execute(ctx, engine.Request{
		Plan:            plan,
		Configs:         req.Configs,
		PreviousOutputs: req.PreviousOutputs,
		StartStepID:     req.StartStepID,
	})
	if err != nil {
		cancel()
		return RunInfo{}, err
	}
	r := &run{id: exec.ID, plan: plan, start: req.StartStepID, exec: exec, cancel: cancel, created: time.Now().UTC()}
	o.hub.Open(r.id, 2*len(plan.Steps)+1)
	o.mu.Lock()
	o.runs[r.id] = r
	o.mu.Unlock()

	go o.pump(ctx, r)
	return o.info(r), nil
}

// pump republishes a run's events and records its final outputs.
func (o *Orchestrator) pump(ctx context.Context, r *run) {
	defer r.cancel()
	defer o.hub.Close(r.id)
	octx := context.WithoutCancel(ctx)
	for ev := range r.exec.Events() {
		if ev.Type == models.EventDone {
			r.mu.Lock()
			r.finished = ev.Time
			r.outputs = ev.Outputs
			r.mu.Unlock()
		}
		o.hub.Publish(r.id, ev)
		for _, obs := range o.Observers {
			obs.Observe(octx, ev)
		}
	}
	o.logger().Debug("run stream closed", "run", r.id)
	time.AfterFunc(o.retention(), func() { o.evict(r.id) })
}

func (o *Orchestrator) retention() time.Duration {
	if o.Retention > 0 {
		return o.Retention
	}
	return DefaultRetention
}

func (o *Orchestrator) evict(id string) {
	o.mu.Lock()
	delete(o.runs, id)
	o.mu.Unlock()
	o.hub.Forget(id)
	o.logger().Debug("run evicted", "run", id)
}

func (o *Orchestrator) get(id string) (*run, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	r, ok := o.runs[id]
	return r, ok
}

// Cancel stops a running run. The in-flight step reports a canceled error and
// the run ends with status canceled.
func (o *Orchestrator) Cancel(id string) error {
	r, ok := o.get(id)
	if !ok {
		return ErrRunNotFound
	}
	select {
	case <-r.exec.Done():
		return ErrRunFinished
	default:
	}
	r.cancel()
	return nil
}

func (o *Orchestrator) Get(id string) (RunInfo, bool) {
	r, ok := o.get(id)
	if !ok {
		return RunInfo{}, false
	}
	return o.info(r), true
}

// List returns all known runs, newest first.
func (o *Orchestrator) List() []RunInfo {
	o.mu.RLock()
	out := make([]RunInfo, 0, len(o.runs))
	for _, r := range o.runs {
		out = append(out, o.info(r))
	}
	o.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Subscribe streams a run's events from the beginning. The channel closes
// after the done event.
func (o *Orchestrator) Subscribe(id string) (<-chan models.RunEvent, func(), error) {
	ch, unsub, ok := o.hub.Subscribe(id)
	if !ok {
		return nil, nil, ErrRunNotFound
	}
	return ch, unsub, nil
}

func (o *Orchestrator) info(r *run) RunInfo {
	info := RunInfo{ID: r.id, Plan: r.plan, StartStepID: r.start, State: r.exec.State(), CreatedAt: r.created}
	r.mu.Lock()
	if !r.finished.IsZero() {
		t := r.finished
		info.FinishedAt = &t
		info.Outputs = r.outputs
	}
	r.mu.Unlock()
	return info
}
