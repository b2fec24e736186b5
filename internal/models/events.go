package models

import "time"

type EventType string

const (
	EventStepStart    EventType = "step_start"
	EventStepComplete EventType = "step_complete"
	EventStepError    EventType = "step_error"
	EventDone         EventType = "done"
)

// RunEvent is one entry of a run's ordered event stream. Only the fields that
// belong to Type are set.
type RunEvent struct {
	Type       EventType         `json:"type"`
	RunID      string            `json:"runId,omitempty"`
	Seq        int               `json:"seq"`
	StepID     string            `json:"stepId,omitempty"`
	OutputURL  string            `json:"outputUrl,omitempty"`
	OutputText string            `json:"outputText,omitempty"`
	Error      string            `json:"error,omitempty"`
	ErrorKind  string            `json:"errorKind,omitempty"`
	Status     RunStatus         `json:"status,omitempty"`
	Outputs    map[string]Output `json:"outputs,omitempty"`
	Time       time.Time         `json:"time"`
}

// RunState is a caller-side projection of a run's events into per-step state.
type RunState struct {
	Steps  map[string]StepState `json:"steps"`
	Status RunStatus            `json:"status"`
	Error  string               `json:"error,omitempty"`
}

// NewRunState starts every step of the plan in Idle, except steps whose output
// the caller carried over, which start Complete.
func NewRunState(p *Plan, carried map[string]Output) *RunState {
	rs := &RunState{Steps: make(map[string]StepState, len(p.Steps)), Status: RunRunning}
	for _, s := range p.Steps {
		st := StepState{Status: StepIdle}
		if o, ok := carried[s.ID]; ok && !o.Empty() {
			st = StepState{Status: StepComplete, OutputURL: o.URL, OutputText: o.Text}
		}
		rs.Steps[s.ID] = st
	}
	return rs
}

// Apply folds one event into the state.
func (rs *RunState) Apply(ev RunEvent) {
	switch ev.Type {
	case EventStepStart:
		rs.Steps[ev.StepID] = StepState{Status: StepRunning}
	case EventStepComplete:
		rs.Steps[ev.StepID] = StepState{Status: StepComplete, OutputURL: ev.OutputURL, OutputText: ev.OutputText}
	case EventStepError:
		rs.Steps[ev.StepID] = StepState{Status: StepError, Error: ev.Error}
		rs.Error = ev.Error
	case EventDone:
		rs.Status = ev.Status
	}
}

func (rs *RunState) Clone() *RunState {
	out := &RunState{Steps: make(map[string]StepState, len(rs.Steps)), Status: rs.Status, Error: rs.Error}
	for k, v := range rs.Steps {
		out.Steps[k] = v
	}
	return out
}
