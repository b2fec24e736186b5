package models

import (
	"encoding/json"
	"time"
)

// StepStatus is the lifecycle state of one step within one run.
type StepStatus string

const (
	StepIdle     StepStatus = "idle"
	StepRunning  StepStatus = "running"
	StepComplete StepStatus = "complete"
	StepError    StepStatus = "error"
)

// RunStatus is the final status carried by a done event.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunSuccess  RunStatus = "success"
	RunError    RunStatus = "error"
	RunCanceled RunStatus = "canceled"
)

type Plan struct {
	Summary string  `json:"summary"`
	Steps   []*Step `json:"steps"`
}

type Step struct {
	ID           string           `json:"id"`
	Title        string           `json:"title,omitempty"`
	Tool         string           `json:"tool"`
	Model        string           `json:"model,omitempty"`
	Inputs       map[string]Value `json:"inputs,omitempty"`
	Dependencies []string         `json:"dependencies,omitempty"`
	OutputType   string           `json:"outputType,omitempty"`
}

// StepConfig is the caller-owned override of a step's model and inputs.
type StepConfig struct {
	Model  string           `json:"model,omitempty"`
	Inputs map[string]Value `json:"inputs,omitempty"`
}

// Output is what a completed step produced. At least one field is set.
type Output struct {
	URL  string `json:"url,omitempty"`
	Text string `json:"text,omitempty"`
}

func (o Output) Empty() bool { return o.URL == "" && o.Text == "" }

type StepState struct {
	Status     StepStatus `json:"status"`
	OutputURL  string     `json:"outputUrl,omitempty"`
	OutputText string     `json:"outputText,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Result is what the step runner reports for one attempted step.
type Result struct {
	StepID     string        `json:"stepId"`
	Status     StepStatus    `json:"status"`
	OutputURL  string        `json:"outputUrl,omitempty"`
	OutputText string        `json:"outputText,omitempty"`
	Error      string        `json:"error,omitempty"`
	ErrorKind  string        `json:"errorKind,omitempty"`
	Err        error         `json:"-"`
	Duration   time.Duration `json:"-"`
}

func (r Result) Output() Output { return Output{URL: r.OutputURL, Text: r.OutputText} }

// Effective returns the config the engine submits with: the caller override when
// present, falling back to the step's own defaults.
func (s *Step) Effective(configs map[string]StepConfig) StepConfig {
	cfg, ok := configs[s.ID]
	if !ok {
		return StepConfig{Model: s.Model, Inputs: s.Inputs}
	}
	if cfg.Model == "" {
		cfg.Model = s.Model
	}
	if cfg.Inputs == nil {
		cfg.Inputs = s.Inputs
	}
	return cfg
}

// StepIndex returns the position of id in the plan or -1.
func (p *Plan) StepIndex(id string) int {
	for i, s := range p.Steps {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so the caller can keep editing its plan while a run holds this one.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	b, _ := json.Marshal(p)
	var out Plan
	_ = json.Unmarshal(b, &out)
	return &out
}
