package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// JobState is a provider job's lifecycle state as the engine sees it.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobCanceled  JobState = "canceled"
)

// Terminal reports whether the job will not change state again.
func (s JobState) Terminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobCanceled:
		return true
	}
	return false
}

// Handle identifies one submitted job. Adapters that finish the work during
// Submit put the terminal status in Inline.
type Handle struct {
	ID       string     `json:"id"`
	Provider string     `json:"provider,omitempty"`
	Inline   *JobStatus `json:"-"`
}

// JobStatus is one status observation. Reason carries the provider's own
// failure text when State is failed or canceled.
type JobStatus struct {
	State      JobState `json:"state"`
	OutputURL  string   `json:"outputUrl,omitempty"`
	OutputText string   `json:"outputText,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// Adapter is the integration boundary to one generative provider. Adapters hold
// no per-job state and are shared by concurrent runs.
type Adapter interface {
	Submit(ctx context.Context, model string, inputs map[string]any) (Handle, error)
	Status(ctx context.Context, h Handle) (JobStatus, error)
}

// Canceler is implemented by adapters whose provider can retract a job.
type Canceler interface {
	Cancel(ctx context.Context, h Handle) error
}

// Registry maps tool names to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: map[string]Adapter{}}
}

func (r *Registry) Register(tool string, a Adapter) {
	r.mu.Lock()
	r.adapters[tool] = a
	r.mu.Unlock()
}

func (r *Registry) Get(tool string) (Adapter, bool) {
	r.mu.RLock()
	a, ok := r.adapters[tool]
	r.mu.RUnlock()
	return a, ok
}

// Tools returns the registered tool names, sorted.
func (r *Registry) Tools() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		out = append(out, name)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

func completed(url, text string) Handle {
	return Handle{ID: "inline", Inline: &JobStatus{State: JobSucceeded, OutputURL: url, OutputText: text}}
}

// inlineStatus serves Status for adapters that only ever return inline handles.
func inlineStatus(h Handle) (JobStatus, error) {
	if h.Inline == nil {
		return JobStatus{}, errUnknownHandle(h.ID)
	}
	return *h.Inline, nil
}

func errUnknownHandle(id string) error {
	return fmt.Errorf("unknown job handle %q", id)
}
