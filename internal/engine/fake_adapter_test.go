package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/example/mediaflow/internal/tools"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeAdapter scripts a provider: each job errors statusErrs times, then
// reports running, then the final status from result.
type fakeAdapter struct {
	tool       string
	result     func(model string, inputs map[string]any) tools.JobStatus
	submitErr  error
	statusErrs int
	running    int
	block      bool

	mu      sync.Mutex
	n       int
	jobs    map[string]*fakeJob
	submits []map[string]any
	cancels []string
}

type fakeJob struct {
	checks int
	final  tools.JobStatus
}

// echoResult derives the output from the submitted inputs so equal inputs give
// equal outputs.
func echoResult(tool string) func(string, map[string]any) tools.JobStatus {
	return func(model string, inputs map[string]any) tools.JobStatus {
		return tools.JobStatus{
			State:     tools.JobSucceeded,
			OutputURL: fmt.Sprintf("https://cdn.test/%s/%s?%v", tool, model, inputs),
		}
	}
}

func (f *fakeAdapter) Submit(ctx context.Context, model string, inputs map[string]any) (tools.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, inputs)
	if f.submitErr != nil {
		return tools.Handle{}, f.submitErr
	}
	if f.jobs == nil {
		f.jobs = map[string]*fakeJob{}
	}
	f.n++
	id := fmt.Sprintf("%s-%d", f.tool, f.n)
	res := f.result
	if res == nil {
		res = echoResult(f.tool)
	}
	f.jobs[id] = &fakeJob{final: res(model, inputs)}
	return tools.Handle{ID: id, Provider: "fake"}, nil
}

func (f *fakeAdapter) Status(ctx context.Context, h tools.Handle) (tools.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[h.ID]
	if !ok {
		return tools.JobStatus{}, fmt.Errorf("unknown job %s", h.ID)
	}
	j.checks++
	switch {
	case j.checks <= f.statusErrs:
		return tools.JobStatus{}, fmt.Errorf("status endpoint unavailable")
	case f.block || j.checks <= f.statusErrs+f.running:
		return tools.JobStatus{State: tools.JobRunning}, nil
	}
	return j.final, nil
}

func (f *fakeAdapter) Cancel(ctx context.Context, h tools.Handle) error {
	f.mu.Lock()
	f.cancels = append(f.cancels, h.ID)
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

func (f *fakeAdapter) canceled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancels...)
}

func fastPolicies(timeout time.Duration) map[string]PollPolicy {
	out := map[string]PollPolicy{}
	for tool := range DefaultPolicies() {
		out[tool] = PollPolicy{Interval: time.Millisecond, Timeout: timeout}
	}
	return out
}

func newTestRunner(adapters ...*fakeAdapter) *StepRunner {
	reg := tools.NewRegistry()
	for _, a := range adapters {
		reg.Register(a.tool, a)
	}
	return &StepRunner{
		Tools:           reg,
		Requirements:    DefaultRequirements(),
		Poller:          &Poller{Logger: discard},
		Policies:        fastPolicies(2 * time.Second),
		MaxStatusErrors: 3,
		Logger:          discard,
	}
}
