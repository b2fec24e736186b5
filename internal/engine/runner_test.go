package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/mediaflow/internal/models"
	"github.com/example/mediaflow/internal/tools"
)

func imageStep(id, prompt string) *models.Step {
	return &models.Step{ID: id, Tool: "image", Model: "flux-schnell", Inputs: map[string]models.Value{"prompt": models.Lit(prompt)}}
}

func videoStep(id, from string) *models.Step {
	return &models.Step{
		ID: id, Tool: "video", Model: "kling-v2.1-standard",
		Inputs:       map[string]models.Value{"prompt": models.Lit("slow pan"), "start_image": models.Ref(from)},
		Dependencies: []string{from},
	}
}

func runStep(r *StepRunner, s *models.Step, prev map[string]models.Output) models.Result {
	return r.Run(context.Background(), s, s.Effective(nil), prev)
}

func TestRunStepResolvesReferences(t *testing.T) {
	video := &fakeAdapter{tool: "video", running: 2}
	r := newTestRunner(video)
	prev := map[string]models.Output{"a": {URL: "https://cdn.test/a.png"}}

	res := runStep(r, videoStep("b", "a"), prev)

	require.Equal(t, models.StepComplete, res.Status, res.Error)
	assert.Equal(t, "b", res.StepID)
	assert.NotEmpty(t, res.OutputURL)
	require.Len(t, video.submits, 1)
	assert.Equal(t, "https://cdn.test/a.png", video.submits[0]["start_image"])
}

func TestRunStepCallerConfigOverridesStep(t *testing.T) {
	image := &fakeAdapter{tool: "image"}
	r := newTestRunner(image)
	s := imageStep("a", "default prompt")
	cfg := s.Effective(map[string]models.StepConfig{"a": {Model: "flux-pro", Inputs: map[string]models.Value{"prompt": models.Lit("edited")}}})

	res := r.Run(context.Background(), s, cfg, nil)

	require.Equal(t, models.StepComplete, res.Status)
	assert.Contains(t, res.OutputURL, "/image/flux-pro?")
	assert.Equal(t, "edited", image.submits[0]["prompt"])
}

func TestRunStepMissingDependency(t *testing.T) {
	video := &fakeAdapter{tool: "video"}
	r := newTestRunner(video)

	res := runStep(r, videoStep("b", "a"), map[string]models.Output{})

	assert.Equal(t, models.StepError, res.Status)
	assert.Equal(t, string(KindUnresolvedReference), res.ErrorKind)
	assert.Equal(t, KindUnresolvedReference, KindOf(res.Err))
	var ure *UnresolvedReferenceError
	require.ErrorAs(t, res.Err, &ure)
	assert.Equal(t, "a", ure.StepID)
	assert.Zero(t, video.submitCount())
}

func TestRunStepUnresolvedInputReference(t *testing.T) {
	image := &fakeAdapter{tool: "image"}
	r := newTestRunner(image)
	s := imageStep("b", "")
	s.Inputs["prompt"] = models.RefTo("a", models.FieldText)

	res := runStep(r, s, map[string]models.Output{"a": {URL: "https://cdn.test/a.png"}})

	assert.Equal(t, string(KindUnresolvedReference), res.ErrorKind)
	assert.Zero(t, image.submitCount())
}

func TestRunStepUnknownTool(t *testing.T) {
	r := newTestRunner()

	res := runStep(r, &models.Step{ID: "a", Tool: "hologram"}, nil)

	assert.Equal(t, string(KindValidation), res.ErrorKind)
	assert.Contains(t, res.Error, "hologram")
}

func TestRunStepValidationNeverSubmits(t *testing.T) {
	video := &fakeAdapter{tool: "video"}
	r := newTestRunner(video)
	s := &models.Step{ID: "v", Tool: "video", Model: "wan-2.2-i2v-fast", Inputs: map[string]models.Value{"prompt": models.Lit("waves")}}

	res := runStep(r, s, nil)

	assert.Equal(t, string(KindValidation), res.ErrorKind)
	assert.Contains(t, res.Error, "start_image")
	assert.Zero(t, video.submitCount())
}

func TestRunStepSubmissionRejected(t *testing.T) {
	image := &fakeAdapter{tool: "image", submitErr: errors.New("invalid api key")}
	r := newTestRunner(image)

	res := runStep(r, imageStep("a", "cat"), nil)

	assert.Equal(t, string(KindSubmission), res.ErrorKind)
	assert.Equal(t, "invalid api key", res.Error)
}

func TestRunStepProviderFailureReasonVerbatim(t *testing.T) {
	image := &fakeAdapter{tool: "image", running: 1, result: func(string, map[string]any) tools.JobStatus {
		return tools.JobStatus{State: tools.JobFailed, Reason: "NSFW content detected"}
	}}
	r := newTestRunner(image)

	res := runStep(r, imageStep("a", "cat"), nil)

	assert.Equal(t, string(KindProviderFailure), res.ErrorKind)
	assert.Equal(t, "NSFW content detected", res.Error)
}

func TestRunStepSucceededWithoutOutput(t *testing.T) {
	image := &fakeAdapter{tool: "image", result: func(string, map[string]any) tools.JobStatus {
		return tools.JobStatus{State: tools.JobSucceeded}
	}}
	r := newTestRunner(image)

	res := runStep(r, imageStep("a", "cat"), nil)

	assert.Equal(t, string(KindProviderFailure), res.ErrorKind)
}

func TestRunStepTimeoutIncludesLastStatus(t *testing.T) {
	video := &fakeAdapter{tool: "video", block: true}
	r := newTestRunner(video)
	r.Policies = fastPolicies(30 * time.Millisecond)

	res := runStep(r, videoStep("b", "a"), map[string]models.Output{"a": {URL: "https://cdn.test/a.png"}})

	assert.Equal(t, string(KindTimeout), res.ErrorKind)
	assert.Contains(t, res.Error, "running")
	var se *StepError
	require.ErrorAs(t, res.Err, &se)
	assert.Equal(t, "running", se.LastStatus)
}

func TestRunStepStatusChecksExhausted(t *testing.T) {
	image := &fakeAdapter{tool: "image", statusErrs: 100}
	r := newTestRunner(image)
	r.MaxStatusErrors = 1

	res := runStep(r, imageStep("a", "cat"), nil)

	assert.Equal(t, string(KindProviderFailure), res.ErrorKind)
	assert.Contains(t, res.Error, "status endpoint unavailable")
}

func TestRunStepCanceledRetractsJob(t *testing.T) {
	image := &fakeAdapter{tool: "image", block: true}
	r := newTestRunner(image)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	s := imageStep("a", "cat")
	res := r.Run(ctx, s, s.Effective(nil), nil)

	assert.Equal(t, string(KindCanceled), res.ErrorKind)
	assert.Equal(t, []string{"image-1"}, image.canceled())
}
