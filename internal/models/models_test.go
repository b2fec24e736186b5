package models

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const planJSON = `{
  "summary": "lighthouse clip",
  "steps": [
    {"id": "a", "tool": "image", "model": "flux-schnell", "inputs": {"prompt": "a lighthouse"}},
    {"id": "b", "tool": "video", "model": "kling-v2.1-standard", "dependencies": ["a"],
     "inputs": {
       "start_image": {"kind": "stepOutput", "stepId": "a"},
       "reference_images": [{"kind": "stepOutput", "stepId": "a", "field": "url"}, "https://x.test/r.png"],
       "settings": {"fps": 24},
       "duration": 5
     }}
  ]
}`

func TestPlanDecodesTypedReferences(t *testing.T) {
	var p Plan
	require.NoError(t, json.Unmarshal([]byte(planJSON), &p))
	require.Len(t, p.Steps, 2)

	in := p.Steps[1].Inputs
	assert.Equal(t, Ref("a"), in["start_image"])
	assert.Equal(t, ListOf(RefTo("a", FieldURL), Lit("https://x.test/r.png")), in["reference_images"])
	assert.Equal(t, Lit(map[string]any{"fps": 24.0}), in["settings"])
	assert.Equal(t, Lit(5.0), in["duration"])
	assert.Equal(t, []string{"a"}, in["reference_images"].References())
	assert.NoError(t, ValidatePlan(&p))
}

func TestValueEncodesReferenceObject(t *testing.T) {
	b, err := json.Marshal(map[string]Value{"image": RefTo("a", FieldText), "n": Lit(2)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"image":{"kind":"stepOutput","stepId":"a","field":"text"},"n":2}`, string(b))
}

func TestValueRejectsMalformedReference(t *testing.T) {
	var v Value
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"stepOutput"}`), &v))
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"stepOutput","stepId":"a","field":"pixels"}`), &v))
}

func TestValidatePlanProblems(t *testing.T) {
	p := &Plan{Steps: []*Step{
		{ID: "a", Tool: "image", Dependencies: []string{"b"}},
		{ID: "b", Tool: "video", Inputs: map[string]Value{"start_image": Ref("b")}},
		{ID: "b", Tool: "video"},
		{ID: "c", Inputs: map[string]Value{"audio": Ref("ghost")}},
		nil,
	}}

	err := ValidatePlan(p)
	var pe *PlanError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, []string{
		`step "a" depends on "b" which comes later in the plan`,
		`step "b" input start_image references itself`,
		`duplicate step id "b"`,
		`step "c" has no tool`,
		`step "c" input audio references unknown step "ghost"`,
		`step 5 is null`,
	}, pe.Problems)

	assert.Error(t, ValidatePlan(&Plan{}))
}

func TestEffectiveConfigFallsBackToStep(t *testing.T) {
	s := &Step{ID: "a", Model: "flux-schnell", Inputs: map[string]Value{"prompt": Lit("cat")}}

	assert.Equal(t, StepConfig{Model: "flux-schnell", Inputs: s.Inputs}, s.Effective(nil))

	got := s.Effective(map[string]StepConfig{"a": {Inputs: map[string]Value{"prompt": Lit("dog")}}})
	assert.Equal(t, "flux-schnell", got.Model)
	assert.Equal(t, Lit("dog"), got.Inputs["prompt"])
}

func TestRunStateFollowsEvents(t *testing.T) {
	p := &Plan{Steps: []*Step{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	rs := NewRunState(p, map[string]Output{"a": {URL: "https://x.test/a.png"}})
	assert.Equal(t, StepComplete, rs.Steps["a"].Status)

	rs.Apply(RunEvent{Type: EventStepStart, StepID: "b"})
	snap := rs.Clone()
	rs.Apply(RunEvent{Type: EventStepError, StepID: "b", Error: "boom"})
	rs.Apply(RunEvent{Type: EventDone, Status: RunError})

	assert.Equal(t, StepRunning, snap.Steps["b"].Status)
	assert.Equal(t, StepError, rs.Steps["b"].Status)
	assert.Equal(t, StepIdle, rs.Steps["c"].Status)
	assert.Equal(t, RunError, rs.Status)
	assert.Equal(t, "boom", rs.Error)
}

func TestLoadPlanFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
summary: two steps
steps:
  - id: a
    tool: tts
    inputs:
      text: hello
  - id: b
    tool: lipsync
    dependencies: [a]
    inputs:
      image: https://x.test/face.png
      audio: {kind: stepOutput, stepId: a}
`), 0o600))

	p, err := LoadPlanFile(path)
	require.NoError(t, err)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, Ref("a"), p.Steps[1].Inputs["audio"])
	assert.NoError(t, ValidatePlan(p))

	outPath := filepath.Join(dir, "outputs.json")
	require.NoError(t, os.WriteFile(outPath, []byte(`{"a":{"url":"https://x.test/a.mp3"}}`), 0o600))
	outs, err := LoadOutputsFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, Output{URL: "https://x.test/a.mp3"}, outs["a"])
}
