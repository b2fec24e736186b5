package agents

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/mediaflow/internal/engine"
	"github.com/example/mediaflow/internal/models"
	"github.com/example/mediaflow/internal/providers/llm"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func stepIDs(p *models.Plan) []string {
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.ID
	}
	return out
}

func TestMockPlannerShapes(t *testing.T) {
	tests := []struct {
		prompt string
		want   []string
	}{
		{"a red fox in snow", []string{"image"}},
		{"an essay already about a stalk of wheat", []string{"image"}},
		{"animate a red fox running", []string{"image", "video"}},
		{`a wizard who says "welcome, traveller"`, []string{"image", "voice", "lipsync"}},
		{"make a video of a robot that talks about the weather", []string{"image", "video", "voice", "lipsync"}},
		{"narrate https://docs.test/story.pdf over a forest", []string{"document", "image", "voice"}},
	}
	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			p, err := (&MockPlanner{}).Plan(context.Background(), PlanRequest{Prompt: tt.prompt})
			require.NoError(t, err)
			assert.Equal(t, tt.want, stepIDs(p))
			assert.NoError(t, models.ValidatePlan(p))
		})
	}
}

func TestMockPlannerWiresReferences(t *testing.T) {
	p, err := (&MockPlanner{}).Plan(context.Background(), PlanRequest{Prompt: `animate a knight who says "hold the line"`})
	require.NoError(t, err)

	byID := map[string]*models.Step{}
	for _, s := range p.Steps {
		byID[s.ID] = s
	}
	assert.Equal(t, models.RefTo("image", models.FieldURL), byID["video"].Inputs["start_image"])
	assert.Equal(t, models.Lit("hold the line"), byID["voice"].Inputs["text"])
	assert.Equal(t, models.RefTo("video", models.FieldURL), byID["lipsync"].Inputs["video"])
	assert.Equal(t, []string{"video", "voice"}, byID["lipsync"].Dependencies)

	_, err = (&MockPlanner{}).Plan(context.Background(), PlanRequest{Prompt: "  "})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

type scriptedLLM struct {
	out string
	err error
}

func (s scriptedLLM) GenerateText(ctx context.Context, prompt string) (string, error) {
	return s.out, s.err
}

func TestLLMPlannerParsesFencedObject(t *testing.T) {
	raw := "Here you go:\n```json\n" + `{"summary":"clip","steps":[
	  {"id":"a","tool":"image","inputs":{"prompt":"a [bright] lake"}},
	  {"id":"b","tool":"video","dependencies":["a"],"inputs":{"start_image":{"kind":"stepOutput","stepId":"a"}}}
	]}` + "\n```"
	p := &LLMPlanner{Client: scriptedLLM{out: raw}, Logger: discard}

	plan, err := p.Plan(context.Background(), PlanRequest{Prompt: "lake clip"})
	require.NoError(t, err)
	assert.Equal(t, "clip", plan.Summary)
	assert.Equal(t, []string{"a", "b"}, stepIDs(plan))
	assert.Equal(t, models.Ref("a"), plan.Steps[1].Inputs["start_image"])
}

func TestLLMPlannerParsesBareArray(t *testing.T) {
	raw := `Plan: [{"tool":"tts","inputs":{"text":"hi"}}] done`
	plan, err := (&LLMPlanner{Client: scriptedLLM{out: raw}, Logger: discard}).Plan(context.Background(), PlanRequest{Prompt: "say hi"})
	require.NoError(t, err)
	assert.Equal(t, []string{"step1"}, stepIDs(plan))
}

func TestLLMPlannerFallsBack(t *testing.T) {
	ctx := context.Background()
	req := PlanRequest{Prompt: "a lighthouse"}

	for name, c := range map[string]llm.Client{
		"error":       scriptedLLM{err: errors.New("rate limited")},
		"not json":    scriptedLLM{out: "I cannot help with that"},
		"forward ref": scriptedLLM{out: `{"steps":[{"id":"a","tool":"video","dependencies":["b"]},{"id":"b","tool":"image"}]}`},
	} {
		t.Run(name, func(t *testing.T) {
			plan, err := (&LLMPlanner{Client: c, Logger: discard}).Plan(ctx, req)
			require.NoError(t, err)
			assert.Equal(t, []string{"image"}, stepIDs(plan))
		})
	}
}

func TestLLMPlannerWithMockClient(t *testing.T) {
	plan, err := (&LLMPlanner{Client: &llm.MockClient{}, Logger: discard}).Plan(context.Background(), PlanRequest{Prompt: "a \"quoted\" fox"})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, models.Lit(`a "quoted" fox`), plan.Steps[0].Inputs["prompt"])
}

func TestPlanVerifier(t *testing.T) {
	plan := &models.Plan{Steps: []*models.Step{
		{ID: "a", Tool: "image"},
		{ID: "b", Tool: "hologram", Dependencies: []string{"c"}},
	}}
	v := &PlanVerifier{Tools: func(tool string) bool { return tool == "image" }}

	err := v.Verify(plan, nil)
	var pe *models.PlanError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, []string{
		`step "b" depends on unknown step "c"`,
		`step "b" uses tool "hologram", which has no provider`,
	}, pe.Problems)

	assert.NoError(t, v.Verify(&models.Plan{Steps: []*models.Step{{ID: "a", Tool: "image"}}}, nil))
	assert.NoError(t, (&PlanVerifier{}).Verify(&models.Plan{Steps: []*models.Step{{ID: "a", Tool: "anything"}}}, nil))
}

func TestPlanVerifierChecksToolInputs(t *testing.T) {
	v := &PlanVerifier{Requirements: engine.DefaultRequirements()}

	err := v.Verify(&models.Plan{Steps: []*models.Step{
		{ID: "a", Tool: "image", Inputs: map[string]models.Value{"prompt": models.Lit("a fox")}},
		{ID: "b", Tool: "tts", Inputs: map[string]models.Value{}},
	}}, nil)
	var pe *models.PlanError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, []string{`step "b": tts requires text`}, pe.Problems)

	tests := []struct {
		name    string
		step    *models.Step
		configs map[string]models.StepConfig
		want    []string
	}{
		{
			name: "reference counts as present",
			step: &models.Step{ID: "b", Tool: "lipsync", Inputs: map[string]models.Value{
				"video": models.Ref("a"), "audio": models.RefTo("a", models.FieldURL),
			}},
		},
		{
			name: "reference list skips the count limit",
			step: &models.Step{ID: "b", Tool: "image", Model: "flux-kontext-pro", Inputs: map[string]models.Value{
				"prompt":           models.Lit("a fox"),
				"reference_images": models.ListOf(models.Ref("a"), models.Lit("https://cdn.test/x.png")),
			}},
		},
		{
			name: "literal list over the limit",
			step: &models.Step{ID: "b", Tool: "image", Model: "flux-kontext-pro", Inputs: map[string]models.Value{
				"prompt":           models.Lit("a fox"),
				"reference_images": models.Lit("https://cdn.test/x.png, https://cdn.test/y.png"),
			}},
			want: []string{`step "b": model flux-kontext-pro accepts at most 1 reference images, got 2`},
		},
		{
			name: "config model needs a start frame",
			step: &models.Step{ID: "b", Tool: "video", Model: "veo-3", Inputs: map[string]models.Value{
				"prompt": models.Lit("a fox runs"),
			}},
			configs: map[string]models.StepConfig{"b": {Model: "wan-2.2-i2v-fast"}},
			want:    []string{`step "b": model wan-2.2-i2v-fast requires start_image`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := &models.Plan{Steps: []*models.Step{
				{ID: "a", Tool: "image", Inputs: map[string]models.Value{"prompt": models.Lit("a fox")}},
				tt.step,
			}}
			err := v.Verify(plan, tt.configs)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			var pe *models.PlanError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.want, pe.Problems)
		})
	}
}
