package tools

import (
	"context"
	"errors"
	"strings"

	"github.com/example/mediaflow/internal/providers/llm"
)

// PromptAdapter generates text with an LLM, e.g. a narration script or a refined
// image prompt. It finishes during Submit and uses the client's configured model.
type PromptAdapter struct{ Client llm.Client }

func (t *PromptAdapter) Submit(ctx context.Context, model string, inputs map[string]any) (Handle, error) {
	if t.Client == nil {
		return Handle{}, errors.New("no llm client configured")
	}
	q, _ := inputs["prompt"].(string)
	if strings.TrimSpace(q) == "" {
		return Handle{}, errors.New("missing prompt")
	}
	prompt := q
	if inst, _ := inputs["instructions"].(string); inst != "" {
		prompt = inst + "\n\n" + q
	}
	if c, _ := inputs["context"].(string); c != "" {
		prompt += "\n\nContext:\n" + c
	}
	out, err := t.Client.GenerateText(ctx, prompt)
	if err != nil {
		return Handle{}, err
	}
	return completed("", strings.TrimSpace(out)), nil
}

func (t *PromptAdapter) Status(ctx context.Context, h Handle) (JobStatus, error) {
	return inlineStatus(h)
}
