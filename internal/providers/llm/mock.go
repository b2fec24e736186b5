package llm

import (
	"context"
	"encoding/json"
	"strings"
)

// MockClient is used when no real provider is configured. It answers planning
// prompts with a one-step image plan for the request line and echoes everything
// else.
type MockClient struct{}

func (m *MockClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "Output ONLY a JSON object") {
		req := prompt
		for _, line := range strings.Split(prompt, "\n") {
			if rest, ok := strings.CutPrefix(line, "Request: "); ok {
				req = strings.TrimSpace(rest)
				break
			}
		}
		plan := map[string]any{
			"summary": "Generate an image",
			"steps": []map[string]any{{
				"id": "image", "title": "Generate image", "tool": "image", "model": "flux-schnell",
				"inputs": map[string]any{"prompt": req}, "outputType": "image",
			}},
		}
		b, err := json.Marshal(plan)
		return string(b), err
	}
	return "mock: " + strings.TrimSpace(prompt), nil
}
