package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/mediaflow/internal/models"
	"github.com/example/mediaflow/internal/providers/llm"
)

// LLMPlanner asks an LLM for a structured plan. Output that does not parse or
// fails plan validation falls back to Fallback.
type LLMPlanner struct {
	Client   llm.Client
	Fallback Planner
	Logger   *slog.Logger
}

func (p *LLMPlanner) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *LLMPlanner) fallback(ctx context.Context, req PlanRequest) (*models.Plan, error) {
	if p.Fallback != nil {
		return p.Fallback.Plan(ctx, req)
	}
	return (&MockPlanner{}).Plan(ctx, req)
}

func (p *LLMPlanner) Plan(ctx context.Context, req PlanRequest) (*models.Plan, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	raw, err := p.Client.GenerateText(ctx, buildPlanPrompt(req))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger().Warn("llm planner: generate failed, using fallback", "error", err)
		return p.fallback(ctx, req)
	}
	plan, err := parsePlan(raw)
	if err == nil {
		err = models.ValidatePlan(plan)
	}
	if err != nil {
		p.logger().Warn("llm planner: unusable plan, using fallback", "error", err, "raw", truncate(raw, 200))
		return p.fallback(ctx, req)
	}
	return plan, nil
}

// parsePlan accepts {"summary","steps"} or a bare step array, optionally inside
// a code fence or surrounded by prose.
func parsePlan(raw string) (*models.Plan, error) {
	text := normalizeJSONText(raw)
	var plan models.Plan
	if strings.HasPrefix(text, "[") {
		if err := json.Unmarshal([]byte(text), &plan.Steps); err != nil {
			return nil, fmt.Errorf("decode steps: %w", err)
		}
	} else if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if len(plan.Steps) == 0 {
		return nil, fmt.Errorf("plan has no steps")
	}
	for i, s := range plan.Steps {
		if s != nil && s.ID == "" {
			s.ID = fmt.Sprintf("step%d", i+1)
		}
	}
	return &plan, nil
}

func buildPlanPrompt(req PlanRequest) string {
	ctxJSON := "{}"
	if len(req.Context) > 0 {
		if b, err := json.Marshal(req.Context); err == nil {
			ctxJSON = string(b)
		}
	}
	return fmt.Sprintf(`You are a planning agent for a media generation pipeline.
Output ONLY a JSON object, no prose, no code fences.

Tools (you MUST stick to these):
- image: inputs {"prompt": string, "reference_images"?: [url]}
- video: inputs {"prompt"?: string, "start_image"?: url}; image-to-video models need start_image
- tts: inputs {"text": string}
- lipsync: inputs {"video" or "image": url, "audio": url}
- transcription: inputs {"audio": url}
- enhance: inputs {"image" or "video": url}
- background-remove: inputs {"image": url}
- document: inputs {"source": url}; output is text
- prompt: inputs {"prompt": string}; output is text

Rules:
- Steps run strictly in list order; a step may only use outputs of steps listed before it.
- To pass a previous step's output, use the value {"kind": "stepOutput", "stepId": "<id>", "field": "url"|"text"} and list that id in "dependencies".
- Use 1 to 5 steps.

Schema: {"summary": string, "steps": [{"id": string, "title": string, "tool": string, "model": string, "inputs": {...}, "dependencies": [string], "outputType": "image"|"video"|"audio"|"text"}]}

Request: %s
Context: %s`, strings.ReplaceAll(req.Prompt, "\n", " "), ctxJSON)
}

// extractJSON returns the first balanced top-level JSON object or array in s,
// skipping brackets inside string literals.
func extractJSON(s string) string {
	start := strings.IndexAny(s, "{[")
	if start == -1 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func normalizeJSONText(s string) string {
	t := strings.TrimSpace(s)
	// Strip code fences like ```json ... ```
	if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```")
		if idx := strings.IndexByte(t, '\n'); idx != -1 {
			t = t[idx+1:]
		}
		if j := strings.LastIndex(t, "```"); j != -1 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}
	if !strings.HasPrefix(t, "{") && !strings.HasPrefix(t, "[") {
		if js := extractJSON(t); js != "" {
			return js
		}
	}
	return t
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
