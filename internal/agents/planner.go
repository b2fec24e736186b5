package agents

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/example/mediaflow/internal/models"
)

// PlanRequest is a natural-language description of the media to produce.
type PlanRequest struct {
	Prompt  string         `json:"prompt"`
	Context map[string]any `json:"context,omitempty"`
}

type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (*models.Plan, error)
}

var (
	ErrEmptyPrompt = errors.New("empty prompt")

	quotedRe = regexp.MustCompile(`"([^"]+)"`)
	pdfRe    = regexp.MustCompile(`https?://\S+\.pdf\b`)
)

// MockPlanner is a keyword planner: it always starts from an image and adds
// video, voice and lip sync steps when the prompt asks for them.
type MockPlanner struct{}

func (m *MockPlanner) Plan(ctx context.Context, req PlanRequest) (*models.Plan, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	q := strings.ToLower(prompt)
	wantsVideo := containsAny(q, "video", "animate", "clip", "motion", "moving")
	wantsVoice := containsAny(q, "voice", "narrat", "speak", "say", "talk", "read")
	wantsLipsync := wantsVoice && containsAny(q, "speak", "say", "talk", "lip")

	plan := &models.Plan{Summary: summarize(wantsVideo, wantsVoice, wantsLipsync)}
	add := func(s *models.Step) { plan.Steps = append(plan.Steps, s) }

	var script models.Value
	switch {
	case pdfRe.MatchString(prompt):
		add(&models.Step{
			ID: "document", Title: "Extract narration from document", Tool: "document",
			Inputs:     map[string]models.Value{"source": models.Lit(pdfRe.FindString(prompt)), "max_pages": models.Lit(3)},
			OutputType: "text",
		})
		script = models.RefTo("document", models.FieldText)
		wantsVoice = true
	case quotedRe.MatchString(prompt):
		script = models.Lit(quotedRe.FindStringSubmatch(prompt)[1])
	default:
		script = models.Lit(prompt)
	}

	add(&models.Step{
		ID: "image", Title: "Generate key frame", Tool: "image", Model: "flux-schnell",
		Inputs:     map[string]models.Value{"prompt": models.Lit(prompt)},
		OutputType: "image",
	})
	visual := "image"
	if wantsVideo {
		add(&models.Step{
			ID: "video", Title: "Animate key frame", Tool: "video", Model: "kling-v2.1-standard",
			Inputs:       map[string]models.Value{"prompt": models.Lit(prompt), "start_image": models.RefTo("image", models.FieldURL)},
			Dependencies: []string{"image"},
			OutputType:   "video",
		})
		visual = "video"
	}
	if wantsVoice {
		deps := []string(nil)
		if script.IsRef() {
			deps = []string{"document"}
		}
		add(&models.Step{
			ID: "voice", Title: "Synthesize voice", Tool: "tts", Model: "eleven-multilingual-v2",
			Inputs:       map[string]models.Value{"text": script},
			Dependencies: deps,
			OutputType:   "audio",
		})
	}
	if wantsLipsync {
		add(&models.Step{
			ID: "lipsync", Title: "Sync lips to voice", Tool: "lipsync", Model: "sync-lipsync-2",
			Inputs:       map[string]models.Value{visual: models.RefTo(visual, models.FieldURL), "audio": models.RefTo("voice", models.FieldURL)},
			Dependencies: []string{visual, "voice"},
			OutputType:   "video",
		})
	}
	return plan, nil
}

func summarize(video, voice, lipsync bool) string {
	switch {
	case lipsync:
		return "Talking character with synced voice"
	case video && voice:
		return "Narrated video"
	case video:
		return "Animated video"
	case voice:
		return "Image with narration"
	}
	return "Single image"
}

// containsAny reports whether some word of s starts with one of the keywords,
// so "says" matches "say" but "essay" does not.
func containsAny(s string, keywords ...string) bool {
	words := strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
	for _, w := range words {
		for _, k := range keywords {
			if strings.HasPrefix(w, k) {
				return true
			}
		}
	}
	return false
}
