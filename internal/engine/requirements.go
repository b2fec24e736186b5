package engine

import (
	"fmt"
	"strings"

	"github.com/example/mediaflow/internal/models"
)

// Requirements holds the per-tool required-field rules checked before a job is
// submitted. Failures never reach the provider.
type Requirements struct {
	// StartFrameModels are video models that animate a given first frame.
	// Model ids ending in "-i2v" or containing "image-to-video" are included
	// without being listed.
	StartFrameModels map[string]bool
	// ReferenceLimits caps reference_images per model.
	ReferenceLimits       map[string]int
	DefaultReferenceLimit int
}

func DefaultRequirements() *Requirements {
	return &Requirements{
		StartFrameModels: map[string]bool{
			"kling-v2.1-standard":  true,
			"wan-2.2-i2v-fast":     true,
			"minimax-video-01-i2v": true,
		},
		ReferenceLimits: map[string]int{
			"flux-kontext-pro":  1,
			"runway-gen4-image": 3,
		},
		DefaultReferenceLimit: 4,
	}
}

func (r *Requirements) NeedsStartFrame(model string) bool {
	m := strings.ToLower(model)
	return r.StartFrameModels[model] || strings.HasSuffix(m, "-i2v") || strings.Contains(m, "image-to-video")
}

func (r *Requirements) referenceLimit(model string) int {
	if n, ok := r.ReferenceLimits[model]; ok {
		return n
	}
	return r.DefaultReferenceLimit
}

// Check validates resolved inputs for tool and model. It returns a
// *ValidationError or nil. Unknown tools carry no extra rules.
func (r *Requirements) Check(tool, model string, inputs map[string]any) error {
	return r.check(tool, model, inputs, true)
}

// CheckPlanned applies the same rules to unresolved step inputs, before any
// step has run. A step reference counts as present. Reference image limits are
// skipped when reference_images holds a reference, since its size is only
// known after resolution.
func (r *Requirements) CheckPlanned(tool, model string, inputs map[string]models.Value) error {
	view := make(map[string]any, len(inputs))
	for k, v := range inputs {
		view[k] = plannedValue(v)
		if listFields[k] {
			view[k] = asList(view[k])
		}
	}
	limits := true
	if v, ok := inputs["reference_images"]; ok && len(v.References()) > 0 {
		limits = false
	}
	return r.check(tool, model, view, limits)
}

// pendingRef stands in for a step output that does not exist yet.
type pendingRef struct{}

func plannedValue(v models.Value) any {
	switch {
	case v.Ref != nil:
		return pendingRef{}
	case v.List != nil:
		items := make([]any, 0, len(v.List))
		for _, item := range v.List {
			items = append(items, plannedValue(item))
		}
		return items
	}
	return v.Literal
}

func (r *Requirements) check(tool, model string, inputs map[string]any, limits bool) error {
	var problems []string
	need := func(keys ...string) {
		for _, k := range keys {
			if !present(inputs[k]) {
				problems = append(problems, fmt.Sprintf("%s requires %s", tool, k))
			}
		}
	}
	needOne := func(keys ...string) {
		for _, k := range keys {
			if present(inputs[k]) {
				return
			}
		}
		problems = append(problems, fmt.Sprintf("%s requires one of %s", tool, strings.Join(keys, ", ")))
	}
	refs := func() {
		if !limits {
			return
		}
		n := count(inputs["reference_images"])
		if limit := r.referenceLimit(model); limit > 0 && n > limit {
			problems = append(problems, fmt.Sprintf("model %s accepts at most %d reference images, got %d", model, limit, n))
		}
	}

	switch tool {
	case "image":
		need("prompt")
		refs()
	case "video":
		if r.NeedsStartFrame(model) {
			if !present(inputs["start_image"]) {
				problems = append(problems, fmt.Sprintf("model %s requires start_image", model))
			}
		} else {
			needOne("prompt", "start_image")
		}
		refs()
	case "lipsync":
		needOne("video", "image")
		need("audio")
	case "tts":
		need("text")
	case "transcription":
		need("audio")
	case "enhance":
		needOne("image", "video")
	case "background-remove":
		need("image")
	case "document":
		need("source")
	case "prompt":
		need("prompt")
	}
	if len(problems) > 0 {
		return &ValidationError{Tool: tool, Problems: problems}
	}
	return nil
}

func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case []any:
		return len(t) > 0
	}
	return true
}

func count(v any) int {
	switch t := v.(type) {
	case nil:
		return 0
	case []any:
		return len(t)
	case string:
		if strings.TrimSpace(t) == "" {
			return 0
		}
		return 1
	}
	return 1
}
