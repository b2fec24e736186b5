package engine

import (
	"sort"
	"strings"

	"github.com/example/mediaflow/internal/models"
)

// listFields take a sequence. A caller-supplied delimited string for one of
// these is split into items.
var listFields = map[string]bool{
	"reference_images": true,
	"image_urls":       true,
	"audio_urls":       true,
}

// Resolve substitutes step references in inputs with the concrete URL or text
// recorded in outputs. It fails with *UnresolvedReferenceError on the first
// reference, in key order, whose step has no usable output.
func Resolve(inputs map[string]models.Value, outputs map[string]models.Output) (map[string]any, error) {
	out := make(map[string]any, len(inputs))
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := resolveValue(inputs[k], outputs)
		if err != nil {
			return nil, err
		}
		if listFields[k] {
			v = asList(v)
		}
		out[k] = v
	}
	return out, nil
}

func resolveValue(v models.Value, outputs map[string]models.Output) (any, error) {
	switch {
	case v.Ref != nil:
		o, ok := outputs[v.Ref.StepID]
		if !ok {
			return nil, &UnresolvedReferenceError{StepID: v.Ref.StepID}
		}
		var s string
		switch v.Ref.Field {
		case models.FieldURL:
			s = o.URL
		case models.FieldText:
			s = o.Text
		default:
			s = o.URL
			if s == "" {
				s = o.Text
			}
		}
		if s == "" {
			return nil, &UnresolvedReferenceError{StepID: v.Ref.StepID}
		}
		return s, nil
	case v.List != nil:
		items := make([]any, 0, len(v.List))
		for _, item := range v.List {
			r, err := resolveValue(item, outputs)
			if err != nil {
				return nil, err
			}
			items = append(items, r)
		}
		return items, nil
	}
	return v.Literal, nil
}

// asList normalises a list field: delimited strings are split, entries trimmed
// and empties dropped.
func asList(v any) any {
	switch t := v.(type) {
	case nil:
		return []any{}
	case string:
		return stringsToAny(splitList(t))
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				if item != nil {
					out = append(out, item)
				}
				continue
			}
			out = append(out, stringsToAny(splitList(s))...)
		}
		return out
	}
	return v
}

// splitList splits on newlines, then on commas except inside data: URIs, whose
// payload separator is a comma.
func splitList(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(line), "data:") {
			out = append(out, line)
			continue
		}
		for _, part := range strings.Split(line, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
