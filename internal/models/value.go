package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const stepOutputKind = "stepOutput"

// OutputField selects which part of an upstream Output a reference reads.
// The zero value reads the URL when present, otherwise the text.
type OutputField string

const (
	FieldAuto OutputField = ""
	FieldURL  OutputField = "url"
	FieldText OutputField = "text"
)

// StepRef points at the output of an earlier step.
type StepRef struct {
	StepID string      `json:"stepId"`
	Field  OutputField `json:"field,omitempty"`
}

// Value is one step input: a literal, a list of values, or a reference to
// another step's output. References are explicit values, never string templates.
type Value struct {
	Literal any
	Ref     *StepRef
	List    []Value
}

func Lit(v any) Value { return Value{Literal: v} }

func Ref(stepID string) Value { return Value{Ref: &StepRef{StepID: stepID}} }

func RefTo(stepID string, field OutputField) Value {
	return Value{Ref: &StepRef{StepID: stepID, Field: field}}
}

func ListOf(vs ...Value) Value {
	if vs == nil {
		vs = []Value{}
	}
	return Value{List: vs}
}

func (v Value) IsRef() bool  { return v.Ref != nil }
func (v Value) IsList() bool { return v.List != nil }

// References returns the ids of every step this value reads, in order.
func (v Value) References() []string {
	switch {
	case v.Ref != nil:
		return []string{v.Ref.StepID}
	case v.List != nil:
		var out []string
		for _, item := range v.List {
			out = append(out, item.References()...)
		}
		return out
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case v.Ref != nil:
		return json.Marshal(struct {
			Kind   string      `json:"kind"`
			StepID string      `json:"stepId"`
			Field  OutputField `json:"field,omitempty"`
		}{stepOutputKind, v.Ref.StepID, v.Ref.Field})
	case v.List != nil:
		return json.Marshal(v.List)
	}
	return json.Marshal(v.Literal)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*v = Value{}
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case '[':
		var items []Value
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		if items == nil {
			items = []Value{}
		}
		v.List = items
		return nil
	case '{':
		var probe struct {
			Kind   string      `json:"kind"`
			StepID string      `json:"stepId"`
			Field  OutputField `json:"field"`
		}
		if err := json.Unmarshal(b, &probe); err == nil && probe.Kind == stepOutputKind {
			if probe.StepID == "" {
				return fmt.Errorf("stepOutput reference without stepId")
			}
			switch probe.Field {
			case FieldAuto, FieldURL, FieldText:
			default:
				return fmt.Errorf("stepOutput reference to %q: unknown field %q", probe.StepID, probe.Field)
			}
			v.Ref = &StepRef{StepID: probe.StepID, Field: probe.Field}
			return nil
		}
	}
	return json.Unmarshal(b, &v.Literal)
}
