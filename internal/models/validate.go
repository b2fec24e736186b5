package models

import (
	"fmt"
	"sort"
	"strings"
)

// PlanError lists every problem found while accepting a plan.
type PlanError struct {
	Problems []string
}

func (e *PlanError) Error() string {
	return "invalid plan: " + strings.Join(e.Problems, "; ")
}

// ValidatePlan checks a plan at acceptance time: unique ids, a tool per step, and
// every dependency or reference naming a step that appears earlier in the list.
// The executor relies on list order and never re-sorts, so a plan that fails
// here must be rejected rather than reordered.
func ValidatePlan(p *Plan) error {
	if p == nil || len(p.Steps) == 0 {
		return &PlanError{Problems: []string{"plan has no steps"}}
	}
	var problems []string
	seen := make(map[string]int, len(p.Steps))
	all := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		if s != nil {
			all[s.ID] = true
		}
	}
	for i, s := range p.Steps {
		if s == nil {
			problems = append(problems, fmt.Sprintf("step %d is null", i+1))
			continue
		}
		if s.ID == "" {
			problems = append(problems, fmt.Sprintf("step %d has no id", i+1))
			continue
		}
		if _, dup := seen[s.ID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate step id %q", s.ID))
			continue
		}
		if strings.TrimSpace(s.Tool) == "" {
			problems = append(problems, fmt.Sprintf("step %q has no tool", s.ID))
		}
		check := func(what, ref string) {
			switch {
			case ref == s.ID:
				problems = append(problems, fmt.Sprintf("step %q %s itself", s.ID, what))
			case !all[ref]:
				problems = append(problems, fmt.Sprintf("step %q %s unknown step %q", s.ID, what, ref))
			default:
				if _, earlier := seen[ref]; !earlier {
					problems = append(problems, fmt.Sprintf("step %q %s %q which comes later in the plan", s.ID, what, ref))
				}
			}
		}
		for _, dep := range s.Dependencies {
			check("depends on", dep)
		}
		for _, key := range sortedKeys(s.Inputs) {
			for _, ref := range s.Inputs[key].References() {
				check("input "+key+" references", ref)
			}
		}
		seen[s.ID] = i
	}
	if len(problems) > 0 {
		return &PlanError{Problems: problems}
	}
	return nil
}

func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
