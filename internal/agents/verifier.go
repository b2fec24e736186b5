package agents

import (
	"errors"
	"fmt"

	"github.com/example/mediaflow/internal/engine"
	"github.com/example/mediaflow/internal/models"
)

// Verifier decides whether a plan, with the caller's step configs applied, can
// be accepted for execution.
type Verifier interface {
	Verify(plan *models.Plan, configs map[string]models.StepConfig) error
}

// PlanVerifier runs the structural checks of models.ValidatePlan. When Tools
// is set it rejects steps whose tool has no provider; Tools reports whether a
// tool is available. When Requirements is set each step's effective inputs
// must carry the fields its tool needs, so a bad later step is caught before
// any job is submitted.
type PlanVerifier struct {
	Tools        func(tool string) bool
	Requirements *engine.Requirements
}

func (v *PlanVerifier) Verify(plan *models.Plan, configs map[string]models.StepConfig) error {
	err := models.ValidatePlan(plan)
	var pe *models.PlanError
	if err != nil && !errors.As(err, &pe) {
		return err
	}
	if pe == nil {
		pe = &models.PlanError{}
	}
	if plan != nil {
		for _, s := range plan.Steps {
			if s == nil || s.Tool == "" {
				continue
			}
			if v.Tools != nil && !v.Tools(s.Tool) {
				pe.Problems = append(pe.Problems, fmt.Sprintf("step %q uses tool %q, which has no provider", s.ID, s.Tool))
				continue
			}
			if v.Requirements == nil {
				continue
			}
			cfg := s.Effective(configs)
			var ve *engine.ValidationError
			if err := v.Requirements.CheckPlanned(s.Tool, cfg.Model, cfg.Inputs); errors.As(err, &ve) {
				for _, p := range ve.Problems {
					pe.Problems = append(pe.Problems, fmt.Sprintf("step %q: %s", s.ID, p))
				}
			}
		}
	}
	if len(pe.Problems) > 0 {
		return pe
	}
	return nil
}
