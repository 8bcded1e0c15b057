package stepconfig

import (
	"context"
	"fmt"

	"github.com/fleetops/caseflow/model"
)

// Store answers configuration questions: what step comes first for a case
// type, what roles may act on a step, what SLA applies at a given escalation
// level. Definitions are seeded at setup and rarely change; the store is
// read-only from the engine's point of view.
type Store interface {
	// CaseTypes returns every configured case type.
	CaseTypes(ctx context.Context) ([]model.CaseType, error)

	// CaseTypeByPrefix resolves a case type by its case-number prefix.
	CaseTypeByPrefix(ctx context.Context, prefix string) (model.CaseType, error)

	// CaseTypeByID resolves a case type by ID.
	CaseTypeByID(ctx context.Context, id string) (model.CaseType, error)

	// FirstStep returns the entry-point step config for a case type. A case
	// type without a configured entry point yields a NotFound error.
	FirstStep(ctx context.Context, caseTypeID string) (model.CaseStepConfig, error)

	// ByStepID resolves a step config by its external step token.
	ByStepID(ctx context.Context, stepID string) (model.CaseStepConfig, error)

	// ByID resolves a step config by its internal ID.
	ByID(ctx context.Context, id string) (model.CaseStepConfig, error)

	// Paths returns the JSON-schema file references describing a step
	// config's input payload. Empty means the step takes no structured
	// payload.
	Paths(ctx context.Context, stepConfigID string) ([]string, error)

	// StepsForType returns the case steps of a type ordered by weight.
	StepsForType(ctx context.Context, caseTypeID string) ([]model.CaseStep, error)

	// ConfigsForType returns every step config belonging to a case type.
	ConfigsForType(ctx context.Context, caseTypeID string) ([]model.CaseStepConfig, error)

	// SLAByStep returns the active SLA for a step config at the given
	// escalation level, or NotFound.
	SLAByStep(ctx context.Context, stepConfigID string, escalationLevel int) (model.SLA, error)

	// SLAByID resolves an SLA by ID.
	SLAByID(ctx context.Context, id string) (model.SLA, error)

	// ActiveSLAs returns every active SLA definition.
	ActiveSLAs(ctx context.Context) ([]model.SLA, error)
}

// HasRequiredRole reports whether the user's role set intersects the step's
// authorized-role set. A step with zero configured roles is open to no one
// through this check; callers that follow the configuration-is-optional
// convention skip the check entirely when the step has no roles.
func HasRequiredRole(rc *model.RequestContext, cfg model.CaseStepConfig) bool {
	if rc == nil {
		return false
	}
	return rc.HasAnyRole(cfg.Roles)
}

// GroupedSteps returns a case type's steps ordered by weight, each with its
// child step configs. Used to render the full step list of a case type.
func GroupedSteps(ctx context.Context, s Store, caseTypeID string) ([]model.StepGroup, error) {
	steps, err := s.StepsForType(ctx, caseTypeID)
	if err != nil {
		return nil, err
	}
	configs, err := s.ConfigsForType(ctx, caseTypeID)
	if err != nil {
		return nil, err
	}

	byStep := make(map[string][]model.CaseStepConfig, len(steps))
	for _, cfg := range configs {
		byStep[cfg.CaseStepID] = append(byStep[cfg.CaseStepID], cfg)
	}

	groups := make([]model.StepGroup, 0, len(steps))
	for _, st := range steps {
		groups = append(groups, model.StepGroup{Step: st, Configs: byStep[st.ID]})
	}
	return groups, nil
}

// ChainFrom walks the next-step wiring starting at the given step config and
// returns the configs in traversal order, the start included. A cycle in the
// wiring is a configuration bug and returns an error rather than looping.
func ChainFrom(ctx context.Context, s Store, start model.CaseStepConfig) ([]model.CaseStepConfig, error) {
	chain := []model.CaseStepConfig{start}
	seen := map[string]bool{start.StepID: true}

	cur := start
	for cur.NextStepID != "" {
		next, err := s.ByStepID(ctx, cur.NextStepID)
		if err != nil {
			return nil, err
		}
		if seen[next.StepID] {
			return nil, fmt.Errorf("stepconfig: circular next-step wiring at step %q", next.StepID)
		}
		seen[next.StepID] = true
		chain = append(chain, next)
		cur = next
	}
	return chain, nil
}
