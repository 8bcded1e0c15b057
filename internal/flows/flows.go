// Package flows holds the flow modules: the per-case-type step handlers that
// the engine resolves through the registry when a step is fetched or
// processed. Each module registers its handlers under the step tokens used by
// the corresponding case type's step configuration.
package flows

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fleetops/caseflow/internal/registry"
	"github.com/fleetops/caseflow/model"
)

// Module is one flow's registration hook.
type Module interface {
	Name() string
	Register(r *registry.Registry) error
}

// Deps carries the shared dependencies flow handlers close over.
type Deps struct {
	Store  *Store
	Logger *zap.Logger
}

// RegisterAll registers every shipped flow module. Called once in main before
// the registry is frozen.
func RegisterAll(r *registry.Registry, deps Deps) error {
	if deps.Store == nil {
		deps.Store = NewStore()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	modules := []Module{
		NewDriverRegistration(deps),
		NewMedallionUpdate(deps),
	}

	for _, m := range modules {
		if err := m.Register(r); err != nil {
			return fmt.Errorf("flows: registering %s: %w", m.Name(), err)
		}
	}
	return nil
}

// validationError builds a single-field VALIDATION_ERROR envelope.
func validationError(field, code, msg string) error {
	return model.NewValidationError([]model.FieldError{{Field: field, Code: code, Message: msg}})
}
