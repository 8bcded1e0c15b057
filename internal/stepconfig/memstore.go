package stepconfig

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fleetops/caseflow/model"
)

// MemStore is an in-memory configuration store used for tests and local
// development. Definitions are loaded once at construction; reads take the
// read lock only because Seed may be called again in tests.
type MemStore struct {
	mu         sync.RWMutex
	caseTypes  map[string]model.CaseType
	byPrefix   map[string]string
	steps      map[string]model.CaseStep
	configs    map[string]model.CaseStepConfig
	byStepID   map[string]string
	firstSteps map[string]string
	slas       map[string]model.SLA
}

// NewMemStore creates an empty in-memory configuration store.
func NewMemStore() *MemStore {
	return &MemStore{
		caseTypes:  make(map[string]model.CaseType),
		byPrefix:   make(map[string]string),
		steps:      make(map[string]model.CaseStep),
		configs:    make(map[string]model.CaseStepConfig),
		byStepID:   make(map[string]string),
		firstSteps: make(map[string]string),
		slas:       make(map[string]model.SLA),
	}
}

// Seed loads a set of definitions into the store, replacing prior contents.
func (s *MemStore) Seed(defs Definitions) error {
	if err := defs.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.caseTypes = make(map[string]model.CaseType, len(defs.CaseTypes))
	s.byPrefix = make(map[string]string, len(defs.CaseTypes))
	for _, ct := range defs.CaseTypes {
		s.caseTypes[ct.ID] = ct
		s.byPrefix[ct.Prefix] = ct.ID
	}

	s.steps = make(map[string]model.CaseStep, len(defs.Steps))
	for _, st := range defs.Steps {
		s.steps[st.ID] = st
	}

	s.configs = make(map[string]model.CaseStepConfig, len(defs.Configs))
	s.byStepID = make(map[string]string, len(defs.Configs))
	for _, cfg := range defs.Configs {
		s.configs[cfg.ID] = cfg
		s.byStepID[cfg.StepID] = cfg.ID
	}

	s.firstSteps = make(map[string]string, len(defs.FirstSteps))
	for _, fs := range defs.FirstSteps {
		if fs.FirstStepID != "" {
			s.firstSteps[fs.CaseTypeID] = fs.FirstStepID
		}
	}

	s.slas = make(map[string]model.SLA, len(defs.SLAs))
	for _, sla := range defs.SLAs {
		s.slas[sla.ID] = sla
	}
	return nil
}

// CaseTypes returns every configured case type.
func (s *MemStore) CaseTypes(ctx context.Context) ([]model.CaseType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	types := make([]model.CaseType, 0, len(s.caseTypes))
	for _, ct := range s.caseTypes {
		types = append(types, ct)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
	return types, nil
}

// CaseTypeByPrefix resolves a case type by its case-number prefix.
func (s *MemStore) CaseTypeByPrefix(ctx context.Context, prefix string) (model.CaseType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPrefix[prefix]
	if !ok {
		return model.CaseType{}, model.NewNotFoundError(
			fmt.Sprintf("case type with prefix %q not found", prefix),
		)
	}
	return s.caseTypes[id], nil
}

// CaseTypeByID resolves a case type by ID.
func (s *MemStore) CaseTypeByID(ctx context.Context, id string) (model.CaseType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ct, ok := s.caseTypes[id]
	if !ok {
		return model.CaseType{}, model.NewNotFoundError(
			fmt.Sprintf("case type %q not found", id),
		)
	}
	return ct, nil
}

// FirstStep returns the entry-point step config for a case type.
func (s *MemStore) FirstStep(ctx context.Context, caseTypeID string) (model.CaseStepConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfgID, ok := s.firstSteps[caseTypeID]
	if !ok {
		return model.CaseStepConfig{}, model.NewNotFoundError(
			fmt.Sprintf("no first step configured for case type %q", caseTypeID),
		)
	}
	return s.configs[cfgID], nil
}

// ByStepID resolves a step config by its external step token.
func (s *MemStore) ByStepID(ctx context.Context, stepID string) (model.CaseStepConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byStepID[stepID]
	if !ok {
		return model.CaseStepConfig{}, model.NewStepConfigMissingError(stepID)
	}
	return s.configs[id], nil
}

// ByID resolves a step config by its internal ID.
func (s *MemStore) ByID(ctx context.Context, id string) (model.CaseStepConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[id]
	if !ok {
		return model.CaseStepConfig{}, model.NewStepConfigMissingError(id)
	}
	return cfg, nil
}

// Paths returns the payload schema references of a step config.
func (s *MemStore) Paths(ctx context.Context, stepConfigID string) ([]string, error) {
	cfg, err := s.ByID(ctx, stepConfigID)
	if err != nil {
		return nil, err
	}
	return cfg.Paths, nil
}

// StepsForType returns the case steps of a type ordered by weight.
func (s *MemStore) StepsForType(ctx context.Context, caseTypeID string) ([]model.CaseStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var steps []model.CaseStep
	for _, st := range s.steps {
		if st.CaseTypeID == caseTypeID {
			steps = append(steps, st)
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Weight < steps[j].Weight })
	return steps, nil
}

// ConfigsForType returns every step config belonging to a case type.
func (s *MemStore) ConfigsForType(ctx context.Context, caseTypeID string) ([]model.CaseStepConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var configs []model.CaseStepConfig
	for _, cfg := range s.configs {
		if cfg.CaseTypeID == caseTypeID {
			configs = append(configs, cfg)
		}
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].StepID < configs[j].StepID })
	return configs, nil
}

// SLAByStep returns the active SLA for a step config at the given escalation
// level.
func (s *MemStore) SLAByStep(ctx context.Context, stepConfigID string, escalationLevel int) (model.SLA, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sla := range s.slas {
		if sla.CaseStepConfigID == stepConfigID && sla.EscalationLevel == escalationLevel && sla.IsActive {
			return sla, nil
		}
	}
	return model.SLA{}, model.NewNotFoundError(
		fmt.Sprintf("no active SLA for step config %q at level %d", stepConfigID, escalationLevel),
	)
}

// SLAByID resolves an SLA by ID.
func (s *MemStore) SLAByID(ctx context.Context, id string) (model.SLA, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sla, ok := s.slas[id]
	if !ok {
		return model.SLA{}, model.NewNotFoundError(fmt.Sprintf("sla %q not found", id))
	}
	return sla, nil
}

// ActiveSLAs returns every active SLA definition.
func (s *MemStore) ActiveSLAs(ctx context.Context) ([]model.SLA, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var slas []model.SLA
	for _, sla := range s.slas {
		if sla.IsActive {
			slas = append(slas, sla)
		}
	}
	sort.Slice(slas, func(i, j int) bool {
		if slas[i].CaseStepConfigID != slas[j].CaseStepConfigID {
			return slas[i].CaseStepConfigID < slas[j].CaseStepConfigID
		}
		return slas[i].EscalationLevel < slas[j].EscalationLevel
	})
	return slas, nil
}
