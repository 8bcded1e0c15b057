// Package stepconfig holds the static workflow configuration: case types,
// weight-ordered steps, per-step role authorization, next-step wiring, and
// SLA definitions.
package stepconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fleetops/caseflow/model"
)

// Definitions is the on-disk seed format for the in-memory store. The
// postgres driver reads the same data from seeded tables instead.
type Definitions struct {
	CaseTypes  []model.CaseType          `yaml:"case_types"`
	Steps      []model.CaseStep          `yaml:"steps"`
	Configs    []model.CaseStepConfig    `yaml:"configs"`
	FirstSteps []model.CaseTypeFirstStep `yaml:"first_steps"`
	SLAs       []model.SLA               `yaml:"slas"`
}

// Loader parses YAML definition files into Definitions.
type Loader struct{}

// NewLoader creates a new Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadFile loads and parses a single YAML definition file.
func (l *Loader) LoadFile(path string) (Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definitions{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var defs Definitions
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return Definitions{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return defs, nil
}

// LoadAll recursively scans directories for *.yaml and *.yml files and merges
// them into one Definitions set.
func (l *Loader) LoadAll(directories []string) (Definitions, error) {
	var merged Definitions

	for _, dir := range directories {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}

			defs, err := l.LoadFile(path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			merged.CaseTypes = append(merged.CaseTypes, defs.CaseTypes...)
			merged.Steps = append(merged.Steps, defs.Steps...)
			merged.Configs = append(merged.Configs, defs.Configs...)
			merged.FirstSteps = append(merged.FirstSteps, defs.FirstSteps...)
			merged.SLAs = append(merged.SLAs, defs.SLAs...)
			return nil
		})
		if err != nil {
			return Definitions{}, fmt.Errorf("scanning directory %s: %w", dir, err)
		}
	}

	return merged, nil
}

// Validate checks the definitions structurally and referentially. All errors
// are collected so a broken seed file reports every problem at once.
func (d Definitions) Validate() error {
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	typeIDs := make(map[string]bool, len(d.CaseTypes))
	prefixes := make(map[string]bool, len(d.CaseTypes))
	for i, ct := range d.CaseTypes {
		if ct.ID == "" || ct.Name == "" || ct.Prefix == "" {
			fail("case_types[%d]: id, name and prefix are required", i)
			continue
		}
		if typeIDs[ct.ID] {
			fail("case_types[%d]: duplicate id %q", i, ct.ID)
		}
		if prefixes[ct.Prefix] {
			fail("case_types[%d]: duplicate prefix %q", i, ct.Prefix)
		}
		typeIDs[ct.ID] = true
		prefixes[ct.Prefix] = true
	}

	stepIDs := make(map[string]bool, len(d.Steps))
	for i, st := range d.Steps {
		if st.ID == "" || st.Name == "" {
			fail("steps[%d]: id and name are required", i)
			continue
		}
		if stepIDs[st.ID] {
			fail("steps[%d]: duplicate id %q", i, st.ID)
		}
		stepIDs[st.ID] = true
		if !typeIDs[st.CaseTypeID] {
			fail("steps[%d]: unknown case type %q", i, st.CaseTypeID)
		}
	}

	configIDs := make(map[string]bool, len(d.Configs))
	tokens := make(map[string]bool, len(d.Configs))
	for i, cfg := range d.Configs {
		if cfg.ID == "" || cfg.StepID == "" || cfg.StepName == "" {
			fail("configs[%d]: id, step_id and step_name are required", i)
			continue
		}
		if configIDs[cfg.ID] {
			fail("configs[%d]: duplicate id %q", i, cfg.ID)
		}
		if tokens[cfg.StepID] {
			fail("configs[%d]: duplicate step token %q", i, cfg.StepID)
		}
		configIDs[cfg.ID] = true
		tokens[cfg.StepID] = true
		if !stepIDs[cfg.CaseStepID] {
			fail("configs[%d]: unknown case step %q", i, cfg.CaseStepID)
		}
		if !typeIDs[cfg.CaseTypeID] {
			fail("configs[%d]: unknown case type %q", i, cfg.CaseTypeID)
		}
	}
	for i, cfg := range d.Configs {
		if cfg.NextStepID != "" && !tokens[cfg.NextStepID] {
			fail("configs[%d]: next_step_id %q does not match any step token", i, cfg.NextStepID)
		}
	}

	firstSeen := make(map[string]bool, len(d.FirstSteps))
	for i, fs := range d.FirstSteps {
		if !typeIDs[fs.CaseTypeID] {
			fail("first_steps[%d]: unknown case type %q", i, fs.CaseTypeID)
		}
		if firstSeen[fs.CaseTypeID] {
			fail("first_steps[%d]: case type %q already has a first step", i, fs.CaseTypeID)
		}
		firstSeen[fs.CaseTypeID] = true
		if fs.FirstStepID != "" && !configIDs[fs.FirstStepID] {
			fail("first_steps[%d]: unknown step config %q", i, fs.FirstStepID)
		}
	}

	slaIDs := make(map[string]bool, len(d.SLAs))
	slaLevels := make(map[string]bool, len(d.SLAs))
	for i, sla := range d.SLAs {
		if sla.ID == "" {
			fail("slas[%d]: id is required", i)
			continue
		}
		if slaIDs[sla.ID] {
			fail("slas[%d]: duplicate id %q", i, sla.ID)
		}
		slaIDs[sla.ID] = true
		if !configIDs[sla.CaseStepConfigID] {
			fail("slas[%d]: unknown step config %q", i, sla.CaseStepConfigID)
		}
		if sla.TimeLimitMinutes <= 0 {
			fail("slas[%d]: time_limit_minutes must be positive", i)
		}
		if sla.EscalationLevel < 1 {
			fail("slas[%d]: escalation_level must be at least 1", i)
		}
		if sla.IsActive {
			key := fmt.Sprintf("%s/%d", sla.CaseStepConfigID, sla.EscalationLevel)
			if slaLevels[key] {
				fail("slas[%d]: duplicate active SLA for step config %q level %d",
					i, sla.CaseStepConfigID, sla.EscalationLevel)
			}
			slaLevels[key] = true
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("stepconfig: invalid definitions:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}
