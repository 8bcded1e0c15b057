package stepconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleYAML = `
case_types:
  - id: ct-drv
    name: Driver Registration
    prefix: DRV
steps:
  - id: cs-intake
    name: Intake
    case_type_id: ct-drv
    weight: 1
configs:
  - id: cfg-100
    step_id: "100"
    step_name: Register new driver
    case_step_id: cs-intake
    case_type_id: ct-drv
    roles:
      - registration-officer
first_steps:
  - id: fs-drv
    case_type_id: ct-drv
    first_step_id: cfg-100
slas:
  - id: sla-100-1
    name: Intake SLA
    case_step_config_id: cfg-100
    time_limit_minutes: 60
    escalation_level: 1
    role_id: registration-officer
    is_active: true
`

func writeTempYAML(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoader_LoadFile(t *testing.T) {
	path := writeTempYAML(t, "driver.yaml", sampleYAML)

	defs, err := NewLoader().LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(defs.CaseTypes) != 1 || defs.CaseTypes[0].Prefix != "DRV" {
		t.Errorf("CaseTypes = %+v, want single DRV type", defs.CaseTypes)
	}
	if len(defs.Configs) != 1 || defs.Configs[0].StepID != "100" {
		t.Errorf("Configs = %+v, want single config with step 100", defs.Configs)
	}
	if len(defs.Configs[0].Roles) != 1 || defs.Configs[0].Roles[0] != "registration-officer" {
		t.Errorf("Configs[0].Roles = %v, want [registration-officer]", defs.Configs[0].Roles)
	}
	if err := defs.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoader_LoadFile_invalid_yaml(t *testing.T) {
	path := writeTempYAML(t, "broken.yaml", "case_types: [unclosed")
	if _, err := NewLoader().LoadFile(path); err == nil {
		t.Fatal("LoadFile() on invalid YAML error = nil, want error")
	}
}

func TestLoader_LoadAll_merges_and_skips_non_yaml(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "driver.yaml"), []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o600); err != nil {
		t.Fatalf("write txt: %v", err)
	}

	defs, err := NewLoader().LoadAll([]string{dir})
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(defs.CaseTypes) != 1 {
		t.Errorf("CaseTypes length = %d, want 1", len(defs.CaseTypes))
	}
}

func TestDefinitions_Validate_errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Definitions)
		wantMsg string
	}{
		{
			name: "duplicate step token",
			mutate: func(d *Definitions) {
				cfg := d.Configs[0]
				cfg.ID = "cfg-dup"
				d.Configs = append(d.Configs, cfg)
			},
			wantMsg: "duplicate step token",
		},
		{
			name: "unknown next step",
			mutate: func(d *Definitions) {
				d.Configs[0].NextStepID = "999"
			},
			wantMsg: "next_step_id",
		},
		{
			name: "unknown case type on config",
			mutate: func(d *Definitions) {
				d.Configs[0].CaseTypeID = "ct-ghost"
			},
			wantMsg: "unknown case type",
		},
		{
			name: "first step pointing at unknown config",
			mutate: func(d *Definitions) {
				d.FirstSteps[0].FirstStepID = "cfg-ghost"
			},
			wantMsg: "unknown step config",
		},
		{
			name: "non-positive SLA time limit",
			mutate: func(d *Definitions) {
				d.SLAs[0].TimeLimitMinutes = 0
			},
			wantMsg: "time_limit_minutes",
		},
		{
			name: "duplicate active SLA level",
			mutate: func(d *Definitions) {
				sla := d.SLAs[0]
				sla.ID = "sla-dup"
				d.SLAs = append(d.SLAs, sla)
			},
			wantMsg: "duplicate active SLA",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defs := driverDefs()
			tt.mutate(&defs)
			err := defs.Validate()
			if err == nil {
				t.Fatal("Validate() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestDefinitions_Validate_ok(t *testing.T) {
	defs := driverDefs()
	if err := defs.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}
