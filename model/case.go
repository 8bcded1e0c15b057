package model

import "time"

// Case status names. The status table is seed data, but the transition logic
// assumes these three semantic states exist.
const (
	CaseStatusOpen       = "Open"
	CaseStatusInProgress = "In Progress"
	CaseStatusClosed     = "Closed"
)

// CaseType is a configured workflow family. Its prefix seeds the
// human-readable case number.
type CaseType struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Prefix string `json:"prefix" yaml:"prefix"`
}

// CaseStep is a named stage within a case type. Weight determines the total
// order of steps within the type.
type CaseStep struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	CaseTypeID string `json:"case_type_id" yaml:"case_type_id"`
	Weight     int    `json:"weight" yaml:"weight"`
}

// CaseStepConfig is the addressable unit of a step instance. StepID is the
// external token the registry and the router resolve behavior by; it is
// globally unique.
type CaseStepConfig struct {
	ID                string   `json:"id" yaml:"id"`
	StepID            string   `json:"step_id" yaml:"step_id"`
	StepName          string   `json:"step_name" yaml:"step_name"`
	CaseStepID        string   `json:"case_step_id" yaml:"case_step_id"`
	CaseTypeID        string   `json:"case_type_id" yaml:"case_type_id"`
	CurrentAssigneeID string   `json:"current_assignee_id,omitempty" yaml:"current_assignee_id"`
	NextAssigneeID    string   `json:"next_assignee_id,omitempty" yaml:"next_assignee_id"`
	NextStepID        string   `json:"next_step_id,omitempty" yaml:"next_step_id"`
	Roles             []string `json:"roles,omitempty" yaml:"roles"`
	// Paths holds JSON-schema file references for the step's input payload.
	// An empty list means the step accepts no structured payload.
	Paths []string `json:"paths,omitempty" yaml:"paths"`
}

// CaseTypeFirstStep maps a case type to its entry-point step config. A nil
// FirstStepID means the type exists but has no configured entry point yet.
type CaseTypeFirstStep struct {
	ID          string `json:"id" yaml:"id"`
	CaseTypeID  string `json:"case_type_id" yaml:"case_type_id"`
	FirstStepID string `json:"first_step_id,omitempty" yaml:"first_step_id"`
}

// Case is one history row of a workflow instance. A case's full lifetime is
// the ordered sequence of rows sharing the same CaseNo; every transition
// appends a new row rather than mutating the previous one.
type Case struct {
	ID               string    `json:"id"`
	CaseNo           string    `json:"case_no"`
	CaseTypeID       string    `json:"case_type_id"`
	CaseStepConfigID string    `json:"case_step_config_id,omitempty"`
	Status           string    `json:"status"`
	SLAID            string    `json:"sla_id,omitempty"`
	UserID           string    `json:"user_id,omitempty"`
	RoleID           string    `json:"role_id,omitempty"`
	CreatedBy        string    `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
}

// CaseSnapshot is the rendered view of one case history row, used by history
// and list queries.
type CaseSnapshot struct {
	CaseNo    string    `json:"case_no"`
	CaseType  string    `json:"case_type"`
	StepID    string    `json:"step_id,omitempty"`
	StepName  string    `json:"step_name,omitempty"`
	Status    string    `json:"status"`
	UserID    string    `json:"user_id,omitempty"`
	RoleID    string    `json:"role_id,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// CaseReassignment records a manual reassignment of a case row to a different
// user or role, capturing assignment state before and after.
type CaseReassignment struct {
	ID             string    `json:"id"`
	CaseID         string    `json:"case_id"`
	CaseNo         string    `json:"case_no"`
	StepConfigID   string    `json:"step_config_id,omitempty"`
	PreviousUserID string    `json:"previous_user_id,omitempty"`
	PreviousRoleID string    `json:"previous_role_id,omitempty"`
	NewUserID      string    `json:"new_user_id,omitempty"`
	NewRoleID      string    `json:"new_role_id,omitempty"`
	AssignedBy     string    `json:"assigned_by"`
	AssignedAt     time.Time `json:"assigned_at"`
}

// MoveResult is the outcome of a move transition. Stopped means the current
// step has no onward wiring and the caller should close the case; it is a
// control-flow signal, never an error.
type MoveResult struct {
	Stopped bool          `json:"stopped"`
	Case    *Case         `json:"case,omitempty"`
	Step    *CaseStepConfig `json:"step,omitempty"`
}

// StepGroup is one ordered group of step configs sharing a parent CaseStep,
// used to render the full step list of a case type.
type StepGroup struct {
	Step    CaseStep         `json:"step"`
	Configs []CaseStepConfig `json:"configs"`
}

// CaseStepView annotates one step config with its state relative to a
// particular case.
type CaseStepView struct {
	Config             CaseStepConfig `json:"config"`
	IsCurrentStep      bool           `json:"is_current_step"`
	HasAlreadyBeenUsed bool           `json:"has_already_been_used"`
	DueDate            *time.Time     `json:"due_date,omitempty"`
	TimeLeft           string         `json:"time_left,omitempty"`
	Data               map[string]any `json:"data,omitempty"`
}

// WorkbasketItem is one open or in-progress case currently assigned to a user,
// directly or through a role.
type WorkbasketItem struct {
	CaseNo     string     `json:"case_no"`
	CaseType   string     `json:"case_type"`
	StepID     string     `json:"step_id,omitempty"`
	StepName   string     `json:"step_name,omitempty"`
	Status     string     `json:"status"`
	CreatedBy  string     `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	TargetDate *time.Time `json:"target_date,omitempty"`
	TimeLeft   string     `json:"time_left,omitempty"`
}

// WorkbasketPage is one page of workbasket items.
type WorkbasketPage struct {
	Items      []WorkbasketItem `json:"items"`
	Page       int              `json:"page"`
	PerPage    int              `json:"per_page"`
	TotalItems int              `json:"total_items"`
}
