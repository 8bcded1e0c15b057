package model

import "time"

// SLA attaches a time limit and an escalation tier to a step config.
// Successive escalation levels for the same step model escalation tiers;
// at most one active SLA per (step, level) is meaningful.
type SLA struct {
	ID               string `json:"id" yaml:"id"`
	Name             string `json:"name" yaml:"name"`
	CaseStepConfigID string `json:"case_step_config_id" yaml:"case_step_config_id"`
	TimeLimitMinutes int    `json:"time_limit_minutes" yaml:"time_limit_minutes"`
	EscalationLevel  int    `json:"escalation_level" yaml:"escalation_level"`
	RoleID           string `json:"role_id,omitempty" yaml:"role_id"`
	UserID           string `json:"user_id,omitempty" yaml:"user_id"`
	IsActive         bool   `json:"is_active" yaml:"is_active"`
}

// DueInfo is the computed due date for a case row plus a human-readable
// rendering of the time remaining.
type DueInfo struct {
	DueDate  time.Time `json:"due_date"`
	TimeLeft string    `json:"time_left"`
}
