package model

import "time"

// Audit trail entry types.
const (
	AuditAutomated = "AUTOMATED"
	AuditManual    = "MANUAL"
)

// AuditEntry is one immutable record in the audit trail. Entries are
// append-only; there is no update or delete path.
type AuditEntry struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	DoneBy      string         `json:"done_by,omitempty"`
	UserRole    string         `json:"user_role,omitempty"`
	CaseID      string         `json:"case_id,omitempty"`
	CaseNo      string         `json:"case_no,omitempty"`
	CaseType    string         `json:"case_type,omitempty"`
	StepName    string         `json:"step_name,omitempty"`
	Description string         `json:"description"`
	Type        string         `json:"type"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
