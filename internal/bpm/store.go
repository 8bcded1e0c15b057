// Package bpm implements the case state machine: creation, role-gated step
// processing, move transitions, closure, reassignment, and case queries.
package bpm

import (
	"context"
	"time"

	"github.com/fleetops/caseflow/model"
)

// Filters narrows a case search. Zero values are ignored.
type Filters struct {
	CaseNo           string
	CaseTypeID       string
	CaseStepConfigID string
	Statuses         []string
	// LatestOnly collapses the result to the latest history row per case
	// number before status filtering.
	LatestOnly bool
	// SortDesc orders newest first.
	SortDesc bool
	Limit    int
	Offset   int
}

// CaseStore persists case history rows. Every transition appends a new row;
// rows are never updated or deleted.
type CaseStore interface {
	// Append writes a new history row unconditionally. Used for creation,
	// where no prior row exists to guard against.
	Append(ctx context.Context, c model.Case) error

	// AppendAfter writes a new history row only if prevRowID is still the
	// latest row for the case number. A concurrent transition that already
	// appended makes the precondition fail with a Conflict error, so no two
	// movers can both advance past the same row.
	AppendAfter(ctx context.Context, c model.Case, prevRowID string) error

	// LatestByCaseNo returns the newest history row for a case number.
	LatestByCaseNo(ctx context.Context, caseNo string) (model.Case, error)

	// HistoryByCaseNo returns every history row for a case number, newest
	// first.
	HistoryByCaseNo(ctx context.Context, caseNo string) ([]model.Case, error)

	// Find returns history rows matching the filters.
	Find(ctx context.Context, f Filters) ([]model.Case, error)

	// LatestOpenCases returns the latest row of every case whose latest
	// status is Open or In Progress.
	LatestOpenCases(ctx context.Context) ([]model.Case, error)

	// NextCaseNumber allocates the next human-readable case number for a
	// prefix: the highest existing sequence plus one, zero-padded to six
	// digits.
	NextCaseNumber(ctx context.Context, prefix string) (string, error)

	// RecordReassignment stores a reassignment record.
	RecordReassignment(ctx context.Context, r model.CaseReassignment) error

	// ReassignmentsByCaseNo returns the reassignment records for a case
	// number, newest first.
	ReassignmentsByCaseNo(ctx context.Context, caseNo string) ([]model.CaseReassignment, error)
}

// matchesDateRange reports whether t falls inside the optional [from, to]
// bounds.
func matchesDateRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && t.After(*to) {
		return false
	}
	return true
}
