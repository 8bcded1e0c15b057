// Package audit records the immutable trail of everything that happens to a
// case. Entries are append-only; the store exposes no update or delete path.
package audit

import (
	"context"

	"github.com/fleetops/caseflow/model"
)

// Store persists and queries audit entries.
type Store interface {
	// Record appends one entry.
	Record(ctx context.Context, e model.AuditEntry) error

	// ByCase returns the entries for a case number, newest first.
	ByCase(ctx context.Context, caseNo string, page, perPage int) ([]model.AuditEntry, error)

	// ByUser returns the entries performed by a user, newest first.
	ByUser(ctx context.Context, userID string, page, perPage int) ([]model.AuditEntry, error)

	// ByRole returns the entries performed under a role, newest first.
	ByRole(ctx context.Context, roleID string, page, perPage int) ([]model.AuditEntry, error)

	// ByMetadata returns the entries carrying the given metadata key/value
	// pair, newest first.
	ByMetadata(ctx context.Context, key, value string, page, perPage int) ([]model.AuditEntry, error)

	// HasEntryWithMetadata reports whether any entry for the case carries
	// the given metadata key/value pair.
	HasEntryWithMetadata(ctx context.Context, caseNo, key, value string) (bool, error)
}

// clampPage normalizes pagination arguments: pages start at 1 and perPage
// defaults to 50.
func clampPage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}
	return page, perPage
}
