package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetops/caseflow/model"
)

// PgStore is a PostgreSQL-backed audit store using pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL audit store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Record appends one entry.
func (s *PgStore) Record(ctx context.Context, e model.AuditEntry) error {
	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_trail (
			id, created_at, done_by, user_role, case_id, case_no,
			case_type, step_name, description, entry_type, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.Timestamp, e.DoneBy, e.UserRole, e.CaseID, e.CaseNo,
		e.CaseType, e.StepName, e.Description, e.Type, metaJSON,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

const auditColumns = `
	id, created_at, done_by, user_role, case_id, case_no,
	case_type, step_name, description, entry_type, metadata`

// ByCase returns the entries for a case number, newest first.
func (s *PgStore) ByCase(ctx context.Context, caseNo string, page, perPage int) ([]model.AuditEntry, error) {
	return s.query(ctx, "case_no", caseNo, page, perPage)
}

// ByUser returns the entries performed by a user, newest first.
func (s *PgStore) ByUser(ctx context.Context, userID string, page, perPage int) ([]model.AuditEntry, error) {
	return s.query(ctx, "done_by", userID, page, perPage)
}

// ByRole returns the entries performed under a role, newest first.
func (s *PgStore) ByRole(ctx context.Context, roleID string, page, perPage int) ([]model.AuditEntry, error) {
	return s.query(ctx, "user_role", roleID, page, perPage)
}

func (s *PgStore) query(ctx context.Context, column, value string, page, perPage int) ([]model.AuditEntry, error) {
	page, perPage = clampPage(page, perPage)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT `+auditColumns+`
		FROM audit_trail
		WHERE %s = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, column),
		value, perPage, (page-1)*perPage,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var metaJSON []byte
		if err := rows.Scan(
			&e.ID, &e.Timestamp, &e.DoneBy, &e.UserRole, &e.CaseID, &e.CaseNo,
			&e.CaseType, &e.StepName, &e.Description, &e.Type, &metaJSON,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if metaJSON != nil {
			_ = json.Unmarshal(metaJSON, &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ByMetadata returns the entries carrying the given metadata key/value pair,
// newest first. Used to trace activity against a bound entity.
func (s *PgStore) ByMetadata(ctx context.Context, key, value string, page, perPage int) ([]model.AuditEntry, error) {
	page, perPage = clampPage(page, perPage)

	rows, err := s.pool.Query(ctx, `
		SELECT `+auditColumns+`
		FROM audit_trail
		WHERE metadata ->> $1 = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		key, value, perPage, (page-1)*perPage,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var metaJSON []byte
		if err := rows.Scan(
			&e.ID, &e.Timestamp, &e.DoneBy, &e.UserRole, &e.CaseID, &e.CaseNo,
			&e.CaseType, &e.StepName, &e.Description, &e.Type, &metaJSON,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if metaJSON != nil {
			_ = json.Unmarshal(metaJSON, &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// HasEntryWithMetadata reports whether any entry for the case carries the
// given metadata key/value pair.
func (s *PgStore) HasEntryWithMetadata(ctx context.Context, caseNo, key, value string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM audit_trail
			WHERE case_no = $1 AND metadata ->> $2 = $3
		)`,
		caseNo, key, value,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query audit metadata: %w", err)
	}
	return exists, nil
}
