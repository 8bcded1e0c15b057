package bpm

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetops/caseflow/model"
)

// PgCaseStore is a PostgreSQL-backed CaseStore using pgx/v5. History ordering
// relies on the seq bigserial column so two rows written in the same
// microsecond still have a total order.
type PgCaseStore struct {
	pool *pgxpool.Pool
}

// NewPgCaseStore creates a new PostgreSQL case store.
func NewPgCaseStore(pool *pgxpool.Pool) *PgCaseStore {
	return &PgCaseStore{pool: pool}
}

const caseColumns = `
	id, case_no, case_type_id, COALESCE(case_step_config_id, ''), status,
	COALESCE(sla_id, ''), COALESCE(user_id, ''), COALESCE(role_id, ''),
	created_by, created_at`

func scanCase(row pgx.Row) (model.Case, error) {
	var c model.Case
	err := row.Scan(
		&c.ID, &c.CaseNo, &c.CaseTypeID, &c.CaseStepConfigID, &c.Status,
		&c.SLAID, &c.UserID, &c.RoleID, &c.CreatedBy, &c.CreatedAt,
	)
	return c, err
}

// Append writes a new history row unconditionally.
func (s *PgCaseStore) Append(ctx context.Context, c model.Case) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cases (
			id, case_no, case_type_id, case_step_config_id, status,
			sla_id, user_id, role_id, created_by, created_at
		) VALUES (
			$1, $2, $3, NULLIF($4, ''), $5,
			NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9, $10
		)`,
		c.ID, c.CaseNo, c.CaseTypeID, c.CaseStepConfigID, c.Status,
		c.SLAID, c.UserID, c.RoleID, c.CreatedBy, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert case row: %w", err)
	}
	return nil
}

// AppendAfter writes a new history row only if prevRowID is still the latest
// row for the case number. The latest row is locked FOR UPDATE inside the
// transaction, so a concurrent mover blocks until commit and then sees the
// new head; under READ COMMITTED a plain guarded insert would let both
// movers through.
func (s *PgCaseStore) AppendAfter(ctx context.Context, c model.Case, prevRowID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin case append: %w", err)
	}
	defer tx.Rollback(ctx)

	var latestID string
	err = tx.QueryRow(ctx, `
		SELECT id FROM cases
		WHERE case_no = $1
		ORDER BY seq DESC
		LIMIT 1
		FOR UPDATE`,
		c.CaseNo,
	).Scan(&latestID)
	if err == pgx.ErrNoRows {
		return model.NewCaseNotFoundError(c.CaseNo)
	}
	if err != nil {
		return fmt.Errorf("lock latest case row: %w", err)
	}
	if latestID != prevRowID {
		return model.NewConflictError(
			fmt.Sprintf("case %q has already advanced past row %q", c.CaseNo, prevRowID),
		)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO cases (
			id, case_no, case_type_id, case_step_config_id, status,
			sla_id, user_id, role_id, created_by, created_at
		) VALUES (
			$1, $2, $3, NULLIF($4, ''), $5,
			NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9, $10
		)`,
		c.ID, c.CaseNo, c.CaseTypeID, c.CaseStepConfigID, c.Status,
		c.SLAID, c.UserID, c.RoleID, c.CreatedBy, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert case row: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit case append: %w", err)
	}
	return nil
}

// LatestByCaseNo returns the newest history row for a case number.
func (s *PgCaseStore) LatestByCaseNo(ctx context.Context, caseNo string) (model.Case, error) {
	c, err := scanCase(s.pool.QueryRow(ctx, `
		SELECT `+caseColumns+`
		FROM cases
		WHERE case_no = $1
		ORDER BY seq DESC
		LIMIT 1`,
		caseNo,
	))
	if err == pgx.ErrNoRows {
		return model.Case{}, model.NewCaseNotFoundError(caseNo)
	}
	if err != nil {
		return model.Case{}, fmt.Errorf("query latest case row: %w", err)
	}
	return c, nil
}

// HistoryByCaseNo returns every history row for a case number, newest first.
func (s *PgCaseStore) HistoryByCaseNo(ctx context.Context, caseNo string) ([]model.Case, error) {
	rows, err := s.queryCases(ctx, `
		SELECT `+caseColumns+`
		FROM cases
		WHERE case_no = $1
		ORDER BY seq DESC`,
		caseNo,
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, model.NewCaseNotFoundError(caseNo)
	}
	return rows, nil
}

// Find returns history rows matching the filters.
func (s *PgCaseStore) Find(ctx context.Context, f Filters) ([]model.Case, error) {
	source := "cases"
	if f.LatestOnly {
		source = `(SELECT DISTINCT ON (case_no) *
		           FROM cases ORDER BY case_no, seq DESC) latest`
	}

	query := `SELECT ` + caseColumns + ` FROM ` + source + ` WHERE 1=1`
	var args []any
	argIdx := 1

	add := func(clause string, value any) {
		query += fmt.Sprintf(" AND "+clause, argIdx)
		args = append(args, value)
		argIdx++
	}
	if f.CaseNo != "" {
		add("case_no = $%d", f.CaseNo)
	}
	if f.CaseTypeID != "" {
		add("case_type_id = $%d", f.CaseTypeID)
	}
	if f.CaseStepConfigID != "" {
		add("case_step_config_id = $%d", f.CaseStepConfigID)
	}
	if len(f.Statuses) > 0 {
		add("status = ANY($%d)", f.Statuses)
	}

	if f.SortDesc {
		query += " ORDER BY seq DESC"
	} else {
		query += " ORDER BY seq ASC"
	}
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, f.Limit)
		argIdx++
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, f.Offset)
	}

	return s.queryCases(ctx, query, args...)
}

// LatestOpenCases returns the latest row of every case whose latest status is
// Open or In Progress.
func (s *PgCaseStore) LatestOpenCases(ctx context.Context) ([]model.Case, error) {
	return s.queryCases(ctx, `
		SELECT `+caseColumns+`
		FROM (
			SELECT DISTINCT ON (case_no) *
			FROM cases
			ORDER BY case_no, seq DESC
		) latest
		WHERE status IN ($1, $2)
		ORDER BY created_at ASC`,
		model.CaseStatusOpen, model.CaseStatusInProgress,
	)
}

// NextCaseNumber allocates the next case number for a prefix.
func (s *PgCaseStore) NextCaseNumber(ctx context.Context, prefix string) (string, error) {
	var max int
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(CAST(SUBSTRING(case_no FROM $2) AS INTEGER)), 0)
		FROM cases
		WHERE case_no LIKE $1 || '-%'`,
		prefix, fmt.Sprintf("^%s-(\\d+)$", prefix),
	).Scan(&max)
	if err != nil {
		return "", fmt.Errorf("query max case number: %w", err)
	}
	return fmt.Sprintf("%s-%06d", prefix, max+1), nil
}

// RecordReassignment stores a reassignment record.
func (s *PgCaseStore) RecordReassignment(ctx context.Context, r model.CaseReassignment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO case_reassignments (
			id, case_id, case_no, step_config_id,
			previous_user_id, previous_role_id, new_user_id, new_role_id,
			assigned_by, assigned_at
		) VALUES (
			$1, $2, $3, NULLIF($4, ''),
			NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''),
			$9, $10
		)`,
		r.ID, r.CaseID, r.CaseNo, r.StepConfigID,
		r.PreviousUserID, r.PreviousRoleID, r.NewUserID, r.NewRoleID,
		r.AssignedBy, r.AssignedAt,
	)
	if err != nil {
		return fmt.Errorf("insert case reassignment: %w", err)
	}
	return nil
}

// ReassignmentsByCaseNo returns the reassignment records for a case number,
// newest first.
func (s *PgCaseStore) ReassignmentsByCaseNo(ctx context.Context, caseNo string) ([]model.CaseReassignment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, case_id, case_no, COALESCE(step_config_id, ''),
		       COALESCE(previous_user_id, ''), COALESCE(previous_role_id, ''),
		       COALESCE(new_user_id, ''), COALESCE(new_role_id, ''),
		       assigned_by, assigned_at
		FROM case_reassignments
		WHERE case_no = $1
		ORDER BY assigned_at DESC`,
		caseNo,
	)
	if err != nil {
		return nil, fmt.Errorf("query case reassignments: %w", err)
	}
	defer rows.Close()

	var records []model.CaseReassignment
	for rows.Next() {
		var r model.CaseReassignment
		if err := rows.Scan(
			&r.ID, &r.CaseID, &r.CaseNo, &r.StepConfigID,
			&r.PreviousUserID, &r.PreviousRoleID, &r.NewUserID, &r.NewRoleID,
			&r.AssignedBy, &r.AssignedAt,
		); err != nil {
			return nil, fmt.Errorf("scan case reassignment: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *PgCaseStore) queryCases(ctx context.Context, query string, args ...any) ([]model.Case, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query case rows: %w", err)
	}
	defer rows.Close()

	var cases []model.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case row: %w", err)
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}
