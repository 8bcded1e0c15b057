package stepconfig

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetops/caseflow/model"
)

// PgStore is a PostgreSQL-backed configuration store using pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL configuration store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const configColumns = `
	c.id, c.step_id, c.step_name, c.case_step_id, c.case_type_id,
	COALESCE(c.current_assignee_id, ''), COALESCE(c.next_assignee_id, ''),
	COALESCE(c.next_step_id, ''),
	COALESCE((SELECT array_agg(r.role_id ORDER BY r.role_id)
	          FROM case_step_config_roles r WHERE r.config_id = c.id), '{}'),
	COALESCE((SELECT array_agg(p.path ORDER BY p.path)
	          FROM case_step_config_paths p WHERE p.config_id = c.id), '{}')`

func scanConfig(row pgx.Row) (model.CaseStepConfig, error) {
	var cfg model.CaseStepConfig
	err := row.Scan(
		&cfg.ID, &cfg.StepID, &cfg.StepName, &cfg.CaseStepID, &cfg.CaseTypeID,
		&cfg.CurrentAssigneeID, &cfg.NextAssigneeID, &cfg.NextStepID,
		&cfg.Roles, &cfg.Paths,
	)
	return cfg, err
}

// CaseTypes returns every configured case type.
func (s *PgStore) CaseTypes(ctx context.Context) ([]model.CaseType, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, prefix FROM case_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query case types: %w", err)
	}
	defer rows.Close()

	var types []model.CaseType
	for rows.Next() {
		var ct model.CaseType
		if err := rows.Scan(&ct.ID, &ct.Name, &ct.Prefix); err != nil {
			return nil, fmt.Errorf("scan case type: %w", err)
		}
		types = append(types, ct)
	}
	return types, rows.Err()
}

// CaseTypeByPrefix resolves a case type by its case-number prefix.
func (s *PgStore) CaseTypeByPrefix(ctx context.Context, prefix string) (model.CaseType, error) {
	var ct model.CaseType
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, prefix FROM case_types WHERE prefix = $1`,
		prefix,
	).Scan(&ct.ID, &ct.Name, &ct.Prefix)
	if err == pgx.ErrNoRows {
		return model.CaseType{}, model.NewNotFoundError(
			fmt.Sprintf("case type with prefix %q not found", prefix),
		)
	}
	if err != nil {
		return model.CaseType{}, fmt.Errorf("query case type by prefix: %w", err)
	}
	return ct, nil
}

// CaseTypeByID resolves a case type by ID.
func (s *PgStore) CaseTypeByID(ctx context.Context, id string) (model.CaseType, error) {
	var ct model.CaseType
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, prefix FROM case_types WHERE id = $1`,
		id,
	).Scan(&ct.ID, &ct.Name, &ct.Prefix)
	if err == pgx.ErrNoRows {
		return model.CaseType{}, model.NewNotFoundError(
			fmt.Sprintf("case type %q not found", id),
		)
	}
	if err != nil {
		return model.CaseType{}, fmt.Errorf("query case type: %w", err)
	}
	return ct, nil
}

// FirstStep returns the entry-point step config for a case type. A mapping
// row with a null first_step_id means the type is not yet wired and also
// yields NotFound.
func (s *PgStore) FirstStep(ctx context.Context, caseTypeID string) (model.CaseStepConfig, error) {
	cfg, err := scanConfig(s.pool.QueryRow(ctx, `
		SELECT `+configColumns+`
		FROM case_step_configs c
		JOIN case_type_first_steps f ON f.first_step_id = c.id
		WHERE f.case_type_id = $1`,
		caseTypeID,
	))
	if err == pgx.ErrNoRows {
		return model.CaseStepConfig{}, model.NewNotFoundError(
			fmt.Sprintf("no first step configured for case type %q", caseTypeID),
		)
	}
	if err != nil {
		return model.CaseStepConfig{}, fmt.Errorf("query first step: %w", err)
	}
	return cfg, nil
}

// ByStepID resolves a step config by its external step token.
func (s *PgStore) ByStepID(ctx context.Context, stepID string) (model.CaseStepConfig, error) {
	cfg, err := scanConfig(s.pool.QueryRow(ctx, `
		SELECT `+configColumns+`
		FROM case_step_configs c
		WHERE c.step_id = $1`,
		stepID,
	))
	if err == pgx.ErrNoRows {
		return model.CaseStepConfig{}, model.NewStepConfigMissingError(stepID)
	}
	if err != nil {
		return model.CaseStepConfig{}, fmt.Errorf("query step config by step id: %w", err)
	}
	return cfg, nil
}

// ByID resolves a step config by its internal ID.
func (s *PgStore) ByID(ctx context.Context, id string) (model.CaseStepConfig, error) {
	cfg, err := scanConfig(s.pool.QueryRow(ctx, `
		SELECT `+configColumns+`
		FROM case_step_configs c
		WHERE c.id = $1`,
		id,
	))
	if err == pgx.ErrNoRows {
		return model.CaseStepConfig{}, model.NewStepConfigMissingError(id)
	}
	if err != nil {
		return model.CaseStepConfig{}, fmt.Errorf("query step config: %w", err)
	}
	return cfg, nil
}

// Paths returns the payload schema references of a step config.
func (s *PgStore) Paths(ctx context.Context, stepConfigID string) ([]string, error) {
	cfg, err := s.ByID(ctx, stepConfigID)
	if err != nil {
		return nil, err
	}
	return cfg.Paths, nil
}

// StepsForType returns the case steps of a type ordered by weight.
func (s *PgStore) StepsForType(ctx context.Context, caseTypeID string) ([]model.CaseStep, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, case_type_id, weight
		FROM case_steps
		WHERE case_type_id = $1
		ORDER BY weight ASC`,
		caseTypeID,
	)
	if err != nil {
		return nil, fmt.Errorf("query case steps: %w", err)
	}
	defer rows.Close()

	var steps []model.CaseStep
	for rows.Next() {
		var st model.CaseStep
		if err := rows.Scan(&st.ID, &st.Name, &st.CaseTypeID, &st.Weight); err != nil {
			return nil, fmt.Errorf("scan case step: %w", err)
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// ConfigsForType returns every step config belonging to a case type.
func (s *PgStore) ConfigsForType(ctx context.Context, caseTypeID string) ([]model.CaseStepConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+configColumns+`
		FROM case_step_configs c
		WHERE c.case_type_id = $1
		ORDER BY c.step_id ASC`,
		caseTypeID,
	)
	if err != nil {
		return nil, fmt.Errorf("query step configs: %w", err)
	}
	defer rows.Close()

	var configs []model.CaseStepConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan step config: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

const slaColumns = `
	id, name, case_step_config_id, time_limit_minutes, escalation_level,
	COALESCE(role_id, ''), COALESCE(user_id, ''), is_active`

// SLAByStep returns the active SLA for a step config at the given escalation
// level.
func (s *PgStore) SLAByStep(ctx context.Context, stepConfigID string, escalationLevel int) (model.SLA, error) {
	var sla model.SLA
	err := s.pool.QueryRow(ctx, `
		SELECT `+slaColumns+`
		FROM slas
		WHERE case_step_config_id = $1 AND escalation_level = $2 AND is_active`,
		stepConfigID, escalationLevel,
	).Scan(
		&sla.ID, &sla.Name, &sla.CaseStepConfigID, &sla.TimeLimitMinutes,
		&sla.EscalationLevel, &sla.RoleID, &sla.UserID, &sla.IsActive,
	)
	if err == pgx.ErrNoRows {
		return model.SLA{}, model.NewNotFoundError(
			fmt.Sprintf("no active SLA for step config %q at level %d", stepConfigID, escalationLevel),
		)
	}
	if err != nil {
		return model.SLA{}, fmt.Errorf("query sla: %w", err)
	}
	return sla, nil
}

// SLAByID resolves an SLA by ID.
func (s *PgStore) SLAByID(ctx context.Context, id string) (model.SLA, error) {
	var sla model.SLA
	err := s.pool.QueryRow(ctx, `
		SELECT `+slaColumns+`
		FROM slas
		WHERE id = $1`,
		id,
	).Scan(
		&sla.ID, &sla.Name, &sla.CaseStepConfigID, &sla.TimeLimitMinutes,
		&sla.EscalationLevel, &sla.RoleID, &sla.UserID, &sla.IsActive,
	)
	if err == pgx.ErrNoRows {
		return model.SLA{}, model.NewNotFoundError(fmt.Sprintf("sla %q not found", id))
	}
	if err != nil {
		return model.SLA{}, fmt.Errorf("query sla: %w", err)
	}
	return sla, nil
}

// ActiveSLAs returns every active SLA definition.
func (s *PgStore) ActiveSLAs(ctx context.Context) ([]model.SLA, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+slaColumns+`
		FROM slas
		WHERE is_active
		ORDER BY case_step_config_id, escalation_level`)
	if err != nil {
		return nil, fmt.Errorf("query active slas: %w", err)
	}
	defer rows.Close()

	var slas []model.SLA
	for rows.Next() {
		var sla model.SLA
		if err := rows.Scan(
			&sla.ID, &sla.Name, &sla.CaseStepConfigID, &sla.TimeLimitMinutes,
			&sla.EscalationLevel, &sla.RoleID, &sla.UserID, &sla.IsActive,
		); err != nil {
			return nil, fmt.Errorf("scan sla: %w", err)
		}
		slas = append(slas, sla)
	}
	return slas, rows.Err()
}
