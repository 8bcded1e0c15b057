package bpm

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleetops/caseflow/internal/audit"
	"github.com/fleetops/caseflow/internal/observability"
	"github.com/fleetops/caseflow/internal/registry"
	"github.com/fleetops/caseflow/internal/sla"
	"github.com/fleetops/caseflow/internal/stepconfig"
	"github.com/fleetops/caseflow/model"
)

// Engine manages the lifecycle of cases: creation, step processing, move
// transitions, closure, and reassignment. Every transition appends a new
// history row through the store's guarded append, so concurrent movers
// cannot both advance past the same row.
type Engine struct {
	cases    CaseStore
	configs  stepconfig.Store
	audit    audit.Store
	registry *registry.Registry
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewEngine creates a case engine. Metrics may be nil in tests.
func NewEngine(
	cases CaseStore,
	configs stepconfig.Store,
	auditStore audit.Store,
	reg *registry.Registry,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cases:    cases,
		configs:  configs,
		audit:    auditStore,
		registry: reg,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// ReassignRequest asks for a case and its remaining steps to be handed to a
// different user.
type ReassignRequest struct {
	CaseNo    string `json:"case_no"`
	NewUserID string `json:"new_user_id"`
	NewRoleID string `json:"new_role_id,omitempty"`

	// CurrentStepOnly limits the reassignment to the step the case is on,
	// leaving the onward chain with its configured assignees.
	CurrentStepOnly bool `json:"current_step_only,omitempty"`
}

// ReassignResult reports the updated case row and how many steps in the
// onward chain were reassigned.
type ReassignResult struct {
	Case            model.Case `json:"case"`
	StepsReassigned int        `json:"steps_reassigned"`
}

// Create opens a new case of the type identified by prefix, positioned at the
// type's entry-point step with the step's level-one SLA attached when one is
// configured.
func (e *Engine) Create(ctx context.Context, rctx *model.RequestContext, prefix string) (model.Case, error) {
	ctx, span := observability.StartSpan(ctx, "bpm.Create",
		observability.AttrCaseType.String(prefix),
		observability.AttrSubjectID.String(rctx.SubjectID),
	)
	var err error
	defer func() { observability.EndSpanWithError(span, err) }()

	// 1. Resolve the case type by prefix.
	ct, err := e.configs.CaseTypeByPrefix(ctx, prefix)
	if err != nil {
		if errCode(err) == model.ErrNotFound {
			err = model.NewValidationError([]model.FieldError{{
				Field:   "case_type_prefix",
				Code:    "unknown",
				Message: fmt.Sprintf("no case type with prefix %q", prefix),
			}})
		}
		return model.Case{}, err
	}

	// 2. A type without a configured entry point cannot host cases.
	first, err := e.configs.FirstStep(ctx, ct.ID)
	if err != nil {
		if errCode(err) == model.ErrNotFound {
			err = model.NewValidationError([]model.FieldError{{
				Field:   "case_type_prefix",
				Code:    "no_first_step",
				Message: fmt.Sprintf("case type %q has no first step configured", ct.Name),
			}})
		}
		return model.Case{}, err
	}

	// 3. Allocate the next case number for the prefix.
	caseNo, err := e.cases.NextCaseNumber(ctx, ct.Prefix)
	if err != nil {
		return model.Case{}, err
	}

	// 4. Attach the first step's level-one SLA when defined.
	slaID := ""
	if s, slaErr := e.configs.SLAByStep(ctx, first.ID, 1); slaErr == nil {
		slaID = s.ID
	} else if errCode(slaErr) != model.ErrNotFound {
		err = slaErr
		return model.Case{}, err
	}

	// 5. Persist the first history row.
	row := model.Case{
		ID:               uuid.New().String(),
		CaseNo:           caseNo,
		CaseTypeID:       ct.ID,
		CaseStepConfigID: first.ID,
		Status:           model.CaseStatusOpen,
		SLAID:            slaID,
		UserID:           first.CurrentAssigneeID,
		RoleID:           firstRole(first),
		CreatedBy:        rctx.SubjectID,
		CreatedAt:        e.now().UTC(),
	}
	if err = e.cases.Append(ctx, row); err != nil {
		return model.Case{}, err
	}

	if err = e.recordAudit(ctx, rctx, row, ct.Name, first.StepName,
		fmt.Sprintf("Created new case with case number: %s", caseNo)); err != nil {
		return model.Case{}, err
	}

	e.logger.Info("case created",
		zap.String("case_no", caseNo),
		zap.String("case_type", ct.Name),
		zap.String("step_id", first.StepID),
	)
	if e.metrics != nil {
		e.metrics.RecordCaseCreated(ct.Name)
	}
	return row, nil
}

// ProcessStep executes the process handler registered for the case's current
// step. Processing does not advance the case; a subsequent Move does.
func (e *Engine) ProcessStep(
	ctx context.Context,
	rctx *model.RequestContext,
	caseNo, stepID string,
	payload map[string]any,
) (map[string]any, error) {
	ctx, span := observability.StartSpan(ctx, "bpm.ProcessStep",
		observability.AttrCaseNo.String(caseNo),
		observability.AttrStepID.String(stepID),
	)
	var err error
	defer func() { observability.EndSpanWithError(span, err) }()

	// 1. Load the case and refuse transitions on a closed one.
	cur, err := e.cases.LatestByCaseNo(ctx, caseNo)
	if err != nil {
		return nil, err
	}
	if cur.Status == model.CaseStatusClosed {
		err = model.NewCaseClosedError(caseNo)
		return nil, err
	}

	// 2. The step must exist, belong to the case's type, and be the case's
	// current position.
	cfg, err := e.configs.ByStepID(ctx, stepID)
	if err != nil {
		if errCode(err) == model.ErrNotFound {
			err = model.NewStepConfigMissingError(stepID)
		}
		return nil, err
	}
	if cfg.CaseTypeID != cur.CaseTypeID {
		err = model.NewBadRequestError(
			fmt.Sprintf("step %q does not belong to the case type of case %q", stepID, caseNo))
		return nil, err
	}
	if cfg.ID != cur.CaseStepConfigID {
		err = model.NewConflictError(
			fmt.Sprintf("case %q is not at step %q", caseNo, stepID))
		return nil, err
	}

	// 3. Role gate. A step with no configured roles is open to everyone.
	if len(cfg.Roles) > 0 && !stepconfig.HasRequiredRole(rctx, cfg) {
		err = model.NewStepUnauthorizedError(stepID)
		return nil, err
	}

	// 4. Run the registered process handler.
	handler, ok := e.registry.Resolve(stepID, registry.OpProcess)
	if !ok {
		err = model.NewStepNotRegisteredError(stepID, registry.OpProcess)
		return nil, err
	}
	start := e.now()
	result, err := handler(ctx, caseNo, payload)
	if e.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		e.metrics.RecordStepExecution(stepID, registry.OpProcess, status, e.now().Sub(start))
	}
	if err != nil {
		return nil, err
	}

	// 5. Processing runs business logic only. The step pointer and the
	// case status change on Move, never here.
	if err = e.recordAudit(ctx, rctx, cur, "", cfg.StepName,
		fmt.Sprintf("Processed step %s for case %s", stepID, caseNo)); err != nil {
		return nil, err
	}

	e.logger.Info("step processed",
		zap.String("case_no", caseNo),
		zap.String("step_id", stepID),
	)
	return result, nil
}

// Move advances the case along its current step's next-step wiring. A current
// step with no onward wiring yields a Stopped result, which is a signal to
// close the case rather than an error.
func (e *Engine) Move(ctx context.Context, rctx *model.RequestContext, caseNo string) (*model.MoveResult, error) {
	ctx, span := observability.StartSpan(ctx, "bpm.Move",
		observability.AttrCaseNo.String(caseNo),
	)
	var err error
	defer func() { observability.EndSpanWithError(span, err) }()

	cur, cfg, err := e.currentStep(ctx, caseNo)
	if err != nil {
		return nil, err
	}
	if len(cfg.Roles) > 0 && !stepconfig.HasRequiredRole(rctx, cfg) {
		err = model.NewStepUnauthorizedError(cfg.StepID)
		return nil, err
	}

	if cfg.NextStepID == "" {
		if e.metrics != nil {
			e.metrics.RecordCaseMoved(e.typeName(ctx, cur.CaseTypeID), "stopped")
		}
		return &model.MoveResult{Stopped: true, Case: &cur}, nil
	}

	next, err := e.configs.ByStepID(ctx, cfg.NextStepID)
	if err != nil {
		return nil, err
	}
	res, err := e.advance(ctx, rctx, cur, cfg, next)
	return res, err
}

// MoveTo moves the case to an explicit target step, which may be a
// non-linear jump anywhere within the case's own type. The only structural
// check is that the target config belongs to the same case type.
func (e *Engine) MoveTo(ctx context.Context, rctx *model.RequestContext, caseNo, stepID string) (*model.MoveResult, error) {
	ctx, span := observability.StartSpan(ctx, "bpm.MoveTo",
		observability.AttrCaseNo.String(caseNo),
		observability.AttrStepID.String(stepID),
	)
	var err error
	defer func() { observability.EndSpanWithError(span, err) }()

	cur, cfg, err := e.currentStep(ctx, caseNo)
	if err != nil {
		return nil, err
	}
	if len(cfg.Roles) > 0 && !stepconfig.HasRequiredRole(rctx, cfg) {
		err = model.NewStepUnauthorizedError(cfg.StepID)
		return nil, err
	}

	next, err := e.configs.ByStepID(ctx, stepID)
	if err != nil {
		if errCode(err) == model.ErrNotFound {
			err = model.NewStepConfigMissingError(stepID)
		}
		return nil, err
	}
	if next.CaseTypeID != cur.CaseTypeID {
		err = model.NewBadRequestError(
			fmt.Sprintf("step %q does not belong to the case type of case %q", stepID, caseNo))
		return nil, err
	}
	res, err := e.advance(ctx, rctx, cur, cfg, next)
	return res, err
}

// advance appends the history row that places the case at the next step. The
// new assignee is the current step's configured handover target unless a
// reassignment record for the next step overrides it; the role comes from the
// next step's authorized roles.
func (e *Engine) advance(
	ctx context.Context,
	rctx *model.RequestContext,
	cur model.Case,
	cfg, next model.CaseStepConfig,
) (*model.MoveResult, error) {
	userID := cfg.NextAssigneeID
	roleID := firstRole(next)

	recs, err := e.cases.ReassignmentsByCaseNo(ctx, cur.CaseNo)
	if err != nil {
		return nil, err
	}
	// Newest first, so the first record per step wins.
	for _, rec := range recs {
		if rec.StepConfigID != next.ID {
			continue
		}
		if rec.NewUserID != "" {
			userID = rec.NewUserID
		}
		if rec.NewRoleID != "" {
			roleID = rec.NewRoleID
		}
		break
	}

	slaID := ""
	if s, slaErr := e.configs.SLAByStep(ctx, next.ID, 1); slaErr == nil {
		slaID = s.ID
	} else if errCode(slaErr) != model.ErrNotFound {
		return nil, slaErr
	}

	status := cur.Status
	if status == model.CaseStatusOpen {
		status = model.CaseStatusInProgress
	}
	row := model.Case{
		ID:               uuid.New().String(),
		CaseNo:           cur.CaseNo,
		CaseTypeID:       cur.CaseTypeID,
		CaseStepConfigID: next.ID,
		Status:           status,
		SLAID:            slaID,
		UserID:           userID,
		RoleID:           roleID,
		CreatedBy:        rctx.SubjectID,
		CreatedAt:        e.now().UTC(),
	}
	if err := e.cases.AppendAfter(ctx, row, cur.ID); err != nil {
		return nil, err
	}

	if err := e.recordAudit(ctx, rctx, row, "", next.StepName,
		fmt.Sprintf("Case moved to step %s", next.StepID)); err != nil {
		return nil, err
	}

	e.logger.Info("case moved",
		zap.String("case_no", cur.CaseNo),
		zap.String("from_step", cfg.StepID),
		zap.String("to_step", next.StepID),
		zap.String("assignee", userID),
	)
	if e.metrics != nil {
		e.metrics.RecordCaseMoved(e.typeName(ctx, cur.CaseTypeID), "advanced")
	}
	return &model.MoveResult{Stopped: false, Case: &row, Step: &next}, nil
}

// Close appends the terminal history row for a case. Closing an already
// closed case returns its latest row together with a CaseClosed error, which
// the transport renders as an idempotent success.
func (e *Engine) Close(ctx context.Context, rctx *model.RequestContext, caseNo string) (model.Case, error) {
	ctx, span := observability.StartSpan(ctx, "bpm.Close",
		observability.AttrCaseNo.String(caseNo),
	)
	var err error
	defer func() { observability.EndSpanWithError(span, err) }()

	cur, err := e.cases.LatestByCaseNo(ctx, caseNo)
	if err != nil {
		return model.Case{}, err
	}
	if cur.Status == model.CaseStatusClosed {
		err = model.NewCaseClosedError(caseNo)
		return cur, err
	}

	// SLA and assignment are cleared; a closed case never escalates.
	row := model.Case{
		ID:               uuid.New().String(),
		CaseNo:           cur.CaseNo,
		CaseTypeID:       cur.CaseTypeID,
		CaseStepConfigID: cur.CaseStepConfigID,
		Status:           model.CaseStatusClosed,
		CreatedBy:        rctx.SubjectID,
		CreatedAt:        e.now().UTC(),
	}
	if err = e.cases.AppendAfter(ctx, row, cur.ID); err != nil {
		return model.Case{}, err
	}

	if err = e.recordAudit(ctx, rctx, row, "", "",
		fmt.Sprintf("Case with case number %s closed", caseNo)); err != nil {
		return model.Case{}, err
	}

	e.logger.Info("case closed", zap.String("case_no", caseNo))
	if e.metrics != nil {
		e.metrics.RecordCaseClosed(e.typeName(ctx, cur.CaseTypeID))
	}
	return row, nil
}

// Reassign hands the case and the remaining steps of its chain to a new user.
// The walk stops at the first downstream step already reassigned to somebody
// else, so an earlier targeted handover is not silently undone.
func (e *Engine) Reassign(ctx context.Context, rctx *model.RequestContext, req ReassignRequest) (*ReassignResult, error) {
	ctx, span := observability.StartSpan(ctx, "bpm.Reassign",
		observability.AttrCaseNo.String(req.CaseNo),
	)
	var err error
	defer func() { observability.EndSpanWithError(span, err) }()

	if req.NewUserID == "" {
		err = model.NewValidationError([]model.FieldError{{
			Field: "new_user_id", Code: "required", Message: "new_user_id is required",
		}})
		return nil, err
	}

	cur, cfg, err := e.currentStep(ctx, req.CaseNo)
	if err != nil {
		return nil, err
	}

	chain, err := stepconfig.ChainFrom(ctx, e.configs, cfg)
	if err != nil {
		return nil, err
	}
	if req.CurrentStepOnly {
		chain = chain[:1]
	}

	recs, err := e.cases.ReassignmentsByCaseNo(ctx, req.CaseNo)
	if err != nil {
		return nil, err
	}
	latestByStep := make(map[string]model.CaseReassignment, len(recs))
	for _, rec := range recs {
		if _, seen := latestByStep[rec.StepConfigID]; !seen {
			latestByStep[rec.StepConfigID] = rec
		}
	}

	// 1. Record a reassignment per step in the onward chain.
	reassigned := 0
	for i, step := range chain {
		prevUser, prevRole := step.CurrentAssigneeID, firstRole(step)
		if i == 0 {
			prevUser, prevRole = cur.UserID, cur.RoleID
		}
		if rec, ok := latestByStep[step.ID]; ok {
			if rec.NewUserID != req.NewUserID {
				break
			}
			// Already assigned to the requested user.
			continue
		}
		if err = e.cases.RecordReassignment(ctx, model.CaseReassignment{
			ID:             uuid.New().String(),
			CaseID:         cur.ID,
			CaseNo:         req.CaseNo,
			StepConfigID:   step.ID,
			PreviousUserID: prevUser,
			PreviousRoleID: prevRole,
			NewUserID:      req.NewUserID,
			NewRoleID:      req.NewRoleID,
			AssignedBy:     rctx.SubjectID,
			AssignedAt:     e.now().UTC(),
		}); err != nil {
			return nil, err
		}
		reassigned++
	}

	// 2. The current row changes hands immediately.
	row := cur
	row.ID = uuid.New().String()
	row.UserID = req.NewUserID
	if req.NewRoleID != "" {
		row.RoleID = req.NewRoleID
	}
	row.CreatedBy = rctx.SubjectID
	row.CreatedAt = e.now().UTC()
	if err = e.cases.AppendAfter(ctx, row, cur.ID); err != nil {
		return nil, err
	}

	if err = e.recordAudit(ctx, rctx, row, "", cfg.StepName,
		fmt.Sprintf("Case %s reassigned to user %s", req.CaseNo, req.NewUserID)); err != nil {
		return nil, err
	}

	e.logger.Info("case reassigned",
		zap.String("case_no", req.CaseNo),
		zap.String("new_user_id", req.NewUserID),
		zap.Int("steps_reassigned", reassigned),
	)
	return &ReassignResult{Case: row, StepsReassigned: reassigned}, nil
}

// History returns the full history of a case, newest first, with type and
// step names resolved.
func (e *Engine) History(ctx context.Context, caseNo string) ([]model.CaseSnapshot, error) {
	rows, err := e.cases.HistoryByCaseNo(ctx, caseNo)
	if err != nil {
		return nil, err
	}
	return e.snapshots(ctx, rows)
}

// CasesByType returns one snapshot per case of the given type, newest first,
// optionally narrowed by latest status. The second return value is the total
// before pagination.
func (e *Engine) CasesByType(ctx context.Context, caseTypeID string, statuses []string, page, perPage int) ([]model.CaseSnapshot, int, error) {
	if _, err := e.configs.CaseTypeByID(ctx, caseTypeID); err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}
	all, err := e.cases.Find(ctx, Filters{
		CaseTypeID: caseTypeID,
		Statuses:   statuses,
		LatestOnly: true,
		SortDesc:   true,
	})
	if err != nil {
		return nil, 0, err
	}

	total := len(all)
	offset := (page - 1) * perPage
	if offset > total {
		offset = total
	}
	end := offset + perPage
	if end > total {
		end = total
	}
	snaps, err := e.snapshots(ctx, all[offset:end])
	if err != nil {
		return nil, 0, err
	}
	return snaps, total, nil
}

// CaseSteps renders the full step list of a case's type annotated with the
// case's position: which step is current, which have already been passed, and
// the SLA due information of the current step. The fetch handler runs for the
// current step only.
func (e *Engine) CaseSteps(ctx context.Context, rctx *model.RequestContext, caseNo string) ([]model.CaseStepView, error) {
	cur, err := e.cases.LatestByCaseNo(ctx, caseNo)
	if err != nil {
		return nil, err
	}

	history, err := e.cases.HistoryByCaseNo(ctx, caseNo)
	if err != nil {
		return nil, err
	}
	used := make(map[string]bool, len(history))
	for _, h := range history {
		if h.CaseStepConfigID != "" && h.ID != cur.ID {
			used[h.CaseStepConfigID] = true
		}
	}

	groups, err := stepconfig.GroupedSteps(ctx, e.configs, cur.CaseTypeID)
	if err != nil {
		return nil, err
	}

	var views []model.CaseStepView
	for _, g := range groups {
		for _, cfg := range g.Configs {
			view := model.CaseStepView{
				Config:             cfg,
				IsCurrentStep:      cfg.ID == cur.CaseStepConfigID,
				HasAlreadyBeenUsed: used[cfg.ID] && cfg.ID != cur.CaseStepConfigID,
			}
			if view.IsCurrentStep {
				if cur.SLAID != "" {
					s, slaErr := e.configs.SLAByID(ctx, cur.SLAID)
					if slaErr != nil {
						return nil, slaErr
					}
					due := sla.CalculateTimeDue(cur.CreatedAt, s.TimeLimitMinutes, e.now())
					view.DueDate = &due.DueDate
					view.TimeLeft = due.TimeLeft
				}
				if handler, ok := e.registry.Resolve(cfg.StepID, registry.OpFetch); ok {
					data, fetchErr := handler(ctx, caseNo, nil)
					if fetchErr != nil {
						return nil, fetchErr
					}
					view.Data = data
				}
			}
			views = append(views, view)
		}
	}
	return views, nil
}

// StepInfo executes the fetch handler registered for a step and returns its
// data. The same role gate applies as for processing.
func (e *Engine) StepInfo(ctx context.Context, rctx *model.RequestContext, caseNo, stepID string) (map[string]any, error) {
	cfg, err := e.configs.ByStepID(ctx, stepID)
	if err != nil {
		if errCode(err) == model.ErrNotFound {
			return nil, model.NewStepConfigMissingError(stepID)
		}
		return nil, err
	}
	if len(cfg.Roles) > 0 && !stepconfig.HasRequiredRole(rctx, cfg) {
		return nil, model.NewStepUnauthorizedError(stepID)
	}

	handler, ok := e.registry.Resolve(stepID, registry.OpFetch)
	if !ok {
		return nil, model.NewStepNotRegisteredError(stepID, registry.OpFetch)
	}

	start := e.now()
	data, err := handler(ctx, caseNo, nil)
	if e.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		e.metrics.RecordStepExecution(stepID, registry.OpFetch, status, e.now().Sub(start))
	}
	return data, err
}

// Workbasket returns the open and in-progress cases currently assigned to the
// caller, directly or through one of the caller's roles, newest first.
func (e *Engine) Workbasket(
	ctx context.Context,
	rctx *model.RequestContext,
	from, to *time.Time,
	page, perPage int,
) (*model.WorkbasketPage, error) {
	rows, err := e.cases.LatestOpenCases(ctx)
	if err != nil {
		return nil, err
	}

	var mine []model.Case
	for _, c := range rows {
		if c.UserID != rctx.SubjectID && !(c.RoleID != "" && rctx.HasRole(c.RoleID)) {
			continue
		}
		if !matchesDateRange(c.CreatedAt, from, to) {
			continue
		}
		mine = append(mine, c)
	}
	sort.SliceStable(mine, func(i, j int) bool {
		return mine[i].CreatedAt.After(mine[j].CreatedAt)
	})

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}
	total := len(mine)
	offset := (page - 1) * perPage
	if offset > total {
		offset = total
	}
	end := offset + perPage
	if end > total {
		end = total
	}

	items := make([]model.WorkbasketItem, 0, end-offset)
	for _, c := range mine[offset:end] {
		item := model.WorkbasketItem{
			CaseNo:    c.CaseNo,
			CaseType:  e.typeName(ctx, c.CaseTypeID),
			Status:    c.Status,
			CreatedBy: c.CreatedBy,
			CreatedAt: c.CreatedAt,
		}
		if c.CaseStepConfigID != "" {
			if cfg, cfgErr := e.configs.ByID(ctx, c.CaseStepConfigID); cfgErr == nil {
				item.StepID = cfg.StepID
				item.StepName = cfg.StepName
			}
		}
		if c.SLAID != "" {
			if s, slaErr := e.configs.SLAByID(ctx, c.SLAID); slaErr == nil {
				due := sla.CalculateTimeDue(c.CreatedAt, s.TimeLimitMinutes, e.now())
				item.TargetDate = &due.DueDate
				item.TimeLeft = due.TimeLeft
			}
		}
		items = append(items, item)
	}

	return &model.WorkbasketPage{
		Items:      items,
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
	}, nil
}

// currentStep loads the latest open row of a case together with its step
// config. A closed case yields a CaseClosed error.
func (e *Engine) currentStep(ctx context.Context, caseNo string) (model.Case, model.CaseStepConfig, error) {
	cur, err := e.cases.LatestByCaseNo(ctx, caseNo)
	if err != nil {
		return model.Case{}, model.CaseStepConfig{}, err
	}
	if cur.Status == model.CaseStatusClosed {
		return model.Case{}, model.CaseStepConfig{}, model.NewCaseClosedError(caseNo)
	}
	cfg, err := e.configs.ByID(ctx, cur.CaseStepConfigID)
	if err != nil {
		return model.Case{}, model.CaseStepConfig{}, err
	}
	return cur, cfg, nil
}

// snapshots resolves type and step names for a slice of history rows.
func (e *Engine) snapshots(ctx context.Context, rows []model.Case) ([]model.CaseSnapshot, error) {
	typeNames := make(map[string]string)
	configs := make(map[string]model.CaseStepConfig)

	snaps := make([]model.CaseSnapshot, 0, len(rows))
	for _, c := range rows {
		snap := model.CaseSnapshot{
			CaseNo:    c.CaseNo,
			Status:    c.Status,
			UserID:    c.UserID,
			RoleID:    c.RoleID,
			CreatedBy: c.CreatedBy,
			CreatedAt: c.CreatedAt,
		}
		name, ok := typeNames[c.CaseTypeID]
		if !ok {
			ct, err := e.configs.CaseTypeByID(ctx, c.CaseTypeID)
			if err != nil {
				return nil, err
			}
			name = ct.Name
			typeNames[c.CaseTypeID] = name
		}
		snap.CaseType = name

		if c.CaseStepConfigID != "" {
			cfg, ok := configs[c.CaseStepConfigID]
			if !ok {
				var err error
				cfg, err = e.configs.ByID(ctx, c.CaseStepConfigID)
				if err != nil {
					return nil, err
				}
				configs[c.CaseStepConfigID] = cfg
			}
			snap.StepID = cfg.StepID
			snap.StepName = cfg.StepName
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// recordAudit appends an automated audit entry for an engine transition.
// Manual entries are reserved for caller-supplied annotations.
func (e *Engine) recordAudit(ctx context.Context, rctx *model.RequestContext, c model.Case, caseType, stepName, description string) error {
	role := ""
	if len(rctx.Roles) > 0 {
		role = rctx.Roles[0]
	}
	if caseType == "" {
		caseType = e.typeName(ctx, c.CaseTypeID)
	}
	return e.audit.Record(ctx, model.AuditEntry{
		ID:          uuid.New().String(),
		Timestamp:   e.now().UTC(),
		DoneBy:      rctx.SubjectID,
		UserRole:    role,
		CaseID:      c.ID,
		CaseNo:      c.CaseNo,
		CaseType:    caseType,
		StepName:    stepName,
		Description: description,
		Type:        model.AuditAutomated,
	})
}

// typeName resolves a case type's display name, falling back to the ID when
// the lookup fails. Used for labels and audit entries, never for decisions.
func (e *Engine) typeName(ctx context.Context, caseTypeID string) string {
	ct, err := e.configs.CaseTypeByID(ctx, caseTypeID)
	if err != nil {
		return caseTypeID
	}
	return ct.Name
}

// firstRole returns the role a step's assignee acts under, or empty when the
// step has no role requirement.
func firstRole(cfg model.CaseStepConfig) string {
	if len(cfg.Roles) > 0 {
		return cfg.Roles[0]
	}
	return ""
}

// errCode extracts the envelope code from an error, or empty.
func errCode(err error) string {
	if env, ok := err.(*model.ErrorEnvelope); ok {
		return env.Code
	}
	return ""
}
