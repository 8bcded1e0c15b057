package sla

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleetops/caseflow/internal/observability"
	"github.com/fleetops/caseflow/internal/stepconfig"
	"github.com/fleetops/caseflow/model"
)

// CaseSource is the slice of the case store the escalator needs: the latest
// row of every open or in-progress case, and guarded appends.
type CaseSource interface {
	// LatestOpenCases returns the latest history row of every case whose
	// latest status is Open or In Progress.
	LatestOpenCases(ctx context.Context) ([]model.Case, error)

	// AppendAfter appends a new history row, failing with a Conflict error
	// if prevRowID is no longer the latest row for the case number.
	AppendAfter(ctx context.Context, c model.Case, prevRowID string) error
}

// AuditLog is the slice of the audit store the escalator needs.
type AuditLog interface {
	Record(ctx context.Context, e model.AuditEntry) error

	// HasEntryWithMetadata reports whether any entry for the case carries
	// the given metadata key/value pair.
	HasEntryWithMetadata(ctx context.Context, caseNo, key, value string) (bool, error)
}

// Escalator periodically scans open cases against their SLAs and reassigns
// lapsed ones to the next escalation level. Escalation is idempotent per
// (case, level): advancing a level appends a fresh history row whose creation
// time restarts the clock, and a case at its terminal level is marked overdue
// exactly once.
type Escalator struct {
	cases    CaseSource
	configs  stepconfig.Store
	audit    AuditLog
	logger   *zap.Logger
	metrics  *observability.Metrics
	interval time.Duration
	now      func() time.Time
}

// NewEscalator creates an Escalator. Metrics may be nil in tests.
func NewEscalator(cases CaseSource, configs stepconfig.Store, audit AuditLog, logger *zap.Logger, metrics *observability.Metrics, interval time.Duration) *Escalator {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Escalator{
		cases:    cases,
		configs:  configs,
		audit:    audit,
		logger:   logger,
		metrics:  metrics,
		interval: interval,
		now:      time.Now,
	}
}

// Run executes the scan on a ticker until the context is cancelled.
func (e *Escalator) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info("escalation scanner started", zap.Duration("interval", e.interval))
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("escalation scanner stopped")
			return
		case <-ticker.C:
			escalated, err := e.ScanOnce(ctx)
			if err != nil {
				e.logger.Error("escalation scan failed", zap.Error(err))
				continue
			}
			if escalated > 0 {
				e.logger.Info("escalation scan complete", zap.Int("escalated", escalated))
			}
		}
	}
}

// ScanOnce runs a single pass over all open cases. One case's failure is
// logged and skipped so it never blocks the rest of the scan. Returns the
// number of cases escalated.
func (e *Escalator) ScanOnce(ctx context.Context) (int, error) {
	start := e.now()
	rows, err := e.cases.LatestOpenCases(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open cases: %w", err)
	}

	escalated := 0
	for _, c := range rows {
		if c.SLAID == "" {
			continue
		}
		did, err := e.checkCase(ctx, c)
		if err != nil {
			e.logger.Error("case escalation check failed",
				zap.String("case_no", c.CaseNo),
				zap.String("sla_id", c.SLAID),
				zap.Error(err),
			)
			continue
		}
		if did {
			escalated++
		}
	}

	if e.metrics != nil {
		e.metrics.ObserveEscalationScan(e.now().Sub(start), len(rows))
	}
	return escalated, nil
}

// checkCase evaluates one case against its current SLA and escalates it when
// lapsed. Reports whether an escalation row was written.
func (e *Escalator) checkCase(ctx context.Context, c model.Case) (bool, error) {
	cur, err := e.configs.SLAByID(ctx, c.SLAID)
	if err != nil {
		return false, err
	}
	if !cur.IsActive {
		return false, nil
	}

	due := CalculateTimeDue(c.CreatedAt, cur.TimeLimitMinutes, e.now())
	if due.TimeLeft != Overdue {
		return false, nil
	}

	next, err := e.configs.SLAByStep(ctx, cur.CaseStepConfigID, cur.EscalationLevel+1)
	if err != nil {
		if envErr, ok := err.(*model.ErrorEnvelope); ok && envErr.Code == model.ErrNotFound {
			return false, e.markTerminalOverdue(ctx, c, cur)
		}
		return false, err
	}
	return true, e.escalate(ctx, c, next)
}

// escalate appends a new history row for the case assigned per the next
// escalation level. The new row's creation time restarts the SLA clock, so a
// repeated scan within the same period finds nothing left to do.
func (e *Escalator) escalate(ctx context.Context, c model.Case, next model.SLA) error {
	row := model.Case{
		ID:               uuid.NewString(),
		CaseNo:           c.CaseNo,
		CaseTypeID:       c.CaseTypeID,
		CaseStepConfigID: c.CaseStepConfigID,
		Status:           c.Status,
		SLAID:            next.ID,
		UserID:           next.UserID,
		RoleID:           next.RoleID,
		CreatedBy:        "system",
		CreatedAt:        e.now().UTC(),
	}
	if err := e.cases.AppendAfter(ctx, row, c.ID); err != nil {
		return err
	}

	e.logger.Info("case escalated",
		zap.String("case_no", c.CaseNo),
		zap.Int("level", next.EscalationLevel),
		zap.String("role_id", next.RoleID),
		zap.String("user_id", next.UserID),
	)
	if e.metrics != nil {
		e.metrics.RecordEscalation(next.EscalationLevel)
	}

	return e.audit.Record(ctx, model.AuditEntry{
		ID:          uuid.NewString(),
		Timestamp:   e.now().UTC(),
		CaseID:      row.ID,
		CaseNo:      c.CaseNo,
		Description: fmt.Sprintf("Case %s escalated to level %d", c.CaseNo, next.EscalationLevel),
		Type:        model.AuditAutomated,
		Metadata: map[string]any{
			"event":  "escalated",
			"sla_id": next.ID,
			"level":  next.EscalationLevel,
		},
	})
}

// markTerminalOverdue records the overdue state of a case stuck at its
// highest escalation level. The audit trail is the dedup record: if the mark
// for this SLA already exists, later scans skip the case.
func (e *Escalator) markTerminalOverdue(ctx context.Context, c model.Case, cur model.SLA) error {
	marked, err := e.audit.HasEntryWithMetadata(ctx, c.CaseNo, "overdue_sla_id", cur.ID)
	if err != nil {
		return err
	}
	if marked {
		return nil
	}

	e.logger.Warn("case overdue at terminal escalation level",
		zap.String("case_no", c.CaseNo),
		zap.Int("level", cur.EscalationLevel),
	)
	if e.metrics != nil {
		e.metrics.RecordTerminalOverdue()
	}

	return e.audit.Record(ctx, model.AuditEntry{
		ID:          uuid.NewString(),
		Timestamp:   e.now().UTC(),
		CaseID:      c.ID,
		CaseNo:      c.CaseNo,
		Description: fmt.Sprintf("Case %s is overdue at escalation level %d", c.CaseNo, cur.EscalationLevel),
		Type:        model.AuditAutomated,
		Metadata: map[string]any{
			"event":          "overdue",
			"overdue_sla_id": cur.ID,
			"level":          cur.EscalationLevel,
		},
	})
}
