package bpm

import (
	"context"
	"testing"
	"time"

	"github.com/fleetops/caseflow/model"
)

func row(id, caseNo, status string, at time.Time) model.Case {
	return model.Case{
		ID:         id,
		CaseNo:     caseNo,
		CaseTypeID: "ct-drv",
		Status:     status,
		CreatedBy:  "user-1",
		CreatedAt:  at,
	}
}

func TestAppendAfter_guards_latest_row(t *testing.T) {
	ctx := context.Background()
	s := NewMemCaseStore()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := s.Append(ctx, row("r1", "DRV-000001", model.CaseStatusOpen, t0)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	err := s.AppendAfter(ctx, row("r2", "DRV-000001", model.CaseStatusInProgress, t0.Add(time.Minute)), "r0")
	if err == nil {
		t.Fatal("AppendAfter() with stale prev row should fail")
	}
	if env, ok := err.(*model.ErrorEnvelope); !ok || env.Code != model.ErrConflict {
		t.Errorf("AppendAfter() error = %v, want CONFLICT envelope", err)
	}

	if err := s.AppendAfter(ctx, row("r2", "DRV-000001", model.CaseStatusInProgress, t0.Add(time.Minute)), "r1"); err != nil {
		t.Fatalf("AppendAfter() with matching prev row error = %v", err)
	}

	latest, err := s.LatestByCaseNo(ctx, "DRV-000001")
	if err != nil {
		t.Fatalf("LatestByCaseNo() error = %v", err)
	}
	if latest.ID != "r2" {
		t.Errorf("latest row = %q, want r2", latest.ID)
	}
}

func TestAppendAfter_unknown_case(t *testing.T) {
	s := NewMemCaseStore()
	err := s.AppendAfter(context.Background(), row("r1", "DRV-000099", model.CaseStatusOpen, time.Now()), "r0")
	if env, ok := err.(*model.ErrorEnvelope); !ok || env.Code != model.ErrCaseNotFound {
		t.Errorf("AppendAfter() error = %v, want CASE_NOT_FOUND envelope", err)
	}
}

func TestNextCaseNumber(t *testing.T) {
	ctx := context.Background()
	s := NewMemCaseStore()

	no, err := s.NextCaseNumber(ctx, "DRV")
	if err != nil {
		t.Fatalf("NextCaseNumber() error = %v", err)
	}
	if no != "DRV-000001" {
		t.Errorf("NextCaseNumber() on empty store = %q, want DRV-000001", no)
	}

	t0 := time.Now().UTC()
	_ = s.Append(ctx, row("r1", "DRV-000041", model.CaseStatusOpen, t0))
	_ = s.Append(ctx, row("r2", "MED-000900", model.CaseStatusOpen, t0))
	_ = s.Append(ctx, row("r3", "DRV-junk", model.CaseStatusOpen, t0))

	no, err = s.NextCaseNumber(ctx, "DRV")
	if err != nil {
		t.Fatalf("NextCaseNumber() error = %v", err)
	}
	if no != "DRV-000042" {
		t.Errorf("NextCaseNumber() = %q, want DRV-000042", no)
	}
}

func TestHistoryByCaseNo_newest_first(t *testing.T) {
	ctx := context.Background()
	s := NewMemCaseStore()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	_ = s.Append(ctx, row("r1", "DRV-000001", model.CaseStatusOpen, t0))
	_ = s.AppendAfter(ctx, row("r2", "DRV-000001", model.CaseStatusInProgress, t0.Add(time.Minute)), "r1")
	_ = s.AppendAfter(ctx, row("r3", "DRV-000001", model.CaseStatusClosed, t0.Add(2*time.Minute)), "r2")

	history, err := s.HistoryByCaseNo(ctx, "DRV-000001")
	if err != nil {
		t.Fatalf("HistoryByCaseNo() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("len(history) = %d, want 3", len(history))
	}
	for i, want := range []string{"r3", "r2", "r1"} {
		if history[i].ID != want {
			t.Errorf("history[%d] = %q, want %q", i, history[i].ID, want)
		}
	}

	if _, err := s.HistoryByCaseNo(ctx, "DRV-000404"); err == nil {
		t.Error("HistoryByCaseNo() for unknown case should fail")
	}
}

func TestFind_filters(t *testing.T) {
	ctx := context.Background()
	s := NewMemCaseStore()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	_ = s.Append(ctx, row("a1", "DRV-000001", model.CaseStatusOpen, t0))
	_ = s.AppendAfter(ctx, row("a2", "DRV-000001", model.CaseStatusClosed, t0.Add(time.Hour)), "a1")
	_ = s.Append(ctx, row("b1", "DRV-000002", model.CaseStatusOpen, t0.Add(2*time.Hour)))
	other := row("c1", "MED-000001", model.CaseStatusOpen, t0.Add(3*time.Hour))
	other.CaseTypeID = "ct-med"
	_ = s.Append(ctx, other)

	latest, err := s.Find(ctx, Filters{CaseTypeID: "ct-drv", LatestOnly: true})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("LatestOnly results = %d, want 2", len(latest))
	}

	open, err := s.Find(ctx, Filters{CaseTypeID: "ct-drv", LatestOnly: true, Statuses: []string{model.CaseStatusOpen}})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(open) != 1 || open[0].CaseNo != "DRV-000002" {
		t.Errorf("open results = %+v, want single DRV-000002", open)
	}

	desc, err := s.Find(ctx, Filters{CaseNo: "DRV-000001", SortDesc: true})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(desc) != 2 || desc[0].ID != "a2" {
		t.Errorf("SortDesc results = %+v, want a2 first", desc)
	}

	paged, err := s.Find(ctx, Filters{LatestOnly: true, SortDesc: true, Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(paged) != 1 {
		t.Errorf("paged results = %d, want 1", len(paged))
	}
}

func TestLatestOpenCases_excludes_closed(t *testing.T) {
	ctx := context.Background()
	s := NewMemCaseStore()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	_ = s.Append(ctx, row("a1", "DRV-000001", model.CaseStatusOpen, t0))
	_ = s.AppendAfter(ctx, row("a2", "DRV-000001", model.CaseStatusClosed, t0.Add(time.Hour)), "a1")
	_ = s.Append(ctx, row("b1", "DRV-000002", model.CaseStatusInProgress, t0))

	open, err := s.LatestOpenCases(ctx)
	if err != nil {
		t.Fatalf("LatestOpenCases() error = %v", err)
	}
	if len(open) != 1 || open[0].CaseNo != "DRV-000002" {
		t.Errorf("LatestOpenCases() = %+v, want single DRV-000002", open)
	}
}

func TestReassignments_newest_first(t *testing.T) {
	ctx := context.Background()
	s := NewMemCaseStore()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	_ = s.RecordReassignment(ctx, model.CaseReassignment{ID: "x1", CaseNo: "DRV-000001", AssignedAt: t0})
	_ = s.RecordReassignment(ctx, model.CaseReassignment{ID: "x2", CaseNo: "DRV-000001", AssignedAt: t0.Add(time.Minute)})

	recs, err := s.ReassignmentsByCaseNo(ctx, "DRV-000001")
	if err != nil {
		t.Fatalf("ReassignmentsByCaseNo() error = %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "x2" {
		t.Errorf("records = %+v, want x2 first", recs)
	}
}
