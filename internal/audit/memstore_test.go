package audit

import (
	"context"
	"testing"
	"time"

	"github.com/fleetops/caseflow/model"
)

func entry(id, caseNo, doneBy, role string, at time.Time) model.AuditEntry {
	return model.AuditEntry{
		ID:          id,
		Timestamp:   at,
		DoneBy:      doneBy,
		UserRole:    role,
		CaseNo:      caseNo,
		Description: "Processed step 100 for case " + caseNo,
		Type:        model.AuditAutomated,
	}
}

func TestMemStore_ByCase_newest_first(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_ = s.Record(ctx, entry("a-1", "DRV-000001", "user-1", "supervisor", base))
	_ = s.Record(ctx, entry("a-2", "DRV-000001", "user-2", "supervisor", base.Add(time.Minute)))
	_ = s.Record(ctx, entry("a-3", "DRV-000002", "user-1", "supervisor", base.Add(2*time.Minute)))

	got, err := s.ByCase(ctx, "DRV-000001", 1, 10)
	if err != nil {
		t.Fatalf("ByCase() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ByCase() returned %d entries, want 2", len(got))
	}
	if got[0].ID != "a-2" || got[1].ID != "a-1" {
		t.Errorf("ByCase() order = [%s %s], want [a-2 a-1]", got[0].ID, got[1].ID)
	}
}

func TestMemStore_ByUser_and_ByRole(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_ = s.Record(ctx, entry("a-1", "DRV-000001", "user-1", "supervisor", base))
	_ = s.Record(ctx, entry("a-2", "DRV-000002", "user-2", "registration-officer", base))

	byUser, err := s.ByUser(ctx, "user-1", 1, 10)
	if err != nil {
		t.Fatalf("ByUser() error = %v", err)
	}
	if len(byUser) != 1 || byUser[0].ID != "a-1" {
		t.Errorf("ByUser(user-1) = %+v, want single entry a-1", byUser)
	}

	byRole, err := s.ByRole(ctx, "registration-officer", 1, 10)
	if err != nil {
		t.Fatalf("ByRole() error = %v", err)
	}
	if len(byRole) != 1 || byRole[0].ID != "a-2" {
		t.Errorf("ByRole(registration-officer) = %+v, want single entry a-2", byRole)
	}
}

func TestMemStore_pagination(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_ = s.Record(ctx, entry(string(rune('a'+i)), "DRV-000001", "user-1", "supervisor", base.Add(time.Duration(i)*time.Minute)))
	}

	page1, err := s.ByCase(ctx, "DRV-000001", 1, 2)
	if err != nil {
		t.Fatalf("ByCase(page 1) error = %v", err)
	}
	if len(page1) != 2 {
		t.Fatalf("page 1 length = %d, want 2", len(page1))
	}
	page3, err := s.ByCase(ctx, "DRV-000001", 3, 2)
	if err != nil {
		t.Fatalf("ByCase(page 3) error = %v", err)
	}
	if len(page3) != 1 {
		t.Errorf("page 3 length = %d, want 1", len(page3))
	}
	page4, err := s.ByCase(ctx, "DRV-000001", 4, 2)
	if err != nil {
		t.Fatalf("ByCase(page 4) error = %v", err)
	}
	if len(page4) != 0 {
		t.Errorf("page 4 length = %d, want 0", len(page4))
	}
}

func TestMemStore_HasEntryWithMetadata(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	e := entry("a-1", "DRV-000001", "system", "", time.Now())
	e.Metadata = map[string]any{"overdue_sla_id": "sla-100-2", "level": 2}
	_ = s.Record(ctx, e)

	got, err := s.HasEntryWithMetadata(ctx, "DRV-000001", "overdue_sla_id", "sla-100-2")
	if err != nil {
		t.Fatalf("HasEntryWithMetadata() error = %v", err)
	}
	if !got {
		t.Error("HasEntryWithMetadata(matching) = false, want true")
	}

	got, err = s.HasEntryWithMetadata(ctx, "DRV-000001", "overdue_sla_id", "sla-other")
	if err != nil {
		t.Fatalf("HasEntryWithMetadata() error = %v", err)
	}
	if got {
		t.Error("HasEntryWithMetadata(wrong value) = true, want false")
	}

	got, err = s.HasEntryWithMetadata(ctx, "DRV-000002", "overdue_sla_id", "sla-100-2")
	if err != nil {
		t.Fatalf("HasEntryWithMetadata() error = %v", err)
	}
	if got {
		t.Error("HasEntryWithMetadata(wrong case) = true, want false")
	}

	// Non-string metadata values compare by their rendered form.
	got, err = s.HasEntryWithMetadata(ctx, "DRV-000001", "level", "2")
	if err != nil {
		t.Fatalf("HasEntryWithMetadata() error = %v", err)
	}
	if !got {
		t.Error("HasEntryWithMetadata(int value) = false, want true")
	}
}

func TestMemStore_ByMetadata(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	e1 := entry("a-1", "DRV-000001", "system", "", time.Now().Add(-2*time.Minute))
	e1.Metadata = map[string]any{"driver_id": "drv-9"}
	e2 := entry("a-2", "DRV-000002", "system", "", time.Now().Add(-time.Minute))
	e2.Metadata = map[string]any{"driver_id": "drv-9"}
	e3 := entry("a-3", "DRV-000003", "system", "", time.Now())
	e3.Metadata = map[string]any{"driver_id": "drv-other"}
	for _, e := range []model.AuditEntry{e1, e2, e3} {
		_ = s.Record(ctx, e)
	}

	got, err := s.ByMetadata(ctx, "driver_id", "drv-9", 1, 10)
	if err != nil {
		t.Fatalf("ByMetadata() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ByMetadata() returned %d entries, want 2", len(got))
	}
	if got[0].ID != "a-2" || got[1].ID != "a-1" {
		t.Errorf("ByMetadata() order = [%s %s], want newest first [a-2 a-1]", got[0].ID, got[1].ID)
	}
}
