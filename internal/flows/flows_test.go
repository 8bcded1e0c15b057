package flows

import (
	"context"
	"testing"

	"github.com/fleetops/caseflow/internal/registry"
	"github.com/fleetops/caseflow/model"
)

func newTestDeps() Deps {
	return Deps{Store: NewStore()}
}

func registerAll(t *testing.T) (*registry.Registry, Deps) {
	t.Helper()
	deps := newTestDeps()
	r := registry.New()
	if err := RegisterAll(r, deps); err != nil {
		t.Fatalf("RegisterAll() error = %v", err)
	}
	r.Freeze()
	return r, deps
}

func call(t *testing.T, r *registry.Registry, stepID, op, caseNo string, payload map[string]any) (map[string]any, error) {
	t.Helper()
	h, ok := r.Resolve(stepID, op)
	if !ok {
		t.Fatalf("no handler for step %s operation %s", stepID, op)
	}
	return h(context.Background(), caseNo, payload)
}

func TestRegisterAll_registersAllSteps(t *testing.T) {
	r, _ := registerAll(t)

	steps := map[string][]string{
		"142": {registry.OpFetch, registry.OpProcess},
		"143": {registry.OpFetch, registry.OpProcess},
		"144": {registry.OpFetch, registry.OpProcess},
		"145": {registry.OpFetch, registry.OpProcess},
		"162": {registry.OpFetch, registry.OpProcess},
		"163": {registry.OpFetch, registry.OpProcess},
	}
	for stepID, ops := range steps {
		for _, op := range ops {
			if _, ok := r.Resolve(stepID, op); !ok {
				t.Errorf("step %s operation %s not registered", stepID, op)
			}
		}
	}
}

func TestRegisterAll_duplicateRegistrationFails(t *testing.T) {
	deps := newTestDeps()
	r := registry.New()
	if err := RegisterAll(r, deps); err != nil {
		t.Fatalf("first RegisterAll() error = %v", err)
	}
	if err := RegisterAll(r, deps); err == nil {
		t.Fatal("second RegisterAll should fail on duplicate step keys")
	}
}

func TestDriverFlow_selectCreatesProvisionalDriver(t *testing.T) {
	r, deps := registerAll(t)

	out, err := call(t, r, "142", registry.OpProcess, "DRV-000001", map[string]any{})
	if err != nil {
		t.Fatalf("process 142 error = %v", err)
	}
	id, _ := out["driver_id"].(string)
	if id == "" {
		t.Fatal("expected a generated driver_id")
	}

	rec, ok := deps.Store.Record(driverEntity, id)
	if !ok {
		t.Fatal("provisional driver record not created")
	}
	if rec["driver_status"] != driverStatusInProgress {
		t.Errorf("driver_status = %v, want %q", rec["driver_status"], driverStatusInProgress)
	}

	entity, bound := deps.Store.Entity("DRV-000001")
	if !bound {
		t.Fatal("case not bound to driver")
	}
	if entity.IdentifierValue != id {
		t.Errorf("bound id = %s, want %s", entity.IdentifierValue, id)
	}
}

func TestDriverFlow_reselectRejected(t *testing.T) {
	r, _ := registerAll(t)

	if _, err := call(t, r, "142", registry.OpProcess, "DRV-000001", nil); err != nil {
		t.Fatalf("first select error = %v", err)
	}
	_, err := call(t, r, "142", registry.OpProcess, "DRV-000001", nil)
	if err == nil {
		t.Fatal("reselect should fail")
	}
	env, ok := err.(*model.ErrorEnvelope)
	if !ok || env.Code != model.ErrValidationError {
		t.Errorf("error = %v, want VALIDATION_ERROR envelope", err)
	}
}

func TestDriverFlow_selectExistingDriver(t *testing.T) {
	r, deps := registerAll(t)

	deps.Store.PutRecord(driverEntity, "774421", map[string]any{
		"first_name": "Amir", "ssn": "123-45-6789",
	})

	out, err := call(t, r, "142", registry.OpProcess, "DRV-000002", map[string]any{
		"driver_id": "774421",
	})
	if err != nil {
		t.Fatalf("process 142 error = %v", err)
	}
	if out["driver_id"] != "774421" {
		t.Errorf("driver_id = %v, want 774421", out["driver_id"])
	}
}

func TestDriverFlow_searchByLicense(t *testing.T) {
	r, deps := registerAll(t)

	deps.Store.PutRecord(driverEntity, "774421", map[string]any{
		"first_name":         "Amir",
		"last_name":          "Hassan",
		"tlc_license_number": "TLC-5566",
	})

	out, err := call(t, r, "142", registry.OpFetch, "DRV-000003", map[string]any{
		"tlc_license_number": "TLC-5566",
	})
	if err != nil {
		t.Fatalf("fetch 142 error = %v", err)
	}
	if out["driver_id"] != "774421" {
		t.Errorf("driver_id = %v, want 774421", out["driver_id"])
	}
	if out["first_name"] != "Amir" {
		t.Errorf("first_name = %v, want Amir", out["first_name"])
	}

	// No match yields an error message, not a failure.
	out, err = call(t, r, "142", registry.OpFetch, "DRV-000003", map[string]any{
		"ssn": "000-00-0000",
	})
	if err != nil {
		t.Fatalf("fetch 142 error = %v", err)
	}
	if out["error"] == nil {
		t.Error("expected an error message for an unmatched search")
	}

	// No parameters yields empty data.
	out, err = call(t, r, "142", registry.OpFetch, "DRV-000003", nil)
	if err != nil {
		t.Fatalf("fetch 142 error = %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected empty result, got %v", out)
	}
}

func TestDriverFlow_documentVerification(t *testing.T) {
	r, _ := registerAll(t)

	out, err := call(t, r, "142", registry.OpProcess, "DRV-000004", nil)
	if err != nil {
		t.Fatalf("select error = %v", err)
	}
	_ = out

	// Status shows nothing uploaded yet.
	status, err := call(t, r, "143", registry.OpFetch, "DRV-000004", nil)
	if err != nil {
		t.Fatalf("fetch 143 error = %v", err)
	}
	docs, ok := status["documents"].([]map[string]any)
	if !ok || len(docs) != len(driverMandatoryDocs)+len(driverOptionalDocs) {
		t.Fatalf("documents = %v, want %d entries", status["documents"],
			len(driverMandatoryDocs)+len(driverOptionalDocs))
	}

	// Verification fails while a mandatory document is missing.
	_, err = call(t, r, "143", registry.OpProcess, "DRV-000004", map[string]any{
		"documents": []any{
			map[string]any{"document_type": "dmv_license", "file_name": "dmv.pdf"},
		},
	})
	if err == nil {
		t.Fatal("verification should fail with missing mandatory documents")
	}

	// Uploading the rest satisfies verification.
	_, err = call(t, r, "143", registry.OpProcess, "DRV-000004", map[string]any{
		"documents": []any{
			map[string]any{"document_type": "tlc_license", "file_name": "tlc.pdf"},
			map[string]any{"document_type": "driver_ssn", "file_name": "ssn.pdf"},
			map[string]any{"document_type": "payee_proof", "file_name": "payee.pdf"},
		},
	})
	if err != nil {
		t.Fatalf("verification error = %v", err)
	}
}

func TestDriverFlow_detailsAndApproval(t *testing.T) {
	r, deps := registerAll(t)

	out, err := call(t, r, "142", registry.OpProcess, "DRV-000005", nil)
	if err != nil {
		t.Fatalf("select error = %v", err)
	}
	id := out["driver_id"].(string)

	if _, err := call(t, r, "144", registry.OpProcess, "DRV-000005", map[string]any{
		"first_name": "Amir", "last_name": "Hassan",
	}); err != nil {
		t.Fatalf("process 144 error = %v", err)
	}

	info, err := call(t, r, "144", registry.OpFetch, "DRV-000005", nil)
	if err != nil {
		t.Fatalf("fetch 144 error = %v", err)
	}
	if info["first_name"] != "Amir" {
		t.Errorf("first_name = %v, want Amir", info["first_name"])
	}

	// Approval with a mismatched driver id fails.
	if _, err := call(t, r, "145", registry.OpProcess, "DRV-000005", map[string]any{
		"driver_id": "000000",
	}); err == nil {
		t.Fatal("approval with wrong driver id should fail")
	}

	if _, err := call(t, r, "145", registry.OpProcess, "DRV-000005", map[string]any{
		"driver_id": id,
	}); err != nil {
		t.Fatalf("approval error = %v", err)
	}

	rec, _ := deps.Store.Record(driverEntity, id)
	if rec["driver_status"] != driverStatusRegistered {
		t.Errorf("driver_status = %v, want %q", rec["driver_status"], driverStatusRegistered)
	}

	summary, err := call(t, r, "145", registry.OpFetch, "DRV-000005", nil)
	if err != nil {
		t.Fatalf("fetch 145 error = %v", err)
	}
	if summary["driver_id"] != id {
		t.Errorf("summary driver_id = %v, want %s", summary["driver_id"], id)
	}
}

func TestMedallionFlow_lifecycle(t *testing.T) {
	r, deps := registerAll(t)

	deps.Store.PutRecord(medallionEntity, "9001", map[string]any{
		"medallion_number": "1A23",
		"agent_name":       "Fleet One",
	})

	// Lookup binds the medallion to the case.
	out, err := call(t, r, "162", registry.OpFetch, "MED-000001", map[string]any{
		"medallion_number": "1A23",
	})
	if err != nil {
		t.Fatalf("fetch 162 error = %v", err)
	}
	if out["medallion_id"] != "9001" {
		t.Errorf("medallion_id = %v, want 9001", out["medallion_id"])
	}

	// Unknown medallion returns empty data.
	empty, err := call(t, r, "162", registry.OpFetch, "MED-000002", map[string]any{
		"medallion_number": "9Z99",
	})
	if err != nil {
		t.Fatalf("fetch 162 error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty result, got %v", empty)
	}

	if _, err := call(t, r, "162", registry.OpProcess, "MED-000001", map[string]any{
		"agent_name": "Fleet Two",
	}); err != nil {
		t.Fatalf("process 162 error = %v", err)
	}
	rec, _ := deps.Store.Record(medallionEntity, "9001")
	if rec["agent_name"] != "Fleet Two" {
		t.Errorf("agent_name = %v, want Fleet Two", rec["agent_name"])
	}

	// Applying the update without the renewal receipt fails.
	if _, err := call(t, r, "163", registry.OpProcess, "MED-000001", nil); err == nil {
		t.Fatal("apply without renewal receipt should fail")
	}

	if _, err := call(t, r, "163", registry.OpProcess, "MED-000001", map[string]any{
		"documents": []any{
			map[string]any{"document_type": "renewal_receipt", "file_name": "receipt.pdf"},
		},
	}); err != nil {
		t.Fatalf("apply error = %v", err)
	}

	rec, _ = deps.Store.Record(medallionEntity, "9001")
	if rec["update_applied"] != true {
		t.Error("update_applied should be true after the apply step")
	}
}

func TestMedallionFlow_processWithoutBinding(t *testing.T) {
	r, _ := registerAll(t)

	_, err := call(t, r, "162", registry.OpProcess, "MED-000009", map[string]any{
		"agent_name": "Fleet Two",
	})
	if err == nil {
		t.Fatal("process without a bound medallion should fail")
	}
	env, ok := err.(*model.ErrorEnvelope)
	if !ok || env.Code != model.ErrValidationError {
		t.Errorf("error = %v, want VALIDATION_ERROR envelope", err)
	}
}

func TestStore_bindEntityConflict(t *testing.T) {
	s := NewStore()

	e := CaseEntity{CaseNo: "DRV-000001", EntityName: driverEntity, Identifier: "id", IdentifierValue: "1"}
	if err := s.BindEntity(e); err != nil {
		t.Fatalf("BindEntity() error = %v", err)
	}
	// Same binding is idempotent.
	if err := s.BindEntity(e); err != nil {
		t.Fatalf("rebinding same record error = %v", err)
	}
	// Different record is rejected.
	e.IdentifierValue = "2"
	if err := s.BindEntity(e); err == nil {
		t.Fatal("binding a different record should fail")
	}
}

func TestStore_recordCopySemantics(t *testing.T) {
	s := NewStore()
	s.PutRecord(driverEntity, "1", map[string]any{"name": "Amir"})

	rec, _ := s.Record(driverEntity, "1")
	rec["name"] = "changed"

	again, _ := s.Record(driverEntity, "1")
	if again["name"] != "Amir" {
		t.Error("Record should return a copy, not the stored map")
	}
}
