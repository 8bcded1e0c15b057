package flows

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fleetops/caseflow/internal/registry"
)

const driverEntity = "drivers"

// Driver statuses within a registration case.
const (
	driverStatusInProgress = "In Progress"
	driverStatusRegistered = "Registered"
)

// Documents a driver must upload before the registration can advance.
var (
	driverMandatoryDocs = []string{"dmv_license", "tlc_license", "driver_ssn", "payee_proof"}
	driverOptionalDocs  = []string{"violation_receipt", "others"}
)

// DriverRegistration is the flow module for new driver registration cases.
// Step tokens:
//
//	142: select or create the driver record the case is about
//	143: upload and verify the driver's documents
//	144: capture the driver's detail fields
//	145: final review and approval
type DriverRegistration struct {
	store  *Store
	logger *zap.Logger
}

// NewDriverRegistration creates the driver registration flow module.
func NewDriverRegistration(deps Deps) *DriverRegistration {
	return &DriverRegistration{store: deps.Store, logger: deps.Logger}
}

func (f *DriverRegistration) Name() string { return "driver-registration" }

// Register wires the flow's handlers into the registry.
func (f *DriverRegistration) Register(r *registry.Registry) error {
	regs := []struct {
		stepID, op, name string
		fn               registry.Handler
	}{
		{"142", registry.OpFetch, "Search driver", f.fetchSearchDriver},
		{"142", registry.OpProcess, "Select driver", f.processSelectDriver},
		{"143", registry.OpFetch, "Driver document status", f.fetchDocumentStatus},
		{"143", registry.OpProcess, "Verify driver documents", f.processVerifyDocuments},
		{"144", registry.OpFetch, "Driver information", f.fetchDriverInformation},
		{"144", registry.OpProcess, "Update driver information", f.processDriverInformation},
		{"145", registry.OpFetch, "Driver approval summary", f.fetchApprovalSummary},
		{"145", registry.OpProcess, "Approve driver", f.processApproval},
	}
	for _, reg := range regs {
		if err := r.Register(reg.stepID, reg.op, reg.name, reg.fn); err != nil {
			return err
		}
	}
	return nil
}

// fetchSearchDriver looks up an existing driver by SSN, TLC licence or DMV
// licence number so the case can re-activate an inactive record instead of
// creating a duplicate.
func (f *DriverRegistration) fetchSearchDriver(ctx context.Context, caseNo string, payload map[string]any) (map[string]any, error) {
	if len(payload) == 0 {
		return map[string]any{}, nil
	}

	var id string
	var rec map[string]any
	var found bool
	for _, field := range []string{"ssn", "tlc_license_number", "dmv_license_number"} {
		v, ok := payload[field]
		if !ok || v == "" {
			continue
		}
		id, rec, found = f.store.FindRecord(driverEntity, field, v)
		if found {
			break
		}
	}
	if !found {
		f.logger.Warn("no driver matched search parameters", zap.String("case_no", caseNo))
		return map[string]any{
			"error": "No driver found matching the provided criteria.",
		}, nil
	}

	return map[string]any{
		"driver_id":          id,
		"first_name":         rec["first_name"],
		"last_name":          rec["last_name"],
		"ssn":                rec["ssn"],
		"tlc_license_number": rec["tlc_license_number"],
		"dmv_license_number": rec["dmv_license_number"],
		"has_documents":      len(f.store.Documents(driverEntity, id, "")) > 0,
	}, nil
}

// processSelectDriver binds the case to a driver record, creating a
// provisional one when no existing driver was selected. A case that already
// has a driver cannot be rebound.
func (f *DriverRegistration) processSelectDriver(ctx context.Context, caseNo string, payload map[string]any) (map[string]any, error) {
	if _, bound := f.store.Entity(caseNo); bound {
		return nil, validationError("driver_id", "conflict", "driver cannot be reselected for this case")
	}

	id, _ := payload["driver_id"].(string)
	if id == "" {
		id = newRecordID()
		f.store.PutRecord(driverEntity, id, map[string]any{
			"driver_status": driverStatusInProgress,
		})
	} else if _, ok := f.store.Record(driverEntity, id); !ok {
		return nil, validationError("driver_id", "not_found", fmt.Sprintf("driver %s not found", id))
	}

	if err := f.store.BindEntity(CaseEntity{
		CaseNo:          caseNo,
		EntityName:      driverEntity,
		Identifier:      "id",
		IdentifierValue: id,
	}); err != nil {
		return nil, validationError("driver_id", "invalid", err.Error())
	}

	f.logger.Info("driver bound to case",
		zap.String("case_no", caseNo), zap.String("driver_id", id))
	return map[string]any{"driver_id": id}, nil
}

// fetchDocumentStatus reports which mandatory and optional documents have been
// uploaded for the case's driver.
func (f *DriverRegistration) fetchDocumentStatus(ctx context.Context, caseNo string, payload map[string]any) (map[string]any, error) {
	entity, bound := f.store.Entity(caseNo)
	if !bound {
		return map[string]any{}, nil
	}

	var status []map[string]any
	for _, docType := range append(append([]string{}, driverMandatoryDocs...), driverOptionalDocs...) {
		docs := f.store.Documents(driverEntity, entity.IdentifierValue, docType)
		status = append(status, map[string]any{
			"document_type": docType,
			"is_mandatory":  containsDoc(driverMandatoryDocs, docType),
			"uploaded":      len(docs) > 0,
		})
	}
	return map[string]any{"documents": status}, nil
}

// processVerifyDocuments records any uploads in the payload and then verifies
// every mandatory document is present.
func (f *DriverRegistration) processVerifyDocuments(ctx context.Context, caseNo string, payload map[string]any) (map[string]any, error) {
	entity, bound := f.store.Entity(caseNo)
	if !bound {
		return nil, validationError("case_no", "missing_entity", "no driver selected for this case")
	}

	if uploads, ok := payload["documents"].([]any); ok {
		for _, u := range uploads {
			doc, ok := u.(map[string]any)
			if !ok {
				continue
			}
			docType, _ := doc["document_type"].(string)
			fileName, _ := doc["file_name"].(string)
			if docType == "" {
				continue
			}
			f.store.AddDocument(driverEntity, entity.IdentifierValue, Document{
				DocumentType: docType,
				FileName:     fileName,
			})
		}
	}

	for _, docType := range driverMandatoryDocs {
		if len(f.store.Documents(driverEntity, entity.IdentifierValue, docType)) == 0 {
			return nil, validationError("documents", "missing",
				fmt.Sprintf("mandatory document %s not uploaded", docType))
		}
	}
	return map[string]any{"status": "Ok"}, nil
}

// fetchDriverInformation returns the driver's current record fields for the
// details capture step.
func (f *DriverRegistration) fetchDriverInformation(ctx context.Context, caseNo string, payload map[string]any) (map[string]any, error) {
	entity, bound := f.store.Entity(caseNo)
	if !bound {
		return map[string]any{}, nil
	}
	rec, ok := f.store.Record(driverEntity, entity.IdentifierValue)
	if !ok {
		return map[string]any{}, nil
	}
	rec["driver_id"] = entity.IdentifierValue
	return rec, nil
}

// processDriverInformation merges the submitted detail fields into the
// driver record.
func (f *DriverRegistration) processDriverInformation(ctx context.Context, caseNo string, payload map[string]any) (map[string]any, error) {
	entity, bound := f.store.Entity(caseNo)
	if !bound {
		return nil, validationError("case_no", "missing_entity", "no driver selected for this case")
	}
	if err := f.store.UpdateRecord(driverEntity, entity.IdentifierValue, payload); err != nil {
		return nil, validationError("driver_id", "invalid", err.Error())
	}
	return map[string]any{"status": "Ok"}, nil
}

// fetchApprovalSummary returns the full driver record plus its uploads for
// the final review.
func (f *DriverRegistration) fetchApprovalSummary(ctx context.Context, caseNo string, payload map[string]any) (map[string]any, error) {
	entity, bound := f.store.Entity(caseNo)
	if !bound {
		return map[string]any{}, nil
	}
	rec, _ := f.store.Record(driverEntity, entity.IdentifierValue)

	docs := f.store.Documents(driverEntity, entity.IdentifierValue, "")
	docViews := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		docViews = append(docViews, map[string]any{
			"document_type": d.DocumentType,
			"file_name":     d.FileName,
		})
	}

	return map[string]any{
		"driver_id":        entity.IdentifierValue,
		"driver_details":   rec,
		"driver_documents": docViews,
	}, nil
}

// processApproval marks the driver registered. The payload must name the same
// driver the case is bound to.
func (f *DriverRegistration) processApproval(ctx context.Context, caseNo string, payload map[string]any) (map[string]any, error) {
	entity, bound := f.store.Entity(caseNo)
	if !bound {
		return nil, validationError("case_no", "missing_entity", "no driver selected for this case")
	}
	if id, ok := payload["driver_id"].(string); ok && id != "" && id != entity.IdentifierValue {
		return nil, validationError("driver_id", "mismatch",
			"the driver being approved does not match the case's driver")
	}

	if err := f.store.UpdateRecord(driverEntity, entity.IdentifierValue, map[string]any{
		"driver_status": driverStatusRegistered,
	}); err != nil {
		return nil, validationError("driver_id", "invalid", err.Error())
	}

	f.logger.Info("driver registered",
		zap.String("case_no", caseNo), zap.String("driver_id", entity.IdentifierValue))
	return map[string]any{"status": "Ok"}, nil
}

func containsDoc(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
