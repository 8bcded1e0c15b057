package flows

import (
	"context"

	"go.uber.org/zap"

	"github.com/fleetops/caseflow/internal/registry"
)

const medallionEntity = "medallions"

// MedallionUpdate is the flow module for medallion update cases. Step tokens:
//
//	162: look up the medallion and capture the updated details
//	163: verify the renewal paperwork and apply the update
type MedallionUpdate struct {
	store  *Store
	logger *zap.Logger
}

// NewMedallionUpdate creates the medallion update flow module.
func NewMedallionUpdate(deps Deps) *MedallionUpdate {
	return &MedallionUpdate{store: deps.Store, logger: deps.Logger}
}

func (f *MedallionUpdate) Name() string { return "medallion-update" }

// Register wires the flow's handlers into the registry.
func (f *MedallionUpdate) Register(r *registry.Registry) error {
	regs := []struct {
		stepID, op, name string
		fn               registry.Handler
	}{
		{"162", registry.OpFetch, "Medallion details", f.fetchMedallionDetails},
		{"162", registry.OpProcess, "Enter medallion details", f.processMedallionDetails},
		{"163", registry.OpFetch, "Renewal paperwork", f.fetchRenewalPaperwork},
		{"163", registry.OpProcess, "Apply medallion update", f.processApplyUpdate},
	}
	for _, reg := range regs {
		if err := r.Register(reg.stepID, reg.op, reg.name, reg.fn); err != nil {
			return err
		}
	}
	return nil
}

// fetchMedallionDetails looks up the medallion named in the payload, binds it
// to the case and returns its current details. Once bound, subsequent fetches
// ignore the lookup parameter.
func (f *MedallionUpdate) fetchMedallionDetails(ctx context.Context, caseNo string, payload map[string]any) (map[string]any, error) {
	var id string
	var rec map[string]any

	if entity, bound := f.store.Entity(caseNo); bound {
		id = entity.IdentifierValue
		rec, _ = f.store.Record(medallionEntity, id)
	} else if lookup, ok := payload["medallion_number"].(string); ok && lookup != "" {
		var found bool
		id, rec, found = f.store.FindRecord(medallionEntity, "medallion_number", lookup)
		if !found {
			f.logger.Info("no medallion found",
				zap.String("case_no", caseNo), zap.String("medallion_number", lookup))
			return map[string]any{}, nil
		}
		if err := f.store.BindEntity(CaseEntity{
			CaseNo:          caseNo,
			EntityName:      medallionEntity,
			Identifier:      "id",
			IdentifierValue: id,
		}); err != nil {
			return nil, validationError("medallion_number", "conflict", err.Error())
		}
	} else {
		return map[string]any{}, nil
	}

	if rec == nil {
		return map[string]any{}, nil
	}
	rec["medallion_id"] = id
	rec["object_type"] = "medallion"
	rec["has_renewal_receipt"] = len(f.store.Documents(medallionEntity, id, "renewal_receipt")) > 0
	return rec, nil
}

// processMedallionDetails merges the submitted detail fields into the bound
// medallion record.
func (f *MedallionUpdate) processMedallionDetails(ctx context.Context, caseNo string, payload map[string]any) (map[string]any, error) {
	entity, bound := f.store.Entity(caseNo)
	if !bound {
		return nil, validationError("case_no", "missing_entity", "medallion not found for this case")
	}
	if err := f.store.UpdateRecord(medallionEntity, entity.IdentifierValue, payload); err != nil {
		return nil, validationError("medallion_id", "invalid", err.Error())
	}
	return map[string]any{"status": "Ok"}, nil
}

// fetchRenewalPaperwork reports the renewal documents uploaded for the bound
// medallion.
func (f *MedallionUpdate) fetchRenewalPaperwork(ctx context.Context, caseNo string, payload map[string]any) (map[string]any, error) {
	entity, bound := f.store.Entity(caseNo)
	if !bound {
		return map[string]any{}, nil
	}

	var docViews []map[string]any
	for _, docType := range []string{"renewal_receipt", "fs6"} {
		docs := f.store.Documents(medallionEntity, entity.IdentifierValue, docType)
		docViews = append(docViews, map[string]any{
			"document_type": docType,
			"uploaded":      len(docs) > 0,
		})
	}
	return map[string]any{"documents": docViews}, nil
}

// processApplyUpdate records any renewal uploads and stamps the update as
// applied. The renewal receipt is required.
func (f *MedallionUpdate) processApplyUpdate(ctx context.Context, caseNo string, payload map[string]any) (map[string]any, error) {
	entity, bound := f.store.Entity(caseNo)
	if !bound {
		return nil, validationError("case_no", "missing_entity", "medallion not found for this case")
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
			f.store.AddDocument(medallionEntity, entity.IdentifierValue, Document{
				DocumentType: docType,
				FileName:     fileName,
			})
		}
	}

	if len(f.store.Documents(medallionEntity, entity.IdentifierValue, "renewal_receipt")) == 0 {
		return nil, validationError("documents", "missing", "renewal receipt not uploaded")
	}

	if err := f.store.UpdateRecord(medallionEntity, entity.IdentifierValue, map[string]any{
		"update_applied": true,
	}); err != nil {
		return nil, validationError("medallion_id", "invalid", err.Error())
	}

	f.logger.Info("medallion update applied",
		zap.String("case_no", caseNo), zap.String("medallion_id", entity.IdentifierValue))
	return map[string]any{"status": "Ok"}, nil
}
