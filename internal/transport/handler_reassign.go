package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetops/caseflow/internal/bpm"
	"github.com/fleetops/caseflow/model"
)

func handleReassignCase(engine *bpm.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		caseNo := chi.URLParam(r, "caseNo")

		var body struct {
			NewUserID       string `json:"new_user_id"`
			NewRoleID       string `json:"new_role_id"`
			CurrentStepOnly bool   `json:"current_step_only"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		if body.NewUserID == "" {
			WriteValidationError(w, []model.FieldError{{
				Field:   "new_user_id",
				Code:    "missing",
				Message: "new_user_id is required",
			}})
			return
		}

		res, err := engine.Reassign(r.Context(), rctx, bpm.ReassignRequest{
			CaseNo:          caseNo,
			NewUserID:       body.NewUserID,
			NewRoleID:       body.NewRoleID,
			CurrentStepOnly: body.CurrentStepOnly,
		})
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}
