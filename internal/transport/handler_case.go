package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fleetops/caseflow/internal/bpm"
	"github.com/fleetops/caseflow/model"
)

func handleCreateCase(engine *bpm.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		var body struct {
			CaseTypePrefix string `json:"case_type_prefix"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		if body.CaseTypePrefix == "" {
			WriteValidationError(w, []model.FieldError{{
				Field:   "case_type_prefix",
				Code:    "missing",
				Message: "case_type_prefix is required",
			}})
			return
		}

		c, err := engine.Create(r.Context(), rctx, body.CaseTypePrefix)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, c)
	}
}

func handleProcessStep(engine *bpm.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		caseNo := chi.URLParam(r, "caseNo")
		stepID := chi.URLParam(r, "stepID")

		payload := map[string]any{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		result, err := engine.ProcessStep(r.Context(), rctx, caseNo, stepID, payload)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, result)
	}
}

func handleMoveCase(engine *bpm.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		caseNo := chi.URLParam(r, "caseNo")

		var body struct {
			StepID string `json:"step_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		var (
			res *model.MoveResult
			err error
		)
		if body.StepID != "" {
			res, err = engine.MoveTo(r.Context(), rctx, caseNo, body.StepID)
		} else {
			res, err = engine.Move(r.Context(), rctx, caseNo)
		}
		if err != nil {
			WriteError(w, err)
			return
		}

		// A stopped move means the chain is exhausted: close the case rather
		// than surfacing an error to the caller.
		if res.Stopped {
			closed, err := engine.Close(r.Context(), rctx, caseNo)
			if err != nil {
				// A concurrent closer got there first. The case is closed
				// either way, so report success with the latest row.
				var env *model.ErrorEnvelope
				if !errors.As(err, &env) || env.Code != model.ErrCaseClosed {
					WriteError(w, err)
					return
				}
			}
			WriteJSON(w, http.StatusOK, map[string]any{
				"status": closed.Status,
				"case":   closed,
			})
			return
		}

		WriteJSON(w, http.StatusOK, map[string]any{
			"status": res.Case.Status,
			"case":   res.Case,
			"step":   res.Step,
		})
	}
}

func handleGetCase(engine *bpm.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		caseNo := chi.URLParam(r, "caseNo")

		steps, err := engine.CaseSteps(r.Context(), rctx, caseNo)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"case_no": caseNo,
			"steps":   steps,
		})
	}
}

func handleCaseHistory(engine *bpm.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		caseNo := chi.URLParam(r, "caseNo")

		rows, err := engine.History(r.Context(), caseNo)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"case_no": caseNo,
			"history": rows,
		})
	}
}

func handleFetchStep(engine *bpm.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		caseNo := chi.URLParam(r, "caseNo")
		stepID := chi.URLParam(r, "stepID")

		info, err := engine.StepInfo(r.Context(), rctx, caseNo, stepID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, info)
	}
}

func handleCasesByType(engine *bpm.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		caseTypeID := chi.URLParam(r, "caseType")

		var statuses []string
		if s := r.URL.Query().Get("status"); s != "" {
			for _, part := range strings.Split(s, ",") {
				if part = strings.TrimSpace(part); part != "" {
					statuses = append(statuses, part)
				}
			}
		}
		page := queryInt(r, "page", 1)
		perPage := queryInt(r, "per_page", 20)

		cases, total, err := engine.CasesByType(r.Context(), caseTypeID, statuses, page, perPage)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"data":        cases,
			"total_count": total,
			"page":        page,
			"per_page":    perPage,
		})
	}
}

// queryInt reads an integer query parameter, returning def when the parameter
// is absent or not a positive integer.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}
