package transport

import (
	"net/http"
	"time"

	"github.com/fleetops/caseflow/internal/bpm"
	"github.com/fleetops/caseflow/model"
)

func handleWorkbasket(engine *bpm.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		from, ferr := queryDate(r, "from")
		to, terr := queryDate(r, "to")
		if ferr != nil || terr != nil {
			WriteValidationError(w, []model.FieldError{{
				Field:   "from",
				Code:    "invalid",
				Message: "date filters must use the YYYY-MM-DD format",
			}})
			return
		}
		if to != nil {
			// The upper bound covers the whole named day.
			end := to.Add(24*time.Hour - time.Second)
			to = &end
		}
		page := queryInt(r, "page", 1)
		perPage := queryInt(r, "per_page", 20)

		basket, err := engine.Workbasket(r.Context(), rctx, from, to, page, perPage)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, basket)
	}
}

// queryDate parses an optional YYYY-MM-DD query parameter.
func queryDate(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
