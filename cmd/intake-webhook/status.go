package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	intake "github.com/goliatone/go-transcript-intake"
	"github.com/goliatone/go-transcript-intake/core"
	"github.com/goliatone/go-transcript-intake/query"
)

// statusRoutes serves read-only views of the subscription and the artifact
// index.
func statusRoutes(queries intake.Queries) http.Handler {
	r := chi.NewRouter()
	r.Get("/subscriptions/{id}", func(w http.ResponseWriter, req *http.Request) {
		subscription, err := queries.Subscription.Query(req.Context(), query.GetSubscriptionMessage{
			SubscriptionID: chi.URLParam(req, "id"),
		})
		writeResult(w, subscription, err)
	})
	r.Get("/artifacts", func(w http.ResponseWriter, req *http.Request) {
		entry, err := queries.Artifact.Query(req.Context(), query.GetArtifactMessage{
			StoragePath: req.URL.Query().Get("path"),
		})
		writeResult(w, entry, err)
	})
	r.Get("/projects/{project}/artifacts", func(w http.ResponseWriter, req *http.Request) {
		limit := 0
		if raw := req.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeResult(w, nil, core.BadInputError("limit must be an integer", map[string]any{"limit": raw}))
				return
			}
			limit = parsed
		}
		records, err := queries.ProjectArtifacts.Query(req.Context(), query.ListProjectArtifactsMessage{
			ProjectName: chi.URLParam(req, "project"),
			Limit:       limit,
		})
		writeResult(w, map[string]any{"items": records, "count": len(records)}, err)
	})
	return r
}

func writeResult(w http.ResponseWriter, payload any, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		mapped := core.MapError(err)
		if mapped.Code == 0 {
			mapped.Code = http.StatusInternalServerError
		}
		w.WriteHeader(mapped.Code)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{
			"code":      mapped.Code,
			"text_code": mapped.TextCode,
			"message":   mapped.Message,
		}})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(payload)
}
