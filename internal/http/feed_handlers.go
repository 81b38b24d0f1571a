package httpapi

import (
	"net/http"

	"github.com/fairyhunter13/agent-storefront/internal/feed"
	"github.com/fairyhunter13/agent-storefront/internal/model"
	"github.com/fairyhunter13/agent-storefront/internal/obs"
	"github.com/fairyhunter13/agent-storefront/internal/ranking"
	"github.com/fairyhunter13/agent-storefront/internal/rules"
)

const feedCacheControl = "public, max-age=60"

func (a *App) feedJSONHandler(w http.ResponseWriter, r *http.Request) {
	storeID := r.PathValue("storeID")
	in, err := a.loadInput(r.Context(), storeID, false)
	if err != nil {
		writeStoreError(w, r, err, "store_not_found")
		return
	}
	doc := feed.Assemble(in)
	a.recordVisit(r, storeID, "json")
	w.Header().Set("Cache-Control", feedCacheControl)
	writeJSON(w, http.StatusOK, doc)
}

func (a *App) feedMarkdownHandler(w http.ResponseWriter, r *http.Request) {
	storeID := r.PathValue("storeID")
	in, err := a.loadInput(r.Context(), storeID, false)
	if err != nil {
		writeStoreError(w, r, err, "store_not_found")
		return
	}
	body := feed.RenderMarkdown(feed.Assemble(in))
	a.recordVisit(r, storeID, "markdown")
	w.Header().Set("Cache-Control", feedCacheControl)
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

func (a *App) previewHandler(w http.ResponseWriter, r *http.Request) {
	in, err := a.loadInput(r.Context(), r.PathValue("storeID"), true)
	if err != nil {
		writeStoreError(w, r, err, "store_not_found")
		return
	}
	writeJSON(w, http.StatusOK, feed.AssemblePreview(in, ranking.PreviewLimit))
}

func (a *App) topPicksHandler(w http.ResponseWriter, r *http.Request) {
	in, err := a.loadInput(r.Context(), r.PathValue("storeID"), true)
	if err != nil {
		writeStoreError(w, r, err, "store_not_found")
		return
	}
	writeJSON(w, http.StatusOK, feed.AssemblePreview(in, ranking.TopPicksLimit))
}

func (a *App) ruleImpactHandler(w http.ResponseWriter, r *http.Request) {
	var draft model.Rule
	if !decodeJSON(w, r, &draft) {
		return
	}
	draft = rules.Normalize(draft)
	if err := rules.Validate(draft); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	storeID := r.PathValue("storeID")
	in, err := a.loadInput(r.Context(), storeID, true)
	if err != nil {
		writeStoreError(w, r, err, "store_not_found")
		return
	}
	imp := feed.CompareDraft(in, draft)
	obs.Logger.Info("rule_impact",
		"store_id", storeID,
		"field", draft.Field,
		"action", draft.Action,
		"matched", len(imp.Matched),
		"moved", len(imp.Moved),
		"request_id", RequestIDFromContext(r.Context()),
	)
	writeJSON(w, http.StatusOK, imp)
}
