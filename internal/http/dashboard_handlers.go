package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fairyhunter13/agent-storefront/internal/enrich"
	"github.com/fairyhunter13/agent-storefront/internal/model"
	"github.com/fairyhunter13/agent-storefront/internal/obs"
	"github.com/fairyhunter13/agent-storefront/internal/rules"
)

type patchAck struct {
	Status      string      `json:"status"`
	RequestID   string      `json:"request_id"`
	Sequence    uint64      `json:"sequence"`
	StoreID     string      `json:"store_id"`
	ProductID   string      `json:"product_id"`
	Pending     model.Patch `json:"pending"`
	ReceivedAt  string      `json:"received_at"`
	QueueDepth  int         `json:"queue_depth"`
	BacklogSize int         `json:"backlog_size"`
	WorkerCount int         `json:"worker_count"`
}

func (a *App) listRulesHandler(w http.ResponseWriter, r *http.Request) {
	rs, err := a.Store.ListRules(r.Context(), r.PathValue("storeID"))
	if err != nil {
		writeStoreError(w, r, err, "store_not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rs})
}

func (a *App) createRuleHandler(w http.ResponseWriter, r *http.Request) {
	var rule model.Rule
	if !decodeJSON(w, r, &rule) {
		return
	}
	rule = rules.Normalize(rule)
	if err := rules.Validate(rule); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	storeID := r.PathValue("storeID")
	if err := a.Store.CreateRule(r.Context(), storeID, rule); err != nil {
		writeStoreError(w, r, err, "store_not_found")
		return
	}
	obs.Logger.Info("rule_created", "store_id", storeID, "rule_id", rule.ID, "field", rule.Field, "action", rule.Action)
	writeJSON(w, http.StatusCreated, rule)
}

func (a *App) deleteRuleHandler(w http.ResponseWriter, r *http.Request) {
	storeID, ruleID := r.PathValue("storeID"), r.PathValue("ruleID")
	if err := a.Store.DeleteRule(r.Context(), storeID, ruleID); err != nil {
		writeStoreError(w, r, err, "rule_not_found")
		return
	}
	obs.Logger.Info("rule_deleted", "store_id", storeID, "rule_id", ruleID)
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) listProductsHandler(w http.ResponseWriter, r *http.Request) {
	storeID := r.PathValue("storeID")
	ps, err := a.Store.ListProducts(r.Context(), storeID)
	if err != nil {
		writeStoreError(w, r, err, "store_not_found")
		return
	}
	ps = a.overlayPending(storeID, ps)
	writeJSON(w, http.StatusOK, map[string]any{"products": ps, "total": len(ps)})
}

type importRequest struct {
	Products []model.Product `json:"products"`
}

func validateProduct(p model.Product) error {
	switch {
	case strings.TrimSpace(p.ID) == "":
		return fmt.Errorf("id is required")
	case strings.TrimSpace(p.Title) == "":
		return fmt.Errorf("product %s: title is required", p.ID)
	case p.Price.IsNegative():
		return fmt.Errorf("product %s: price must be >= 0", p.ID)
	case strings.TrimSpace(p.Currency) == "":
		return fmt.Errorf("product %s: currency is required", p.ID)
	case !p.Availability.Valid():
		return fmt.Errorf("product %s: availability must be in_stock, low_stock or out_of_stock", p.ID)
	case p.BoostScore < model.MinBoost || p.BoostScore > model.MaxBoost:
		return fmt.Errorf("product %s: boost_score must be between %d and %d", p.ID, model.MinBoost, model.MaxBoost)
	case p.Inventory < 0:
		return fmt.Errorf("product %s: inventory must be >= 0", p.ID)
	}
	return nil
}

func (a *App) importProductsHandler(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Products) == 0 {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "products must not be empty")
		return
	}
	for _, p := range req.Products {
		if err := validateProduct(p); err != nil {
			WriteJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
	}
	storeID := r.PathValue("storeID")
	if err := a.Store.UpsertProducts(r.Context(), storeID, req.Products); err != nil {
		writeStoreError(w, r, err, "store_not_found")
		return
	}
	obs.Logger.Info("products_imported", "store_id", storeID, "count", len(req.Products))
	writeJSON(w, http.StatusOK, map[string]any{"imported": len(req.Products)})
}

func (a *App) patchProductHandler(w http.ResponseWriter, r *http.Request) {
	if a.closing.Load() || a.Manager.IsShuttingDown() {
		WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
		return
	}
	var p model.Patch
	if !decodeJSON(w, r, &p) {
		return
	}
	if p.BoostScore == nil && p.Tags == nil && p.Included == nil {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "one of boost_score, tags or included is required")
		return
	}
	if p.BoostScore != nil && (*p.BoostScore < model.MinBoost || *p.BoostScore > model.MaxBoost) {
		WriteJSONError(w, http.StatusBadRequest, "validation_error",
			fmt.Sprintf("boost_score must be between %d and %d", model.MinBoost, model.MaxBoost))
		return
	}
	p.StoreID, p.ProductID = r.PathValue("storeID"), r.PathValue("productID")
	if _, err := a.Store.GetProduct(r.Context(), p.StoreID, p.ProductID); err != nil {
		writeStoreError(w, r, err, "product_not_found")
		return
	}
	seq, ok := a.Manager.Enqueue(p)
	if !ok {
		WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
		return
	}
	pending, _ := a.Manager.Pending(p.StoreID, p.ProductID)
	ac := patchAck{
		Status:      "accepted",
		RequestID:   RequestIDFromContext(r.Context()),
		Sequence:    seq,
		StoreID:     p.StoreID,
		ProductID:   p.ProductID,
		Pending:     pending,
		ReceivedAt:  a.now().UTC().Format(time.RFC3339),
		QueueDepth:  a.Manager.QueueDepth(),
		BacklogSize: a.Manager.BacklogSize(),
		WorkerCount: a.Manager.WorkerCount(),
	}
	writeJSON(w, http.StatusAccepted, ac)
	obs.Logger.Info("patch_accepted",
		"request_id", ac.RequestID,
		"sequence", ac.Sequence,
		"store_id", ac.StoreID,
		"product_id", ac.ProductID,
		"queue_depth", ac.QueueDepth,
		"backlog_size", ac.BacklogSize,
		"worker_count", ac.WorkerCount,
	)
}

type enrichRequest struct {
	RawText string `json:"raw_text"`
}

func (a *App) enrichProductHandler(w http.ResponseWriter, r *http.Request) {
	var req enrichRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	storeID, productID := r.PathValue("storeID"), r.PathValue("productID")
	p, err := a.Store.GetProduct(r.Context(), storeID, productID)
	if err != nil {
		writeStoreError(w, r, err, "product_not_found")
		return
	}
	ctx := r.Context()
	if a.Cfg.EnrichTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Cfg.EnrichTimeout)
		defer cancel()
	}
	notes, err := a.Enricher.Describe(ctx, enrich.FromProduct(p, req.RawText))
	if err != nil {
		obs.Logger.Warn("enrich_failed", "store_id", storeID, "product_id", productID, "error", err)
		WriteJSONError(w, http.StatusBadGateway, "enrich_failed", err.Error())
		return
	}
	if err := a.Store.SetAgentNotes(r.Context(), storeID, productID, notes); err != nil {
		writeStoreError(w, r, err, "product_not_found")
		return
	}
	obs.Logger.Info("product_enriched", "store_id", storeID, "product_id", productID, "chars", len(notes))
	writeJSON(w, http.StatusOK, map[string]string{"product_id": productID, "agent_notes": notes})
}

func (a *App) putStorefrontHandler(w http.ResponseWriter, r *http.Request) {
	var sf model.Storefront
	if !decodeJSON(w, r, &sf) {
		return
	}
	storeID := r.PathValue("storeID")
	if sf.ID != "" && sf.ID != storeID {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "id must match the path")
		return
	}
	sf.ID = storeID
	if err := a.Store.PutStorefront(r.Context(), sf); err != nil {
		writeStoreError(w, r, err, "store_not_found")
		return
	}
	obs.Logger.Info("storefront_updated", "store_id", storeID)
	writeJSON(w, http.StatusOK, sf)
}

const defaultVisitDays = 30

func (a *App) visitsHandler(w http.ResponseWriter, r *http.Request) {
	days := defaultVisitDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			WriteJSONError(w, http.StatusBadRequest, "validation_error", "days must be a positive integer")
			return
		}
		days = n
	}
	storeID := r.PathValue("storeID")
	since := a.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	stats, err := a.Store.VisitStats(r.Context(), storeID, since)
	if err != nil {
		writeStoreError(w, r, err, "store_not_found")
		return
	}
	total := 0
	for _, s := range stats {
		total += s.Count
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"store_id": storeID,
		"since":    since.Format(time.RFC3339),
		"total":    total,
		"agents":   stats,
	})
}
