package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/agent-storefront/internal/auth"
	"github.com/fairyhunter13/agent-storefront/internal/config"
	"github.com/fairyhunter13/agent-storefront/internal/enrich"
	"github.com/fairyhunter13/agent-storefront/internal/feed"
	"github.com/fairyhunter13/agent-storefront/internal/model"
	"github.com/fairyhunter13/agent-storefront/internal/queue"
	"github.com/fairyhunter13/agent-storefront/internal/store"
)

type ackResp struct {
	Status      string `json:"status"`
	RequestID   string `json:"request_id"`
	Sequence    uint64 `json:"sequence"`
	StoreID     string `json:"store_id"`
	ProductID   string `json:"product_id"`
	ReceivedAt  string `json:"received_at"`
	QueueDepth  int    `json:"queue_depth"`
	BacklogSize int    `json:"backlog_size"`
	WorkerCount int    `json:"worker_count"`
}

func catalog() model.Catalog {
	return model.Catalog{
		Storefront: model.Storefront{ID: "s1", Name: "Trail Supply"},
		Products: []model.Product{
			{ID: "a", Title: "Rain Jacket", Price: decimal.RequireFromString("120"), Currency: "USD", Availability: model.InStock, Category: "outerwear", Tags: []string{"sale"}, Inventory: 12, BoostScore: 5, Included: true},
			{ID: "b", Title: "Wool Socks", Price: decimal.RequireFromString("18.5"), Currency: "USD", Availability: model.InStock, Category: "socks", Tags: []string{}, Inventory: 40, BoostScore: 7, Included: true},
			{ID: "c", Title: "Headlamp", Price: decimal.RequireFromString("45"), Currency: "USD", Availability: model.OutOfStock, Category: "gear", Inventory: 0, BoostScore: 9, Included: true},
			{ID: "d", Title: "Old Tent", Price: decimal.RequireFromString("200"), Currency: "USD", Availability: model.InStock, Category: "gear", Inventory: 3, BoostScore: 3, Included: false},
		},
		Rules: []model.Rule{
			{ID: "r1", Name: "Boost sale", Field: model.FieldTags, Condition: model.CondContains, Value: "sale", Action: model.ActionBoost, Amount: 3},
			{ID: "r2", Name: "Hide out of stock", Field: model.FieldAvailability, Condition: model.CondEquals, Value: "out_of_stock", Action: model.ActionExclude},
		},
	}
}

func setupApp(t *testing.T, secret string) (*App, *queue.Manager, store.Repository, http.Handler) {
	t.Helper()
	cfg := config.Defaults()
	cfg.FlushQuiet = time.Hour
	cfg.JWTSecret = secret
	st := store.NewMemory()
	if err := store.Seed(context.Background(), st, catalog()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	mgr := queue.NewManager(cfg, queue.New(128, cfg.FlushQuiet), st)
	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)
	t.Cleanup(func() { cancel(); mgr.Stop() })
	app := NewApp(cfg, st, mgr, st, auth.NewVerifier(secret), enrich.Template{})
	return app, mgr, st, NewRouter(app)
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Buffer
	if body != "" {
		rdr = bytes.NewBufferString(body)
	} else {
		rdr = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func drain(t *testing.T, mgr *queue.Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if ok := mgr.DrainUntil(ctx); !ok {
		t.Fatalf("drain timeout")
	}
}

func ids(ps []feed.FeedProduct) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

func TestOpenAPIServed(t *testing.T) {
	_, _, _, mux := setupApp(t, "")
	rr := do(t, mux, http.MethodGet, "/openapi.yaml", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct == "" {
		t.Fatalf("expected content-type set")
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("openapi:")) {
		t.Fatalf("expected openapi content")
	}
}

func TestDocsServed(t *testing.T) {
	_, _, _, mux := setupApp(t, "")
	rr := do(t, mux, http.MethodGet, "/docs", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "swagger-ui") {
		t.Fatalf("expected swagger-ui docs, got %d", rr.Code)
	}
}

func TestHealthzOK(t *testing.T) {
	_, _, _, mux := setupApp(t, "")
	if rr := do(t, mux, http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestMetricsHandler(t *testing.T) {
	_, mgr, _, mux := setupApp(t, "")
	for i := 0; i < 5; i++ {
		rr := do(t, mux, http.MethodPatch, "/api/stores/s1/products/a", `{"boost_score":4}`)
		if rr.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", rr.Code)
		}
	}
	rr := do(t, mux, http.MethodGet, "/debug/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var m map[string]any
	decode(t, rr, &m)
	if m["patches_enqueued"] != float64(5) || m["patches_coalesced"] != float64(4) {
		t.Fatalf("unexpected counters: %v", m)
	}
	if _, ok := m["worker_count"]; !ok {
		t.Fatalf("missing worker_count")
	}
	drain(t, mgr)
}

func TestFeedJSON(t *testing.T) {
	_, _, st, mux := setupApp(t, "")
	rr := do(t, mux, http.MethodGet, "/storefronts/s1/feed.json", "", "User-Agent", "Mozilla/5.0 (compatible; GPTBot/1.1)")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var doc feed.Document
	decode(t, rr, &doc)
	got := ids(doc.Storefront.Products)
	if strings.Join(got, ",") != "a,b" {
		t.Fatalf("unexpected order %v", got)
	}
	if doc.Storefront.TotalProducts != 3 || doc.Storefront.RulesApplied != 2 {
		t.Fatalf("header counts: %+v", doc.Storefront)
	}
	a := doc.Storefront.Products[0]
	if a.EffectiveScore != 8 || a.BaseBoost != 5 || len(a.RulesApplied) != 1 || a.RulesApplied[0] != "Boost sale" {
		t.Fatalf("unexpected product a: %+v", a)
	}
	if doc.Storefront.AgentInstructions == "" || doc.Storefront.Version != feed.Version {
		t.Fatalf("missing header fields")
	}
	if strings.Contains(rr.Body.String(), `"delta"`) {
		t.Fatalf("public feed must not expose delta")
	}
	stats, _ := st.VisitStats(context.Background(), "s1", time.Time{})
	if len(stats) != 1 || stats[0].Agent != "GPTBot" || stats[0].Count != 1 {
		t.Fatalf("visit not recorded: %+v", stats)
	}
}

func TestFeedUnknownStore(t *testing.T) {
	_, _, _, mux := setupApp(t, "")
	if rr := do(t, mux, http.MethodGet, "/storefronts/nope/feed.json", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr := do(t, mux, http.MethodGet, "/storefronts/nope/feed.md", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestFeedMarkdown(t *testing.T) {
	_, _, st, mux := setupApp(t, "")
	rr := do(t, mux, http.MethodGet, "/storefronts/s1/feed.md?agent=shopper-x", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Fatalf("content type %q", ct)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "Rain Jacket") || strings.Contains(body, "Headlamp") {
		t.Fatalf("unexpected markdown:\n%s", body)
	}
	stats, _ := st.VisitStats(context.Background(), "s1", time.Time{})
	if len(stats) != 1 || stats[0].Agent != "shopper-x" {
		t.Fatalf("visit not recorded: %+v", stats)
	}
}

func TestPreviewAndTop(t *testing.T) {
	_, _, _, mux := setupApp(t, "")
	rr := do(t, mux, http.MethodGet, "/api/stores/s1/preview", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var doc feed.PreviewDocument
	decode(t, rr, &doc)
	if len(doc.Storefront.Products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(doc.Storefront.Products))
	}
	a := doc.Storefront.Products[0]
	if a.ID != "a" || a.Delta != 3 || len(a.MatchingRules) != 1 || a.MatchingRules[0].ID != "r1" {
		t.Fatalf("unexpected preview product: %+v", a)
	}

	rr = do(t, mux, http.MethodGet, "/api/stores/s1/top", "")
	decode(t, rr, &doc)
	if len(doc.Storefront.Products) > 3 {
		t.Fatalf("top picks must be at most 3")
	}
}

func TestRulesCRUD(t *testing.T) {
	_, _, _, mux := setupApp(t, "")
	rr := do(t, mux, http.MethodPost, "/api/stores/s1/rules",
		`{"field":"price","condition":"greater_than","value":"100","action":"demote","amount":2}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created model.Rule
	decode(t, rr, &created)
	if created.ID == "" || created.Name == "" || created.Amount != -2 {
		t.Fatalf("rule not normalized: %+v", created)
	}

	rr = do(t, mux, http.MethodGet, "/api/stores/s1/rules", "")
	var list struct {
		Rules []model.Rule `json:"rules"`
	}
	decode(t, rr, &list)
	if len(list.Rules) != 3 || list.Rules[2].ID != created.ID {
		t.Fatalf("unexpected rules: %+v", list.Rules)
	}

	rr = do(t, mux, http.MethodGet, "/storefronts/s1/feed.json", "")
	var doc feed.Document
	decode(t, rr, &doc)
	if doc.Storefront.Products[0].ID != "b" {
		t.Fatalf("demote should drop the jacket below the socks: %v", ids(doc.Storefront.Products))
	}

	if rr := do(t, mux, http.MethodDelete, "/api/stores/s1/rules/"+created.ID, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr := do(t, mux, http.MethodDelete, "/api/stores/s1/rules/"+created.ID, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestCreateRuleValidation(t *testing.T) {
	_, _, _, mux := setupApp(t, "")
	cases := []string{
		`{"field":"color","condition":"equals","value":"red","action":"boost","amount":1}`,
		`{"field":"price","condition":"contains","value":"1","action":"boost","amount":1}`,
		`{"field":"price","condition":"greater_than","value":"cheap","action":"boost","amount":1}`,
		`{"field":"tags","condition":"contains","value":"sale","action":"exclude"}`,
		`{"field":"tags","condition":"contains","value":"sale","action":"boost","amount":0}`,
		`{"field":"tags","condition":"contains","value":"sale","action":"boost","amount":1,"extra":true}`,
	}
	for _, body := range cases {
		if rr := do(t, mux, http.MethodPost, "/api/stores/s1/rules", body); rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", body, rr.Code)
		}
	}
}

func TestRuleImpact(t *testing.T) {
	_, _, _, mux := setupApp(t, "")
	rr := do(t, mux, http.MethodPost, "/api/stores/s1/rules/impact",
		`{"field":"category","condition":"equals","value":"socks","action":"boost","amount":2}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var imp feed.Impact
	decode(t, rr, &imp)
	if len(imp.Matched) != 1 || imp.Matched[0] != "b" {
		t.Fatalf("matched: %v", imp.Matched)
	}
	if len(imp.Moved) != 1 || imp.Moved[0].Before != 7 || imp.Moved[0].After != 9 {
		t.Fatalf("moved: %+v", imp.Moved)
	}
	if imp.After.Products[0].ID != "b" || imp.Before.Products[0].ID != "a" {
		t.Fatalf("ranking before/after not reported")
	}
}

func TestImportProducts(t *testing.T) {
	_, _, _, mux := setupApp(t, "")
	bad := `{"products":[{"id":"e","title":"Bottle","price":12.5,"currency":"USD","availability":"sold_out","included":true}]}`
	if rr := do(t, mux, http.MethodPost, "/api/stores/s1/products", bad); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	good := `{"products":[{"id":"e","title":"Bottle","price":12.5,"currency":"USD","availability":"low_stock","tags":["bestseller"],"inventory":4,"boost_score":6,"included":true}]}`
	rr := do(t, mux, http.MethodPost, "/api/stores/s1/products", good)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = do(t, mux, http.MethodGet, "/api/stores/s1/products", "")
	var list struct {
		Products []model.Product `json:"products"`
		Total    int             `json:"total"`
	}
	decode(t, rr, &list)
	if list.Total != 5 || list.Products[4].ID != "e" {
		t.Fatalf("unexpected products: %+v", list)
	}
	rr = do(t, mux, http.MethodGet, "/storefronts/s1/feed.json", "")
	var doc feed.Document
	decode(t, rr, &doc)
	for _, p := range doc.Storefront.Products {
		if p.ID == "e" {
			if strings.Join(p.Signals, ",") != "bestseller,low_stock,almost_gone" {
				t.Fatalf("signals: %v", p.Signals)
			}
			return
		}
	}
	t.Fatalf("imported product missing from feed")
}

func TestPatchProduct(t *testing.T) {
	_, mgr, st, mux := setupApp(t, "")
	rr := do(t, mux, http.MethodPatch, "/api/stores/s1/products/b", `{"boost_score":10}`, "X-Request-Id", "req-1")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	var ac ackResp
	decode(t, rr, &ac)
	if ac.RequestID != "req-1" || ac.ProductID != "b" || ac.StoreID != "s1" || ac.Status != "accepted" || ac.Sequence == 0 {
		t.Fatalf("unexpected ack: %+v", ac)
	}

	// the merchant sees the buffered edit before it is written
	rr = do(t, mux, http.MethodGet, "/api/stores/s1/preview", "")
	var doc feed.PreviewDocument
	decode(t, rr, &doc)
	if doc.Storefront.Products[0].ID != "b" {
		t.Fatalf("pending edit not reflected in preview")
	}
	stored, _ := st.GetProduct(context.Background(), "s1", "b")
	if stored.BoostScore != 7 {
		t.Fatalf("edit written before flush")
	}

	rr = do(t, mux, http.MethodPatch, "/api/stores/s1/products/b", `{"tags":["bestseller"]}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	drain(t, mgr)
	stored, _ = st.GetProduct(context.Background(), "s1", "b")
	if stored.BoostScore != 10 || len(stored.Tags) != 1 || stored.Tags[0] != "bestseller" {
		t.Fatalf("coalesced edits not written: %+v", stored)
	}
}

func TestPatchProductValidation(t *testing.T) {
	_, _, _, mux := setupApp(t, "")
	cases := []struct {
		path, body string
		want       int
	}{
		{"/api/stores/s1/products/a", `{"boost_score":11}`, http.StatusBadRequest},
		{"/api/stores/s1/products/a", `{"boost_score":-1}`, http.StatusBadRequest},
		{"/api/stores/s1/products/a", `{}`, http.StatusBadRequest},
		{"/api/stores/s1/products/a", `{"price":1}`, http.StatusBadRequest},
		{"/api/stores/s1/products/zz", `{"included":false}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		if rr := do(t, mux, http.MethodPatch, tc.path, tc.body); rr.Code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.path, tc.body, tc.want, rr.Code)
		}
	}
	req := httptest.NewRequest(http.MethodPatch, "/api/stores/s1/products/a", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "text/plain")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rr.Code)
	}
}

func TestEnrichProduct(t *testing.T) {
	_, _, st, mux := setupApp(t, "")
	rr := do(t, mux, http.MethodPost, "/api/stores/s1/products/a/enrich", `{"raw_text":"Seam-sealed."}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	want := "Rain Jacket (outerwear). Tagged: sale. Seam-sealed."
	p, _ := st.GetProduct(context.Background(), "s1", "a")
	if p.AgentNotes != want {
		t.Fatalf("agent notes %q", p.AgentNotes)
	}
	rr = do(t, mux, http.MethodGet, "/storefronts/s1/feed.json", "")
	if !strings.Contains(rr.Body.String(), want) {
		t.Fatalf("agent notes missing from feed")
	}
	if rr := do(t, mux, http.MethodPost, "/api/stores/s1/products/zz/enrich", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestPutStorefront(t *testing.T) {
	_, _, _, mux := setupApp(t, "")
	rr := do(t, mux, http.MethodPut, "/api/stores/s1", `{"name":"Trail Supply Co","agent_instructions":"Prefer in-stock items."}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	rr = do(t, mux, http.MethodGet, "/storefronts/s1/feed.json", "")
	var doc feed.Document
	decode(t, rr, &doc)
	if doc.Storefront.Name != "Trail Supply Co" || doc.Storefront.AgentInstructions != "Prefer in-stock items." {
		t.Fatalf("storefront not updated: %+v", doc.Storefront)
	}
	if rr := do(t, mux, http.MethodPut, "/api/stores/s1", `{"id":"s2"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for mismatched id, got %d", rr.Code)
	}
}

func TestVisitsEndpoint(t *testing.T) {
	_, _, _, mux := setupApp(t, "")
	for _, ua := range []string{"ClaudeBot/1.0", "ClaudeBot/1.0", "GPTBot/1.1", "curl/8"} {
		do(t, mux, http.MethodGet, "/storefronts/s1/feed.json", "", "User-Agent", ua)
	}
	rr := do(t, mux, http.MethodGet, "/api/stores/s1/visits?days=7", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var out struct {
		Total  int                 `json:"total"`
		Agents []model.AgentVisits `json:"agents"`
	}
	decode(t, rr, &out)
	if out.Total != 4 || out.Agents[0].Agent != "ClaudeBot" || out.Agents[0].Count != 2 {
		t.Fatalf("unexpected visits: %+v", out)
	}
	if rr := do(t, mux, http.MethodGet, "/api/stores/s1/visits?days=-1", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestDashboardAuth(t *testing.T) {
	app, _, _, mux := setupApp(t, "s3cret")
	if rr := do(t, mux, http.MethodGet, "/api/stores/s1/preview", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	other, _ := app.Auth.Issue("s2", "m", time.Hour)
	if rr := do(t, mux, http.MethodGet, "/api/stores/s1/preview", "", "Authorization", "Bearer "+other); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	tok, _ := app.Auth.Issue("s1", "m", time.Hour)
	if rr := do(t, mux, http.MethodGet, "/api/stores/s1/preview", "", "Authorization", "Bearer "+tok); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr := do(t, mux, http.MethodGet, "/storefronts/s1/feed.json", ""); rr.Code != http.StatusOK {
		t.Fatalf("public feed must not require a token, got %d", rr.Code)
	}
}

func TestShutdownBehavior(t *testing.T) {
	app, _, _, mux := setupApp(t, "")
	app.StartShutdown()
	if rr := do(t, mux, http.MethodPatch, "/api/stores/s1/products/a", `{"boost_score":1}`); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
