package httpapi

import (
	"expvar"
	"net/http"
)

// NewRouter registers HTTP routes and returns the handler with middleware.
func NewRouter(app *App) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /storefronts/{storeID}/feed.json", app.feedJSONHandler)
	mux.HandleFunc("GET /storefronts/{storeID}/feed.md", app.feedMarkdownHandler)

	mux.HandleFunc("GET /api/stores/{storeID}/preview", app.requireStore(app.previewHandler))
	mux.HandleFunc("GET /api/stores/{storeID}/top", app.requireStore(app.topPicksHandler))
	mux.HandleFunc("POST /api/stores/{storeID}/rules/impact", app.requireStore(app.ruleImpactHandler))
	mux.HandleFunc("GET /api/stores/{storeID}/rules", app.requireStore(app.listRulesHandler))
	mux.HandleFunc("POST /api/stores/{storeID}/rules", app.requireStore(app.createRuleHandler))
	mux.HandleFunc("DELETE /api/stores/{storeID}/rules/{ruleID}", app.requireStore(app.deleteRuleHandler))
	mux.HandleFunc("GET /api/stores/{storeID}/products", app.requireStore(app.listProductsHandler))
	mux.HandleFunc("POST /api/stores/{storeID}/products", app.requireStore(app.importProductsHandler))
	mux.HandleFunc("PATCH /api/stores/{storeID}/products/{productID}", app.requireStore(app.patchProductHandler))
	mux.HandleFunc("POST /api/stores/{storeID}/products/{productID}/enrich", app.requireStore(app.enrichProductHandler))
	mux.HandleFunc("PUT /api/stores/{storeID}", app.requireStore(app.putStorefrontHandler))
	mux.HandleFunc("GET /api/stores/{storeID}/visits", app.requireStore(app.visitsHandler))

	mux.HandleFunc("GET /healthz", app.healthHandler)
	mux.HandleFunc("GET /debug/metrics", app.metricsHandler)
	mux.Handle("GET /debug/vars", expvar.Handler())
	mux.HandleFunc("GET /openapi.yaml", app.openapiHandler)
	mux.HandleFunc("GET /docs", app.docsHandler)
	return WithRequestID(WithLogging(WithRecover(mux)))
}
