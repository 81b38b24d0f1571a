package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/agent-storefront/internal/auth"
	"github.com/fairyhunter13/agent-storefront/internal/config"
	"github.com/fairyhunter13/agent-storefront/internal/enrich"
	"github.com/fairyhunter13/agent-storefront/internal/events"
	"github.com/fairyhunter13/agent-storefront/internal/feed"
	httpopenapi "github.com/fairyhunter13/agent-storefront/internal/http/openapi"
	"github.com/fairyhunter13/agent-storefront/internal/model"
	"github.com/fairyhunter13/agent-storefront/internal/queue"
	"github.com/fairyhunter13/agent-storefront/internal/store"
)

type App struct {
	Cfg      config.Config
	Store    store.Repository
	Manager  *queue.Manager
	Events   events.Sink
	Auth     *auth.Verifier
	Enricher enrich.Enricher

	closing atomic.Bool
	started time.Time
	now     func() time.Time
}

func NewApp(cfg config.Config, st store.Repository, m *queue.Manager, sink events.Sink, v *auth.Verifier, e enrich.Enricher) *App {
	if e == nil {
		e = enrich.Template{}
	}
	return &App{Cfg: cfg, Store: st, Manager: m, Events: sink, Auth: v, Enricher: e, started: time.Now(), now: time.Now}
}

func (a *App) StartShutdown() {
	a.closing.Store(true)
	a.Manager.CloseIntake()
}

// loadInput fetches storefront, products and rules concurrently. withPending
// overlays buffered edits so the merchant sees their own changes before the
// write buffer flushes.
func (a *App) loadInput(ctx context.Context, storeID string, withPending bool) (feed.Input, error) {
	var in feed.Input
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sf, err := a.Store.GetStorefront(gctx, storeID)
		in.Storefront = sf
		return err
	})
	g.Go(func() error {
		ps, err := a.Store.ListProducts(gctx, storeID)
		in.Products = ps
		return err
	})
	g.Go(func() error {
		rs, err := a.Store.ListRules(gctx, storeID)
		in.Rules = rs
		return err
	})
	if err := g.Wait(); err != nil {
		return feed.Input{}, err
	}
	if in.Storefront.AgentInstructions == "" {
		in.Storefront.AgentInstructions = a.Cfg.AgentInstructions
	}
	if withPending {
		in.Products = a.overlayPending(storeID, in.Products)
	}
	in.Now = a.now()
	return in, nil
}

func (a *App) overlayPending(storeID string, ps []model.Product) []model.Product {
	for i, p := range ps {
		if patch, ok := a.Manager.Pending(storeID, p.ID); ok {
			ps[i] = patch.Apply(p)
		}
	}
	return ps
}

func (a *App) recordVisit(r *http.Request, storeID, format string) {
	if a.Events == nil {
		return
	}
	// a failed visit write never fails the feed read
	_ = a.Events.RecordVisit(r.Context(), events.NewVisit(r, storeID, format, a.now()))
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if a.closing.Load() {
		status = "shutting_down"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (a *App) metricsHandler(w http.ResponseWriter, r *http.Request) {
	enq, merged, proc, backlog, depth := a.Manager.QueueMetrics()
	m := map[string]any{
		"patches_enqueued":  enq,
		"patches_coalesced": merged,
		"patches_written":   proc,
		"backlog_size":      backlog,
		"queue_depth":       depth,
		"worker_count":      a.Manager.WorkerCount(),
		"uptime_sec":        time.Since(a.started).Seconds(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m)
}

func (a *App) openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(httpopenapi.YAML)
}

func (a *App) docsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Agent Storefront API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>`
	_, _ = w.Write([]byte(html))
}
