// Package store persists storefronts, products, rules and agent visits.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fairyhunter13/agent-storefront/internal/model"
)

// ErrNotFound is returned when a store, product or rule does not exist.
var ErrNotFound = errors.New("not found")

// Repository is the storage contract used by the HTTP layer, the write
// buffer and background jobs. ListProducts and ListRules return rows in
// insertion order; ranking relies on that for tie-breaks.
type Repository interface {
	GetStorefront(ctx context.Context, storeID string) (model.Storefront, error)
	PutStorefront(ctx context.Context, sf model.Storefront) error

	ListProducts(ctx context.Context, storeID string) ([]model.Product, error)
	GetProduct(ctx context.Context, storeID, productID string) (model.Product, error)
	UpsertProducts(ctx context.Context, storeID string, products []model.Product) error
	ApplyPatch(ctx context.Context, p model.Patch) (bool, error)
	SetAgentNotes(ctx context.Context, storeID, productID, notes string) error

	ListRules(ctx context.Context, storeID string) ([]model.Rule, error)
	CreateRule(ctx context.Context, storeID string, r model.Rule) error
	DeleteRule(ctx context.Context, storeID, ruleID string) error

	RecordVisit(ctx context.Context, v model.Visit) error
	VisitStats(ctx context.Context, storeID string, since time.Time) ([]model.AgentVisits, error)
	PruneVisits(ctx context.Context, before time.Time) (int64, error)

	Close() error
}

// Open returns a Repository for dsn. An empty dsn selects the in-memory
// store, postgres:// URLs select Postgres and anything else is treated as a
// SQLite file path.
func Open(ctx context.Context, dsn string) (Repository, error) {
	switch {
	case dsn == "":
		return NewMemory(), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return OpenPostgres(ctx, dsn)
	default:
		return OpenSQLite(ctx, dsn)
	}
}

// Seed writes a whole catalog: storefront, products and rules.
func Seed(ctx context.Context, repo Repository, c model.Catalog) error {
	if err := repo.PutStorefront(ctx, c.Storefront); err != nil {
		return err
	}
	if err := repo.UpsertProducts(ctx, c.Storefront.ID, c.Products); err != nil {
		return err
	}
	existing, err := repo.ListRules(ctx, c.Storefront.ID)
	if err != nil {
		return err
	}
	have := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		have[r.ID] = struct{}{}
	}
	for _, r := range c.Rules {
		if _, ok := have[r.ID]; ok {
			continue
		}
		if err := repo.CreateRule(ctx, c.Storefront.ID, r); err != nil {
			return err
		}
	}
	return nil
}
