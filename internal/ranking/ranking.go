// Package ranking orders a store's products for agents.
package ranking

import (
	"sort"

	"github.com/fairyhunter13/agent-storefront/internal/model"
	"github.com/fairyhunter13/agent-storefront/internal/rules"
)

// Limits used by the different callers.
const (
	FeedLimit     = 50
	PreviewLimit  = 20
	TopPicksLimit = 3
)

// Options configures Rank. Limit <= 0 keeps every eligible product.
type Options struct {
	Limit int
}

// Rank drops products the merchant switched off, scores the rest with
// rules.Evaluate, drops rule-excluded products and returns the remainder
// sorted by effective score. Ties keep input order.
func Rank(products []model.Product, rs []model.Rule, opts Options) []model.RankedProduct {
	out := make([]model.RankedProduct, 0, len(products))
	for _, p := range products {
		if !p.Included {
			continue
		}
		es := rules.Evaluate(p, rs)
		if es.Excluded {
			continue
		}
		out = append(out, model.RankedProduct{
			Product:           p,
			EffectiveScore:    es.Score,
			Delta:             es.Delta,
			MatchingRules:     es.MatchingRules,
			RulesAppliedNames: rules.Names(es.MatchingRules),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EffectiveScore > out[j].EffectiveScore })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

// CountIncluded returns how many products the merchant has switched on.
func CountIncluded(products []model.Product) int {
	n := 0
	for _, p := range products {
		if p.Included {
			n++
		}
	}
	return n
}
