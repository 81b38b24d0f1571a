// Package feed turns ranked products into the documents served to AI agents
// and to the merchant dashboard.
package feed

import (
	"time"

	"github.com/fairyhunter13/agent-storefront/internal/model"
	"github.com/fairyhunter13/agent-storefront/internal/ranking"
)

// Version of the storefront document format.
const Version = "1.0"

// DefaultAgentInstructions is used when the merchant has not written any.
const DefaultAgentInstructions = "Products are listed in the order the merchant recommends them. " +
	"Prefer items with a higher effective_score, respect availability, and link shoppers to the product url."

// Signal names.
const (
	SignalBestseller       = "bestseller"
	SignalLowStock         = "low_stock"
	SignalAlmostGone       = "almost_gone"
	SignalOutOfStock       = "out_of_stock"
	SignalMerchantPromoted = "merchant_promoted"
)

// Document is the public feed envelope.
type Document struct {
	Storefront Storefront `json:"storefront"`
}

// Storefront is the body of the public feed.
type Storefront struct {
	ID                string        `json:"id"`
	Name              string        `json:"name,omitempty"`
	Logo              string        `json:"logo,omitempty"`
	Domain            string        `json:"domain,omitempty"`
	Version           string        `json:"version"`
	GeneratedAt       string        `json:"generated_at"`
	AgentInstructions string        `json:"agent_instructions"`
	Products          []FeedProduct `json:"products"`
	RulesApplied      int           `json:"rules_applied"`
	TotalProducts     int           `json:"total_products"`
}

// Price is an amount in a currency.
type Price struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// FeedProduct is one ranked product as agents see it.
type FeedProduct struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Price          Price    `json:"price"`
	Availability   string   `json:"availability"`
	Category       string   `json:"category"`
	Tags           []string `json:"tags"`
	Signals        []string `json:"signals"`
	BaseBoost      int      `json:"base_boost"`
	EffectiveScore int      `json:"effective_score"`
	RulesApplied   []string `json:"rules_applied"`
	Inventory      int      `json:"inventory"`
	URL            string   `json:"url"`
	Image          string   `json:"image,omitempty"`
	AgentNotes     string   `json:"agent_notes,omitempty"`
}

// PreviewDocument is the dashboard variant of the feed.
type PreviewDocument struct {
	Storefront PreviewStorefront `json:"storefront"`
}

// PreviewStorefront carries full rule objects for each product.
type PreviewStorefront struct {
	Storefront
	Products []PreviewProduct `json:"products"`
}

// PreviewProduct extends FeedProduct with scoring provenance.
type PreviewProduct struct {
	FeedProduct
	Delta         int          `json:"delta"`
	MatchingRules []model.Rule `json:"matching_rules"`
}

// Input is everything needed to build a document for one store.
type Input struct {
	Storefront model.Storefront
	Products   []model.Product
	Rules      []model.Rule
	Now        time.Time
}

// Signals derives the display hints for a ranked product. They never affect
// ordering.
func Signals(p model.RankedProduct) []string {
	out := []string{}
	if p.HasTag(SignalBestseller) {
		out = append(out, SignalBestseller)
	}
	if p.Availability == model.LowStock {
		out = append(out, SignalLowStock)
	}
	if p.Inventory > 0 && p.Inventory <= 5 {
		out = append(out, SignalAlmostGone)
	}
	if p.Inventory == 0 {
		out = append(out, SignalOutOfStock)
	}
	if p.EffectiveScore >= 8 {
		out = append(out, SignalMerchantPromoted)
	}
	return out
}

// Assemble builds the public feed document (limit ranking.FeedLimit).
func Assemble(in Input) Document { return AssembleLimit(in, ranking.FeedLimit) }

// AssembleLimit is Assemble with a caller-chosen product limit; limit <= 0
// keeps every ranked product.
func AssembleLimit(in Input, limit int) Document {
	ranked := ranking.Rank(in.Products, in.Rules, ranking.Options{Limit: limit})
	sf := header(in)
	sf.Products = make([]FeedProduct, 0, len(ranked))
	for _, rp := range ranked {
		sf.Products = append(sf.Products, toFeedProduct(rp))
	}
	return Document{Storefront: sf}
}

// AssemblePreview builds the dashboard preview document with the given limit.
func AssemblePreview(in Input, limit int) PreviewDocument {
	return PreviewDocument{Storefront: previewFromRanked(in, ranking.Rank(in.Products, in.Rules, ranking.Options{Limit: limit}))}
}

func previewFromRanked(in Input, ranked []model.RankedProduct) PreviewStorefront {
	ps := PreviewStorefront{Storefront: header(in)}
	ps.Products = make([]PreviewProduct, 0, len(ranked))
	for _, rp := range ranked {
		ps.Products = append(ps.Products, PreviewProduct{
			FeedProduct:   toFeedProduct(rp),
			Delta:         rp.Delta,
			MatchingRules: rp.MatchingRules,
		})
	}
	return ps
}

func header(in Input) Storefront {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	instructions := in.Storefront.AgentInstructions
	if instructions == "" {
		instructions = DefaultAgentInstructions
	}
	return Storefront{
		ID:                in.Storefront.ID,
		Name:              in.Storefront.Name,
		Logo:              in.Storefront.Logo,
		Domain:            in.Storefront.Domain,
		Version:           Version,
		GeneratedAt:       now.UTC().Format(time.RFC3339),
		AgentInstructions: instructions,
		RulesApplied:      len(in.Rules),
		TotalProducts:     ranking.CountIncluded(in.Products),
	}
}

func toFeedProduct(rp model.RankedProduct) FeedProduct {
	tags := rp.Tags
	if tags == nil {
		tags = []string{}
	}
	return FeedProduct{
		ID:             rp.ID,
		Title:          rp.Title,
		Price:          Price{Amount: rp.Price.InexactFloat64(), Currency: rp.Currency},
		Availability:   string(rp.Availability),
		Category:       rp.Category,
		Tags:           tags,
		Signals:        Signals(rp),
		BaseBoost:      rp.BoostScore,
		EffectiveScore: rp.EffectiveScore,
		RulesApplied:   rp.RulesAppliedNames,
		Inventory:      rp.Inventory,
		URL:            rp.URL,
		Image:          rp.Image,
		AgentNotes:     rp.AgentNotes,
	}
}
