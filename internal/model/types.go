// Package model defines domain types used by the service.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Availability is the stock state a merchant reports for a product.
type Availability string

const (
	InStock    Availability = "in_stock"
	LowStock   Availability = "low_stock"
	OutOfStock Availability = "out_of_stock"
)

// Valid reports whether a is one of the known availability states.
func (a Availability) Valid() bool {
	switch a {
	case InStock, LowStock, OutOfStock:
		return true
	}
	return false
}

// Boost score bounds. Effective scores are clamped into the same range.
const (
	MinBoost = 0
	MaxBoost = 10
)

// Product represents a catalog entry of a merchant store.
type Product struct {
	ID           string          `json:"id" yaml:"id"`
	Title        string          `json:"title" yaml:"title"`
	Price        decimal.Decimal `json:"price" yaml:"price"`
	Currency     string          `json:"currency" yaml:"currency"`
	Availability Availability    `json:"availability" yaml:"availability"`
	Category     string          `json:"category" yaml:"category"`
	Tags         []string        `json:"tags" yaml:"tags"`
	Margin       *float64        `json:"margin,omitempty" yaml:"margin,omitempty"`
	Inventory    int             `json:"inventory" yaml:"inventory"`
	BoostScore   int             `json:"boost_score" yaml:"boost_score"`
	Included     bool            `json:"included" yaml:"included"`
	URL          string          `json:"url,omitempty" yaml:"url,omitempty"`
	Image        string          `json:"image,omitempty" yaml:"image,omitempty"`
	AgentNotes   string          `json:"agent_notes,omitempty" yaml:"agent_notes,omitempty"`
}

// HasTag reports whether tag is stored on the product, compared case-sensitively.
func (p Product) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// RuleField names the product attribute a rule inspects.
type RuleField string

const (
	FieldTags         RuleField = "tags"
	FieldMargin       RuleField = "margin"
	FieldPrice        RuleField = "price"
	FieldCategory     RuleField = "category"
	FieldAvailability RuleField = "availability"
)

// RuleCondition is the comparison a rule applies to its field.
type RuleCondition string

const (
	CondContains    RuleCondition = "contains"
	CondGreaterThan RuleCondition = "greater_than"
	CondLessThan    RuleCondition = "less_than"
	CondEquals      RuleCondition = "equals"
)

// RuleAction is what happens to a product a rule matches.
type RuleAction string

const (
	ActionBoost   RuleAction = "boost"
	ActionDemote  RuleAction = "demote"
	ActionExclude RuleAction = "exclude"
)

// Rule is a merchandising directive. Amount is positive for boost, negative
// for demote and zero for exclude.
type Rule struct {
	ID        string        `json:"id" yaml:"id"`
	Name      string        `json:"name" yaml:"name"`
	Field     RuleField     `json:"field" yaml:"field"`
	Condition RuleCondition `json:"condition" yaml:"condition"`
	Value     string        `json:"value" yaml:"value"`
	Action    RuleAction    `json:"action" yaml:"action"`
	Amount    int           `json:"amount" yaml:"amount"`
}

// EffectiveScore is the derived scoring outcome for one product. Delta is
// reported unclamped; Score is always within [MinBoost, MaxBoost].
type EffectiveScore struct {
	Score         int    `json:"effective_score"`
	Delta         int    `json:"delta"`
	MatchingRules []Rule `json:"matching_rules"`
	Excluded      bool   `json:"excluded"`
}

// RankedProduct is a product together with the score that placed it.
type RankedProduct struct {
	Product
	EffectiveScore    int      `json:"effective_score"`
	Delta             int      `json:"delta"`
	MatchingRules     []Rule   `json:"matching_rules"`
	RulesAppliedNames []string `json:"rules_applied_names"`
}

// Storefront holds the merchant-facing identity of a store.
type Storefront struct {
	ID                string `json:"id" yaml:"id"`
	Name              string `json:"name,omitempty" yaml:"name,omitempty"`
	Logo              string `json:"logo,omitempty" yaml:"logo,omitempty"`
	Domain            string `json:"domain,omitempty" yaml:"domain,omitempty"`
	AgentInstructions string `json:"agent_instructions,omitempty" yaml:"agent_instructions,omitempty"`
}

// Visit records one read of a storefront feed by an external agent.
type Visit struct {
	ID        string    `json:"id"`
	StoreID   string    `json:"store_id"`
	Agent     string    `json:"agent"`
	Format    string    `json:"format"`
	UserAgent string    `json:"user_agent,omitempty"`
	VisitedAt time.Time `json:"visited_at"`
}

// AgentVisits aggregates visits per agent.
type AgentVisits struct {
	Agent     string    `json:"agent"`
	Count     int       `json:"count"`
	LastVisit time.Time `json:"last_visit"`
}

// Patch is a partial product edit coming from the dashboard. Nil fields are
// left untouched. Sequence orders patches for the same product.
type Patch struct {
	StoreID    string    `json:"-"`
	ProductID  string    `json:"-"`
	BoostScore *int      `json:"boost_score,omitempty"`
	Tags       *[]string `json:"tags,omitempty"`
	Included   *bool     `json:"included,omitempty"`
	Sequence   uint64    `json:"-"`
}

// Merge folds later into p. Fields set on later win.
func (p Patch) Merge(later Patch) Patch {
	if later.BoostScore != nil {
		p.BoostScore = later.BoostScore
	}
	if later.Tags != nil {
		p.Tags = later.Tags
	}
	if later.Included != nil {
		p.Included = later.Included
	}
	if later.Sequence > p.Sequence {
		p.Sequence = later.Sequence
	}
	return p
}

// Apply returns prod with the patch fields written over it.
func (p Patch) Apply(prod Product) Product {
	if p.BoostScore != nil {
		prod.BoostScore = *p.BoostScore
	}
	if p.Tags != nil {
		prod.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.Included != nil {
		prod.Included = *p.Included
	}
	return prod
}

// Catalog is a full store snapshot, used for seeding and offline ranking.
type Catalog struct {
	Storefront Storefront `json:"storefront" yaml:"storefront"`
	Products   []Product  `json:"products" yaml:"products"`
	Rules      []Rule     `json:"rules" yaml:"rules"`
}
