// Package rules evaluates merchandising rules against products.
//
// Evaluate is the single scoring implementation used by every caller: the
// public feed, the dashboard previews, the rules-impact compare and the
// offline CLI. It performs no I/O and never fails; input it cannot make
// sense of simply does not match.
package rules

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/agent-storefront/internal/model"
)

// Evaluate applies rules, in the given order, to p.
func Evaluate(p model.Product, rules []model.Rule) model.EffectiveScore {
	res := model.EffectiveScore{MatchingRules: []model.Rule{}}
	for _, r := range rules {
		if r.Action == model.ActionExclude {
			// Exclusion is only defined for availability equality.
			if r.Field == model.FieldAvailability && string(p.Availability) == r.Value {
				res.Excluded = true
				res.MatchingRules = append(res.MatchingRules, r)
			}
			continue
		}
		if !Matches(p, r) {
			continue
		}
		res.Delta += r.Amount
		res.MatchingRules = append(res.MatchingRules, r)
	}
	res.Score = Clamp(p.BoostScore + res.Delta)
	return res
}

// Matches reports whether r's field/condition test holds for p. The action
// is not considered.
func Matches(p model.Product, r model.Rule) bool {
	switch r.Field {
	case model.FieldTags:
		return r.Condition == model.CondContains && p.HasTag(r.Value)
	case model.FieldCategory:
		return r.Condition == model.CondEquals && p.Category == r.Value
	case model.FieldAvailability:
		return r.Condition == model.CondEquals && string(p.Availability) == r.Value
	case model.FieldPrice:
		return compare(p.Price, r)
	case model.FieldMargin:
		if p.Margin == nil {
			return false
		}
		return compare(decimal.NewFromFloat(*p.Margin), r)
	}
	return false
}

func compare(v decimal.Decimal, r model.Rule) bool {
	operand, ok := ParseOperand(r.Value)
	if !ok {
		return false
	}
	switch r.Condition {
	case model.CondGreaterThan:
		return v.GreaterThan(operand)
	case model.CondLessThan:
		return v.LessThan(operand)
	}
	return false
}

// ParseOperand parses a numeric rule value. Blank or malformed values
// report ok=false.
func ParseOperand(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Clamp bounds a score to [model.MinBoost, model.MaxBoost].
func Clamp(score int) int {
	if score < model.MinBoost {
		return model.MinBoost
	}
	if score > model.MaxBoost {
		return model.MaxBoost
	}
	return score
}

// Names returns the names of rs in order.
func Names(rs []model.Rule) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Name)
	}
	return out
}
