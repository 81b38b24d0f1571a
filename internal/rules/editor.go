package rules

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/fairyhunter13/agent-storefront/internal/model"
)

// ValidationError describes why a rule was rejected by the editor.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid rule %s: %s", e.Field, e.Reason)
}

var allowedConditions = map[model.RuleField][]model.RuleCondition{
	model.FieldTags:         {model.CondContains},
	model.FieldMargin:       {model.CondGreaterThan, model.CondLessThan},
	model.FieldPrice:        {model.CondGreaterThan, model.CondLessThan},
	model.FieldCategory:     {model.CondEquals},
	model.FieldAvailability: {model.CondEquals},
}

// Validate checks that r is a combination the editor can build. Stored rules
// that would fail here are still evaluated; they just never match.
func Validate(r model.Rule) error {
	conds, ok := allowedConditions[r.Field]
	if !ok {
		return &ValidationError{Field: "field", Reason: fmt.Sprintf("unknown field %q", r.Field)}
	}
	allowed := false
	for _, c := range conds {
		if c == r.Condition {
			allowed = true
			break
		}
	}
	if !allowed {
		return &ValidationError{Field: "condition", Reason: fmt.Sprintf("%q is not supported for %s", r.Condition, r.Field)}
	}
	switch r.Action {
	case model.ActionBoost, model.ActionDemote:
	case model.ActionExclude:
		if r.Field != model.FieldAvailability {
			return &ValidationError{Field: "action", Reason: "exclude rules must target availability"}
		}
	default:
		return &ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", r.Action)}
	}
	if strings.TrimSpace(r.Value) == "" {
		return &ValidationError{Field: "value", Reason: "value is required"}
	}
	if r.Field == model.FieldPrice || r.Field == model.FieldMargin {
		if _, ok := ParseOperand(r.Value); !ok {
			return &ValidationError{Field: "value", Reason: fmt.Sprintf("%q is not a number", r.Value)}
		}
	}
	if r.Field == model.FieldAvailability && !model.Availability(r.Value).Valid() {
		return &ValidationError{Field: "value", Reason: fmt.Sprintf("unknown availability %q", r.Value)}
	}
	if r.Action != model.ActionExclude && r.Amount == 0 {
		return &ValidationError{Field: "amount", Reason: "amount must be non-zero"}
	}
	return nil
}

// Normalize makes the amount sign agree with the action and fills in an id
// and a display name when they are missing.
func Normalize(r model.Rule) model.Rule {
	switch r.Action {
	case model.ActionBoost:
		r.Amount = abs(r.Amount)
	case model.ActionDemote:
		r.Amount = -abs(r.Amount)
	case model.ActionExclude:
		r.Amount = 0
	}
	r.Value = strings.TrimSpace(r.Value)
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if strings.TrimSpace(r.Name) == "" {
		r.Name = defaultName(r)
	}
	return r
}

func defaultName(r model.Rule) string {
	switch r.Action {
	case model.ActionExclude:
		return fmt.Sprintf("Exclude %s", strings.ReplaceAll(r.Value, "_", " "))
	case model.ActionDemote:
		return fmt.Sprintf("Demote %s %s %s", r.Field, strings.ReplaceAll(string(r.Condition), "_", " "), r.Value)
	default:
		return fmt.Sprintf("Boost %s %s %s", r.Field, strings.ReplaceAll(string(r.Condition), "_", " "), r.Value)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
