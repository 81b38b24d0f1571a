package feed

import (
	"github.com/fairyhunter13/agent-storefront/internal/model"
	"github.com/fairyhunter13/agent-storefront/internal/ranking"
	"github.com/fairyhunter13/agent-storefront/internal/rules"
)

// Impact compares the preview ranking with and without a draft rule.
type Impact struct {
	Draft    model.Rule        `json:"draft"`
	Before   PreviewStorefront `json:"before"`
	After    PreviewStorefront `json:"after"`
	Matched  []string          `json:"matched"`
	Excluded []string          `json:"excluded"`
	Moved    []Movement        `json:"moved"`
}

// Movement is a product whose effective score changes with the draft.
type Movement struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Before int    `json:"before"`
	After  int    `json:"after"`
}

// CompareDraft ranks the store with its current rules and again with draft
// appended, both limited to ranking.PreviewLimit.
func CompareDraft(in Input, draft model.Rule) Impact {
	withDraft := make([]model.Rule, 0, len(in.Rules)+1)
	withDraft = append(withDraft, in.Rules...)
	withDraft = append(withDraft, draft)

	after := in
	after.Rules = withDraft

	imp := Impact{
		Draft:    draft,
		Before:   previewFromRanked(in, ranking.Rank(in.Products, in.Rules, ranking.Options{Limit: ranking.PreviewLimit})),
		After:    previewFromRanked(after, ranking.Rank(in.Products, withDraft, ranking.Options{Limit: ranking.PreviewLimit})),
		Matched:  []string{},
		Excluded: []string{},
		Moved:    []Movement{},
	}
	for _, p := range in.Products {
		if !p.Included {
			continue
		}
		only := rules.Evaluate(p, []model.Rule{draft})
		if len(only.MatchingRules) == 0 {
			continue
		}
		imp.Matched = append(imp.Matched, p.ID)
		b := rules.Evaluate(p, in.Rules)
		a := rules.Evaluate(p, withDraft)
		if a.Excluded && !b.Excluded {
			imp.Excluded = append(imp.Excluded, p.ID)
		}
		if a.Score != b.Score {
			imp.Moved = append(imp.Moved, Movement{ID: p.ID, Title: p.Title, Before: b.Score, After: a.Score})
		}
	}
	return imp
}
