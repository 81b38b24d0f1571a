package feed

import (
	"fmt"
	"strings"
)

// RenderMarkdown writes the public feed document as Markdown for agents that
// read text rather than JSON.
func RenderMarkdown(doc Document) string {
	sf := doc.Storefront
	var b strings.Builder

	title := sf.Name
	if title == "" {
		title = sf.ID
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if sf.Domain != "" {
		fmt.Fprintf(&b, "Domain: %s\n", sf.Domain)
	}
	fmt.Fprintf(&b, "Feed version %s, generated %s\n\n", sf.Version, sf.GeneratedAt)
	fmt.Fprintf(&b, "> %s\n\n", sf.AgentInstructions)
	fmt.Fprintf(&b, "Showing %d of %d products (%d merchandising rules).\n", len(sf.Products), sf.TotalProducts, sf.RulesApplied)

	for i, p := range sf.Products {
		fmt.Fprintf(&b, "\n## %d. %s\n\n", i+1, p.Title)
		fmt.Fprintf(&b, "- id: `%s`\n", p.ID)
		fmt.Fprintf(&b, "- price: %s %s\n", formatAmount(p.Price.Amount), p.Price.Currency)
		fmt.Fprintf(&b, "- availability: %s (inventory %d)\n", p.Availability, p.Inventory)
		if p.Category != "" {
			fmt.Fprintf(&b, "- category: %s\n", p.Category)
		}
		if len(p.Tags) > 0 {
			fmt.Fprintf(&b, "- tags: %s\n", strings.Join(p.Tags, ", "))
		}
		if len(p.Signals) > 0 {
			fmt.Fprintf(&b, "- signals: %s\n", strings.Join(p.Signals, ", "))
		}
		fmt.Fprintf(&b, "- score: %d (base %d)\n", p.EffectiveScore, p.BaseBoost)
		if p.URL != "" {
			fmt.Fprintf(&b, "- url: %s\n", p.URL)
		}
		if p.AgentNotes != "" {
			fmt.Fprintf(&b, "\n%s\n", p.AgentNotes)
		}
	}
	return b.String()
}

func formatAmount(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
