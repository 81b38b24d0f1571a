package store

import (
	"context"
	"testing"

	"github.com/fairyhunter13/agent-storefront/internal/model"
)

func TestReadCatalogYAML(t *testing.T) {
	c, err := ReadCatalog("testdata/catalog.yaml")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if c.Storefront.ID != "trail" || len(c.Products) != 3 || len(c.Rules) != 3 {
		t.Fatalf("unexpected catalog: %+v", c)
	}
	if got := c.Products[0].Price.String(); got != "120" {
		t.Fatalf("price: %s", got)
	}
	if got := c.Products[1].Price.StringFixed(2); got != "18.50" {
		t.Fatalf("quoted price: %s", got)
	}
	if c.Products[0].Margin == nil || *c.Products[0].Margin != 0.42 {
		t.Fatalf("margin not decoded")
	}
	if c.Rules[0].ID != "trail-rule-1" || c.Rules[0].Name == "" {
		t.Fatalf("rule not normalized: %+v", c.Rules[0])
	}
	if c.Rules[1].Amount != -2 || c.Rules[2].Action != model.ActionExclude {
		t.Fatalf("rules: %+v", c.Rules)
	}

	repo := NewMemory()
	for i := 0; i < 2; i++ {
		if err := Seed(context.Background(), repo, c); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	rs, _ := repo.ListRules(context.Background(), "trail")
	if len(rs) != 3 {
		t.Fatalf("reseeding the same file duplicated rules: %d", len(rs))
	}
}

func TestParseCatalogErrors(t *testing.T) {
	cases := []struct {
		name, ext, data string
	}{
		{"extension", ".toml", `x = 1`},
		{"missing id", ".json", `{"storefront":{"name":"x"}}`},
		{"bad rule", ".json", `{"storefront":{"id":"s"},"rules":[{"field":"color","condition":"equals","value":"red","action":"boost","amount":1}]}`},
		{"bad yaml", ".yaml", "storefront: [\n"},
	}
	for _, tc := range cases {
		if _, err := ParseCatalog([]byte(tc.data), tc.ext); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
