package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/agent-storefront/internal/model"
	"github.com/fairyhunter13/agent-storefront/internal/rules"
)

// ReadCatalog loads a catalog snapshot from a .yaml, .yml or .json file.
// Rules are normalized and validated; rules without an id get one derived
// from their position so re-seeding the same file stays idempotent.
func ReadCatalog(path string) (model.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data, filepath.Ext(path))
}

// ParseCatalog decodes data according to ext.
func ParseCatalog(data []byte, ext string) (model.Catalog, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		// prices are decimals, which decode from JSON numbers but not
		// from YAML floats
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return model.Catalog{}, fmt.Errorf("parse catalog: %w", err)
		}
		b, err := json.Marshal(doc)
		if err != nil {
			return model.Catalog{}, fmt.Errorf("parse catalog: %w", err)
		}
		data = b
	case ".json":
	default:
		return model.Catalog{}, fmt.Errorf("catalog: unsupported extension %q", ext)
	}
	var c model.Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return model.Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	if strings.TrimSpace(c.Storefront.ID) == "" {
		return model.Catalog{}, fmt.Errorf("catalog: storefront.id is required")
	}
	for i, r := range c.Rules {
		if r.ID == "" {
			r.ID = fmt.Sprintf("%s-rule-%d", c.Storefront.ID, i+1)
		}
		r = rules.Normalize(r)
		if err := rules.Validate(r); err != nil {
			return model.Catalog{}, fmt.Errorf("catalog rule %s: %w", r.ID, err)
		}
		c.Rules[i] = r
	}
	return c, nil
}
