package quoting

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"audit-portal/internal/ledger"

	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk shape:
//
//	categories:
//	  - id: tax-review
//	    name: Tax Review
//	    hours: 3
//	  - id: custom
//	    name: Custom engagement
//	    custom: true
type catalogFile struct {
	Categories []catalogEntry `yaml:"categories"`
}

type catalogEntry struct {
	Category `yaml:",inline"`
	Hours    float64 `yaml:"hours"`
}

// LoadCatalog reads a YAML category catalog.
func LoadCatalog(path string) ([]Category, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) ([]Category, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Categories))
	out := make([]Category, 0, len(f.Categories))
	var errs []error
	for i, e := range f.Categories {
		c := e.Category
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			errs = append(errs, fmt.Errorf("category %d: id is required", i))
			continue
		}
		h, err := ledger.ParseHours(e.Hours)
		if err != nil {
			errs = append(errs, fmt.Errorf("category %q: %w", c.ID, err))
			continue
		}
		c.Hours = h
		switch {
		case c.Hours < 0:
			errs = append(errs, fmt.Errorf("category %q: hours must not be negative", c.ID))
			continue
		case !c.IsCustom && c.Hours == 0:
			errs = append(errs, fmt.Errorf("category %q: fixed categories need hours", c.ID))
			continue
		}
		if _, dup := seen[c.ID]; dup {
			errs = append(errs, fmt.Errorf("category %q: duplicate id", c.ID))
			continue
		}
		seen[c.ID] = struct{}{}
		if c.Name == "" {
			c.Name = c.ID
		}
		out = append(out, c)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
