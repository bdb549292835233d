// Package catalog loads the credit package catalog: named grant bundles
// (code, credit amount, audit note) that purchases reference instead of
// raw amounts. Pricing and payment live outside the ledger; the catalog
// only names amounts so grant entries carry a meaningful audit trail.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Package is a purchasable credit bundle.
type Package struct {
	Code    string `yaml:"code" json:"code"`
	Credits int64  `yaml:"credits" json:"credits"`
	Note    string `yaml:"note" json:"note,omitempty"`
}

// Catalog resolves package codes to credit bundles.
type Catalog struct {
	packages map[string]Package
	ordered  []Package
}

type catalogFile struct {
	Packages []Package `yaml:"packages"`
}

// Load reads a YAML catalog file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(raw)
}

// Parse builds a catalog from YAML bytes.
func Parse(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{packages: make(map[string]Package, len(file.Packages))}
	for _, p := range file.Packages {
		code := strings.ToLower(strings.TrimSpace(p.Code))
		if code == "" {
			return nil, fmt.Errorf("package without code")
		}
		if p.Credits <= 0 {
			return nil, fmt.Errorf("package %q must grant a positive amount", p.Code)
		}
		if _, dup := c.packages[code]; dup {
			return nil, fmt.Errorf("duplicate package code %q", p.Code)
		}
		p.Code = code
		c.packages[code] = p
		c.ordered = append(c.ordered, p)
	}
	return c, nil
}

// Lookup resolves a package code, case-insensitively.
func (c *Catalog) Lookup(code string) (Package, bool) {
	p, ok := c.packages[strings.ToLower(strings.TrimSpace(code))]
	return p, ok
}

// Packages returns the catalog in file order.
func (c *Catalog) Packages() []Package {
	return c.ordered
}
