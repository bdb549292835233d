package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
packages:
  - code: starter
    credits: 100
    note: starter pack
  - code: Pro
    credits: 500
  - code: enterprise
    credits: 2000
    note: enterprise annual
`

func TestParseAndLookup(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	p, ok := c.Lookup("starter")
	if !ok || p.Credits != 100 || p.Note != "starter pack" {
		t.Fatalf("starter lookup: %+v ok=%v", p, ok)
	}

	// Codes are case-insensitive both in the file and at lookup.
	p, ok = c.Lookup("PRO")
	if !ok || p.Credits != 500 {
		t.Fatalf("pro lookup: %+v ok=%v", p, ok)
	}
	if p.Code != "pro" {
		t.Fatalf("code not normalized: %q", p.Code)
	}

	if _, ok := c.Lookup("nonexistent"); ok {
		t.Fatal("unknown code resolved")
	}

	pkgs := c.Packages()
	if len(pkgs) != 3 || pkgs[0].Code != "starter" || pkgs[2].Code != "enterprise" {
		t.Fatalf("packages out of order: %+v", pkgs)
	}
}

func TestParseRejectsBadCatalogs(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing code", "packages:\n  - credits: 10\n"},
		{"zero credits", "packages:\n  - code: free\n    credits: 0\n"},
		{"negative credits", "packages:\n  - code: bad\n    credits: -5\n"},
		{"duplicate code", "packages:\n  - code: dup\n    credits: 1\n  - code: DUP\n    credits: 2\n"},
		{"not yaml", "{{{"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.yaml)); err == nil {
				t.Fatal("bad catalog accepted")
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packages.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(c.Packages()) != 3 {
		t.Fatalf("packages = %d, want 3", len(c.Packages()))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
}
