package alias_test

import (
	"testing"

	"github.com/pikapkg/snowpack/internal/alias"
)

func TestMatch(t *testing.T) {
	table := alias.Table{
		alias.NewEntry("react", "preact/compat"),
		alias.NewEntry("react-dom", "preact/compat"),
		alias.NewEntry("components/", "/srv/project/src/components"),
	}

	tests := []struct {
		note      string
		specifier string
		resolved  string
		matched   bool
	}{
		{
			note:      "exact package match",
			specifier: "react",
			resolved:  "preact/compat",
			matched:   true,
		},
		{
			note:      "deep import through package alias",
			specifier: "react/jsx-runtime",
			resolved:  "preact/compat/jsx-runtime",
			matched:   true,
		},
		{
			note:      "no partial segment match",
			specifier: "reactive-store",
			matched:   false,
		},
		{
			note:      "trailing slash on specifier",
			specifier: "react/",
			resolved:  "preact/compat",
			matched:   true,
		},
		{
			note:      "path alias with remainder",
			specifier: "components/Button.js",
			resolved:  "/srv/project/src/components/Button.js",
			matched:   true,
		},
		{
			note:      "relative specifier never aliased",
			specifier: "./react",
			matched:   false,
		},
		{
			note:      "absolute specifier never aliased",
			specifier: "/react",
			matched:   false,
		},
		{
			note:      "remote specifier never aliased",
			specifier: "https://example.com/react.js",
			matched:   false,
		},
		{
			note:      "unaliased package",
			specifier: "preact",
			matched:   false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			resolved, _, ok := table.Resolve(tc.specifier)
			if ok != tc.matched {
				t.Fatalf("expected matched=%v, got %v", tc.matched, ok)
			}
			if ok && resolved != tc.resolved {
				t.Fatalf("expected %q, got %q", tc.resolved, resolved)
			}
		})
	}
}

func TestMatchOrder(t *testing.T) {
	// Declaration order decides between overlapping entries.
	table := alias.Table{
		alias.NewEntry("pkg/sub", "first/sub"),
		alias.NewEntry("pkg", "second"),
	}

	resolved, e, ok := table.Resolve("pkg/sub/file.js")
	if !ok {
		t.Fatal("expected a match")
	}
	if e.From != "pkg/sub" {
		t.Fatalf("expected first declared entry to win, got %q", e.From)
	}
	if resolved != "first/sub/file.js" {
		t.Fatalf("unexpected rewrite: %q", resolved)
	}

	reversed := alias.Table{
		alias.NewEntry("pkg", "second"),
		alias.NewEntry("pkg/sub", "first/sub"),
	}
	if _, e, _ := reversed.Resolve("pkg/sub/file.js"); e.From != "pkg" {
		t.Fatalf("expected earlier entry to win, got %q", e.From)
	}
}

func TestEntryTypes(t *testing.T) {
	if e := alias.NewEntry("react", "preact/compat"); e.Type != alias.TypePackage {
		t.Fatalf("expected package alias, got %q", e.Type)
	}
	if e := alias.NewEntry("src", "/srv/project/src"); e.Type != alias.TypePath {
		t.Fatalf("expected path alias, got %q", e.Type)
	}
}
