package rewrite_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pikapkg/snowpack/internal/alias"
	"github.com/pikapkg/snowpack/internal/lockfile"
	"github.com/pikapkg/snowpack/internal/rewrite"
	"github.com/pikapkg/snowpack/internal/test/tempfs"
)

func installedMap(entries map[string]string) *lockfile.ImportMap {
	m := lockfile.New()
	for specifier, url := range entries {
		m.Add(specifier, url)
	}
	return m
}

func TestRewriteBareSpecifiers(t *testing.T) {
	r := rewrite.NewRewriter().
		WithImportMap(installedMap(map[string]string{
			"lodash":          "./lodash.js",
			"lodash/debounce": "./lodash/debounce.js",
		}))

	in := strings.Join([]string{
		`import lodash from "lodash";`,
		`import debounce from "lodash/debounce";`,
		`const dyn = await import("lodash");`,
	}, "\n")
	exp := strings.Join([]string{
		`import lodash from "../web_modules/lodash.js";`,
		`import debounce from "../web_modules/lodash/debounce.js";`,
		`const dyn = await import("../web_modules/lodash.js");`,
	}, "\n")

	got := r.Rewrite("/_dist_/index.js", []byte(in))
	if diff := cmp.Diff(exp, string(got)); diff != "" {
		t.Fatalf("unexpected rewrite (-want, +got):\n%s", diff)
	}
}

func TestRewriteIsIdempotent(t *testing.T) {
	r := rewrite.NewRewriter().
		WithImportMap(installedMap(map[string]string{"preact": "./preact.js"})).
		WithOutputURLs(map[string]bool{"/_dist_/App.js": true})

	in := []byte(strings.Join([]string{
		`import { h } from "preact";`,
		`import App from "./App";`,
	}, "\n"))

	once := r.Rewrite("/_dist_/index.js", in)
	twice := r.Rewrite("/_dist_/index.js", once)
	if diff := cmp.Diff(string(once), string(twice)); diff != "" {
		t.Fatalf("rewriting its own output changed it (-once, +twice):\n%s", diff)
	}
}

func TestRewriteRelativePaths(t *testing.T) {
	r := rewrite.NewRewriter().
		WithOutputURLs(map[string]bool{
			"/_dist_/App.js":            true,
			"/_dist_/components/nav.js": true,
			"/_dist_/shared/index.js":   true,
			"/_dist_/pages/about/me.js": true,
		})

	tests := []struct {
		note string
		url  string
		in   string
		exp  string
	}{
		{
			note: "extensionless import gains the module extension",
			url:  "/_dist_/index.js",
			in:   `import App from "./App";`,
			exp:  `import App from "./App.js";`,
		},
		{
			note: "directory import resolves to its index module",
			url:  "/_dist_/index.js",
			in:   `import shared from "./shared";`,
			exp:  `import shared from "./shared/index.js";`,
		},
		{
			note: "source extension swaps for the built one",
			url:  "/_dist_/pages/index.js",
			in:   `import me from "./about/me.tsx";`,
			exp:  `import me from "./about/me.js";`,
		},
		{
			note: "climbing imports keep their prefix",
			url:  "/_dist_/pages/about/index.js",
			in:   `import nav from "../../components/nav.js";`,
			exp:  `import nav from "../../components/nav.js";`,
		},
		{
			note: "absolute imports become relative to the importer",
			url:  "/_dist_/pages/about/index.js",
			in:   `import nav from "/_dist_/components/nav.js";`,
			exp:  `import nav from "../../components/nav.js";`,
		},
	}

	for _, tc := range tests {
		got := string(r.Rewrite(tc.url, []byte(tc.in)))
		if got != tc.exp {
			t.Errorf("%s: got %q, want %q", tc.note, got, tc.exp)
		}
	}
}

func TestRewritePathAlias(t *testing.T) {
	r := rewrite.NewRewriter().
		WithAliases(alias.Table{alias.NewEntry("comp", "/project/src/components")}).
		WithMounts(map[string]string{"/project/src": "/_dist_"}).
		WithOutputURLs(map[string]bool{"/_dist_/components/button.js": true})

	in := `import Button from "comp/button";`
	exp := `import Button from "../components/button.js";`

	got := string(r.Rewrite("/_dist_/pages/home.js", []byte(in)))
	if got != exp {
		t.Fatalf("got %q, want %q", got, exp)
	}
}

func TestRewritePackageAlias(t *testing.T) {
	r := rewrite.NewRewriter().
		WithAliases(alias.Table{alias.NewEntry("react", "preact/compat")}).
		WithImportMap(installedMap(map[string]string{"preact/compat": "./preact/compat.js"}))

	in := `import React from "react";`
	exp := `import React from "./web_modules/preact/compat.js";`

	got := string(r.Rewrite("/index.js", []byte(in)))
	if got != exp {
		t.Fatalf("got %q, want %q", got, exp)
	}
}

func TestRewriteLeavesExternalAndRemote(t *testing.T) {
	r := rewrite.NewRewriter().
		WithImportMap(installedMap(map[string]string{"lodash": "./lodash.js"})).
		WithExternal([]string{"fs"})

	in := strings.Join([]string{
		`import fs from "fs";`,
		`import x from "https://cdn.example.com/x.js";`,
		`import nothing from "never-installed";`,
	}, "\n")

	got := string(r.Rewrite("/index.js", []byte(in)))
	if got != in {
		t.Fatalf("external, remote and unresolved imports must pass through, got:\n%s", got)
	}
}

func TestRewriteRecordsImporters(t *testing.T) {
	reg := rewrite.NewRegistry()
	r := rewrite.NewRewriter().
		WithImportMap(installedMap(map[string]string{"preact": "./preact.js"})).
		WithRegistry(reg)

	r.Rewrite("/_dist_/index.js", []byte(`import { h } from "preact";`))
	r.Rewrite("/_dist_/about.js", []byte(`import { h } from "preact"; import "./index.js";`))

	if diff := cmp.Diff([]string{"/_dist_/about.js", "/_dist_/index.js"}, reg.Importers("preact")); diff != "" {
		t.Fatalf("unexpected importers (-want, +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"./index.js", "preact"}, reg.Specifiers()); diff != "" {
		t.Fatalf("unexpected specifiers (-want, +got):\n%s", diff)
	}
}

func TestProxyRoundTrip(t *testing.T) {
	files := map[string]string{
		"styles.css": "body { color: red; }\n",
		"data.json":  `{"answer": 42}`,
		"logo.svg":   "<svg></svg>",
	}

	tempfs.WithTempFS(t, files, func(t *testing.T, outDir string) {
		r := rewrite.NewRewriter().WithOutDir(outDir)

		in := strings.Join([]string{
			`import "./styles.css";`,
			`import data from "./data.json";`,
			`import logo from "./logo.svg";`,
		}, "\n")
		exp := strings.Join([]string{
			`import "./styles.css.proxy.js";`,
			`import data from "./data.json.proxy.js";`,
			`import logo from "./logo.svg.proxy.js";`,
		}, "\n")

		got := string(r.Rewrite("/index.js", []byte(in)))
		if diff := cmp.Diff(exp, got); diff != "" {
			t.Fatalf("unexpected rewrite (-want, +got):\n%s", diff)
		}

		if err := rewrite.NewProxyWriter(outDir).Write(context.Background(), r.Proxies()); err != nil {
			t.Fatal(err)
		}

		css, err := os.ReadFile(filepath.Join(outDir, "styles.css.proxy.js"))
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(css), "body { color: red; }") {
			t.Fatalf("css proxy does not carry the stylesheet:\n%s", css)
		}
		if !strings.Contains(string(css), "document.head.appendChild") {
			t.Fatalf("css proxy does not inject itself:\n%s", css)
		}

		json, err := os.ReadFile(filepath.Join(outDir, "data.json.proxy.js"))
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(json), `let json = {"answer": 42};`) {
			t.Fatalf("json proxy does not embed the document:\n%s", json)
		}

		svg, err := os.ReadFile(filepath.Join(outDir, "logo.svg.proxy.js"))
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(svg), `export default "/logo.svg";`) {
			t.Fatalf("asset proxy does not export the URL:\n%s", svg)
		}
	})
}

func TestProxySetDeduplicates(t *testing.T) {
	s := rewrite.NewProxySet()
	s.Add("/out/a.css.proxy.js")
	s.Add("/out/a.css.proxy.js")
	s.Add("/out/b.css.proxy.js")

	if s.Len() != 2 {
		t.Fatalf("expected 2 distinct proxies, got %d", s.Len())
	}
	if diff := cmp.Diff([]string{"/out/a.css.proxy.js", "/out/b.css.proxy.js"}, s.Paths()); diff != "" {
		t.Fatalf("unexpected paths (-want, +got):\n%s", diff)
	}
}
