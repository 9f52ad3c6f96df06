package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pikapkg/snowpack/internal/alias"
	"github.com/pikapkg/snowpack/internal/config"
)

func TestParseDefaults(t *testing.T) {

	cfg, err := config.Parse([]byte(`{
		mount: {
			src: /_dist_
		}
	}`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Out != "build" {
		t.Errorf("expected default out directory, got %q", cfg.Out)
	}
	if cfg.CacheDir != ".snowpack" {
		t.Errorf("expected default cache directory, got %q", cfg.CacheDir)
	}
	if cfg.Install == nil || cfg.Install.Dest != "web_modules" {
		t.Errorf("expected default install dest, got %+v", cfg.Install)
	}
	if !cfg.GitignoreEnabled() {
		t.Error("expected gitignore handling on by default")
	}
	if !cfg.Install.TreeShakingEnabled() {
		t.Error("expected tree shaking on by default")
	}
	if cfg.Install.SourceMapEnabled() {
		t.Error("expected source maps off by default")
	}
	if env := cfg.Install.NodeEnv(); env != "production" {
		t.Errorf("expected production NODE_ENV by default, got %q", env)
	}
}

func TestParseAliasOrder(t *testing.T) {

	cfg, err := config.Parse([]byte(`
mount:
  src: /_dist_
alias:
  react: preact/compat
  react-dom: preact/compat
  components: /srv/project/src/components
`))
	if err != nil {
		t.Fatal(err)
	}

	exp := config.Aliases{
		{From: "react", To: "preact/compat", Type: alias.TypePackage},
		{From: "react-dom", To: "preact/compat", Type: alias.TypePackage},
		{From: "components", To: "/srv/project/src/components", Type: alias.TypePath},
	}

	if diff := cmp.Diff(exp, cfg.Alias); diff != "" {
		t.Fatalf("unexpected alias table (-want +got):\n%s", diff)
	}
}

func TestParseAliasOrderJSON(t *testing.T) {

	var root config.Root
	err := root.UnmarshalJSON([]byte(`{
		"mount": {"src": "/"},
		"alias": {"zzz": "aaa", "mmm": "nnn", "aaa": "zzz"}
	}`))
	if err != nil {
		t.Fatal(err)
	}

	exp := config.Aliases{
		{From: "zzz", To: "aaa", Type: alias.TypePackage},
		{From: "mmm", To: "nnn", Type: alias.TypePackage},
		{From: "aaa", To: "zzz", Type: alias.TypePackage},
	}

	if diff := cmp.Diff(exp, root.Alias); diff != "" {
		t.Fatalf("unexpected alias table (-want +got):\n%s", diff)
	}
}

func TestValidateRejectsUnknownKeys(t *testing.T) {

	tests := []struct {
		note string
		cfg  string
		exp  string
	}{
		{
			note: "top-level typo",
			cfg:  `{mounts: {src: /}}`,
			exp:  "'mounts' not allowed",
		},
		{
			note: "install typo",
			cfg:  `{mount: {src: /}, install: {externals: [fs]}}`,
			exp:  "'externals' not allowed",
		},
		{
			note: "alias values must be strings",
			cfg:  `{mount: {src: /}, alias: {react: [preact]}}`,
			exp:  "got array, want string",
		},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			_, err := config.Parse([]byte(tc.cfg))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.exp) {
				t.Fatalf("expected error containing %q, got: %v", tc.exp, err)
			}
		})
	}
}

func TestParseMountValidation(t *testing.T) {

	tests := []struct {
		note string
		cfg  string
		exp  string
	}{
		{
			note: "missing mount table",
			cfg:  `{out: dist}`,
			exp:  "at least one mount directory",
		},
		{
			note: "relative mount URL",
			cfg:  `{mount: {src: _dist_}}`,
			exp:  `mount URL for directory "src" must start with '/'`,
		},
		{
			note: "duplicate mount URL",
			cfg:  `{mount: {src: /app, lib: /app}}`,
			exp:  `share the URL "/app"`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			_, err := config.Parse([]byte(tc.cfg))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.exp) {
				t.Fatalf("expected error containing %q, got: %v", tc.exp, err)
			}
		})
	}
}

func TestParseBadExcludePattern(t *testing.T) {

	_, err := config.Parse([]byte(`{mount: {src: /}, exclude: ["[unclosed"]}`))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "exclude pattern") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestManifestPatches(t *testing.T) {

	cfg, err := config.Parse([]byte(`
mount:
  src: /
install:
  manifest_patches:
    broken-pkg:
      - op: replace
        path: /module
        value: dist/index.mjs
`))
	if err != nil {
		t.Fatal(err)
	}

	patches, err := cfg.Install.ManifestPatchSet()
	if err != nil {
		t.Fatal(err)
	}
	if len(patches) != 1 {
		t.Fatalf("expected one patch, got %d", len(patches))
	}
	if _, ok := patches["broken-pkg"]; !ok {
		t.Fatal("expected patch for broken-pkg")
	}
}

func TestManifestPatchInvalidOp(t *testing.T) {

	_, err := config.Parse([]byte(`
mount:
  src: /
install:
  manifest_patches:
    broken-pkg:
      - op: replace
`))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), `invalid manifest patch for "broken-pkg"`) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMergeKeepsAliasOrder(t *testing.T) {

	dir := t.TempDir()

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	a := write("a.yaml", `
mount:
  src: /_dist_
alias:
  zzz: preact
  aaa: preact/compat
`)
	b := write("b.yaml", `
alias:
  mmm: preact/hooks
install:
  external:
    - fs
`)

	bs, err := config.Merge([]string{a, b}, true)
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Parse(bs)
	if err != nil {
		t.Fatal(err)
	}

	exp := config.Aliases{
		{From: "zzz", To: "preact", Type: alias.TypePackage},
		{From: "aaa", To: "preact/compat", Type: alias.TypePackage},
		{From: "mmm", To: "preact/hooks", Type: alias.TypePackage},
	}
	if diff := cmp.Diff(exp, cfg.Alias); diff != "" {
		t.Fatalf("unexpected alias table (-want +got):\n%s", diff)
	}
	if !cfg.Install.External.Contains("fs") {
		t.Error("expected external fs to survive merge")
	}
}

func TestMergeConflict(t *testing.T) {

	dir := t.TempDir()

	a := filepath.Join(dir, "a.yaml")
	if err := os.WriteFile(a, []byte("mount: {src: /}\nout: dist\n"), 0644); err != nil {
		t.Fatal(err)
	}
	b := filepath.Join(dir, "b.yaml")
	if err := os.WriteFile(b, []byte("out: public\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := config.Merge([]string{a, b}, true)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "conflict for config path /out") {
		t.Fatalf("unexpected error: %v", err)
	}

	// Without conflict errors the later file wins.
	bs, err := config.Merge([]string{a, b}, false)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Parse(bs)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Out != "public" {
		t.Errorf("expected later file to win, got out=%q", cfg.Out)
	}
}

func TestRootEqual(t *testing.T) {

	parse := func(s string) *config.Root {
		t.Helper()
		cfg, err := config.Parse([]byte(s))
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}

	a := parse(`{mount: {src: /}, alias: {react: preact/compat}}`)
	b := parse(`{mount: {src: /}, alias: {react: preact/compat}}`)
	c := parse(`{mount: {src: /}, alias: {react: preact}}`)

	if !a.Equal(b) {
		t.Error("expected equal configs")
	}
	if a.Equal(c) {
		t.Error("expected configs to differ")
	}
	if !a.Equal(a) {
		t.Error("expected config to equal itself")
	}
	if a.Equal(nil) {
		t.Error("expected nil to differ")
	}
}
