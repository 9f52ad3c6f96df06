package lockfile_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pikapkg/snowpack/internal/lockfile"
)

func TestMarshalDeterministic(t *testing.T) {
	a := lockfile.New()
	a.Add("preact", "./preact.js")
	a.Add("lodash/debounce", "./lodash/debounce.js")
	a.Add("@scope/pkg", "./@scope/pkg.js")

	b := lockfile.New()
	b.Add("@scope/pkg", "./@scope/pkg.js")
	b.Add("preact", "./preact.js")
	b.Add("lodash/debounce", "./lodash/debounce.js")

	aBytes, err := a.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	bBytes, err := b.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(aBytes, bBytes) {
		t.Fatalf("insertion order leaked into output:\n%s\nvs\n%s", aBytes, bBytes)
	}

	out := string(aBytes)
	if !strings.HasSuffix(out, "\n") {
		t.Fatal("missing trailing newline")
	}
	if !strings.Contains(out, "  \"imports\": {") {
		t.Fatalf("expected two-space indentation:\n%s", out)
	}

	// Keys must appear in sorted order.
	scoped := strings.Index(out, "@scope/pkg")
	deep := strings.Index(out, "lodash/debounce")
	bare := strings.Index(out, "preact")
	if !(scoped < deep && deep < bare) {
		t.Fatalf("keys out of order:\n%s", out)
	}
}

func TestWriteReadRoundtrip(t *testing.T) {
	dir := t.TempDir()

	m := lockfile.New()
	m.Add("preact", "./preact.js")
	m.Add("preact/hooks", "./preact/hooks.js")

	if err := m.Write(dir); err != nil {
		t.Fatal(err)
	}

	got, err := lockfile.Read(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !m.Equal(got) {
		t.Fatalf("roundtrip mismatch: %+v vs %+v", m, got)
	}

	// Writing the same map twice produces identical bytes.
	first, err := os.ReadFile(filepath.Join(dir, lockfile.Filename))
	if err != nil {
		t.Fatal(err)
	}
	if err := got.Write(dir); err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(filepath.Join(dir, lockfile.Filename))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("rewrite changed bytes")
	}
}

func TestReadMissing(t *testing.T) {
	m, err := lockfile.Read(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if m != nil {
		t.Fatalf("expected nil map for missing file, got %+v", m)
	}
}

func TestResolve(t *testing.T) {
	m := lockfile.New()
	m.Add("preact", "./preact.js")
	m.Add("preact/hooks", "./preact/hooks.js")
	m.Add("lodash", "./lodash.js")

	tests := []struct {
		note      string
		specifier string
		url       string
		found     bool
	}{
		{note: "exact", specifier: "preact", url: "./preact.js", found: true},
		{note: "exact deep", specifier: "preact/hooks", url: "./preact/hooks.js", found: true},
		{note: "prefix fallback", specifier: "lodash/map", url: "./lodash/map.js", found: true},
		{note: "longest prefix wins", specifier: "preact/hooks/extra", url: "./preact/hooks/extra.js", found: true},
		{note: "unknown", specifier: "vue", found: false},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			url, ok := m.Resolve(tc.specifier)
			if ok != tc.found {
				t.Fatalf("expected found=%v, got %v", tc.found, ok)
			}
			if ok && url != tc.url {
				t.Fatalf("expected %q, got %q", tc.url, url)
			}
		})
	}
}

func TestDiff(t *testing.T) {
	old := lockfile.New()
	old.Add("preact", "./preact.js")

	updated := lockfile.New()
	updated.Add("preact", "./preact.js")
	updated.Add("lodash", "./lodash.js")

	if diff := lockfile.Diff(old, old); diff != "" {
		t.Fatalf("expected empty diff, got:\n%s", diff)
	}

	diff := lockfile.Diff(old, updated)
	if diff == "" {
		t.Fatal("expected a diff")
	}
	if !strings.Contains(diff, "lodash") {
		t.Fatalf("diff does not mention the new entry:\n%s", diff)
	}
}
