package migrations

import (
	"io/fs"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSchemaSQL(t *testing.T) {
	// Applied migrations are fingerprinted by golang-migrate, so the
	// generated statements must never drift.
	exp := map[string]string{
		"000_packages.up.sql": "CREATE TABLE packages (" +
			"name TEXT, " +
			"version TEXT, " +
			"entrypoint TEXT NOT NULL, " +
			"installed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP, " +
			"CONSTRAINT snowpack_v1_packages_name_pkey PRIMARY KEY (name))",
		"001_installs.up.sql": "CREATE TABLE installs (" +
			"id INTEGER, " +
			"fingerprint TEXT NOT NULL, " +
			"package_count INTEGER NOT NULL, " +
			"created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP, " +
			"CONSTRAINT snowpack_v1_installs_id_pkey PRIMARY KEY (id))",
	}

	fsys := schemaFS()
	got := map[string]string{}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		bs, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			t.Fatal(err)
		}
		got[e.Name()] = string(bs)
	}

	if diff := cmp.Diff(exp, got); diff != "" {
		t.Fatalf("unexpected schema (-want, +got):\n%s", diff)
	}
}
