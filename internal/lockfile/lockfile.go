// Package lockfile reads and writes the import map that records where
// each installed dependency lives. The file doubles as the install
// lockfile: builds that produce the same map byte for byte did the same
// install.
package lockfile

import (
	"encoding/json"
	"maps"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/akedrou/textdiff"

	snowfs "github.com/pikapkg/snowpack/internal/fs"
)

// Filename is the name of the import map inside the dependency
// directory.
const Filename = "import-map.json"

// ImportMap maps bare import specifiers to the module URLs serving them.
// Values are relative to the directory the map is written to.
type ImportMap struct {
	Imports map[string]string `json:"imports"`
}

// New returns an empty import map.
func New() *ImportMap {
	return &ImportMap{Imports: map[string]string{}}
}

// Add records a specifier. Existing entries are overwritten.
func (m *ImportMap) Add(specifier, url string) {
	m.Imports[specifier] = url
}

// Resolve looks up a specifier. Exact entries win, then an entry with a
// module extension added, then the longest entry that is a path prefix of
// the specifier, with the remainder appended below its URL.
func (m *ImportMap) Resolve(specifier string) (string, bool) {
	if url, ok := m.Imports[specifier]; ok {
		return url, true
	}
	if url, ok := m.Imports[specifier+".js"]; ok {
		return url, true
	}

	var bestKey string
	for key := range m.Imports {
		if strings.HasPrefix(specifier, key+"/") && len(key) > len(bestKey) {
			bestKey = key
		}
	}
	if bestKey == "" {
		return "", false
	}

	// An entry "pkg" -> "./pkg.js" serves "pkg/deep" from "./pkg/deep.js",
	// mirroring how the installer lays out deep entrypoints.
	value := m.Imports[bestKey]
	url := strings.TrimSuffix(value, path.Ext(value)) + "/" + specifier[len(bestKey)+1:]
	if path.Ext(url) == "" {
		url += ".js"
	}
	return url, true
}

// Equal reports whether two maps hold the same entries.
func (m *ImportMap) Equal(other *ImportMap) bool {
	if m == nil || other == nil {
		return m == other
	}
	return maps.Equal(m.Imports, other.Imports)
}

// Marshal renders the map in its canonical form: sorted keys, two-space
// indentation, trailing newline. Writing any other form would make
// lockfile diffs meaningless.
func (m *ImportMap) Marshal() ([]byte, error) {
	bs, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(bs, '\n'), nil
}

// Write persists the map into dir under its canonical filename.
func (m *ImportMap) Write(dir string) error {
	bs, err := m.Marshal()
	if err != nil {
		return err
	}
	return snowfs.WriteFile(filepath.Join(dir, Filename), bs)
}

// Read loads the map from dir. A missing file returns (nil, nil), since
// that is the ordinary state before the first install.
func Read(dir string) (*ImportMap, error) {
	bs, err := os.ReadFile(filepath.Join(dir, Filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var m ImportMap
	if err := json.Unmarshal(bs, &m); err != nil {
		return nil, err
	}
	if m.Imports == nil {
		m.Imports = map[string]string{}
	}
	return &m, nil
}

// Diff returns a unified diff between two maps in their canonical form,
// or "" when they are equal.
func Diff(old, new *ImportMap) string {
	if old == nil {
		old = New()
	}
	if new == nil {
		new = New()
	}
	if old.Equal(new) {
		return ""
	}

	oldBytes, err := old.Marshal()
	if err != nil {
		return ""
	}
	newBytes, err := new.Marshal()
	if err != nil {
		return ""
	}
	return textdiff.Unified(Filename, Filename, string(oldBytes), string(newBytes))
}
