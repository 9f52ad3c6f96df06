// Package alias maps import specifiers onto other packages or local
// directories before any other resolution runs.
package alias

import (
	"path/filepath"
	"strings"

	"github.com/pikapkg/snowpack/internal/npm"
)

// Type says what an alias points at.
type Type string

const (
	// TypePackage substitutes one package specifier for another.
	TypePackage Type = "package"
	// TypePath redirects a specifier to a directory on disk.
	TypePath Type = "path"
)

// Entry is a single alias. From is the specifier prefix to match, To is
// the replacement.
type Entry struct {
	From string
	To   string
	Type Type
}

// NewEntry builds an alias and classifies it: an absolute filesystem
// target makes it a path alias, anything else names a package.
func NewEntry(from, to string) Entry {
	t := TypePackage
	if filepath.IsAbs(to) {
		t = TypePath
	}
	return Entry{From: from, To: to, Type: t}
}

// key is the match key for the entry. A single trailing slash on the
// declaration is ignored, so "react/" and "react" declare the same alias.
func (e Entry) key() string {
	return trimSlash(e.From)
}

// matches reports whether the entry applies to the specifier, either
// exactly or as a "<from>/" prefix of a deeper import.
func (e Entry) matches(specifier string) bool {
	key := e.key()
	return specifier == key || strings.HasPrefix(specifier, key+"/")
}

// Apply rewrites the matched specifier, carrying any sub-path across.
func (e Entry) Apply(specifier string) string {
	return trimSlash(e.To) + strings.TrimPrefix(specifier, e.key())
}

// Table is an ordered alias list. Order is declaration order and decides
// which entry wins when several match.
type Table []Entry

// Match finds the first entry that applies to the specifier. Relative,
// absolute and remote specifiers never match.
func (t Table) Match(specifier string) (Entry, bool) {
	if npm.IsPathSpecifier(specifier) || npm.IsRemoteSpecifier(specifier) {
		return Entry{}, false
	}

	specifier = trimSlash(specifier)
	for _, e := range t {
		if e.matches(specifier) {
			return e, true
		}
	}
	return Entry{}, false
}

// Resolve is Match followed by Apply, returning the rewritten specifier.
func (t Table) Resolve(specifier string) (string, Entry, bool) {
	e, ok := t.Match(specifier)
	if !ok {
		return specifier, Entry{}, false
	}
	return e.Apply(trimSlash(specifier)), e, true
}

func trimSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s[:len(s)-1]
	}
	return s
}
