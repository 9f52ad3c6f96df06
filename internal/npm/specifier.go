// Package npm locates installed packages and their manifests inside
// node_modules trees.
package npm

import (
	"strings"
)

// ParseSpecifier splits a bare module specifier into the package name and
// the sub-path inside the package. Scoped names keep their first two
// segments, so "@scope/pkg/deep/file.js" yields ("@scope/pkg",
// "deep/file.js") and "lodash" yields ("lodash", "").
func ParseSpecifier(specifier string) (name, subpath string) {
	parts := strings.SplitN(specifier, "/", 2)
	if strings.HasPrefix(specifier, "@") {
		parts = strings.SplitN(specifier, "/", 3)
		if len(parts) < 2 {
			return specifier, ""
		}
		name = parts[0] + "/" + parts[1]
		if len(parts) == 3 {
			subpath = parts[2]
		}
		return name, subpath
	}
	name = parts[0]
	if len(parts) == 2 {
		subpath = parts[1]
	}
	return name, subpath
}

// IsRemoteSpecifier reports whether the specifier is a URL that the
// browser fetches itself.
func IsRemoteSpecifier(specifier string) bool {
	return strings.HasPrefix(specifier, "http://") || strings.HasPrefix(specifier, "https://")
}

// IsPathSpecifier reports whether the specifier addresses a file by path
// rather than naming a package.
func IsPathSpecifier(specifier string) bool {
	return specifier == "." || specifier == ".." ||
		strings.HasPrefix(specifier, "./") ||
		strings.HasPrefix(specifier, "../") ||
		strings.HasPrefix(specifier, "/")
}

// WebDependencyName converts an import specifier into the name its
// installed web module is filed under. Trailing slashes are dropped and a
// ".js" or ".mjs" extension on a deep import is stripped, so
// "react-dom/server.js" installs as "react-dom/server".
func WebDependencyName(specifier string) string {
	name := strings.TrimSuffix(specifier, "/")
	if _, subpath := ParseSpecifier(name); subpath != "" {
		lower := strings.ToLower(name)
		for _, ext := range []string{".js", ".mjs"} {
			if strings.HasSuffix(lower, ext) {
				return name[:len(name)-len(ext)]
			}
		}
	}
	return name
}
