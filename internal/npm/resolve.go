package npm

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"github.com/pikapkg/snowpack/internal/jsonpatch"
	"github.com/pikapkg/snowpack/internal/logging"
)

// manifestCacheSize bounds the number of (package, directory) resolutions
// kept in memory. Large dependency trees re-resolve the same handful of
// packages constantly.
const manifestCacheSize = 512

var (
	errManifestNotFound = errors.New("package manifest not found")
	errPathNotExported  = errors.New("package.json is not exported")
)

// Resolver locates packages and their manifests on disk. Lookups are
// cached, so a Resolver must not outlive changes to node_modules.
type Resolver struct {
	lookupFields []string
	patches      map[string]jsonpatch.Patch
	cache        *lru.Cache
	log          *logging.Logger
}

type cachedManifest struct {
	path     string
	manifest *Manifest
}

// NewResolver returns a resolver with the default entrypoint lookup
// fields and an empty cache.
func NewResolver() *Resolver {
	cache, err := lru.New(manifestCacheSize)
	if err != nil {
		panic(err)
	}
	return &Resolver{
		lookupFields: DefaultLookupFields,
		cache:        cache,
		log:          logging.NewNopLogger(),
	}
}

// WithLookupFields overrides the manifest fields consulted for package
// entrypoints. Passing nil keeps the defaults.
func (r *Resolver) WithLookupFields(fields []string) *Resolver {
	if fields != nil {
		r.lookupFields = fields
	}
	return r
}

// WithManifestPatches installs patches that are applied to the named
// packages' manifests before parsing.
func (r *Resolver) WithManifestPatches(patches map[string]jsonpatch.Patch) *Resolver {
	r.patches = patches
	return r
}

// WithLogger sets the logger used for resolution diagnostics.
func (r *Resolver) WithLogger(log *logging.Logger) *Resolver {
	r.log = log
	return r
}

// ResolveManifest finds the package.json for pkg, searching the
// node_modules chain upward from fromDir. It returns the manifest path
// and the parsed manifest, or ("", nil) when the package cannot be
// resolved. Resolution failures are never fatal here; callers decide
// whether a missing manifest matters.
func (r *Resolver) ResolveManifest(pkg, fromDir string) (string, *Manifest) {
	key := pkg + "\x00" + fromDir
	if v, ok := r.cache.Get(key); ok {
		hit := v.(cachedManifest)
		return hit.path, hit.manifest
	}

	manifestPath, manifest := r.resolveManifest(pkg, fromDir)
	r.cache.Add(key, cachedManifest{path: manifestPath, manifest: manifest})
	return manifestPath, manifest
}

func (r *Resolver) resolveManifest(pkg, fromDir string) (string, *Manifest) {
	manifestPath, manifest, err := r.primary(pkg, fromDir)
	if err == nil {
		return manifestPath, manifest
	}
	if !errors.Is(err, errPathNotExported) {
		r.log.Debugf("manifest resolution for %q failed: %v", pkg, err)
		return "", nil
	}

	// The package hides package.json behind its export map. The module
	// entrypoint is still exported, so resolve that and walk back to the
	// package directory it lives under.
	return r.fallback(pkg, fromDir)
}

// primary resolves <pkg>/package.json the way the node runtime would,
// including refusing to cross an export map that does not expose it.
func (r *Resolver) primary(pkg, fromDir string) (string, *Manifest, error) {
	root, err := findPackageRoot(pkg, fromDir)
	if err != nil {
		return "", nil, err
	}

	manifestPath := filepath.Join(root, "package.json")
	manifest, err := r.readManifest(pkg, manifestPath)
	if err != nil {
		return "", nil, err
	}

	if manifest.Exports != nil && !exportsManifest(manifest.Exports) {
		return "", nil, fmt.Errorf("%s: %w", pkg, errPathNotExported)
	}

	return manifestPath, manifest, nil
}

// fallback derives the manifest location from the package's resolved
// entrypoint: truncate the entrypoint path after the last /<pkg>/ segment
// and read the package.json next to it.
func (r *Resolver) fallback(pkg, fromDir string) (string, *Manifest) {
	entry, err := r.ResolveEntrypoint(pkg, "", fromDir)
	if err != nil {
		return "", nil
	}

	marker := "/" + pkg + "/"
	slashed := filepath.ToSlash(entry)
	idx := strings.LastIndex(slashed, marker)
	if idx < 0 {
		return "", nil
	}

	manifestPath := filepath.FromSlash(slashed[:idx+len(marker)] + "package.json")
	manifest, err := r.readManifest(pkg, manifestPath)
	if err != nil {
		return "", nil
	}
	return manifestPath, manifest
}

// ResolveEntrypoint resolves the file a package import loads. subpath is
// the path inside the package ("" for the root entry). Unlike manifest
// resolution, failure to find an entrypoint is an error the caller is
// expected to surface.
func (r *Resolver) ResolveEntrypoint(pkg, subpath, fromDir string) (string, error) {
	root, err := findPackageRoot(pkg, fromDir)
	if err != nil {
		return "", err
	}

	manifest, _ := r.readManifest(pkg, filepath.Join(root, "package.json"))

	if manifest != nil && manifest.Exports != nil {
		if target, ok := resolveExports(manifest.Exports, subpath); ok {
			p := filepath.Join(root, filepath.FromSlash(target))
			if fileExists(p) {
				return p, nil
			}
			return "", fmt.Errorf("package %q exports %q but the file does not exist", pkg, target)
		}
		// Fall through when the export map has no match. Probing keeps
		// packages with partial export maps installable.
	}

	if subpath == "" {
		entry := "index.js"
		if manifest != nil {
			if field := manifest.EntryField(r.lookupFields); field != "" {
				entry = field
			}
		}
		if p, ok := probeFile(filepath.Join(root, filepath.FromSlash(entry))); ok {
			return p, nil
		}
		return "", fmt.Errorf("no module entrypoint found for package %q", pkg)
	}

	if p, ok := probeFile(filepath.Join(root, filepath.FromSlash(subpath))); ok {
		return p, nil
	}
	return "", fmt.Errorf("no module entrypoint found for %q", pkg+"/"+subpath)
}

func (r *Resolver) readManifest(pkg, manifestPath string) (*Manifest, error) {
	bs, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", pkg, errManifestNotFound)
	}

	if patch, ok := r.patches[pkg]; ok {
		patched, err := jsonpatch.Apply(patch, bs)
		if err != nil {
			return nil, fmt.Errorf("patch manifest for %q: %w", pkg, err)
		}
		bs = patched
		r.log.Debugf("patched manifest for %q", pkg)
	}

	manifest, err := ParseManifest(bs)
	if err != nil {
		return nil, fmt.Errorf("parse manifest for %q: %w", pkg, err)
	}
	return manifest, nil
}

// findPackageRoot walks up the directory tree from fromDir looking for
// node_modules/<pkg>.
func findPackageRoot(pkg, fromDir string) (string, error) {
	dir := fromDir
	for {
		candidate := filepath.Join(dir, "node_modules", filepath.FromSlash(pkg))
		if fi, err := os.Stat(candidate); err == nil && fi.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("package %q not found in any node_modules directory above %s", pkg, fromDir)
		}
		dir = parent
	}
}

// exportsManifest reports whether an export map exposes "./package.json".
func exportsManifest(exports any) bool {
	obj, ok := exports.(map[string]any)
	if !ok {
		// The string and array shorthands export only the root entry.
		return false
	}

	subpaths := false
	for k := range obj {
		if strings.HasPrefix(k, ".") {
			subpaths = true
			break
		}
	}
	if !subpaths {
		// A bare conditions object also exports only the root entry.
		return false
	}

	for k := range obj {
		if k == "./package.json" || matchExportPattern(k, "./package.json") {
			return true
		}
	}
	return false
}

// exportConditions is the preference order for conditional export values.
// Browser builds want ESM, so "require" comes last.
var exportConditions = []string{"browser", "import", "module", "default", "require"}

// resolveExports maps a subpath ("" for the root) through an export map to
// a package-relative file path.
func resolveExports(exports any, subpath string) (string, bool) {
	key := "."
	if subpath != "" {
		key = "./" + subpath
	}

	switch e := exports.(type) {
	case string:
		if key == "." {
			return e, true
		}
		return "", false
	case map[string]any:
		subpathKeys := false
		for k := range e {
			if strings.HasPrefix(k, ".") {
				subpathKeys = true
				break
			}
		}
		if !subpathKeys {
			// Conditions object for the root entry.
			if key == "." {
				return resolveExportValue(e)
			}
			return "", false
		}

		if v, ok := e[key]; ok {
			return resolveExportValue(v)
		}

		// Star patterns, longest literal prefix wins.
		var bestPattern string
		for k := range e {
			if !strings.Contains(k, "*") || !matchExportPattern(k, key) {
				continue
			}
			if len(k) > len(bestPattern) {
				bestPattern = k
			}
		}
		if bestPattern == "" {
			return "", false
		}

		target, ok := resolveExportValue(e[bestPattern])
		if !ok {
			return "", false
		}
		star := strings.Index(bestPattern, "*")
		captured := key[star : len(key)-(len(bestPattern)-star-1)]
		return strings.Replace(target, "*", captured, 1), true
	default:
		return "", false
	}
}

func resolveExportValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case map[string]any:
		for _, cond := range exportConditions {
			if cv, ok := t[cond]; ok {
				if s, ok := resolveExportValue(cv); ok {
					return s, true
				}
			}
		}
		return "", false
	case []any:
		for _, item := range t {
			if s, ok := resolveExportValue(item); ok {
				return s, true
			}
		}
		return "", false
	default:
		return "", false
	}
}

func matchExportPattern(pattern, subpath string) bool {
	star := strings.Index(pattern, "*")
	if star < 0 {
		return pattern == subpath
	}
	prefix, suffix := pattern[:star], pattern[star+1:]
	return len(subpath) >= len(prefix)+len(suffix) &&
		strings.HasPrefix(subpath, prefix) &&
		strings.HasSuffix(subpath, suffix)
}

// probeFile resolves p the way a bundler would: as given, with a module
// extension appended, or as a directory index.
func probeFile(p string) (string, bool) {
	if fileExists(p) {
		return p, true
	}
	if path.Ext(filepath.ToSlash(p)) == "" {
		for _, ext := range []string{".js", ".mjs"} {
			if fileExists(p + ext) {
				return p + ext, true
			}
		}
	}
	for _, index := range []string{"index.js", "index.mjs"} {
		if fileExists(filepath.Join(p, index)) {
			return filepath.Join(p, index), true
		}
	}
	return "", false
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}
