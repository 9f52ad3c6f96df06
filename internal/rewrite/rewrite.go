// Package rewrite resolves the import specifiers of built files to final
// output URLs. It runs strictly after the install phase, because bare
// specifiers resolve through the import map the installer produced.
package rewrite

import (
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pikapkg/snowpack/internal/alias"
	"github.com/pikapkg/snowpack/internal/lockfile"
	"github.com/pikapkg/snowpack/internal/logging"
	"github.com/pikapkg/snowpack/internal/metrics"
	"github.com/pikapkg/snowpack/internal/npm"
	"github.com/pikapkg/snowpack/internal/scan"
)

// Rewriter rewrites import specifiers file by file. Configure it with the
// With* setters, then call Rewrite once per built file; calls are safe to
// run concurrently across files.
type Rewriter struct {
	importMap  *lockfile.ImportMap
	aliases    alias.Table
	mounts     map[string]string
	depURL     string
	external   []string
	outDir     string
	outputURLs map[string]bool
	proxies    *ProxySet
	registry   *Registry
	log        *logging.Logger
}

func NewRewriter() *Rewriter {
	return &Rewriter{
		depURL:  "/web_modules",
		proxies: NewProxySet(),
		log:     logging.NewNopLogger(),
	}
}

// WithImportMap sets the map bare specifiers resolve through.
func (r *Rewriter) WithImportMap(m *lockfile.ImportMap) *Rewriter {
	r.importMap = m
	return r
}

// WithAliases sets the alias table consulted before any other resolution.
func (r *Rewriter) WithAliases(aliases alias.Table) *Rewriter {
	r.aliases = aliases
	return r
}

// WithMounts maps absolute source directories to their mount URLs, for
// resolving path aliases into the output tree.
func (r *Rewriter) WithMounts(mounts map[string]string) *Rewriter {
	r.mounts = mounts
	return r
}

// WithDepURL sets the URL the dependency directory is served under.
func (r *Rewriter) WithDepURL(url string) *Rewriter {
	r.depURL = url
	return r
}

// WithExternal declares packages whose imports stay bare.
func (r *Rewriter) WithExternal(external []string) *Rewriter {
	r.external = external
	return r
}

// WithOutDir sets the absolute output directory, used to locate the proxy
// modules recorded for non-module assets.
func (r *Rewriter) WithOutDir(dir string) *Rewriter {
	r.outDir = dir
	return r
}

// WithOutputURLs sets the URLs the build will have written when it
// completes. Extensionless imports probe this set for the module file
// they mean.
func (r *Rewriter) WithOutputURLs(urls map[string]bool) *Rewriter {
	r.outputURLs = urls
	return r
}

// WithRegistry records specifier-to-importer edges into reg.
func (r *Rewriter) WithRegistry(reg *Registry) *Rewriter {
	r.registry = reg
	return r
}

func (r *Rewriter) WithLogger(log *logging.Logger) *Rewriter {
	r.log = log
	return r
}

// Proxies returns the set of proxy modules rewriting has requested so
// far. Drain it only after every Rewrite call has finished.
func (r *Rewriter) Proxies() *ProxySet {
	return r.proxies
}

// Rewrite resolves every import specifier in contents. url is the file's
// own output URL, which relative results are computed against. Rewriting
// never fails: a specifier that resolves to nothing is passed through
// verbatim and reported as a warning.
func (r *Rewriter) Rewrite(url string, contents []byte) []byte {
	imports := scan.ScanImports(contents)

	// Splice back to front so earlier spans keep their offsets.
	for i := len(imports) - 1; i >= 0; i-- {
		imp := imports[i]
		resolved, ok := r.resolve(url, imp.Specifier)
		if !ok || resolved == imp.Specifier {
			continue
		}
		contents = slices.Concat(contents[:imp.Start], []byte(resolved), contents[imp.End:])
	}
	return contents
}

func (r *Rewriter) resolve(importerURL, specifier string) (string, bool) {
	if npm.IsRemoteSpecifier(specifier) {
		return "", false
	}

	if r.registry != nil {
		r.registry.Record(specifier, importerURL)
	}

	if npm.IsPathSpecifier(specifier) {
		target := specifier
		if !strings.HasPrefix(target, "/") {
			target = path.Join(path.Dir(importerURL), target)
		}
		return r.finalize(importerURL, target)
	}

	if rewritten, entry, ok := r.aliases.Resolve(specifier); ok {
		if entry.Type == alias.TypePath {
			target, ok := r.mountURL(rewritten)
			if !ok {
				metrics.UnresolvedImports.Inc()
				r.log.Warnf("import %q in %s: alias target %q is outside every mounted directory, leaving the import as is", specifier, importerURL, rewritten)
				return "", false
			}
			return r.finalize(importerURL, target)
		}
		specifier = rewritten
	}

	if pkg, _ := npm.ParseSpecifier(specifier); slices.Contains(r.external, pkg) {
		r.log.Debugf("import %q in %s is external, leaving it alone", specifier, importerURL)
		return "", false
	}

	if r.importMap != nil {
		if mapped, ok := r.importMap.Resolve(specifier); ok {
			return r.finalize(importerURL, path.Join(r.depURL, strings.TrimPrefix(mapped, "./")))
		}
	}

	metrics.UnresolvedImports.Inc()
	r.log.Warnf("import %q in %s matches no alias and no installed web module, leaving it as is", specifier, importerURL)
	return "", false
}

// mountURL translates an absolute path on disk into its output URL via
// the longest matching mount.
func (r *Rewriter) mountURL(fsPath string) (string, bool) {
	var bestDir, bestURL string
	for dir, url := range r.mounts {
		if (fsPath == dir || strings.HasPrefix(fsPath, dir+string(filepath.Separator))) && len(dir) > len(bestDir) {
			bestDir, bestURL = dir, url
		}
	}
	if bestDir == "" {
		return "", false
	}

	rel, err := filepath.Rel(bestDir, fsPath)
	if err != nil {
		return "", false
	}
	if rel == "." {
		return bestURL, true
	}
	return path.Join(bestURL, filepath.ToSlash(rel)), true
}

// finalize turns an absolute output URL into the specifier written to the
// importing file: extensionless imports probe for their module file,
// non-module assets are redirected to a proxy module, and the result is
// relative to the importer.
func (r *Rewriter) finalize(importerURL, target string) (string, bool) {
	switch ext := path.Ext(target); {
	case ext == "":
		if r.outputURLs[target+".js"] {
			target += ".js"
		} else if r.outputURLs[path.Join(target, "index.js")] {
			target = path.Join(target, "index.js")
		}
	case ext == ".js":
	case r.outputURLs[strings.TrimSuffix(target, ext)+".js"]:
		// A module source that built to .js, e.g. a .ts or .jsx import.
		target = strings.TrimSuffix(target, ext) + ".js"
	default:
		target += ProxySuffix
		r.proxies.Add(filepath.Join(r.outDir, filepath.FromSlash(strings.TrimPrefix(target, "/"))))
	}
	return relativeURL(importerURL, target), true
}

// relativeURL renders target relative to the importing file's directory,
// forward slashes only, with an explicit "./" when the path does not
// climb.
func relativeURL(importerURL, target string) string {
	rel, err := filepath.Rel(path.Dir(importerURL), target)
	if err != nil {
		return target
	}

	out := filepath.ToSlash(rel)
	if !strings.HasPrefix(out, "../") && !strings.HasPrefix(out, "./") {
		out = "./" + out
	}
	return out
}
