// Package install turns collected install targets into browser-ready web
// modules. Each target resolves to a package entrypoint, the entrypoints
// are flattened into single-file ES modules under the dependency
// directory, and an import map records where every specifier landed.
package install

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/pikapkg/snowpack/internal/cache"
	snowfs "github.com/pikapkg/snowpack/internal/fs"
	"github.com/pikapkg/snowpack/internal/lockfile"
	"github.com/pikapkg/snowpack/internal/logging"
	"github.com/pikapkg/snowpack/internal/metrics"
	"github.com/pikapkg/snowpack/internal/npm"
	"github.com/pikapkg/snowpack/internal/progress"
	"github.com/pikapkg/snowpack/internal/scan"
)

// Installer installs web modules into a dependency directory. Configure it
// with the With* setters before calling Install.
type Installer struct {
	dest         string
	searchDir    string
	resolver     *npm.Resolver
	flattener    Flattener
	cache        *cache.Cache
	external     []string
	env          string
	sourceMap    bool
	treeShaking  bool
	lookupFields []string
	log          *logging.Logger
	quiet        bool
}

func New() *Installer {
	return &Installer{
		dest:         "web_modules",
		searchDir:    ".",
		resolver:     npm.NewResolver(),
		flattener:    ESBuildFlattener{},
		env:          "production",
		treeShaking:  true,
		lookupFields: npm.DefaultLookupFields,
		log:          logging.NewNopLogger(),
	}
}

// WithDest sets the directory installed modules are written to.
func (i *Installer) WithDest(dest string) *Installer {
	i.dest = dest
	return i
}

// WithSearchDir sets the directory package resolution starts from,
// typically the project root holding node_modules.
func (i *Installer) WithSearchDir(dir string) *Installer {
	i.searchDir = dir
	return i
}

func (i *Installer) WithResolver(resolver *npm.Resolver) *Installer {
	i.resolver = resolver
	return i
}

func (i *Installer) WithFlattener(flattener Flattener) *Installer {
	i.flattener = flattener
	return i
}

// WithCache enables skipping installs whose inputs have not changed.
func (i *Installer) WithCache(c *cache.Cache) *Installer {
	i.cache = c
	return i
}

// WithExternal declares packages that are never installed and stay bare
// imports in the output.
func (i *Installer) WithExternal(external []string) *Installer {
	i.external = external
	return i
}

// WithEnv sets the value substituted for process.env.NODE_ENV.
func (i *Installer) WithEnv(env string) *Installer {
	if env != "" {
		i.env = env
	}
	return i
}

func (i *Installer) WithSourceMap(enabled bool) *Installer {
	i.sourceMap = enabled
	return i
}

func (i *Installer) WithTreeShaking(enabled bool) *Installer {
	i.treeShaking = enabled
	return i
}

// WithLookupFields overrides the manifest fields consulted for package
// entrypoints. Passing nil keeps the defaults.
func (i *Installer) WithLookupFields(fields []string) *Installer {
	if fields != nil {
		i.lookupFields = fields
		i.resolver.WithLookupFields(fields)
	}
	return i
}

func (i *Installer) WithLogger(log *logging.Logger) *Installer {
	i.log = log
	return i
}

// WithQuiet disables the terminal progress bar.
func (i *Installer) WithQuiet(quiet bool) *Installer {
	i.quiet = quiet
	return i
}

// resolution pairs an install target with the entrypoint it resolved to.
type resolution struct {
	specifier string
	depName   string
	pkg       string
	entry     string
}

// Install resolves every target, flattens the resolved entrypoints into
// the dependency directory and writes the import map. The returned map is
// what the rewrite phase resolves bare specifiers against. On failure
// nothing is written: rewriting must never run against a half-installed
// module tree.
func (i *Installer) Install(ctx context.Context, targets []scan.InstallTarget) (*lockfile.ImportMap, error) {
	start := time.Now()
	defer func() {
		metrics.InstallDuration.Observe(time.Since(start).Seconds())
	}()

	targets = slices.SortedFunc(slices.Values(targets), func(a, b scan.InstallTarget) int {
		return strings.Compare(a.Specifier, b.Specifier)
	})

	destAbs, err := filepath.Abs(i.dest)
	if err != nil {
		return nil, err
	}
	searchAbs, err := filepath.Abs(i.searchDir)
	if err != nil {
		return nil, err
	}

	existing, err := lockfile.Read(destAbs)
	if err != nil {
		return nil, fmt.Errorf("failed to read lockfile: %w", err)
	}

	bar := progress.New(len(targets)+1, "installing web modules", i.quiet)
	defer bar.Finish()

	var (
		resolutions []resolution
		manifests   = map[string]*npm.Manifest{}
		versions    = map[string]string{}
	)

	for _, t := range targets {
		pkg, subpath := npm.ParseSpecifier(t.Specifier)
		if slices.Contains(i.external, pkg) {
			i.log.Debugf("leaving %q external", t.Specifier)
			bar.Add(1)
			continue
		}

		if _, seen := manifests[pkg]; !seen {
			manifestPath, manifest := i.resolver.ResolveManifest(pkg, searchAbs)
			if manifest == nil {
				i.log.Warnf("no manifest found for %q, installing from its entrypoint alone", pkg)
			} else {
				i.log.Debugf("resolved manifest for %q at %s", pkg, manifestPath)
				versions[pkg] = manifest.Version
			}
			manifests[pkg] = manifest
		}

		entry, err := i.resolver.ResolveEntrypoint(pkg, subpath, searchAbs)
		if err != nil {
			metrics.InstallFailed.WithLabelValues(pkg).Inc()
			return nil, &InstallError{Package: t.Specifier, Err: err}
		}

		resolutions = append(resolutions, resolution{
			specifier: t.Specifier,
			depName:   npm.WebDependencyName(t.Specifier),
			pkg:       pkg,
			entry:     entry,
		})
		bar.Add(1)
	}

	if len(resolutions) == 0 {
		i.log.Debugf("no web modules to install")
		return lockfile.New(), nil
	}

	i.warnPeerDependencies(manifests, versions)

	fingerprint := i.fingerprint(resolutions, versions)

	if i.canSkip(ctx, fingerprint, existing, resolutions, destAbs) {
		i.log.Infof("web modules already up to date, skipping install")
		metrics.InstallSkipped.Inc()
		bar.Add(1)
		return existing, nil
	}

	entrypoints := make(map[string]string, len(resolutions))
	for _, r := range resolutions {
		entrypoints[r.depName] = r.entry
	}

	files, err := i.flattener.Flatten(ctx, &FlattenRequest{
		Entrypoints: entrypoints,
		DestDir:     destAbs,
		SearchDir:   searchAbs,
		External:    i.external,
		Env:         i.env,
		MainFields:  esbuildMainFields(i.lookupFields),
		SourceMap:   i.sourceMap,
		TreeShaking: i.treeShaking,
	})
	if err != nil {
		pkg := packageFromError(err, resolutions[0].pkg)
		metrics.InstallFailed.WithLabelValues(pkg).Inc()
		return nil, &InstallError{Package: pkg, Err: err}
	}

	if err := snowfs.RemoveContents(destAbs); err != nil {
		return nil, fmt.Errorf("failed to clean %s: %w", i.dest, err)
	}

	written := make(map[string]bool, len(files))
	for _, f := range files {
		if err := snowfs.WriteFile(f.Path, f.Contents); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.Path, err)
		}
		written[f.Path] = true
	}

	m := lockfile.New()
	for _, r := range resolutions {
		if expected := filepath.Join(destAbs, filepath.FromSlash(r.depName)+".js"); !written[expected] {
			metrics.InstallFailed.WithLabelValues(r.pkg).Inc()
			return nil, &InstallError{Package: r.specifier, Err: fmt.Errorf("flattening produced no module for %q", r.depName)}
		}
		m.Add(r.specifier, "./"+r.depName+".js")
	}

	if err := m.Write(destAbs); err != nil {
		return nil, fmt.Errorf("failed to write lockfile: %w", err)
	}

	if existing != nil {
		if diff := lockfile.Diff(existing, m); diff != "" {
			i.log.Infof("import map changed:\n%s", diff)
		}
	}

	if i.cache != nil {
		pkgs := make([]cache.Package, len(resolutions))
		for idx, r := range resolutions {
			pkgs[idx] = cache.Package{Name: r.specifier, Version: versions[r.pkg], Entrypoint: r.entry}
		}
		if err := i.cache.RecordInstall(ctx, fingerprint, pkgs); err != nil {
			i.log.Warnf("failed to record install in cache: %v", err)
		}
	}

	metrics.InstallCount.Inc()
	metrics.PackagesInstalled.Set(float64(len(entrypoints)))
	bar.Add(1)
	i.log.Infof("installed %d web module(s) into %s", len(entrypoints), i.dest)
	return m, nil
}

// warnPeerDependencies reports peers that are missing from the install or
// installed at a version outside the declared range. Peers never fail an
// install, packages routinely work with peers the ranges predate.
func (i *Installer) warnPeerDependencies(manifests map[string]*npm.Manifest, versions map[string]string) {
	for _, pkg := range slices.Sorted(maps.Keys(manifests)) {
		m := manifests[pkg]
		if m == nil {
			continue
		}
		for _, peer := range slices.Sorted(maps.Keys(m.PeerDependencies)) {
			rng := m.PeerDependencies[peer]
			version, ok := versions[peer]
			if !ok {
				if slices.Contains(i.external, peer) {
					continue
				}
				i.log.Warnf("%s expects a peer %s (%s) which is not being installed", pkg, peer, rng)
				continue
			}

			c, err := semver.NewConstraint(rng)
			if err != nil {
				// Ranges semver cannot express, like workspace protocols.
				continue
			}
			v, err := semver.NewVersion(version)
			if err != nil {
				continue
			}
			if !c.Check(v) {
				i.log.Warnf("%s expects peer %s@%s, found %s", pkg, peer, rng, version)
			}
		}
	}
}

// fingerprint summarizes everything that influences the flattened output.
// Matching fingerprints mean an install can be skipped wholesale.
func (i *Installer) fingerprint(resolutions []resolution, versions map[string]string) string {
	h := sha256.New()
	for _, r := range resolutions {
		fmt.Fprintf(h, "%s@%s|%s\n", r.specifier, versions[r.pkg], r.entry)
	}
	fmt.Fprintf(h, "env=%s sourcemap=%t treeshaking=%t external=%s fields=%s\n",
		i.env, i.sourceMap, i.treeShaking,
		strings.Join(i.external, ","), strings.Join(i.lookupFields, ","))
	return hex.EncodeToString(h.Sum(nil))
}

// canSkip reports whether the previous install already covers every
// target. The lockfile must resolve each specifier to a file that still
// exists, and when a cache is wired up the recorded fingerprint must match
// as well, so that entrypoint or option changes force a fresh install.
func (i *Installer) canSkip(ctx context.Context, fingerprint string, existing *lockfile.ImportMap, resolutions []resolution, destAbs string) bool {
	if existing == nil || len(existing.Imports) != len(resolutions) {
		return false
	}

	for _, r := range resolutions {
		url, ok := existing.Resolve(r.specifier)
		if !ok {
			return false
		}
		fi, err := os.Stat(filepath.Join(destAbs, filepath.FromSlash(strings.TrimPrefix(url, "./"))))
		if err != nil || fi.IsDir() {
			return false
		}
	}

	if i.cache != nil {
		cached, err := i.cache.Fingerprint(ctx)
		if err != nil {
			i.log.Warnf("failed to read install cache: %v", err)
			return false
		}
		if cached != fingerprint {
			return false
		}
	}

	return true
}

// esbuildMainFields reduces the entry lookup fields to the plain manifest
// field names the bundler understands. Vendor extensions like
// "browser:module" have no esbuild counterpart; the resolver still honors
// them, the bundler falls back to the plain fields in their declared order.
func esbuildMainFields(fields []string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if strings.Contains(f, ":") {
			continue
		}
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

// packageFromError attributes a flattening failure to the package whose
// files appear in the error text. The last node_modules marker wins so
// that nested installs blame the innermost package.
func packageFromError(err error, fallback string) string {
	text := err.Error()
	idx := strings.LastIndex(text, "node_modules/")
	if idx < 0 {
		return fallback
	}

	rest := text[idx+len("node_modules/"):]
	if end := strings.IndexAny(rest, ": ;\n\t"); end >= 0 {
		rest = rest[:end]
	}
	parts := strings.Split(rest, "/")
	if parts[0] == "" {
		return fallback
	}
	if strings.HasPrefix(parts[0], "@") && len(parts) > 1 && parts[1] != "" {
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}
