package scan

import (
	"io/fs"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/pikapkg/snowpack/internal/alias"
	"github.com/pikapkg/snowpack/internal/logging"
	"github.com/pikapkg/snowpack/internal/npm"
)

// ModuleExtensions are the file extensions the collector scans for
// imports.
var ModuleExtensions = []string{".js", ".jsx", ".mjs", ".ts", ".tsx"}

// InstallTarget describes how a package is imported across the scanned
// sources. Repeated sightings of the same specifier merge into one
// target.
type InstallTarget struct {
	Specifier string
	All       bool
	Default   bool
	Namespace bool
	Named     []string
}

// Merge folds another sighting of the same specifier into the target.
// Boolean demands are ORed, named bindings are unioned.
func (t InstallTarget) Merge(other InstallTarget) InstallTarget {
	t.All = t.All || other.All
	t.Default = t.Default || other.Default
	t.Namespace = t.Namespace || other.Namespace
	t.Named = append(t.Named, other.Named...)
	slices.Sort(t.Named)
	t.Named = slices.Compact(t.Named)
	return t
}

// Collector accumulates install targets from scanned sources. It is safe
// for concurrent use, so build workers can feed it directly.
type Collector struct {
	aliases alias.Table
	log     *logging.Logger

	mu      sync.Mutex
	targets map[string]InstallTarget
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{
		log:     logging.NewNopLogger(),
		targets: map[string]InstallTarget{},
	}
}

// WithAliases sets the alias table applied to specifiers before they are
// recorded. Package aliases rewrite the target, path aliases exclude it.
func (c *Collector) WithAliases(aliases alias.Table) *Collector {
	c.aliases = aliases
	return c
}

// WithLogger sets the logger used for scan diagnostics.
func (c *Collector) WithLogger(log *logging.Logger) *Collector {
	c.log = log
	return c
}

// ScanFile records every bare module import in one source file.
func (c *Collector) ScanFile(name string, contents []byte) {
	imports := ScanImports(contents)
	for _, imp := range imports {
		c.add(imp)
	}
	c.log.Debugf("scanned %s: %d import(s)", name, len(imports))
}

// ScanFS walks fsys and scans every module source in it.
func (c *Collector) ScanFS(fsys fs.FS) error {
	return fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !slices.Contains(ModuleExtensions, path.Ext(p)) {
			return nil
		}
		contents, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		c.ScanFile(p, contents)
		return nil
	})
}

// AddPackage records a package that must be installed regardless of
// whether any scanned source imports it. Since nothing is known about its
// usage, the whole module is wanted.
func (c *Collector) AddPackage(specifier string) {
	c.add(Import{Specifier: specifier, All: true})
}

func (c *Collector) add(imp Import) {
	specifier := imp.Specifier
	if specifier == "" || npm.IsPathSpecifier(specifier) || npm.IsRemoteSpecifier(specifier) {
		return
	}

	if entry, ok := c.aliases.Match(specifier); ok {
		if entry.Type == alias.TypePath {
			// Resolves to a mounted file, nothing to install.
			return
		}
		rewritten, _, _ := c.aliases.Resolve(specifier)
		c.log.Debugf("aliased %q to %q", specifier, rewritten)
		specifier = rewritten
	}

	target := InstallTarget{
		Specifier: specifier,
		All:       imp.All,
		Default:   imp.Default,
		Namespace: imp.Namespace,
		Named:     slices.Clone(imp.Named),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.targets[specifier]; ok {
		target = existing.Merge(target)
	} else {
		slices.Sort(target.Named)
		target.Named = slices.Compact(target.Named)
	}
	c.targets[specifier] = target
}

// Targets returns the merged install targets sorted by specifier.
func (c *Collector) Targets() []InstallTarget {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]InstallTarget, 0, len(c.targets))
	for _, t := range c.targets {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b InstallTarget) int {
		return strings.Compare(a.Specifier, b.Specifier)
	})
	return out
}
