// Package build runs the full pipeline: discover mounted sources, build
// each file, install the web modules the sources import, rewrite imports
// to final URLs and write the output tree.
package build

import (
	"context"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"

	"github.com/pikapkg/snowpack/internal/cache"
	"github.com/pikapkg/snowpack/internal/config"
	snowfs "github.com/pikapkg/snowpack/internal/fs"
	"github.com/pikapkg/snowpack/internal/install"
	"github.com/pikapkg/snowpack/internal/lockfile"
	"github.com/pikapkg/snowpack/internal/logging"
	"github.com/pikapkg/snowpack/internal/metrics"
	"github.com/pikapkg/snowpack/internal/npm"
	"github.com/pikapkg/snowpack/internal/pool"
	"github.com/pikapkg/snowpack/internal/progress"
	"github.com/pikapkg/snowpack/internal/rewrite"
	"github.com/pikapkg/snowpack/internal/scan"
	"github.com/pikapkg/snowpack/pkg/plugin"
)

// File is one output file of the build.
type File struct {
	// BaseExt is the final extension of the output, ExpandedExt any
	// extension chain preceding it ("app.css.proxy.js" has BaseExt ".js"
	// and ExpandedExt ".css.proxy").
	BaseExt     string
	ExpandedExt string
	Contents    []byte
	LocOnDisk   string
	URL         string
}

// Result summarizes a completed build.
type Result struct {
	Files     int
	Proxies   int
	OutDir    string
	ImportMap *lockfile.ImportMap
	Registry  *rewrite.Registry
}

// Builder drives one build. Configure with the With* setters, then call
// Run once; a Builder is not reused across builds.
type Builder struct {
	cfg       *config.Root
	rootDir   string
	registry  *plugin.Registry
	flattener install.Flattener
	cache     *cache.Cache
	log       *logging.Logger
	quiet     bool
	workers   int
}

func New(cfg *config.Root) *Builder {
	return &Builder{
		cfg:     cfg,
		rootDir: ".",
		log:     logging.NewNopLogger(),
		workers: runtime.NumCPU(),
	}
}

// WithRootDir sets the project root, the directory configuration paths
// and node_modules resolution are relative to.
func (b *Builder) WithRootDir(dir string) *Builder {
	b.rootDir = dir
	return b
}

// WithRegistry seeds the plugin registry. Plugins named in the
// configuration are instantiated into it on Run.
func (b *Builder) WithRegistry(reg *plugin.Registry) *Builder {
	b.registry = reg
	return b
}

// WithFlattener overrides the dependency flattener, mainly for tests.
func (b *Builder) WithFlattener(f install.Flattener) *Builder {
	b.flattener = f
	return b
}

// WithCache wires the install cache.
func (b *Builder) WithCache(c *cache.Cache) *Builder {
	b.cache = c
	return b
}

func (b *Builder) WithLogger(log *logging.Logger) *Builder {
	b.log = log
	return b
}

// WithQuiet disables progress bars.
func (b *Builder) WithQuiet(quiet bool) *Builder {
	b.quiet = quiet
	return b
}

// WithWorkers bounds the per-file build and rewrite stages.
func (b *Builder) WithWorkers(n int) *Builder {
	b.workers = n
	return b
}

// sourceFile is one discovered file of a mount, not yet built.
type sourceFile struct {
	mountDir string
	mountURL string
	rel      string
}

func (s sourceFile) abs() string {
	return filepath.Join(s.mountDir, filepath.FromSlash(s.rel))
}

// Run executes the pipeline. The install phase is a hard barrier: if any
// web module fails to install, Run returns before a single output file is
// touched, leaving a previous build intact.
func (b *Builder) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	metrics.LastBuildStart.SetToCurrentTime()
	defer func() {
		metrics.BuildDuration.Observe(time.Since(start).Seconds())
		metrics.LastBuildEnd.SetToCurrentTime()
	}()

	rootAbs, err := filepath.Abs(b.rootDir)
	if err != nil {
		return nil, err
	}
	outAbs := filepath.Join(rootAbs, filepath.FromSlash(b.cfg.Out))

	registry, err := b.pluginRegistry()
	if err != nil {
		return nil, err
	}

	sources, mounts, err := b.discover(rootAbs)
	if err != nil {
		return nil, err
	}

	files, err := b.buildFiles(ctx, registry, sources)
	if err != nil {
		return nil, err
	}

	// Transformers run before scanning so that imports they inject are
	// collected and installed like any other.
	for _, t := range registry.Transformers() {
		for _, f := range files {
			res, err := t.Transform(ctx, &plugin.TransformRequest{URL: f.URL, Ext: f.BaseExt, Contents: f.Contents})
			if err != nil {
				return nil, fmt.Errorf("failed to transform %s: %w", f.URL, err)
			}
			if res != nil {
				f.Contents = res.Contents
			}
		}
	}

	aliases := b.cfg.Alias.Table()

	collector := scan.NewCollector().WithAliases(aliases).WithLogger(b.log)
	for _, f := range files {
		if f.BaseExt == ".js" {
			collector.ScanFile(f.URL, f.Contents)
		}
	}
	for _, pkg := range b.cfg.Install.Packages {
		collector.AddPackage(pkg)
	}

	importMap, err := b.install(ctx, outAbs, rootAbs, collector.Targets())
	if err != nil {
		return nil, err
	}

	urls := make(map[string]bool, len(files))
	for _, f := range files {
		urls[f.URL] = true
	}

	reg := rewrite.NewRegistry()
	rewriter := rewrite.NewRewriter().
		WithImportMap(importMap).
		WithAliases(aliases).
		WithMounts(mounts).
		WithDepURL(b.depURL()).
		WithExternal(b.cfg.Install.External).
		WithOutDir(outAbs).
		WithOutputURLs(urls).
		WithRegistry(reg).
		WithLogger(b.log)

	rewrites := pool.New(ctx, b.workers)
	for _, f := range files {
		if f.BaseExt != ".js" {
			continue
		}
		rewrites.Submit(f.URL, func(context.Context) error {
			f.Contents = rewriter.Rewrite(f.URL, f.Contents)
			return nil
		})
	}
	if err := rewrites.Wait(); err != nil {
		return nil, err
	}

	if err := b.writeOutput(ctx, outAbs, files); err != nil {
		return nil, err
	}

	proxies := rewriter.Proxies()
	if err := rewrite.NewProxyWriter(outAbs).WithLogger(b.log).Write(ctx, proxies); err != nil {
		return nil, err
	}

	for _, opt := range registry.Optimizers() {
		if err := opt.Optimize(ctx, outAbs); err != nil {
			return nil, fmt.Errorf("failed to optimize build: %w", err)
		}
	}

	b.log.Infof("built %d file(s) into %s", len(files), b.cfg.Out)
	return &Result{
		Files:     len(files),
		Proxies:   proxies.Len(),
		OutDir:    outAbs,
		ImportMap: importMap,
		Registry:  reg,
	}, nil
}

// pluginRegistry instantiates the configured plugins into the seeded
// registry, if any.
func (b *Builder) pluginRegistry() (*plugin.Registry, error) {
	registry := b.registry
	if registry == nil {
		registry = plugin.NewRegistry()
	}

	// Sort names to ensure deterministic errors.
	for _, name := range slices.Sorted(maps.Keys(b.cfg.Plugins)) {
		factory, ok := plugin.LookupFactory(name)
		if !ok {
			return nil, fmt.Errorf("unknown plugin %q", name)
		}
		p, err := factory(b.cfg.Plugins[name])
		if err != nil {
			return nil, fmt.Errorf("failed to configure plugin %q: %w", name, err)
		}
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// discover walks every mount and lists the files the build will process.
// It also returns the absolute mount directory to URL mapping used for
// path alias resolution.
func (b *Builder) discover(rootAbs string) ([]sourceFile, map[string]string, error) {
	ignores, err := b.ignores(rootAbs)
	if err != nil {
		return nil, nil, err
	}

	var (
		sources []sourceFile
		mounts  = map[string]string{}
	)

	for dir, url := range b.cfg.SortedMounts() {
		mountAbs := filepath.Join(rootAbs, filepath.FromSlash(dir))
		if fi, err := os.Stat(mountAbs); err != nil || !fi.IsDir() {
			return nil, nil, fmt.Errorf("mount directory %q does not exist", dir)
		}
		mounts[mountAbs] = url

		fsys, err := snowfs.NewFilterFS(os.DirFS(mountAbs), nil, b.cfg.Exclude)
		if err != nil {
			return nil, nil, err
		}

		if ok, err := snowfs.FSContainsFiles(fsys); err != nil {
			return nil, nil, err
		} else if !ok {
			b.log.Warnf("mount directory %q contains no files", dir)
			continue
		}

		err = fs.WalkDir(fsys, ".", func(rel string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if ignores.match(filepath.Join(mountAbs, filepath.FromSlash(rel))) {
				return nil
			}

			sources = append(sources, sourceFile{mountDir: mountAbs, mountURL: url, rel: rel})
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
	}

	return sources, mounts, nil
}

// ignores collects the .gitignore files that apply to the build: the
// project root's and one per mount directory.
func (b *Builder) ignores(rootAbs string) (ignoreSet, error) {
	if !b.cfg.GitignoreEnabled() {
		return nil, nil
	}

	dirs := []string{rootAbs}
	for dir := range b.cfg.SortedMounts() {
		dirs = append(dirs, filepath.Join(rootAbs, filepath.FromSlash(dir)))
	}

	var set ignoreSet
	for _, dir := range dirs {
		p := filepath.Join(dir, ".gitignore")
		if _, err := os.Stat(p); err != nil {
			continue
		}
		gi, err := ignore.CompileIgnoreFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		set = append(set, scopedIgnore{base: dir, gi: gi})
	}
	return set, nil
}

type scopedIgnore struct {
	base string
	gi   *ignore.GitIgnore
}

type ignoreSet []scopedIgnore

func (s ignoreSet) match(abs string) bool {
	for _, si := range s {
		rel, err := filepath.Rel(si.base, abs)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if si.gi.MatchesPath(filepath.ToSlash(rel)) {
			return true
		}
	}
	return false
}

// buildFiles runs the per-file build stage. Files are independent, so the
// stage runs on the worker pool.
func (b *Builder) buildFiles(ctx context.Context, registry *plugin.Registry, sources []sourceFile) ([]*File, error) {
	bar := progress.New(len(sources), "building source files", b.quiet)
	defer bar.Finish()

	var (
		mu    sync.Mutex
		files []*File
	)

	workers := pool.New(ctx, b.workers)
	for _, src := range sources {
		workers.Submit(src.rel, func(ctx context.Context) error {
			f, err := b.buildFile(ctx, registry, src)
			if err != nil {
				return err
			}
			metrics.FilesBuilt.WithLabelValues(src.mountURL).Inc()
			bar.Add(1)

			mu.Lock()
			defer mu.Unlock()
			files = append(files, f)
			return nil
		})
	}
	if err := workers.Wait(); err != nil {
		return nil, err
	}

	slices.SortFunc(files, func(a, b *File) int {
		return strings.Compare(a.URL, b.URL)
	})

	// Output URLs must be unique, or two sources would race for the same
	// file. Checked on built names, since building can change extensions.
	for i := 1; i < len(files); i++ {
		if files[i].URL == files[i-1].URL {
			return nil, fmt.Errorf("files %q and %q both build to %s", files[i-1].LocOnDisk, files[i].LocOnDisk, files[i].URL)
		}
	}
	return files, nil
}

// buildFile turns one source file into its output form: a plugin loader
// if one claims the extension, the built-in transpile for module sources,
// a plain copy for everything else.
func (b *Builder) buildFile(ctx context.Context, registry *plugin.Registry, src sourceFile) (*File, error) {
	contents, err := os.ReadFile(src.abs())
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(path.Ext(src.rel))
	outExt := ext

	if loader, loaderExt, ok := registry.LoaderFor(ext); ok {
		res, err := loader.Load(ctx, &plugin.LoadRequest{Path: src.abs(), Ext: ext, Contents: contents})
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", src.rel, err)
		}
		if res != nil {
			contents = res.Contents
			outExt = loaderExt
		}
	} else if loader, ok := builtinLoaders[ext]; ok {
		res := api.Transform(string(contents), api.TransformOptions{
			Loader:     loader,
			Target:     api.ESNext,
			Sourcefile: src.rel,
			LogLevel:   api.LogLevelSilent,
		})
		if len(res.Errors) > 0 {
			return nil, fmt.Errorf("failed to build %s: %s", src.rel, res.Errors[0].Text)
		}
		contents = res.Code
		outExt = ".js"
	} else if ext == ".mjs" {
		outExt = ".js"
	}

	rel := src.rel
	if outExt != ext {
		rel = strings.TrimSuffix(rel, path.Ext(rel)) + outExt
	}

	url := outputURL(src.mountURL, rel)
	baseExt, expandedExt := splitExts(url)
	return &File{
		BaseExt:     baseExt,
		ExpandedExt: expandedExt,
		Contents:    contents,
		LocOnDisk:   src.abs(),
		URL:         url,
	}, nil
}

// builtinLoaders maps module source extensions to the embedded transpiler,
// for projects that do not bring a plugin for them.
var builtinLoaders = map[string]api.Loader{
	".ts":  api.LoaderTS,
	".tsx": api.LoaderTSX,
	".jsx": api.LoaderJSX,
}

// install runs the install barrier for the collected targets.
func (b *Builder) install(ctx context.Context, outAbs, rootAbs string, targets []scan.InstallTarget) (*lockfile.ImportMap, error) {
	patches, err := b.cfg.Install.ManifestPatchSet()
	if err != nil {
		return nil, err
	}

	resolver := npm.NewResolver().
		WithLookupFields(b.cfg.Install.PackageLookupFields).
		WithManifestPatches(patches).
		WithLogger(b.log)

	installer := install.New().
		WithDest(filepath.Join(outAbs, filepath.FromSlash(b.cfg.Install.Dest))).
		WithSearchDir(rootAbs).
		WithResolver(resolver).
		WithCache(b.cache).
		WithExternal(b.cfg.Install.External).
		WithEnv(b.cfg.Install.NodeEnv()).
		WithSourceMap(b.cfg.Install.SourceMapEnabled()).
		WithTreeShaking(b.cfg.Install.TreeShakingEnabled()).
		WithLookupFields(b.cfg.Install.PackageLookupFields).
		WithLogger(b.log).
		WithQuiet(b.quiet)
	if b.flattener != nil {
		installer.WithFlattener(b.flattener)
	}

	return installer.Install(ctx, targets)
}

// depURL is the URL the dependency directory is served under.
func (b *Builder) depURL() string {
	dest := filepath.ToSlash(b.cfg.Install.Dest)
	if path.IsAbs(dest) {
		return "/" + path.Base(dest)
	}
	return "/" + dest
}

// writeOutput replaces the output directory with the built files, sparing
// the dependency directory the installer just wrote.
func (b *Builder) writeOutput(ctx context.Context, outAbs string, files []*File) error {
	keep, _, _ := strings.Cut(filepath.ToSlash(b.cfg.Install.Dest), "/")
	if err := snowfs.RemoveContents(outAbs, keep); err != nil {
		return fmt.Errorf("failed to clean %s: %w", b.cfg.Out, err)
	}

	g, _ := errgroup.WithContext(ctx)
	for _, f := range files {
		g.Go(func() error {
			return snowfs.WriteFile(filepath.Join(outAbs, filepath.FromSlash(strings.TrimPrefix(f.URL, "/"))), f.Contents)
		})
	}
	return g.Wait()
}

func outputURL(mountURL, rel string) string {
	return path.Join(mountURL, filepath.ToSlash(rel))
}

// splitExts splits a name into its final extension and the extension
// chain preceding it.
func splitExts(name string) (baseExt, expandedExt string) {
	baseExt = path.Ext(name)
	rest := strings.TrimSuffix(name, baseExt)
	for {
		ext := path.Ext(rest)
		if ext == "" {
			return baseExt, expandedExt
		}
		expandedExt = ext + expandedExt
		rest = strings.TrimSuffix(rest, ext)
	}
}
