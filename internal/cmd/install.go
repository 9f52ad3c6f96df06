package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yalue/merged_fs"

	snowfs "github.com/pikapkg/snowpack/internal/fs"
	"github.com/pikapkg/snowpack/internal/fs/mountfs"
	"github.com/pikapkg/snowpack/internal/install"
	"github.com/pikapkg/snowpack/internal/logging"
	"github.com/pikapkg/snowpack/internal/npm"
	"github.com/pikapkg/snowpack/internal/scan"
	"github.com/pikapkg/snowpack/internal/util"
)

func init() {
	params := commonParams{logLevel: logging.LevelInfo}

	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Install the web modules the mounted sources import",
		Long: `Install scans the mounted directories for import specifiers and
installs the imported packages into the dependency directory, without
building or rewriting any source file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInstall(cmd.Context(), params)
		},
	}

	params.addFlags(installCmd)
	RootCommand.AddCommand(installCmd)
}

func runInstall(ctx context.Context, params commonParams) error {
	log := params.logger()

	cfg, err := loadConfig(params.configFiles)
	if err != nil {
		return err
	}

	root, err := os.Getwd()
	if err != nil {
		return err
	}

	collector := scan.NewCollector().
		WithAliases(cfg.Alias.Table()).
		WithLogger(log)

	// Unlike a build, the standalone install scans the raw sources. The
	// mounts are presented under their URLs and merged into one view,
	// since only the import specifiers matter here.
	var trees []fs.FS
	for dir, url := range cfg.SortedMounts() {
		mountAbs := filepath.Join(root, filepath.FromSlash(dir))
		if fi, err := os.Stat(mountAbs); err != nil || !fi.IsDir() {
			return fmt.Errorf("mount directory %q does not exist", dir)
		}
		filtered, err := snowfs.NewFilterFS(os.DirFS(mountAbs), nil, cfg.Exclude)
		if err != nil {
			return err
		}
		var fsys fs.FS = filtered
		if prefix := strings.TrimPrefix(url, "/"); prefix != "" {
			fsys = mountfs.New(map[string]fs.FS{prefix: fsys})
		}
		trees = append(trees, fsys)
	}
	merged := merged_fs.MergeMultiple(trees...)
	if log.Level() == logging.LevelDebug {
		merged = util.NewTraceFS(merged, log)
	}
	if err := collector.ScanFS(merged); err != nil {
		return err
	}
	for _, pkg := range cfg.Install.Packages {
		collector.AddPackage(pkg)
	}

	patches, err := cfg.Install.ManifestPatchSet()
	if err != nil {
		return err
	}
	resolver := npm.NewResolver().
		WithLookupFields(cfg.Install.PackageLookupFields).
		WithManifestPatches(patches).
		WithLogger(log)

	c, err := openCache(ctx, root, cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	outAbs := filepath.Join(root, filepath.FromSlash(cfg.Out))
	_, err = install.New().
		WithDest(filepath.Join(outAbs, filepath.FromSlash(cfg.Install.Dest))).
		WithSearchDir(root).
		WithResolver(resolver).
		WithCache(c).
		WithExternal(cfg.Install.External).
		WithEnv(cfg.Install.NodeEnv()).
		WithSourceMap(cfg.Install.SourceMapEnabled()).
		WithTreeShaking(cfg.Install.TreeShakingEnabled()).
		WithLookupFields(cfg.Install.PackageLookupFields).
		WithLogger(log).
		WithQuiet(params.quiet).
		Install(ctx, collector.Targets())
	return err
}
