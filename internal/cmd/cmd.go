// Package cmd implements the snowpack command line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/thediveo/enumflag/v2"

	"github.com/pikapkg/snowpack/internal/cache"
	"github.com/pikapkg/snowpack/internal/config"
	"github.com/pikapkg/snowpack/internal/logging"
)

// RootCommand is the base command that all subcommands attach to.
var RootCommand = &cobra.Command{
	Use:           path.Base(os.Args[0]),
	Short:         "Snowpack builds web applications out of ES modules",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// defaultConfigFiles are probed in order when --config is not given.
var defaultConfigFiles = []string{
	"snowpack.config.yaml",
	"snowpack.config.yml",
	"snowpack.config.json",
}

// commonParams holds the flags every subcommand shares.
type commonParams struct {
	configFiles []string
	logLevel    logging.Level
	quiet       bool
}

func (p *commonParams) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&p.configFiles, "config", "c", nil, "config file or directory (can be repeated, later files override earlier ones)")
	cmd.Flags().VarP(
		enumflag.New(&p.logLevel, "level", logging.LevelIDs, enumflag.EnumCaseInsensitive),
		"log-level", "l",
		"log level (debug, info, warn, error)")
	cmd.Flags().BoolVarP(&p.quiet, "quiet", "q", false, "disable progress output")
}

func (p *commonParams) logger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: p.logLevel})
}

// loadConfig merges the given config files, or the default candidates when
// none were passed, and parses the result.
func loadConfig(files []string) (*config.Root, error) {
	if len(files) == 0 {
		for _, f := range defaultConfigFiles {
			if _, err := os.Stat(f); err == nil {
				files = []string{f}
				break
			}
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no configuration found, create %s or pass --config", defaultConfigFiles[0])
	}

	bs, err := config.Merge(files, false)
	if err != nil {
		return nil, err
	}
	return config.Parse(bs)
}

// openCache opens the install cache database under the project's cache
// directory, creating both as needed.
func openCache(ctx context.Context, root string, cfg *config.Root, log *logging.Logger) (*cache.Cache, error) {
	dir := filepath.Join(root, filepath.FromSlash(cfg.CacheDir))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := cache.New().
		WithDSN(filepath.Join(dir, cache.Filename)).
		WithLogger(log)
	if err := c.Open(ctx); err != nil {
		return nil, err
	}
	return c, nil
}
