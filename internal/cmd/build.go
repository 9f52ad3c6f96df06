package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pikapkg/snowpack/internal/build"
	"github.com/pikapkg/snowpack/internal/logging"
)

func init() {
	params := buildParams{commonParams: commonParams{logLevel: logging.LevelInfo}}

	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Build the mounted directories into the output directory",
		Long: `Build copies every mounted file into the output directory, compiling
module sources, installing the web modules they import and rewriting
their import specifiers to the installed URLs.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd.Context(), params)
		},
	}

	params.addFlags(buildCmd)
	buildCmd.Flags().BoolVar(&params.reload, "reload", false, "clear the install cache and reinstall every web module")
	RootCommand.AddCommand(buildCmd)
}

type buildParams struct {
	commonParams
	reload bool
}

func runBuild(ctx context.Context, params buildParams) error {
	log := params.logger()

	cfg, err := loadConfig(params.configFiles)
	if err != nil {
		return err
	}

	root, err := os.Getwd()
	if err != nil {
		return err
	}

	if params.reload {
		log.Infof("clearing the install cache in %s", cfg.CacheDir)
		if err := os.RemoveAll(filepath.Join(root, filepath.FromSlash(cfg.CacheDir))); err != nil {
			return fmt.Errorf("failed to clear the install cache: %w", err)
		}
	}

	c, err := openCache(ctx, root, cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	_, err = build.New(cfg).
		WithRootDir(root).
		WithCache(c).
		WithLogger(log).
		WithQuiet(params.quiet).
		Run(ctx)
	return err
}
