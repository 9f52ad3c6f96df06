package cmd

import (
	"context"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/pikapkg/snowpack/internal/logging"
)

func init() {
	params := commonParams{logLevel: logging.LevelInfo}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the web modules recorded in the install cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd.Context(), params, cmd.OutOrStdout())
		},
	}

	params.addFlags(listCmd)
	RootCommand.AddCommand(listCmd)
}

func runList(ctx context.Context, params commonParams, w io.Writer) error {
	log := params.logger()

	cfg, err := loadConfig(params.configFiles)
	if err != nil {
		return err
	}

	root, err := os.Getwd()
	if err != nil {
		return err
	}

	c, err := openCache(ctx, root, cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	table := tablewriter.NewTable(w)
	table.Header("NAME", "VERSION", "ENTRYPOINT")
	for pkg, err := range c.Packages(ctx) {
		if err != nil {
			return err
		}
		if err := table.Append([]string{pkg.Name, pkg.Version, pkg.Entrypoint}); err != nil {
			return err
		}
	}
	return table.Render()
}
