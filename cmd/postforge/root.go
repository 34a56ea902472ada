package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"postforge/internal/config"
)

type cliContext struct {
	cfg      *config.Config
	cfgPath  string
	client   *apiClient
	jsonMode bool
}

func newRootCommand() *cobra.Command {
	ctx := &cliContext{}
	var configPath string

	root := &cobra.Command{
		Use:           "postforge",
		Short:         "Brand content generation from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, resolvedPath, _, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx.cfg = cfg
			ctx.cfgPath = resolvedPath
			ctx.client = newAPIClient(cfg)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	root.PersistentFlags().BoolVar(&ctx.jsonMode, "json", false, "emit raw JSON instead of tables")

	root.AddCommand(
		newAnalyzeCommand(ctx),
		newJobsCommand(ctx),
		newBrandsCommand(ctx),
		newIdeasCommand(ctx),
		newNotificationsCommand(ctx),
		newStatusCommand(ctx),
		newConfigCommand(ctx),
	)
	return root
}
