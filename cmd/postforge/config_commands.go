package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"postforge/internal/config"
)

func newConfigCommand(ctx *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and initialize configuration",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample config file",
		Args:  cobra.NoArgs,
		// Skip the root pre-run: init must work before any config exists.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultConfigPath()
			if err != nil {
				return err
			}
			if err := config.CreateSample(path); err != nil {
				return err
			}
			fmt.Printf("sample config written to %s\n", path)
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ctx.jsonMode {
				return printJSON(ctx.cfg)
			}
			fmt.Printf("config file:  %s\n", ctx.cfgPath)
			fmt.Printf("state dir:    %s\n", ctx.cfg.Paths.StateDir)
			fmt.Printf("log dir:      %s\n", ctx.cfg.Paths.LogDir)
			fmt.Printf("api bind:     %s\n", ctx.cfg.Paths.APIBind)
			fmt.Printf("cache ttl:    %dh\n", ctx.cfg.Cache.TTLHours)
			fmt.Printf("poll every:   %ds\n", ctx.cfg.VideoPoll.IntervalSeconds)
			return nil
		},
	}

	cmd.AddCommand(initCmd, show)
	return cmd
}
