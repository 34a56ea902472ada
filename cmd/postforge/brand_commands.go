package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newBrandsCommand(ctx *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "brands",
		Short: "Manage analyzed brands",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List analyzed brands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			brands, err := ctx.client.listBrands()
			if err != nil {
				return err
			}
			if ctx.jsonMode {
				return printJSON(brands)
			}
			if len(brands) == 0 {
				fmt.Println("no brands yet; run: postforge analyze <url>")
				return nil
			}
			t := newTable("ID", "NAME", "INDUSTRY", "CONFIDENCE", "URL")
			for _, b := range brands {
				t.AppendRow([]any{b.ID, b.Name, dash(b.Industry), b.Confidence, b.SourceURL})
			}
			t.Render()
			return nil
		},
	}

	switchCmd := &cobra.Command{
		Use:   "switch <brand-id>",
		Short: "Make a brand the active session brand",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBrandID(args[0])
			if err != nil {
				return err
			}
			profile, err := ctx.client.switchBrand(id)
			if err != nil {
				return err
			}
			if ctx.jsonMode {
				return printJSON(profile)
			}
			fmt.Printf("switched to %q\n", profile.Name)
			return nil
		},
	}

	var hard bool
	refresh := &cobra.Command{
		Use:   "refresh <brand-id>",
		Short: "Regenerate the brand's content feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBrandID(args[0])
			if err != nil {
				return err
			}
			ideas, err := ctx.client.refreshBrand(id, hard)
			if err != nil {
				return err
			}
			if ctx.jsonMode {
				return printJSON(ideas)
			}
			fmt.Printf("regenerated %d ideas\n", len(ideas))
			return nil
		},
	}
	refresh.Flags().BoolVar(&hard, "hard", false, "invalidate the cache before regenerating")

	merge := &cobra.Command{
		Use:   "merge <brand-id> <job-id>",
		Short: "Fold a finished analysis job into an existing brand",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBrandID(args[0])
			if err != nil {
				return err
			}
			profile, err := ctx.client.mergeBrand(id, args[1])
			if err != nil {
				return err
			}
			if ctx.jsonMode {
				return printJSON(profile)
			}
			fmt.Printf("merged job into %q (confidence %d)\n", profile.Name, profile.Confidence)
			return nil
		},
	}

	cmd.AddCommand(list, switchCmd, refresh, merge)
	return cmd
}

func parseBrandID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid brand id %q", raw)
	}
	return id, nil
}
