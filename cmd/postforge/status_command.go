package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, governor, and cache status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := ctx.client.status()
			if err != nil {
				return err
			}
			if ctx.jsonMode {
				return printJSON(status)
			}

			if current, ok := status["current_brand"].(map[string]any); ok {
				fmt.Printf("current brand: %v (id %v)\n", current["name"], current["id"])
			} else {
				fmt.Println("no active brand")
			}
			if cacheInfo, ok := status["cache"].(map[string]any); ok {
				fmt.Printf("cache: fresh=%v items=%v resolved=%v age=%vs\n",
					cacheInfo["fresh"], cacheInfo["item_count"], cacheInfo["resolved_count"], cacheInfo["age_seconds"])
			}
			if jobInfo, ok := status["jobs"].(map[string]any); ok {
				fmt.Printf("jobs: %v active of %v tracked\n", jobInfo["active"], jobInfo["total"])
			}

			governorStats, ok := status["governor"].(map[string]any)
			if !ok {
				return nil
			}
			t := newTable("CLASS", "QUEUED", "ACTIVE", "ADMITTED/MIN")
			for _, class := range []string{"text", "image", "video"} {
				stats, ok := governorStats[class].(map[string]any)
				if !ok {
					continue
				}
				t.AppendRow([]any{class, stats["queued"], stats["active"], stats["admitted_in_window"]})
			}
			t.Render()
			return nil
		},
	}
}
