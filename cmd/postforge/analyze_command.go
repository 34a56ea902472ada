package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newAnalyzeCommand(ctx *cliContext) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "analyze <url>",
		Short: "Start a brand analysis for a website",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			siteURL := args[0]
			jobID, err := ctx.client.startAnalysis(siteURL)
			if err != nil {
				return err
			}
			if !wait {
				if ctx.jsonMode {
					return printJSON(map[string]string{"job_id": jobID})
				}
				fmt.Printf("analysis started, job %s\n", jobID)
				fmt.Println("track it with: postforge jobs list")
				return nil
			}

			// Poll until terminal; the daemon deduplicates, so repeated
			// invocations attach to the same job.
			lastStatus := ""
			for {
				job, err := ctx.client.analysisStatus(siteURL)
				if err != nil {
					return err
				}
				if !ctx.jsonMode && job.Status != lastStatus {
					fmt.Printf("status: %s\n", progressLabel(job.Status, job.Progress))
					lastStatus = job.Status
				}
				if job.Status == "complete" {
					if ctx.jsonMode {
						return printJSON(job)
					}
					fmt.Printf("analysis complete: %s\n", dash(job.Name))
					fmt.Printf("promote it with: postforge jobs consume %s\n", job.ID)
					return nil
				}
				if job.Status == "failed" {
					if ctx.jsonMode {
						return printJSON(job)
					}
					return fmt.Errorf("analysis failed: %s", job.Error)
				}
				time.Sleep(2 * time.Second)
			}
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the analysis finishes")
	return cmd
}
