package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newJobsCommand(ctx *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage background analysis jobs",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List tracked jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := ctx.client.listJobs()
			if err != nil {
				return err
			}
			if ctx.jsonMode {
				return printJSON(jobs)
			}
			if len(jobs) == 0 {
				fmt.Println("no jobs tracked")
				return nil
			}
			t := newTable("ID", "URL", "NAME", "STATUS", "STARTED")
			for _, job := range jobs {
				t.AppendRow([]any{
					truncate(job.ID, 8),
					job.URL,
					dash(job.Name),
					progressLabel(job.Status, job.Progress),
					job.StartedAt.Local().Format("Jan 2 15:04"),
				})
			}
			t.Render()
			return nil
		},
	}

	consume := &cobra.Command{
		Use:   "consume <job-id>",
		Short: "Promote a completed job into an active brand",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := ctx.client.consumeJob(args[0])
			if err != nil {
				return err
			}
			if ctx.jsonMode {
				return printJSON(profile)
			}
			fmt.Printf("brand %q is now active (id %d)\n", profile.Name, profile.ID)
			return nil
		},
	}

	dismiss := &cobra.Command{
		Use:   "dismiss <job-id>",
		Short: "Remove a job without promoting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.client.dismissJob(args[0]); err != nil {
				return err
			}
			fmt.Println("job dismissed")
			return nil
		},
	}

	cmd.AddCommand(list, consume, dismiss)
	return cmd
}
