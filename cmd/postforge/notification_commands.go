package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newNotificationsCommand(ctx *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notify"},
		Short:   "View and manage notifications",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			notifications, err := ctx.client.listNotifications()
			if err != nil {
				return err
			}
			if ctx.jsonMode {
				return printJSON(notifications)
			}
			if len(notifications) == 0 {
				fmt.Println("no notifications")
				return nil
			}
			t := newTable("ID", "KIND", "TITLE", "MESSAGE", "WHEN", "READ")
			for _, n := range notifications {
				read := ""
				if n.Read {
					read = "yes"
				}
				t.AppendRow([]any{
					truncate(n.ID, 8),
					n.Kind,
					n.Title,
					truncate(n.Message, 48),
					n.CreatedAt.Local().Format("Jan 2 15:04"),
					read,
				})
			}
			t.Render()
			return nil
		},
	}

	read := &cobra.Command{
		Use:   "read <notification-id>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.client.readNotification(args[0])
		},
	}

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Delete all notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.client.clearNotifications(); err != nil {
				return err
			}
			fmt.Println("notifications cleared")
			return nil
		},
	}

	cmd.AddCommand(list, read, clear)
	return cmd
}
