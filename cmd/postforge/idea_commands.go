package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newIdeasCommand(ctx *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ideas",
		Short: "Browse and act on generated content ideas",
	}

	var force bool
	fetch := &cobra.Command{
		Use:   "fetch <brand-id>",
		Short: "Fetch the brand's content feed (cached when fresh)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBrandID(args[0])
			if err != nil {
				return err
			}
			ideas, err := ctx.client.fetchIdeas(id, force)
			if err != nil {
				return err
			}
			if ctx.jsonMode {
				return printJSON(ideas)
			}
			renderIdeas(ideas)
			return nil
		},
	}
	fetch.Flags().BoolVar(&force, "force", false, "bypass the cache and regenerate")

	liked := &cobra.Command{
		Use:   "liked <brand-id>",
		Short: "List the brand's liked posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBrandID(args[0])
			if err != nil {
				return err
			}
			ideas, err := ctx.client.listLiked(id)
			if err != nil {
				return err
			}
			if ctx.jsonMode {
				return printJSON(ideas)
			}
			renderIdeas(ideas)
			return nil
		},
	}

	like := &cobra.Command{
		Use:   "like <brand-id> <idea-id>",
		Short: "Keep an idea: it moves to durable storage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBrandID(args[0])
			if err != nil {
				return err
			}
			idea, err := ctx.client.likeIdea(id, args[1])
			if err != nil {
				return err
			}
			if ctx.jsonMode {
				return printJSON(idea)
			}
			fmt.Printf("liked: %s\n", truncate(idea.Caption, 60))
			return nil
		},
	}

	reject := &cobra.Command{
		Use:   "reject <brand-id> <idea-id>",
		Short: "Drop an idea from the feed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBrandID(args[0])
			if err != nil {
				return err
			}
			if err := ctx.client.rejectIdea(id, args[1]); err != nil {
				return err
			}
			fmt.Println("idea rejected")
			return nil
		},
	}

	unlike := &cobra.Command{
		Use:   "unlike <idea-id>",
		Short: "Remove a liked post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.client.unlikeIdea(args[0]); err != nil {
				return err
			}
			fmt.Println("liked post removed")
			return nil
		},
	}

	schedule := &cobra.Command{
		Use:   "schedule <idea-id> <rfc3339-time|clear>",
		Short: "Set or clear the publish time on a liked post",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var at *time.Time
			if !strings.EqualFold(args[1], "clear") {
				parsed, err := time.Parse(time.RFC3339, args[1])
				if err != nil {
					return fmt.Errorf("invalid time %q (want RFC 3339, e.g. 2026-09-01T09:00:00Z)", args[1])
				}
				at = &parsed
			}
			if err := ctx.client.scheduleIdea(args[0], at); err != nil {
				return err
			}
			if at == nil {
				fmt.Println("schedule cleared")
			} else {
				fmt.Printf("scheduled for %s\n", at.Local().Format("Jan 2 15:04"))
			}
			return nil
		},
	}

	motion := &cobra.Command{
		Use:   "motion <idea-id> <instruction>",
		Short: "Render a motion video for a liked post",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			instruction := strings.Join(args[1:], " ")
			status, err := ctx.client.requestMotion(args[0], instruction)
			if err != nil {
				return err
			}
			if ctx.jsonMode {
				return printJSON(map[string]string{"video_status": status})
			}
			switch status {
			case "ready":
				fmt.Println("video ready")
			case "generating":
				fmt.Println("rendering started; you will be notified when it finishes")
			default:
				fmt.Printf("video status: %s\n", status)
			}
			return nil
		},
	}

	cmd.AddCommand(fetch, liked, like, reject, unlike, schedule, motion)
	return cmd
}

func renderIdeas(ideas []ideaView) {
	if len(ideas) == 0 {
		fmt.Println("no ideas")
		return
	}
	t := newTable("ID", "PLATFORM", "CAPTION", "VISUAL", "VIDEO")
	for _, idea := range ideas {
		visual := idea.VisualSource
		if visual == "" {
			visual = "unresolved"
		}
		t.AppendRow([]any{
			truncate(idea.ID, 8),
			idea.Platform,
			truncate(idea.Caption, 48),
			visual,
			dash(idea.VideoStatus),
		})
	}
	t.Render()
}
