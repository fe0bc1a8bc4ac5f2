package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"craefto/internal/api"
)

func newContentCommand(ctx *commandContext) *cobra.Command {
	contentCmd := &cobra.Command{
		Use:   "content",
		Short: "Browse saved content packages",
	}
	contentCmd.AddCommand(newContentListCommand(ctx))
	contentCmd.AddCommand(newContentShowCommand(ctx))
	return contentCmd
}

func newContentListCommand(ctx *commandContext) *cobra.Command {
	var kind string
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List recent content packages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *api.Client) error {
				items, err := client.Content(cmd.Context(), kind, limit, false)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.ContentListResponse{Items: items})
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No saved content")
					return nil
				}
				fmt.Fprintln(out, renderContentTable(items))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Only packages of this kind (blog, social, email)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum packages to list")
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newContentShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a saved content package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				pkg, err := client.ContentItem(cmd.Context(), args[0])
				if errors.Is(err, api.ErrNotFound) {
					return fmt.Errorf("content package %s not found", args[0])
				}
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, pkg)
				}
				printContentPackage(cmd.OutOrStdout(), pkg)
				return nil
			})
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func renderContentTable(items []api.ContentPackage) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.ID,
			item.Kind,
			item.Topic,
			item.Title,
			strconv.Itoa(item.WordCount),
			formatLocalTime(item.CreatedAt),
		})
	}
	return renderTable([]tableColumn{
		{Header: "ID"},
		{Header: "Kind"},
		{Header: "Topic", Wrap: true},
		{Header: "Title", Wrap: true},
		{Header: "Words", Align: alignRight},
		{Header: "Created"},
	}, rows)
}

func printContentPackage(out io.Writer, pkg api.ContentPackage) {
	colorize := shouldColorize(out)
	title := pkg.Title
	if title == "" {
		title = pkg.Topic
	}
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(out, line)
	}
	field := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(out, "%s%-*s %s\n", statusIndent, statusLabelWidth, label+":", value)
	}
	field("ID", pkg.ID)
	field("Kind", pkg.Kind)
	field("Topic", pkg.Topic)
	field("Run", pkg.RunID)
	field("Request", pkg.RequestID)
	field("Words", strconv.Itoa(pkg.WordCount))
	field("Created", formatLocalTime(pkg.CreatedAt))
	if len(pkg.Body) == 0 {
		return
	}
	fmt.Fprintln(out)
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, pkg.Body, "", "  "); err != nil {
		fmt.Fprintln(out, string(pkg.Body))
		return
	}
	fmt.Fprintln(out, pretty.String())
}

func formatLocalTime(value string) string {
	parsed := api.ParseTime(value)
	if parsed.IsZero() {
		return value
	}
	return parsed.Local().Format(time.DateTime)
}
