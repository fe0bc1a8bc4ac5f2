package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"craefto/internal/api"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent pipeline runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *api.Client) error {
				runs, err := client.History(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.RunHistoryResponse{Runs: runs})
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				fmt.Fprintln(out, renderHistoryTable(runs, shouldColorize(out)))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list")
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func renderHistoryTable(runs []api.RunRecord, colorize bool) string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		duration := ""
		if run.DurationMS > 0 {
			duration = (time.Duration(run.DurationMS) * time.Millisecond).Round(time.Millisecond).String()
		}
		detail := run.Error
		if run.FailedStage != "" {
			detail = fmt.Sprintf("%s: %s", run.FailedStage, run.Error)
		}
		rows = append(rows, []string{
			run.RunID,
			run.Kind,
			run.Topic,
			colorText(run.Status, stageStatusKind(run.Status), colorize),
			strconv.Itoa(run.Progress) + "%",
			duration,
			formatLocalTime(run.StartedAt),
			detail,
		})
	}
	return renderTable([]tableColumn{
		{Header: "Run"},
		{Header: "Kind"},
		{Header: "Topic", Wrap: true},
		{Header: "Status"},
		{Header: "Progress", Align: alignRight},
		{Header: "Duration", Align: alignRight},
		{Header: "Started"},
		{Header: "Error", Wrap: true},
	}, rows)
}

