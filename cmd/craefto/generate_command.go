package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"craefto/internal/api"
)

// errRunFailed marks a pipeline run that finished with a stage failure.
var errRunFailed = errors.New("pipeline run failed")

const statePollInterval = 500 * time.Millisecond

func exitCode(err error) int {
	if errors.Is(err, errRunFailed) {
		return 2
	}
	return 1
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var kind string
	var detach bool
	var quiet bool

	cmd := &cobra.Command{
		Use:   "generate <topic>",
		Short: "Start a pipeline run and follow it to completion",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := strings.Join(args, " ")
			return ctx.withClient(func(client *api.Client) error {
				out := cmd.OutOrStdout()
				var cursor uint64
				if !quiet && !detach {
					if tail, err := client.Logs(cmd.Context(), api.LogQuery{Tail: true, Limit: 1}); err == nil {
						cursor = tail.Next
					}
				}
				state, err := client.StartRun(cmd.Context(), topic, kind)
				if err != nil {
					if errors.Is(err, api.ErrConflict) && !state.Empty() {
						return fmt.Errorf("run %s is already in progress (%s, %d%%); use `craefto discard` to abandon it", state.RunID, state.Topic, state.Progress)
					}
					return err
				}
				fmt.Fprintf(out, "Started run %s: %s (%s)\n", state.RunID, state.Topic, state.Kind)
				if detach {
					return nil
				}
				return followRun(cmd.Context(), client, state.RunID, cursor, out, !quiet)
			})
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", "blog", "Content kind: blog, social or email")
	cmd.Flags().BoolVarP(&detach, "detach", "d", false, "Return after the run is accepted")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print the final summary")
	return cmd
}

// followRun streams log entries after cursor and polls state until the run
// reaches a terminal state or is replaced.
func followRun(ctx context.Context, client *api.Client, runID string, cursor uint64, out io.Writer, streamLogs bool) error {
	colorize := shouldColorize(out)

	ticker := time.NewTicker(statePollInterval)
	defer ticker.Stop()
	drain := func() {
		if !streamLogs {
			return
		}
		resp, err := client.Logs(ctx, api.LogQuery{Since: cursor, Limit: 200})
		if err != nil {
			return
		}
		for _, event := range resp.Events {
			fmt.Fprintln(out, formatLogEvent(event, colorize))
		}
		cursor = resp.Next
	}

	for {
		drain()
		state, err := client.State(ctx)
		if err != nil {
			return err
		}
		if state.RunID != runID {
			return fmt.Errorf("run %s was discarded", runID)
		}
		if state.Finished() {
			drain()
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderStageTable(state.Stages))
			return runSummary(out, state, colorize)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func runSummary(out io.Writer, state api.RunState, colorize bool) error {
	duration := time.Duration(state.DurationMS) * time.Millisecond
	if state.Error != "" {
		failed := state.CurrentStage
		for _, st := range state.Stages {
			if st.Status == "error" {
				failed = st.Title
			}
		}
		fmt.Fprintln(out, renderStatusLine("Result", statusError, fmt.Sprintf("failed at %s: %s", failed, state.Error), colorize))
		return errRunFailed
	}
	fmt.Fprintln(out, renderStatusLine("Result", statusOK, fmt.Sprintf("%d stages in %s", len(state.Stages), duration.Round(time.Millisecond)), colorize))
	return nil
}

func renderStageTable(stages []api.Stage) string {
	rows := make([][]string, 0, len(stages))
	for i, st := range stages {
		duration := ""
		if st.DurationMS > 0 {
			duration = (time.Duration(st.DurationMS) * time.Millisecond).Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			st.Title,
			st.Status,
			fmt.Sprintf("%d%%", st.Progress),
			duration,
			st.Error,
		})
	}
	return renderTable([]tableColumn{
		{Header: "#", Align: alignRight},
		{Header: "Stage"},
		{Header: "Status"},
		{Header: "Progress", Align: alignRight},
		{Header: "Duration", Align: alignRight},
		{Header: "Error", Wrap: true},
	}, rows)
}
