package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"craefto/internal/api"
)

func newStateCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show the current run and its stages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *api.Client) error {
				state, err := client.State(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, state)
				}
				printRunState(cmd.OutOrStdout(), state)
				return nil
			})
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear a finished run so the next one starts from a blank state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Reset(cmd.Context())
				if err != nil {
					return err
				}
				printAction(cmd.OutOrStdout(), resp, "State reset")
				return nil
			})
		},
	}
}

func newDiscardCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "discard",
		Short: "Abandon the active run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Discard(cmd.Context())
				if err != nil {
					return err
				}
				printAction(cmd.OutOrStdout(), resp, "Run discarded")
				return nil
			})
		},
	}
}

func printAction(out io.Writer, resp api.ActionResponse, fallback string) {
	if resp.Message != "" {
		fmt.Fprintln(out, resp.Message)
		return
	}
	fmt.Fprintln(out, fallback)
}

func printRunState(out io.Writer, state api.RunState) {
	if state.Empty() {
		fmt.Fprintln(out, "No run recorded")
		return
	}
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader("Run "+state.RunID, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "%s%-*s %s\n", statusIndent, statusLabelWidth, "Topic:", state.Topic)
	fmt.Fprintf(out, "%s%-*s %s\n", statusIndent, statusLabelWidth, "Kind:", state.Kind)
	switch {
	case state.Running:
		message := fmt.Sprintf("%d%%", state.Progress)
		if state.CurrentStage != "" {
			message = fmt.Sprintf("%d%% (%s)", state.Progress, state.CurrentStage)
		}
		fmt.Fprintln(out, renderStatusLine("Status", statusWarn, "Running "+message, colorize))
	case state.Error != "":
		fmt.Fprintln(out, renderStatusLine("Status", statusError, "Failed: "+state.Error, colorize))
	default:
		duration := (time.Duration(state.DurationMS) * time.Millisecond).Round(time.Millisecond)
		fmt.Fprintln(out, renderStatusLine("Status", statusOK, "Completed in "+duration.String(), colorize))
	}
	if started := api.ParseTime(state.StartedAt); !started.IsZero() {
		fmt.Fprintf(out, "%s%-*s %s\n", statusIndent, statusLabelWidth, "Started:", started.Local().Format(time.DateTime))
	}
	if len(state.Stages) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderStageTable(state.Stages))
	}
}
