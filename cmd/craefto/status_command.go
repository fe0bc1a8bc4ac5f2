package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"craefto/internal/api"
	"craefto/internal/config"
	"craefto/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, pipeline, and dependency status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			client, err := api.NewClient(cfg.Paths.APIBind, cfg.Paths.APIToken)
			if err != nil {
				return fmt.Errorf("build API client: %w", err)
			}
			status, err := client.Status(cmd.Context())
			if err != nil && !api.IsAPIUnavailable(err) {
				return err
			}
			if err != nil {
				checks := api.FromChecks(preflight.RunAll(cmd.Context(), cfg))
				if asJSON {
					return writeJSON(cmd, api.DaemonStatus{
						DatabasePath: cfg.DatabasePath(),
						LockFilePath: cfg.LockPath(),
						BackendURL:   cfg.Generation.BaseURL,
						Checks:       checks,
					})
				}
				printOfflineStatus(out, cfg, checks, colorize)
				return nil
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			printDaemonStatus(out, status, colorize)
			return nil
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func printOfflineStatus(out io.Writer, cfg *config.Config, checks []api.CheckResult, colorize bool) {
	for _, line := range renderSectionHeader("System", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Daemon", statusError, "Not running", colorize))
	fmt.Fprintln(out, renderStatusLine("API", statusInfo, cfg.Paths.APIBind, colorize))
	fmt.Fprintln(out)
	for _, line := range checkLines(checks, colorize) {
		fmt.Fprintln(out, line)
	}
}

func printDaemonStatus(out io.Writer, status api.DaemonStatus, colorize bool) {
	for _, line := range renderSectionHeader("System", colorize) {
		fmt.Fprintln(out, line)
	}
	daemonMsg := "Running"
	if status.PID > 0 {
		daemonMsg = "Running (pid " + strconv.Itoa(status.PID) + ")"
	}
	if started := api.ParseTime(status.StartedAt); !started.IsZero() {
		daemonMsg += ", up " + time.Since(started).Round(time.Second).String()
	}
	fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, daemonMsg, colorize))
	fmt.Fprintln(out, renderStatusLine("Backend", statusInfo, status.BackendURL, colorize))
	fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
	if status.LogPath != "" {
		fmt.Fprintln(out, renderStatusLine("Log", statusInfo, status.LogPath, colorize))
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Pipeline", colorize) {
		fmt.Fprintln(out, line)
	}
	current := status.Pipeline.Current
	switch {
	case current == nil || current.Empty():
		fmt.Fprintln(out, renderStatusLine("Run", statusInfo, "Idle", colorize))
	case current.Running:
		fmt.Fprintln(out, renderStatusLine("Run", statusWarn, fmt.Sprintf("%s %q %d%% (%s)", current.RunID, current.Topic, current.Progress, current.CurrentStage), colorize))
	case current.Error != "":
		fmt.Fprintln(out, renderStatusLine("Run", statusError, fmt.Sprintf("%s failed: %s", current.RunID, current.Error), colorize))
	default:
		fmt.Fprintln(out, renderStatusLine("Run", statusOK, current.RunID+" completed", colorize))
	}
	if status.Pipeline.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusWarn, status.Pipeline.LastError, colorize))
	}
	for _, h := range status.Pipeline.StageHealth {
		kind, msg := statusOK, "Ready"
		if !h.Ready {
			kind, msg = statusError, "Unavailable"
		}
		if h.Detail != "" {
			msg += " (" + h.Detail + ")"
		}
		fmt.Fprintln(out, renderStatusLine("Stage "+h.Name, kind, msg, colorize))
	}
	fmt.Fprintln(out)
	for _, line := range checkLines(status.Checks, colorize) {
		fmt.Fprintln(out, line)
	}
}

func checkLines(checks []api.CheckResult, colorize bool) []string {
	lines := renderSectionHeader("Checks", colorize)
	if len(checks) == 0 {
		return append(lines, renderStatusLine("Summary", statusInfo, "No checks reported", colorize))
	}
	failed := 0
	for _, check := range checks {
		if !check.Passed {
			failed++
		}
	}
	if failed == 0 {
		lines = append(lines, renderStatusLine("Summary", statusOK, "All checks passed", colorize))
	} else {
		lines = append(lines, renderStatusLine("Summary", statusError, fmt.Sprintf("%d of %d checks failed", failed, len(checks)), colorize))
	}
	for _, check := range checks {
		kind := statusOK
		if !check.Passed {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}
	return lines
}
