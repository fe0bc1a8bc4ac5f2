package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"craefto/internal/api"
	"craefto/internal/logs"
)

const daemonLogPollInterval = 500 * time.Millisecond

type logsOptions struct {
	since   uint64
	limit   int
	follow  bool
	tail    bool
	level   string
	source  string
	daemon  bool
	payload bool
	asJSON  bool
}

func newLogsCommand(ctx *commandContext) *cobra.Command {
	opts := logsOptions{}
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show pipeline event log entries",
		Long: "Show entries from the daemon's in-memory pipeline event log.\n" +
			"With --daemon, read the daemon's structured log file instead.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.daemon {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				return showDaemonLog(cmd.Context(), cmd.OutOrStdout(), cfg.DaemonLogPath(), opts)
			}
			return ctx.withClient(func(client *api.Client) error {
				return showEventLog(cmd.Context(), cmd, client, opts)
			})
		},
	}
	flags := cmd.Flags()
	flags.Uint64Var(&opts.since, "since", 0, "Only entries with a sequence greater than this cursor")
	flags.IntVarP(&opts.limit, "limit", "n", 50, "Maximum entries per request")
	flags.BoolVarP(&opts.follow, "follow", "f", false, "Keep streaming new entries")
	flags.BoolVar(&opts.tail, "tail", true, "Start from the most recent entries when no cursor is given")
	flags.StringVar(&opts.level, "level", "", "Comma-separated levels to show (info, success, warning, error, debug)")
	flags.StringVar(&opts.source, "source", "", "Only entries from this source")
	flags.BoolVar(&opts.daemon, "daemon", false, "Read the daemon log file instead of the event log")
	flags.BoolVar(&opts.payload, "payload", false, "Print entry payloads")
	addJSONFlag(cmd, &opts.asJSON)
	return cmd
}

func showEventLog(ctx context.Context, cmd *cobra.Command, client *api.Client, opts logsOptions) error {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	query := api.LogQuery{
		Since:  opts.since,
		Limit:  opts.limit,
		Tail:   opts.tail && opts.since == 0,
		Level:  opts.level,
		Source: opts.source,
	}
	for {
		resp, err := client.Logs(ctx, query)
		if err != nil {
			if opts.follow && errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if opts.asJSON && !opts.follow {
			return writeJSON(cmd, resp)
		}
		for _, event := range resp.Events {
			if opts.asJSON {
				if err := writeJSONLine(out, event); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintln(out, formatLogEvent(event, colorize))
			if opts.payload && len(event.Payload) > 0 {
				fmt.Fprintf(out, "    %s\n", event.Payload)
			}
		}
		if !opts.follow {
			if len(resp.Events) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "No log entries")
			}
			return nil
		}
		query.Since = resp.Next
		query.Tail = false
		query.Follow = true
		if ctx.Err() != nil {
			return nil
		}
	}
}

func showDaemonLog(ctx context.Context, out io.Writer, path string, opts logsOptions) error {
	lines, offset, err := logs.ReadLast(path, opts.limit)
	if err != nil {
		return fmt.Errorf("read daemon log: %w", err)
	}
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	if !opts.follow {
		return nil
	}
	err = logs.Follow(ctx, path, offset, daemonLogPollInterval, func(line string) {
		fmt.Fprintln(out, line)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func formatLogEvent(event api.LogEvent, colorize bool) string {
	ts := event.Timestamp
	if parsed := api.ParseTime(event.Timestamp); !parsed.IsZero() {
		ts = parsed.Local().Format("15:04:05.000")
	}
	level := strings.ToUpper(event.Level)
	level = colorText(fmt.Sprintf("%-7s", level), stageStatusKind(event.Level), colorize)
	source := event.Source
	if source == "" {
		source = "-"
	}
	return fmt.Sprintf("%6d %s %s [%s] %s", event.Sequence, ts, level, source, event.Message)
}

func writeJSONLine(out io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
