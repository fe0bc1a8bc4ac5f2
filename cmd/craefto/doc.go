// Package main hosts the craefto CLI entrypoint and command graph.
//
// The Cobra command tree runs the daemon in the foreground and translates
// terminal invocations into calls against its HTTP API: submitting runs,
// following progress, reading the event log, browsing saved content and run
// history. Configuration resolution and the API client live in the command
// context so subcommands only deal with presentation.
package main
