// Package daemon coordinates the long-running craefto process.
//
// It hosts the pipeline orchestrator, the live event log, and the content
// store behind an HTTP/JSON API, with flock-based locking to prevent multiple
// instances. The API lets the CLI start, inspect, reset, and discard runs,
// stream the event log, and browse saved content and run history.
//
// Keep orchestration logic here: individual stages live in their own packages
// while the daemon focuses on startup, shutdown, and request handling.
package daemon
