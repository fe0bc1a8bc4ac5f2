// Package api defines wire-format types, converters, and the HTTP client for
// the daemon API. It translates orchestrator snapshots, event log entries, and
// stored content into transport-friendly DTOs that the CLI and other
// consumers can render without coupling to internal types.
//
// # Key Types
//
// RunState: the current run with per-stage status, progress, and outputs.
//
// LogEvent/LogStreamResponse: event log pages with a sequence cursor for
// live tailing.
//
// ContentPackage/RunRecord: saved generation results and run history.
//
// DaemonStatus: runtime information, stage health, and preflight results.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// Stage outputs and log payloads are passed through as json.RawMessage.
// Non-2xx responses carry an ErrorResponse; the client surfaces them as
// *StatusError, which matches ErrConflict and ErrNotFound via errors.Is.
package api
