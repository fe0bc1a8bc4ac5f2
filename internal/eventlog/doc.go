// Package eventlog holds the live, bounded event log surfaced to operators
// while a pipeline run executes.
//
// Entries are appended in call order, carry a monotonic sequence number, and
// are evicted oldest-first once the configured capacity is reached. Readers
// either take snapshots (Entries, Tail) or follow the log with a cursor via
// Since, which optionally blocks until new entries arrive. The Log type also
// implements Reporter, the interface injected into the orchestrator.
package eventlog
