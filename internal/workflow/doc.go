// Package workflow runs content pipeline jobs through the registered stages.
//
// The Manager owns at most one Pipeline Run at a time. Start builds the stage
// list from the stage registry and walks it on a background goroutine,
// stopping at the first failure. Every transition is mirrored into the
// injected event log reporter and published to an optional events.Publisher
// so the daemon can persist run history and send notifications without the
// Manager knowing about either.
//
// Observers call Snapshot for a deep-copied view. Reset clears a terminal run
// together with the event log; Discard abandons an in-flight run, after which
// any late updates from its goroutine are dropped.
package workflow
