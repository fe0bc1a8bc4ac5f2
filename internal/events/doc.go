// Package events carries run lifecycle events from the orchestrator to
// interested parties (notifications, run history) through an explicit Bus
// whose lifetime is owned by the daemon.
package events
