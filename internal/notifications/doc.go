// Package notifications delivers run lifecycle notifications via ntfy.
//
// NewService publishes to the topic configured in config.toml and degrades to
// a no-op when no topic is set. EventHandler adapts the service to the event
// bus so the daemon can subscribe it alongside other lifecycle consumers.
package notifications
