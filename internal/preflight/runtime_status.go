package preflight

import (
	"context"
	"strings"

	"craefto/internal/config"
)

// CheckBackendFromConfig evaluates backend status from config and connectivity.
func CheckBackendFromConfig(ctx context.Context, cfg *config.Config) Result {
	if cfg == nil {
		return Result{Name: "Generation backend", Detail: "Unknown"}
	}
	return CheckBackend(ctx, cfg.Generation.BaseURL, cfg.Generation.APIKey)
}

// CheckNotificationsFromConfig reports whether push notifications are configured.
// Notifications are optional, so an unset topic still passes.
func CheckNotificationsFromConfig(cfg *config.Config) Result {
	const name = "Notifications"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	var events []string
	if cfg.Notifications.RunStarted {
		events = append(events, "started")
	}
	if cfg.Notifications.RunCompleted {
		events = append(events, "completed")
	}
	if cfg.Notifications.RunFailed {
		events = append(events, "failed")
	}
	if len(events) == 0 {
		return Result{Name: name, Passed: true, Detail: "ntfy configured, all events muted"}
	}
	return Result{Name: name, Passed: true, Detail: "ntfy on run " + strings.Join(events, ", ")}
}
