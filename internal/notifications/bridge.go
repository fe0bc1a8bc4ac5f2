package notifications

import (
	"context"
	"log/slog"

	"craefto/internal/config"
	"craefto/internal/events"
	"craefto/internal/logging"
)

// EventHandler forwards run lifecycle events to svc, honoring the per-event
// toggles in cfg. Delivery failures are logged and never reach the run.
func EventHandler(svc Service, cfg config.Notifications, logger *slog.Logger) events.Handler {
	logger = logging.NewComponentLogger(logger, "notifications")
	return func(ctx context.Context, evt events.Event) {
		if svc == nil {
			return
		}
		var err error
		switch evt.Type {
		case events.RunStarted:
			if !cfg.RunStarted {
				return
			}
			err = svc.NotifyRunStarted(ctx, evt.Topic, evt.Kind)
		case events.RunCompleted:
			if !cfg.RunCompleted {
				return
			}
			err = svc.NotifyRunCompleted(ctx, evt.Topic, evt.Kind, evt.StageCount, evt.Duration)
		case events.RunFailed:
			if !cfg.RunFailed {
				return
			}
			err = svc.NotifyRunFailed(ctx, evt.Topic, evt.StageTitle, evt.Error)
		default:
			return
		}
		if err != nil {
			logging.WarnWithContext(logger, "notification delivery failed", "notification_failed",
				logging.String("event", string(evt.Type)),
				logging.String("run_id", evt.RunID),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network reachability"),
				logging.String(logging.FieldImpact, "push notification for this run was not delivered"),
				logging.Error(err),
			)
		}
	}
}
