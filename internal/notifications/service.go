package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"craefto/internal/config"
)

const (
	userAgent       = "Craefto-Go/0.1.0"
	defaultNtfyHost = "https://ntfy.sh/"
)

// Service defines the notification surface exposed to the daemon.
type Service interface {
	NotifyRunStarted(ctx context.Context, topic, kind string) error
	NotifyRunCompleted(ctx context.Context, topic, kind string, stages int, duration time.Duration) error
	NotifyRunFailed(ctx context.Context, topic, stageTitle, reason string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	endpoint := topicEndpoint(cfg.Notifications.NtfyTopic)
	if endpoint == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// topicEndpoint accepts either a full ntfy URL or a bare topic name hosted on ntfy.sh.
func topicEndpoint(topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ""
	}
	if strings.Contains(topic, "://") {
		return topic
	}
	return defaultNtfyHost + strings.TrimPrefix(topic, "/")
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyRunStarted(ctx context.Context, topic, kind string) error {
	data := payload{
		title:   "Craefto - Run Started",
		message: fmt.Sprintf("▶️ Generating %s content: %s", kindOrUnknown(kind), strings.TrimSpace(topic)),
		tags:    []string{"craefto", "run", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, topic, kind string, stages int, duration time.Duration) error {
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()
	if duration == 0 {
		durationText = "0s"
	}
	data := payload{
		title:   "Craefto - Run Completed",
		message: fmt.Sprintf("✅ %s content ready: %s\n%d stages in %s", kindOrUnknown(kind), strings.TrimSpace(topic), stages, durationText),
		tags:    []string{"craefto", "run", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunFailed(ctx context.Context, topic, stageTitle, reason string) error {
	var builder strings.Builder
	builder.WriteString("❌ Run failed")
	if stageTitle = strings.TrimSpace(stageTitle); stageTitle != "" {
		builder.WriteString(" at ")
		builder.WriteString(stageTitle)
	}
	builder.WriteString(": ")
	if reason = strings.TrimSpace(reason); reason != "" {
		builder.WriteString(reason)
	} else {
		builder.WriteString("unknown")
	}
	if topic = strings.TrimSpace(topic); topic != "" {
		builder.WriteString("\nTopic: ")
		builder.WriteString(topic)
	}
	data := payload{
		title:    "Craefto - Run Failed",
		message:  builder.String(),
		tags:     []string{"craefto", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Craefto - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"craefto", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func kindOrUnknown(kind string) string {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return "unknown"
	}
	return kind
}

type noopService struct{}

func (noopService) NotifyRunStarted(context.Context, string, string) error { return nil }
func (noopService) NotifyRunCompleted(context.Context, string, string, int, time.Duration) error {
	return nil
}
func (noopService) NotifyRunFailed(context.Context, string, string, string) error { return nil }
func (noopService) TestNotification(context.Context) error                       { return nil }
