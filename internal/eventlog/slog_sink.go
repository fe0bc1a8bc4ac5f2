package eventlog

import (
	"context"
	"fmt"
	"log/slog"
)

// SlogSink mirrors event log entries into a structured logger.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink returns a sink writing to logger. A nil logger yields nil.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		return nil
	}
	return &SlogSink{logger: logger}
}

// Append implements Sink.
func (s *SlogSink) Append(entry Entry) {
	if s == nil || s.logger == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("source", entry.Source),
		slog.Uint64("seq", entry.Sequence),
	}
	if entry.Level == LevelSuccess {
		attrs = append(attrs, slog.String("event_type", "success"))
	}
	if entry.Payload != nil {
		attrs = append(attrs, slog.String("payload", fmt.Sprint(entry.Payload)))
	}
	s.logger.LogAttrs(context.Background(), slogLevel(entry.Level), entry.Message, attrs...)
}

func slogLevel(level Level) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
