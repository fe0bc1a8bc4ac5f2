package eventlog

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity bounds the number of retained entries when no capacity is configured.
const DefaultCapacity = 2000

// Level classifies an entry for presentation and filtering.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelDebug   Level = "debug"
)

// ParseLevel converts a user supplied level name. Common aliases are accepted.
func ParseLevel(value string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "info":
		return LevelInfo, true
	case "success", "ok":
		return LevelSuccess, true
	case "warning", "warn":
		return LevelWarning, true
	case "error", "err":
		return LevelError, true
	case "debug":
		return LevelDebug, true
	default:
		return "", false
	}
}

// Entry is a single immutable record in the event log.
type Entry struct {
	ID        string    `json:"id"`
	Sequence  uint64    `json:"seq"`
	Timestamp time.Time `json:"ts"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	Payload   any       `json:"payload,omitempty"`
	Source    string    `json:"source"`
}

// Sink receives every appended entry (structured log mirroring, persistence).
type Sink interface {
	Append(Entry)
}

// Log is a bounded, append-only event log. Oldest entries are evicted once
// capacity is reached. Sequence numbers keep increasing across Clear so
// readers holding a cursor never see an entry twice.
type Log struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	buffer   []Entry
	nextSeq  uint64
	sinks    []Sink
	now      func() time.Time
}

// New constructs an event log retaining at most capacity entries.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l := &Log{capacity: capacity, now: time.Now}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Capacity reports the retention bound.
func (l *Log) Capacity() int {
	if l == nil {
		return 0
	}
	return l.capacity
}

// AddSink wires an additional sink that receives every appended entry.
func (l *Log) AddSink(sink Sink) {
	if l == nil || sink == nil {
		return
	}
	l.mu.Lock()
	l.sinks = append(l.sinks, sink)
	l.mu.Unlock()
}

// Append records a new entry and returns it. Append never blocks on readers.
func (l *Log) Append(level Level, message string, payload any, source string) Entry {
	if l == nil {
		return Entry{}
	}
	if level == "" {
		level = LevelInfo
	}
	l.mu.Lock()
	l.nextSeq++
	entry := Entry{
		ID:        uuid.NewString(),
		Sequence:  l.nextSeq,
		Timestamp: l.now().UTC(),
		Level:     level,
		Message:   strings.TrimSpace(message),
		Payload:   payload,
		Source:    strings.TrimSpace(source),
	}
	if len(l.buffer) == l.capacity {
		copy(l.buffer, l.buffer[1:])
		l.buffer = l.buffer[:l.capacity-1]
	}
	l.buffer = append(l.buffer, entry)
	sinks := append([]Sink(nil), l.sinks...)
	l.cond.Broadcast()
	l.mu.Unlock()

	for _, sink := range sinks {
		sink.Append(entry)
	}
	return entry
}

// Clear drops every retained entry.
func (l *Log) Clear() {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.buffer = nil
	l.mu.Unlock()
}

// Len reports the number of retained entries.
func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buffer)
}

// Entries returns a copy of every retained entry, oldest first.
func (l *Log) Entries() []Entry {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.buffer))
	copy(out, l.buffer)
	return out
}

// Since returns entries with sequence greater than since. When wait is true,
// Since blocks until at least one entry is available or the context ends.
func (l *Log) Since(ctx context.Context, since uint64, limit int, wait bool) ([]Entry, uint64, error) {
	if l == nil {
		return nil, since, nil
	}
	if limit <= 0 || limit > l.capacity {
		limit = l.capacity
	}

	cancelWait := make(chan struct{})
	if wait && ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				l.mu.Lock()
				l.cond.Broadcast()
				l.mu.Unlock()
			case <-cancelWait:
			}
		}()
	}
	defer close(cancelWait)

	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		entries, next := l.snapshotLocked(since, limit)
		if len(entries) > 0 || !wait {
			return entries, next, contextError(ctx)
		}
		if err := contextError(ctx); err != nil {
			return nil, next, err
		}
		l.cond.Wait()
		if err := contextError(ctx); err != nil {
			return nil, next, err
		}
	}
}

// Tail returns the most recent limit entries without blocking.
func (l *Log) Tail(limit int) ([]Entry, uint64) {
	if l == nil {
		return nil, 0
	}
	if limit <= 0 || limit > l.capacity {
		limit = l.capacity
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buffer) == 0 {
		return nil, l.nextSeq
	}
	start := max(len(l.buffer)-limit, 0)
	out := make([]Entry, len(l.buffer)-start)
	copy(out, l.buffer[start:])
	return out, l.nextSeq
}

// FirstSequence reports the smallest sequence number still retained.
func (l *Log) FirstSequence() uint64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buffer) == 0 {
		return l.nextSeq
	}
	return l.buffer[0].Sequence
}

func (l *Log) snapshotLocked(since uint64, limit int) ([]Entry, uint64) {
	if len(l.buffer) == 0 {
		return nil, l.nextSeq
	}
	startIdx := -1
	for i, entry := range l.buffer {
		if entry.Sequence > since {
			startIdx = i
			break
		}
	}
	if startIdx < 0 {
		return nil, l.nextSeq
	}
	end := min(startIdx+limit, len(l.buffer))
	out := make([]Entry, end-startIdx)
	copy(out, l.buffer[startIdx:end])
	return out, out[len(out)-1].Sequence
}

func contextError(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
