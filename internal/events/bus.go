package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"craefto/internal/logging"
)

const defaultBuffer = 64

// Handler consumes events delivered by the bus.
type Handler func(context.Context, Event)

// Bus fans events out to named subscribers. Each subscriber has its own
// buffered queue and goroutine, so a slow subscriber never delays the
// publisher or its peers. Events that do not fit a full queue are dropped.
type Bus struct {
	logger *slog.Logger
	buffer int

	mu      sync.Mutex
	subs    []*subscription
	started bool
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type subscription struct {
	name    string
	handler Handler
	ch      chan Event
	dropped atomic.Uint64
}

// NewBus constructs a bus with per-subscriber queues of the given size.
func NewBus(logger *slog.Logger, buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Bus{
		logger: logging.NewComponentLogger(logger, "events"),
		buffer: buffer,
	}
}

// Subscribe registers handler under name. Subscribing after Start begins
// delivery immediately.
func (b *Bus) Subscribe(name string, handler Handler) error {
	if handler == nil {
		return errors.New("events: nil handler")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("events: bus closed")
	}
	sub := &subscription{name: name, handler: handler, ch: make(chan Event, b.buffer)}
	b.subs = append(b.subs, sub)
	if b.started {
		b.launchLocked(sub)
	}
	return nil
}

// Start begins delivering events to subscribers.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("events: bus closed")
	}
	if b.started {
		return errors.New("events: bus already started")
	}
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.started = true
	for _, sub := range b.subs {
		b.launchLocked(sub)
	}
	return nil
}

// Publish enqueues evt for every subscriber without blocking.
func (b *Bus) Publish(evt Event) {
	if b == nil {
		return
	}
	var firstDrops []string
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- evt:
		default:
			if sub.dropped.Add(1) == 1 {
				firstDrops = append(firstDrops, sub.name)
			}
		}
	}
	b.mu.Unlock()

	for _, name := range firstDrops {
		logging.WarnWithContext(b.logger, "event subscriber queue full; dropping events", "event_dropped",
			logging.String("subscriber", name),
			logging.String("event", string(evt.Type)),
			logging.String(logging.FieldErrorHint, "subscriber is slower than the run; check its downstream service"),
			logging.String(logging.FieldImpact, "subscriber misses some lifecycle events"),
		)
	}
}

// Dropped reports how many events were dropped for the named subscriber.
func (b *Bus) Dropped(name string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if sub.name == name {
			return sub.dropped.Load()
		}
	}
	return 0
}

// Close stops accepting events, drains queued events, and waits for
// subscribers to finish.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := append([]*subscription(nil), b.subs...)
	started := b.started
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.ch)
	}
	if started {
		b.wg.Wait()
		b.cancel()
	}
}

func (b *Bus) launchLocked(sub *subscription) {
	b.wg.Add(1)
	ctx := b.ctx
	go func() {
		defer b.wg.Done()
		for evt := range sub.ch {
			b.deliver(ctx, sub, evt)
		}
	}()
}

func (b *Bus) deliver(ctx context.Context, sub *subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked",
				logging.String("subscriber", sub.name),
				logging.Any("panic", r),
				logging.String(logging.FieldEventType, "event_subscriber_panic"),
			)
		}
	}()
	sub.handler(ctx, evt)
}
