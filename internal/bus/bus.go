package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/yanun0323/logs"

	"main/internal/schema"
)

var ErrBusClosed = errors.New("event bus closed")

// DefaultHistorySize is the number of events retained for debugging.
const DefaultHistorySize = 1000

// Handler processes one event. Errors are logged and isolated; they never
// reach sibling handlers or the publisher.
type Handler func(ctx context.Context, event schema.Event) error

type subscriber struct {
	name    string
	handler Handler
}

// Bus is a typed in-process pub/sub broadcast channel. Handlers for one
// publish run concurrently; the publisher returns when all have completed.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[schema.EventType][]subscriber

	histMu  sync.Mutex
	history []schema.Event
	histCap int

	closed        uint32
	handlerErrors uint64
}

// New creates an empty bus with the default history capacity.
func New() *Bus {
	return NewWithHistory(DefaultHistorySize)
}

// NewWithHistory creates a bus retaining up to histCap events.
func NewWithHistory(histCap int) *Bus {
	if histCap <= 0 {
		histCap = DefaultHistorySize
	}
	return &Bus{
		subscribers: make(map[schema.EventType][]subscriber),
		history:     make([]schema.Event, 0, histCap),
		histCap:     histCap,
	}
}

// Subscribe registers a named handler for one event type. Registering the
// same (type, name) pair again replaces the handler in place.
func (b *Bus) Subscribe(eventType schema.EventType, name string, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[eventType]
	for i, sub := range subs {
		if sub.name == name {
			subs[i].handler = handler
			return
		}
	}
	b.subscribers[eventType] = append(subs, subscriber{name: name, handler: handler})
	logs.Debugf("subscriber added: type=%s name=%s", eventType, name)
}

// Unsubscribe removes a named handler. Unknown pairs are a no-op.
func (b *Bus) Unsubscribe(eventType schema.EventType, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[eventType]
	for i, sub := range subs {
		if sub.name == name {
			b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish records the event and delivers it to every handler subscribed to
// its type. Handlers run concurrently; Publish returns when all have
// finished or failed. A failing or panicking handler is logged and does not
// affect its siblings.
func (b *Bus) Publish(ctx context.Context, event schema.Event) error {
	if atomic.LoadUint32(&b.closed) != 0 {
		return ErrBusClosed
	}
	b.record(event)

	b.mu.RLock()
	subs := append([]subscriber(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()
	if len(subs) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	wg.Add(len(subs))
	for _, sub := range subs {
		go func(sub subscriber) {
			defer wg.Done()
			b.invoke(ctx, sub, event)
		}(sub)
	}
	wg.Wait()
	return nil
}

func (b *Bus) invoke(ctx context.Context, sub subscriber, event schema.Event) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddUint64(&b.handlerErrors, 1)
			logs.Errorf("handler panic: type=%s name=%s recovered=%v", event.Type, sub.name, r)
		}
	}()
	if err := sub.handler(ctx, event); err != nil {
		atomic.AddUint64(&b.handlerErrors, 1)
		logs.Errorf("handler error: type=%s name=%s err=%+v", event.Type, sub.name, err)
	}
}

func (b *Bus) record(event schema.Event) {
	b.histMu.Lock()
	defer b.histMu.Unlock()
	if len(b.history) == b.histCap {
		copy(b.history, b.history[1:])
		b.history[len(b.history)-1] = event
		return
	}
	b.history = append(b.history, event)
}

// History returns a copy of the retained events, oldest first.
func (b *Bus) History() []schema.Event {
	b.histMu.Lock()
	defer b.histMu.Unlock()
	return append([]schema.Event(nil), b.history...)
}

// HistoryByType returns retained events of one type, oldest first.
func (b *Bus) HistoryByType(eventType schema.EventType) []schema.Event {
	b.histMu.Lock()
	defer b.histMu.Unlock()
	out := make([]schema.Event, 0, len(b.history))
	for _, event := range b.history {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

// SubscriberCount returns the total number of registered handlers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	count := 0
	for _, subs := range b.subscribers {
		count += len(subs)
	}
	return count
}

// HandlerErrors returns the number of handler failures observed so far.
func (b *Bus) HandlerErrors() uint64 {
	return atomic.LoadUint64(&b.handlerErrors)
}

// Close stops the bus from accepting new publishes.
func (b *Bus) Close() {
	atomic.StoreUint32(&b.closed, 1)
}
