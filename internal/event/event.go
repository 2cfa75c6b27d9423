package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	defaultPoolSize = 10000
	defaultTimeout  = 30 * time.Second
)

type Event interface {
	Name() string
}

// Keyed events sharing a key are delivered to each subscriber in publish
// order, even across Publish calls.
type Keyed interface {
	Key() string
}

type Handler func(ctx context.Context, e Event) error

type subscription struct {
	name string // empty matches every event
	h    Handler
}

func (s subscription) match(e Event) bool {
	return s.name == "" || s.name == e.Name()
}

// Bus is an in-memory event bus.
//
// Events published together are delivered to each subscriber one by one in
// the order they were published. Different subscribers run concurrently.
type Bus struct {
	pool    chan struct{}
	wg      *sync.WaitGroup
	timeout time.Duration
	mu      sync.RWMutex
	subs    []subscription

	chainMu sync.Mutex
	chains  map[chainKey]chan struct{}
}

type chainKey struct {
	sub int
	key string
}

type Option func(b *Bus)

// WithHandlerTimeout bounds each handler call. The clock starts when the
// handler begins, not while it waits behind earlier events of the same key.
func WithHandlerTimeout(d time.Duration) Option {
	return func(b *Bus) {
		b.timeout = d
	}
}

// NewBus create a new event bus. Caller should call Stop for graceful shutdown the bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		pool:    make(chan struct{}, defaultPoolSize),
		wg:      new(sync.WaitGroup),
		timeout: defaultTimeout,
		chains:  make(map[chainKey]chan struct{}),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Subscribe to an event
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs = append(b.subs, subscription{name: name, h: h})
}

// SubscribeAll receives every published event.
func (b *Bus) SubscribeAll(h Handler) {
	b.Subscribe("", h)
}

// Publish a batch of events
func (b *Bus) Publish(ctx context.Context, events ...Event) {
	if len(events) == 0 {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	key := ""
	if k, ok := events[0].(Keyed); ok {
		key = k.Key()
	}

	for i, s := range b.subs {
		var matched []Event
		for _, e := range events {
			if s.match(e) {
				matched = append(matched, e)
			}
		}

		if len(matched) > 0 {
			// TODO: isolate pool size for each handler, so a slow handler won't block other handlers
			b.dispatch(ctx, chainKey{sub: i, key: key}, s.h, matched)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, ck chainKey, h Handler, events []Event) {
	b.wg.Add(1)

	b.pool <- struct{}{}

	var prev, done chan struct{}
	if ck.key != "" {
		done = make(chan struct{})
		b.chainMu.Lock()
		prev = b.chains[ck]
		b.chains[ck] = done
		b.chainMu.Unlock()
	}

	go func() {
		defer func() {
			b.release(ck, done)
			<-b.pool
			b.wg.Done()
		}()

		if prev != nil {
			<-prev
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
		defer cancel()

		for _, e := range events {
			handle(ctx, h, e)
		}
	}()
}

func (b *Bus) release(ck chainKey, done chan struct{}) {
	if done == nil {
		return
	}

	close(done)

	b.chainMu.Lock()
	if b.chains[ck] == done {
		delete(b.chains, ck)
	}
	b.chainMu.Unlock()
}

func handle(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "event: handler panic",
				"event", e.Name(),
				"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
			)
		}
	}()

	if err := h(ctx, e); err != nil {
		slog.ErrorContext(ctx, "event: handle event failed",
			"event", e.Name(),
			"error", err,
		)
	}
}

// Stop waits for all handlers to finish
func (b *Bus) Stop() {
	b.wg.Wait()
}
