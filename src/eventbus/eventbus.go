// Package eventbus is the in-process live stream of execution events. Each
// request gets a topic holding a bounded replay buffer so a listener that
// connects late can catch up before following new events. The persisted
// event log stays the source of truth; this is single-process only.
package eventbus

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elee1766/threadagent/src/events"
)

// Config sizes the bus.
type Config struct {
	// BufferSize is the number of events kept per request, oldest evicted first.
	BufferSize int
	// SubscriberBuffer is the channel capacity of each subscription.
	SubscriberBuffer int
	// Retention keeps a completed topic around for late joiners. Zero clears it immediately.
	Retention time.Duration
	Logger    *slog.Logger
}

// DefaultConfig returns the default sizes.
func DefaultConfig() Config {
	return Config{
		BufferSize:       1000,
		SubscriberBuffer: 256,
		Retention:        5 * time.Minute,
	}
}

// Bus is a process-wide registry of per-request topics.
type Bus struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	topics map[string]*topic
}

type topic struct {
	ring      *ring
	subs      map[*Subscription]struct{}
	completed bool
	expiry    *time.Timer
}

// Subscription follows one request's events. C is closed when the request's
// attempt completes or the subscription is closed.
type Subscription struct {
	C <-chan events.Event

	ch        chan events.Event
	requestID string
	bus       *Bus
	dropped   atomic.Int64
	closed    bool
}

// Dropped is the number of events this subscriber missed because its buffer was full.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.bus.detachLocked(s)
}

// New creates a bus.
func New(cfg Config) *Bus {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = def.SubscriberBuffer
	}
	if cfg.Retention < 0 {
		cfg.Retention = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		cfg:    cfg,
		logger: logger,
		topics: make(map[string]*topic),
	}
}

func (b *Bus) topicLocked(requestID string) *topic {
	t, ok := b.topics[requestID]
	if !ok {
		t = &topic{
			ring: newRing(b.cfg.BufferSize),
			subs: make(map[*Subscription]struct{}),
		}
		b.topics[requestID] = t
	}
	return t
}

// Publish appends ev to its request's buffer and delivers it to current
// subscribers. Publishing to a completed topic reopens it.
func (b *Bus) Publish(ev events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topicLocked(ev.RequestID)
	if t.completed {
		t.completed = false
		if t.expiry != nil {
			t.expiry.Stop()
			t.expiry = nil
		}
	}
	t.ring.push(ev)

	for sub := range t.subs {
		select {
		case sub.ch <- ev:
		default:
			if sub.dropped.Add(1) == 1 {
				b.logger.Warn("eventbus: subscriber is falling behind, dropping events",
					"request_id", ev.RequestID, "seq", ev.Seq)
			}
		}
	}
}

// Subscribe follows new events of requestID.
func (b *Bus) Subscribe(requestID string) *Subscription {
	_, sub := b.SubscribeWithBacklog(requestID)
	return sub
}

// SubscribeWithBacklog returns the buffered events of requestID and a
// subscription that receives every event published after them. Both are taken
// under one lock so nothing falls between the backlog and the live stream.
// If the request already completed the subscription is returned closed.
func (b *Bus) SubscribeWithBacklog(requestID string) ([]events.Event, *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topicLocked(requestID)
	ch := make(chan events.Event, b.cfg.SubscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, requestID: requestID, bus: b}

	if t.completed {
		sub.closed = true
		close(ch)
	} else {
		t.subs[sub] = struct{}{}
	}
	return t.ring.snapshot(), sub
}

// Backlog returns the buffered events of requestID without subscribing.
func (b *Bus) Backlog(requestID string) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[requestID]
	if !ok {
		return nil
	}
	return t.ring.snapshot()
}

// Complete ends the live stream of requestID: subscriptions are closed and
// the buffer is retained for the configured retention before being cleared.
func (b *Bus) Complete(requestID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[requestID]
	if !ok {
		return
	}
	for sub := range t.subs {
		b.detachLocked(sub)
	}
	t.completed = true

	if b.cfg.Retention == 0 {
		delete(b.topics, requestID)
		return
	}
	if t.expiry != nil {
		t.expiry.Stop()
	}
	t.expiry = time.AfterFunc(b.cfg.Retention, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if cur, ok := b.topics[requestID]; ok && cur == t && t.completed {
			delete(b.topics, requestID)
		}
	})
}

// Clear removes requestID's topic immediately, closing its subscriptions.
func (b *Bus) Clear(requestID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[requestID]
	if !ok {
		return
	}
	for sub := range t.subs {
		b.detachLocked(sub)
	}
	if t.expiry != nil {
		t.expiry.Stop()
	}
	delete(b.topics, requestID)
}

// Topics returns the number of live topics.
func (b *Bus) Topics() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}

func (b *Bus) detachLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	if t, ok := b.topics[sub.requestID]; ok {
		delete(t.subs, sub)
	}
	close(sub.ch)
}
