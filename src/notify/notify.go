// Package notify delivers "this row changed" notifications. The in-process
// Hub serves a single process; Postgres fans LISTEN/NOTIFY out to local
// subscribers so approvals made by another process wake a waiting one.
package notify

import (
	"context"
	"sync"
	"sync/atomic"
)

// ChannelToolCalls carries the id of an agent tool call whose approval status changed.
const ChannelToolCalls = "threadagent_tool_calls"

// Notification is one delivered message.
type Notification struct {
	Channel string
	Payload string
}

// Notifier publishes and subscribes to notifications. Subscribers filter by
// payload. Delivery is best-effort per subscriber: a subscriber whose buffer
// is full misses the notification and Missed reports it, so a waiter that
// must not miss a change re-reads its row.
type Notifier interface {
	Notify(ctx context.Context, channel, payload string) error
	Subscribe(channel string) *Subscription
}

// Subscription receives notifications for one channel until closed.
type Subscription struct {
	C <-chan Notification

	ch      chan Notification
	channel string
	fan     *fanout
	once    sync.Once
	missed  atomic.Bool
}

// Missed reports whether a notification was dropped for this subscriber
// since the previous call.
func (s *Subscription) Missed() bool {
	return s.missed.Swap(false)
}

// Close unsubscribes and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.fan.remove(s)
	})
}

// fanout holds the local subscribers shared by Hub and Postgres.
type fanout struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Subscription]struct{}
	buffer      int
}

func newFanout(buffer int) *fanout {
	if buffer <= 0 {
		buffer = 16
	}
	return &fanout{
		subscribers: make(map[string]map[*Subscription]struct{}),
		buffer:      buffer,
	}
}

func (f *fanout) add(channel string) *Subscription {
	ch := make(chan Notification, f.buffer)
	sub := &Subscription{C: ch, ch: ch, channel: channel, fan: f}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribers[channel] == nil {
		f.subscribers[channel] = make(map[*Subscription]struct{})
	}
	f.subscribers[channel][sub] = struct{}{}
	return sub
}

func (f *fanout) remove(sub *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs := f.subscribers[sub.channel]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(f.subscribers, sub.channel)
	}
	close(sub.ch)
}

// broadcast delivers n to every subscriber of its channel. A subscriber
// with a full buffer misses the notification and is flagged.
func (f *fanout) broadcast(n Notification) (dropped int) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for sub := range f.subscribers[n.Channel] {
		select {
		case sub.ch <- n:
		default:
			sub.missed.Store(true)
			dropped++
		}
	}
	return dropped
}

func (f *fanout) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for channel, subs := range f.subscribers {
		for sub := range subs {
			close(sub.ch)
		}
		delete(f.subscribers, channel)
	}
}
