package eventbus

import "github.com/elee1766/threadagent/src/events"

// ring is a fixed-capacity FIFO that overwrites its oldest entry when full.
type ring struct {
	items []events.Event
	start int
	count int
}

func newRing(capacity int) *ring {
	return &ring{items: make([]events.Event, capacity)}
}

func (r *ring) push(ev events.Event) {
	if r.count < len(r.items) {
		r.items[(r.start+r.count)%len(r.items)] = ev
		r.count++
		return
	}
	r.items[r.start] = ev
	r.start = (r.start + 1) % len(r.items)
}

func (r *ring) snapshot() []events.Event {
	out := make([]events.Event, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.items[(r.start+i)%len(r.items)]
	}
	return out
}
