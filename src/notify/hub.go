package notify

import (
	"context"
)

// Hub is an in-process Notifier.
type Hub struct {
	fan *fanout
}

// NewHub creates a hub whose subscribers buffer up to buffer notifications.
func NewHub(buffer int) *Hub {
	return &Hub{fan: newFanout(buffer)}
}

// Notify implements Notifier.
func (h *Hub) Notify(ctx context.Context, channel, payload string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.fan.broadcast(Notification{Channel: channel, Payload: payload})
	return nil
}

// Subscribe implements Notifier.
func (h *Hub) Subscribe(channel string) *Subscription {
	return h.fan.add(channel)
}

// Close closes every open subscription.
func (h *Hub) Close() {
	h.fan.closeAll()
}

var _ Notifier = (*Hub)(nil)
