package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/elee1766/threadagent/src/eventbus"
	"github.com/elee1766/threadagent/src/events"
	"github.com/elee1766/threadagent/src/storage"
)

// recentEvents is how many events are kept in a request's results summary.
const recentEvents = 20

// EventSink receives the events an attempt produces, in order.
type EventSink interface {
	Emit(ctx context.Context, t events.Type, payload interface{}) error
}

// Emitter persists each event of one attempt to the request's event log and
// then publishes it to live listeners.
type Emitter struct {
	db        storage.Execer
	bus       *eventbus.Bus
	requestID string
	next      int64
	recent    []events.Event
	logger    *slog.Logger
}

// NewEmitter creates an emitter that continues the request's event log
// after its highest sequence number.
func NewEmitter(ctx context.Context, db storage.ExecQuerier, bus *eventbus.Bus, requestID string, logger *slog.Logger) (*Emitter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	next, err := storage.NextEventSeq(ctx, db, requestID)
	if err != nil {
		return nil, fmt.Errorf("read event sequence: %w", err)
	}
	return &Emitter{
		db:        db,
		bus:       bus,
		requestID: requestID,
		next:      next,
		logger:    logger,
	}, nil
}

// Emit implements EventSink. The event is published only once it is stored.
func (e *Emitter) Emit(ctx context.Context, t events.Type, payload interface{}) error {
	ev, err := events.New(t, e.requestID, payload)
	if err != nil {
		return err
	}
	ev.Seq = e.next

	row := &storage.ExecutionEvent{
		RequestID: ev.RequestID,
		Seq:       ev.Seq,
		Type:      string(ev.Type),
		Data:      storage.JSONRaw(ev.Data),
		CreatedAt: ev.Timestamp,
	}
	if err := storage.AppendEvent(ctx, e.db, row); err != nil {
		return fmt.Errorf("persist %s event: %w", t, err)
	}
	e.next++

	e.remember(ev)
	if e.bus != nil {
		e.bus.Publish(ev)
	}
	return nil
}

// Seed preloads the recent window from an earlier results summary.
func (e *Emitter) Seed(results *storage.RequestResults) {
	if results == nil || len(results.LastEvents) == 0 {
		return
	}
	var prior []events.Event
	if err := json.Unmarshal(results.LastEvents, &prior); err != nil {
		e.logger.Debug("ignoring unreadable last events", "request_id", e.requestID, "error", err)
		return
	}
	for _, ev := range prior {
		e.remember(ev)
	}
}

// Recent returns the last events emitted for the request, oldest first.
func (e *Emitter) Recent() []events.Event {
	out := make([]events.Event, len(e.recent))
	copy(out, e.recent)
	return out
}

func (e *Emitter) remember(ev events.Event) {
	e.recent = append(e.recent, ev)
	if over := len(e.recent) - recentEvents; over > 0 {
		e.recent = append(e.recent[:0], e.recent[over:]...)
	}
}

// Replay reads a request's persisted event log after seq, for listeners
// that join once the live buffer is gone.
func Replay(ctx context.Context, db storage.ExecQuerier, requestID string, after int64) ([]events.Event, error) {
	rows, err := storage.ListEvents(ctx, db, requestID, after)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]events.Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, events.Event{
			Seq:       row.Seq,
			Type:      events.Type(row.Type),
			RequestID: row.RequestID,
			Timestamp: row.CreatedAt,
			Data:      json.RawMessage(row.Data),
		})
	}
	return out, nil
}
