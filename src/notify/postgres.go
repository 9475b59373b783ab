package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a Notifier over LISTEN/NOTIFY. Notifications are sent through
// a pool and received on a dedicated connection, then fanned out to local
// subscribers by Run. A process receives its own notifications too.
type Postgres struct {
	pool       *pgxpool.Pool
	listenConn *pgx.Conn
	channels   []string
	fan        *fanout
	logger     *slog.Logger
}

// NewPostgres connects to dsn and LISTENs on channels. Call Run to start delivery.
func NewPostgres(ctx context.Context, dsn string, channels []string, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("notify: connect pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("notify: ping: %w", err)
	}

	listenConn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("notify: connect listener: %w", err)
	}

	for _, channel := range channels {
		if _, err := listenConn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
			pool.Close()
			_ = listenConn.Close(ctx)
			return nil, fmt.Errorf("notify: listen %s: %w", channel, err)
		}
	}

	return &Postgres{
		pool:       pool,
		listenConn: listenConn,
		channels:   channels,
		fan:        newFanout(16),
		logger:     logger,
	}, nil
}

// Notify implements Notifier.
func (p *Postgres) Notify(ctx context.Context, channel, payload string) error {
	if _, err := p.pool.Exec(ctx, "SELECT pg_notify($1, $2)", channel, payload); err != nil {
		return fmt.Errorf("notify: notify %s: %w", channel, err)
	}
	return nil
}

// Subscribe implements Notifier. Only channels passed to NewPostgres are delivered.
func (p *Postgres) Subscribe(channel string) *Subscription {
	return p.fan.add(channel)
}

// Run delivers notifications until ctx is cancelled. It owns the listen
// connection and must be called at most once.
func (p *Postgres) Run(ctx context.Context) error {
	p.logger.Info("notify: listening for notifications", "channels", p.channels)

	for {
		notification, err := p.listenConn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if p.listenConn.IsClosed() {
				return fmt.Errorf("notify: listener connection closed: %w", err)
			}
			p.logger.Warn("notify: notification error, retrying", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		n := Notification{Channel: notification.Channel, Payload: notification.Payload}
		if dropped := p.fan.broadcast(n); dropped > 0 {
			p.logger.Warn("notify: dropped notification for slow subscribers",
				"channel", n.Channel, "dropped", dropped)
		}
	}
}

// Close shuts down the pool and the listen connection and closes every subscription.
func (p *Postgres) Close(ctx context.Context) error {
	p.pool.Close()
	p.fan.closeAll()
	return p.listenConn.Close(ctx)
}

var _ Notifier = (*Postgres)(nil)
