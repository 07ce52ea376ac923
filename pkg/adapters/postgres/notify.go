package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/leapstack-labs/dbconn/pkg/core"
)

func (a *Adapter) onNotice(_ *pgconn.PgConn, n *pgconn.Notice) {
	a.eventsMu.Lock()
	defer a.eventsMu.Unlock()
	a.notices = append(a.notices, core.Message{
		Severity: strings.ToLower(n.Severity),
		Message:  n.Message,
		Detail:   n.Detail,
	})
}

func (a *Adapter) onNotification(_ *pgconn.PgConn, n *pgconn.Notification) {
	a.eventsMu.Lock()
	defer a.eventsMu.Unlock()
	a.events = append(a.events, core.NotificationEvent{
		Channel:    n.Channel,
		Payload:    []byte(n.Payload),
		ProcessID:  n.PID,
		ReceivedAt: time.Now(),
	})
}

func (a *Adapter) takeNotices() []core.Message {
	a.eventsMu.Lock()
	defer a.eventsMu.Unlock()
	out := a.notices
	a.notices = nil
	return out
}

func (a *Adapter) clearEvents() {
	a.eventsMu.Lock()
	defer a.eventsMu.Unlock()
	a.notices, a.events = nil, nil
}

// Subscribe issues LISTEN on channel. A non-empty filter only delivers
// notifications whose payload contains it.
func (a *Adapter) Subscribe(ctx context.Context, channel, filter string) error {
	pg, err := a.lockConn()
	if err != nil {
		return err
	}
	defer a.mu.Unlock()

	if _, err := pg.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()).ReadAll(); err != nil {
		return err
	}
	a.listening[channel] = filter
	return nil
}

// Unsubscribe issues UNLISTEN on channel.
func (a *Adapter) Unsubscribe(ctx context.Context, channel string) error {
	pg, err := a.lockConn()
	if err != nil {
		return err
	}
	defer a.mu.Unlock()

	if _, err := pg.Exec(ctx, "UNLISTEN "+pgx.Identifier{channel}.Sanitize()).ReadAll(); err != nil {
		return err
	}
	delete(a.listening, channel)
	return nil
}

// FetchNotification returns the oldest buffered notification. When none is
// buffered it makes one round trip to collect pending ones and returns nil if
// there still is none.
func (a *Adapter) FetchNotification(ctx context.Context) (*core.NotificationEvent, error) {
	pg, err := a.lockConn()
	if err != nil {
		return nil, err
	}
	defer a.mu.Unlock()

	if ev := a.nextEvent(); ev != nil {
		return ev, nil
	}
	if err := pg.Ping(ctx); err != nil {
		return nil, err
	}
	return a.nextEvent(), nil
}

// nextEvent pops the oldest event that passes its channel filter.
// Callers hold mu.
func (a *Adapter) nextEvent() *core.NotificationEvent {
	a.eventsMu.Lock()
	defer a.eventsMu.Unlock()
	for len(a.events) > 0 {
		ev := a.events[0]
		a.events = a.events[1:]
		filter, ok := a.listening[ev.Channel]
		if !ok || (filter != "" && !strings.Contains(string(ev.Payload), filter)) {
			continue
		}
		return &ev
	}
	return nil
}
