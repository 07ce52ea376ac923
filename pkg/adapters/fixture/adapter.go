// Package fixture provides the fixture engine adapter. It answers queries
// from a declarative rule file instead of a live database and is used as the
// lightweight default engine and as the test double for the adapter contract.
package fixture

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/leapstack-labs/dbconn/pkg/adapter"
	"github.com/leapstack-labs/dbconn/pkg/core"
)

func init() {
	adapter.Register(core.EngineFixture, func(logger *slog.Logger) adapter.Adapter {
		return New(logger)
	})
}

// ErrNoMatch is returned when no rule matches a query.
var ErrNoMatch = errors.New("no fixture match for query")

// ErrNoPath is returned by Connect when the config names no fixture file.
var ErrNoPath = errors.New("fixture backend requires a fixture path")

// QueryError is the error declared by a fixture rule.
type QueryError struct {
	Message string
	Stack   []string
}

func (e *QueryError) Error() string {
	if e.Message == "" {
		return "fixture error"
	}
	return e.Message
}

// Adapter implements adapter.Adapter over a Fixture.
type Adapter struct {
	adapter.Unsupported

	logger *slog.Logger

	mu        sync.Mutex
	fixture   *Fixture
	caps      core.Capabilities
	subs      map[string]bool
	delivered int
}

// Compile-time interface check.
var _ adapter.Adapter = (*Adapter)(nil)

// New creates a new fixture adapter.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		Unsupported: adapter.Unsupported{Backend: core.EngineFixture.String()},
		logger:      logger,
	}
}

// Connect loads the fixture file named by cfg.FixturePath. A malformed file
// fails here rather than on the first query.
func (a *Adapter) Connect(_ context.Context, cfg core.EngineConfig) error {
	if cfg.FixturePath == "" {
		return ErrNoPath
	}
	f, err := Load(cfg.FixturePath)
	if err != nil {
		return err
	}
	a.Attach(f)
	a.logger.Debug("fixture loaded", "path", cfg.FixturePath, "rules", len(f.Rules))
	return nil
}

// Attach connects the adapter to an already parsed fixture.
func (a *Adapter) Attach(f *Fixture) {
	caps := core.Capabilities{
		Cancel:        true,
		Transactions:  true,
		Paging:        true,
		Notifications: len(f.Notifications) > 0,
		Status:        len(f.Status) > 0,
		ServerType:    "fixture",
	}
	caps.SetServerVersion("1.0.0")

	a.mu.Lock()
	defer a.mu.Unlock()
	a.fixture = f
	a.caps = caps
	a.subs = make(map[string]bool)
	a.delivered = 0
}

// Disconnect drops the loaded rules.
func (a *Adapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fixture = nil
	a.caps = core.Capabilities{}
	a.subs = nil
	return nil
}

// IsConnected reports whether a fixture is loaded.
func (a *Adapter) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fixture != nil
}

func (a *Adapter) current() (*Fixture, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fixture == nil {
		return nil, adapter.ErrNotConnected
	}
	return a.fixture, nil
}

// ExecuteQuery answers sqlStr from the first matching rule. The returned
// result is a copy; callers may modify it.
func (a *Adapter) ExecuteQuery(_ context.Context, sqlStr string, opts core.QueryOptions) (*core.QueryResult, error) {
	f, err := a.current()
	if err != nil {
		return nil, err
	}

	rule, ok := f.Lookup(sqlStr)
	if !ok {
		a.logger.Debug("no fixture match", "sql", sqlStr)
		return nil, ErrNoMatch
	}
	if rule.Err != nil {
		return nil, rule.Err
	}

	res := rule.Result.Clone()
	if opts.MaxRows > 0 && len(res.Rows) > opts.MaxRows {
		res.Rows = res.Rows[:opts.MaxRows]
		res.Stats.Truncated = true
	}
	res.Stats.RowsReturned = int64(len(res.Rows))
	return res, nil
}

// BeginTransaction is accepted once connected.
func (a *Adapter) BeginTransaction(context.Context) error {
	_, err := a.current()
	return err
}

// Commit is accepted once connected.
func (a *Adapter) Commit(context.Context) error {
	_, err := a.current()
	return err
}

// Rollback is accepted once connected.
func (a *Adapter) Rollback(context.Context) error {
	_, err := a.current()
	return err
}

// Cancel is accepted once connected; there is never anything in flight.
func (a *Adapter) Cancel() error {
	_, err := a.current()
	return err
}

// Subscribe starts delivering declared notifications for channel.
func (a *Adapter) Subscribe(ctx context.Context, channel, filter string) error {
	if !a.Capabilities().Notifications {
		return a.Unsupported.Subscribe(ctx, channel, filter)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fixture == nil {
		return adapter.ErrNotConnected
	}
	a.subs[strings.ToLower(channel)] = true
	return nil
}

// Unsubscribe stops delivering notifications for channel.
func (a *Adapter) Unsubscribe(ctx context.Context, channel string) error {
	if !a.Capabilities().Notifications {
		return a.Unsupported.Unsubscribe(ctx, channel)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fixture == nil {
		return adapter.ErrNotConnected
	}
	delete(a.subs, strings.ToLower(channel))
	return nil
}

// FetchNotification returns the next declared notification on a subscribed
// channel, or nil when none is left.
func (a *Adapter) FetchNotification(ctx context.Context) (*core.NotificationEvent, error) {
	if !a.Capabilities().Notifications {
		return a.Unsupported.FetchNotification(ctx)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fixture == nil {
		return nil, adapter.ErrNotConnected
	}
	for a.delivered < len(a.fixture.Notifications) {
		ev := a.fixture.Notifications[a.delivered]
		a.delivered++
		if a.subs[strings.ToLower(ev.Channel)] {
			ev.Payload = append([]byte(nil), ev.Payload...)
			ev.ReceivedAt = time.Now()
			return &ev, nil
		}
	}
	return nil, nil
}

// FetchStatus returns the entries declared for kind.
func (a *Adapter) FetchStatus(ctx context.Context, kind core.StatusKind) (*core.StatusSnapshot, error) {
	if !a.Capabilities().Status {
		return a.Unsupported.FetchStatus(ctx, kind)
	}
	f, err := a.current()
	if err != nil {
		return nil, err
	}
	entries, ok := f.Status[kind]
	if !ok {
		return nil, &adapter.NotSupportedError{Feature: kind.String() + " status", Backend: a.Backend}
	}
	return &core.StatusSnapshot{
		Kind:       kind,
		Entries:    append([]core.StatusEntry(nil), entries...),
		CapturedAt: time.Now(),
	}, nil
}

// Capabilities returns the snapshot built on connect.
func (a *Adapter) Capabilities() core.Capabilities {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.caps
}

// BackendName returns "fixture".
func (a *Adapter) BackendName() string {
	return a.Backend
}
