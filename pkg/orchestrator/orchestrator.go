// Package orchestrator owns the current connection. It resolves credentials,
// builds engine configuration from a profile, selects the adapter and keeps
// the transaction/auto-commit state machine consistent for synchronous and
// asynchronous callers.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/leapstack-labs/dbconn/pkg/adapter"
	"github.com/leapstack-labs/dbconn/pkg/core"
	"github.com/leapstack-labs/dbconn/pkg/credentials"
	"github.com/leapstack-labs/dbconn/pkg/jobs"
)

// AdapterFactory constructs the adapter for an engine family.
type AdapterFactory func(core.EngineFamily, *slog.Logger) (adapter.Adapter, error)

// State is the connection/transaction state.
type State int

// States.
const (
	StateDisconnected State = iota
	StateAutoCommit
	StateInTransaction
)

func (s State) String() string {
	switch s {
	case StateAutoCommit:
		return "auto-commit"
	case StateInTransaction:
		return "in-transaction"
	default:
		return "disconnected"
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCredentials sets the password resolver. Without one, profiles that
// reference a credential fail to connect.
func WithCredentials(r credentials.Resolver) Option {
	return func(o *Orchestrator) { o.creds = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithNetworkOptions sets the transport defaults.
func WithNetworkOptions(n NetworkOptions) Option {
	return func(o *Orchestrator) { o.net = n }
}

// WithAdapterFactory replaces the registry lookup.
func WithAdapterFactory(f AdapterFactory) Option {
	return func(o *Orchestrator) { o.factory = f }
}

// WithAutoCommit sets the initial auto-commit mode (default on).
func WithAutoCommit(enabled bool) Option {
	return func(o *Orchestrator) { o.autoCommit = enabled }
}

// adapterRef boxes the interface for atomic.Pointer.
type adapterRef struct {
	adapter.Adapter
}

// Orchestrator is the single owner of the current connection.
//
// Public methods take mu and call unexported *Locked helpers, so operations
// built from other operations never re-acquire it. Cancel reads the adapter
// through an atomic pointer and never waits for mu.
type Orchestrator struct {
	logger  *slog.Logger
	creds   credentials.Resolver
	factory AdapterFactory
	queue   *jobs.Queue

	mu         sync.Mutex
	net        NetworkOptions
	autoCommit bool
	inTx       bool
	progress   adapter.ProgressFunc

	active atomic.Pointer[adapterRef]

	errMu         sync.Mutex
	lastErr       string
	connectCancel context.CancelFunc
}

// New creates an orchestrator and starts its job worker. Call Close when done.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger:     slog.New(slog.DiscardHandler),
		factory:    adapter.NewAdapter,
		net:        DefaultNetworkOptions(),
		autoCommit: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.queue = jobs.NewQueue(o.logger.With("component", "jobs"))
	return o
}

// Close stops the job worker after it drains and disconnects.
func (o *Orchestrator) Close() error {
	o.queue.Stop()
	return o.Disconnect()
}

// LastError returns the message of the most recent failed operation.
func (o *Orchestrator) LastError() string {
	o.errMu.Lock()
	defer o.errMu.Unlock()
	return o.lastErr
}

func (o *Orchestrator) record(err error) error {
	if err != nil && !errors.Is(err, jobs.ErrCanceled) {
		o.errMu.Lock()
		o.lastErr = err.Error()
		o.errMu.Unlock()
	}
	return err
}

// SetNetworkOptions replaces the transport defaults used by later connects.
func (o *Orchestrator) SetNetworkOptions(n NetworkOptions) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.net = n
}

// NetworkOptions returns the transport defaults.
func (o *Orchestrator) NetworkOptions() NetworkOptions {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.net
}

func (o *Orchestrator) adapter() adapter.Adapter {
	if ref := o.active.Load(); ref != nil {
		return ref.Adapter
	}
	return nil
}

// connectedLocked returns the live adapter or ErrNotConnected.
func (o *Orchestrator) connectedLocked() (adapter.Adapter, error) {
	a := o.adapter()
	if a == nil || !a.IsConnected() {
		return nil, ErrNotConnected
	}
	return a, nil
}

// Connect replaces the current connection with one built from p. Any failure
// leaves the orchestrator disconnected.
func (o *Orchestrator) Connect(ctx context.Context, p Profile) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.errMu.Lock()
	o.lastErr = ""
	o.errMu.Unlock()

	return o.record(o.connectLocked(ctx, p))
}

func (o *Orchestrator) connectLocked(ctx context.Context, p Profile) error {
	o.disconnectLocked()

	password := ""
	if p.CredentialRef != "" {
		if o.creds == nil {
			return &CredentialError{Ref: p.CredentialRef}
		}
		pw, err := o.creds.ResolvePassword(ctx, p.CredentialRef)
		if err != nil {
			return &CredentialError{Ref: p.CredentialRef, Err: err}
		}
		password = pw
	}

	cfg, err := BuildEngineConfig(p, password, o.net)
	if err != nil {
		return err
	}
	a, err := o.factory(cfg.Family, o.logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	o.errMu.Lock()
	o.connectCancel = cancel
	o.errMu.Unlock()
	defer func() {
		o.errMu.Lock()
		o.connectCancel = nil
		o.errMu.Unlock()
		cancel()
	}()

	o.logger.Debug("connecting", "profile", p.Name, "config", cfg)
	if err := a.Connect(ctx, cfg); err != nil {
		return err
	}
	if o.progress != nil {
		a.SetProgressCallback(o.progress)
	}
	o.active.Store(&adapterRef{a})
	o.inTx = false
	o.logger.Info("connected", "profile", p.Name, "backend", a.BackendName())

	if !o.autoCommit {
		if err := o.beginLocked(context.WithoutCancel(ctx)); err != nil {
			o.disconnectLocked()
			return err
		}
	}
	return nil
}

// Disconnect closes the current connection. It is a no-op when disconnected.
func (o *Orchestrator) Disconnect() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.record(o.disconnectLocked())
}

func (o *Orchestrator) disconnectLocked() error {
	o.inTx = false
	ref := o.active.Swap(nil)
	if ref == nil {
		return nil
	}
	o.logger.Debug("disconnecting", "backend", ref.BackendName())
	return ref.Disconnect()
}

// IsConnected reports whether there is a live connection.
func (o *Orchestrator) IsConnected() bool {
	a := o.adapter()
	return a != nil && a.IsConnected()
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case !o.IsConnected():
		return StateDisconnected
	case o.inTx:
		return StateInTransaction
	default:
		return StateAutoCommit
	}
}

// Capabilities returns the active adapter's snapshot, or the zero value.
func (o *Orchestrator) Capabilities() core.Capabilities {
	if a := o.adapter(); a != nil {
		return a.Capabilities()
	}
	return core.Capabilities{}
}

// BackendName returns the active adapter's name, or "".
func (o *Orchestrator) BackendName() string {
	if a := o.adapter(); a != nil {
		return a.BackendName()
	}
	return ""
}

// Cancel asks the active adapter to abort its in-flight call, or aborts a
// connect in progress. It never waits for the state lock. Cancelling an
// adapter that was replaced or disconnected meanwhile does nothing.
func (o *Orchestrator) Cancel() error {
	o.errMu.Lock()
	connecting := o.connectCancel
	o.errMu.Unlock()
	if connecting != nil {
		connecting()
		return nil
	}

	a := o.adapter()
	if a == nil {
		return o.record(ErrNotConnected)
	}
	if !a.IsConnected() {
		return nil
	}
	if err := a.Cancel(); err != nil {
		return o.record(err)
	}
	return nil
}
