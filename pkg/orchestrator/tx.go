package orchestrator

import "context"

// BeginTransaction opens a transaction.
func (o *Orchestrator) BeginTransaction(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.record(o.beginLocked(ctx))
}

func (o *Orchestrator) beginLocked(ctx context.Context) error {
	a, err := o.connectedLocked()
	if err != nil {
		return err
	}
	if err := a.BeginTransaction(ctx); err != nil {
		return err
	}
	o.inTx = true
	return nil
}

// Commit commits the open transaction. In manual-commit mode a new
// transaction is opened straight away.
func (o *Orchestrator) Commit(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.record(o.commitLocked(ctx))
}

func (o *Orchestrator) commitLocked(ctx context.Context) error {
	a, err := o.connectedLocked()
	if err != nil {
		return err
	}
	if err := a.Commit(ctx); err != nil {
		return err
	}
	o.inTx = false
	if !o.autoCommit {
		return o.beginLocked(ctx)
	}
	return nil
}

// Rollback rolls back the open transaction. In manual-commit mode a new
// transaction is opened straight away.
func (o *Orchestrator) Rollback(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.record(o.rollbackLocked(ctx))
}

func (o *Orchestrator) rollbackLocked(ctx context.Context) error {
	a, err := o.connectedLocked()
	if err != nil {
		return err
	}
	if err := a.Rollback(ctx); err != nil {
		return err
	}
	o.inTx = false
	if !o.autoCommit {
		return o.beginLocked(ctx)
	}
	return nil
}

// SetAutoCommit switches mode. Enabling it commits an open transaction;
// disabling it opens one. Both happen before SetAutoCommit returns.
func (o *Orchestrator) SetAutoCommit(ctx context.Context, enabled bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.autoCommit = enabled
	if !o.IsConnected() {
		return nil
	}
	if enabled {
		if o.inTx {
			return o.record(o.commitLocked(ctx))
		}
		return nil
	}
	if !o.inTx {
		return o.record(o.beginLocked(ctx))
	}
	return nil
}

// IsAutoCommit reports the auto-commit mode.
func (o *Orchestrator) IsAutoCommit() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.autoCommit
}

// IsInTransaction reports whether a transaction is open.
func (o *Orchestrator) IsInTransaction() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inTx
}
