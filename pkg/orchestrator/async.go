package orchestrator

import (
	"context"
	"sync/atomic"

	"github.com/leapstack-labs/dbconn/pkg/core"
	"github.com/leapstack-labs/dbconn/pkg/jobs"
)

// Completion callbacks run exactly once on the job worker goroutine. A
// canceled job reports the zero value and jobs.ErrCanceled.

// submit runs work on the job queue. When interrupt is set, cancelling the
// handle also cancels work's context and, if work is running, the adapter's
// in-flight call.
func submit[T any](o *Orchestrator, ctx context.Context, interrupt bool, work func(context.Context) (T, error), done func(T, error)) *jobs.Handle {
	ctx, cancel := context.WithCancel(ctx)
	var running atomic.Bool

	h := jobs.Go(o.queue, func(*jobs.Handle) (T, error) {
		running.Store(true)
		defer running.Store(false)
		return work(ctx)
	}, func(v T, err error) {
		cancel()
		if done != nil {
			done(v, err)
		}
	})

	if interrupt {
		h.SetCancelCallback(func() {
			cancel()
			if running.Load() {
				_ = o.Cancel()
			}
		})
	}
	return h
}

func noValue(done func(error)) func(struct{}, error) {
	return func(_ struct{}, err error) {
		if done != nil {
			done(err)
		}
	}
}

// ConnectAsync runs Connect on the job worker.
func (o *Orchestrator) ConnectAsync(ctx context.Context, p Profile, done func(error)) *jobs.Handle {
	return submit(o, ctx, true, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.Connect(ctx, p)
	}, noValue(done))
}

// ExecuteQueryAsync runs ExecuteQuery on the job worker.
func (o *Orchestrator) ExecuteQueryAsync(ctx context.Context, sql string, done func(*core.QueryResult, error)) *jobs.Handle {
	return o.ExecuteQueryWithOptionsAsync(ctx, sql, core.QueryOptions{}, done)
}

// ExecuteQueryWithOptionsAsync runs ExecuteQueryWithOptions on the job worker.
func (o *Orchestrator) ExecuteQueryWithOptionsAsync(ctx context.Context, sql string, opts core.QueryOptions, done func(*core.QueryResult, error)) *jobs.Handle {
	return submit(o, ctx, true, func(ctx context.Context) (*core.QueryResult, error) {
		return o.ExecuteQueryWithOptions(ctx, sql, opts)
	}, done)
}

// ExecuteStatementAsync runs ExecuteStatement on the job worker.
func (o *Orchestrator) ExecuteStatementAsync(ctx context.Context, sql string, done func(int64, error)) *jobs.Handle {
	return submit(o, ctx, true, func(ctx context.Context) (int64, error) {
		return o.ExecuteStatement(ctx, sql)
	}, done)
}

// FetchNotificationAsync runs FetchNotification on the job worker. Cancelling
// the handle does not interrupt the adapter.
func (o *Orchestrator) FetchNotificationAsync(ctx context.Context, done func(*core.NotificationEvent, error)) *jobs.Handle {
	return submit(o, ctx, false, o.FetchNotification, done)
}

// FetchStatusAsync runs FetchStatus on the job worker. Cancelling the handle
// does not interrupt the adapter.
func (o *Orchestrator) FetchStatusAsync(ctx context.Context, kind core.StatusKind, done func(*core.StatusSnapshot, error)) *jobs.Handle {
	return submit(o, ctx, false, func(ctx context.Context) (*core.StatusSnapshot, error) {
		return o.FetchStatus(ctx, kind)
	}, done)
}

// BeginTransactionAsync runs BeginTransaction on the job worker.
func (o *Orchestrator) BeginTransactionAsync(ctx context.Context, done func(error)) *jobs.Handle {
	return submit(o, ctx, true, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.BeginTransaction(ctx)
	}, noValue(done))
}

// CommitAsync runs Commit on the job worker.
func (o *Orchestrator) CommitAsync(ctx context.Context, done func(error)) *jobs.Handle {
	return submit(o, ctx, true, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.Commit(ctx)
	}, noValue(done))
}

// RollbackAsync runs Rollback on the job worker.
func (o *Orchestrator) RollbackAsync(ctx context.Context, done func(error)) *jobs.Handle {
	return submit(o, ctx, true, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.Rollback(ctx)
	}, noValue(done))
}
