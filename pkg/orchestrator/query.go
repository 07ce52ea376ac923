package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/leapstack-labs/dbconn/pkg/adapter"
	"github.com/leapstack-labs/dbconn/pkg/core"
)

// ExecuteQuery runs one statement. A failed call returns a nil result.
func (o *Orchestrator) ExecuteQuery(ctx context.Context, sql string) (*core.QueryResult, error) {
	return o.ExecuteQueryWithOptions(ctx, sql, core.QueryOptions{})
}

// ExecuteQueryWithOptions runs one statement with paging/streaming hints.
func (o *Orchestrator) ExecuteQueryWithOptions(ctx context.Context, sql string, opts core.QueryOptions) (*core.QueryResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	res, err := o.queryLocked(ctx, sql, opts)
	return res, o.record(err)
}

// ExecuteStatement runs one statement and returns the rows it affected.
func (o *Orchestrator) ExecuteStatement(ctx context.Context, sql string) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	res, err := o.queryLocked(ctx, sql, core.QueryOptions{})
	if err != nil {
		return 0, o.record(err)
	}
	return res.RowsAffected, nil
}

func (o *Orchestrator) queryLocked(ctx context.Context, sql string, opts core.QueryOptions) (*core.QueryResult, error) {
	a, err := o.connectedLocked()
	if err != nil {
		return nil, err
	}
	if err := o.ensureTxLocked(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := a.ExecuteQuery(ctx, sql, opts)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &core.QueryResult{}
	}
	res.Stats.RowsReturned = int64(len(res.Rows))
	if res.Stats.Elapsed == 0 {
		res.Stats.Elapsed = time.Since(start)
	}
	return res, nil
}

// ensureTxLocked opens the transaction manual-commit mode requires.
func (o *Orchestrator) ensureTxLocked(ctx context.Context) error {
	if o.autoCommit || o.inTx {
		return nil
	}
	return o.beginLocked(ctx)
}

// ExecuteCopy runs a bulk transfer. File sources and sinks are opened here;
// clipboard output is returned in CopyResult.OutputPayload.
func (o *Orchestrator) ExecuteCopy(ctx context.Context, opts core.CopyOptions) (*core.CopyResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	res, err := o.copyLocked(ctx, opts)
	return res, o.record(err)
}

func (o *Orchestrator) copyLocked(ctx context.Context, opts core.CopyOptions) (res *core.CopyResult, err error) {
	a, err := o.connectedLocked()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.SQL) == "" {
		return nil, ErrCopyRequiresSQL
	}
	if err := o.ensureTxLocked(ctx); err != nil {
		return nil, err
	}

	var in io.Reader
	switch opts.InputSource {
	case core.CopyFile:
		f, err := os.Open(opts.InputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open COPY input file: %w", err)
		}
		defer func() { _ = f.Close() }()
		in = f
	case core.CopyClipboard:
		in = strings.NewReader(opts.ClipboardPayload)
	case core.CopyStream:
		in = opts.Input
	}

	var out io.Writer
	var clipboard *bytes.Buffer
	switch opts.OutputSource {
	case core.CopyFile:
		f, err := os.Create(opts.OutputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open COPY output file: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				res, err = nil, fmt.Errorf("failed to close COPY output file: %w", cerr)
			}
		}()
		out = f
	case core.CopyClipboard:
		clipboard = &bytes.Buffer{}
		out = clipboard
	case core.CopyStream:
		out = opts.Output
	}

	if opts.ChunkBytes == 0 {
		opts.ChunkBytes = o.net.StreamChunkBytes
	}
	if opts.WindowBytes == 0 {
		opts.WindowBytes = o.net.StreamWindowBytes
	}

	start := time.Now()
	res, err = a.ExecuteCopy(ctx, opts, in, out)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &core.CopyResult{}
	}
	if res.Elapsed == 0 {
		res.Elapsed = time.Since(start)
	}
	if clipboard != nil {
		res.OutputPayload = clipboard.String()
	}
	return res, nil
}

// PrepareStatement prepares sql on the active adapter.
func (o *Orchestrator) PrepareStatement(ctx context.Context, sql string) (*core.PreparedStatement, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	a, err := o.connectedLocked()
	if err != nil {
		return nil, o.record(err)
	}
	stmt, err := a.PrepareStatement(ctx, sql)
	return stmt, o.record(err)
}

// ExecutePrepared runs a prepared statement.
func (o *Orchestrator) ExecutePrepared(ctx context.Context, stmt *core.PreparedStatement, params []core.PreparedParameter) (*core.QueryResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	a, err := o.connectedLocked()
	if err != nil {
		return nil, o.record(err)
	}
	if stmt == nil {
		return nil, o.record(errors.New("no prepared statement handle provided"))
	}
	res, err := a.ExecutePrepared(ctx, stmt, params)
	if err != nil {
		return nil, o.record(err)
	}
	if res == nil {
		res = &core.QueryResult{}
	}
	res.Stats.RowsReturned = int64(len(res.Rows))
	return res, nil
}

// ClosePrepared frees a prepared statement. It is a no-op when disconnected.
func (o *Orchestrator) ClosePrepared(ctx context.Context, stmt *core.PreparedStatement) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	a := o.adapter()
	if a == nil || stmt == nil {
		return nil
	}
	return o.record(a.ClosePrepared(ctx, stmt))
}

// Subscribe listens on a notification channel.
func (o *Orchestrator) Subscribe(ctx context.Context, channel, filter string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	a, err := o.connectedLocked()
	if err != nil {
		return o.record(err)
	}
	return o.record(a.Subscribe(ctx, channel, filter))
}

// Unsubscribe stops listening on a notification channel.
func (o *Orchestrator) Unsubscribe(ctx context.Context, channel string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	a, err := o.connectedLocked()
	if err != nil {
		return o.record(err)
	}
	return o.record(a.Unsubscribe(ctx, channel))
}

// FetchNotification pulls the next notification; nil means none is pending.
func (o *Orchestrator) FetchNotification(ctx context.Context) (*core.NotificationEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	a, err := o.connectedLocked()
	if err != nil {
		return nil, o.record(err)
	}
	ev, err := a.FetchNotification(ctx)
	return ev, o.record(err)
}

// FetchStatus pulls a status snapshot.
func (o *Orchestrator) FetchStatus(ctx context.Context, kind core.StatusKind) (*core.StatusSnapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	a, err := o.connectedLocked()
	if err != nil {
		return nil, o.record(err)
	}
	snap, err := a.FetchStatus(ctx, kind)
	return snap, o.record(err)
}

// SetProgressCallback installs fn on the active adapter and on adapters
// connected later.
func (o *Orchestrator) SetProgressCallback(fn adapter.ProgressFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress = fn
	if a := o.adapter(); a != nil {
		a.SetProgressCallback(fn)
	}
}
