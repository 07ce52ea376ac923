package postgres

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/leapstack-labs/dbconn/pkg/core"
)

// copyDirection returns opts.Direction, or infers it from the statement.
func copyDirection(opts core.CopyOptions) core.CopyDirection {
	if opts.Direction != 0 {
		return opts.Direction
	}
	upper := strings.ToUpper(strings.Join(strings.Fields(opts.SQL), " "))
	switch {
	case strings.Contains(upper, "FROM STDIN"):
		return core.CopyIn
	case strings.Contains(upper, "TO STDOUT"):
		return core.CopyOut
	}
	return 0
}

// ExecuteCopy streams COPY ... FROM STDIN from in, or COPY ... TO STDOUT into
// out. Copy-both is replication-only and not supported.
func (a *Adapter) ExecuteCopy(ctx context.Context, opts core.CopyOptions, in io.Reader, out io.Writer) (*core.CopyResult, error) {
	dir := copyDirection(opts)
	switch dir {
	case core.CopyIn:
		if in == nil {
			return nil, errors.New("COPY FROM STDIN requires an input source")
		}
	case core.CopyOut:
		if out == nil {
			return nil, errors.New("COPY TO STDOUT requires an output sink")
		}
	default:
		return a.Unsupported.ExecuteCopy(ctx, opts, in, out)
	}

	pg, err := a.lockConn()
	if err != nil {
		return nil, err
	}
	defer a.mu.Unlock()

	ctx, done := a.enter(ctx)
	defer done()

	start := time.Now()
	var tag pgconn.CommandTag
	if dir == core.CopyIn {
		r := &countingReader{r: in, report: a.reportProgress}
		if opts.ChunkBytes > 0 {
			r.r = bufio.NewReaderSize(in, int(opts.ChunkBytes))
		}
		tag, err = pg.CopyFrom(ctx, r, opts.SQL)
	} else {
		w := &countingWriter{w: out, report: a.reportProgress}
		tag, err = pg.CopyTo(ctx, w, opts.SQL)
	}
	if err != nil {
		return nil, err
	}
	return &core.CopyResult{
		RowsProcessed: tag.RowsAffected(),
		CommandTag:    tag.String(),
		Elapsed:       time.Since(start),
	}, nil
}

// countingReader reports bytes read so far as progress.
type countingReader struct {
	r      io.Reader
	n      uint64
	report func(done, total uint64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.n += uint64(n)
		c.report(c.n, 0)
	}
	return n, err
}

// countingWriter reports bytes written so far as progress.
type countingWriter struct {
	w      io.Writer
	n      uint64
	report func(done, total uint64)
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if n > 0 {
		c.n += uint64(n)
		c.report(c.n, 0)
	}
	return n, err
}
