package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/leapstack-labs/dbconn/pkg/adapter"
	"github.com/leapstack-labs/dbconn/pkg/core"
)

// FetchStatus returns a status snapshot. Connection info comes from the
// session's parameter status; other kinds query the server.
func (a *Adapter) FetchStatus(ctx context.Context, kind core.StatusKind) (*core.StatusSnapshot, error) {
	pg, err := a.lockConn()
	if err != nil {
		return nil, err
	}
	defer a.mu.Unlock()

	snap := &core.StatusSnapshot{Kind: kind, CapturedAt: time.Now()}
	if kind == core.StatusConnectionInfo {
		snap.Add("backend", BackendName)
		snap.Add("server_version", pg.ParameterStatus("server_version"))
		snap.Add("host", a.cfg.Host)
		snap.Add("database", a.cfg.Database)
		snap.Add("user", a.cfg.Username)
		snap.Add("backend_pid", strconv.FormatUint(uint64(pg.PID()), 10))
		snap.Add("in_transaction", strconv.FormatBool(pg.TxStatus() != 'I'))
		snap.Add("server_encoding", pg.ParameterStatus("server_encoding"))
		snap.Add("application_name", pg.ParameterStatus("application_name"))
		return snap, nil
	}

	q, ok := statusQueries[kind]
	if !ok {
		return nil, &adapter.NotSupportedError{Feature: kind.String() + " status", Backend: BackendName}
	}
	res, err := a.queryLocked(ctx, pg, q, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s status: %w", kind, err)
	}
	adapter.AppendStatus(snap, res)
	return snap, nil
}
