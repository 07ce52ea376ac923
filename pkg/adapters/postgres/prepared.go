package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/leapstack-labs/dbconn/pkg/core"
)

// PrepareStatement prepares sqlStr as a named server-side statement.
func (a *Adapter) PrepareStatement(ctx context.Context, sqlStr string) (*core.PreparedStatement, error) {
	pg, err := a.lockConn()
	if err != nil {
		return nil, err
	}
	defer a.mu.Unlock()

	name := "dbconn_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	sd, err := pg.Prepare(ctx, name, sqlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	a.stmts[name] = sd
	return &core.PreparedStatement{
		ID:         name,
		SQL:        sqlStr,
		ParamCount: len(sd.ParamOIDs),
		Backend:    BackendName,
		Handle:     sd,
	}, nil
}

// ExecutePrepared binds params and runs the statement. Raw parameters are
// sent in binary format, the rest as text.
func (a *Adapter) ExecutePrepared(ctx context.Context, ps *core.PreparedStatement, params []core.PreparedParameter) (*core.QueryResult, error) {
	if ps == nil {
		return nil, errors.New("prepared statement is nil")
	}
	pg, err := a.lockConn()
	if err != nil {
		return nil, err
	}
	defer a.mu.Unlock()

	sd, ok := a.stmts[ps.ID]
	if !ok {
		return nil, fmt.Errorf("unknown prepared statement %s", ps.ID)
	}
	if len(params) != len(sd.ParamOIDs) {
		return nil, fmt.Errorf("statement expects %d parameters, got %d", len(sd.ParamOIDs), len(params))
	}

	values := make([][]byte, len(params))
	formats := make([]int16, len(params))
	for i, p := range params {
		switch {
		case p.IsNull:
		case p.Raw != nil:
			values[i], formats[i] = p.Raw, pgtype.BinaryFormatCode
		default:
			values[i], formats[i] = []byte(p.Text), pgtype.TextFormatCode
		}
	}

	ctx, done := a.enter(ctx)
	defer done()

	a.takeNotices()
	r := pg.ExecPrepared(ctx, sd.Name, values, formats, nil).Read()
	notices := a.takeNotices()
	if r.Err != nil {
		return nil, r.Err
	}
	res, err := a.buildResult(fieldsOf(r, sd), r.Rows, r.CommandTag, 0)
	if err != nil {
		return nil, err
	}
	res.Messages = notices
	return res, nil
}

func fieldsOf(r *pgconn.Result, sd *pgconn.StatementDescription) []pgconn.FieldDescription {
	if len(r.FieldDescriptions) > 0 {
		return r.FieldDescriptions
	}
	return sd.Fields
}

// ClosePrepared deallocates the statement. Unknown statements are ignored.
func (a *Adapter) ClosePrepared(ctx context.Context, ps *core.PreparedStatement) error {
	if ps == nil {
		return nil
	}
	pg, err := a.lockConn()
	if err != nil {
		return nil
	}
	defer a.mu.Unlock()

	if _, ok := a.stmts[ps.ID]; !ok {
		return nil
	}
	delete(a.stmts, ps.ID)
	_, err = pg.Exec(ctx, "DEALLOCATE "+pgx.Identifier{ps.ID}.Sanitize()).ReadAll()
	return err
}
