package duckdb

import (
	"log/slog"

	"github.com/leapstack-labs/dbconn/pkg/adapter"
	"github.com/leapstack-labs/dbconn/pkg/core"
)

func init() {
	adapter.Register(core.EngineDuckDB, func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
