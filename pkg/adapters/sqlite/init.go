package sqlite

import (
	"log/slog"

	"github.com/leapstack-labs/dbconn/pkg/adapter"
	"github.com/leapstack-labs/dbconn/pkg/core"
)

func init() {
	adapter.Register(core.EngineSQLite, func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
