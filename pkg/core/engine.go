package core

import (
	"fmt"
	"strings"
)

// EngineFamily identifies a database engine family. Each family carries its own
// default port so profile building and adapter selection share one lookup.
type EngineFamily int

// Engine families known to dbconn.
const (
	EngineNative EngineFamily = iota
	EnginePostgres
	EngineMySQL
	EngineFirebird
	EngineFixture
	EngineDuckDB
	EngineSQLite
)

// engineInfo is the static description of a family.
type engineInfo struct {
	name        string
	defaultPort int
	aliases     []string
}

var engines = map[EngineFamily]engineInfo{
	EngineNative:   {name: "native", defaultPort: 3092, aliases: []string{"native", "network", "scratchbird"}},
	EnginePostgres: {name: "postgres", defaultPort: 5432, aliases: []string{"postgres", "postgresql", "pg"}},
	EngineMySQL:    {name: "mysql", defaultPort: 3306, aliases: []string{"mysql", "mariadb"}},
	EngineFirebird: {name: "firebird", defaultPort: 3050, aliases: []string{"firebird", "fb"}},
	EngineFixture:  {name: "fixture", aliases: []string{"fixture", "mock"}},
	EngineDuckDB:   {name: "duckdb", aliases: []string{"duckdb"}},
	EngineSQLite:   {name: "sqlite", aliases: []string{"sqlite", "sqlite3"}},
}

// String returns the canonical family name.
func (f EngineFamily) String() string {
	if info, ok := engines[f]; ok {
		return info.name
	}
	return fmt.Sprintf("EngineFamily(%d)", int(f))
}

// DefaultPort returns the port used when a profile leaves it unset.
// In-process and fixture engines return 0.
func (f EngineFamily) DefaultPort() int {
	return engines[f].defaultPort
}

// Aliases returns the selector strings that resolve to this family.
func (f EngineFamily) Aliases() []string {
	return append([]string(nil), engines[f].aliases...)
}

// EngineFamilies returns every known family in declaration order.
func EngineFamilies() []EngineFamily {
	return []EngineFamily{
		EngineNative, EnginePostgres, EngineMySQL, EngineFirebird,
		EngineFixture, EngineDuckDB, EngineSQLite,
	}
}

// ParseEngineFamily resolves a case-insensitive engine selector.
// An empty selector means the native engine, or the fixture engine when a
// fixture path is present.
func ParseEngineFamily(selector, fixturePath string) (EngineFamily, error) {
	name := strings.ToLower(strings.TrimSpace(selector))
	if name == "" {
		if fixturePath != "" {
			return EngineFixture, nil
		}
		return EngineNative, nil
	}
	for _, f := range EngineFamilies() {
		for _, alias := range engines[f].aliases {
			if alias == name {
				return f, nil
			}
		}
	}
	return 0, &UnknownBackendError{Selector: selector}
}

// UnknownBackendError is returned when a profile names an unrecognized engine.
type UnknownBackendError struct {
	Selector string
}

func (e *UnknownBackendError) Error() string {
	return fmt.Sprintf("unknown backend: %s", e.Selector)
}

// ConnectionMode describes how an adapter reaches its engine.
type ConnectionMode int

// Connection modes.
const (
	ModeNetwork ConnectionMode = iota
	ModeIPC
	ModeEmbedded
)

// String returns the mode name.
func (m ConnectionMode) String() string {
	switch m {
	case ModeIPC:
		return "ipc"
	case ModeEmbedded:
		return "embedded"
	default:
		return "network"
	}
}

// ParseConnectionMode parses a case-insensitive mode name; empty means network.
func ParseConnectionMode(s string) (ConnectionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "network", "tcp":
		return ModeNetwork, nil
	case "ipc", "local", "socket":
		return ModeIPC, nil
	case "embedded", "inprocess", "in-process":
		return ModeEmbedded, nil
	default:
		return ModeNetwork, fmt.Errorf("unknown connection mode %q", s)
	}
}
