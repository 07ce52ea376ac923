// Package core defines the shared language of the dbconn system.
//
// This package contains:
//   - Engine identification (EngineFamily, ConnectionMode)
//   - Resolved engine configuration (EngineConfig)
//   - The value/result model every adapter produces (QueryResult, Value, Column)
//   - Copy, prepared statement, notification and status payloads
//   - The capability descriptor adapters report after connecting
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
