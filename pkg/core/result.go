package core

import (
	"encoding/hex"
	"time"
)

// Column describes one result column.
type Column struct {
	Name string `json:"name"`
	// Type is the engine-reported type tag (e.g. INT4, VARCHAR, BLOB).
	Type string `json:"type"`
}

// Value is a single result cell.
type Value struct {
	IsNull bool   `json:"is_null"`
	Text   string `json:"text"`
	// Raw carries the bytes of binary-typed values; nil otherwise.
	Raw []byte `json:"raw,omitempty"`
}

// NullValue returns the canonical NULL cell.
func NullValue() Value {
	return Value{IsNull: true, Text: "NULL"}
}

// TextValue returns a non-null text cell.
func TextValue(s string) Value {
	return Value{Text: s}
}

// BinaryValue returns a non-null binary cell whose text form is lower-case hex.
func BinaryValue(b []byte) Value {
	return Value{Text: hex.EncodeToString(b), Raw: b}
}

// Message is a diagnostic (notice, warning) emitted while running a statement.
type Message struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Detail   string `json:"detail,omitempty"`
}

// QueryStats holds values derived from a result by the caller side.
type QueryStats struct {
	RowsReturned int64         `json:"rows_returned"`
	Elapsed      time.Duration `json:"elapsed"`
	// Truncated is set when a MaxRows window cut the result short.
	Truncated bool `json:"truncated"`
}

// QueryResult is the complete, engine-independent outcome of one statement.
// It is rebuilt on every call and never mutated incrementally.
type QueryResult struct {
	Columns      []Column   `json:"columns"`
	Rows         [][]Value  `json:"rows"`
	RowsAffected int64      `json:"rows_affected"`
	CommandTag   string     `json:"command_tag"`
	Messages     []Message  `json:"messages,omitempty"`
	ErrorStack   []string   `json:"error_stack,omitempty"`
	Stats        QueryStats `json:"stats"`
}

// Reset clears every field so no partial data survives a failure.
func (r *QueryResult) Reset() {
	*r = QueryResult{}
}

// ColumnNames returns the column names in order.
func (r *QueryResult) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// Clone returns a deep copy of r.
func (r *QueryResult) Clone() *QueryResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Columns = append([]Column(nil), r.Columns...)
	out.Messages = append([]Message(nil), r.Messages...)
	out.ErrorStack = append([]string(nil), r.ErrorStack...)
	out.Rows = make([][]Value, len(r.Rows))
	for i, row := range r.Rows {
		cp := make([]Value, len(row))
		for j, v := range row {
			cp[j] = v
			if v.Raw != nil {
				cp[j].Raw = append([]byte(nil), v.Raw...)
			}
		}
		out.Rows[i] = cp
	}
	return &out
}

// QueryOptions are hints for a single ExecuteQuery call. Adapters that cannot
// stream ignore Streaming and still return the full result.
type QueryOptions struct {
	Streaming bool
	// MaxRows caps returned rows; 0 means unlimited.
	MaxRows int
	// FetchSize is a batching hint for streaming engines.
	FetchSize int
}
