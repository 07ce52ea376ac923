package core

import (
	"io"
	"time"
)

// CopyDirection is the direction of a bulk transfer.
type CopyDirection int

// Copy directions.
const (
	CopyIn CopyDirection = iota + 1
	CopyOut
	CopyBoth
)

// String returns the direction name.
func (d CopyDirection) String() string {
	switch d {
	case CopyIn:
		return "in"
	case CopyOut:
		return "out"
	case CopyBoth:
		return "both"
	default:
		return "unknown"
	}
}

// CopyDataSource is where copy input comes from or output goes to.
type CopyDataSource int

// Copy data sources and sinks.
const (
	CopyNone CopyDataSource = iota
	CopyFile
	CopyClipboard
	CopyStream
)

// CopyOptions describes a bulk import/export.
type CopyOptions struct {
	// SQL is the engine COPY statement (e.g. COPY t FROM STDIN).
	SQL       string
	Direction CopyDirection

	InputSource      CopyDataSource
	InputPath        string
	ClipboardPayload string
	// Input is used when InputSource is CopyStream.
	Input io.Reader

	OutputSource CopyDataSource
	OutputPath   string
	// Output is used when OutputSource is CopyStream.
	Output io.Writer

	Binary      bool
	ChunkBytes  uint32
	WindowBytes uint32
}

// CopyResult is the outcome of a bulk transfer.
type CopyResult struct {
	RowsProcessed int64
	Elapsed       time.Duration
	CommandTag    string
	// OutputPayload holds the exported data when the sink is the clipboard buffer.
	OutputPayload string
}
