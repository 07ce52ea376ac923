package core

import (
	"fmt"
	"strings"
	"time"
)

// NotificationEvent is one change notification pulled from an engine channel.
type NotificationEvent struct {
	Channel    string
	Payload    []byte
	ChangeTag  string
	ProcessID  uint32
	ReceivedAt time.Time
}

// StatusKind selects the kind of status snapshot requested.
type StatusKind int

// Status kinds.
const (
	StatusServerInfo StatusKind = iota
	StatusConnectionInfo
	StatusDatabaseInfo
	StatusStatistics
)

var statusKindNames = map[StatusKind]string{
	StatusServerInfo:     "server",
	StatusConnectionInfo: "connection",
	StatusDatabaseInfo:   "database",
	StatusStatistics:     "statistics",
}

// String returns the kind name.
func (k StatusKind) String() string {
	if n, ok := statusKindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("StatusKind(%d)", int(k))
}

// ParseStatusKind parses a kind name such as "server" or "statistics".
func ParseStatusKind(s string) (StatusKind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range statusKindNames {
		if n == name {
			return k, nil
		}
	}
	switch name {
	case "server_info", "serverinfo":
		return StatusServerInfo, nil
	case "stats":
		return StatusStatistics, nil
	}
	return 0, fmt.Errorf("unknown status kind %q", s)
}

// StatusEntry is one key/value pair of a status snapshot.
type StatusEntry struct {
	Key   string
	Value string
}

// StatusSnapshot is an ordered set of status entries pulled on demand.
type StatusSnapshot struct {
	Kind       StatusKind
	Entries    []StatusEntry
	CapturedAt time.Time
}

// Get returns the value for key.
func (s *StatusSnapshot) Get(key string) (string, bool) {
	for _, e := range s.Entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Add appends an entry.
func (s *StatusSnapshot) Add(key, value string) {
	s.Entries = append(s.Entries, StatusEntry{Key: key, Value: value})
}
