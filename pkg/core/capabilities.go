package core

// Capabilities describes which optional operations an adapter supports.
// The zero value means "not connected".
type Capabilities struct {
	// Core
	Cancel       bool `json:"cancel"`
	Transactions bool `json:"transactions"`
	Paging       bool `json:"paging"`
	Savepoints   bool `json:"savepoints"`

	// Query
	Explain            bool `json:"explain"`
	Streaming          bool `json:"streaming"`
	PreparedStatements bool `json:"prepared_statements"`
	StatementCache     bool `json:"statement_cache"`
	CopyIn             bool `json:"copy_in"`
	CopyOut            bool `json:"copy_out"`
	CopyBoth           bool `json:"copy_both"`
	CopyBinary         bool `json:"copy_binary"`
	CopyText           bool `json:"copy_text"`
	Notifications      bool `json:"notifications"`
	Status             bool `json:"status"`

	// Schema
	DDLExtract   bool `json:"ddl_extract"`
	Dependencies bool `json:"dependencies"`
	Constraints  bool `json:"constraints"`
	Indexes      bool `json:"indexes"`

	// Admin
	UserAdmin    bool `json:"user_admin"`
	RoleAdmin    bool `json:"role_admin"`
	GroupAdmin   bool `json:"group_admin"`
	JobScheduler bool `json:"job_scheduler"`

	// Features
	Domains    bool `json:"domains"`
	Sequences  bool `json:"sequences"`
	Triggers   bool `json:"triggers"`
	Procedures bool `json:"procedures"`
	Views      bool `json:"views"`
	TempTables bool `json:"temp_tables"`

	// Database
	MultipleDatabases bool `json:"multiple_databases"`
	Tablespaces       bool `json:"tablespaces"`
	Schemas           bool `json:"schemas"`

	// Utility
	Backup       bool `json:"backup"`
	ImportExport bool `json:"import_export"`

	// Server identification, populated on connect.
	ServerType    string `json:"server_type"`
	ServerVersion string `json:"server_version"`
	MajorVersion  int    `json:"major_version"`
	MinorVersion  int    `json:"minor_version"`
	PatchVersion  int    `json:"patch_version"`
}

// SupportsCopy reports whether the given copy direction is advertised.
func (c Capabilities) SupportsCopy(d CopyDirection) bool {
	switch d {
	case CopyIn:
		return c.CopyIn
	case CopyOut:
		return c.CopyOut
	case CopyBoth:
		return c.CopyBoth
	default:
		return false
	}
}

// IsZero reports whether c is the "not connected" snapshot.
func (c Capabilities) IsZero() bool {
	return c == Capabilities{}
}

// SetServerVersion records the server version string and parses the leading
// dotted numeric components ("16.2 (Debian 16.2-1)" gives 16, 2, 0).
func (c *Capabilities) SetServerVersion(version string) {
	c.ServerVersion = version
	c.MajorVersion, c.MinorVersion, c.PatchVersion = 0, 0, 0

	parts := [3]*int{&c.MajorVersion, &c.MinorVersion, &c.PatchVersion}
	idx, seen := 0, false
	for _, r := range version {
		switch {
		case r >= '0' && r <= '9':
			*parts[idx] = *parts[idx]*10 + int(r-'0')
			seen = true
		case r == '.' && seen && idx < 2:
			idx++
			seen = false
		default:
			if seen || idx > 0 {
				return
			}
		}
	}
}
