package core

// PreparedStatement is an adapter-owned handle to a server-side prepared
// statement. It stays valid until ClosePrepared is called on the adapter that
// created it.
type PreparedStatement struct {
	// ID identifies the statement inside its adapter.
	ID         string
	SQL        string
	ParamCount int
	Backend    string

	// Handle is adapter-private state.
	Handle any
}

// PreparedParameter is one bound parameter value.
type PreparedParameter struct {
	IsNull bool
	Text   string
	// Raw, when set, is sent as binary instead of Text.
	Raw []byte
}

// TextParam returns a text parameter.
func TextParam(s string) PreparedParameter {
	return PreparedParameter{Text: s}
}

// NullParam returns a NULL parameter.
func NullParam() PreparedParameter {
	return PreparedParameter{IsNull: true}
}
