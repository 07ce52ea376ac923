package fixture

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/leapstack-labs/dbconn/pkg/core"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when a profile selects the fixture engine without a path.
const DefaultPath = "config/fixtures/default.json"

var decoder = jsoniter.Config{UseNumber: true}.Froze()

// MatchKind selects how a rule's match string is compared with incoming SQL.
type MatchKind int

// Match kinds.
const (
	MatchExact MatchKind = iota
	MatchRegex
)

func (k MatchKind) String() string {
	if k == MatchRegex {
		return "regex"
	}
	return "exact"
}

// Rule is one declared query response.
type Rule struct {
	Match string
	Kind  MatchKind

	normalized string
	re         *regexp.Regexp

	// Exactly one of Result and Err is set.
	Result *core.QueryResult
	Err    *QueryError
}

// Matches reports whether sqlStr selects this rule. normalized must be
// Normalize(sqlStr).
func (r *Rule) Matches(sqlStr, normalized string) bool {
	if r.Kind == MatchRegex {
		return r.re.MatchString(sqlStr)
	}
	return r.normalized == normalized
}

// Fixture is a parsed fixture document.
type Fixture struct {
	Path          string
	Rules         []Rule
	Notifications []core.NotificationEvent
	Status        map[core.StatusKind][]core.StatusEntry
}

// Lookup returns the first rule matching sqlStr in declaration order.
func (f *Fixture) Lookup(sqlStr string) (*Rule, bool) {
	normalized := Normalize(sqlStr)
	for i := range f.Rules {
		if f.Rules[i].Matches(sqlStr, normalized) {
			return &f.Rules[i], true
		}
	}
	return nil, false
}

// LoadError reports a fixture document that could not be read or is malformed.
type LoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return "fixture: " + e.Reason
	}
	return fmt.Sprintf("fixture %s: %s", e.Path, e.Reason)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load reads and parses a fixture file. The format follows the extension:
// .yaml and .yml are YAML, anything else is JSON.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path) //nolint:gosec // fixture path comes from the operator's profile
	if err != nil {
		return nil, &LoadError{Path: path, Reason: "unable to open fixture file", Err: err}
	}
	f, err := Parse(data, FormatForPath(path))
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Path = path
		}
		return nil, err
	}
	f.Path = path
	return f, nil
}

// FormatForPath returns "yaml" or "json" for a fixture file name.
func FormatForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// Parse parses a fixture document in the given format ("json" or "yaml").
func Parse(data []byte, format string) (*Fixture, error) {
	var root any
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, &LoadError{Reason: "parse error: " + err.Error(), Err: err}
		}
	case "json", "":
		if err := decoder.Unmarshal(data, &root); err != nil {
			return nil, &LoadError{Reason: "parse error: " + err.Error(), Err: err}
		}
	default:
		return nil, &LoadError{Reason: fmt.Sprintf("unsupported fixture format %q", format)}
	}

	f, err := buildFixture(root)
	if err != nil {
		return nil, &LoadError{Reason: err.Error(), Err: err}
	}
	return f, nil
}

func buildFixture(root any) (*Fixture, error) {
	doc, ok := root.(map[string]any)
	if !ok {
		return nil, errors.New("fixture root must be an object")
	}
	queries, ok := doc["queries"].([]any)
	if !ok {
		return nil, errors.New("fixture must contain a 'queries' array")
	}

	f := &Fixture{}
	for i, q := range queries {
		rule, err := buildRule(q)
		if err != nil {
			return nil, fmt.Errorf("queries[%d]: %w", i, err)
		}
		f.Rules = append(f.Rules, *rule)
	}

	if raw, ok := doc["notifications"]; ok {
		events, err := buildNotifications(raw)
		if err != nil {
			return nil, err
		}
		f.Notifications = events
	}
	if raw, ok := doc["status"]; ok {
		status, err := buildStatus(raw)
		if err != nil {
			return nil, err
		}
		f.Status = status
	}
	return f, nil
}

func buildRule(v any) (*Rule, error) {
	entry, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("query entry must be an object")
	}
	match, ok := entry["match"].(string)
	if !ok {
		return nil, errors.New("query entry missing 'match' string")
	}

	rule := &Rule{Match: match, normalized: Normalize(match)}
	if mt, ok := entry["match_type"].(string); ok {
		switch strings.ToLower(strings.TrimSpace(mt)) {
		case "regex":
			rule.Kind = MatchRegex
		case "exact", "":
		default:
			return nil, fmt.Errorf("unknown match_type %q", mt)
		}
	}
	if rule.Kind == MatchRegex {
		re, err := regexp.Compile("(?i)" + match)
		if err != nil {
			return nil, fmt.Errorf("invalid regex in query match: %w", err)
		}
		rule.re = re
	}

	if raw, ok := entry["error"]; ok {
		qe, err := buildError(raw)
		if err != nil {
			return nil, err
		}
		rule.Err = qe
		return rule, nil
	}
	if raw, ok := entry["result"]; ok {
		res, err := buildResult(raw)
		if err != nil {
			return nil, fmt.Errorf("result: %w", err)
		}
		rule.Result = res
		return rule, nil
	}
	return nil, errors.New("query entry requires result or error")
}

func buildError(v any) (*QueryError, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("error must be an object")
	}
	msg, ok := obj["message"].(string)
	if !ok {
		return nil, errors.New("error.message must be a string")
	}
	qe := &QueryError{Message: msg}
	if raw, ok := obj["stack"]; ok {
		stack, err := stringList(raw)
		if err != nil {
			return nil, fmt.Errorf("error.stack: %w", err)
		}
		qe.Stack = stack
	}
	return qe, nil
}

func buildResult(v any) (*core.QueryResult, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("result must be an object")
	}
	res := &core.QueryResult{}

	if raw, ok := obj["columns"]; ok {
		cols, ok := raw.([]any)
		if !ok {
			return nil, errors.New("columns must be an array")
		}
		for i, c := range cols {
			col, ok := c.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("columns[%d] must be an object", i)
			}
			name, ok := col["name"].(string)
			if !ok {
				return nil, fmt.Errorf("columns[%d] missing 'name' string", i)
			}
			typ, _ := col["wire_type"].(string)
			if typ == "" {
				typ = "UNKNOWN"
			}
			res.Columns = append(res.Columns, core.Column{Name: name, Type: typ})
		}
	}

	if raw, ok := obj["rows"]; ok {
		rows, ok := raw.([]any)
		if !ok {
			return nil, errors.New("rows must be an array")
		}
		for i, r := range rows {
			cells, ok := r.([]any)
			if !ok {
				return nil, fmt.Errorf("rows[%d] must be an array", i)
			}
			if len(res.Columns) > 0 && len(cells) != len(res.Columns) {
				return nil, fmt.Errorf("rows[%d] has %d cells, expected %d", i, len(cells), len(res.Columns))
			}
			row := make([]core.Value, len(cells))
			for j, c := range cells {
				cell, err := buildCell(c)
				if err != nil {
					return nil, fmt.Errorf("rows[%d][%d]: %w", i, j, err)
				}
				row[j] = cell
			}
			res.Rows = append(res.Rows, row)
		}
	}

	if raw, ok := obj["rows_affected"]; ok {
		n, err := toInt64(raw)
		if err != nil {
			return nil, fmt.Errorf("rows_affected: %w", err)
		}
		res.RowsAffected = n
	}
	if tag, ok := obj["command_tag"].(string); ok {
		res.CommandTag = tag
	}

	msgs, ok := obj["messages"]
	if !ok {
		msgs, ok = obj["notices"]
	}
	if ok {
		parsed, err := buildMessages(msgs)
		if err != nil {
			return nil, err
		}
		res.Messages = parsed
	}

	if raw, ok := obj["error_stack"]; ok {
		stack, err := stringList(raw)
		if err != nil {
			return nil, fmt.Errorf("error_stack: %w", err)
		}
		res.ErrorStack = stack
	}
	return res, nil
}

func buildCell(v any) (core.Value, error) {
	switch x := v.(type) {
	case nil:
		return core.NullValue(), nil
	case bool:
		return core.TextValue(strconv.FormatBool(x)), nil
	case string:
		return core.TextValue(x), nil
	case json.Number, int, int64, float64:
		return core.TextValue(numberText(x)), nil
	case map[string]any:
		if isNull, _ := x["is_null"].(bool); isNull {
			return core.NullValue(), nil
		}
		cell := core.Value{}
		if text, ok := x["text"].(string); ok {
			cell.Text = text
		}
		if h, ok := x["data_hex"].(string); ok {
			raw, err := decodeHex(h)
			if err != nil {
				return core.Value{}, err
			}
			cell.Raw = raw
			if cell.Text == "" && len(raw) > 0 {
				cell.Text = h
			}
		}
		return cell, nil
	default:
		return core.Value{}, fmt.Errorf("unsupported cell value type %T", v)
	}
}

// numberText prints integral numbers without a fractional part.
func numberText(v any) string {
	var f float64
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		parsed, err := x.Float64()
		if err != nil {
			return x.String()
		}
		f = parsed
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		f = x
	}
	if !math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func decodeHex(s string) ([]byte, error) {
	h := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(h)%2 != 0 {
		return nil, errors.New("data_hex must have an even number of digits")
	}
	raw, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("data_hex contains invalid hex: %w", err)
	}
	return raw, nil
}

func buildMessages(v any) ([]core.Message, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, errors.New("messages must be an array")
	}
	var out []core.Message
	for i, m := range list {
		switch x := m.(type) {
		case string:
			out = append(out, core.Message{Severity: "notice", Message: x})
		case map[string]any:
			msg := core.Message{Severity: "notice"}
			if s, ok := x["severity"].(string); ok && s != "" {
				msg.Severity = s
			}
			msg.Message, _ = x["message"].(string)
			msg.Detail, _ = x["detail"].(string)
			out = append(out, msg)
		default:
			return nil, fmt.Errorf("messages[%d] must be a string or object", i)
		}
	}
	return out, nil
}

func buildNotifications(v any) ([]core.NotificationEvent, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, errors.New("notifications must be an array")
	}
	var out []core.NotificationEvent
	for i, n := range list {
		obj, ok := n.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("notifications[%d] must be an object", i)
		}
		channel, ok := obj["channel"].(string)
		if !ok || channel == "" {
			return nil, fmt.Errorf("notifications[%d] missing 'channel' string", i)
		}
		payload, _ := obj["payload"].(string)
		tag, _ := obj["change_tag"].(string)
		out = append(out, core.NotificationEvent{Channel: channel, Payload: []byte(payload), ChangeTag: tag})
	}
	return out, nil
}

func buildStatus(v any) (map[core.StatusKind][]core.StatusEntry, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("status must be an object")
	}
	out := make(map[core.StatusKind][]core.StatusEntry, len(obj))
	for name, raw := range obj {
		kind, err := core.ParseStatusKind(name)
		if err != nil {
			return nil, fmt.Errorf("status: %w", err)
		}
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("status.%s must be an array of {key, value}", name)
		}
		for i, e := range list {
			entry, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("status.%s[%d] must be an object", name, i)
			}
			key, ok := entry["key"].(string)
			if !ok {
				return nil, fmt.Errorf("status.%s[%d] missing 'key' string", name, i)
			}
			value := ""
			if entry["value"] != nil {
				if s, ok := entry["value"].(string); ok {
					value = s
				} else if b, ok := entry["value"].(bool); ok {
					value = strconv.FormatBool(b)
				} else {
					value = numberText(entry["value"])
				}
			}
			out[kind] = append(out[kind], core.StatusEntry{Key: key, Value: value})
		}
	}
	return out, nil
}

func stringList(v any) ([]string, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, errors.New("must be an array of strings")
	}
	out := make([]string, 0, len(list))
	for _, s := range list {
		str, ok := s.(string)
		if !ok {
			return nil, errors.New("must be an array of strings")
		}
		out = append(out, str)
	}
	return out, nil
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case json.Number:
		return x.Int64()
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("%v is not an integer", x)
		}
		return int64(x), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
