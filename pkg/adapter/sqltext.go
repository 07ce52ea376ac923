package adapter

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/leapstack-labs/dbconn/pkg/core"
)

var rowKeywords = map[string]bool{
	"SELECT": true, "WITH": true, "VALUES": true, "TABLE": true, "SHOW": true,
	"EXPLAIN": true, "PRAGMA": true, "DESCRIBE": true, "DESC": true, "FETCH": true,
	"SUMMARIZE": true,
}

var countedKeywords = map[string]bool{
	"UPDATE": true, "DELETE": true, "MERGE": true, "COPY": true, "MOVE": true,
}

var ddlModifiers = map[string]bool{
	"OR": true, "REPLACE": true, "TEMP": true, "TEMPORARY": true, "UNIQUE": true,
	"GLOBAL": true, "LOCAL": true, "MATERIALIZED": true, "RECURSIVE": true,
	"IF": true, "NOT": true, "EXISTS": true, "UNLOGGED": true,
}

// LeadingKeywords returns up to n upper-cased leading words of sqlStr, skipping
// comments and opening parentheses.
func LeadingKeywords(sqlStr string, n int) []string {
	s := skipNoise(sqlStr)
	var words []string
	for len(words) < n {
		s = strings.TrimLeftFunc(s, func(r rune) bool { return !isWordRune(r) })
		if s == "" {
			break
		}
		end := strings.IndexFunc(s, func(r rune) bool { return !isWordRune(r) })
		if end < 0 {
			end = len(s)
		}
		words = append(words, strings.ToUpper(s[:end]))
		s = s[end:]
	}
	return words
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func skipNoise(s string) string {
	for {
		s = strings.TrimLeftFunc(s, func(r rune) bool { return unicode.IsSpace(r) || r == '(' })
		switch {
		case strings.HasPrefix(s, "--"):
			if i := strings.IndexByte(s, '\n'); i >= 0 {
				s = s[i+1:]
				continue
			}
			return ""
		case strings.HasPrefix(s, "/*"):
			if i := strings.Index(s, "*/"); i >= 0 {
				s = s[i+2:]
				continue
			}
			return ""
		}
		return s
	}
}

// ReturnsRows reports whether a statement produces a row set.
func ReturnsRows(sqlStr string) bool {
	words := LeadingKeywords(sqlStr, 1)
	if len(words) == 0 {
		return false
	}
	if rowKeywords[words[0]] {
		return true
	}
	switch words[0] {
	case "INSERT", "UPDATE", "DELETE", "MERGE":
		return strings.Contains(strings.ToUpper(sqlStr), "RETURNING")
	}
	return false
}

// CommandTag builds a PostgreSQL-style command tag ("SELECT 3", "UPDATE 1",
// "CREATE TABLE") for engines whose clients do not report one.
func CommandTag(sqlStr string, n int64) string {
	words := LeadingKeywords(sqlStr, 8)
	if len(words) == 0 {
		return ""
	}
	kw := words[0]
	switch {
	case rowKeywords[kw]:
		return fmt.Sprintf("SELECT %d", n)
	case kw == "INSERT":
		return fmt.Sprintf("INSERT 0 %d", n)
	case countedKeywords[kw]:
		return fmt.Sprintf("%s %d", kw, n)
	case kw == "CREATE" || kw == "DROP" || kw == "ALTER":
		for _, w := range words[1:] {
			if !ddlModifiers[w] {
				return kw + " " + w
			}
		}
		return kw
	case kw == "START":
		return "BEGIN"
	default:
		return kw
	}
}

// TypeTag normalizes a driver type name; empty becomes UNKNOWN.
func TypeTag(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return "UNKNOWN"
	}
	return name
}

// IsBinaryType reports whether values of the type are carried as raw bytes.
func IsBinaryType(tag string) bool {
	for _, t := range []string{"BLOB", "BYTEA", "BINARY"} {
		if strings.Contains(tag, t) {
			return true
		}
	}
	return false
}

// FormatValue converts a scanned database/sql value into a result cell.
func FormatValue(v any, binary bool) core.Value {
	switch x := v.(type) {
	case nil:
		return core.NullValue()
	case []byte:
		if binary {
			return core.BinaryValue(bytes.Clone(x))
		}
		return core.TextValue(string(x))
	case string:
		return core.TextValue(x)
	case bool:
		return core.TextValue(strconv.FormatBool(x))
	case int64:
		return core.TextValue(strconv.FormatInt(x, 10))
	case int32:
		return core.TextValue(strconv.FormatInt(int64(x), 10))
	case int:
		return core.TextValue(strconv.Itoa(x))
	case uint64:
		return core.TextValue(strconv.FormatUint(x, 10))
	case float64:
		return core.TextValue(strconv.FormatFloat(x, 'g', -1, 64))
	case float32:
		return core.TextValue(strconv.FormatFloat(float64(x), 'g', -1, 32))
	case time.Time:
		return core.TextValue(x.Format(time.RFC3339Nano))
	case fmt.Stringer:
		return core.TextValue(x.String())
	default:
		return core.TextValue(fmt.Sprint(x))
	}
}

// CountPlaceholders counts bind parameters in sqlStr: "?" markers, or the
// highest "$n" when numbered placeholders are used. Quoted text is skipped.
func CountPlaceholders(sqlStr string) int {
	questions, highest := 0, 0
	var quote rune
	runes := []rune(sqlStr)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if quote != 0 {
			if r == quote {
				quote = 0
			}
			continue
		}
		switch r {
		case '\'', '"', '`':
			quote = r
		case '?':
			questions++
		case '$':
			j := i + 1
			for j < len(runes) && runes[j] >= '0' && runes[j] <= '9' {
				j++
			}
			if j > i+1 {
				if n, err := strconv.Atoi(string(runes[i+1 : j])); err == nil && n > highest {
					highest = n
				}
				i = j - 1
			}
		}
	}
	if highest > 0 {
		return highest
	}
	return questions
}
