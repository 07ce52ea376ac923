package fixture

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalize collapses runs of whitespace to one space, trims the ends, strips
// a single trailing semicolon and lower-cases the result. Lower-casing never
// changes the length of a token the way full case folding does (ß stays ß).
func Normalize(sqlStr string) string {
	s := strings.Join(strings.Fields(sqlStr), " ")
	s = strings.TrimSuffix(s, ";")
	s = strings.TrimRight(s, " ")
	return cases.Lower(language.Und).String(s)
}
