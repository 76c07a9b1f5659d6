package mapping

// convert.go turns raw CSV cell text into the typed representation stored in
// a slot column.
//
// Conversions never fail: bad data degrades to a sentinel instead of raising.
// The exact degradation rules are load-bearing for downstream consumers and
// must not change:
//   - empty/whitespace-only input is NULL for every type
//   - non-numeric int/float input becomes 0 / 0.0 (permissive truncation)
//   - bool is a truthy-set membership test and is never NULL once non-empty
//   - unparseable dates are NULL
//   - invalid JSON is stored as the raw trimmed string, valid JSON is
//     canonicalized by re-serialization

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// truthy is the set of accepted true spellings for bool slots, compared
// case-insensitively. Includes the Cyrillic yes/y forms the source data uses.
var truthy = map[string]bool{
	"1": true, "true": true, "yes": true, "y": true,
	"да": true,
	"д":  true,
}

// dateLayouts are tried in order when parsing date slots.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
	"02.01.2006 15:04:05",
	"02.01.2006",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"20060102",
}

// Convert parses a raw cell string into the typed value stored for the given
// slot type. A nil return means SQL NULL. The concrete types returned are:
// string (text, json), int64 (int, date), float64 (float), bool (bool).
func Convert(raw string, t SlotType) any {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	switch t {
	case SlotText:
		return s
	case SlotInt:
		return parseIntPrefix(s)
	case SlotFloat:
		return parseFloatPrefix(s)
	case SlotBool:
		return truthy[strings.ToLower(s)]
	case SlotDate:
		return parseDate(s)
	case SlotJSON:
		return canonicalJSON(s)
	default:
		return nil
	}
}

// parseIntPrefix reads the longest leading integer and ignores the rest, so
// "10" -> 10, "10abc" -> 10 and "abc" -> 0.
func parseIntPrefix(s string) int64 {
	i := 0
	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}
	var n int64
	start := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		n = n*10 + int64(s[i]-'0')
		i++
	}
	if i == start {
		return 0
	}
	if neg {
		return -n
	}
	return n
}

// parseFloatPrefix reads the longest leading decimal number, so "1.5x" -> 1.5
// and "abc" -> 0.0. Exponents are intentionally not recognized; they do not
// occur in the feeds this handles and a bare trailing "e" would be ambiguous.
func parseFloatPrefix(s string) float64 {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := false
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
		digits = true
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			digits = true
		}
	}
	if !digits {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimPrefix(s[:i], "+"), 64)
	if err != nil {
		return 0
	}
	return f
}

// parseDate tries the known layouts and returns a Unix timestamp, or nil when
// nothing matches.
func parseDate(s string) any {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix()
		}
	}
	return nil
}

// canonicalJSON re-serializes valid JSON so repeated imports of equivalent
// documents store identical bytes: gjson parses the document into plain Go
// values and the encoder writes them back with sorted object keys. Non-ASCII
// characters are preserved, not escaped. Invalid JSON passes through
// unchanged.
func canonicalJSON(s string) string {
	if !gjson.Valid(s) {
		return s
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(gjson.Parse(s).Value()); err != nil {
		return s
	}
	return strings.TrimRight(buf.String(), "\n")
}
