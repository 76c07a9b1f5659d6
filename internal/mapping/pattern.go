// Package mapping translates source-controlled CSV header rows into a bounded
// set of typed storage slots.
//
// The package is split into four concerns:
//   - pattern.go: matching a configured pattern against a candidate header
//   - slots.go: the fixed per-type slot enumeration and slot allocation
//   - mapper.go: building the header-position -> slot mapping for an import
//   - convert.go: converting raw cell strings into typed slot values
//
// Everything here is pure; storage and transport live elsewhere.
package mapping

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidPattern indicates a structurally invalid pattern string, such as
// an empty pattern or a regex form that does not compile.
var ErrInvalidPattern = errors.New("invalid pattern")

// PatternKind classifies how a pattern is evaluated against a candidate.
type PatternKind int

const (
	// PatternExact matches by case-sensitive equality.
	PatternExact PatternKind = iota
	// PatternSubstring matches by case-insensitive containment.
	PatternSubstring
	// PatternRegex matches by a compiled regular expression.
	PatternRegex
)

// regexForm recognizes "/expr/" with optional trailing flag letters.
var regexForm = regexp.MustCompile(`^/(.*)/([a-zA-Z]*)$`)

// Pattern is a compiled header-matching rule. Classification happens once at
// construction; evaluation is a pure function of the pattern and candidate.
//
// Surface syntax decides the kind:
//   - "/expr/flags" is a regular expression (flags i, m, s are honored)
//   - "*needle*" is a case-insensitive substring test
//   - anything else is exact, case-sensitive equality
type Pattern struct {
	raw    string
	kind   PatternKind
	needle string // lowercased needle for substring patterns
	re     *regexp.Regexp
}

// NewPattern classifies and compiles a pattern string.
// Returns ErrInvalidPattern if the string is empty or a regex form fails to
// compile.
func NewPattern(raw string) (*Pattern, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}

	if m := regexForm.FindStringSubmatch(raw); m != nil {
		expr := m[1]
		if prefix := flagPrefix(m[2]); prefix != "" {
			expr = prefix + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, raw, err)
		}
		return &Pattern{raw: raw, kind: PatternRegex, re: re}, nil
	}

	if len(raw) >= 2 && strings.HasPrefix(raw, "*") && strings.HasSuffix(raw, "*") {
		needle := raw[1 : len(raw)-1]
		return &Pattern{raw: raw, kind: PatternSubstring, needle: strings.ToLower(needle)}, nil
	}

	return &Pattern{raw: raw, kind: PatternExact}, nil
}

// flagPrefix converts trailing pattern flag letters into a Go inline flag
// group. Unknown letters are ignored rather than rejected: the flag position
// is source-controlled text and only i, m, s change matching behavior here.
func flagPrefix(flags string) string {
	var b strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			b.WriteRune(f)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "(?" + b.String() + ")"
}

// Kind returns how the pattern is evaluated.
func (p *Pattern) Kind() PatternKind { return p.kind }

// String returns the original pattern text.
func (p *Pattern) String() string { return p.raw }

// Match reports whether the candidate satisfies the pattern.
func (p *Pattern) Match(candidate string) bool {
	switch p.kind {
	case PatternRegex:
		return p.re.MatchString(candidate)
	case PatternSubstring:
		return strings.Contains(strings.ToLower(candidate), p.needle)
	default:
		return candidate == p.raw
	}
}

// Select returns the candidates that satisfy the pattern, preserving the
// input order. A nil or empty input yields an empty (non-nil) slice.
func (p *Pattern) Select(candidates []string) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if p.Match(c) {
			out = append(out, c)
		}
	}
	return out
}
