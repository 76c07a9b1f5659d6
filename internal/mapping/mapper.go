package mapping

import (
	"fmt"
	"strings"
)

// MappedColumn binds a header position to its storage destination.
type MappedColumn struct {
	Type        SlotType `json:"type"`
	Slot        int      `json:"slot"`
	Field       string   `json:"field"`
	LogicalName string   `json:"logical_name"`
}

// BuildMapping matches CSV headers against a stored mapping configuration and
// returns the header-position -> destination mapping for an import.
//
// Headers are walked left to right; for each one, configuration entries are
// tried in their stored order and the first matching pattern wins. An entry
// is consumed by at most one header. Headers that match no entry are dropped.
//
// A stored slot number is used directly after revalidation against the type's
// capacity; an invalid (type, slot) pair skips that header rather than failing
// the import. Entries without a stored slot (slot <= 0) receive slots from
// running per-type counters in header order, which only happens when a config
// is being built dynamically against a fresh header row.
//
// Returns ErrInvalidPattern (wrapped) if any configured pattern fails to
// compile; a broken pattern is an operator error, not bad data.
func BuildMapping(headers []string, entries []Entry) (map[int]MappedColumn, error) {
	patterns := make([]*Pattern, len(entries))
	for i, e := range entries {
		p, err := NewPattern(e.Pattern)
		if err != nil {
			return nil, fmt.Errorf("mapping entry %d (%q): %w", i+1, e.LogicalName, err)
		}
		patterns[i] = p
	}

	used := make([]bool, len(entries))
	counters := make(map[SlotType]int)
	out := make(map[int]MappedColumn)

	for pos, header := range headers {
		header = strings.TrimSpace(header)
		for i, e := range entries {
			if used[i] || !patterns[i].Match(header) {
				continue
			}
			used[i] = true

			slot := e.Slot
			if slot <= 0 {
				counters[e.Type]++
				slot = counters[e.Type]
			}
			field, ok := FieldName(e.Type, slot)
			if !ok {
				// Stored slot is out of range for the type. Skip the
				// header; the rest of the import still proceeds.
				break
			}
			out[pos] = MappedColumn{
				Type:        e.Type,
				Slot:        slot,
				Field:       field,
				LogicalName: e.LogicalName,
			}
			break
		}
	}

	return out, nil
}
