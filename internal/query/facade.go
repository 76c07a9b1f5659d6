// Package query exposes imported rows under their configured logical names.
// Callers never see the physical slot columns; the façade translates names in
// both directions using the source's mapping configuration.
package query

import (
	"context"
	"fmt"
	"regexp"

	"github.com/tabwell/tabsync/internal/mapping"
	"github.com/tabwell/tabsync/internal/source"
	"github.com/tabwell/tabsync/internal/store"
)

// UnknownFieldError reports a logical name the source's mapping does not
// define. Passing it through to SQL would surface physical column errors, so
// the façade rejects it up front.
type UnknownFieldError struct {
	Name string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q", e.Name)
}

// Storage is the subset of the store the façade reads through.
type Storage interface {
	GetSourceByShortID(ctx context.Context, shortID string) (*source.Source, error)
	QueryRows(ctx context.Context, q store.RowQuery) ([]map[string]interface{}, error)
	QueryRowsSelect(ctx context.Context, q store.RowQuery, fragment string, params []interface{}) ([]map[string]interface{}, error)
}

// Facade resolves a source by its short identifier and runs row queries in
// logical-name terms.
type Facade struct {
	storage Storage
}

// New creates a Facade.
func New(storage Storage) *Facade {
	return &Facade{storage: storage}
}

// Sort is one ORDER BY term over a logical field.
type Sort struct {
	Field string
	Desc  bool
}

// Request is a row query in logical terms. Conditions are equality matches;
// Fields limits the returned columns (empty means every mapped field).
type Request struct {
	Conditions map[string]interface{}
	Sort       []Sort
	Fields     []string
	Offset     int
	Limit      int
}

// GetRecords fetches rows for the source identified by shortID, translating
// logical names in and physical names out. The source predicate is always
// applied by the store layer; callers cannot escape their own data set.
func (f *Facade) GetRecords(ctx context.Context, shortID string, req Request) ([]map[string]interface{}, error) {
	src, err := f.storage.GetSourceByShortID(ctx, shortID)
	if err != nil {
		return nil, err
	}

	fwd, rev, err := nameMaps(src.Mapping)
	if err != nil {
		return nil, err
	}

	q := store.RowQuery{SourceID: src.ID, Offset: req.Offset, Limit: req.Limit}

	if len(req.Conditions) > 0 {
		q.Conditions = make(map[string]interface{}, len(req.Conditions))
		for name, val := range req.Conditions {
			field, ok := fwd[name]
			if !ok {
				return nil, &UnknownFieldError{Name: name}
			}
			q.Conditions[field] = val
		}
	}

	for _, s := range req.Sort {
		field, ok := fwd[s.Field]
		if !ok {
			return nil, &UnknownFieldError{Name: s.Field}
		}
		q.Sort = append(q.Sort, store.SortSpec{Field: field, Desc: s.Desc})
	}

	for _, name := range req.Fields {
		field, ok := fwd[name]
		if !ok {
			return nil, &UnknownFieldError{Name: name}
		}
		q.Fields = append(q.Fields, field)
	}

	rows, err := f.storage.QueryRows(ctx, q)
	if err != nil {
		return nil, err
	}
	return renameRows(rows, rev), nil
}

// GetRecordsSelect runs a free-form predicate written against logical names.
// Placeholders in the fragment are numbered from $2; $1 is reserved for the
// implicit source id. Logical identifiers in the fragment are rewritten to
// their physical columns before execution.
func (f *Facade) GetRecordsSelect(ctx context.Context, shortID string, fragment string, params []interface{}, req Request) ([]map[string]interface{}, error) {
	src, err := f.storage.GetSourceByShortID(ctx, shortID)
	if err != nil {
		return nil, err
	}

	fwd, rev, err := nameMaps(src.Mapping)
	if err != nil {
		return nil, err
	}

	q := store.RowQuery{SourceID: src.ID, Offset: req.Offset, Limit: req.Limit}
	for _, s := range req.Sort {
		field, ok := fwd[s.Field]
		if !ok {
			return nil, &UnknownFieldError{Name: s.Field}
		}
		q.Sort = append(q.Sort, store.SortSpec{Field: field, Desc: s.Desc})
	}
	for _, name := range req.Fields {
		field, ok := fwd[name]
		if !ok {
			return nil, &UnknownFieldError{Name: name}
		}
		q.Fields = append(q.Fields, field)
	}

	rewritten := rewriteFragment(fragment, fwd)

	rows, err := f.storage.QueryRowsSelect(ctx, q, rewritten, params)
	if err != nil {
		return nil, err
	}
	return renameRows(rows, rev), nil
}

// nameMaps builds the logical->physical and physical->logical lookups from a
// mapping configuration. Entries without a logical name are not addressable
// through the façade.
func nameMaps(entries []mapping.Entry) (map[string]string, map[string]string, error) {
	fwd := make(map[string]string, len(entries))
	rev := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.LogicalName == "" || e.Slot <= 0 {
			continue
		}
		field, ok := mapping.FieldName(e.Type, e.Slot)
		if !ok {
			return nil, nil, fmt.Errorf("mapping entry %q has invalid slot %s[%d]", e.LogicalName, e.Type, e.Slot)
		}
		fwd[e.LogicalName] = field
		rev[field] = e.LogicalName
	}
	return fwd, rev, nil
}

// identExpr matches bare identifiers in a predicate fragment. Quoted string
// literals are not distinguished here; logical names are expected to be plain
// word tokens.
var identExpr = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// rewriteFragment swaps logical identifiers for quoted physical columns and
// leaves everything else (keywords, placeholders, operators) alone.
func rewriteFragment(fragment string, fwd map[string]string) string {
	return identExpr.ReplaceAllStringFunc(fragment, func(tok string) string {
		if field, ok := fwd[tok]; ok {
			return `"` + field + `"`
		}
		return tok
	})
}

// renameRows converts result maps back to logical names. Physical columns
// without a logical name (id, row_number, unmapped slots) pass through
// unchanged.
func renameRows(rows []map[string]interface{}, rev map[string]string) []map[string]interface{} {
	out := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		renamed := make(map[string]interface{}, len(row))
		for col, val := range row {
			if name, ok := rev[col]; ok {
				renamed[name] = val
			} else {
				renamed[col] = val
			}
		}
		out[i] = renamed
	}
	return out
}
