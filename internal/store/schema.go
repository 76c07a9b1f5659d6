package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/tabwell/tabsync/internal/mapping"
)

// fixedColumns are the non-slot columns of data_rows. They stay visible under
// their physical names in query results.
var fixedColumns = []string{"id", "source_id", "row_number", "created_at"}

// slotColumnType maps a slot type to its SQL column type. Dates are stored as
// Unix timestamps, JSON as canonicalized text.
var slotColumnType = map[mapping.SlotType]string{
	mapping.SlotText:  "TEXT",
	mapping.SlotInt:   "BIGINT",
	mapping.SlotFloat: "DOUBLE PRECISION",
	mapping.SlotBool:  "BOOLEAN",
	mapping.SlotDate:  "BIGINT",
	mapping.SlotJSON:  "TEXT",
}

// validColumns is the whitelist for identifier validation when building SQL.
// Built once from the fixed columns and the full slot enumeration.
var validColumns = buildColumnSet()

func buildColumnSet() map[string]bool {
	set := make(map[string]bool, 64)
	for _, c := range fixedColumns {
		set[c] = true
	}
	for _, t := range mapping.SlotTypes() {
		for slot := 1; slot <= mapping.Capacity(t); slot++ {
			field, _ := mapping.FieldName(t, slot)
			set[field] = true
		}
	}
	return set
}

// ValidColumn reports whether name is a physical data_rows column.
func ValidColumn(name string) bool { return validColumns[name] }

// quoteIdentifier quotes a SQL identifier to prevent injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// slotColumnDDL renders the column definitions for every slot, in the fixed
// type enumeration order.
func slotColumnDDL() string {
	var b strings.Builder
	for _, t := range mapping.SlotTypes() {
		for slot := 1; slot <= mapping.Capacity(t); slot++ {
			field, _ := mapping.FieldName(t, slot)
			fmt.Fprintf(&b, ",\n\t%s %s", quoteIdentifier(field), slotColumnType[t])
		}
	}
	return b.String()
}

// EnsureSchema creates the sources and data_rows tables if they do not exist.
// Idempotent; called once at startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sources (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	short_id TEXT UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'enabled',
	content_type TEXT NOT NULL DEFAULT 'csv',
	url TEXT NOT NULL,
	schedule TEXT NOT NULL DEFAULT '',
	mapping JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_run_at TIMESTAMPTZ,
	last_run_status TEXT NOT NULL DEFAULT 'none',
	last_error TEXT NOT NULL DEFAULT ''
)`,
		`CREATE TABLE IF NOT EXISTS data_rows (
	id BIGSERIAL PRIMARY KEY,
	source_id UUID NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
	row_number INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()` + slotColumnDDL() + `
)`,
		`CREATE INDEX IF NOT EXISTS idx_data_rows_source ON data_rows (source_id, row_number)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
