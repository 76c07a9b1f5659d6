package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Row is one imported record ready for storage: its 1-based position within
// the import batch and a sparse map from physical slot column to typed value.
type Row struct {
	Number int
	Values map[string]interface{}
}

// ReplaceRows atomically replaces every stored row for a source with the new
// batch. The delete and inserts run in a single transaction, so readers never
// observe the empty-row window between them. fields lists the slot columns
// populated by this import; a row missing a field stores NULL there.
func (s *Store) ReplaceRows(ctx context.Context, sourceID uuid.UUID, fields []string, rows []Row) (int, error) {
	for _, f := range fields {
		if !ValidColumn(f) || f == "id" || f == "source_id" || f == "row_number" || f == "created_at" {
			return 0, fmt.Errorf("invalid slot column %q", f)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM data_rows WHERE source_id = $1`, sourceID); err != nil {
		return 0, fmt.Errorf("delete prior rows: %w", err)
	}

	if len(rows) > 0 {
		insertSQL := buildInsertSQL(fields)
		batch := &pgx.Batch{}
		for _, row := range rows {
			args := make([]interface{}, 0, len(fields)+2)
			args = append(args, sourceID, row.Number)
			for _, f := range fields {
				args = append(args, row.Values[f])
			}
			batch.Queue(insertSQL, args...)
		}

		br := tx.SendBatch(ctx, batch)
		for range rows {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return 0, fmt.Errorf("insert row: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return 0, fmt.Errorf("close batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit replace: %w", err)
	}
	return len(rows), nil
}

// buildInsertSQL renders the INSERT for one import's populated columns.
func buildInsertSQL(fields []string) string {
	cols := make([]string, 0, len(fields)+2)
	cols = append(cols, "source_id", "row_number")
	placeholders := make([]string, 0, len(fields)+2)
	placeholders = append(placeholders, "$1", "$2")

	for i, f := range fields {
		cols = append(cols, quoteIdentifier(f))
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+3))
	}
	return fmt.Sprintf("INSERT INTO data_rows (%s) VALUES (%s)",
		strings.Join(cols, ", "), strings.Join(placeholders, ", "))
}

// SortSpec is one ORDER BY term over a physical column.
type SortSpec struct {
	Field string
	Desc  bool
}

// RowQuery selects data rows for one source by physical column names. The
// query façade translates logical names before it gets here.
type RowQuery struct {
	SourceID   uuid.UUID
	Conditions map[string]interface{} // physical column -> required value
	Sort       []SortSpec
	Fields     []string // physical columns to return; empty means all
	Offset     int
	Limit      int
}

// QueryRows executes a RowQuery and returns rows as maps from physical column
// name to value. Identifiers are validated against the fixed column set; the
// source predicate is always applied.
func (s *Store) QueryRows(ctx context.Context, q RowQuery) ([]map[string]interface{}, error) {
	for col := range q.Conditions {
		if !ValidColumn(col) {
			return nil, fmt.Errorf("invalid column %q in conditions", col)
		}
	}
	for _, spec := range q.Sort {
		if !ValidColumn(spec.Field) {
			return nil, fmt.Errorf("invalid column %q in sort", spec.Field)
		}
	}
	for _, f := range q.Fields {
		if !ValidColumn(f) {
			return nil, fmt.Errorf("invalid column %q in fields", f)
		}
	}

	where, args := buildRowPredicate(q.SourceID, q.Conditions)
	return s.queryRowMaps(ctx, q, where, args)
}

// QueryRowsSelect executes a free-form predicate fragment, AND-combined with
// the implicit source predicate. The fragment references physical columns and
// numbered placeholders starting at $2 ($1 is reserved for the source id).
func (s *Store) QueryRowsSelect(ctx context.Context, q RowQuery, fragment string, params []interface{}) ([]map[string]interface{}, error) {
	for _, f := range q.Fields {
		if !ValidColumn(f) {
			return nil, fmt.Errorf("invalid column %q in fields", f)
		}
	}
	for _, spec := range q.Sort {
		if !ValidColumn(spec.Field) {
			return nil, fmt.Errorf("invalid column %q in sort", spec.Field)
		}
	}

	where := "WHERE source_id = $1"
	args := []interface{}{q.SourceID}
	if strings.TrimSpace(fragment) != "" {
		where += " AND (" + fragment + ")"
		args = append(args, params...)
	}
	return s.queryRowMaps(ctx, q, where, args)
}

// buildRowPredicate renders the implicit source predicate plus equality
// conditions.
func buildRowPredicate(sourceID uuid.UUID, conditions map[string]interface{}) (string, []interface{}) {
	var b strings.Builder
	b.WriteString("WHERE source_id = $1")
	args := []interface{}{sourceID}

	// Stable clause order: sorted by column name.
	cols := make([]string, 0, len(conditions))
	for col := range conditions {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	for _, col := range cols {
		args = append(args, conditions[col])
		fmt.Fprintf(&b, " AND %s = $%d", quoteIdentifier(col), len(args))
	}
	return b.String(), args
}

func (s *Store) queryRowMaps(ctx context.Context, q RowQuery, where string, args []interface{}) ([]map[string]interface{}, error) {
	selectCols := "*"
	if len(q.Fields) > 0 {
		quoted := make([]string, 0, len(q.Fields)+2)
		// Row identity columns always ride along so consumers can page and
		// correlate without asking for them.
		quoted = append(quoted, "id", "row_number")
		for _, f := range q.Fields {
			if f == "id" || f == "row_number" {
				continue
			}
			quoted = append(quoted, quoteIdentifier(f))
		}
		selectCols = strings.Join(quoted, ", ")
	}

	query := fmt.Sprintf("SELECT %s FROM data_rows %s", selectCols, where)

	if len(q.Sort) > 0 {
		terms := make([]string, len(q.Sort))
		for i, spec := range q.Sort {
			dir := "ASC"
			if spec.Desc {
				dir = "DESC"
			}
			terms[i] = quoteIdentifier(spec.Field) + " " + dir
		}
		query += " ORDER BY " + strings.Join(terms, ", ")
	} else {
		query += " ORDER BY row_number ASC"
	}

	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	if q.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", q.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	var out []map[string]interface{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		row := make(map[string]interface{}, len(values))
		for i, fd := range fds {
			row[fd.Name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
