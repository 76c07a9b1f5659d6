package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tabwell/tabsync/internal/mapping"
	"github.com/tabwell/tabsync/internal/source"
)

const sourceColumns = `id, name, short_id, description, status, content_type, url, schedule,
	mapping, created_at, updated_at, last_run_at, last_run_status, last_error`

// CreateSource inserts a new source. The caller is expected to have run
// Validate(); ID and timestamps are assigned here.
func (s *Store) CreateSource(ctx context.Context, src *source.Source) error {
	if src.ID == uuid.Nil {
		src.ID = uuid.New()
	}
	now := time.Now().UTC()
	src.CreatedAt = now
	src.UpdatedAt = now
	if src.LastRunStatus == "" {
		src.LastRunStatus = source.RunNone
	}

	mappingJSON, err := json.Marshal(src.Mapping)
	if err != nil {
		return fmt.Errorf("encode mapping: %w", err)
	}

	_, err = s.pool.Exec(ctx, `INSERT INTO sources
		(id, name, short_id, description, status, content_type, url, schedule, mapping,
		 created_at, updated_at, last_run_status, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		src.ID, src.Name, nullable(src.ShortID), src.Description, src.Status,
		src.ContentType, src.URL, src.Schedule, mappingJSON,
		src.CreatedAt, src.UpdatedAt, src.LastRunStatus, src.LastError,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return source.ErrShortIDConflict
		}
		return fmt.Errorf("insert source: %w", err)
	}
	return nil
}

// isUniqueViolation reports a Postgres unique-constraint error. The only
// unique constraint on sources besides the primary key is short_id.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// UpdateSource replaces the configurable fields of a source, including the
// whole mapping configuration (mappings are replaced wholesale, never
// patched).
func (s *Store) UpdateSource(ctx context.Context, src *source.Source) error {
	mappingJSON, err := json.Marshal(src.Mapping)
	if err != nil {
		return fmt.Errorf("encode mapping: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `UPDATE sources SET
		name = $2, short_id = $3, description = $4, status = $5, content_type = $6,
		url = $7, schedule = $8, mapping = $9, updated_at = now()
		WHERE id = $1`,
		src.ID, src.Name, nullable(src.ShortID), src.Description, src.Status,
		src.ContentType, src.URL, src.Schedule, mappingJSON,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return source.ErrShortIDConflict
		}
		return fmt.Errorf("update source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return source.ErrSourceNotFound
	}
	return nil
}

// DeleteSource removes a source; its data rows go with it via the cascade.
func (s *Store) DeleteSource(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return source.ErrSourceNotFound
	}
	return nil
}

// GetSource fetches a source by id.
func (s *Store) GetSource(ctx context.Context, id uuid.UUID) (*source.Source, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id)
	return scanSource(row)
}

// GetSourceByShortID fetches a source by its unique short identifier.
func (s *Store) GetSourceByShortID(ctx context.Context, shortID string) (*source.Source, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE short_id = $1`, shortID)
	return scanSource(row)
}

// ListSources returns all sources ordered by name, optionally filtered by
// status ("" means all).
func (s *Store) ListSources(ctx context.Context, status source.Status) ([]*source.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY name, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []*source.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// SetRunStatus records the outcome of a sync attempt. A pending transition
// leaves last_run_at untouched; success and error stamp it.
func (s *Store) SetRunStatus(ctx context.Context, id uuid.UUID, status source.RunStatus, errMsg string) error {
	var err error
	if status == source.RunPending {
		_, err = s.pool.Exec(ctx,
			`UPDATE sources SET last_run_status = $2, last_error = '' WHERE id = $1`,
			id, status)
	} else {
		_, err = s.pool.Exec(ctx,
			`UPDATE sources SET last_run_status = $2, last_error = $3, last_run_at = now() WHERE id = $1`,
			id, status, errMsg)
	}
	if err != nil {
		return fmt.Errorf("set run status: %w", err)
	}
	return nil
}

// scanSource reads one source row.
func scanSource(row pgx.Row) (*source.Source, error) {
	var (
		src         source.Source
		shortID     pgtype.Text
		mappingJSON []byte
		lastRunAt   pgtype.Timestamptz
	)
	err := row.Scan(
		&src.ID, &src.Name, &shortID, &src.Description, &src.Status,
		&src.ContentType, &src.URL, &src.Schedule, &mappingJSON,
		&src.CreatedAt, &src.UpdatedAt, &lastRunAt, &src.LastRunStatus, &src.LastError,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, source.ErrSourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan source: %w", err)
	}

	if shortID.Valid {
		src.ShortID = shortID.String
	}
	if lastRunAt.Valid {
		t := lastRunAt.Time
		src.LastRunAt = &t
	}
	if len(mappingJSON) > 0 {
		if err := json.Unmarshal(mappingJSON, &src.Mapping); err != nil {
			return nil, fmt.Errorf("decode mapping: %w", err)
		}
	}
	if src.Mapping == nil {
		src.Mapping = []mapping.Entry{}
	}
	return &src, nil
}

// nullable converts an empty string to NULL so the short_id unique constraint
// ignores sources without one.
func nullable(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
