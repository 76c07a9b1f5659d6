// Package source defines the Source domain model: one configured external
// tabular dataset, its update schedule, its column-mapping configuration, and
// its last-sync bookkeeping.
package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tabwell/tabsync/internal/mapping"
)

// ErrSourceNotFound indicates a lookup by id or short identifier failed.
var ErrSourceNotFound = errors.New("source not found")

// ErrColumnsNotConfigured indicates a sync was attempted against a source
// with no column-mapping configuration. Checked before any network call.
var ErrColumnsNotConfigured = errors.New("columns not configured")

// ErrShortIDConflict indicates a create or update tried to claim a short
// identifier another source already holds.
var ErrShortIDConflict = errors.New("short identifier already in use")

// Status is the source lifecycle status.
//
// Disabled sources are skipped by the scheduler but can still be synced
// manually. Frozen sources are excluded from both manual and scheduled sync
// but remain queryable.
type Status string

const (
	StatusEnabled  Status = "enabled"
	StatusDisabled Status = "disabled"
	StatusFrozen   Status = "frozen"
)

// ContentType selects the delimiter used when parsing downloaded content.
type ContentType string

const (
	ContentCSV ContentType = "csv"
	ContentTSV ContentType = "tsv"
)

// RunStatus is the outcome of the most recent sync attempt.
type RunStatus string

const (
	RunNone    RunStatus = "none"
	RunPending RunStatus = "pending"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Source is one configured external dataset.
type Source struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	ShortID     string          `json:"short_id,omitempty"`
	Description string          `json:"description,omitempty"`
	Status      Status          `json:"status"`
	ContentType ContentType     `json:"content_type"`
	URL         string          `json:"url"`
	Schedule    string          `json:"schedule,omitempty"`
	Mapping     []mapping.Entry `json:"mapping"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	LastRunStatus RunStatus  `json:"last_run_status"`
	LastError     string     `json:"last_error,omitempty"`
}

// Configured reports whether the source has a non-empty column mapping.
// Unconfigured sources are flagged in listings and refuse to sync.
func (s *Source) Configured() bool { return len(s.Mapping) > 0 }

// MarshalJSON adds the computed configured flag so listings expose whether a
// source has a usable mapping without clients inspecting the mapping array.
func (s Source) MarshalJSON() ([]byte, error) {
	type alias Source
	return json.Marshal(struct {
		alias
		Configured bool `json:"configured"`
	}{alias(s), s.Configured()})
}

// Syncable reports whether a manual sync is allowed for the source.
func (s *Source) Syncable() bool { return s.Status != StatusFrozen }

// Validate checks the source configuration. Mapping violations are operator
// errors and are reported verbatim.
func (s *Source) Validate() error {
	if s.Name == "" {
		return errors.New("source name is required")
	}
	if s.URL == "" {
		return errors.New("source url is required")
	}
	switch s.Status {
	case StatusEnabled, StatusDisabled, StatusFrozen:
	default:
		return fmt.Errorf("invalid status %q", s.Status)
	}
	switch s.ContentType {
	case ContentCSV, ContentTSV:
	default:
		return fmt.Errorf("invalid content type %q", s.ContentType)
	}
	return ValidateMapping(s.Mapping)
}

// reservedNames are data_rows columns that stay visible in query results
// under their physical names. A logical name shadowing one would make the
// renamed row's winner depend on map iteration order.
var reservedNames = map[string]bool{
	"id": true, "source_id": true, "row_number": true, "created_at": true,
}

// ValidateMapping checks a column-mapping configuration:
// patterns compile, (type, slot) pairs are unique and within capacity,
// logical names are unique within the source and do not shadow any physical
// storage column.
func ValidateMapping(entries []mapping.Entry) error {
	type slotKey struct {
		t    mapping.SlotType
		slot int
	}
	slots := make(map[slotKey]bool, len(entries))
	names := make(map[string]bool, len(entries))

	for i, e := range entries {
		if _, err := mapping.NewPattern(e.Pattern); err != nil {
			return fmt.Errorf("mapping entry %d: %w", i+1, err)
		}
		if e.LogicalName == "" {
			return fmt.Errorf("mapping entry %d: logical name is required", i+1)
		}
		if names[e.LogicalName] {
			return fmt.Errorf("mapping entry %d: duplicate logical name %q", i+1, e.LogicalName)
		}
		if reservedNames[e.LogicalName] || mapping.IsSlotField(e.LogicalName) {
			return fmt.Errorf("mapping entry %d: logical name %q shadows a storage column", i+1, e.LogicalName)
		}
		names[e.LogicalName] = true

		if _, ok := mapping.FieldName(e.Type, e.Slot); !ok {
			return fmt.Errorf("mapping entry %d: invalid slot %s_%d (capacity %d)",
				i+1, e.Type, e.Slot, mapping.Capacity(e.Type))
		}
		k := slotKey{e.Type, e.Slot}
		if slots[k] {
			return fmt.Errorf("mapping entry %d: slot %s_%d already assigned", i+1, e.Type, e.Slot)
		}
		slots[k] = true
	}
	return nil
}
