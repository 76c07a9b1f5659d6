// Package syncer orchestrates one source's import: download, parse, map
// columns, convert values, and atomically replace the stored rows, recording
// the outcome on the source.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tabwell/tabsync/internal/importer"
	"github.com/tabwell/tabsync/internal/mapping"
	"github.com/tabwell/tabsync/internal/source"
	"github.com/tabwell/tabsync/internal/store"
)

// ErrNoColumnsMapped indicates the header row matched none of the configured
// patterns; importing nothing silently would hide a broken feed.
var ErrNoColumnsMapped = errors.New("no columns mapped")

// ErrSourceFrozen indicates a sync was requested for a frozen source.
var ErrSourceFrozen = errors.New("source is frozen")

var (
	syncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tabsync_sync_runs_total",
		Help: "Sync attempts by outcome.",
	}, []string{"outcome"})
	syncRowsImported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tabsync_rows_imported_total",
		Help: "Data rows written across all successful syncs.",
	})
	syncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tabsync_sync_duration_seconds",
		Help:    "Wall-clock duration of a single source sync.",
		Buckets: prometheus.DefBuckets,
	})
)

// Storage is the persistence port the syncer needs. *store.Store satisfies it.
type Storage interface {
	ListSources(ctx context.Context, status source.Status) ([]*source.Source, error)
	SetRunStatus(ctx context.Context, id uuid.UUID, status source.RunStatus, errMsg string) error
	ReplaceRows(ctx context.Context, sourceID uuid.UUID, fields []string, rows []store.Row) (int, error)
}

// Downloader fetches raw bytes from a URL. *importer.Client satisfies it.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Result is the outcome of an interactive sync, shaped for display.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Rows    int    `json:"rows"`
}

// Syncer runs imports. A per-source mutex serializes concurrent triggers for
// the same source; different sources sync independently.
type Syncer struct {
	storage Storage
	client  Downloader

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// New creates a Syncer.
func New(storage Storage, client Downloader) *Syncer {
	return &Syncer{
		storage: storage,
		client:  client,
		locks:   make(map[uuid.UUID]*sync.Mutex),
	}
}

// sourceLock returns the mutex guarding one source's sync.
func (s *Syncer) sourceLock(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// SyncNow runs a synchronous import for one source and returns a structured
// result for display. Frozen sources refuse without touching their recorded
// status; every other failure is persisted as an error outcome with its
// message.
func (s *Syncer) SyncNow(ctx context.Context, src *source.Source) Result {
	log := slog.Default().With("source", src.Name, "source_id", src.ID)

	if !src.Syncable() {
		return Result{Success: false, Message: ErrSourceFrozen.Error()}
	}

	lock := s.sourceLock(src.ID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	if err := s.storage.SetRunStatus(ctx, src.ID, source.RunPending, ""); err != nil {
		log.Error("mark pending failed", "error", err)
		return Result{Success: false, Message: err.Error()}
	}

	count, err := s.runImport(ctx, src)
	syncDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		syncRuns.WithLabelValues("error").Inc()
		log.Error("sync failed", "error", err)
		if serr := s.storage.SetRunStatus(ctx, src.ID, source.RunError, err.Error()); serr != nil {
			log.Error("record error status failed", "error", serr)
		}
		return Result{Success: false, Message: err.Error()}
	}

	syncRuns.WithLabelValues("success").Inc()
	syncRowsImported.Add(float64(count))
	if serr := s.storage.SetRunStatus(ctx, src.ID, source.RunSuccess, ""); serr != nil {
		log.Error("record success status failed", "error", serr)
	}
	log.Info("sync complete", "rows", count, "duration_ms", time.Since(start).Milliseconds())
	return Result{Success: true, Message: fmt.Sprintf("imported %d rows", count), Rows: count}
}

// runImport executes the pipeline stages. Any error aborts the whole sync;
// nothing has been deleted before ReplaceRows, and ReplaceRows itself is
// transactional, so a failure leaves the previous row set intact.
func (s *Syncer) runImport(ctx context.Context, src *source.Source) (int, error) {
	// Configuration precondition, checked before any network call.
	if !src.Configured() {
		return 0, source.ErrColumnsNotConfigured
	}

	url := importer.ResolveExportURL(src.URL, src.ContentType)
	body, err := s.client.Download(ctx, url)
	if err != nil {
		return 0, err
	}

	records, err := importer.Parse(body, importer.Delimiter(src.ContentType))
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, importer.ErrEmptyResponse
	}

	cols, err := mapping.BuildMapping(records[0], src.Mapping)
	if err != nil {
		return 0, err
	}
	if len(cols) == 0 {
		return 0, ErrNoColumnsMapped
	}

	fields, rows := buildRows(records[1:], cols)
	return s.storage.ReplaceRows(ctx, src.ID, fields, rows)
}

// buildRows converts raw records into storage rows. Rows that are blank
// across every cell are skipped; the remaining rows are numbered 1..N in file
// order after the skip.
func buildRows(records [][]string, cols map[int]mapping.MappedColumn) ([]string, []store.Row) {
	positions := make([]int, 0, len(cols))
	for pos := range cols {
		positions = append(positions, pos)
	}
	sort.Ints(positions)

	fields := make([]string, len(positions))
	for i, pos := range positions {
		fields[i] = cols[pos].Field
	}

	rows := make([]store.Row, 0, len(records))
	num := 0
	for _, record := range records {
		if isBlankRow(record) {
			continue
		}
		num++
		values := make(map[string]interface{}, len(positions))
		for _, pos := range positions {
			if pos >= len(record) {
				continue
			}
			col := cols[pos]
			if v := mapping.Convert(record[pos], col.Type); v != nil {
				values[col.Field] = v
			}
		}
		rows = append(rows, store.Row{Number: num, Values: values})
	}
	return fields, rows
}

// isBlankRow reports whether every cell is empty or whitespace.
func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// BatchSummary aggregates one scheduler pass over all enabled sources.
type BatchSummary struct {
	Checked int `json:"checked"`
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
}

// SyncDue iterates enabled sources and syncs each whose schedule says it is
// due. Best effort: one source's failure is logged and does not abort the
// batch.
func (s *Syncer) SyncDue(ctx context.Context) (BatchSummary, error) {
	sources, err := s.storage.ListSources(ctx, source.StatusEnabled)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("list enabled sources: %w", err)
	}

	summary := BatchSummary{Checked: len(sources)}
	now := time.Now()
	for _, src := range sources {
		if !ShouldUpdate(src.Schedule, src.LastRunAt, now) {
			continue
		}
		res := s.SyncNow(ctx, src)
		if res.Success {
			summary.Synced++
		} else {
			summary.Failed++
		}
		if ctx.Err() != nil {
			break
		}
	}
	return summary, nil
}

// Run ticks SyncDue at the given interval until the context is cancelled.
// An immediate pass runs at startup.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	log := slog.Default()
	tick := func() {
		summary, err := s.SyncDue(ctx)
		if err != nil {
			log.Error("scheduled sync pass failed", "error", err)
			return
		}
		if summary.Synced > 0 || summary.Failed > 0 {
			log.Info("scheduled sync pass",
				"checked", summary.Checked,
				"synced", summary.Synced,
				"failed", summary.Failed,
			)
		}
	}

	tick()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tick()
		case <-ctx.Done():
			log.Info("sync scheduler stopped")
			return
		}
	}
}
