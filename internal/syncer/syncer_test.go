package syncer

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/tabwell/tabsync/internal/mapping"
	"github.com/tabwell/tabsync/internal/source"
	"github.com/tabwell/tabsync/internal/store"
)

// fakeStorage records status transitions and replaced rows in memory.
type fakeStorage struct {
	sources   []*source.Source
	statuses  []source.RunStatus
	lastError string
	fields    []string
	rows      []store.Row
	replaced  bool
	replErr   error
}

func (f *fakeStorage) ListSources(_ context.Context, status source.Status) ([]*source.Source, error) {
	var out []*source.Source
	for _, s := range f.sources {
		if status == "" || s.Status == status {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStorage) SetRunStatus(_ context.Context, _ uuid.UUID, status source.RunStatus, errMsg string) error {
	f.statuses = append(f.statuses, status)
	f.lastError = errMsg
	return nil
}

func (f *fakeStorage) ReplaceRows(_ context.Context, _ uuid.UUID, fields []string, rows []store.Row) (int, error) {
	if f.replErr != nil {
		return 0, f.replErr
	}
	f.replaced = true
	f.fields = fields
	f.rows = rows
	return len(rows), nil
}

// fakeDownloader serves canned bytes or an error.
type fakeDownloader struct {
	body   []byte
	err    error
	called bool
}

func (f *fakeDownloader) Download(_ context.Context, _ string) ([]byte, error) {
	f.called = true
	return f.body, f.err
}

func testSource() *source.Source {
	return &source.Source{
		ID:          uuid.New(),
		Name:        "feed",
		Status:      source.StatusEnabled,
		ContentType: source.ContentCSV,
		URL:         "https://example.com/feed.csv",
		Mapping: []mapping.Entry{
			{Pattern: "Name", Type: mapping.SlotText, Slot: 1, LogicalName: "name"},
			{Pattern: "Amount", Type: mapping.SlotInt, Slot: 1, LogicalName: "amount"},
		},
	}
}

func TestSyncNowEndToEnd(t *testing.T) {
	st := &fakeStorage{}
	dl := &fakeDownloader{body: []byte("Name,Amount\nFoo,10\nBar,abc\n")}
	s := New(st, dl)

	res := s.SyncNow(context.Background(), testSource())
	if !res.Success {
		t.Fatalf("SyncNow() failed: %s", res.Message)
	}
	if res.Rows != 2 {
		t.Errorf("Rows = %d, want 2", res.Rows)
	}

	if !reflect.DeepEqual(st.fields, []string{"text_1", "int_1"}) {
		t.Errorf("fields = %v", st.fields)
	}
	if len(st.rows) != 2 {
		t.Fatalf("stored %d rows, want 2", len(st.rows))
	}
	if st.rows[0].Number != 1 || st.rows[0].Values["text_1"] != "Foo" || st.rows[0].Values["int_1"] != int64(10) {
		t.Errorf("row 1 = %+v", st.rows[0])
	}
	// Non-numeric input permissively truncates to 0.
	if st.rows[1].Number != 2 || st.rows[1].Values["text_1"] != "Bar" || st.rows[1].Values["int_1"] != int64(0) {
		t.Errorf("row 2 = %+v", st.rows[1])
	}

	// State machine: pending then success.
	want := []source.RunStatus{source.RunPending, source.RunSuccess}
	if !reflect.DeepEqual(st.statuses, want) {
		t.Errorf("status transitions = %v, want %v", st.statuses, want)
	}
}

func TestSyncNowUnconfigured(t *testing.T) {
	st := &fakeStorage{}
	dl := &fakeDownloader{body: []byte("irrelevant")}
	s := New(st, dl)

	src := testSource()
	src.Mapping = nil

	res := s.SyncNow(context.Background(), src)
	if res.Success {
		t.Fatal("SyncNow() on unconfigured source should fail")
	}
	if dl.called {
		t.Error("configuration check must happen before any network call")
	}
	if st.statuses[len(st.statuses)-1] != source.RunError {
		t.Errorf("final status = %v, want error", st.statuses)
	}
	if !strings.Contains(st.lastError, "columns not configured") {
		t.Errorf("recorded error = %q", st.lastError)
	}
}

func TestSyncNowFrozen(t *testing.T) {
	st := &fakeStorage{}
	s := New(st, &fakeDownloader{})

	src := testSource()
	src.Status = source.StatusFrozen

	res := s.SyncNow(context.Background(), src)
	if res.Success {
		t.Fatal("frozen source must refuse to sync")
	}
	if len(st.statuses) != 0 {
		t.Errorf("frozen refusal must not touch run status, got %v", st.statuses)
	}
}

func TestSyncNowDownloadFailure(t *testing.T) {
	st := &fakeStorage{}
	dl := &fakeDownloader{err: errors.New("connection refused")}
	s := New(st, dl)

	res := s.SyncNow(context.Background(), testSource())
	if res.Success {
		t.Fatal("SyncNow() should fail on download error")
	}
	if st.replaced {
		t.Error("no rows may be replaced when download fails")
	}
	if st.statuses[len(st.statuses)-1] != source.RunError {
		t.Errorf("final status = %v, want error", st.statuses)
	}
}

func TestSyncNowNoColumnsMapped(t *testing.T) {
	st := &fakeStorage{}
	dl := &fakeDownloader{body: []byte("Other,Headers\n1,2\n")}
	s := New(st, dl)

	res := s.SyncNow(context.Background(), testSource())
	if res.Success {
		t.Fatal("SyncNow() should fail when nothing maps")
	}
	if !strings.Contains(res.Message, "no columns mapped") {
		t.Errorf("message = %q", res.Message)
	}
	if st.replaced {
		t.Error("no rows may be replaced when mapping is empty")
	}
}

func TestBuildRowsSkipsBlankAndRenumbers(t *testing.T) {
	cols := map[int]mapping.MappedColumn{
		0: {Type: mapping.SlotText, Slot: 1, Field: "text_1", LogicalName: "name"},
	}
	records := [][]string{
		{"Foo"},
		{"   "},
		{""},
		{"Bar"},
	}

	fields, rows := buildRows(records, cols)
	if !reflect.DeepEqual(fields, []string{"text_1"}) {
		t.Errorf("fields = %v", fields)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2 (blank rows skipped)", len(rows))
	}
	if rows[0].Number != 1 || rows[1].Number != 2 {
		t.Errorf("row numbers = %d, %d; want 1, 2 after skip", rows[0].Number, rows[1].Number)
	}
	if rows[1].Values["text_1"] != "Bar" {
		t.Errorf("row 2 = %+v", rows[1])
	}
}

func TestBuildRowsShortRecord(t *testing.T) {
	cols := map[int]mapping.MappedColumn{
		0: {Type: mapping.SlotText, Slot: 1, Field: "text_1"},
		2: {Type: mapping.SlotInt, Slot: 1, Field: "int_1"},
	}
	// Ragged record: position 2 is missing entirely.
	_, rows := buildRows([][]string{{"Foo", "x"}}, cols)
	if len(rows) != 1 {
		t.Fatalf("got %d rows", len(rows))
	}
	if _, ok := rows[0].Values["int_1"]; ok {
		t.Error("missing cell must stay NULL, not be converted")
	}
}

func TestSyncDueBestEffort(t *testing.T) {
	good := testSource()
	bad := testSource()
	bad.ID = uuid.New()
	bad.Mapping = nil // will fail with ColumnsNotConfigured

	disabled := testSource()
	disabled.ID = uuid.New()
	disabled.Status = source.StatusDisabled

	st := &fakeStorage{sources: []*source.Source{good, bad, disabled}}
	dl := &fakeDownloader{body: []byte("Name,Amount\nFoo,10\n")}
	s := New(st, dl)

	summary, err := s.SyncDue(context.Background())
	if err != nil {
		t.Fatalf("SyncDue() error: %v", err)
	}
	// Disabled sources are not listed as enabled, so only 2 are checked.
	if summary.Checked != 2 {
		t.Errorf("Checked = %d, want 2", summary.Checked)
	}
	if summary.Synced != 1 || summary.Failed != 1 {
		t.Errorf("summary = %+v, want 1 synced / 1 failed", summary)
	}
}
