package query

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/tabwell/tabsync/internal/mapping"
	"github.com/tabwell/tabsync/internal/source"
	"github.com/tabwell/tabsync/internal/store"
)

type fakeStorage struct {
	src      *source.Source
	lastQ    store.RowQuery
	lastFrag string
	rows     []map[string]interface{}
}

func (f *fakeStorage) GetSourceByShortID(_ context.Context, shortID string) (*source.Source, error) {
	if f.src == nil || f.src.ShortID != shortID {
		return nil, source.ErrSourceNotFound
	}
	return f.src, nil
}

func (f *fakeStorage) QueryRows(_ context.Context, q store.RowQuery) ([]map[string]interface{}, error) {
	f.lastQ = q
	return f.rows, nil
}

func (f *fakeStorage) QueryRowsSelect(_ context.Context, q store.RowQuery, fragment string, _ []interface{}) ([]map[string]interface{}, error) {
	f.lastQ = q
	f.lastFrag = fragment
	return f.rows, nil
}

func testFixture() *fakeStorage {
	return &fakeStorage{
		src: &source.Source{
			ID:      uuid.New(),
			Name:    "products",
			ShortID: "prod",
			Status:  source.StatusEnabled,
			Mapping: []mapping.Entry{
				{Pattern: "Name", Type: mapping.SlotText, Slot: 1, LogicalName: "name"},
				{Pattern: "Price", Type: mapping.SlotFloat, Slot: 1, LogicalName: "price"},
				{Pattern: "Qty", Type: mapping.SlotInt, Slot: 1, LogicalName: "qty"},
			},
		},
	}
}

func TestGetRecordsTranslatesNames(t *testing.T) {
	st := testFixture()
	st.rows = []map[string]interface{}{
		{"id": int64(1), "row_number": int64(1), "text_1": "Widget", "float_1": 9.5},
	}
	f := New(st)

	got, err := f.GetRecords(context.Background(), "prod", Request{
		Conditions: map[string]interface{}{"name": "Widget"},
		Sort:       []Sort{{Field: "price", Desc: true}},
		Fields:     []string{"name", "price"},
		Limit:      10,
	})
	if err != nil {
		t.Fatalf("GetRecords() error: %v", err)
	}

	// Logical names translated to physical columns on the way in.
	if st.lastQ.Conditions["text_1"] != "Widget" {
		t.Errorf("conditions = %v", st.lastQ.Conditions)
	}
	if len(st.lastQ.Sort) != 1 || st.lastQ.Sort[0] != (store.SortSpec{Field: "float_1", Desc: true}) {
		t.Errorf("sort = %v", st.lastQ.Sort)
	}
	if !reflect.DeepEqual(st.lastQ.Fields, []string{"text_1", "float_1"}) {
		t.Errorf("fields = %v", st.lastQ.Fields)
	}
	if st.lastQ.SourceID != st.src.ID {
		t.Error("source predicate must use the resolved source id")
	}

	// Physical names translated back on the way out; identity columns pass
	// through untouched.
	want := []map[string]interface{}{
		{"id": int64(1), "row_number": int64(1), "name": "Widget", "price": 9.5},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("records = %v, want %v", got, want)
	}
}

func TestGetRecordsUnknownField(t *testing.T) {
	f := New(testFixture())

	cases := []Request{
		{Conditions: map[string]interface{}{"color": "red"}},
		{Sort: []Sort{{Field: "color"}}},
		{Fields: []string{"color"}},
	}
	for _, req := range cases {
		_, err := f.GetRecords(context.Background(), "prod", req)
		var ufe *UnknownFieldError
		if !errors.As(err, &ufe) {
			t.Errorf("GetRecords(%+v) error = %v, want UnknownFieldError", req, err)
			continue
		}
		if ufe.Name != "color" {
			t.Errorf("UnknownFieldError.Name = %q", ufe.Name)
		}
	}
}

func TestGetRecordsSourceNotFound(t *testing.T) {
	f := New(testFixture())
	_, err := f.GetRecords(context.Background(), "nope", Request{})
	if !errors.Is(err, source.ErrSourceNotFound) {
		t.Errorf("error = %v, want ErrSourceNotFound", err)
	}
}

func TestGetRecordsSelectRewritesFragment(t *testing.T) {
	st := testFixture()
	f := New(st)

	_, err := f.GetRecordsSelect(context.Background(), "prod",
		"price > $2 AND qty >= $3", []interface{}{1.0, int64(5)}, Request{})
	if err != nil {
		t.Fatalf("GetRecordsSelect() error: %v", err)
	}

	want := `"float_1" > $2 AND "int_1" >= $3`
	if st.lastFrag != want {
		t.Errorf("fragment = %q, want %q", st.lastFrag, want)
	}
}

func TestGetRecordsSelectLeavesKeywords(t *testing.T) {
	st := testFixture()
	f := New(st)

	_, err := f.GetRecordsSelect(context.Background(), "prod",
		"name = $2 OR name IS NULL", []interface{}{"x"}, Request{})
	if err != nil {
		t.Fatalf("GetRecordsSelect() error: %v", err)
	}
	want := `"text_1" = $2 OR "text_1" IS NULL`
	if st.lastFrag != want {
		t.Errorf("fragment = %q, want %q", st.lastFrag, want)
	}
}

func TestNameMapsSkipsUnnamedEntries(t *testing.T) {
	fwd, rev, err := nameMaps([]mapping.Entry{
		{Pattern: "A", Type: mapping.SlotText, Slot: 1, LogicalName: "a"},
		{Pattern: "B", Type: mapping.SlotText, Slot: 2},
	})
	if err != nil {
		t.Fatalf("nameMaps() error: %v", err)
	}
	if len(fwd) != 1 || fwd["a"] != "text_1" {
		t.Errorf("fwd = %v", fwd)
	}
	if len(rev) != 1 || rev["text_1"] != "a" {
		t.Errorf("rev = %v", rev)
	}
}
