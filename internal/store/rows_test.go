package store

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestValidColumn(t *testing.T) {
	valid := []string{"text_1", "text_20", "int_1", "float_5", "bool_5", "date_10", "json_3",
		"id", "source_id", "row_number", "created_at"}
	for _, col := range valid {
		if !ValidColumn(col) {
			t.Errorf("ValidColumn(%q) = false, want true", col)
		}
	}

	invalid := []string{"text_0", "text_21", "float_6", "json_4", "name", "", "text_1; DROP TABLE"}
	for _, col := range invalid {
		if ValidColumn(col) {
			t.Errorf("ValidColumn(%q) = true, want false", col)
		}
	}
}

func TestBuildInsertSQL(t *testing.T) {
	got := buildInsertSQL([]string{"text_1", "int_1"})
	want := `INSERT INTO data_rows (source_id, row_number, "text_1", "int_1") VALUES ($1, $2, $3, $4)`
	if got != want {
		t.Errorf("buildInsertSQL() = %q, want %q", got, want)
	}
}

func TestBuildRowPredicate(t *testing.T) {
	id := uuid.New()
	where, args := buildRowPredicate(id, map[string]interface{}{
		"text_1": "Foo",
		"int_1":  int64(10),
	})

	// Clause order is stable (sorted by column name).
	want := `WHERE source_id = $1 AND "int_1" = $2 AND "text_1" = $3`
	if where != want {
		t.Errorf("buildRowPredicate() = %q, want %q", where, want)
	}
	if len(args) != 3 || args[0] != id || args[1] != int64(10) || args[2] != "Foo" {
		t.Errorf("args = %v", args)
	}
}

func TestSlotColumnDDL(t *testing.T) {
	ddl := slotColumnDDL()

	for _, frag := range []string{
		`"text_1" TEXT`, `"text_20" TEXT`,
		`"int_20" BIGINT`,
		`"float_5" DOUBLE PRECISION`,
		`"bool_5" BOOLEAN`,
		`"date_10" BIGINT`,
		`"json_3" TEXT`,
	} {
		if !strings.Contains(ddl, frag) {
			t.Errorf("slot DDL missing %q", frag)
		}
	}
	if strings.Contains(ddl, "text_21") || strings.Contains(ddl, "float_6") {
		t.Error("slot DDL contains columns past capacity")
	}
}
