package mapping

import (
	"errors"
	"reflect"
	"testing"
)

func TestFieldName(t *testing.T) {
	tests := []struct {
		name     string
		slotType SlotType
		slot     int
		want     string
		wantOK   bool
	}{
		{name: "first text slot", slotType: SlotText, slot: 1, want: "text_1", wantOK: true},
		{name: "last text slot", slotType: SlotText, slot: 20, want: "text_20", wantOK: true},
		{name: "last json slot", slotType: SlotJSON, slot: 3, want: "json_3", wantOK: true},
		{name: "slot zero", slotType: SlotInt, slot: 0, wantOK: false},
		{name: "slot past capacity", slotType: SlotFloat, slot: 6, wantOK: false},
		{name: "negative slot", slotType: SlotDate, slot: -1, wantOK: false},
		{name: "unknown type", slotType: SlotType("blob"), slot: 1, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FieldName(tt.slotType, tt.slot)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("FieldName(%q, %d) = (%q, %v), want (%q, %v)",
					tt.slotType, tt.slot, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFieldNameCoversEverySlot(t *testing.T) {
	for _, st := range SlotTypes() {
		for slot := 1; slot <= Capacity(st); slot++ {
			if _, ok := FieldName(st, slot); !ok {
				t.Errorf("FieldName(%q, %d) invalid, want valid", st, slot)
			}
		}
		if _, ok := FieldName(st, Capacity(st)+1); ok {
			t.Errorf("FieldName(%q, %d) valid, want invalid", st, Capacity(st)+1)
		}
	}
}

func TestIsSlotField(t *testing.T) {
	valid := []string{"text_1", "text_20", "int_1", "float_5", "bool_5", "date_10", "json_3"}
	for _, name := range valid {
		if !IsSlotField(name) {
			t.Errorf("IsSlotField(%q) = false, want true", name)
		}
	}

	invalid := []string{"text_0", "text_21", "float_6", "blob_1", "text", "_1", "text_", "text_x", "id", "row_number", ""}
	for _, name := range invalid {
		if IsSlotField(name) {
			t.Errorf("IsSlotField(%q) = true, want false", name)
		}
	}
}

func TestAssignSlots(t *testing.T) {
	cols := []ColumnRequest{
		{Type: SlotText, LogicalName: "name"},
		{Type: SlotInt, LogicalName: "qty", Pattern: "*Qty*"},
		{Type: SlotText, LogicalName: "category"},
		{Type: SlotFloat, LogicalName: "price"},
	}

	got, err := AssignSlots(cols)
	if err != nil {
		t.Fatalf("AssignSlots() error: %v", err)
	}

	want := []Entry{
		{Pattern: "name", Type: SlotText, Slot: 1, LogicalName: "name"},
		{Pattern: "*Qty*", Type: SlotInt, Slot: 1, LogicalName: "qty"},
		{Pattern: "category", Type: SlotText, Slot: 2, LogicalName: "category"},
		{Pattern: "price", Type: SlotFloat, Slot: 1, LogicalName: "price"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AssignSlots() = %+v, want %+v", got, want)
	}

	// Determinism: same input, same assignment.
	again, err := AssignSlots(cols)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, again) {
		t.Errorf("AssignSlots() is not stable: %+v vs %+v", got, again)
	}
}

func TestAssignSlotsCapacityExceeded(t *testing.T) {
	cols := make([]ColumnRequest, 0, 8)
	// 6 float columns against a capacity of 5, plus 4 json against 3. The
	// reported violation must be float: first in the fixed type order.
	for i := 0; i < 4; i++ {
		cols = append(cols, ColumnRequest{Type: SlotJSON, LogicalName: "j"})
	}
	for i := 0; i < 6; i++ {
		cols = append(cols, ColumnRequest{Type: SlotFloat, LogicalName: "f"})
	}

	_, err := AssignSlots(cols)
	var capErr *CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("AssignSlots() error = %v, want *CapacityError", err)
	}
	if capErr.Type != SlotFloat || capErr.Max != 5 || capErr.Requested != 6 {
		t.Errorf("CapacityError = %+v, want {float 5 6}", capErr)
	}
}

func TestAssignSlotsUnknownType(t *testing.T) {
	_, err := AssignSlots([]ColumnRequest{{Type: "uuid", LogicalName: "id"}})
	if err == nil {
		t.Fatal("AssignSlots() with unknown type: want error, got nil")
	}
}
