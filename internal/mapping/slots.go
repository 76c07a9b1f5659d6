package mapping

import (
	"fmt"
	"strconv"
	"strings"
)

// SlotType identifies one of the fixed storage column families.
type SlotType string

const (
	SlotText  SlotType = "text"
	SlotInt   SlotType = "int"
	SlotFloat SlotType = "float"
	SlotBool  SlotType = "bool"
	SlotDate  SlotType = "date"
	SlotJSON  SlotType = "json"
)

// slotTypes is the fixed enumeration order. Capacity checks and first-violation
// reporting iterate in this order, not in caller input order.
var slotTypes = []SlotType{SlotText, SlotInt, SlotFloat, SlotBool, SlotDate, SlotJSON}

// slotCapacity is the number of pre-allocated storage columns per type.
var slotCapacity = map[SlotType]int{
	SlotText:  20,
	SlotInt:   20,
	SlotFloat: 5,
	SlotBool:  5,
	SlotDate:  10,
	SlotJSON:  3,
}

// SlotTypes returns the slot types in their fixed enumeration order.
func SlotTypes() []SlotType {
	out := make([]SlotType, len(slotTypes))
	copy(out, slotTypes)
	return out
}

// Capacity returns the slot capacity for a type, or 0 for an unknown type.
func Capacity(t SlotType) int { return slotCapacity[t] }

// ValidType reports whether t is one of the fixed slot types.
func ValidType(t SlotType) bool {
	_, ok := slotCapacity[t]
	return ok
}

// FieldName returns the canonical storage column name for a (type, slot)
// pair, e.g. ("text", 3) -> "text_3". The second return is false when the
// type is unknown or the slot falls outside [1, capacity].
func FieldName(t SlotType, slot int) (string, bool) {
	max, ok := slotCapacity[t]
	if !ok || slot < 1 || slot > max {
		return "", false
	}
	return string(t) + "_" + strconv.Itoa(slot), true
}

// IsSlotField reports whether name is the canonical column name of some slot,
// e.g. "text_3" or "json_1".
func IsSlotField(name string) bool {
	idx := strings.LastIndexByte(name, '_')
	if idx <= 0 {
		return false
	}
	slot, err := strconv.Atoi(name[idx+1:])
	if err != nil {
		return false
	}
	_, ok := FieldName(SlotType(name[:idx]), slot)
	return ok
}

// CapacityError reports that more columns of one type were requested than the
// type has slots.
type CapacityError struct {
	Type      SlotType
	Max       int
	Requested int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("too many %s columns: requested %d, capacity %d", e.Type, e.Requested, e.Max)
}

// ColumnRequest describes one logical column awaiting a slot assignment.
// Pattern is optional; when empty the logical name doubles as the pattern.
type ColumnRequest struct {
	Type        SlotType `json:"type"`
	LogicalName string   `json:"logical_name"`
	Pattern     string   `json:"pattern,omitempty"`
}

// Entry is one stored column-mapping configuration entry: which header
// pattern feeds which typed slot, and the logical name consumers query by.
type Entry struct {
	Pattern     string   `json:"pattern"`
	Type        SlotType `json:"type"`
	Slot        int      `json:"slot"`
	LogicalName string   `json:"logical_name"`
}

// AssignSlots allocates per-type slot numbers for an ordered list of logical
// columns. Slots are assigned consecutively in input order starting at 1.
//
// If any type is requested beyond its capacity, the first violation in the
// fixed type enumeration order is returned as a *CapacityError and no
// assignment is produced.
func AssignSlots(cols []ColumnRequest) ([]Entry, error) {
	requested := make(map[SlotType]int, len(slotTypes))
	for _, c := range cols {
		if !ValidType(c.Type) {
			return nil, fmt.Errorf("unknown slot type %q for column %q", c.Type, c.LogicalName)
		}
		requested[c.Type]++
	}
	for _, t := range slotTypes {
		if n := requested[t]; n > slotCapacity[t] {
			return nil, &CapacityError{Type: t, Max: slotCapacity[t], Requested: n}
		}
	}

	next := make(map[SlotType]int, len(slotTypes))
	entries := make([]Entry, len(cols))
	for i, c := range cols {
		next[c.Type]++
		pattern := c.Pattern
		if pattern == "" {
			pattern = c.LogicalName
		}
		entries[i] = Entry{
			Pattern:     pattern,
			Type:        c.Type,
			Slot:        next[c.Type],
			LogicalName: c.LogicalName,
		}
	}
	return entries, nil
}
