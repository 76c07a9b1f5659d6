package mapping

import (
	"testing"
	"time"
)

func TestConvertNullOnBlank(t *testing.T) {
	for _, st := range SlotTypes() {
		for _, raw := range []string{"", "   ", "\t\n"} {
			if got := Convert(raw, st); got != nil {
				t.Errorf("Convert(%q, %q) = %v, want nil", raw, st, got)
			}
		}
	}
}

func TestConvertText(t *testing.T) {
	if got := Convert("  Foo Bar  ", SlotText); got != "Foo Bar" {
		t.Errorf("Convert(text) = %v, want %q", got, "Foo Bar")
	}
}

func TestConvertInt(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"10", 10},
		{" 42 ", 42},
		{"-7", -7},
		{"+3", 3},
		{"10abc", 10},
		{"abc", 0},
		{"12.9", 12},
		{"-", 0},
	}
	for _, tt := range tests {
		if got := Convert(tt.input, SlotInt); got != tt.want {
			t.Errorf("Convert(%q, int) = %v, want %d", tt.input, got, tt.want)
		}
	}
}

func TestConvertFloat(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"1.5", 1.5},
		{"-2.25", -2.25},
		{"1.5x", 1.5},
		{"99.", 99},
		{".5", 0.5},
		{"abc", 0},
	}
	for _, tt := range tests {
		if got := Convert(tt.input, SlotFloat); got != tt.want {
			t.Errorf("Convert(%q, float) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestConvertBool(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"1", true},
		{"true", true},
		{"TRUE", true},
		{"YES", true},
		{"y", true},
		{"Да", true},
		{"д", true},
		{"0", false},
		{"no", false},
		{"maybe", false},
		{"false", false},
	}
	for _, tt := range tests {
		if got := Convert(tt.input, SlotBool); got != tt.want {
			t.Errorf("Convert(%q, bool) = %v, want %v", tt.input, got, tt.want)
		}
	}

	// Blank stays NULL; anything else is a definite true/false.
	if got := Convert("", SlotBool); got != nil {
		t.Errorf("Convert(\"\", bool) = %v, want nil", got)
	}
}

func TestConvertDate(t *testing.T) {
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC).Unix()
	for _, input := range []string{"2024-03-15", "2024/03/15", "15.03.2024", "03/15/2024", "Mar 15, 2024", "20240315"} {
		got := Convert(input, SlotDate)
		if got != want {
			t.Errorf("Convert(%q, date) = %v, want %d", input, got, want)
		}
	}

	if got := Convert("not a date", SlotDate); got != nil {
		t.Errorf("Convert(unparseable, date) = %v, want nil", got)
	}
}

func TestConvertJSON(t *testing.T) {
	// Valid JSON is canonicalized; canonicalization is idempotent.
	once := Convert(`{"b": 1,  "a": "ы"}`, SlotJSON).(string)
	twice := Convert(once, SlotJSON).(string)
	if once != twice {
		t.Errorf("JSON canonicalization not idempotent: %q vs %q", once, twice)
	}
	if once != `{"a":"ы","b":1}` {
		t.Errorf("canonical form = %q, want %q (non-ASCII preserved)", once, `{"a":"ы","b":1}`)
	}

	// Nested objects and arrays canonicalize recursively; HTML characters
	// stay unescaped.
	got := Convert(`[ {"y": 2, "x": 1}, true, null, "<b>" ]`, SlotJSON)
	if want := `[{"x":1,"y":2},true,null,"<b>"]`; got != want {
		t.Errorf("canonical form = %q, want %q", got, want)
	}

	// Invalid JSON passes through trimmed but unchanged.
	if got := Convert("  {broken  ", SlotJSON); got != "{broken" {
		t.Errorf("Convert(invalid json) = %v, want raw passthrough", got)
	}
}
