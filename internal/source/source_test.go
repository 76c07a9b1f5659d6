package source

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/tabwell/tabsync/internal/mapping"
)

func validSource() *Source {
	return &Source{
		Name:        "price feed",
		ShortID:     "prices",
		Status:      StatusEnabled,
		ContentType: ContentCSV,
		URL:         "https://example.com/feed.csv",
		Mapping: []mapping.Entry{
			{Pattern: "Name", Type: mapping.SlotText, Slot: 1, LogicalName: "name"},
			{Pattern: "*Qty*", Type: mapping.SlotInt, Slot: 1, LogicalName: "qty"},
		},
	}
}

func TestSourceValidateOK(t *testing.T) {
	if err := validSource().Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
}

func TestSourceValidateFailures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Source)
		wantSub string
	}{
		{"missing name", func(s *Source) { s.Name = "" }, "name is required"},
		{"missing url", func(s *Source) { s.URL = "" }, "url is required"},
		{"bad status", func(s *Source) { s.Status = "paused" }, "invalid status"},
		{"bad content type", func(s *Source) { s.ContentType = "xlsx" }, "invalid content type"},
		{"broken pattern", func(s *Source) { s.Mapping[0].Pattern = "/[/" }, "invalid pattern"},
		{"duplicate slot", func(s *Source) {
			s.Mapping[1] = mapping.Entry{Pattern: "Other", Type: mapping.SlotText, Slot: 1, LogicalName: "other"}
		}, "already assigned"},
		{"duplicate logical name", func(s *Source) { s.Mapping[1].LogicalName = "name" }, "duplicate logical name"},
		{"slot past capacity", func(s *Source) { s.Mapping[1].Slot = 21 }, "invalid slot"},
		{"missing logical name", func(s *Source) { s.Mapping[0].LogicalName = "" }, "logical name is required"},
		{"logical name shadows fixed column", func(s *Source) { s.Mapping[0].LogicalName = "id" }, "shadows a storage column"},
		{"logical name shadows row number", func(s *Source) { s.Mapping[0].LogicalName = "row_number" }, "shadows a storage column"},
		{"logical name shadows slot column", func(s *Source) { s.Mapping[0].LogicalName = "text_2" }, "shadows a storage column"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSource()
			tt.mutate(s)
			err := s.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantSub)
			}
		})
	}
}

func TestSyncable(t *testing.T) {
	s := validSource()
	if !s.Syncable() {
		t.Error("enabled source should be syncable")
	}
	s.Status = StatusDisabled
	if !s.Syncable() {
		t.Error("disabled source should still allow manual sync")
	}
	s.Status = StatusFrozen
	if s.Syncable() {
		t.Error("frozen source must not be syncable")
	}
}

func TestConfigured(t *testing.T) {
	s := validSource()
	if !s.Configured() {
		t.Error("source with mapping should be configured")
	}
	s.Mapping = nil
	if s.Configured() {
		t.Error("source without mapping should be unconfigured")
	}
}

func TestMarshalJSONConfiguredFlag(t *testing.T) {
	s := validSource()

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if got["configured"] != true {
		t.Errorf("configured = %v, want true", got["configured"])
	}

	s.Mapping = nil
	data, err = json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if got["configured"] != false {
		t.Errorf("configured = %v, want false", got["configured"])
	}
	if got["name"] != "price feed" {
		t.Errorf("name = %v, regular fields must survive the custom marshal", got["name"])
	}
}
