package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		debugSeen bool
	}{
		{"debug", "debug", true},
		{"info", "info", false},
		{"unknown falls back to info", "loud", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(Options{Level: tt.level, Output: &buf})
			logger.Debug("debug line")

			if got := strings.Contains(buf.String(), "debug line"); got != tt.debugSeen {
				t.Errorf("debug line written = %v, want %v (output %q)", got, tt.debugSeen, buf.String())
			}
		})
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Name: "health", Format: "json", Output: &buf})
	logger.Info("checked", "issues", 2)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if line["@module"] != "health" {
		t.Errorf("@module = %v, want health", line["@module"])
	}
	if line["@message"] != "checked" {
		t.Errorf("@message = %v, want checked", line["@message"])
	}
}
