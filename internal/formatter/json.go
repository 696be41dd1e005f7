package formatter

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/tordrt/wshealth/internal/health"
)

// JSONFormatter dumps the issues as indented JSON
type JSONFormatter struct {
	writer io.Writer
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{writer: w}
}

type jsonReport struct {
	WorkspaceID string         `json:"workspaceId"`
	Mode        health.Mode    `json:"mode,omitempty"`
	Healthy     bool           `json:"healthy"`
	Issues      []health.Issue `json:"issues"`
}

// Format writes the report as a single JSON document
func (f *JSONFormatter) Format(r *Report) error {
	issues := r.Issues
	if issues == nil {
		issues = []health.Issue{}
	}

	enc := json.NewEncoder(f.writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(jsonReport{
		WorkspaceID: r.WorkspaceID,
		Mode:        r.Mode,
		Healthy:     r.Healthy(),
		Issues:      issues,
	}); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}
