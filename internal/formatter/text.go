package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/tordrt/wshealth/internal/health"
)

// TextFormatter formats issues as compact text grouped by table
type TextFormatter struct {
	writer io.Writer
}

// NewTextFormatter creates a new text formatter
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{writer: w}
}

// Format writes the report in compact text format
func (f *TextFormatter) Format(r *Report) error {
	if r.Healthy() {
		_, _ = fmt.Fprintf(f.writer, "WORKSPACE %s: no issues\n", r.WorkspaceID)
		return nil
	}

	_, _ = fmt.Fprintf(f.writer, "WORKSPACE %s: %d issue(s)\n\n", r.WorkspaceID, len(r.Issues))
	for i, group := range groupByTable(r.Issues) {
		if i > 0 {
			_, _ = fmt.Fprintln(f.writer) // Blank line between tables
		}
		f.formatTable(group)
	}
	return nil
}

func (f *TextFormatter) formatTable(group tableGroup) {
	_, _ = fmt.Fprintf(f.writer, "TABLE %s\n", group.Table)
	for _, issue := range group.Issues {
		_, _ = fmt.Fprintf(f.writer, "  %s\n", formatIssueLine(issue))
	}
}

// formatIssueLine renders "KIND column: message [expected x, found y]".
func formatIssueLine(issue health.Issue) string {
	parts := []string{string(issue.Kind)}
	if issue.ColumnName != "" {
		parts = append(parts, issue.ColumnName)
	}
	line := strings.Join(parts, " ") + ": " + issue.Message

	var detail []string
	if issue.Expected != "" {
		detail = append(detail, "expected "+issue.Expected)
	}
	if found := observed(issue); found != "" {
		detail = append(detail, "found "+found)
	}
	if len(detail) > 0 {
		line += " [" + strings.Join(detail, ", ") + "]"
	}
	return line
}
