package formatter

import (
	"fmt"
	"io"

	"github.com/tordrt/wshealth/internal/health"
)

// MarkdownFormatter formats issues as markdown
type MarkdownFormatter struct {
	writer io.Writer
}

// NewMarkdownFormatter creates a new markdown formatter
func NewMarkdownFormatter(w io.Writer) *MarkdownFormatter {
	return &MarkdownFormatter{writer: w}
}

// Format writes the report in markdown format
func (f *MarkdownFormatter) Format(r *Report) error {
	_, _ = fmt.Fprintf(f.writer, "# Workspace Health: %s\n\n", r.WorkspaceID)
	if r.Healthy() {
		_, _ = fmt.Fprintln(f.writer, "No issues found.")
		return nil
	}

	f.formatSummary(r)
	for _, group := range groupByTable(r.Issues) {
		f.formatTable(group.Table, group.Issues)
	}
	return nil
}

// FormatTable formats the issues of a single table (exported for use by multifile formatter)
func (f *MarkdownFormatter) FormatTable(table string, issues []health.Issue) {
	f.formatTable(table, issues)
}

func (f *MarkdownFormatter) formatSummary(r *Report) {
	counts := countByCategory(r.Issues)
	_, _ = fmt.Fprintln(f.writer, "| Category | Issues |")
	_, _ = fmt.Fprintln(f.writer, "|----------|--------|")
	for _, category := range []health.Category{health.CategoryObject, health.CategoryField, health.CategoryRelation} {
		_, _ = fmt.Fprintf(f.writer, "| %s | %d |\n", category, counts[category])
	}
	_, _ = fmt.Fprintln(f.writer)
}

func (f *MarkdownFormatter) formatTable(table string, issues []health.Issue) {
	_, _ = fmt.Fprintf(f.writer, "## %s\n\n", table)
	for _, issue := range issues {
		target := ""
		if issue.ColumnName != "" {
			target = fmt.Sprintf(" `%s`", issue.ColumnName)
		}
		_, _ = fmt.Fprintf(f.writer, "- **%s**%s: %s\n", issue.Kind, target, issue.Message)
		if issue.Expected != "" {
			_, _ = fmt.Fprintf(f.writer, "  - expected: `%s`\n", issue.Expected)
		}
		if found := observed(issue); found != "" {
			_, _ = fmt.Fprintf(f.writer, "  - found: `%s`\n", found)
		}
	}
	_, _ = fmt.Fprintln(f.writer)
}
