package formatter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

const (
	formatMarkdown = "markdown"
	formatText     = "text"
	formatJSON     = "json"
)

// Formats lists the accepted output formats.
var Formats = []string{formatText, formatMarkdown, formatJSON}

// Formatter renders a report.
type Formatter interface {
	Format(r *Report) error
}

// New returns the single-stream formatter for the given format name.
func New(format string, w io.Writer) (Formatter, error) {
	switch format {
	case formatText, "":
		return NewTextFormatter(w), nil
	case formatMarkdown:
		return NewMarkdownFormatter(w), nil
	case formatJSON:
		return NewJSONFormatter(w), nil
	}
	return nil, fmt.Errorf("invalid format: %s (must be 'text', 'markdown' or 'json')", format)
}

// MultiFileFormatter writes a report to multiple files in a directory
type MultiFileFormatter struct {
	OutputDir    string
	OutputFormat string // "text" or "markdown"
}

// NewMultiFileFormatter creates a new multi-file formatter
func NewMultiFileFormatter(outputDir, format string) *MultiFileFormatter {
	return &MultiFileFormatter{
		OutputDir:    outputDir,
		OutputFormat: format,
	}
}

// Format writes an overview file plus one file per affected table
func (f *MultiFileFormatter) Format(r *Report) error {
	if f.OutputFormat == formatJSON {
		return fmt.Errorf("json output cannot be split across files")
	}
	if err := os.MkdirAll(f.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	groups := groupByTable(r.Issues)
	if err := f.writeOverview(r, groups); err != nil {
		return fmt.Errorf("failed to write overview: %w", err)
	}

	for _, group := range groups {
		if err := f.writeTableFile(group); err != nil {
			return fmt.Errorf("failed to write table file for %s: %w", group.Table, err)
		}
	}
	return nil
}

func (f *MultiFileFormatter) writeOverview(r *Report, groups []tableGroup) error {
	file, err := os.Create(filepath.Join(f.OutputDir, "_overview"+f.getFileExtension()))
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	sorted := make([]tableGroup, len(groups))
	copy(sorted, groups)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Table < sorted[j].Table
	})

	if f.OutputFormat == formatMarkdown {
		_, _ = fmt.Fprintf(file, "# Health Overview: %s\n\n", r.WorkspaceID)
		_, _ = fmt.Fprintf(file, "Each affected table has a file: `<table_name>%s`\n\n", f.getFileExtension())
		_, _ = fmt.Fprintf(file, "## Tables\n\n")
		for _, group := range sorted {
			_, _ = fmt.Fprintf(file, "- **%s** (%d issue(s))\n", group.Table, len(group.Issues))
		}
		return nil
	}

	_, _ = fmt.Fprintf(file, "HEALTH OVERVIEW %s\n", r.WorkspaceID)
	_, _ = fmt.Fprintf(file, "Each affected table has a file: <table_name>%s\n\n", f.getFileExtension())
	for _, group := range sorted {
		_, _ = fmt.Fprintf(file, "%s (%d)\n", group.Table, len(group.Issues))
	}
	return nil
}

func (f *MultiFileFormatter) writeTableFile(group tableGroup) error {
	file, err := os.Create(filepath.Join(f.OutputDir, fileName(group.Table)+f.getFileExtension()))
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	if f.OutputFormat == formatMarkdown {
		NewMarkdownFormatter(file).FormatTable(group.Table, group.Issues)
		return nil
	}
	NewTextFormatter(file).formatTable(group)
	return nil
}

// fileName keeps table names usable as file names.
func fileName(table string) string {
	if table == "" {
		return "_unknown"
	}
	return filepath.Base(table)
}

func (f *MultiFileFormatter) getFileExtension() string {
	if f.OutputFormat == formatMarkdown {
		return ".md"
	}
	return ".txt"
}
