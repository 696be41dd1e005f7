package wshealth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tordrt/wshealth/internal/db"
)

const testWorkspace = "20202020-1c25-4d02-bf25-6aeccf7ea419"

// setupWorkspace writes a metadata file describing a person object and a
// SQLite workspace database whose person table lacks the age column.
func setupWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	url := "sqlite://" + filepath.Join(dir, "workspace.db")

	conn, err := db.Open(context.Background(), url)
	require.NoError(t, err)
	require.NoError(t, conn.ExecMigration(context.Background(), []string{
		`CREATE TABLE person (id TEXT PRIMARY KEY, name TEXT NOT NULL)`,
	}))
	require.NoError(t, conn.Close())

	doc := fmt.Sprintf(`data_sources:
  - id: ds
    workspace_id: %[1]s
    url: %[2]s
objects:
  - id: person
    workspace_id: %[1]s
    name: person
    fields:
      - id: person-name
        name: name
        type: TEXT
      - id: person-age
        name: age
        type: NUMBER
        nullable: true
`, testWorkspace, url)

	path := filepath.Join(dir, "metadata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func TestCheckAndFix(t *testing.T) {
	ctx := context.Background()
	engine, err := Open(ctx, &Options{MetadataFile: setupWorkspace(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	var buf bytes.Buffer
	issues, err := engine.CheckAndFormat(ctx, testWorkspace, ModeAll, &OutputOptions{Writer: &buf})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	require.Contains(t, buf.String(), "MISSING_COLUMN age")

	report, err := engine.Fix(ctx, testWorkspace, issues, FixAdditive)
	require.NoError(t, err)
	require.NoError(t, report.ExecutionErr)
	require.Equal(t, 1, report.Applied)

	issues, err = engine.Check(ctx, testWorkspace, ModeAll)
	require.NoError(t, err)
	require.Empty(t, issues)
}

func TestCheckUnknownWorkspace(t *testing.T) {
	ctx := context.Background()
	engine, err := Open(ctx, &Options{MetadataFile: setupWorkspace(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	_, err = engine.Check(ctx, "00000000-0000-0000-0000-000000000000", ModeAll)
	require.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestOpenRequiresOneMetadataSource(t *testing.T) {
	tests := []struct {
		name string
		opts *Options
	}{
		{"nil options", nil},
		{"no source", &Options{}},
		{"both sources", &Options{MetadataURL: "postgres://localhost/core", MetadataFile: "metadata.yaml"}},
		{"missing file", &Options{MetadataFile: filepath.Join(t.TempDir(), "missing.yaml")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(context.Background(), tt.opts)
			require.Error(t, err)
		})
	}
}

func TestFormatIssuesToDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "report")
	issues := []Issue{{Kind: "MISSING_TABLE", Category: "object", TableName: "_pet", Message: "table _pet is missing"}}

	require.NoError(t, FormatIssues(testWorkspace, ModeAll, issues, &OutputOptions{OutputDir: dir, Format: "markdown"}))

	overview, err := os.ReadFile(filepath.Join(dir, "_overview.md"))
	require.NoError(t, err)
	require.True(t, strings.Contains(string(overview), "**_pet**"))

	_, err = os.Stat(filepath.Join(dir, "_pet.md"))
	require.NoError(t, err)
}

func TestFormatIssuesInvalidFormat(t *testing.T) {
	err := FormatIssues(testWorkspace, ModeAll, nil, &OutputOptions{Writer: &bytes.Buffer{}, Format: "html"})
	require.Error(t, err)
}
