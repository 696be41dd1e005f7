package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tordrt/wshealth/internal/typemap"
)

func newTestSQLite(t *testing.T, statements ...string) *SQLiteIntrospector {
	t.Helper()

	ctx := context.Background()
	client, err := NewSQLiteClient(ctx, filepath.Join(t.TempDir(), "workspace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	for _, stmt := range statements {
		_, err := client.GetDB().ExecContext(ctx, stmt)
		require.NoError(t, err, stmt)
	}

	return NewSQLiteIntrospector(client)
}

func TestSQLiteIntrospector(t *testing.T) {
	ctx := context.Background()
	in := newTestSQLite(t,
		`CREATE TABLE company (id TEXT PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE person (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT 'anonymous',
			email TEXT UNIQUE,
			age REAL,
			companyId TEXT REFERENCES company(id) ON DELETE SET NULL
		)`,
	)

	require.Equal(t, typemap.SQLite, in.Engine())

	tables, err := in.TableNames(ctx, "ignored")
	require.NoError(t, err)
	require.Equal(t, []string{"company", "person"}, tables)

	columns, err := in.Columns(ctx, "ignored", "person")
	require.NoError(t, err)
	require.Len(t, columns, 5)

	require.Equal(t, "name", columns[1].Name)
	require.Equal(t, "TEXT", columns[1].Type)
	require.False(t, columns[1].Nullable)
	require.NotNil(t, columns[1].DefaultValue)
	require.Equal(t, "'anonymous'", *columns[1].DefaultValue)

	require.Equal(t, "email", columns[2].Name)
	require.True(t, columns[2].Nullable)

	require.Equal(t, "REAL", columns[3].Type)
	require.True(t, columns[3].Nullable)
	require.Nil(t, columns[3].DefaultValue)

	fks, err := in.ForeignKeys(ctx, "ignored", "person")
	require.NoError(t, err)
	require.Len(t, fks, 1)
	require.Equal(t, "companyId", fks[0].SourceColumn)
	require.Equal(t, "company", fks[0].TargetTable)
	require.Equal(t, "id", fks[0].TargetColumn)
	require.Equal(t, "SET NULL", fks[0].OnDelete)
}

func TestSQLiteIntrospectorMissingTable(t *testing.T) {
	ctx := context.Background()
	in := newTestSQLite(t)

	columns, err := in.Columns(ctx, "ignored", "nope")
	require.NoError(t, err)
	require.Empty(t, columns)

	fks, err := in.ForeignKeys(ctx, "ignored", "nope")
	require.NoError(t, err)
	require.Empty(t, fks)
}

func TestSQLiteExecMigrationRollsBack(t *testing.T) {
	ctx := context.Background()
	in := newTestSQLite(t, `CREATE TABLE person (id TEXT PRIMARY KEY)`)

	err := in.ExecMigration(ctx, []string{
		`ALTER TABLE "person" ADD COLUMN "age" REAL`,
		`ALTER TABLE "missing" ADD COLUMN "x" TEXT`,
	})
	require.Error(t, err)

	columns, err := in.Columns(ctx, "", "person")
	require.NoError(t, err)
	require.Len(t, columns, 1, "first statement must be rolled back")
}
