package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tordrt/wshealth/internal/schema"
)

// SQLiteIntrospector reads the structure of a SQLite database. SQLite has
// no schemas: the schema name is ignored and the whole file is treated as
// the workspace schema.
type SQLiteIntrospector struct {
	*SQLiteClient
}

// NewSQLiteIntrospector creates a new SQLite introspector
func NewSQLiteIntrospector(client *SQLiteClient) *SQLiteIntrospector {
	return &SQLiteIntrospector{SQLiteClient: client}
}

// quoteSQLiteIdent quotes a name for use inside a PRAGMA call
func quoteSQLiteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// TableNames returns every user table
func (e *SQLiteIntrospector) TableNames(ctx context.Context, _ string) ([]string, error) {
	query := `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tableList []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, err
		}
		tableList = append(tableList, tableName)
	}

	return tableList, rows.Err()
}

// Columns returns the columns of a table, or nothing when it does not exist
func (e *SQLiteIntrospector) Columns(ctx context.Context, _ string, tableName string) ([]schema.Column, error) {
	query := fmt.Sprintf("PRAGMA table_info(%s)", quoteSQLiteIdent(tableName))

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []schema.Column

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var defaultValue sql.NullString

		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultValue, &pk); err != nil {
			return nil, err
		}

		col := schema.Column{
			Name:     name,
			Type:     colType,
			Nullable: notNull == 0,
		}

		if defaultValue.Valid {
			col.DefaultValue = &defaultValue.String
		}

		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return columns, nil
}

// ForeignKeys returns the foreign keys declared on a table
func (e *SQLiteIntrospector) ForeignKeys(ctx context.Context, _ string, tableName string) ([]schema.ForeignKey, error) {
	query := fmt.Sprintf("PRAGMA foreign_key_list(%s)", quoteSQLiteIdent(tableName))

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []schema.ForeignKey

	for rows.Next() {
		var id, seq int
		var targetTable, fromCol, onUpdate, onDelete, match string
		var toCol sql.NullString

		if err := rows.Scan(&id, &seq, &targetTable, &fromCol, &toCol, &onUpdate, &onDelete, &match); err != nil {
			return nil, err
		}

		fk := schema.ForeignKey{
			Name:         fmt.Sprintf("fk_%s_%d", tableName, id),
			SourceColumn: fromCol,
			TargetTable:  targetTable,
			TargetColumn: toCol.String,
			OnDelete:     onDelete,
		}
		// A NULL target column references the primary key
		if !toCol.Valid {
			fk.TargetColumn = "id"
		}

		fks = append(fks, fk)
	}

	return fks, rows.Err()
}
