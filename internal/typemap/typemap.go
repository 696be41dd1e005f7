// Package typemap holds the canonical SQL representation of every declared
// field type, per database engine.
package typemap

import (
	"fmt"
	"strings"

	"github.com/tordrt/wshealth/internal/metadata"
	"github.com/tordrt/wshealth/internal/schema"
)

// Engine identifies a database engine
type Engine string

const (
	Postgres Engine = "postgres"
	MySQL    Engine = "mysql"
	SQLite   Engine = "sqlite"
)

// enumType marks field types stored in a native enumerated type.
const enumType = "enum"

// TypeMap maps declared field types to SQL column types for one engine.
type TypeMap struct {
	Engine   Engine
	Mappings map[metadata.FieldType]string
}

// DefaultPostgres returns the PostgreSQL mapping. Type names are the ones
// the introspector reports after normalization.
func DefaultPostgres() *TypeMap {
	return &TypeMap{
		Engine: Postgres,
		Mappings: map[metadata.FieldType]string{
			metadata.FieldTypeUUID:     "uuid",
			metadata.FieldTypeText:     "text",
			metadata.FieldTypeEmail:    "text",
			metadata.FieldTypePhone:    "text",
			metadata.FieldTypeNumber:   "double precision",
			metadata.FieldTypeNumeric:  "numeric",
			metadata.FieldTypeBoolean:  "boolean",
			metadata.FieldTypeDateTime: "timestamptz",
			metadata.FieldTypeDate:     "date",
			metadata.FieldTypeRating:   enumType,
			metadata.FieldTypeSelect:   enumType,
			metadata.FieldTypePosition: "double precision",
			metadata.FieldTypeRawJSON:  "jsonb",
		},
	}
}

// DefaultMySQL returns the MySQL mapping, using column_type spelling.
func DefaultMySQL() *TypeMap {
	return &TypeMap{
		Engine: MySQL,
		Mappings: map[metadata.FieldType]string{
			metadata.FieldTypeUUID:     "char(36)",
			metadata.FieldTypeText:     "text",
			metadata.FieldTypeEmail:    "text",
			metadata.FieldTypePhone:    "text",
			metadata.FieldTypeNumber:   "double",
			metadata.FieldTypeNumeric:  "decimal(38,10)",
			metadata.FieldTypeBoolean:  "tinyint(1)",
			metadata.FieldTypeDateTime: "datetime(6)",
			metadata.FieldTypeDate:     "date",
			metadata.FieldTypeRating:   enumType,
			metadata.FieldTypeSelect:   enumType,
			metadata.FieldTypePosition: "double",
			metadata.FieldTypeRawJSON:  "json",
		},
	}
}

// DefaultSQLite returns the SQLite mapping. SQLite keeps declared types
// verbatim, so these are also what PRAGMA table_info reports back.
func DefaultSQLite() *TypeMap {
	return &TypeMap{
		Engine: SQLite,
		Mappings: map[metadata.FieldType]string{
			metadata.FieldTypeUUID:     "TEXT",
			metadata.FieldTypeText:     "TEXT",
			metadata.FieldTypeEmail:    "TEXT",
			metadata.FieldTypePhone:    "TEXT",
			metadata.FieldTypeNumber:   "REAL",
			metadata.FieldTypeNumeric:  "NUMERIC",
			metadata.FieldTypeBoolean:  "BOOLEAN",
			metadata.FieldTypeDateTime: "DATETIME",
			metadata.FieldTypeDate:     "DATE",
			metadata.FieldTypeRating:   "TEXT",
			metadata.FieldTypeSelect:   "TEXT",
			metadata.FieldTypePosition: "REAL",
			metadata.FieldTypeRawJSON:  "JSON",
		},
	}
}

// ForEngine returns the default mapping for an engine.
func ForEngine(e Engine) (*TypeMap, error) {
	switch e {
	case Postgres:
		return DefaultPostgres(), nil
	case MySQL:
		return DefaultMySQL(), nil
	case SQLite:
		return DefaultSQLite(), nil
	default:
		return nil, fmt.Errorf("unsupported engine: %s", e)
	}
}

// Resolve returns the SQL type of a physical field. Composite and relation
// types have no single column and are rejected.
func (m *TypeMap) Resolve(ft metadata.FieldType) (string, error) {
	t, ok := m.Mappings[ft]
	if !ok {
		return "", fmt.Errorf("no %s column type for field type %s", m.Engine, ft)
	}
	return t, nil
}

// Matches reports whether a live column is the canonical representation
// of the declared field type.
func (m *TypeMap) Matches(ft metadata.FieldType, col schema.Column) bool {
	want, ok := m.Mappings[ft]
	if !ok {
		return false
	}

	live := strings.ToLower(strings.TrimSpace(col.Type))
	if want == enumType {
		switch m.Engine {
		case Postgres:
			return len(col.EnumValues) > 0
		case MySQL:
			return strings.HasPrefix(live, "enum(")
		}
	}

	if live == strings.ToLower(want) {
		return true
	}
	return m.Engine == MySQL && live == "datetime" && want == "datetime(6)"
}

// EnumTypeName names the PostgreSQL enum type backing a column.
func EnumTypeName(table, column string) string {
	return strings.ToLower(table+"_"+column) + "_enum"
}
