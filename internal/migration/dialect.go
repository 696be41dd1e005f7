package migration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/tordrt/wshealth/internal/metadata"
	"github.com/tordrt/wshealth/internal/typemap"
)

// ErrUnsupported is returned for changes an engine cannot express as DDL.
var ErrUnsupported = errors.New("unsupported by engine")

// Dialect renders a migration as DDL statements for one engine.
type Dialect interface {
	Statements(schemaName string, m WorkspaceMigration) ([]string, error)
}

// DialectFor returns the dialect of an engine.
func DialectFor(e typemap.Engine) (Dialect, error) {
	types, err := typemap.ForEngine(e)
	if err != nil {
		return nil, err
	}

	switch e {
	case typemap.Postgres:
		return &postgresDialect{types: types}, nil
	case typemap.MySQL:
		return &mysqlDialect{types: types}, nil
	case typemap.SQLite:
		return &sqliteDialect{types: types}, nil
	}
	return nil, fmt.Errorf("unsupported engine: %s", e)
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteLiterals(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = quoteLiteral(v)
	}
	return strings.Join(quoted, ", ")
}

func foreignKeyName(table, column string) string {
	return "fk_" + strings.TrimPrefix(table, "_") + "_" + column
}

// defaultExpr returns the default of c once it passes the allowed grammar.
func defaultExpr(c ColumnAction) (string, error) {
	if err := metadata.ValidateDefault(*c.DefaultValue); err != nil {
		return "", fmt.Errorf("column %s: %w", c.ColumnName, err)
	}
	return strings.TrimSpace(*c.DefaultValue), nil
}

func referencedColumn(c ColumnAction) string {
	if c.ReferencedColumnName != "" {
		return c.ReferencedColumnName
	}
	return "id"
}

func onDeleteClause(c ColumnAction) string {
	if c.OnDelete == "" {
		return ""
	}
	return " ON DELETE " + strings.ToUpper(c.OnDelete)
}

// postgresDialect qualifies every name with the workspace schema.
type postgresDialect struct {
	types *typemap.TypeMap
}

func (d *postgresDialect) ident(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}

func (d *postgresDialect) columnType(schemaName, table string, c ColumnAction) (string, error) {
	if c.ColumnType.IsEnum() {
		return d.ident(schemaName, typemap.EnumTypeName(table, c.ColumnName)), nil
	}
	return d.types.Resolve(c.ColumnType)
}

func (d *postgresDialect) createEnum(schemaName, table string, c ColumnAction) string {
	name := d.ident(schemaName, typemap.EnumTypeName(table, c.ColumnName))
	return fmt.Sprintf(
		"DO $$ BEGIN CREATE TYPE %s AS ENUM (%s); EXCEPTION WHEN duplicate_object THEN NULL; END $$",
		name, quoteLiterals(c.EnumValues))
}

func (d *postgresDialect) columnDefinition(schemaName, table string, c ColumnAction) (string, error) {
	colType, err := d.columnType(schemaName, table, c)
	if err != nil {
		return "", err
	}

	def := d.ident(c.ColumnName) + " " + colType
	if !c.IsNullable {
		def += " NOT NULL"
	}
	if c.DefaultValue != nil {
		expr, err := defaultExpr(c)
		if err != nil {
			return "", err
		}
		def += " DEFAULT " + expr
	}
	if c.ReferencedTableName != "" {
		def += fmt.Sprintf(" REFERENCES %s (%s)%s",
			d.ident(schemaName, c.ReferencedTableName), d.ident(referencedColumn(c)), onDeleteClause(c))
	}
	return def, nil
}

func (d *postgresDialect) Statements(schemaName string, m WorkspaceMigration) ([]string, error) {
	var stmts []string

	for _, t := range m.Actions {
		table := d.ident(schemaName, t.Name)

		for _, c := range t.Columns {
			if c.ColumnType.IsEnum() && (c.Action == ColumnCreate || c.Action == ColumnAlter && c.Alter == AlterType) {
				stmts = append(stmts, d.createEnum(schemaName, t.Name, c))
			}
		}

		switch t.Action {
		case TableCreate:
			defs := []string{
				`"id" uuid PRIMARY KEY DEFAULT gen_random_uuid()`,
				`"createdAt" timestamptz NOT NULL DEFAULT now()`,
				`"updatedAt" timestamptz NOT NULL DEFAULT now()`,
				`"deletedAt" timestamptz`,
			}
			for _, c := range t.Columns {
				def, err := d.columnDefinition(schemaName, t.Name, c)
				if err != nil {
					return nil, fmt.Errorf("table %s: %w", t.Name, err)
				}
				defs = append(defs, def)
			}
			stmts = append(stmts, fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", ")))

		case TableDrop:
			stmts = append(stmts, "DROP TABLE "+table)

		case TableAlter:
			for _, c := range t.Columns {
				stmt, err := d.alterColumn(schemaName, t.Name, c)
				if err != nil {
					return nil, fmt.Errorf("table %s column %s: %w", t.Name, c.ColumnName, err)
				}
				stmts = append(stmts, stmt)
			}

		default:
			return nil, fmt.Errorf("unknown table action %q", t.Action)
		}
	}

	return stmts, nil
}

func (d *postgresDialect) alterColumn(schemaName, tableName string, c ColumnAction) (string, error) {
	table := d.ident(schemaName, tableName)
	column := d.ident(c.ColumnName)

	switch c.Action {
	case ColumnCreate:
		def, err := d.columnDefinition(schemaName, tableName, c)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, def), nil

	case ColumnDrop:
		return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, column), nil

	case ColumnCreateForeignKey:
		return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)%s",
			table, d.ident(foreignKeyName(tableName, c.ColumnName)), column,
			d.ident(schemaName, c.ReferencedTableName), d.ident(referencedColumn(c)), onDeleteClause(c)), nil

	case ColumnAlter:
		switch c.Alter {
		case AlterType:
			colType, err := d.columnType(schemaName, tableName, c)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::text::%s",
				table, column, colType, column, colType), nil
		case AlterNullability:
			if c.IsNullable {
				return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL", table, column), nil
			}
			return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", table, column), nil
		case AlterDefault:
			if c.DefaultValue == nil {
				return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", table, column), nil
			}
			expr, err := defaultExpr(c)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", table, column, expr), nil
		}
		return "", fmt.Errorf("unknown alter kind %q", c.Alter)
	}

	return "", fmt.Errorf("unknown column action %q", c.Action)
}

// mysqlDialect treats the workspace schema as a database.
type mysqlDialect struct {
	types *typemap.TypeMap
}

func (d *mysqlDialect) ident(parts ...string) string {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
	}
	return strings.Join(quoted, ".")
}

func (d *mysqlDialect) columnDefinition(c ColumnAction) (string, error) {
	var colType string
	if c.ColumnType.IsEnum() {
		colType = "enum(" + quoteLiterals(c.EnumValues) + ")"
	} else {
		var err error
		if colType, err = d.types.Resolve(c.ColumnType); err != nil {
			return "", err
		}
	}

	def := d.ident(c.ColumnName) + " " + colType
	if c.IsNullable {
		def += " NULL"
	} else {
		def += " NOT NULL"
	}
	if c.DefaultValue != nil {
		expr, err := defaultExpr(c)
		if err != nil {
			return "", err
		}
		def += " DEFAULT (" + expr + ")"
	}
	return def, nil
}

func (d *mysqlDialect) foreignKey(schemaName, tableName string, c ColumnAction) string {
	return fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)%s",
		d.ident(foreignKeyName(tableName, c.ColumnName)), d.ident(c.ColumnName),
		d.ident(schemaName, c.ReferencedTableName), d.ident(referencedColumn(c)), onDeleteClause(c))
}

func (d *mysqlDialect) Statements(schemaName string, m WorkspaceMigration) ([]string, error) {
	var stmts []string

	for _, t := range m.Actions {
		table := d.ident(schemaName, t.Name)

		switch t.Action {
		case TableCreate:
			defs := []string{
				"`id` char(36) NOT NULL PRIMARY KEY DEFAULT (uuid())",
				"`createdAt` datetime(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)",
				"`updatedAt` datetime(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)",
				"`deletedAt` datetime(6) NULL",
			}
			var constraints []string
			for _, c := range t.Columns {
				def, err := d.columnDefinition(c)
				if err != nil {
					return nil, fmt.Errorf("table %s: %w", t.Name, err)
				}
				defs = append(defs, def)
				if c.ReferencedTableName != "" {
					constraints = append(constraints, d.foreignKey(schemaName, t.Name, c))
				}
			}
			stmts = append(stmts, fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(append(defs, constraints...), ", ")))

		case TableDrop:
			stmts = append(stmts, "DROP TABLE "+table)

		case TableAlter:
			for _, c := range t.Columns {
				column := d.ident(c.ColumnName)
				switch c.Action {
				case ColumnCreate:
					def, err := d.columnDefinition(c)
					if err != nil {
						return nil, fmt.Errorf("table %s: %w", t.Name, err)
					}
					stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, def))
					if c.ReferencedTableName != "" {
						stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD %s", table, d.foreignKey(schemaName, t.Name, c)))
					}
				case ColumnDrop:
					stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, column))
				case ColumnCreateForeignKey:
					stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD %s", table, d.foreignKey(schemaName, t.Name, c)))
				case ColumnAlter:
					if c.Alter == AlterDefault {
						if c.DefaultValue == nil {
							stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", table, column))
						} else {
							expr, err := defaultExpr(c)
							if err != nil {
								return nil, fmt.Errorf("table %s: %w", t.Name, err)
							}
							stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT (%s)", table, column, expr))
						}
						continue
					}
					def, err := d.columnDefinition(c)
					if err != nil {
						return nil, fmt.Errorf("table %s: %w", t.Name, err)
					}
					stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", table, def))
				default:
					return nil, fmt.Errorf("unknown column action %q", c.Action)
				}
			}

		default:
			return nil, fmt.Errorf("unknown table action %q", t.Action)
		}
	}

	return stmts, nil
}

// sqliteDialect ignores the schema name. SQLite cannot alter or constrain
// existing columns without rebuilding the table, so those changes are
// rejected with ErrUnsupported.
type sqliteDialect struct {
	types *typemap.TypeMap
}

func (d *sqliteDialect) ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (d *sqliteDialect) columnDefinition(c ColumnAction) (string, error) {
	colType, err := d.types.Resolve(c.ColumnType)
	if err != nil {
		return "", err
	}

	def := d.ident(c.ColumnName) + " " + colType
	if !c.IsNullable {
		def += " NOT NULL"
	}
	if c.DefaultValue != nil {
		expr, err := defaultExpr(c)
		if err != nil {
			return "", err
		}
		def += " DEFAULT " + expr
	}
	if c.ColumnType.IsEnum() && len(c.EnumValues) > 0 {
		def += fmt.Sprintf(" CHECK (%s IN (%s))", d.ident(c.ColumnName), quoteLiterals(c.EnumValues))
	}
	if c.ReferencedTableName != "" {
		def += fmt.Sprintf(" REFERENCES %s (%s)%s",
			d.ident(c.ReferencedTableName), d.ident(referencedColumn(c)), onDeleteClause(c))
	}
	return def, nil
}

func (d *sqliteDialect) Statements(_ string, m WorkspaceMigration) ([]string, error) {
	var stmts []string

	for _, t := range m.Actions {
		table := d.ident(t.Name)

		switch t.Action {
		case TableCreate:
			defs := []string{
				`"id" TEXT PRIMARY KEY NOT NULL`,
				`"createdAt" DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP`,
				`"updatedAt" DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP`,
				`"deletedAt" DATETIME`,
			}
			for _, c := range t.Columns {
				def, err := d.columnDefinition(c)
				if err != nil {
					return nil, fmt.Errorf("table %s: %w", t.Name, err)
				}
				defs = append(defs, def)
			}
			stmts = append(stmts, fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", ")))

		case TableDrop:
			stmts = append(stmts, "DROP TABLE "+table)

		case TableAlter:
			for _, c := range t.Columns {
				switch c.Action {
				case ColumnCreate:
					def, err := d.columnDefinition(c)
					if err != nil {
						return nil, fmt.Errorf("table %s: %w", t.Name, err)
					}
					stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, def))
				case ColumnDrop:
					stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, d.ident(c.ColumnName)))
				case ColumnAlter, ColumnCreateForeignKey:
					return nil, fmt.Errorf("table %s column %s %s: %w", t.Name, c.ColumnName, c.Action, ErrUnsupported)
				default:
					return nil, fmt.Errorf("unknown column action %q", c.Action)
				}
			}

		default:
			return nil, fmt.Errorf("unknown table action %q", t.Action)
		}
	}

	return stmts, nil
}
