// Package migration models workspace schema migrations, stores them and
// runs the pending ones against tenant databases.
package migration

import (
	"time"

	"github.com/google/uuid"

	"github.com/tordrt/wshealth/internal/metadata"
)

// TableActionKind is what a migration does to a table
type TableActionKind string

const (
	TableCreate TableActionKind = "create"
	TableAlter  TableActionKind = "alter"
	TableDrop   TableActionKind = "drop"
)

// ColumnActionKind is what a migration does to a column
type ColumnActionKind string

const (
	ColumnCreate           ColumnActionKind = "create"
	ColumnAlter            ColumnActionKind = "alter"
	ColumnDrop             ColumnActionKind = "drop"
	ColumnCreateForeignKey ColumnActionKind = "create_foreign_key"
)

// AlterKind names the aspect of a column an alter action changes
type AlterKind string

const (
	AlterType        AlterKind = "type"
	AlterNullability AlterKind = "nullability"
	AlterDefault     AlterKind = "default"
)

// ColumnAction is one column change. ColumnType is the declared field type;
// dialects resolve it to an engine type when rendering. Alter actions carry
// the full desired definition, Alter says which part of it changes.
type ColumnAction struct {
	Action               ColumnActionKind   `json:"action"`
	ColumnName           string             `json:"columnName"`
	ColumnType           metadata.FieldType `json:"columnType,omitempty"`
	EnumValues           []string           `json:"enumValues,omitempty"`
	IsNullable           bool               `json:"isNullable"`
	DefaultValue         *string            `json:"defaultValue,omitempty"`
	Alter                AlterKind          `json:"alter,omitempty"`
	ReferencedTableName  string             `json:"referencedTableName,omitempty"`
	ReferencedColumnName string             `json:"referencedColumnName,omitempty"`
	OnDelete             string             `json:"onDelete,omitempty"`
}

// TableAction groups the column changes of one table
type TableAction struct {
	Name    string          `json:"name"`
	Action  TableActionKind `json:"action"`
	Columns []ColumnAction  `json:"columns,omitempty"`
}

// State of a migration record
type State string

const (
	Pending  State = "pending"
	Executed State = "executed"
)

// WorkspaceMigration is a durable, ordered batch of schema changes for one
// workspace. Records are only ever appended; the runner is the only writer
// of AppliedAt.
type WorkspaceMigration struct {
	ID          uuid.UUID     `json:"id"`
	WorkspaceID string        `json:"workspaceId"`
	Name        string        `json:"name"`
	IsCustom    bool          `json:"isCustom"`
	Actions     []TableAction `json:"migrations"`
	CreatedAt   time.Time     `json:"createdAt"`
	AppliedAt   *time.Time    `json:"appliedAt,omitempty"`
}

// State reports whether the migration has been executed
func (m *WorkspaceMigration) State() State {
	if m.AppliedAt == nil {
		return Pending
	}
	return Executed
}
