// Package health compares the metadata model of a workspace against its
// live schema and turns the differences into typed issues.
package health

import (
	"fmt"

	"github.com/tordrt/wshealth/internal/metadata"
	"github.com/tordrt/wshealth/internal/schema"
)

// Category is the layer of the metadata model an issue belongs to
type Category string

const (
	CategoryObject   Category = "object"
	CategoryField    Category = "field"
	CategoryRelation Category = "relation"
)

// IssueKind identifies a detected divergence
type IssueKind string

const (
	MissingTable      IssueKind = "MISSING_TABLE"
	OrphanTable       IssueKind = "ORPHAN_TABLE"
	TableNameMismatch IssueKind = "TABLE_NAME_MISMATCH"

	MissingColumn             IssueKind = "MISSING_COLUMN"
	OrphanColumn              IssueKind = "ORPHAN_COLUMN"
	ColumnTypeMismatch        IssueKind = "COLUMN_TYPE_MISMATCH"
	ColumnNullabilityMismatch IssueKind = "COLUMN_NULLABILITY_MISMATCH"
	ColumnDefaultMismatch     IssueKind = "COLUMN_DEFAULT_MISMATCH"

	MissingForeignKeyColumn     IssueKind = "MISSING_FOREIGN_KEY_COLUMN"
	MissingForeignKeyConstraint IssueKind = "MISSING_FOREIGN_KEY_CONSTRAINT"
	DanglingRelation            IssueKind = "DANGLING_RELATION"
	BrokenJoinTable             IssueKind = "BROKEN_JOIN_TABLE"
)

// AllIssueKinds lists every issue kind.
var AllIssueKinds = []IssueKind{
	MissingTable,
	OrphanTable,
	TableNameMismatch,
	MissingColumn,
	OrphanColumn,
	ColumnTypeMismatch,
	ColumnNullabilityMismatch,
	ColumnDefaultMismatch,
	MissingForeignKeyColumn,
	MissingForeignKeyConstraint,
	DanglingRelation,
	BrokenJoinTable,
}

// Category returns the layer of the kind. It panics on a kind that is not
// part of the closed set, so new kinds cannot slip past it.
func (k IssueKind) Category() Category {
	switch k {
	case MissingTable, OrphanTable, TableNameMismatch:
		return CategoryObject
	case MissingColumn, OrphanColumn, ColumnTypeMismatch, ColumnNullabilityMismatch, ColumnDefaultMismatch:
		return CategoryField
	case MissingForeignKeyColumn, MissingForeignKeyConstraint, DanglingRelation, BrokenJoinTable:
		return CategoryRelation
	}
	panic(fmt.Sprintf("health: unknown issue kind %q", string(k)))
}

// Issue is one divergence between the metadata model and the live schema.
// Issues are snapshots; nothing refers back to them after a check returns.
type Issue struct {
	Category         Category                   `json:"category"`
	Kind             IssueKind                  `json:"kind"`
	ObjectMetadataID string                     `json:"objectMetadataId,omitempty"`
	ObjectName       string                     `json:"objectName,omitempty"`
	TableName        string                     `json:"tableName"`
	Field            *metadata.FieldMetadata    `json:"field,omitempty"`
	Relation         *metadata.RelationMetadata `json:"relation,omitempty"`
	ColumnName       string                     `json:"columnName,omitempty"`
	// Column is the live column as found, when there is one.
	Column   *schema.Column `json:"column,omitempty"`
	Expected string         `json:"expected,omitempty"`
	Message  string         `json:"message"`
}

func newIssue(kind IssueKind, object *metadata.ObjectMetadata, table, message string) Issue {
	issue := Issue{
		Category:  kind.Category(),
		Kind:      kind,
		TableName: table,
		Message:   message,
	}
	if object != nil {
		issue.ObjectMetadataID = object.ID
		issue.ObjectName = object.NameSingular
	}
	return issue
}
