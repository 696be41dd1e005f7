package health

import (
	"fmt"

	"github.com/tordrt/wshealth/internal/metadata"
	"github.com/tordrt/wshealth/internal/schema"
	"github.com/tordrt/wshealth/internal/typemap"
)

// systemColumns exist on every object table without being declared.
var systemColumns = map[string]bool{
	"id":        true,
	"createdAt": true,
	"updatedAt": true,
	"deletedAt": true,
}

// FieldReconciler checks declared fields against live columns.
type FieldReconciler struct {
	types *typemap.TypeMap
}

// NewFieldReconciler creates a reconciler using the type map of types.Engine.
func NewFieldReconciler(types *typemap.TypeMap) *FieldReconciler {
	return &FieldReconciler{types: types}
}

// Check compares the fields of object against the live columns of its
// table. Columns named in owned belong to relations and are never orphans.
// Names match case-sensitively.
func (r *FieldReconciler) Check(table string, columns []schema.Column, object *metadata.ObjectMetadata, owned map[string]bool) []Issue {
	live := schema.ColumnsByName(columns)
	declared := make(map[string]bool)

	var issues []Issue
	for _, field := range object.Fields {
		for _, physical := range metadata.PhysicalColumns(field) {
			declared[physical.Name] = true

			col, ok := live[physical.Name]
			if !ok {
				issue := newIssue(MissingColumn, object, table, fmt.Sprintf(
					"column %s.%s of field %s is missing", table, physical.Name, field.Name))
				issue.Field = &physical
				issue.ColumnName = physical.Name
				issues = append(issues, issue)
				continue
			}

			issues = append(issues, r.compare(table, object, field.Name, physical, col)...)
		}
	}

	for _, col := range columns {
		if declared[col.Name] || systemColumns[col.Name] || owned[col.Name] {
			continue
		}
		issue := newIssue(OrphanColumn, object, table, fmt.Sprintf(
			"column %s.%s has no field metadata", table, col.Name))
		issue.ColumnName = col.Name
		issue.Column = &col
		issues = append(issues, issue)
	}

	return issues
}

func (r *FieldReconciler) compare(table string, object *metadata.ObjectMetadata, fieldName string, physical metadata.FieldMetadata, col schema.Column) []Issue {
	var issues []Issue
	mismatch := func(kind IssueKind, expected, message string) {
		issue := newIssue(kind, object, table, message)
		issue.Field = &physical
		issue.ColumnName = col.Name
		issue.Column = &col
		issue.Expected = expected
		issues = append(issues, issue)
	}

	if !r.types.Matches(physical.Type, col) {
		want, _ := r.types.Resolve(physical.Type)
		mismatch(ColumnTypeMismatch, want, fmt.Sprintf(
			"column %s.%s of field %s is %s, expected %s for %s",
			table, col.Name, fieldName, col.Type, want, physical.Type))
	}

	if physical.IsNullable != col.Nullable {
		mismatch(ColumnNullabilityMismatch, nullability(physical.IsNullable), fmt.Sprintf(
			"column %s.%s of field %s is %s, expected %s",
			table, col.Name, fieldName, nullability(col.Nullable), nullability(physical.IsNullable)))
	}

	if !typemap.DefaultsEqual(r.types.Engine, physical.DefaultValue, col.DefaultValue) {
		want := typemap.NormalizeDefault(r.types.Engine, physical.DefaultValue)
		mismatch(ColumnDefaultMismatch, want, fmt.Sprintf(
			"column %s.%s of field %s defaults to %q, expected %q",
			table, col.Name, fieldName, typemap.NormalizeDefault(r.types.Engine, col.DefaultValue), want))
	}

	return issues
}

func nullability(nullable bool) string {
	if nullable {
		return "nullable"
	}
	return "not null"
}
