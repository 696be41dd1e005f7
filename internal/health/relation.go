package health

import (
	"fmt"

	"github.com/tordrt/wshealth/internal/metadata"
	"github.com/tordrt/wshealth/internal/schema"
)

// TableSnapshot is the live state fetched for one object: its table and
// the join tables of the many-to-many relations it declares.
type TableSnapshot struct {
	Name        string
	Exists      bool
	Columns     []schema.Column
	ForeignKeys []schema.ForeignKey
	// JoinTables holds the columns of every existing join table, by name.
	JoinTables map[string][]schema.Column
}

// RelationReconciler checks declared relations. It works on fetched data
// only and needs the whole object collection, since a relation spans two
// objects.
type RelationReconciler struct{}

// Check reports the relation issues of object. Relations are reported on
// the object that declares them when dangling, and on the object holding
// the foreign key otherwise. Foreign key checks are skipped when the table
// of object does not exist.
func (RelationReconciler) Check(snapshot TableSnapshot, objects []metadata.ObjectMetadata, object *metadata.ObjectMetadata) []Issue {
	var issues []Issue

	for _, rel := range object.Relations {
		if _, _, ok := metadata.Endpoints(objects, rel); ok {
			continue
		}
		issue := newIssue(DanglingRelation, object, snapshot.Name, fmt.Sprintf(
			"relation %s of object %s points from %q to %q, which do not both exist",
			rel.ID, object.NameSingular, rel.FromObjectMetadataID, rel.ToObjectMetadataID))
		issue.Relation = &rel
		issues = append(issues, issue)
	}

	if snapshot.Exists {
		live := schema.ColumnsByName(snapshot.Columns)
		for _, ref := range metadata.OwnedForeignKeys(objects, object) {
			rel := ref.Relation
			if _, ok := live[ref.ColumnName]; !ok {
				issue := newIssue(MissingForeignKeyColumn, object, snapshot.Name, fmt.Sprintf(
					"foreign key column %s.%s of relation %s is missing", snapshot.Name, ref.ColumnName, rel.ID))
				issue.Relation = &rel
				issue.ColumnName = ref.ColumnName
				issue.Expected = ref.TargetTable
				issues = append(issues, issue)
				continue
			}

			if !hasForeignKey(snapshot.ForeignKeys, ref.ColumnName, ref.TargetTable) {
				col := live[ref.ColumnName]
				issue := newIssue(MissingForeignKeyConstraint, object, snapshot.Name, fmt.Sprintf(
					"column %s.%s of relation %s does not reference %s", snapshot.Name, ref.ColumnName, rel.ID, ref.TargetTable))
				issue.Relation = &rel
				issue.ColumnName = ref.ColumnName
				issue.Column = &col
				issue.Expected = ref.TargetTable
				issues = append(issues, issue)
			}
		}
	}

	for _, ref := range metadata.JoinTables(objects, object) {
		rel := ref.Relation
		columns, ok := snapshot.JoinTables[ref.TableName]
		if !ok {
			issue := newIssue(BrokenJoinTable, object, ref.TableName, fmt.Sprintf(
				"join table %s of relation %s does not exist", ref.TableName, rel.ID))
			issue.Relation = &rel
			issues = append(issues, issue)
			continue
		}

		live := schema.ColumnsByName(columns)
		for _, name := range []string{ref.FromColumn, ref.ToColumn} {
			if _, ok := live[name]; ok {
				continue
			}
			issue := newIssue(BrokenJoinTable, object, ref.TableName, fmt.Sprintf(
				"join table %s of relation %s is missing column %s", ref.TableName, rel.ID, name))
			issue.Relation = &rel
			issue.ColumnName = name
			issues = append(issues, issue)
		}
	}

	return issues
}

func hasForeignKey(fks []schema.ForeignKey, column, target string) bool {
	for _, fk := range fks {
		if fk.SourceColumn == column && fk.TargetTable == target {
			return true
		}
	}
	return false
}
