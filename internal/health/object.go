package health

import (
	"fmt"
	"sort"

	"github.com/tordrt/wshealth/internal/metadata"
)

// reservedTables are bookkeeping tables that never back an object.
var reservedTables = map[string]bool{
	"_typeorm_migrations": true,
	"schema_migrations":   true,
}

// Inventory is the set of base tables present in a live schema.
type Inventory map[string]bool

// NewInventory builds an inventory from table names.
func NewInventory(tables []string) Inventory {
	inv := make(Inventory, len(tables))
	for _, t := range tables {
		inv[t] = true
	}
	return inv
}

// Has reports whether the table exists.
func (inv Inventory) Has(table string) bool {
	return inv[table]
}

// ObjectReconciler checks objects against the tables backing them.
type ObjectReconciler struct{}

// Check reports the object level issues of one object: a table name
// recorded differently from the computed one, and a missing table.
func (ObjectReconciler) Check(schemaName string, object *metadata.ObjectMetadata, inventory Inventory) []Issue {
	var issues []Issue
	table := metadata.ComputeObjectTargetTable(object)

	if object.TargetTableName != "" && object.TargetTableName != table {
		issue := newIssue(TableNameMismatch, object, table, fmt.Sprintf(
			"object %s records table %q but its computed table is %q",
			object.NameSingular, object.TargetTableName, table))
		issue.Expected = table
		issues = append(issues, issue)
	}

	if !inventory.Has(table) {
		issues = append(issues, newIssue(MissingTable, object, table, fmt.Sprintf(
			"table %s.%s of object %s does not exist", schemaName, table, object.NameSingular)))
	}

	return issues
}

// OrphanTables reports live tables that follow the object table naming
// convention but back no object. Join tables and tables recorded on an
// object are not orphans. Results are sorted by table name.
func (ObjectReconciler) OrphanTables(inventory Inventory, objects []metadata.ObjectMetadata) []Issue {
	known := metadata.JoinTableNames(objects)
	for i := range objects {
		known[metadata.ComputeObjectTargetTable(&objects[i])] = true
		if objects[i].TargetTableName != "" {
			known[objects[i].TargetTableName] = true
		}
	}

	var names []string
	for table := range inventory {
		if known[table] || reservedTables[table] || !metadata.IsConventionalTableName(table) {
			continue
		}
		names = append(names, table)
	}
	sort.Strings(names)

	issues := make([]Issue, 0, len(names))
	for _, table := range names {
		issues = append(issues, newIssue(OrphanTable, nil, table,
			fmt.Sprintf("table %s has no object metadata", table)))
	}
	return issues
}
