package metadata

// ForeignKeyRef is a foreign key column an object's table must carry
// because of a relation.
type ForeignKeyRef struct {
	Relation    RelationMetadata
	ColumnName  string
	TargetTable string
	OnDelete    string
}

// JoinTableRef describes the join table of a MANY_TO_MANY relation.
type JoinTableRef struct {
	Relation   RelationMetadata
	TableName  string
	FromColumn string
	ToColumn   string
	FromTable  string
	ToTable    string
}

// Endpoints resolves both sides of a relation. ok is false when either side
// is missing from the collection.
func Endpoints(objects []ObjectMetadata, rel RelationMetadata) (from, to *ObjectMetadata, ok bool) {
	from, fromOK := FindObject(objects, rel.FromObjectMetadataID)
	to, toOK := FindObject(objects, rel.ToObjectMetadataID)
	return from, to, fromOK && toOK
}

// OwnerID returns the id of the object whose table holds the foreign key.
// MANY_TO_MANY relations have no owner.
func OwnerID(rel RelationMetadata) string {
	switch rel.Kind {
	case OneToMany:
		return rel.ToObjectMetadataID
	case ManyToOne:
		return rel.FromObjectMetadataID
	}
	return ""
}

// ForeignKeyColumn returns the foreign key column name of a relation,
// derived from the referenced object when not declared.
func ForeignKeyColumn(rel RelationMetadata, from, to *ObjectMetadata) string {
	if rel.ForeignKeyColumnName != "" {
		return rel.ForeignKeyColumnName
	}
	switch rel.Kind {
	case OneToMany:
		return lowerFirst(from.NameSingular) + "Id"
	case ManyToOne:
		return lowerFirst(to.NameSingular) + "Id"
	}
	return ""
}

// AllRelations returns every relation of the collection in declaration order.
func AllRelations(objects []ObjectMetadata) []RelationMetadata {
	var out []RelationMetadata
	for _, o := range objects {
		out = append(out, o.Relations...)
	}
	return out
}

// OwnedForeignKeys lists the foreign key columns the table of object must
// carry. Relations with an unresolved endpoint are skipped.
func OwnedForeignKeys(objects []ObjectMetadata, object *ObjectMetadata) []ForeignKeyRef {
	var refs []ForeignKeyRef
	for _, rel := range AllRelations(objects) {
		if rel.Kind == ManyToMany || OwnerID(rel) != object.ID {
			continue
		}
		from, to, ok := Endpoints(objects, rel)
		if !ok {
			continue
		}

		target := to
		if rel.Kind == OneToMany {
			target = from
		}
		refs = append(refs, ForeignKeyRef{
			Relation:    rel,
			ColumnName:  ForeignKeyColumn(rel, from, to),
			TargetTable: ComputeObjectTargetTable(target),
			OnDelete:    onDelete(rel),
		})
	}
	return refs
}

// JoinTable resolves the join table of a MANY_TO_MANY relation.
func JoinTable(rel RelationMetadata, from, to *ObjectMetadata) JoinTableRef {
	ref := JoinTableRef{
		Relation:   rel,
		TableName:  rel.JoinTableName,
		FromColumn: rel.JoinFromColumnName,
		ToColumn:   rel.JoinToColumnName,
		FromTable:  ComputeObjectTargetTable(from),
		ToTable:    ComputeObjectTargetTable(to),
	}
	if ref.TableName == "" {
		ref.TableName = "_" + lowerFirst(from.NameSingular) + "To" + upperFirst(to.NameSingular)
	}
	if ref.FromColumn == "" {
		ref.FromColumn = lowerFirst(from.NameSingular) + "Id"
	}
	if ref.ToColumn == "" {
		ref.ToColumn = lowerFirst(to.NameSingular) + "Id"
	}
	return ref
}

// JoinTables lists the join tables declared on object.
func JoinTables(objects []ObjectMetadata, object *ObjectMetadata) []JoinTableRef {
	var refs []JoinTableRef
	for _, rel := range object.Relations {
		if rel.Kind != ManyToMany {
			continue
		}
		from, to, ok := Endpoints(objects, rel)
		if !ok {
			continue
		}
		refs = append(refs, JoinTable(rel, from, to))
	}
	return refs
}

// JoinTableNames returns the name of every resolvable join table.
func JoinTableNames(objects []ObjectMetadata) map[string]bool {
	names := make(map[string]bool)
	for i := range objects {
		for _, ref := range JoinTables(objects, &objects[i]) {
			names[ref.TableName] = true
		}
	}
	return names
}

func onDelete(rel RelationMetadata) string {
	if rel.OnDelete != "" {
		return rel.OnDelete
	}
	return "SET NULL"
}
