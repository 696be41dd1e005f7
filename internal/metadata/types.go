// Package metadata holds the declarative workspace model: objects, fields,
// relations and the data source each workspace lives in.
package metadata

import (
	"fmt"
	"time"
)

// FieldType is the declared semantic type of a field
type FieldType string

const (
	FieldTypeUUID     FieldType = "UUID"
	FieldTypeText     FieldType = "TEXT"
	FieldTypeEmail    FieldType = "EMAIL"
	FieldTypePhone    FieldType = "PHONE"
	FieldTypeNumber   FieldType = "NUMBER"
	FieldTypeNumeric  FieldType = "NUMERIC"
	FieldTypeBoolean  FieldType = "BOOLEAN"
	FieldTypeDateTime FieldType = "DATE_TIME"
	FieldTypeDate     FieldType = "DATE"
	FieldTypeRating   FieldType = "RATING"
	FieldTypeSelect   FieldType = "SELECT"
	FieldTypePosition FieldType = "POSITION"
	FieldTypeRawJSON  FieldType = "RAW_JSON"
	FieldTypeRelation FieldType = "RELATION"
	FieldTypeLink     FieldType = "LINK"
	FieldTypeCurrency FieldType = "CURRENCY"
	FieldTypeFullName FieldType = "FULL_NAME"
)

// AllFieldTypes lists every declared field type.
var AllFieldTypes = []FieldType{
	FieldTypeUUID,
	FieldTypeText,
	FieldTypeEmail,
	FieldTypePhone,
	FieldTypeNumber,
	FieldTypeNumeric,
	FieldTypeBoolean,
	FieldTypeDateTime,
	FieldTypeDate,
	FieldTypeRating,
	FieldTypeSelect,
	FieldTypePosition,
	FieldTypeRawJSON,
	FieldTypeRelation,
	FieldTypeLink,
	FieldTypeCurrency,
	FieldTypeFullName,
}

// ParseFieldType validates a field type name.
func ParseFieldType(s string) (FieldType, error) {
	for _, t := range AllFieldTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown field type %q", s)
}

// IsComposite reports whether the type is stored across several columns.
func (t FieldType) IsComposite() bool {
	switch t {
	case FieldTypeLink, FieldTypeCurrency, FieldTypeFullName:
		return true
	}
	return false
}

// IsEnum reports whether the column is backed by an enumerated type.
func (t FieldType) IsEnum() bool {
	return t == FieldTypeSelect || t == FieldTypeRating
}

// FieldMetadata is a declared field of an object.
type FieldMetadata struct {
	ID           string    `yaml:"id" json:"id"`
	Name         string    `yaml:"name" json:"name"`
	Type         FieldType `yaml:"type" json:"type"`
	IsNullable   bool      `yaml:"nullable" json:"isNullable"`
	DefaultValue *string   `yaml:"default,omitempty" json:"defaultValue,omitempty"`
	Options      []string  `yaml:"options,omitempty" json:"options,omitempty"`
	IsSystem     bool      `yaml:"system,omitempty" json:"isSystem,omitempty"`
}

// RelationKind is the cardinality of a relation, read from the From side.
type RelationKind string

const (
	OneToMany  RelationKind = "ONE_TO_MANY"
	ManyToOne  RelationKind = "MANY_TO_ONE"
	ManyToMany RelationKind = "MANY_TO_MANY"
)

// ParseRelationKind validates a relation kind name.
func ParseRelationKind(s string) (RelationKind, error) {
	switch RelationKind(s) {
	case OneToMany, ManyToOne, ManyToMany:
		return RelationKind(s), nil
	}
	return "", fmt.Errorf("unknown relation kind %q", s)
}

// RelationMetadata is an association declared on its From object.
//
// For ONE_TO_MANY the foreign key column lives on the To object, for
// MANY_TO_ONE it lives on the From object, and MANY_TO_MANY goes through
// a join table holding one column for each side.
type RelationMetadata struct {
	ID                   string       `yaml:"id" json:"id"`
	Kind                 RelationKind `yaml:"kind" json:"kind"`
	FromObjectMetadataID string       `yaml:"from" json:"fromObjectMetadataId"`
	ToObjectMetadataID   string       `yaml:"to" json:"toObjectMetadataId"`
	ForeignKeyColumnName string       `yaml:"foreign_key,omitempty" json:"foreignKeyColumnName,omitempty"`
	JoinTableName        string       `yaml:"join_table,omitempty" json:"joinTableName,omitempty"`
	JoinFromColumnName   string       `yaml:"join_from_column,omitempty" json:"joinFromColumnName,omitempty"`
	JoinToColumnName     string       `yaml:"join_to_column,omitempty" json:"joinToColumnName,omitempty"`
	OnDelete             string       `yaml:"on_delete,omitempty" json:"onDelete,omitempty"`
}

// ObjectMetadata is a declared entity type of a workspace.
type ObjectMetadata struct {
	ID           string `yaml:"id" json:"id"`
	WorkspaceID  string `yaml:"workspace_id" json:"workspaceId"`
	NameSingular string `yaml:"name" json:"nameSingular"`
	IsCustom     bool   `yaml:"custom,omitempty" json:"isCustom"`
	// TargetTableName is the table name as recorded when the object was
	// created. Empty means it has never been recorded.
	TargetTableName string             `yaml:"target_table,omitempty" json:"targetTableName,omitempty"`
	Fields          []FieldMetadata    `yaml:"fields" json:"fields"`
	Relations       []RelationMetadata `yaml:"relations,omitempty" json:"relations,omitempty"`
}

// DataSourceMetadata locates the database holding a workspace schema.
type DataSourceMetadata struct {
	ID          string    `yaml:"id" json:"id"`
	WorkspaceID string    `yaml:"workspace_id" json:"workspaceId"`
	URL         string    `yaml:"url" json:"url"`
	Schema      string    `yaml:"schema,omitempty" json:"schema,omitempty"`
	CreatedAt   time.Time `yaml:"created_at,omitempty" json:"createdAt"`
}

// Field returns the field with the given name.
func (o *ObjectMetadata) Field(name string) (*FieldMetadata, bool) {
	for i := range o.Fields {
		if o.Fields[i].Name == name {
			return &o.Fields[i], true
		}
	}
	return nil, false
}

// FindObject returns the object with the given id.
func FindObject(objects []ObjectMetadata, id string) (*ObjectMetadata, bool) {
	for i := range objects {
		if objects[i].ID == id {
			return &objects[i], true
		}
	}
	return nil, false
}

var ratingValues = []string{"RATING_1", "RATING_2", "RATING_3", "RATING_4", "RATING_5"}

// EnumValues returns the allowed values of an enum field. Rating fields
// without explicit options use the five standard ratings.
func (f *FieldMetadata) EnumValues() []string {
	if !f.Type.IsEnum() {
		return nil
	}
	if len(f.Options) == 0 && f.Type == FieldTypeRating {
		return append([]string(nil), ratingValues...)
	}
	return append([]string(nil), f.Options...)
}
