package metadata

import (
	"fmt"
	"math/big"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

const schemaPrefix = "workspace_"

// SchemaName returns the live schema name of a workspace: the workspace id
// re-encoded in base 36 behind a fixed prefix.
func SchemaName(workspaceID string) (string, error) {
	id, err := uuid.Parse(workspaceID)
	if err != nil {
		return "", fmt.Errorf("invalid workspace id %q: %w", workspaceID, err)
	}

	n := new(big.Int).SetBytes(id[:])
	return schemaPrefix + n.Text(36), nil
}

// ComputeObjectTargetTable derives the table backing an object. Custom
// objects are prefixed with an underscore so they never collide with
// standard ones.
func ComputeObjectTargetTable(object *ObjectMetadata) string {
	name := lowerFirst(object.NameSingular)
	if object.IsCustom {
		return "_" + name
	}
	return name
}

// SubField is one physical column of a composite field.
type SubField struct {
	Suffix string
	Type   FieldType
}

var compositeFields = map[FieldType][]SubField{
	FieldTypeLink: {
		{Suffix: "Label", Type: FieldTypeText},
		{Suffix: "Url", Type: FieldTypeText},
	},
	FieldTypeCurrency: {
		{Suffix: "AmountMicros", Type: FieldTypeNumeric},
		{Suffix: "CurrencyCode", Type: FieldTypeText},
	},
	FieldTypeFullName: {
		{Suffix: "FirstName", Type: FieldTypeText},
		{Suffix: "LastName", Type: FieldTypeText},
	},
}

// PhysicalColumns expands a field into the columns that store it.
// Relation fields have no column of their own and expand to nothing.
func PhysicalColumns(field FieldMetadata) []FieldMetadata {
	if field.Type == FieldTypeRelation {
		return nil
	}

	subs, ok := compositeFields[field.Type]
	if !ok {
		return []FieldMetadata{field}
	}

	out := make([]FieldMetadata, 0, len(subs))
	for _, sub := range subs {
		out = append(out, FieldMetadata{
			ID:         field.ID,
			Name:       field.Name + sub.Suffix,
			Type:       sub.Type,
			IsNullable: true,
			IsSystem:   field.IsSystem,
		})
	}
	return out
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[size:]
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// IsConventionalTableName reports whether a live table name follows the
// naming convention used for object tables.
func IsConventionalTableName(name string) bool {
	name = strings.TrimPrefix(name, "_")
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case i == 0 && r >= 'a' && r <= 'z':
		case i > 0 && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'):
		default:
			return false
		}
	}
	return true
}

// ResolveSchemaName returns the schema recorded on the data source, or the
// derived workspace schema name when none was recorded.
func ResolveSchemaName(ds *DataSourceMetadata, workspaceID string) (string, error) {
	if ds != nil && ds.Schema != "" {
		return ds.Schema, nil
	}
	return SchemaName(workspaceID)
}
