package schema

// Schema represents the live state of one workspace schema
type Schema struct {
	Name   string
	Tables []Table
}

// Table represents a database table
type Table struct {
	Name        string
	Columns     []Column
	ForeignKeys []ForeignKey
}

// Column is a column as found in the live database
type Column struct {
	Name         string
	Type         string
	Nullable     bool
	DefaultValue *string
	EnumValues   []string
}

// ForeignKey represents a foreign key constraint on a single column
type ForeignKey struct {
	Name         string
	SourceColumn string
	TargetTable  string
	TargetColumn string
	OnDelete     string
}

// Table returns the table with the given name.
func (s *Schema) Table(name string) (*Table, bool) {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// ColumnsByName indexes columns by their exact name.
func ColumnsByName(columns []Column) map[string]Column {
	byName := make(map[string]Column, len(columns))
	for _, col := range columns {
		byName[col.Name] = col
	}
	return byName
}
