package health

import "fmt"

// Mode selects which reconcilers a health check runs
type Mode string

const (
	// ModeStructure runs the object and field reconcilers.
	ModeStructure Mode = "structure"
	// ModeMetadata runs the relation reconciler.
	ModeMetadata Mode = "metadata"
	// ModeAll runs every reconciler.
	ModeAll Mode = "all"
)

// ParseMode validates a mode name. An empty name means ModeAll.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeAll, nil
	case ModeStructure, ModeMetadata, ModeAll:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown health check mode %q (want structure, metadata or all)", s)
}

func (m Mode) structure() bool {
	switch m {
	case ModeStructure, ModeAll:
		return true
	case ModeMetadata:
		return false
	}
	panic(fmt.Sprintf("health: unknown mode %q", string(m)))
}

func (m Mode) relations() bool {
	switch m {
	case ModeMetadata, ModeAll:
		return true
	case ModeStructure:
		return false
	}
	panic(fmt.Sprintf("health: unknown mode %q", string(m)))
}

// FixKind selects which issue kinds are eligible for automatic correction
type FixKind string

const (
	// FixAdditive creates missing tables, columns, foreign keys and join tables.
	FixAdditive FixKind = "additive"
	// FixNullable aligns column nullability.
	FixNullable FixKind = "nullable"
	// FixType aligns column types.
	FixType FixKind = "type"
	// FixDefaultValue aligns column defaults.
	FixDefaultValue FixKind = "default-value"
	// FixDestructive drops orphan columns and tables.
	FixDestructive FixKind = "destructive"
	// FixAll applies every kind except FixDestructive.
	FixAll FixKind = "all"
)

// AllFixKinds lists every fix kind.
var AllFixKinds = []FixKind{FixAdditive, FixNullable, FixType, FixDefaultValue, FixDestructive, FixAll}

// ParseFixKind validates a fix kind name.
func ParseFixKind(s string) (FixKind, error) {
	for _, k := range AllFixKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown fix kind %q", s)
}

// Allows reports whether issues of the given kind are fixed under k.
// DanglingRelation and TableNameMismatch are never fixed: they are broken
// metadata, not broken schema.
func (k FixKind) Allows(kind IssueKind) bool {
	var want FixKind
	switch kind {
	case MissingTable, MissingColumn, MissingForeignKeyColumn, MissingForeignKeyConstraint, BrokenJoinTable:
		want = FixAdditive
	case ColumnNullabilityMismatch:
		want = FixNullable
	case ColumnTypeMismatch:
		want = FixType
	case ColumnDefaultMismatch:
		want = FixDefaultValue
	case OrphanColumn, OrphanTable:
		return k == FixDestructive
	case DanglingRelation, TableNameMismatch:
		return false
	default:
		panic(fmt.Sprintf("health: unknown issue kind %q", string(kind)))
	}
	return k == want || k == FixAll
}

// Options tunes a health check.
type Options struct {
	Mode Mode
	// Concurrency bounds the number of tables introspected at once.
	Concurrency int
}

// DefaultConcurrency is used when Options.Concurrency is not positive.
const DefaultConcurrency = 4

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = ModeAll
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	return o
}
