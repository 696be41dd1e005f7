// Package fix plans the migrations that resolve health issues.
package fix

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/tordrt/wshealth/internal/health"
	"github.com/tordrt/wshealth/internal/metadata"
	"github.com/tordrt/wshealth/internal/migration"
)

// systemColumns are created with every table and never planned.
var systemColumns = map[string]bool{
	"id":        true,
	"createdAt": true,
	"updatedAt": true,
	"deletedAt": true,
}

// Planner builds one migration per affected table.
type Planner struct {
	repo   migration.Repository
	logger hclog.Logger
	now    func() time.Time
	newID  func() uuid.UUID
}

// NewPlanner creates a planner. repo is read to skip changes that are
// already pending.
func NewPlanner(repo migration.Repository, logger hclog.Logger) *Planner {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Planner{
		repo:   repo,
		logger: logger.Named("fix"),
		now:    time.Now,
		newID:  uuid.New,
	}
}

// Fix returns the migrations resolving the issues eligible under kind.
// Issues that are filtered out, cannot be fixed or refer to metadata that
// no longer exists are skipped. Changes already waiting in a pending
// migration are not planned again. Tables are created first, with
// referenced tables before the tables referencing them, then altered, then
// dropped.
func (p *Planner) Fix(ctx context.Context, tx metadata.Tx, workspaceID string, objects []metadata.ObjectMetadata, kind health.FixKind, issues []health.Issue) ([]migration.WorkspaceMigration, error) {
	pending, err := p.repo.Pending(ctx, tx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending migrations: %w", err)
	}

	plan := newPlan(objects, pending)
	for _, issue := range issues {
		if !kind.Allows(issue.Kind) {
			continue
		}
		if err := plan.add(issue); err != nil {
			return nil, err
		}
	}

	migrations := plan.migrations(workspaceID, kind, p.now(), p.newID)
	p.logger.Debug("planned fixes", "workspace", workspaceID, "kind", kind,
		"issues", len(issues), "migrations", len(migrations))
	return migrations, nil
}

// tableChanges collects the actions planned for one table.
type tableChanges struct {
	name     string
	isCustom bool
	create   *migration.TableAction
	alter    *migration.TableAction
	drop     bool
}

type plan struct {
	objects []metadata.ObjectMetadata
	tables  map[string]*tableChanges
	order   []string
	done    map[string]bool
}

func newPlan(objects []metadata.ObjectMetadata, pending []migration.WorkspaceMigration) *plan {
	p := &plan{
		objects: objects,
		tables:  make(map[string]*tableChanges),
		done:    make(map[string]bool),
	}
	for _, m := range pending {
		for _, t := range m.Actions {
			p.done[tableKey(t.Name, t.Action)] = true
			for _, c := range t.Columns {
				p.done[columnKey(t.Name, c)] = true
			}
		}
	}
	return p
}

func tableKey(table string, action migration.TableActionKind) string {
	return string(action) + ":" + table
}

func columnKey(table string, c migration.ColumnAction) string {
	return table + ":" + string(c.Action) + ":" + c.ColumnName + ":" + string(c.Alter)
}

func (p *plan) table(name string, isCustom bool) *tableChanges {
	t, ok := p.tables[name]
	if !ok {
		t = &tableChanges{name: name, isCustom: isCustom}
		p.tables[name] = t
		p.order = append(p.order, name)
	}
	return t
}

func (p *plan) object(id string) (*metadata.ObjectMetadata, bool) {
	return metadata.FindObject(p.objects, id)
}

func (p *plan) add(issue health.Issue) error {
	switch issue.Kind {
	case health.MissingTable:
		object, ok := p.object(issue.ObjectMetadataID)
		if !ok {
			return nil
		}
		p.createTable(object)

	case health.MissingColumn, health.ColumnTypeMismatch, health.ColumnNullabilityMismatch, health.ColumnDefaultMismatch:
		if issue.Field == nil {
			return fmt.Errorf("%s issue on %s.%s carries no field", issue.Kind, issue.TableName, issue.ColumnName)
		}
		object, ok := p.object(issue.ObjectMetadataID)
		if !ok {
			return nil
		}
		action := columnFromField(*issue.Field)
		switch issue.Kind {
		case health.ColumnTypeMismatch:
			action.Action, action.Alter = migration.ColumnAlter, migration.AlterType
		case health.ColumnNullabilityMismatch:
			action.Action, action.Alter = migration.ColumnAlter, migration.AlterNullability
		case health.ColumnDefaultMismatch:
			action.Action, action.Alter = migration.ColumnAlter, migration.AlterDefault
		}
		p.alterColumn(issue.TableName, object.IsCustom, action)

	case health.OrphanColumn:
		isCustom := false
		if object, ok := p.object(issue.ObjectMetadataID); ok {
			isCustom = object.IsCustom
		}
		p.alterColumn(issue.TableName, isCustom, migration.ColumnAction{
			Action:     migration.ColumnDrop,
			ColumnName: issue.ColumnName,
			IsNullable: true,
		})

	case health.OrphanTable:
		if p.done[tableKey(issue.TableName, migration.TableDrop)] {
			return nil
		}
		p.table(issue.TableName, false).drop = true

	case health.MissingForeignKeyColumn, health.MissingForeignKeyConstraint:
		object, ref, ok := p.foreignKey(issue)
		if !ok {
			return nil
		}
		action := migration.ColumnAction{
			Action:              migration.ColumnCreate,
			ColumnName:          ref.ColumnName,
			ColumnType:          metadata.FieldTypeUUID,
			IsNullable:          true,
			ReferencedTableName: ref.TargetTable,
			OnDelete:            ref.OnDelete,
		}
		if issue.Kind == health.MissingForeignKeyConstraint {
			action.Action = migration.ColumnCreateForeignKey
		}
		p.alterColumn(issue.TableName, object.IsCustom, action)

	case health.BrokenJoinTable:
		p.joinTable(issue)

	case health.DanglingRelation, health.TableNameMismatch:
		// metadata problems; nothing to change in the schema

	default:
		return fmt.Errorf("no fix for issue kind %s", issue.Kind)
	}
	return nil
}

func columnFromField(f metadata.FieldMetadata) migration.ColumnAction {
	return migration.ColumnAction{
		Action:       migration.ColumnCreate,
		ColumnName:   f.Name,
		ColumnType:   f.Type,
		EnumValues:   f.EnumValues(),
		IsNullable:   f.IsNullable,
		DefaultValue: f.DefaultValue,
	}
}

func (p *plan) createTable(object *metadata.ObjectMetadata) {
	name := metadata.ComputeObjectTargetTable(object)
	if p.done[tableKey(name, migration.TableCreate)] {
		return
	}

	t := p.table(name, object.IsCustom)
	if t.create != nil {
		return
	}
	t.create = &migration.TableAction{Name: name, Action: migration.TableCreate}

	index := make(map[string]int)
	for _, field := range object.Fields {
		for _, physical := range metadata.PhysicalColumns(field) {
			if systemColumns[physical.Name] {
				continue
			}
			if _, ok := index[physical.Name]; ok {
				continue
			}
			index[physical.Name] = len(t.create.Columns)
			t.create.Columns = append(t.create.Columns, columnFromField(physical))
		}
	}

	for _, ref := range metadata.OwnedForeignKeys(p.objects, object) {
		if i, ok := index[ref.ColumnName]; ok {
			t.create.Columns[i].ReferencedTableName = ref.TargetTable
			t.create.Columns[i].OnDelete = ref.OnDelete
			continue
		}
		index[ref.ColumnName] = len(t.create.Columns)
		t.create.Columns = append(t.create.Columns, migration.ColumnAction{
			Action:              migration.ColumnCreate,
			ColumnName:          ref.ColumnName,
			ColumnType:          metadata.FieldTypeUUID,
			IsNullable:          true,
			ReferencedTableName: ref.TargetTable,
			OnDelete:            ref.OnDelete,
		})
	}
}

// alterColumn adds a column change unless it is already planned or pending.
// A planned column creation without a reference takes over the reference
// of a later foreign key creation for the same column.
func (p *plan) alterColumn(table string, isCustom bool, action migration.ColumnAction) {
	if p.done[columnKey(table, action)] {
		return
	}

	t := p.table(table, isCustom)
	if t.create != nil && action.Action == migration.ColumnCreate {
		for i := range t.create.Columns {
			if t.create.Columns[i].ColumnName == action.ColumnName {
				return
			}
		}
	}
	if t.alter == nil {
		t.alter = &migration.TableAction{Name: table, Action: migration.TableAlter}
	}

	for i, existing := range t.alter.Columns {
		if columnKey(table, existing) != columnKey(table, action) {
			continue
		}
		if existing.ReferencedTableName == "" && action.ReferencedTableName != "" {
			t.alter.Columns[i].ReferencedTableName = action.ReferencedTableName
			t.alter.Columns[i].OnDelete = action.OnDelete
		}
		return
	}
	t.alter.Columns = append(t.alter.Columns, action)
}

func (p *plan) foreignKey(issue health.Issue) (*metadata.ObjectMetadata, metadata.ForeignKeyRef, bool) {
	if issue.Relation == nil {
		return nil, metadata.ForeignKeyRef{}, false
	}
	object, ok := p.object(issue.ObjectMetadataID)
	if !ok {
		return nil, metadata.ForeignKeyRef{}, false
	}
	for _, ref := range metadata.OwnedForeignKeys(p.objects, object) {
		if ref.Relation.ID == issue.Relation.ID {
			return object, ref, true
		}
	}
	return nil, metadata.ForeignKeyRef{}, false
}

func (p *plan) joinTable(issue health.Issue) {
	if issue.Relation == nil {
		return
	}
	from, to, ok := metadata.Endpoints(p.objects, *issue.Relation)
	if !ok {
		return
	}
	ref := metadata.JoinTable(*issue.Relation, from, to)

	columns := []migration.ColumnAction{
		{
			Action:              migration.ColumnCreate,
			ColumnName:          ref.FromColumn,
			ColumnType:          metadata.FieldTypeUUID,
			ReferencedTableName: ref.FromTable,
			OnDelete:            "CASCADE",
		},
		{
			Action:              migration.ColumnCreate,
			ColumnName:          ref.ToColumn,
			ColumnType:          metadata.FieldTypeUUID,
			ReferencedTableName: ref.ToTable,
			OnDelete:            "CASCADE",
		},
	}

	if issue.ColumnName == "" {
		if p.done[tableKey(ref.TableName, migration.TableCreate)] {
			return
		}
		t := p.table(ref.TableName, from.IsCustom || to.IsCustom)
		if t.create == nil {
			t.create = &migration.TableAction{Name: ref.TableName, Action: migration.TableCreate, Columns: columns}
		}
		return
	}

	for _, c := range columns {
		if c.ColumnName == issue.ColumnName {
			// existing rows have no value for the new column
			c.IsNullable = true
			p.alterColumn(ref.TableName, from.IsCustom || to.IsCustom, c)
		}
	}
}

// migrations orders the planned tables and wraps each in a migration.
func (p *plan) migrations(workspaceID string, kind health.FixKind, now time.Time, newID func() uuid.UUID) []migration.WorkspaceMigration {
	var creates, alters, drops []*tableChanges
	for _, name := range p.order {
		t := p.tables[name]
		switch {
		case t.create != nil:
			creates = append(creates, t)
		case t.alter != nil && len(t.alter.Columns) > 0:
			alters = append(alters, t)
		case t.drop:
			drops = append(drops, t)
		}
	}

	var out []migration.WorkspaceMigration
	for _, t := range append(append(sortCreates(creates), alters...), drops...) {
		var actions []migration.TableAction
		if t.create != nil {
			actions = append(actions, *t.create)
		}
		if t.alter != nil && len(t.alter.Columns) > 0 {
			actions = append(actions, *t.alter)
		}
		if t.drop {
			actions = append(actions, migration.TableAction{Name: t.name, Action: migration.TableDrop})
		}

		out = append(out, migration.WorkspaceMigration{
			ID:          newID(),
			WorkspaceID: workspaceID,
			Name:        fmt.Sprintf("%d-fix-%s-%s", now.UnixMilli(), kind, t.name),
			IsCustom:    t.isCustom,
			Actions:     actions,
			CreatedAt:   now.Add(time.Duration(len(out)) * time.Millisecond),
		})
	}
	return out
}

// sortCreates orders created tables so that a table comes after every
// other created table it references. Cycles keep their planned order.
func sortCreates(creates []*tableChanges) []*tableChanges {
	planned := make(map[string]bool, len(creates))
	for _, t := range creates {
		planned[t.name] = true
	}

	var out []*tableChanges
	emitted := make(map[string]bool, len(creates))
	for len(out) < len(creates) {
		progress := false
		for _, t := range creates {
			if emitted[t.name] || !ready(t, planned, emitted) {
				continue
			}
			out = append(out, t)
			emitted[t.name] = true
			progress = true
		}
		if progress {
			continue
		}
		for _, t := range creates {
			if !emitted[t.name] {
				out = append(out, t)
				emitted[t.name] = true
				break
			}
		}
	}
	return out
}

func ready(t *tableChanges, planned, emitted map[string]bool) bool {
	for _, c := range t.create.Columns {
		ref := c.ReferencedTableName
		if ref != "" && ref != t.name && planned[ref] && !emitted[ref] {
			return false
		}
	}
	return true
}
