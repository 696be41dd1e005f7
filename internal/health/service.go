package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/tordrt/wshealth/internal/db"
	"github.com/tordrt/wshealth/internal/lock"
	"github.com/tordrt/wshealth/internal/metadata"
	"github.com/tordrt/wshealth/internal/migration"
	"github.com/tordrt/wshealth/internal/schema"
	"github.com/tordrt/wshealth/internal/typemap"
)

// Planner turns issues into migrations. It reads through tx so it sees the
// same snapshot the fix is committed against.
type Planner interface {
	Fix(ctx context.Context, tx metadata.Tx, workspaceID string, objects []metadata.ObjectMetadata, kind FixKind, issues []Issue) ([]migration.WorkspaceMigration, error)
}

// MigrationRunner executes the pending migrations of a workspace.
type MigrationRunner interface {
	ExecuteMigrationFromPendingMigrations(ctx context.Context, workspaceID string) (int, error)
}

// Dependencies are the collaborators of a Service.
type Dependencies struct {
	DataSources  metadata.DataSourceStore
	Objects      metadata.ObjectStore
	Connector    migration.Connector
	Transactions metadata.TxManager
	Migrations   migration.Repository
	Planner      Planner
	Runner       MigrationRunner
	// Locker serializes fixes per workspace. Defaults to an in-process lock.
	Locker lock.Locker
	Logger hclog.Logger
}

// Service runs health checks and fixes for workspaces.
type Service struct {
	sources   metadata.DataSourceStore
	objects   metadata.ObjectStore
	connector migration.Connector
	txs       metadata.TxManager
	repo      migration.Repository
	planner   Planner
	runner    MigrationRunner
	locker    lock.Locker
	logger    hclog.Logger

	objectReconciler   ObjectReconciler
	relationReconciler RelationReconciler
}

// NewService wires a Service.
func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	locker := deps.Locker
	if locker == nil {
		locker = lock.NewLocal()
	}

	return &Service{
		sources:   deps.DataSources,
		objects:   deps.Objects,
		connector: deps.Connector,
		txs:       deps.Transactions,
		repo:      deps.Migrations,
		planner:   deps.Planner,
		runner:    deps.Runner,
		locker:    locker,
		logger:    logger.Named("health"),
	}
}

// HealthCheck compares the metadata of a workspace with its live schema.
//
// A workspace without a data source or without objects fails with
// ErrNotFound, an unreachable database with a *ConnectivityError. A
// missing table is an issue: the field and foreign key checks of that
// object are skipped and the check moves on to the next object.
func (s *Service) HealthCheck(ctx context.Context, workspaceID string, opts Options) ([]Issue, error) {
	opts = opts.withDefaults()
	if _, err := ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}

	ds, err := s.sources.LastDataSourceForWorkspace(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			return nil, fmt.Errorf("%w: no data source for workspace %s", ErrNotFound, workspaceID)
		}
		return nil, fmt.Errorf("failed to load data source: %w", err)
	}

	schemaName, err := metadata.ResolveSchemaName(ds, workspaceID)
	if err != nil {
		return nil, err
	}

	conn, err := s.connector.Connect(ctx, ds.URL)
	if err != nil {
		return nil, &ConnectivityError{WorkspaceID: workspaceID, Err: err}
	}

	objects, err := s.objects.FindManyWithinWorkspace(ctx, nil, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load objects: %w", err)
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("%w: workspace %s has no objects", ErrNotFound, workspaceID)
	}

	types, err := typemap.ForEngine(conn.Engine())
	if err != nil {
		return nil, err
	}

	tables, err := conn.TableNames(ctx, schemaName)
	if err != nil {
		return nil, &ConnectivityError{WorkspaceID: workspaceID, Err: err}
	}
	inventory := NewInventory(tables)

	snapshots := make([]TableSnapshot, len(objects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i := range objects {
		g.Go(func() error {
			snap, err := s.snapshot(gctx, conn, schemaName, objects, &objects[i], inventory, opts.Mode)
			if err != nil {
				return err
			}
			snapshots[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &ConnectivityError{WorkspaceID: workspaceID, Err: err}
	}

	fields := NewFieldReconciler(types)

	var issues []Issue
	for i := range objects {
		object := &objects[i]
		snap := snapshots[i]

		if opts.Mode.structure() {
			issues = append(issues, s.objectReconciler.Check(schemaName, object, inventory)...)
			if snap.Exists {
				issues = append(issues, fields.Check(snap.Name, snap.Columns, object, ownedColumns(objects, object))...)
			}
		}
		if opts.Mode.relations() {
			issues = append(issues, s.relationReconciler.Check(snap, objects, object)...)
		}
	}
	if opts.Mode.structure() {
		issues = append(issues, s.objectReconciler.OrphanTables(inventory, objects)...)
	}

	s.logger.Debug("health check complete", "workspace", workspaceID, "schema", schemaName,
		"objects", len(objects), "issues", len(issues))
	return issues, nil
}

// snapshot fetches what the reconcilers need to know about one object.
func (s *Service) snapshot(ctx context.Context, conn db.Introspector, schemaName string, objects []metadata.ObjectMetadata, object *metadata.ObjectMetadata, inventory Inventory, mode Mode) (TableSnapshot, error) {
	snap := TableSnapshot{Name: metadata.ComputeObjectTargetTable(object)}
	snap.Exists = inventory.Has(snap.Name)

	var err error
	if snap.Exists {
		if snap.Columns, err = conn.Columns(ctx, schemaName, snap.Name); err != nil {
			return snap, fmt.Errorf("failed to read columns of %s: %w", snap.Name, err)
		}
		if mode.relations() {
			if snap.ForeignKeys, err = conn.ForeignKeys(ctx, schemaName, snap.Name); err != nil {
				return snap, fmt.Errorf("failed to read foreign keys of %s: %w", snap.Name, err)
			}
		}
	}

	if !mode.relations() {
		return snap, nil
	}

	snap.JoinTables = make(map[string][]schema.Column)
	for _, ref := range metadata.JoinTables(objects, object) {
		if !inventory.Has(ref.TableName) {
			continue
		}
		columns, err := conn.Columns(ctx, schemaName, ref.TableName)
		if err != nil {
			return snap, fmt.Errorf("failed to read columns of %s: %w", ref.TableName, err)
		}
		snap.JoinTables[ref.TableName] = columns
	}

	return snap, nil
}

func ownedColumns(objects []metadata.ObjectMetadata, object *metadata.ObjectMetadata) map[string]bool {
	owned := make(map[string]bool)
	for _, ref := range metadata.OwnedForeignKeys(objects, object) {
		owned[ref.ColumnName] = true
	}
	return owned
}

// FixReport describes the outcome of a committed fix.
type FixReport struct {
	WorkspaceID string
	Migrations  []migration.WorkspaceMigration
	// Applied counts the pending migrations the runner executed.
	Applied int
	// ExecutionErr is set when running the committed migrations failed.
	// The migrations stay pending and can be run again.
	ExecutionErr error
}

// FixIssues plans migrations for the issues eligible under kind, stores
// them in one transaction and then runs every pending migration of the
// workspace, including those left over from an earlier failed run.
//
// Fixes of one workspace are serialized through the locker. Any failure
// before the commit rolls everything back and returns an error wrapping
// ErrFixFailed. A failure while running the committed migrations does not
// undo them and is reported through FixReport.ExecutionErr.
func (s *Service) FixIssues(ctx context.Context, workspaceID string, issues []Issue, kind FixKind) (*FixReport, error) {
	if _, err := ParseFixKind(string(kind)); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, "fix:"+workspaceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFixFailed, err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release fix lock", "workspace", workspaceID, "error", err)
		}
	}()

	migrations, err := s.persistFixes(ctx, workspaceID, issues, kind)
	if err != nil {
		s.logger.Error("fix rolled back", "workspace", workspaceID, "kind", kind, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrFixFailed, err)
	}

	report := &FixReport{WorkspaceID: workspaceID, Migrations: migrations}
	s.logger.Info("fix committed", "workspace", workspaceID, "kind", kind, "migrations", len(migrations))

	// Migrations left pending by an earlier failed run are executed too,
	// even when this plan adds nothing.

	report.Applied, report.ExecutionErr = s.runner.ExecuteMigrationFromPendingMigrations(ctx, workspaceID)
	if report.ExecutionErr != nil {
		s.logger.Error("failed to execute pending migrations", "workspace", workspaceID,
			"applied", report.Applied, "error", report.ExecutionErr)
	}
	return report, nil
}

// persistFixes loads the objects, plans and saves inside one transaction.
func (s *Service) persistFixes(ctx context.Context, workspaceID string, issues []Issue, kind FixKind) (_ []migration.WorkspaceMigration, err error) {
	tx, err := s.txs.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			s.logger.Warn("rollback failed", "workspace", workspaceID, "error", rbErr)
		}
	}()

	objects, err := s.objects.FindManyWithinWorkspace(ctx, tx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load objects: %w", err)
	}

	migrations, err := s.planner.Fix(ctx, tx, workspaceID, objects, kind, issues)
	if err != nil {
		return nil, fmt.Errorf("failed to plan fixes: %w", err)
	}

	if len(migrations) > 0 {
		if err := s.repo.Save(ctx, tx, migrations); err != nil {
			return nil, fmt.Errorf("failed to save migrations: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return migrations, nil
}
