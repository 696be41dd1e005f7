package health_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tordrt/wshealth/internal/db"
	"github.com/tordrt/wshealth/internal/fix"
	"github.com/tordrt/wshealth/internal/health"
	"github.com/tordrt/wshealth/internal/lock"
	"github.com/tordrt/wshealth/internal/metadata"
	"github.com/tordrt/wshealth/internal/migration"
)

const workspaceID = "20202020-1c25-4d02-bf25-6aeccf7ea419"

type env struct {
	service *health.Service
	repo    *migration.MemoryRepository
	conn    db.Conn
	store   *metadata.FileStore
}

type envOption func(*health.Dependencies)

// newEnv wires a service over a fresh SQLite workspace database created
// with statements.
func newEnv(t *testing.T, objects []metadata.ObjectMetadata, statements []string, opts ...envOption) *env {
	t.Helper()
	ctx := context.Background()

	url := "sqlite://" + filepath.Join(t.TempDir(), "workspace.db")
	store := metadata.NewFileStore(metadata.Document{
		DataSources: []metadata.DataSourceMetadata{{ID: "ds", WorkspaceID: workspaceID, URL: url}},
		Objects:     objects,
	})

	connector := db.NewConnector()
	t.Cleanup(func() { _ = connector.Close() })

	conn, err := connector.Connect(ctx, url)
	require.NoError(t, err)
	require.NoError(t, conn.ExecMigration(ctx, statements))

	repo := migration.NewMemoryRepository()
	deps := health.Dependencies{
		DataSources:  store,
		Objects:      store,
		Connector:    connector,
		Transactions: metadata.MemoryTxManager{},
		Migrations:   repo,
		Planner:      fix.NewPlanner(repo, nil),
		Runner:       migration.NewRunner(repo, store, connector, nil),
	}
	for _, opt := range opts {
		opt(&deps)
	}

	return &env{service: health.NewService(deps), repo: repo, conn: conn, store: store}
}

func person() metadata.ObjectMetadata {
	return metadata.ObjectMetadata{
		ID:           "person",
		WorkspaceID:  workspaceID,
		NameSingular: "person",
		Fields: []metadata.FieldMetadata{
			{ID: "person-name", Name: "name", Type: metadata.FieldTypeText},
			{ID: "person-age", Name: "age", Type: metadata.FieldTypeNumber, IsNullable: true},
		},
	}
}

func company() metadata.ObjectMetadata {
	return metadata.ObjectMetadata{
		ID:           "company",
		WorkspaceID:  workspaceID,
		NameSingular: "company",
		Fields: []metadata.FieldMetadata{
			{ID: "company-name", Name: "name", Type: metadata.FieldTypeText},
		},
		Relations: []metadata.RelationMetadata{
			{ID: "company-people", Kind: metadata.OneToMany, FromObjectMetadataID: "company", ToObjectMetadataID: "person"},
		},
	}
}

func issueKinds(issues []health.Issue) []health.IssueKind {
	var out []health.IssueKind
	for _, i := range issues {
		out = append(out, i.Kind)
	}
	return out
}

func TestMissingColumnFixedEndToEnd(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, []metadata.ObjectMetadata{person()}, []string{
		`CREATE TABLE person (id TEXT PRIMARY KEY, name TEXT NOT NULL)`,
	})

	issues, err := e.service.HealthCheck(ctx, workspaceID, health.Options{})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	require.Equal(t, health.MissingColumn, issues[0].Kind)
	require.Equal(t, health.CategoryField, issues[0].Category)
	require.Equal(t, "age", issues[0].Field.Name)

	report, err := e.service.FixIssues(ctx, workspaceID, issues, health.FixAdditive)
	require.NoError(t, err)
	require.NoError(t, report.ExecutionErr)
	require.Len(t, report.Migrations, 1)
	require.Equal(t, 1, report.Applied)
	require.Equal(t, []migration.TableAction{{
		Name:   "person",
		Action: migration.TableAlter,
		Columns: []migration.ColumnAction{
			{Action: migration.ColumnCreate, ColumnName: "age", ColumnType: metadata.FieldTypeNumber, IsNullable: true},
		},
	}}, report.Migrations[0].Actions)

	records := e.repo.All()
	require.Len(t, records, 1)
	require.Equal(t, migration.Executed, records[0].State())

	issues, err = e.service.HealthCheck(ctx, workspaceID, health.Options{})
	require.NoError(t, err)
	require.Empty(t, issues)
}

func TestRelationsFixedEndToEnd(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, []metadata.ObjectMetadata{company(), person()}, []string{
		`CREATE TABLE person (id TEXT PRIMARY KEY, name TEXT NOT NULL, age REAL)`,
	})

	issues, err := e.service.HealthCheck(ctx, workspaceID, health.Options{})
	require.NoError(t, err)
	require.Equal(t, []health.IssueKind{health.MissingTable, health.MissingForeignKeyColumn}, issueKinds(issues))

	report, err := e.service.FixIssues(ctx, workspaceID, issues, health.FixAll)
	require.NoError(t, err)
	require.NoError(t, report.ExecutionErr)
	require.Len(t, report.Migrations, 2)
	require.Equal(t, "company", report.Migrations[0].Actions[0].Name)

	issues, err = e.service.HealthCheck(ctx, workspaceID, health.Options{})
	require.NoError(t, err)
	require.Empty(t, issues, "%v", issueKinds(issues))

	fks, err := e.conn.ForeignKeys(ctx, "", "person")
	require.NoError(t, err)
	require.Len(t, fks, 1)
	require.Equal(t, "company", fks[0].TargetTable)
}

type failingRepository struct {
	*migration.MemoryRepository
}

func (r failingRepository) Save(ctx context.Context, tx metadata.Tx, migrations []migration.WorkspaceMigration) error {
	if err := r.MemoryRepository.Save(ctx, tx, migrations); err != nil {
		return err
	}
	return errors.New("disk full")
}

type failingPlanner struct{}

func (failingPlanner) Fix(context.Context, metadata.Tx, string, []metadata.ObjectMetadata, health.FixKind, []health.Issue) ([]migration.WorkspaceMigration, error) {
	return nil, errors.New("planner exploded")
}

func TestFixIsAtomic(t *testing.T) {
	ctx := context.Background()
	objects := []metadata.ObjectMetadata{company(), person()}
	statements := []string{`CREATE TABLE person (id TEXT PRIMARY KEY, name TEXT NOT NULL)`}

	tests := []struct {
		name string
		opt  func(repo *migration.MemoryRepository) envOption
	}{
		{
			name: "save fails after writing",
			opt: func(repo *migration.MemoryRepository) envOption {
				return func(d *health.Dependencies) { d.Migrations = failingRepository{repo} }
			},
		},
		{
			name: "planner fails",
			opt: func(*migration.MemoryRepository) envOption {
				return func(d *health.Dependencies) { d.Planner = failingPlanner{} }
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var repo *migration.MemoryRepository
			e := newEnv(t, objects, statements, func(d *health.Dependencies) {
				repo = d.Migrations.(*migration.MemoryRepository)
				tt.opt(repo)(d)
			})

			issues, err := e.service.HealthCheck(ctx, workspaceID, health.Options{})
			require.NoError(t, err)
			require.Len(t, issues, 3)

			_, err = e.service.FixIssues(ctx, workspaceID, issues, health.FixAll)
			require.ErrorIs(t, err, health.ErrFixFailed)
			require.Empty(t, repo.All(), "no migration survives a rollback")

			tables, err := e.conn.TableNames(ctx, "")
			require.NoError(t, err)
			require.Equal(t, []string{"person"}, tables)

			again, err := e.service.HealthCheck(ctx, workspaceID, health.Options{})
			require.NoError(t, err)
			require.Equal(t, issueKinds(issues), issueKinds(again))
		})
	}
}

func TestExecutionFailureKeepsMigrationsPending(t *testing.T) {
	ctx := context.Background()
	objects := []metadata.ObjectMetadata{person()}
	e := newEnv(t, objects, []string{
		`CREATE TABLE person (id TEXT PRIMARY KEY, name TEXT, age REAL)`,
	})

	issues, err := e.service.HealthCheck(ctx, workspaceID, health.Options{})
	require.NoError(t, err)
	require.Equal(t, []health.IssueKind{health.ColumnNullabilityMismatch}, issueKinds(issues))

	report, err := e.service.FixIssues(ctx, workspaceID, issues, health.FixNullable)
	require.NoError(t, err, "execution failures do not fail the fix")
	require.ErrorIs(t, report.ExecutionErr, migration.ErrUnsupported)
	require.Zero(t, report.Applied)

	pending, err := e.repo.Pending(ctx, nil, workspaceID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

// flakyRunner fails its first run without touching the database.
type flakyRunner struct {
	next  health.MigrationRunner
	calls int
}

func (r *flakyRunner) ExecuteMigrationFromPendingMigrations(ctx context.Context, workspaceID string) (int, error) {
	r.calls++
	if r.calls == 1 {
		return 0, errors.New("connection reset by peer")
	}
	return r.next.ExecuteMigrationFromPendingMigrations(ctx, workspaceID)
}

func TestFixRetriesMigrationsLeftPending(t *testing.T) {
	ctx := context.Background()
	runner := &flakyRunner{}
	e := newEnv(t, []metadata.ObjectMetadata{person()}, []string{
		`CREATE TABLE person (id TEXT PRIMARY KEY, name TEXT NOT NULL)`,
	}, func(d *health.Dependencies) {
		runner.next = d.Runner
		d.Runner = runner
	})

	issues, err := e.service.HealthCheck(ctx, workspaceID, health.Options{})
	require.NoError(t, err)
	require.Equal(t, []health.IssueKind{health.MissingColumn}, issueKinds(issues))

	report, err := e.service.FixIssues(ctx, workspaceID, issues, health.FixAdditive)
	require.NoError(t, err)
	require.Error(t, report.ExecutionErr)
	require.Len(t, report.Migrations, 1)
	require.Zero(t, report.Applied)

	report, err = e.service.FixIssues(ctx, workspaceID, issues, health.FixAdditive)
	require.NoError(t, err)
	require.NoError(t, report.ExecutionErr)
	require.Empty(t, report.Migrations, "the pending change is not planned twice")
	require.Equal(t, 1, report.Applied)
	require.Equal(t, 2, runner.calls)

	pending, err := e.repo.Pending(ctx, nil, workspaceID)
	require.NoError(t, err)
	require.Empty(t, pending)

	issues, err = e.service.HealthCheck(ctx, workspaceID, health.Options{})
	require.NoError(t, err)
	require.Empty(t, issues)
}

func TestMissingTableContinuesWithOtherObjects(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, []metadata.ObjectMetadata{company(), person()}, []string{
		`CREATE TABLE person (id TEXT PRIMARY KEY, name TEXT NOT NULL)`,
	})

	issues, err := e.service.HealthCheck(ctx, workspaceID, health.Options{})
	require.NoError(t, err)
	require.Equal(t, []health.IssueKind{health.MissingTable, health.MissingColumn, health.MissingForeignKeyColumn}, issueKinds(issues))
	require.Equal(t, "company", issues[0].TableName)
	require.Equal(t, "person", issues[1].TableName)
}

func TestModes(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, []metadata.ObjectMetadata{company(), person()}, []string{
		`CREATE TABLE company (id TEXT PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE person (id TEXT PRIMARY KEY, name TEXT NOT NULL, legacy TEXT)`,
		`CREATE TABLE zombie (id TEXT PRIMARY KEY)`,
	})

	tests := []struct {
		mode health.Mode
		want []health.IssueKind
	}{
		{health.ModeStructure, []health.IssueKind{health.MissingColumn, health.OrphanColumn, health.OrphanTable}},
		{health.ModeMetadata, []health.IssueKind{health.MissingForeignKeyColumn}},
		{health.ModeAll, []health.IssueKind{health.MissingColumn, health.OrphanColumn, health.MissingForeignKeyColumn, health.OrphanTable}},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			issues, err := e.service.HealthCheck(ctx, workspaceID, health.Options{Mode: tt.mode, Concurrency: 1})
			require.NoError(t, err)
			require.Equal(t, tt.want, issueKinds(issues))
		})
	}

	_, err := e.service.HealthCheck(ctx, workspaceID, health.Options{Mode: "everything"})
	require.Error(t, err)
}

func TestHealthCheckIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, []metadata.ObjectMetadata{company(), person()}, []string{
		`CREATE TABLE person (id TEXT PRIMARY KEY, name INTEGER)`,
	})

	first, err := e.service.HealthCheck(ctx, workspaceID, health.Options{})
	require.NoError(t, err)
	second, err := e.service.HealthCheck(ctx, workspaceID, health.Options{})
	require.NoError(t, err)

	require.NotEmpty(t, first)
	require.Equal(t, first, second)
}

func TestDanglingRelation(t *testing.T) {
	ctx := context.Background()
	p := person()
	p.Relations = []metadata.RelationMetadata{
		{ID: "person-pet", Kind: metadata.ManyToOne, FromObjectMetadataID: "person", ToObjectMetadataID: "pet"},
	}

	for _, statements := range [][]string{
		{`CREATE TABLE person (id TEXT PRIMARY KEY, name TEXT NOT NULL, age REAL)`},
		{`CREATE TABLE person (id TEXT PRIMARY KEY, name TEXT NOT NULL, age REAL, petId TEXT)`},
		{`CREATE TABLE other (id TEXT PRIMARY KEY)`},
	} {
		e := newEnv(t, []metadata.ObjectMetadata{p}, statements)
		issues, err := e.service.HealthCheck(ctx, workspaceID, health.Options{Mode: health.ModeMetadata})
		require.NoError(t, err)
		require.Equal(t, []health.IssueKind{health.DanglingRelation}, issueKinds(issues))

		report, err := e.service.FixIssues(ctx, workspaceID, issues, health.FixAll)
		require.NoError(t, err)
		require.Empty(t, report.Migrations, "dangling relations are not fixable")
	}
}

func TestHealthCheckPreconditions(t *testing.T) {
	ctx := context.Background()

	e := newEnv(t, []metadata.ObjectMetadata{person()}, nil)
	_, err := e.service.HealthCheck(ctx, "30303030-1c25-4d02-bf25-6aeccf7ea419", health.Options{})
	require.ErrorIs(t, err, health.ErrNotFound)

	empty := newEnv(t, nil, nil)
	_, err = empty.service.HealthCheck(ctx, workspaceID, health.Options{})
	require.ErrorIs(t, err, health.ErrNotFound)

	unreachable := newEnv(t, []metadata.ObjectMetadata{person()}, nil, func(d *health.Dependencies) {
		d.Connector = brokenConnector{}
	})
	_, err = unreachable.service.HealthCheck(ctx, workspaceID, health.Options{})
	var connErr *health.ConnectivityError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, workspaceID, connErr.WorkspaceID)
}

type brokenConnector struct{}

func (brokenConnector) Connect(context.Context, string) (db.Conn, error) {
	return nil, errors.New("connection refused")
}

func TestConcurrentFixIsRejected(t *testing.T) {
	ctx := context.Background()
	locker := lock.NewLocal()
	e := newEnv(t, []metadata.ObjectMetadata{person()}, []string{
		`CREATE TABLE person (id TEXT PRIMARY KEY, name TEXT NOT NULL)`,
	}, func(d *health.Dependencies) { d.Locker = locker })

	unlock, err := locker.Lock(ctx, "fix:"+workspaceID)
	require.NoError(t, err)

	issues, err := e.service.HealthCheck(ctx, workspaceID, health.Options{})
	require.NoError(t, err)

	_, err = e.service.FixIssues(ctx, workspaceID, issues, health.FixAdditive)
	require.ErrorIs(t, err, lock.ErrLocked)
	require.Empty(t, e.repo.All())

	require.NoError(t, unlock(ctx))
	_, err = e.service.FixIssues(ctx, workspaceID, issues, health.FixAdditive)
	require.NoError(t, err)
	require.Len(t, e.repo.All(), 1)
}
