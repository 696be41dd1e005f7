package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/tordrt/wshealth/internal/db"
	"github.com/tordrt/wshealth/internal/metadata"
)

// Connector hands out live connections to tenant databases.
type Connector interface {
	Connect(ctx context.Context, url string) (db.Conn, error)
}

// Runner executes pending workspace migrations against the live schema.
type Runner struct {
	repo      Repository
	sources   metadata.DataSourceStore
	connector Connector
	logger    hclog.Logger
	now       func() time.Time
}

// NewRunner creates a runner. A nil logger discards output.
func NewRunner(repo Repository, sources metadata.DataSourceStore, connector Connector, logger hclog.Logger) *Runner {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Runner{
		repo:      repo,
		sources:   sources,
		connector: connector,
		logger:    logger.Named("migration-runner"),
		now:       time.Now,
	}
}

// ExecuteMigrationFromPendingMigrations runs every pending migration of a
// workspace, oldest first, and marks each as applied once its statements
// succeed. It stops at the first failure; that migration and every later
// one stay pending. The number of applied migrations is returned.
func (r *Runner) ExecuteMigrationFromPendingMigrations(ctx context.Context, workspaceID string) (int, error) {
	pending, err := r.repo.Pending(ctx, nil, workspaceID)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending migrations: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	ds, err := r.sources.LastDataSourceForWorkspace(ctx, workspaceID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve data source: %w", err)
	}
	schemaName, err := metadata.ResolveSchemaName(ds, workspaceID)
	if err != nil {
		return 0, err
	}

	conn, err := r.connector.Connect(ctx, ds.URL)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to workspace database: %w", err)
	}
	dialect, err := DialectFor(conn.Engine())
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range pending {
		stmts, err := dialect.Statements(schemaName, m)
		if err != nil {
			return applied, fmt.Errorf("failed to render migration %s: %w", m.Name, err)
		}

		r.logger.Debug("executing migration", "workspace", workspaceID, "migration", m.Name, "statements", len(stmts))
		if err := conn.ExecMigration(ctx, stmts); err != nil {
			return applied, fmt.Errorf("failed to execute migration %s: %w", m.Name, err)
		}
		if err := r.repo.MarkApplied(ctx, m.ID, r.now()); err != nil {
			return applied, err
		}
		applied++
	}

	r.logger.Info("executed pending migrations", "workspace", workspaceID, "count", applied)
	return applied, nil
}
