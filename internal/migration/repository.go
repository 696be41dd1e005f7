package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tordrt/wshealth/internal/metadata"
)

// ErrDuplicate is returned when saving a migration whose id already exists.
var ErrDuplicate = errors.New("migration already exists")

// Repository persists workspace migrations.
type Repository interface {
	// Save appends migrations within tx. Nothing is visible to other
	// readers until tx commits.
	Save(ctx context.Context, tx metadata.Tx, migrations []WorkspaceMigration) error
	// Pending lists the unexecuted migrations of a workspace, oldest first.
	Pending(ctx context.Context, tx metadata.Tx, workspaceID string) ([]WorkspaceMigration, error)
	// MarkApplied records the execution of a pending migration.
	MarkApplied(ctx context.Context, id uuid.UUID, at time.Time) error
}

// MemoryRepository keeps migrations in memory. Saves made inside a
// metadata.MemoryTx land only when the transaction commits.
type MemoryRepository struct {
	mu      sync.Mutex
	records []WorkspaceMigration
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Save appends migrations, deferred to commit when tx is a MemoryTx.
func (r *MemoryRepository) Save(_ context.Context, tx metadata.Tx, migrations []WorkspaceMigration) error {
	batch := append([]WorkspaceMigration(nil), migrations...)

	r.mu.Lock()
	seen := make(map[uuid.UUID]bool, len(r.records)+len(batch))
	for _, m := range r.records {
		seen[m.ID] = true
	}
	r.mu.Unlock()
	for _, m := range batch {
		if seen[m.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicate, m.ID)
		}
		seen[m.ID] = true
	}

	switch t := tx.(type) {
	case nil:
		r.append(batch)
	case *metadata.MemoryTx:
		t.OnCommit(func() { r.append(batch) })
	default:
		return fmt.Errorf("unsupported transaction type %T", tx)
	}
	return nil
}

func (r *MemoryRepository) append(batch []WorkspaceMigration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, batch...)
}

// Pending returns the unexecuted migrations of a workspace.
func (r *MemoryRepository) Pending(_ context.Context, _ metadata.Tx, workspaceID string) ([]WorkspaceMigration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []WorkspaceMigration
	for _, m := range r.records {
		if m.WorkspaceID == workspaceID && m.AppliedAt == nil {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// MarkApplied sets the execution time of a pending migration.
func (r *MemoryRepository) MarkApplied(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.records {
		if r.records[i].ID != id {
			continue
		}
		if r.records[i].AppliedAt != nil {
			return fmt.Errorf("migration %s already applied", id)
		}
		applied := at
		r.records[i].AppliedAt = &applied
		return nil
	}
	return fmt.Errorf("migration %s not found", id)
}

// All returns every stored migration in insertion order.
func (r *MemoryRepository) All() []WorkspaceMigration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]WorkspaceMigration(nil), r.records...)
}

// PostgresRepository stores migrations in metadata.workspace_migration.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository over pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Save inserts migrations through tx.
func (r *PostgresRepository) Save(ctx context.Context, tx metadata.Tx, migrations []WorkspaceMigration) error {
	q := metadata.QuerierFor(r.pool, tx)

	query := `
		INSERT INTO metadata.workspace_migration (id, workspace_id, name, is_custom, migrations, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	for _, m := range migrations {
		actions, err := json.Marshal(m.Actions)
		if err != nil {
			return fmt.Errorf("failed to encode migration %s: %w", m.Name, err)
		}

		if _, err := q.Exec(ctx, query, m.ID, m.WorkspaceID, m.Name, m.IsCustom, actions, m.CreatedAt); err != nil {
			return fmt.Errorf("failed to save migration %s: %w", m.Name, err)
		}
	}

	return nil
}

// Pending lists unexecuted migrations oldest first.
func (r *PostgresRepository) Pending(ctx context.Context, tx metadata.Tx, workspaceID string) ([]WorkspaceMigration, error) {
	q := metadata.QuerierFor(r.pool, tx)

	query := `
		SELECT id, workspace_id::text, name, is_custom, migrations, created_at
		FROM metadata.workspace_migration
		WHERE workspace_id = $1 AND applied_at IS NULL
		ORDER BY created_at, name
	`

	rows, err := q.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WorkspaceMigration
	for rows.Next() {
		var m WorkspaceMigration
		var actions []byte

		if err := rows.Scan(&m.ID, &m.WorkspaceID, &m.Name, &m.IsCustom, &actions, &m.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(actions, &m.Actions); err != nil {
			return nil, fmt.Errorf("failed to decode migration %s: %w", m.Name, err)
		}
		out = append(out, m)
	}

	return out, rows.Err()
}

// MarkApplied sets applied_at on a pending migration.
func (r *PostgresRepository) MarkApplied(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE metadata.workspace_migration SET applied_at = $2 WHERE id = $1 AND applied_at IS NULL`,
		id, at)
	if err != nil {
		return fmt.Errorf("failed to mark migration %s applied: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("migration %s not found or already applied", id)
	}
	return nil
}
