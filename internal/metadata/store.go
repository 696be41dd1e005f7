package metadata

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when a workspace has no registered data source.
var ErrNotFound = errors.New("not found")

// Tx is a transaction on the metadata database. Stores and repositories
// accept it explicitly; a nil Tx means "outside any transaction".
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TxManager opens metadata transactions.
type TxManager interface {
	Begin(ctx context.Context) (Tx, error)
}

// ObjectStore reads object metadata with nested fields and relations.
type ObjectStore interface {
	FindManyWithinWorkspace(ctx context.Context, tx Tx, workspaceID string) ([]ObjectMetadata, error)
}

// DataSourceStore reads the data source registrations of workspaces.
type DataSourceStore interface {
	// LastDataSourceForWorkspace returns the most recent registration or
	// an error wrapping ErrNotFound.
	LastDataSourceForWorkspace(ctx context.Context, workspaceID string) (*DataSourceMetadata, error)
}

// MemoryTx is a Tx whose effects are callbacks run on commit.
type MemoryTx struct {
	mu       sync.Mutex
	onCommit []func()
	done     bool
}

// OnCommit registers fn to run when the transaction commits.
func (t *MemoryTx) OnCommit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCommit = append(t.onCommit, fn)
}

// Commit runs the registered callbacks in order.
func (t *MemoryTx) Commit(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return errors.New("transaction already closed")
	}
	t.done = true
	for _, fn := range t.onCommit {
		fn()
	}
	t.onCommit = nil
	return nil
}

// Rollback discards the registered callbacks.
func (t *MemoryTx) Rollback(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true
	t.onCommit = nil
	return nil
}

// MemoryTxManager hands out MemoryTx values.
type MemoryTxManager struct{}

// Begin starts a new in-memory transaction.
func (MemoryTxManager) Begin(_ context.Context) (Tx, error) {
	return &MemoryTx{}, nil
}
