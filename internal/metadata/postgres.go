package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the query surface shared by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresTx is a metadata transaction on PostgreSQL.
type PostgresTx struct {
	pgx.Tx
}

// PostgresTxManager opens repeatable-read transactions so that everything
// read inside one fix run comes from the same snapshot.
type PostgresTxManager struct {
	pool *pgxpool.Pool
}

// NewPostgresTxManager creates a transaction manager over pool.
func NewPostgresTxManager(pool *pgxpool.Pool) *PostgresTxManager {
	return &PostgresTxManager{pool: pool}
}

// Begin starts a transaction.
func (m *PostgresTxManager) Begin(ctx context.Context) (Tx, error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("failed to begin metadata transaction: %w", err)
	}
	return &PostgresTx{Tx: tx}, nil
}

// QuerierFor returns the transaction when tx is a PostgresTx, the pool otherwise.
func QuerierFor(pool *pgxpool.Pool, tx Tx) Querier {
	if ptx, ok := tx.(*PostgresTx); ok && ptx != nil {
		return ptx.Tx
	}
	return pool
}

// NewPool opens a connection pool to the metadata database.
func NewPool(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse metadata database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to metadata database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping metadata database: %w", err)
	}

	return pool, nil
}

// PostgresStore reads workspace metadata from the "metadata" schema.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store over pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// LastDataSourceForWorkspace returns the latest data source of a workspace.
func (s *PostgresStore) LastDataSourceForWorkspace(ctx context.Context, workspaceID string) (*DataSourceMetadata, error) {
	query := `
		SELECT id::text, workspace_id::text, url, COALESCE(schema, ''), created_at
		FROM metadata.data_source
		WHERE workspace_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	var ds DataSourceMetadata
	err := s.pool.QueryRow(ctx, query, workspaceID).Scan(&ds.ID, &ds.WorkspaceID, &ds.URL, &ds.Schema, &ds.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("data source for workspace %s: %w", workspaceID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load data source: %w", err)
	}

	return &ds, nil
}

// FindManyWithinWorkspace loads every object of a workspace with its fields
// and the relations it declares.
func (s *PostgresStore) FindManyWithinWorkspace(ctx context.Context, tx Tx, workspaceID string) ([]ObjectMetadata, error) {
	q := QuerierFor(s.pool, tx)

	objects, err := s.findObjects(ctx, q, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load objects: %w", err)
	}
	if len(objects) == 0 {
		return nil, nil
	}

	index := make(map[string]int, len(objects))
	for i, o := range objects {
		index[o.ID] = i
	}

	if err := s.attachFields(ctx, q, workspaceID, objects, index); err != nil {
		return nil, fmt.Errorf("failed to load fields: %w", err)
	}

	if err := s.attachRelations(ctx, q, workspaceID, objects, index); err != nil {
		return nil, fmt.Errorf("failed to load relations: %w", err)
	}

	return objects, nil
}

func (s *PostgresStore) findObjects(ctx context.Context, q Querier, workspaceID string) ([]ObjectMetadata, error) {
	query := `
		SELECT id::text, workspace_id::text, name_singular, is_custom, COALESCE(target_table_name, '')
		FROM metadata.object_metadata
		WHERE workspace_id = $1
		ORDER BY created_at, name_singular
	`

	rows, err := q.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var objects []ObjectMetadata
	for rows.Next() {
		var o ObjectMetadata
		if err := rows.Scan(&o.ID, &o.WorkspaceID, &o.NameSingular, &o.IsCustom, &o.TargetTableName); err != nil {
			return nil, err
		}
		objects = append(objects, o)
	}

	return objects, rows.Err()
}

func (s *PostgresStore) attachFields(ctx context.Context, q Querier, workspaceID string, objects []ObjectMetadata, index map[string]int) error {
	query := `
		SELECT id::text, object_metadata_id::text, name, type, is_nullable, default_value, options, is_system
		FROM metadata.field_metadata
		WHERE workspace_id = $1
		ORDER BY position, name
	`

	rows, err := q.Query(ctx, query, workspaceID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var f FieldMetadata
		var objectID, fieldType string
		var options []byte

		if err := rows.Scan(&f.ID, &objectID, &f.Name, &fieldType, &f.IsNullable, &f.DefaultValue, &options, &f.IsSystem); err != nil {
			return err
		}

		f.Type, err = ParseFieldType(fieldType)
		if err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
		if len(options) > 0 {
			if err := json.Unmarshal(options, &f.Options); err != nil {
				return fmt.Errorf("field %s options: %w", f.Name, err)
			}
		}
		if f.DefaultValue != nil {
			if err := ValidateDefault(*f.DefaultValue); err != nil {
				return fmt.Errorf("field %s: %w", f.Name, err)
			}
		}

		if i, ok := index[objectID]; ok {
			objects[i].Fields = append(objects[i].Fields, f)
		}
	}

	return rows.Err()
}

func (s *PostgresStore) attachRelations(ctx context.Context, q Querier, workspaceID string, objects []ObjectMetadata, index map[string]int) error {
	query := `
		SELECT
			id::text,
			kind,
			from_object_metadata_id::text,
			to_object_metadata_id::text,
			COALESCE(foreign_key_column_name, ''),
			COALESCE(join_table_name, ''),
			COALESCE(join_from_column_name, ''),
			COALESCE(join_to_column_name, ''),
			COALESCE(on_delete, '')
		FROM metadata.relation_metadata
		WHERE workspace_id = $1
		ORDER BY created_at, id
	`

	rows, err := q.Query(ctx, query, workspaceID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var r RelationMetadata
		var kind string

		if err := rows.Scan(&r.ID, &kind, &r.FromObjectMetadataID, &r.ToObjectMetadataID,
			&r.ForeignKeyColumnName, &r.JoinTableName, &r.JoinFromColumnName, &r.JoinToColumnName, &r.OnDelete); err != nil {
			return err
		}

		r.Kind, err = ParseRelationKind(kind)
		if err != nil {
			return fmt.Errorf("relation %s: %w", r.ID, err)
		}

		if i, ok := index[r.FromObjectMetadataID]; ok {
			objects[i].Relations = append(objects[i].Relations, r)
		}
	}

	return rows.Err()
}
