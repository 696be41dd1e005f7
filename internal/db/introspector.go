// Package db connects to tenant databases and reads their live structure.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tordrt/wshealth/internal/schema"
	"github.com/tordrt/wshealth/internal/typemap"
)

// Introspector reads the live structure of a schema. It never changes it.
type Introspector interface {
	Engine() typemap.Engine
	// TableNames lists the base tables of a schema, sorted by name.
	TableNames(ctx context.Context, schemaName string) ([]string, error)
	// Columns lists the columns of a table in ordinal order. A missing table
	// yields an empty slice and no error.
	Columns(ctx context.Context, schemaName, table string) ([]schema.Column, error)
	// ForeignKeys lists single-column foreign keys declared on a table.
	ForeignKeys(ctx context.Context, schemaName, table string) ([]schema.ForeignKey, error)
}

// Conn is a live tenant database connection.
type Conn interface {
	Introspector
	// ExecMigration runs the DDL statements of one migration.
	ExecMigration(ctx context.Context, statements []string) error
	Close() error
}

// ParseDatabaseURL detects the engine and returns the driver connection string
func ParseDatabaseURL(url string) (typemap.Engine, string, error) {
	if url == "" {
		return "", "", fmt.Errorf("database URL is required")
	}

	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return typemap.Postgres, url, nil
	}

	if strings.HasPrefix(url, "mysql://") {
		// Strip mysql:// prefix for the Go MySQL driver
		return typemap.MySQL, strings.TrimPrefix(url, "mysql://"), nil
	}

	if strings.HasPrefix(url, "sqlite://") {
		// Strip sqlite:// prefix to get file path
		return typemap.SQLite, strings.TrimPrefix(url, "sqlite://"), nil
	}

	return "", "", fmt.Errorf("invalid database URL scheme (must start with postgres://, mysql://, or sqlite://)")
}

// Open connects to the database behind url.
func Open(ctx context.Context, url string) (Conn, error) {
	engine, connStr, err := ParseDatabaseURL(url)
	if err != nil {
		return nil, err
	}

	switch engine {
	case typemap.Postgres:
		client, err := NewPostgresClient(ctx, connStr, 4)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		return NewPostgresIntrospector(client), nil
	case typemap.MySQL:
		client, err := NewMySQLClient(ctx, connStr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
		}
		return NewMySQLIntrospector(client), nil
	case typemap.SQLite:
		client, err := NewSQLiteClient(ctx, connStr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
		}
		return NewSQLiteIntrospector(client), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", engine)
	}
}

// Connector keeps one live connection per data source url.
type Connector struct {
	mu    sync.Mutex
	conns map[string]Conn
	open  func(ctx context.Context, url string) (Conn, error)
}

// NewConnector creates a connector that opens connections with Open.
func NewConnector() *Connector {
	return &Connector{conns: make(map[string]Conn), open: Open}
}

// Connect returns the cached connection for url, opening it on first use.
func (c *Connector) Connect(ctx context.Context, url string) (Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.conns[url]; ok {
		return conn, nil
	}

	conn, err := c.open(ctx, url)
	if err != nil {
		return nil, err
	}
	c.conns[url] = conn
	return conn, nil
}

// Close closes every cached connection.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for url, conn := range c.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.conns, url)
	}
	return errors.Join(errs...)
}
