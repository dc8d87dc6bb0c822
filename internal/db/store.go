package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/greenroomhq/greenroom/internal/db/driver"
)

// TxRunner provides a transactional execution interface.
// This allows operations to run within a transaction context,
// ensuring atomicity of multi-table operations.
type TxRunner interface {
	// RunInTx executes the given function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	RunInTx(ctx context.Context, fn func(tx *TxOps) error) error
}

// TxOps provides database operations within a transaction.
// It wraps a driver.Tx to provide the same interface as Store
// but executes all operations within the transaction. The context is
// stored and used for all operations, enabling cancellation and timeout
// propagation through the entire transaction.
type TxOps struct {
	tx      driver.Tx
	dialect driver.Dialect
	ctx     context.Context
}

// Exec executes a query within the transaction.
func (t *TxOps) Exec(query string, args ...any) (sql.Result, error) {
	return t.tx.Exec(t.ctx, query, args...)
}

// Query executes a query that returns rows within the transaction.
func (t *TxOps) Query(query string, args ...any) (*sql.Rows, error) {
	return t.tx.Query(t.ctx, query, args...)
}

// QueryRow executes a query that returns at most one row within the transaction.
func (t *TxOps) QueryRow(query string, args ...any) *sql.Row {
	return t.tx.QueryRow(t.ctx, query, args...)
}

// Context returns the context associated with this transaction.
func (t *TxOps) Context() context.Context {
	return t.ctx
}

// Dialect returns the database dialect.
func (t *TxOps) Dialect() driver.Dialect {
	return t.dialect
}

// Store provides operations on the greenroom database.
type Store struct {
	*DB
}

// Open opens the database at the given path using SQLite and applies
// migrations.
func Open(path string) (*Store, error) {
	return OpenWithDialect(path, driver.DialectSQLite)
}

// OpenWithDialect opens the database with a specific dialect.
// For SQLite, dsn is the file path. For PostgreSQL, dsn is the connection
// string.
func OpenWithDialect(dsn string, dialect driver.Dialect) (*Store, error) {
	db, err := open(dsn, dialect)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate("core"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	return &Store{DB: db}, nil
}

// OpenInMemory opens an in-memory SQLite database with migrations applied.
// Each call creates a new isolated database.
func OpenInMemory() (*Store, error) {
	db, err := open(":memory:", driver.DialectSQLite)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate("core"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	return &Store{DB: db}, nil
}

// RunInTx executes the given function within a database transaction.
// If fn returns an error, the transaction is rolled back.
// If fn returns nil, the transaction is committed.
func (s *Store) RunInTx(ctx context.Context, fn func(tx *TxOps) error) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txOps := &TxOps{
		tx:      tx,
		dialect: s.Dialect(),
		ctx:     ctx,
	}

	if err := fn(txOps); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %w (original error: %v)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// Ensure Store implements TxRunner
var _ TxRunner = (*Store)(nil)
