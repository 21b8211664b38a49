package bridge

import (
	"context"
	"fmt"
	"log"
	"runtime"
)

// TransactionType is the mode of a TypeDB transaction.
type TransactionType int

const (
	// ReadTransaction is for data retrieval only.
	ReadTransaction TransactionType = iota
	// WriteTransaction allows data modification.
	WriteTransaction
	// SchemaTransaction allows schema modification.
	SchemaTransaction
)

// Tx executes queries within one transaction. Transaction lifecycle,
// pooling, and retries belong to the implementation; this package performs
// no retries and assumes at most one in-flight query per handle.
type Tx interface {
	Query(query string) ([]map[string]any, error)
	QueryWithContext(ctx context.Context, query string) ([]map[string]any, error)
	Commit() error
	Rollback() error
	Close()
	IsOpen() bool
}

// Conn is a connection to a TypeDB server.
type Conn interface {
	Transaction(dbName string, txType int) (Tx, error)
	Schema(dbName string) (string, error)
	DatabaseCreate(name string) error
	DatabaseDelete(name string) error
	DatabaseContains(name string) (bool, error)
	DatabaseAll() ([]string, error)
	Close()
	IsOpen() bool
}

// EnsureDatabase creates the named database if it does not exist. It
// reports whether the database was newly created.
func EnsureDatabase(ctx context.Context, conn Conn, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("ensure database: %w", err)
	}
	exists, err := conn.DatabaseContains(name)
	if err != nil {
		return false, fmt.Errorf("ensure database: check existence: %w", err)
	}
	if exists {
		return false, nil
	}
	if err := conn.DatabaseCreate(name); err != nil {
		return false, fmt.Errorf("ensure database: create: %w", err)
	}
	return true, nil
}

// Database is a handle to one named database on a connection.
type Database struct {
	conn   Conn
	dbName string
}

// NewDatabase binds a connection to a database name.
func NewDatabase(conn Conn, dbName string) *Database {
	return &Database{conn: conn, dbName: dbName}
}

// Name returns the database name.
func (db *Database) Name() string { return db.dbName }

// Conn returns the underlying connection.
func (db *Database) Conn() Conn { return db.conn }

// Schema returns the database's current TypeQL schema text.
func (db *Database) Schema(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("schema: %w", err)
	}
	return db.conn.Schema(db.dbName)
}

// Transaction opens a transaction of the given type.
func (db *Database) Transaction(txType TransactionType) (Tx, error) {
	return db.conn.Transaction(db.dbName, int(txType))
}

// ExecuteRead runs a query in a short-lived read transaction.
func (db *Database) ExecuteRead(ctx context.Context, query string) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	tx, err := db.Transaction(ReadTransaction)
	if err != nil {
		return nil, fmt.Errorf("open read transaction: %w", err)
	}
	defer tx.Close()
	return tx.QueryWithContext(ctx, query)
}

// ExecuteWrite runs a query in a short-lived write transaction and commits.
func (db *Database) ExecuteWrite(ctx context.Context, query string) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	tx, err := db.Transaction(WriteTransaction)
	if err != nil {
		return nil, fmt.Errorf("open write transaction: %w", err)
	}
	defer tx.Close()

	results, err := tx.QueryWithContext(ctx, query)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return results, nil
}

// ExecuteSchema runs a schema query in a schema transaction and commits.
func (db *Database) ExecuteSchema(ctx context.Context, query string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	tx, err := db.Transaction(SchemaTransaction)
	if err != nil {
		return fmt.Errorf("open schema transaction: %w", err)
	}
	defer tx.Close()

	if _, err := tx.QueryWithContext(ctx, query); err != nil {
		return err
	}
	return tx.Commit()
}

// TransactionContext is an explicitly managed transaction that can be
// shared across several manager operations.
type TransactionContext struct {
	db     *Database
	tx     Tx
	txType TransactionType
	closed bool
}

// Begin opens a TransactionContext. The caller must Close it; a finalizer
// logs a warning if it is collected while still open.
func (db *Database) Begin(txType TransactionType) (*TransactionContext, error) {
	tx, err := db.Transaction(txType)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	tc := &TransactionContext{db: db, tx: tx, txType: txType}
	runtime.SetFinalizer(tc, func(tc *TransactionContext) {
		if !tc.closed {
			log.Printf("WARNING: transaction on %q was garbage-collected without being closed (possible leak)", db.dbName)
		}
	})
	return tc, nil
}

// Commit persists the transaction's changes.
func (tc *TransactionContext) Commit() error {
	tc.closed = true
	return tc.tx.Commit()
}

// Rollback discards the transaction's changes.
func (tc *TransactionContext) Rollback() error {
	tc.closed = true
	return tc.tx.Rollback()
}

// Close releases the transaction.
func (tc *TransactionContext) Close() {
	tc.closed = true
	tc.tx.Close()
}

// Tx exposes the underlying transaction for direct use.
func (tc *TransactionContext) Tx() Tx { return tc.tx }
