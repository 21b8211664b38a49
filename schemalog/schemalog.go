// Package schemalog keeps a local, append-only journal of applied schema
// revisions in a SQLite file. It complements the in-database migration
// state: the database records what was applied, the journal records what
// this client applied and when, surviving database resets.
package schemalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS schema_revisions (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    name       TEXT    NOT NULL UNIQUE,
    checksum   TEXT    NOT NULL,
    statements TEXT    NOT NULL,
    applied_at TEXT    NOT NULL
);`

// Entry is one journaled revision.
type Entry struct {
	ID         int64
	Name       string
	Checksum   string
	Statements []string
	AppliedAt  time.Time
}

// Log is a SQLite-backed revision journal. Safe for concurrent use.
type Log struct {
	db *sql.DB
}

// Open creates or opens a journal at path. Use ":memory:" for an
// ephemeral journal.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("schemalog: open %q: %w", path, err)
	}
	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("schemalog: init schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Close releases the underlying database handle.
func (l *Log) Close() error {
	return l.db.Close()
}

// Append journals one applied revision. Re-appending the same name with
// the same checksum is a no-op; the same name with a different checksum is
// an error.
func (l *Log) Append(ctx context.Context, name, checksum string, statements []string) error {
	existing, err := l.byName(ctx, name)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Checksum == checksum {
			return nil
		}
		return fmt.Errorf("schemalog: revision %q already journaled with checksum %s", name, existing.Checksum)
	}

	encoded, err := json.Marshal(statements)
	if err != nil {
		return fmt.Errorf("schemalog: encode statements: %w", err)
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO schema_revisions (name, checksum, statements, applied_at) VALUES (?, ?, ?, ?)`,
		name, checksum, string(encoded), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("schemalog: append %q: %w", name, err)
	}
	return nil
}

// Entries returns the whole journal in application order.
func (l *Log) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, name, checksum, statements, applied_at FROM schema_revisions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("schemalog: query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schemalog: iterate entries: %w", err)
	}
	return entries, nil
}

// Last returns the most recent entry, or nil for an empty journal.
func (l *Log) Last(ctx context.Context) (*Entry, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT id, name, checksum, statements, applied_at FROM schema_revisions ORDER BY id DESC LIMIT 1`)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Contains reports whether a revision name is journaled.
func (l *Log) Contains(ctx context.Context, name string) (bool, error) {
	e, err := l.byName(ctx, name)
	if err != nil {
		return false, err
	}
	return e != nil, nil
}

func (l *Log) byName(ctx context.Context, name string) (*Entry, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT id, name, checksum, statements, applied_at FROM schema_revisions WHERE name = ?`, name)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	var encoded, appliedAt string
	if err := row.Scan(&e.ID, &e.Name, &e.Checksum, &encoded, &appliedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("schemalog: scan entry: %w", err)
	}
	if err := json.Unmarshal([]byte(encoded), &e.Statements); err != nil {
		return Entry{}, fmt.Errorf("schemalog: decode statements for %q: %w", e.Name, err)
	}
	at, err := time.Parse(time.RFC3339Nano, appliedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("schemalog: parse applied_at for %q: %w", e.Name, err)
	}
	e.AppliedAt = at
	return e, nil
}
