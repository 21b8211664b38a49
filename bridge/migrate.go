package bridge

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/typebridge/typebridge/ast"
)

// migrationStateSchema defines the in-database schema used to track which
// schema revisions have been applied.
const migrationStateSchema = `define
attribute migration-hash, value string;
attribute migration-summary, value string;
attribute migration-applied-at, value datetime;
entity migration-record,
    owns migration-hash @key,
    owns migration-summary,
    owns migration-applied-at;`

// MigrationRecord is one applied schema revision.
type MigrationRecord struct {
	Hash      string
	Summary   string
	AppliedAt time.Time
}

// MigrationState tracks applied schema revisions inside the target
// database itself, so every client of the database sees the same history.
type MigrationState struct {
	db *Database
}

func NewMigrationState(db *Database) *MigrationState {
	return &MigrationState{db: db}
}

// EnsureSchema creates the tracking schema. Idempotent.
func (ms *MigrationState) EnsureSchema(ctx context.Context) error {
	return ms.db.ExecuteSchema(ctx, migrationStateSchema)
}

// Applied returns every recorded revision ordered by application time.
func (ms *MigrationState) Applied(ctx context.Context) ([]MigrationRecord, error) {
	query := ast.RenderQuery(
		ast.Match{Patterns: []ast.Pattern{ast.ThingPattern{Variable: "$m", TypeName: "migration-record"}}},
		ast.Fetch{Items: []ast.FetchItem{
			ast.FetchField{Name: "hash", Var: "$m", Attr: "migration-hash"},
			ast.FetchField{Name: "summary", Var: "$m", Attr: "migration-summary"},
			ast.FetchField{Name: "applied-at", Var: "$m", Attr: "migration-applied-at"},
		}},
	)
	rows, err := ms.db.ExecuteRead(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("migration state: query applied: %w", err)
	}

	var records []MigrationRecord
	for _, raw := range rows {
		row := unwrapRow(raw)
		r := MigrationRecord{}
		if h, ok := row["hash"].(string); ok {
			r.Hash = h
		}
		if s, ok := row["summary"].(string); ok {
			r.Summary = s
		}
		if at, err := toTime(row["applied-at"]); err == nil {
			r.AppliedAt = at
		}
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].AppliedAt.Before(records[j].AppliedAt)
	})
	return records, nil
}

// IsApplied reports whether a revision with the given hash is recorded.
func (ms *MigrationState) IsApplied(ctx context.Context, hash string) (bool, error) {
	query := ast.RenderQuery(
		ast.Match{Patterns: []ast.Pattern{ast.ThingPattern{
			Variable: "$m",
			TypeName: "migration-record",
			Has:      []ast.HasAttr{{Attr: "migration-hash", Value: ast.LT(hash, "string")}},
		}}},
		ast.Fetch{Items: []ast.FetchItem{ast.FetchFunc{Name: "iid", Func: "iid", Var: "$m"}}},
	)
	rows, err := ms.db.ExecuteRead(ctx, query)
	if err != nil {
		return false, fmt.Errorf("migration state: check applied: %w", err)
	}
	return len(rows) > 0, nil
}

// Record stores a newly applied revision.
func (ms *MigrationState) Record(ctx context.Context, hash, summary string) error {
	query := ast.RenderQuery(ast.Insert{Statements: []ast.Statement{
		ast.InsertThing{Variable: "$m", TypeName: "migration-record", Has: []ast.HasAttr{
			{Attr: "migration-hash", Value: ast.LT(hash, "string")},
			{Attr: "migration-summary", Value: ast.LT(summary, "string")},
			{Attr: "migration-applied-at", Value: ast.LT(time.Now().UTC(), "datetime")},
		}},
	}})
	if _, err := ms.db.ExecuteWrite(ctx, query); err != nil {
		return fmt.Errorf("migration state: record: %w", err)
	}
	return nil
}

// HashStatements produces the deterministic identity of a set of schema
// statements.
func HashStatements(stmts []string) string {
	h := sha256.New()
	for _, s := range stmts {
		h.Write([]byte(s))
		h.Write([]byte{'\n'})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ApplySchema defines the complete schema of every registered model.
// TypeQL define statements are additive, so re-applying an unchanged
// schema is a no-op on the server side.
func ApplySchema(ctx context.Context, db *Database) error {
	schema := GenerateSchema()
	if schema == "" {
		return nil
	}
	if err := db.ExecuteSchema(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// ApplySchemaWithState applies the registry schema once per distinct
// revision: the generated statements are hashed, and a hash already
// present in the migration state is skipped. Returns true when the schema
// was applied, false when it was already current.
func ApplySchemaWithState(ctx context.Context, db *Database) (bool, error) {
	schema := GenerateSchema()
	if schema == "" {
		return false, nil
	}

	ms := NewMigrationState(db)
	if err := ms.EnsureSchema(ctx); err != nil {
		return false, fmt.Errorf("apply schema: ensure state schema: %w", err)
	}

	hash := HashStatements([]string{schema})
	applied, err := ms.IsApplied(ctx, hash)
	if err != nil {
		return false, fmt.Errorf("apply schema: check state: %w", err)
	}
	if applied {
		return false, nil
	}

	if err := db.ExecuteSchema(ctx, schema); err != nil {
		return false, fmt.Errorf("apply schema: %w", err)
	}

	summary := fmt.Sprintf("registry schema, %d types", len(RegisteredTypes()))
	if err := ms.Record(ctx, hash, summary); err != nil {
		return true, fmt.Errorf("apply schema: record state: %w", err)
	}
	return true, nil
}

// statementTxType routes a raw statement to a schema or write transaction
// by its leading keyword.
func statementTxType(stmt string) TransactionType {
	trimmed := strings.TrimSpace(strings.ToLower(stmt))
	for _, prefix := range []string{"define", "undefine", "redefine"} {
		if strings.HasPrefix(trimmed, prefix) {
			return SchemaTransaction
		}
	}
	return WriteTransaction
}
