package bridge

import (
	"context"
	"testing"
	"time"
)

func TestHashStatements_Deterministic(t *testing.T) {
	a := HashStatements([]string{"define entity person;"})
	b := HashStatements([]string{"define entity person;"})
	if a != b {
		t.Error("same statements must hash identically")
	}
	if len(a) != 64 {
		t.Errorf("expected hex sha256, got %q", a)
	}
}

func TestHashStatements_OrderSensitive(t *testing.T) {
	a := HashStatements([]string{"s1", "s2"})
	b := HashStatements([]string{"s2", "s1"})
	if a == b {
		t.Error("statement order must change the hash")
	}
}

func TestHashStatements_BoundarySensitive(t *testing.T) {
	// Statement boundaries participate in the hash, so concatenations of
	// the same text hash differently.
	a := HashStatements([]string{"ab", "c"})
	b := HashStatements([]string{"a", "bc"})
	if a == b {
		t.Error("statement boundaries must change the hash")
	}
}

func TestStatementTxType(t *testing.T) {
	tests := []struct {
		stmt     string
		expected TransactionType
	}{
		{"define entity person;", SchemaTransaction},
		{"  DEFINE attribute name, value string;", SchemaTransaction},
		{"undefine entity person;", SchemaTransaction},
		{"redefine attribute name, value string;", SchemaTransaction},
		{"insert $p isa person;", WriteTransaction},
		{"match $p isa person;\ndelete\n$p;", WriteTransaction},
	}
	for _, tt := range tests {
		if got := statementTxType(tt.stmt); got != tt.expected {
			t.Errorf("statementTxType(%q) = %v, want %v", tt.stmt, got, tt.expected)
		}
	}
}

func TestMigrationState_Record(t *testing.T) {
	writeTx := &mockTx{}
	conn := &mockConn{txs: []*mockTx{writeTx}}
	ms := NewMigrationState(NewDatabase(conn, "test_db"))

	if err := ms.Record(context.Background(), "abc123", "initial"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	q := writeTx.queries[0]
	assertContains(t, q, "insert")
	assertContains(t, q, `$m isa migration-record, has migration-hash "abc123", has migration-summary "initial", has migration-applied-at`)
	if !writeTx.committed {
		t.Error("transaction was not committed")
	}
}

func TestMigrationState_IsApplied(t *testing.T) {
	readTx := &mockTx{
		responses: [][]map[string]any{
			{{"iid": "0x1"}},
		},
	}
	conn := &mockConn{txs: []*mockTx{readTx}}
	ms := NewMigrationState(NewDatabase(conn, "test_db"))

	applied, err := ms.IsApplied(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("IsApplied failed: %v", err)
	}
	if !applied {
		t.Error("expected true")
	}
	assertContains(t, readTx.queries[0], `has migration-hash "abc123"`)
}

func TestMigrationState_Applied_SortedByTime(t *testing.T) {
	readTx := &mockTx{
		responses: [][]map[string]any{
			{
				{"hash": "h2", "summary": "second", "applied-at": "2024-02-01T00:00:00"},
				{"hash": "h1", "summary": "first", "applied-at": "2024-01-01T00:00:00"},
			},
		},
	}
	conn := &mockConn{txs: []*mockTx{readTx}}
	ms := NewMigrationState(NewDatabase(conn, "test_db"))

	records, err := ms.Applied(context.Background())
	if err != nil {
		t.Fatalf("Applied failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Hash != "h1" || records[1].Hash != "h2" {
		t.Errorf("expected chronological order, got %v", records)
	}
	if !records[0].AppliedAt.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected applied-at: %v", records[0].AppliedAt)
	}
}

func TestApplySchema(t *testing.T) {
	registerTestTypes(t)
	schemaTx := &mockTx{}
	conn := &mockConn{txs: []*mockTx{schemaTx}}
	db := NewDatabase(conn, "test_db")

	if err := ApplySchema(context.Background(), db); err != nil {
		t.Fatalf("ApplySchema failed: %v", err)
	}
	assertContains(t, schemaTx.queries[0], "define\n")
	assertContains(t, schemaTx.queries[0], "entity test-person")
	if !schemaTx.committed {
		t.Error("schema transaction was not committed")
	}
}

func TestApplySchema_EmptyRegistry(t *testing.T) {
	ClearRegistry()
	conn := &mockConn{}
	if err := ApplySchema(context.Background(), NewDatabase(conn, "test_db")); err != nil {
		t.Fatalf("expected no-op for empty registry, got %v", err)
	}
	if conn.idx != 0 {
		t.Error("no transaction should be opened for an empty registry")
	}
}

func TestApplySchemaWithState_FirstRun(t *testing.T) {
	registerTestTypes(t)
	ensureTx := &mockTx{}
	checkTx := &mockTx{responses: [][]map[string]any{nil}}
	applyTx := &mockTx{}
	recordTx := &mockTx{}
	conn := &mockConn{txs: []*mockTx{ensureTx, checkTx, applyTx, recordTx}}
	db := NewDatabase(conn, "test_db")

	applied, err := ApplySchemaWithState(context.Background(), db)
	if err != nil {
		t.Fatalf("ApplySchemaWithState failed: %v", err)
	}
	if !applied {
		t.Error("expected schema to be applied")
	}
	assertContains(t, ensureTx.queries[0], "entity migration-record")
	assertContains(t, checkTx.queries[0], "has migration-hash")
	assertContains(t, applyTx.queries[0], "entity test-person")
	assertContains(t, recordTx.queries[0], "$m isa migration-record")
}

func TestApplySchemaWithState_AlreadyApplied(t *testing.T) {
	registerTestTypes(t)
	ensureTx := &mockTx{}
	checkTx := &mockTx{responses: [][]map[string]any{{{"iid": "0x1"}}}}
	conn := &mockConn{txs: []*mockTx{ensureTx, checkTx}}
	db := NewDatabase(conn, "test_db")

	applied, err := ApplySchemaWithState(context.Background(), db)
	if err != nil {
		t.Fatalf("ApplySchemaWithState failed: %v", err)
	}
	if applied {
		t.Error("expected skip for already-applied revision")
	}
	if conn.idx != 2 {
		t.Errorf("expected only ensure and check transactions, opened %d", conn.idx)
	}
}
