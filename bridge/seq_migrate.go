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

// SequentialMigration is one named, ordered migration with an Up and an
// optional Down function. Names sort lexically, so date-prefixed names
// ("20260115_add_scores") give a stable order.
type SequentialMigration struct {
	Name string
	Up   func(ctx context.Context, db *Database) error
	// Down reverses the migration; nil when rollback is unsupported.
	Down func(ctx context.Context, db *Database) error
	// Statements carries the raw TypeQL of a TQLMigration for dry-run
	// introspection and checksumming; nil for custom functions.
	Statements *TQLStatements
}

// TQLStatements holds the raw statements behind a TQLMigration.
type TQLStatements struct {
	Up   []string
	Down []string
}

// SeqMigrationInfo reports one migration's status.
type SeqMigrationInfo struct {
	Name      string
	Applied   bool
	AppliedAt string
}

// SeqMigrationError wraps a failure inside one migration.
type SeqMigrationError struct {
	Name  string
	Cause error
}

func (e *SeqMigrationError) Error() string {
	return fmt.Sprintf("seq migration %q: %v", e.Name, e.Cause)
}

func (e *SeqMigrationError) Unwrap() error { return e.Cause }

// ChecksumMismatchError means an already-applied migration's statements
// changed after it was recorded.
type ChecksumMismatchError struct {
	Name     string
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("seq migration %q: checksum mismatch: recorded %s, current %s", e.Name, e.Expected, e.Actual)
}

// SeqValidationIssue is a structural problem found before running.
type SeqValidationIssue struct {
	Name     string
	Message  string
	Severity string // "error" or "warning"
}

// MigrationJournal receives a local record of every applied migration, in
// addition to the in-database state. See the schemalog package for a
// SQLite-backed implementation.
type MigrationJournal interface {
	Append(ctx context.Context, name, checksum string, statements []string) error
}

type seqMigrationOptions struct {
	dryRun  bool
	target  string
	logger  func(string)
	journal MigrationJournal
}

// SeqMigrationOption configures RunSequentialMigrations and friends.
type SeqMigrationOption func(*seqMigrationOptions)

// WithSeqDryRun reports pending migrations without executing them.
func WithSeqDryRun() SeqMigrationOption {
	return func(o *seqMigrationOptions) { o.dryRun = true }
}

// WithSeqTarget stops after applying the named migration.
func WithSeqTarget(name string) SeqMigrationOption {
	return func(o *seqMigrationOptions) { o.target = name }
}

// WithSeqLogger sets a progress callback.
func WithSeqLogger(fn func(string)) SeqMigrationOption {
	return func(o *seqMigrationOptions) { o.logger = fn }
}

// WithSeqJournal mirrors applied migrations into a local journal.
func WithSeqJournal(j MigrationJournal) SeqMigrationOption {
	return func(o *seqMigrationOptions) { o.journal = j }
}

// TQLMigration builds a SequentialMigration from raw TypeQL statements.
// Each statement runs in a schema or write transaction according to its
// leading keyword.
func TQLMigration(name string, up, down []string) SequentialMigration {
	m := SequentialMigration{Name: name}
	if len(up) > 0 || len(down) > 0 {
		m.Statements = &TQLStatements{
			Up:   append([]string(nil), up...),
			Down: append([]string(nil), down...),
		}
	}
	if len(up) > 0 {
		upStmts := m.Statements.Up
		m.Up = func(ctx context.Context, db *Database) error {
			for _, stmt := range upStmts {
				if err := execStatement(ctx, db, stmt); err != nil {
					return err
				}
			}
			return nil
		}
	}
	if len(down) > 0 {
		downStmts := m.Statements.Down
		m.Down = func(ctx context.Context, db *Database) error {
			for _, stmt := range downStmts {
				if err := execStatement(ctx, db, stmt); err != nil {
					return err
				}
			}
			return nil
		}
	}
	return m
}

func execStatement(ctx context.Context, db *Database, stmt string) error {
	if statementTxType(stmt) == SchemaTransaction {
		return db.ExecuteSchema(ctx, stmt)
	}
	_, err := db.ExecuteWrite(ctx, stmt)
	return err
}

// MigrationChecksum identifies a TQLMigration's up statements; migrations
// with custom functions have no checksum.
func MigrationChecksum(m SequentialMigration) string {
	if m.Statements == nil || len(m.Statements.Up) == 0 {
		return ""
	}
	h := sha256.New()
	for _, s := range m.Statements.Up {
		h.Write([]byte(s))
		h.Write([]byte{'\n'})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ValidateSequentialMigrations checks for empty and duplicate names and
// missing Up functions without touching the database.
func ValidateSequentialMigrations(migrations []SequentialMigration) []SeqValidationIssue {
	var issues []SeqValidationIssue
	seen := make(map[string]bool)
	for i, m := range migrations {
		if m.Name == "" {
			issues = append(issues, SeqValidationIssue{
				Name:     fmt.Sprintf("[index %d]", i),
				Message:  "migration name is empty",
				Severity: "error",
			})
			continue
		}
		if seen[m.Name] {
			issues = append(issues, SeqValidationIssue{Name: m.Name, Message: "duplicate migration name", Severity: "error"})
		}
		seen[m.Name] = true
		if m.Up == nil {
			issues = append(issues, SeqValidationIssue{Name: m.Name, Message: "Up function is nil", Severity: "error"})
		}
	}
	if len(migrations) > 1 && !sort.SliceIsSorted(migrations, func(i, j int) bool {
		return migrations[i].Name < migrations[j].Name
	}) {
		issues = append(issues, SeqValidationIssue{
			Message:  "migrations are not in sorted order; they will be sorted automatically",
			Severity: "warning",
		})
	}
	return issues
}

func hasValidationErrors(issues []SeqValidationIssue) bool {
	for _, issue := range issues {
		if issue.Severity == "error" {
			return true
		}
	}
	return false
}

func formatIssues(issues []SeqValidationIssue) string {
	var parts []string
	for _, issue := range issues {
		if issue.Severity != "error" {
			continue
		}
		label := issue.Name
		if label == "" {
			label = "(global)"
		}
		parts = append(parts, label+": "+issue.Message)
	}
	return strings.Join(parts, "; ")
}

// RunSequentialMigrations validates, sorts and applies pending migrations,
// verifying the checksums of migrations already recorded. Returns the
// names applied, or in dry-run mode the names that would be.
func RunSequentialMigrations(ctx context.Context, db *Database, migrations []SequentialMigration, opts ...SeqMigrationOption) ([]string, error) {
	cfg := &seqMigrationOptions{}
	for _, opt := range opts {
		opt(cfg)
	}
	logFn := cfg.logger
	if logFn == nil {
		logFn = func(string) {}
	}

	issues := ValidateSequentialMigrations(migrations)
	if hasValidationErrors(issues) {
		return nil, fmt.Errorf("seq migration validation failed: %s", formatIssues(issues))
	}

	sorted := sortedByName(migrations)

	state := newSeqMigrationState(db)
	if err := state.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("seq migration: ensure state schema: %w", err)
	}
	applied, err := state.Applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("seq migration: query applied: %w", err)
	}

	for _, m := range sorted {
		rec, ok := applied[m.Name]
		if !ok || rec.Checksum == "" {
			continue
		}
		if current := MigrationChecksum(m); current != "" && current != rec.Checksum {
			return nil, &ChecksumMismatchError{Name: m.Name, Expected: rec.Checksum, Actual: current}
		}
	}

	pending := pendingOf(sorted, applied, cfg.target)

	if cfg.dryRun {
		names := make([]string, len(pending))
		for i, m := range pending {
			names[i] = m.Name
			logFn("[dry-run] pending: " + m.Name)
			if m.Statements != nil {
				for _, s := range m.Statements.Up {
					logFn("[dry-run]   " + s)
				}
			}
		}
		return names, nil
	}

	var appliedNames []string
	for _, m := range pending {
		logFn("applying: " + m.Name)
		if err := m.Up(ctx, db); err != nil {
			return appliedNames, &SeqMigrationError{Name: m.Name, Cause: err}
		}
		checksum := MigrationChecksum(m)
		if err := state.Record(ctx, m.Name, checksum); err != nil {
			return appliedNames, fmt.Errorf("seq migration: record %q: %w", m.Name, err)
		}
		if cfg.journal != nil {
			var stmts []string
			if m.Statements != nil {
				stmts = m.Statements.Up
			}
			if err := cfg.journal.Append(ctx, m.Name, checksum, stmts); err != nil {
				return appliedNames, fmt.Errorf("seq migration: journal %q: %w", m.Name, err)
			}
		}
		appliedNames = append(appliedNames, m.Name)
		logFn("applied: " + m.Name)
	}
	return appliedNames, nil
}

// StampSequentialMigrations records the given migrations as applied
// without running them, for databases whose schema was loaded in bulk.
func StampSequentialMigrations(ctx context.Context, db *Database, migrations []SequentialMigration, opts ...SeqMigrationOption) ([]string, error) {
	if len(migrations) == 0 {
		return nil, nil
	}
	cfg := &seqMigrationOptions{}
	for _, opt := range opts {
		opt(cfg)
	}
	logFn := cfg.logger
	if logFn == nil {
		logFn = func(string) {}
	}

	sorted := sortedByName(migrations)

	state := newSeqMigrationState(db)
	if err := state.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("seq stamp: ensure state schema: %w", err)
	}
	applied, err := state.Applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("seq stamp: query applied: %w", err)
	}

	pending := pendingOf(sorted, applied, cfg.target)

	if cfg.dryRun {
		names := make([]string, len(pending))
		for i, m := range pending {
			names[i] = m.Name
			logFn("[dry-run] stamp: " + m.Name)
		}
		return names, nil
	}

	var stamped []string
	for _, m := range pending {
		if err := state.Record(ctx, m.Name, MigrationChecksum(m)); err != nil {
			return stamped, fmt.Errorf("seq stamp: record %q: %w", m.Name, err)
		}
		stamped = append(stamped, m.Name)
		logFn("stamped: " + m.Name)
	}
	return stamped, nil
}

// SeqMigrationStatus reports every migration's applied state.
func SeqMigrationStatus(ctx context.Context, db *Database, migrations []SequentialMigration) ([]SeqMigrationInfo, error) {
	state := newSeqMigrationState(db)
	if err := state.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("seq migration status: ensure schema: %w", err)
	}
	applied, err := state.Applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("seq migration status: query applied: %w", err)
	}

	sorted := sortedByName(migrations)
	infos := make([]SeqMigrationInfo, len(sorted))
	for i, m := range sorted {
		info := SeqMigrationInfo{Name: m.Name}
		if rec, ok := applied[m.Name]; ok {
			info.Applied = true
			if !rec.AppliedAt.IsZero() {
				info.AppliedAt = rec.AppliedAt.UTC().Format(time.RFC3339)
			}
		}
		infos[i] = info
	}
	return infos, nil
}

// RollbackSequentialMigration reverts the last N applied migrations in
// reverse name order, using each migration's Down function.
func RollbackSequentialMigration(ctx context.Context, db *Database, migrations []SequentialMigration, steps int) ([]string, error) {
	if steps <= 0 {
		return nil, nil
	}
	state := newSeqMigrationState(db)
	if err := state.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("seq rollback: ensure schema: %w", err)
	}
	applied, err := state.Applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("seq rollback: query applied: %w", err)
	}

	byName := make(map[string]SequentialMigration, len(migrations))
	for _, m := range migrations {
		byName[m.Name] = m
	}

	names := make([]string, 0, len(applied))
	for name := range applied {
		names = append(names, name)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if steps > len(names) {
		steps = len(names)
	}

	var rolledBack []string
	for _, name := range names[:steps] {
		m, ok := byName[name]
		if !ok {
			return rolledBack, fmt.Errorf("seq rollback: migration %q not found in provided migrations", name)
		}
		if m.Down == nil {
			return rolledBack, fmt.Errorf("seq rollback: migration %q has no Down function", name)
		}
		if err := m.Down(ctx, db); err != nil {
			return rolledBack, &SeqMigrationError{Name: name, Cause: err}
		}
		if err := state.Delete(ctx, name); err != nil {
			return rolledBack, fmt.Errorf("seq rollback: delete record %q: %w", name, err)
		}
		rolledBack = append(rolledBack, name)
	}
	return rolledBack, nil
}

func sortedByName(migrations []SequentialMigration) []SequentialMigration {
	sorted := make([]SequentialMigration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return sorted
}

func pendingOf(sorted []SequentialMigration, applied map[string]seqMigrationRecord, target string) []SequentialMigration {
	var pending []SequentialMigration
	for _, m := range sorted {
		if _, ok := applied[m.Name]; ok {
			continue
		}
		pending = append(pending, m)
		if target != "" && m.Name == target {
			break
		}
	}
	return pending
}

// In-database state for sequential migrations.

const seqMigrationStateSchema = `define
attribute seq-migration-name, value string;
attribute seq-migration-checksum, value string;
attribute seq-migration-applied-at, value datetime;
entity seq-migration-record,
    owns seq-migration-name @key,
    owns seq-migration-checksum,
    owns seq-migration-applied-at;`

type seqMigrationRecord struct {
	Checksum  string
	AppliedAt time.Time
}

type seqMigrationState struct {
	db *Database
}

func newSeqMigrationState(db *Database) *seqMigrationState {
	return &seqMigrationState{db: db}
}

func (s *seqMigrationState) EnsureSchema(ctx context.Context) error {
	return s.db.ExecuteSchema(ctx, seqMigrationStateSchema)
}

func (s *seqMigrationState) Applied(ctx context.Context) (map[string]seqMigrationRecord, error) {
	query := ast.RenderQuery(
		ast.Match{Patterns: []ast.Pattern{ast.ThingPattern{Variable: "$m", TypeName: "seq-migration-record"}}},
		ast.Fetch{Items: []ast.FetchItem{
			ast.FetchField{Name: "name", Var: "$m", Attr: "seq-migration-name"},
			ast.FetchField{Name: "checksum", Var: "$m", Attr: "seq-migration-checksum"},
			ast.FetchField{Name: "applied-at", Var: "$m", Attr: "seq-migration-applied-at"},
		}},
	)
	rows, err := s.db.ExecuteRead(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("seq migration state: query applied: %w", err)
	}

	applied := make(map[string]seqMigrationRecord)
	for _, raw := range rows {
		row := unwrapRow(raw)
		name, _ := row["name"].(string)
		if name == "" {
			continue
		}
		rec := seqMigrationRecord{}
		if c, ok := row["checksum"].(string); ok {
			rec.Checksum = c
		}
		if at, err := toTime(row["applied-at"]); err == nil {
			rec.AppliedAt = at
		}
		applied[name] = rec
	}
	return applied, nil
}

func (s *seqMigrationState) Record(ctx context.Context, name, checksum string) error {
	has := []ast.HasAttr{
		{Attr: "seq-migration-name", Value: ast.LT(name, "string")},
		{Attr: "seq-migration-applied-at", Value: ast.LT(time.Now().UTC(), "datetime")},
	}
	if checksum != "" {
		has = append(has, ast.HasAttr{Attr: "seq-migration-checksum", Value: ast.LT(checksum, "string")})
	}
	query := ast.RenderQuery(ast.Insert{Statements: []ast.Statement{
		ast.InsertThing{Variable: "$m", TypeName: "seq-migration-record", Has: has},
	}})
	if _, err := s.db.ExecuteWrite(ctx, query); err != nil {
		return fmt.Errorf("seq migration state: record %q: %w", name, err)
	}
	return nil
}

func (s *seqMigrationState) Delete(ctx context.Context, name string) error {
	query := ast.RenderQuery(
		ast.Match{Patterns: []ast.Pattern{ast.ThingPattern{
			Variable: "$m",
			TypeName: "seq-migration-record",
			Has:      []ast.HasAttr{{Attr: "seq-migration-name", Value: ast.LT(name, "string")}},
		}}},
		ast.Delete{Statements: []ast.Statement{ast.DeleteThing{Variable: "$m"}}},
	)
	if _, err := s.db.ExecuteWrite(ctx, query); err != nil {
		return fmt.Errorf("seq migration state: delete %q: %w", name, err)
	}
	return nil
}
