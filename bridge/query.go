package bridge

import (
	"context"
	"fmt"

	"github.com/typebridge/typebridge/ast"
)

// queryOps is the manager surface a chainable query drives. Both the
// entity and relation managers implement it.
type queryOps[T any] interface {
	modelInfo() *ModelInfo
	database() *Database
	queryTx() Tx
	parseQueryFilters(filters map[string]any) (*parsedFilters, *roleFilters, error)
	buildReadQuery(pf *parsedFilters, rf *roleFilters, limit, offset *int) (string, error)
	decodeRows(rows []map[string]any) ([]*T, error)
	deleteParsedFilters(ctx context.Context, pf *parsedFilters, rf *roleFilters) (int, error)
	applySnapshotUpdate(ctx context.Context, tx Tx, instance *T, snap *snapshot) error
	aggregateMatch(pf *parsedFilters, rf *roleFilters, g *varGen) ([]ast.Pattern, string, error)
}

// Query is a lazy, chainable view over one registered type. Each chaining
// method returns a new query; nothing touches the database until a
// terminal method runs.
type Query[T any] struct {
	ops     queryOps[T]
	filters map[string]any
	exprs   []Expression
	limit   *int
	offset  *int
}

func newQuery[T any](ops queryOps[T], filters map[string]any, exprs []Expression) *Query[T] {
	q := &Query[T]{ops: ops, filters: make(map[string]any, len(filters))}
	for k, v := range filters {
		q.filters[k] = v
	}
	q.exprs = append(q.exprs, exprs...)
	return q
}

func (q *Query[T]) clone() *Query[T] {
	c := &Query[T]{ops: q.ops, filters: make(map[string]any, len(q.filters)), limit: q.limit, offset: q.offset}
	for k, v := range q.filters {
		c.filters[k] = v
	}
	c.exprs = append(c.exprs, q.exprs...)
	return c
}

// Filter returns a new query with the given filters merged in. A key
// repeated across calls takes the later value.
func (q *Query[T]) Filter(filters map[string]any) *Query[T] {
	c := q.clone()
	for k, v := range filters {
		c.filters[k] = v
	}
	return c
}

// Where returns a new query with additional filter expressions.
func (q *Query[T]) Where(exprs ...Expression) *Query[T] {
	c := q.clone()
	c.exprs = append(c.exprs, exprs...)
	return c
}

// Limit caps the number of results. Results are sorted by a stable
// attribute so pages do not shuffle between calls.
func (q *Query[T]) Limit(n int) *Query[T] {
	c := q.clone()
	c.limit = &n
	return c
}

// Offset skips the first n results.
func (q *Query[T]) Offset(n int) *Query[T] {
	c := q.clone()
	c.offset = &n
	return c
}

func (q *Query[T]) parse() (*parsedFilters, *roleFilters, error) {
	pf, rf, err := q.ops.parseQueryFilters(q.filters)
	if err != nil {
		return nil, nil, err
	}
	pf.exprs = append(pf.exprs, q.exprs...)
	return pf, rf, nil
}

// Execute runs the query and returns all matching instances.
func (q *Query[T]) Execute(ctx context.Context) ([]*T, error) {
	info := q.ops.modelInfo()
	if err := checkCtx(ctx, "query "+info.TypeName); err != nil {
		return nil, err
	}
	pf, rf, err := q.parse()
	if err != nil {
		return nil, err
	}
	if pf.emptyIn {
		return []*T{}, nil
	}
	query, err := q.ops.buildReadQuery(pf, rf, q.limit, q.offset)
	if err != nil {
		return nil, err
	}
	rows, err := readRows(ctx, q.ops.database(), q.ops.queryTx(), query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", info.TypeName, err)
	}
	return q.ops.decodeRows(rows)
}

// First returns the first result or nil when nothing matches.
func (q *Query[T]) First(ctx context.Context) (*T, error) {
	results, err := q.Limit(1).Execute(ctx)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

// Count returns the number of matching instances.
func (q *Query[T]) Count(ctx context.Context) (int, error) {
	results, err := q.Execute(ctx)
	if err != nil {
		return 0, err
	}
	return len(results), nil
}

// Exists reports whether at least one instance matches.
func (q *Query[T]) Exists(ctx context.Context) (bool, error) {
	first, err := q.First(ctx)
	if err != nil {
		return false, err
	}
	return first != nil, nil
}

// Delete removes every matching instance and returns the count. Empty
// in-lists delete nothing.
func (q *Query[T]) Delete(ctx context.Context) (int, error) {
	info := q.ops.modelInfo()
	if err := checkCtx(ctx, "delete "+info.TypeName); err != nil {
		return 0, err
	}
	pf, rf, err := q.parse()
	if err != nil {
		return 0, err
	}
	if pf.emptyIn {
		return 0, nil
	}
	return q.ops.deleteParsedFilters(ctx, pf, rf)
}

// UpdateWith fetches every matching instance, snapshots its persisted
// values, applies mutate in memory, then writes all changes in one
// transaction. An error from mutate or from any write aborts the whole
// batch before commit. Returns the number of instances updated.
func (q *Query[T]) UpdateWith(ctx context.Context, mutate func(*T) error) (int, error) {
	info := q.ops.modelInfo()
	instances, err := q.Execute(ctx)
	if err != nil {
		return 0, err
	}
	if len(instances) == 0 {
		return 0, nil
	}

	snaps := make([]*snapshot, len(instances))
	for i, inst := range instances {
		snaps[i] = snapshotOf(info, structValue(inst))
		if err := mutate(inst); err != nil {
			return 0, fmt.Errorf("update %s: mutate: %w", info.TypeName, err)
		}
	}

	tx, autoCommit, err := openWrite(q.ops.database(), q.ops.queryTx())
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", info.TypeName, err)
	}
	if autoCommit {
		defer tx.Close()
	}

	for i, inst := range instances {
		if err := q.ops.applySnapshotUpdate(ctx, tx, inst, snaps[i]); err != nil {
			return 0, err
		}
	}

	if autoCommit {
		if err := tx.Commit(); err != nil {
			return 0, fmt.Errorf("update %s: commit: %w", info.TypeName, err)
		}
	}
	return len(instances), nil
}

// Entity manager query backend.

func (m *Manager[T]) modelInfo() *ModelInfo { return m.info }
func (m *Manager[T]) database() *Database   { return m.db }
func (m *Manager[T]) queryTx() Tx           { return m.tx }

func (m *Manager[T]) parseQueryFilters(filters map[string]any) (*parsedFilters, *roleFilters, error) {
	pf, err := parseFilters(m.info, filters)
	return pf, nil, err
}

func (m *Manager[T]) buildReadQuery(pf *parsedFilters, _ *roleFilters, limit, offset *int) (string, error) {
	return m.readQuery(pf, limit, offset)
}

func (m *Manager[T]) decodeRows(rows []map[string]any) ([]*T, error) {
	return m.hydrateAll(rows)
}

func (m *Manager[T]) deleteParsedFilters(ctx context.Context, pf *parsedFilters, _ *roleFilters) (int, error) {
	g := &varGen{}
	patterns, err := matchPatterns(m.info, "$e", pf, g)
	if err != nil {
		return 0, err
	}
	query := ast.RenderQuery(
		ast.Match{Patterns: patterns},
		ast.Delete{Statements: []ast.Statement{ast.DeleteThing{Variable: "$e"}}},
	)
	results, err := m.executeWrite(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", m.info.TypeName, err)
	}
	return len(results), nil
}

// applySnapshotUpdate diffs the instance against a known snapshot instead
// of re-reading persisted values, then runs the update keyed on the type's
// key attribute.
func (m *Manager[T]) applySnapshotUpdate(ctx context.Context, tx Tx, instance *T, snap *snapshot) error {
	v := structValue(instance)
	key, keyVal, err := keyValueOf(m.info, v)
	if err != nil {
		return err
	}
	// The key may itself have been mutated; match on its snapshot value.
	matchKey := keyVal
	if orig, ok := snap.singles[key.Name]; ok {
		matchKey = orig
	}

	plan := buildUpdatePlan(m.info, "$e", v, key, snap.multis)
	if canon := ast.FormatTyped(keyVal, key.ValueType); canon != ast.FormatTyped(matchKey, key.ValueType) {
		plan.updates = append(plan.updates, ast.HasStatement{Subject: "$e", Attr: key.Name, Value: ast.LT(keyVal, key.ValueType)})
	}
	query, ok := plan.render(ast.ThingPattern{
		Variable: "$e",
		TypeName: m.info.TypeName,
		Has:      []ast.HasAttr{{Attr: key.Name, Value: ast.LT(matchKey, key.ValueType)}},
	})
	if !ok {
		return nil
	}
	if _, err := tx.QueryWithContext(ctx, query); err != nil {
		return fmt.Errorf("update %s: %w", m.info.TypeName, err)
	}
	return nil
}

func (m *Manager[T]) aggregateMatch(pf *parsedFilters, _ *roleFilters, g *varGen) ([]ast.Pattern, string, error) {
	patterns, err := matchPatterns(m.info, "$e", pf, g)
	return patterns, "$e", err
}

// Relation manager query backend.

func (m *RelationManager[T]) modelInfo() *ModelInfo { return m.info }
func (m *RelationManager[T]) database() *Database   { return m.db }
func (m *RelationManager[T]) queryTx() Tx           { return m.tx }

func (m *RelationManager[T]) parseQueryFilters(filters map[string]any) (*parsedFilters, *roleFilters, error) {
	attrs, rf, err := m.splitFilters(filters)
	if err != nil {
		return nil, nil, err
	}
	pf, err := parseFilters(m.info, attrs)
	if err != nil {
		return nil, nil, err
	}
	return pf, rf, nil
}

func (m *RelationManager[T]) buildReadQuery(pf *parsedFilters, rf *roleFilters, limit, offset *int) (string, error) {
	return m.readQuery(pf, rf, limit, offset)
}

func (m *RelationManager[T]) decodeRows(rows []map[string]any) ([]*T, error) {
	return m.hydrateRows(rows)
}

func (m *RelationManager[T]) deleteParsedFilters(ctx context.Context, pf *parsedFilters, rf *roleFilters) (int, error) {
	return m.deleteParsed(ctx, pf, rf)
}

func (m *RelationManager[T]) applySnapshotUpdate(ctx context.Context, tx Tx, instance *T, snap *snapshot) error {
	return m.updateSnapshotInTx(ctx, tx, instance, snap)
}

func (m *RelationManager[T]) aggregateMatch(pf *parsedFilters, rf *roleFilters, g *varGen) ([]ast.Pattern, string, error) {
	patterns, _, err := m.buildMatch(pf, rf, g)
	return patterns, "$r", err
}
