package bridge

import (
	"context"
	"fmt"
	"reflect"

	"github.com/typebridge/typebridge/ast"
)

// Manager provides typed CRUD operations for one registered entity type.
type Manager[T any] struct {
	db   *Database
	info *ModelInfo
	tx   Tx
}

// NewManager creates a manager for entity type T, which must be registered.
func NewManager[T any](db *Database) (*Manager[T], error) {
	return NewManagerWithTx[T](db, nil)
}

// NewManagerWithTx creates a manager whose operations run on the supplied
// transaction instead of opening short-lived ones. The caller owns the
// transaction lifecycle.
func NewManagerWithTx[T any](db *Database, tx Tx) (*Manager[T], error) {
	var zero T
	info, err := LookupType(reflect.TypeOf(zero))
	if err != nil {
		return nil, err
	}
	if info.Kind != EntityModel {
		return nil, fmt.Errorf("type %q is a relation, use NewRelationManager", info.TypeName)
	}
	return &Manager[T]{db: db, info: info, tx: tx}, nil
}

// Info returns the manager's model descriptor.
func (m *Manager[T]) Info() *ModelInfo { return m.info }

// Insert persists one instance. It does not check pre-existence; key
// conflicts surface as transport errors.
func (m *Manager[T]) Insert(ctx context.Context, instance *T) error {
	return m.InsertMany(ctx, []*T{instance})
}

// InsertMany persists a batch of instances in one query and one
// transaction, so the batch commits or fails as a whole.
func (m *Manager[T]) InsertMany(ctx context.Context, instances []*T) error {
	if len(instances) == 0 {
		return nil
	}
	if err := checkCtx(ctx, "insert "+m.info.TypeName); err != nil {
		return err
	}

	stmts := make([]ast.Statement, 0, len(instances))
	for i, inst := range instances {
		stmts = append(stmts, ast.InsertThing{
			Variable: fmt.Sprintf("$e%d", i),
			TypeName: m.info.TypeName,
			Has:      hasAttrsOf(m.info, structValue(inst)),
		})
	}
	query := ast.RenderQuery(ast.Insert{Statements: stmts})

	results, err := m.executeWrite(ctx, query)
	if err != nil {
		return fmt.Errorf("insert %s: %w", m.info.TypeName, err)
	}
	if len(results) > 0 {
		for i, inst := range instances {
			setIIDOf(inst, extractIID(results[0], fmt.Sprintf("e%d", i)))
		}
	}
	return nil
}

// Put writes the instance only if no identical instance exists. The check
// covers the whole instance: every attribute value participates.
func (m *Manager[T]) Put(ctx context.Context, instance *T) error {
	return m.PutMany(ctx, []*T{instance})
}

// PutMany is the batched Put, all-or-nothing: if every instance in the
// batch already matches existing data nothing is written; if any does not,
// the entire batch is inserted. Mixing existing and new instances that
// share key values therefore raises the engine's key-constraint violation;
// callers must keep such instances in separate batches.
func (m *Manager[T]) PutMany(ctx context.Context, instances []*T) error {
	if len(instances) == 0 {
		return nil
	}
	if err := checkCtx(ctx, "put "+m.info.TypeName); err != nil {
		return err
	}

	stmts := make([]ast.Statement, 0, len(instances))
	for i, inst := range instances {
		stmts = append(stmts, ast.InsertThing{
			Variable: fmt.Sprintf("$e%d", i),
			TypeName: m.info.TypeName,
			Has:      hasAttrsOf(m.info, structValue(inst)),
		})
	}
	query := ast.RenderQuery(ast.Put{Statements: stmts})

	if _, err := m.executeWrite(ctx, query); err != nil {
		return fmt.Errorf("put %s: %w", m.info.TypeName, err)
	}
	return nil
}

// Get returns all instances matching the filter map and expressions. An
// empty in-list filter yields no results without querying.
func (m *Manager[T]) Get(ctx context.Context, filters map[string]any, exprs ...Expression) ([]*T, error) {
	if err := checkCtx(ctx, "get "+m.info.TypeName); err != nil {
		return nil, err
	}
	pf, err := parseFilters(m.info, filters)
	if err != nil {
		return nil, err
	}
	if pf.emptyIn {
		return []*T{}, nil
	}
	pf.exprs = append(pf.exprs, exprs...)

	query, err := m.readQuery(pf, nil, nil)
	if err != nil {
		return nil, err
	}
	rows, err := readRows(ctx, m.db, m.tx, query)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", m.info.TypeName, err)
	}
	return m.hydrateAll(rows)
}

// All returns every instance of the type.
func (m *Manager[T]) All(ctx context.Context) ([]*T, error) {
	return m.Get(ctx, nil)
}

// GetByIID fetches one instance by its engine identity. A missing match is
// a NotFoundError.
func (m *Manager[T]) GetByIID(ctx context.Context, iid string) (*T, error) {
	if err := checkCtx(ctx, "get "+m.info.TypeName); err != nil {
		return nil, err
	}
	query := ast.RenderQuery(
		ast.Match{Patterns: []ast.Pattern{ast.ThingPattern{Variable: "$e", TypeName: m.info.TypeName, IID: iid}}},
		ast.Fetch{Items: fetchItems(m.info, "$e")},
	)
	rows, err := readRows(ctx, m.db, m.tx, query)
	if err != nil {
		return nil, fmt.Errorf("get %s by iid: %w", m.info.TypeName, err)
	}
	if len(rows) == 0 {
		return nil, &NotFoundError{TypeName: m.info.TypeName, Detail: "iid " + iid}
	}
	return m.hydrateOne(rows[0])
}

// Filter returns a lazy chainable query seeded with the given filters.
func (m *Manager[T]) Filter(filters map[string]any, exprs ...Expression) *Query[T] {
	return newQuery[T](m, filters, exprs)
}

// Delete removes the single instance matching the filters and returns the
// number removed (0 or 1). When the filters do not pin the type's key and
// more than one row matches, it fails with NotUniqueError; use DeleteMany
// to remove several instances at once.
func (m *Manager[T]) Delete(ctx context.Context, filters map[string]any) (int, error) {
	return m.delete(ctx, filters, nil, false)
}

// DeleteMany removes every instance matching the filters and returns the
// count. Non-matching filters and empty in-lists return 0, never an error.
func (m *Manager[T]) DeleteMany(ctx context.Context, filters map[string]any, exprs ...Expression) (int, error) {
	return m.delete(ctx, filters, exprs, true)
}

func (m *Manager[T]) delete(ctx context.Context, filters map[string]any, exprs []Expression, bulk bool) (int, error) {
	if err := checkCtx(ctx, "delete "+m.info.TypeName); err != nil {
		return 0, err
	}
	pf, err := parseFilters(m.info, filters)
	if err != nil {
		return 0, err
	}
	if pf.emptyIn {
		return 0, nil
	}
	pf.exprs = append(pf.exprs, exprs...)

	if !bulk && !m.keyPinned(pf) {
		count, err := m.countMatches(ctx, pf)
		if err != nil {
			return 0, err
		}
		if count == 0 {
			return 0, nil
		}
		if count > 1 {
			return 0, &NotUniqueError{TypeName: m.info.TypeName, Count: count}
		}
	}

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

func (m *Manager[T]) keyPinned(pf *parsedFilters) bool {
	key, err := m.info.KeyBinding()
	if err != nil {
		return false
	}
	return pf.pinned(key.Name)
}

func (m *Manager[T]) countMatches(ctx context.Context, pf *parsedFilters) (int, error) {
	g := &varGen{}
	patterns, err := matchPatterns(m.info, "$e", pf, g)
	if err != nil {
		return 0, err
	}
	query := ast.RenderQuery(
		ast.Match{Patterns: patterns},
		ast.Fetch{Items: []ast.FetchItem{ast.FetchFunc{Name: iidFetchKey, Func: "iid", Var: "$e"}}},
	)
	rows, err := readRows(ctx, m.db, m.tx, query)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", m.info.TypeName, err)
	}
	return len(rows), nil
}

// Update rewrites the persisted attributes of an instance identified by
// its key. Single-card attributes with a value become update fragments;
// nil optional ones are deleted; nil required ones are left untouched.
// Multi-card attributes are diffed against the persisted set so values
// present in both sets are never rewritten. The whole update runs in one
// transaction per instance.
func (m *Manager[T]) Update(ctx context.Context, instance *T) error {
	if err := checkCtx(ctx, "update "+m.info.TypeName); err != nil {
		return err
	}
	tx, autoCommit, err := openWrite(m.db, m.tx)
	if err != nil {
		return fmt.Errorf("update %s: %w", m.info.TypeName, err)
	}
	if autoCommit {
		defer tx.Close()
	}

	if err := m.updateInTx(ctx, tx, instance); err != nil {
		return err
	}

	if autoCommit {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("update %s: commit: %w", m.info.TypeName, err)
		}
	}
	return nil
}

// UpdateMany applies Update's algorithm to each instance. When the manager
// carries no caller transaction the whole batch shares one.
func (m *Manager[T]) UpdateMany(ctx context.Context, instances []*T) error {
	if len(instances) == 0 {
		return nil
	}
	if err := checkCtx(ctx, "update "+m.info.TypeName); err != nil {
		return err
	}
	tx, autoCommit, err := openWrite(m.db, m.tx)
	if err != nil {
		return fmt.Errorf("update_many %s: %w", m.info.TypeName, err)
	}
	if autoCommit {
		defer tx.Close()
	}

	for i, inst := range instances {
		if err := m.updateInTx(ctx, tx, inst); err != nil {
			return fmt.Errorf("update_many %s[%d]: %w", m.info.TypeName, i, err)
		}
	}

	if autoCommit {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("update_many %s: commit: %w", m.info.TypeName, err)
		}
	}
	return nil
}

func (m *Manager[T]) updateInTx(ctx context.Context, tx Tx, instance *T) error {
	v := structValue(instance)
	key, keyVal, err := keyValueOf(m.info, v)
	if err != nil {
		return err
	}

	persisted, err := m.persistedMultiValues(ctx, tx, key, keyVal)
	if err != nil {
		return err
	}

	plan := buildUpdatePlan(m.info, "$e", v, key, persisted)
	query, ok := plan.render(ast.ThingPattern{
		Variable: "$e",
		TypeName: m.info.TypeName,
		Has:      []ast.HasAttr{{Attr: key.Name, Value: ast.LT(keyVal, key.ValueType)}},
	})
	if !ok {
		return nil
	}

	if _, err := tx.QueryWithContext(ctx, query); err != nil {
		return fmt.Errorf("update %s: %w", m.info.TypeName, err)
	}
	return nil
}

// persistedMultiValues reads the currently stored values of every
// multi-card binding, keyed by attribute name, for the guarded diff.
func (m *Manager[T]) persistedMultiValues(ctx context.Context, tx Tx, key *AttributeBinding, keyVal any) (map[string][]any, error) {
	var items []ast.FetchItem
	for _, b := range m.info.Bindings {
		if b.MultiValued() {
			items = append(items, ast.FetchFieldList{Name: b.Name, Var: "$e", Attr: b.Name})
		}
	}
	if len(items) == 0 {
		return nil, nil
	}

	query := ast.RenderQuery(
		ast.Match{Patterns: []ast.Pattern{ast.ThingPattern{
			Variable: "$e",
			TypeName: m.info.TypeName,
			Has:      []ast.HasAttr{{Attr: key.Name, Value: ast.LT(keyVal, key.ValueType)}},
		}}},
		ast.Fetch{Items: items},
	)
	rows, err := tx.QueryWithContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("update %s: read current values: %w", m.info.TypeName, err)
	}
	if len(rows) == 0 {
		return map[string][]any{}, nil
	}

	out := make(map[string][]any)
	row := unwrapRow(rows[0])
	for _, b := range m.info.Bindings {
		if !b.MultiValued() {
			continue
		}
		if list, ok := row[b.Name].([]any); ok {
			vals := make([]any, 0, len(list))
			for _, el := range list {
				vals = append(vals, unwrapValue(el))
			}
			out[b.Name] = vals
		}
	}
	return out, nil
}

func (m *Manager[T]) readQuery(pf *parsedFilters, limit, offset *int) (string, error) {
	g := &varGen{}
	patterns, err := matchPatterns(m.info, "$e", pf, g)
	if err != nil {
		return "", err
	}
	extra, pageClauses := pagination(m.info, "$e", pf, limit, offset)
	patterns = append(patterns, extra...)

	clauses := []ast.Clause{ast.Match{Patterns: patterns}}
	clauses = append(clauses, pageClauses...)
	clauses = append(clauses, ast.Fetch{Items: fetchItems(m.info, "$e")})
	return ast.RenderQuery(clauses...), nil
}

func (m *Manager[T]) executeWrite(ctx context.Context, query string) ([]map[string]any, error) {
	if m.tx != nil {
		return m.tx.QueryWithContext(ctx, query)
	}
	return m.db.ExecuteWrite(ctx, query)
}

func (m *Manager[T]) hydrateAll(rows []map[string]any) ([]*T, error) {
	out := make([]*T, 0, len(rows))
	for _, row := range rows {
		inst, err := m.hydrateOne(row)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

func (m *Manager[T]) hydrateOne(row map[string]any) (*T, error) {
	inst := new(T)
	if err := decodeInto(m.info, unwrapRow(row), reflect.ValueOf(inst)); err != nil {
		return nil, err
	}
	return inst, nil
}
