package bridge

import (
	"context"
	"fmt"
	"reflect"

	"github.com/typebridge/typebridge/ast"
)

// RelationManager provides typed CRUD operations for one registered
// relation type, including role-player matching and per-row reconciliation
// of player identities.
type RelationManager[T any] struct {
	db   *Database
	info *ModelInfo
	tx   Tx
}

// NewRelationManager creates a manager for relation type T.
func NewRelationManager[T any](db *Database) (*RelationManager[T], error) {
	return NewRelationManagerWithTx[T](db, nil)
}

// NewRelationManagerWithTx creates a relation manager bound to a caller
// transaction.
func NewRelationManagerWithTx[T any](db *Database, tx Tx) (*RelationManager[T], error) {
	var zero T
	info, err := LookupType(reflect.TypeOf(zero))
	if err != nil {
		return nil, err
	}
	if info.Kind != RelationModel {
		return nil, fmt.Errorf("type %q is an entity, use NewManager", info.TypeName)
	}
	return &RelationManager[T]{db: db, info: info, tx: tx}, nil
}

// Info returns the manager's model descriptor.
func (m *RelationManager[T]) Info() *ModelInfo { return m.info }

// playerDescriptor resolves the registered descriptor and single key
// binding of a role's player type.
func (m *RelationManager[T]) playerDescriptor(role *RoleBinding) (*ModelInfo, *AttributeBinding, error) {
	player, err := LookupType(role.PlayerGoType)
	if err != nil {
		return nil, nil, &RoleResolutionError{
			RelationType: m.info.TypeName, Role: role.Role,
			Reason: fmt.Sprintf("player type %s is not registered", role.PlayerGoType.Name()),
		}
	}
	key, err := player.KeyBinding()
	if err != nil {
		return nil, nil, &RoleResolutionError{RelationType: m.info.TypeName, Role: role.Role, Reason: err.Error()}
	}
	return player, key, nil
}

// playerRef identifies one role player for matching: by IID when the
// player has been read back, otherwise by its key value.
type playerRef struct {
	role     *RoleBinding
	typeName string
	iid      string
	keyAttr  string
	keyType  string
	keyValue any
}

// dedupKey collapses identical players across a batch into one match
// variable: same player type plus same identity.
func (r playerRef) dedupKey() string {
	if r.iid != "" {
		return r.typeName + "\x00iid\x00" + r.iid
	}
	return r.typeName + "\x00" + r.keyAttr + "\x00" + ast.FormatTyped(r.keyValue, r.keyType)
}

func (r playerRef) pattern(varName string) ast.Pattern {
	if r.iid != "" {
		return ast.ThingPattern{Variable: varName, TypeName: r.typeName, IID: r.iid}
	}
	return ast.ThingPattern{
		Variable: varName,
		TypeName: r.typeName,
		Has:      []ast.HasAttr{{Attr: r.keyAttr, Value: ast.LT(r.keyValue, r.keyType)}},
	}
}

// playerRefOf builds the match reference for one role of one instance.
func (m *RelationManager[T]) playerRefOf(role *RoleBinding, v reflect.Value) (playerRef, error) {
	field := v.Field(role.FieldIndex)
	if field.IsNil() {
		return playerRef{}, &RoleResolutionError{RelationType: m.info.TypeName, Role: role.Role, Reason: "role player is nil"}
	}
	playerInfo, key, err := m.playerDescriptor(role)
	if err != nil {
		return playerRef{}, err
	}

	ref := playerRef{role: role, typeName: playerInfo.TypeName, keyAttr: key.Name, keyType: key.ValueType}
	player := field.Interface()
	if iid := iidOf(player); iid != "" {
		ref.iid = iid
		return ref, nil
	}
	val, ok := singleValue(key, field.Elem())
	if !ok || val == nil {
		return playerRef{}, &RoleResolutionError{
			RelationType: m.info.TypeName, Role: role.Role,
			Reason: fmt.Sprintf("player has neither an IID nor a %q key value", key.Name),
		}
	}
	ref.keyValue = val
	return ref, nil
}

// Insert persists one relation, matching each role player by identity.
func (m *RelationManager[T]) Insert(ctx context.Context, instance *T) error {
	return m.InsertMany(ctx, []*T{instance})
}

// InsertMany persists a batch of relations in one query. Identical role
// players across the batch (same player type and key value) share one
// match variable, so a player referenced by many relations is matched
// once.
func (m *RelationManager[T]) InsertMany(ctx context.Context, instances []*T) error {
	if len(instances) == 0 {
		return nil
	}
	if err := checkCtx(ctx, "insert "+m.info.TypeName); err != nil {
		return err
	}

	var matchPatterns []ast.Pattern
	playerVars := make(map[string]string)
	stmts := make([]ast.Statement, 0, len(instances))

	for i, inst := range instances {
		v := structValue(inst)
		roles := make([]ast.RolePlayer, 0, len(m.info.Roles))
		for _, role := range m.info.Roles {
			ref, err := m.playerRefOf(role, v)
			if err != nil {
				return err
			}
			dk := ref.dedupKey()
			pv, seen := playerVars[dk]
			if !seen {
				pv = fmt.Sprintf("$p%d", len(playerVars))
				playerVars[dk] = pv
				matchPatterns = append(matchPatterns, ref.pattern(pv))
			}
			roles = append(roles, ast.RolePlayer{Role: role.Role, Player: pv})
		}
		stmts = append(stmts, ast.InsertRelation{
			Variable: fmt.Sprintf("$r%d", i),
			TypeName: m.info.TypeName,
			Roles:    roles,
			Has:      hasAttrsOf(m.info, v),
		})
	}

	query := ast.RenderQuery(
		ast.Match{Patterns: matchPatterns},
		ast.Insert{Statements: stmts},
	)
	results, err := m.executeWrite(ctx, query)
	if err != nil {
		return fmt.Errorf("insert %s: %w", m.info.TypeName, err)
	}
	if len(results) > 0 {
		for i, inst := range instances {
			setIIDOf(inst, extractIID(results[0], fmt.Sprintf("r%d", i)))
		}
	}
	return nil
}

// roleFilters maps role labels to player constraints extracted from a
// filter map.
type roleFilters struct {
	refs map[string]playerRef
}

// splitFilters separates role-player filters from attribute filters. A
// role filter's value is either a player instance or a bare key value.
func (m *RelationManager[T]) splitFilters(filters map[string]any) (map[string]any, *roleFilters, error) {
	attrs := make(map[string]any)
	rf := &roleFilters{refs: make(map[string]playerRef)}

	for key, value := range filters {
		role, ok := m.info.Role(key)
		if !ok {
			attrs[key] = value
			continue
		}
		playerInfo, playerKey, err := m.playerDescriptor(role)
		if err != nil {
			return nil, nil, err
		}
		ref := playerRef{role: role, typeName: playerInfo.TypeName, keyAttr: playerKey.Name, keyType: playerKey.ValueType}

		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Ptr && rv.Type().Elem() == role.PlayerGoType {
			if rv.IsNil() {
				return nil, nil, &RoleResolutionError{RelationType: m.info.TypeName, Role: role.Role, Reason: "filter player is nil"}
			}
			if iid := iidOf(value); iid != "" {
				ref.iid = iid
			} else {
				val, ok := singleValue(playerKey, rv.Elem())
				if !ok || val == nil {
					return nil, nil, &RoleResolutionError{
						RelationType: m.info.TypeName, Role: role.Role,
						Reason: fmt.Sprintf("filter player has no %q key value", playerKey.Name),
					}
				}
				ref.keyValue = val
			}
		} else {
			ref.keyValue = value
		}
		rf.refs[role.Role] = ref
	}
	return attrs, rf, nil
}

// buildMatch assembles the relation match: the relation variable with its
// attribute constraints, one player variable per role (constrained when a
// role filter pins it), and the links between them.
func (m *RelationManager[T]) buildMatch(pf *parsedFilters, rf *roleFilters, g *varGen) ([]ast.Pattern, map[string]string, error) {
	patterns, err := matchPatterns(m.info, "$r", pf, g)
	if err != nil {
		return nil, nil, err
	}

	playerVars := make(map[string]string, len(m.info.Roles))
	for i, role := range m.info.Roles {
		pv := fmt.Sprintf("$p%d", i)
		playerVars[role.Role] = pv

		if rf != nil {
			if ref, ok := rf.refs[role.Role]; ok {
				patterns = append(patterns, ref.pattern(pv))
				patterns = append(patterns, ast.LinksPattern{Relation: "$r", Role: role.Role, Player: pv})
				continue
			}
		}
		playerInfo, _, err := m.playerDescriptor(role)
		if err != nil {
			return nil, nil, err
		}
		patterns = append(patterns,
			ast.ThingPattern{Variable: pv, TypeName: playerInfo.TypeName},
			ast.LinksPattern{Relation: "$r", Role: role.Role, Player: pv},
		)
	}
	return patterns, playerVars, nil
}

func (m *RelationManager[T]) fetchWithRoles(playerVars map[string]string) ast.Fetch {
	items := fetchItems(m.info, "$r")
	for _, role := range m.info.Roles {
		pv := playerVars[role.Role]
		items = append(items,
			ast.FetchNested{Name: role.Role, Var: pv},
			ast.FetchFunc{Name: role.Role + "_iid", Func: "iid", Var: pv},
		)
	}
	return ast.Fetch{Items: items}
}

// Get returns all relations matching the filters. Filter keys naming a
// role select by that role's player; the rest behave as attribute lookups.
// Every row's role players are decoded from that row's own nested payload,
// so each returned relation carries the identities actually persisted with
// it.
func (m *RelationManager[T]) Get(ctx context.Context, filters map[string]any, exprs ...Expression) ([]*T, error) {
	if err := checkCtx(ctx, "get "+m.info.TypeName); err != nil {
		return nil, err
	}
	attrs, rf, err := m.splitFilters(filters)
	if err != nil {
		return nil, err
	}
	pf, err := parseFilters(m.info, attrs)
	if err != nil {
		return nil, err
	}
	if pf.emptyIn {
		return []*T{}, nil
	}
	pf.exprs = append(pf.exprs, exprs...)

	query, err := m.readQuery(pf, rf, nil, nil)
	if err != nil {
		return nil, err
	}
	rows, err := readRows(ctx, m.db, m.tx, query)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", m.info.TypeName, err)
	}
	return m.hydrateRows(rows)
}

// All returns every relation of the type.
func (m *RelationManager[T]) All(ctx context.Context) ([]*T, error) {
	return m.Get(ctx, nil)
}

// Filter returns a lazy chainable query seeded with the given filters.
func (m *RelationManager[T]) Filter(filters map[string]any, exprs ...Expression) *Query[T] {
	return newQuery[T](m, filters, exprs)
}

// Delete removes every relation matching the filters and returns the
// count. Relations are identified by their role players, so bulk semantics
// apply; zero matches return 0.
func (m *RelationManager[T]) Delete(ctx context.Context, filters map[string]any, exprs ...Expression) (int, error) {
	if err := checkCtx(ctx, "delete "+m.info.TypeName); err != nil {
		return 0, err
	}
	attrs, rf, err := m.splitFilters(filters)
	if err != nil {
		return 0, err
	}
	pf, err := parseFilters(m.info, attrs)
	if err != nil {
		return 0, err
	}
	if pf.emptyIn {
		return 0, nil
	}
	pf.exprs = append(pf.exprs, exprs...)
	return m.deleteParsed(ctx, pf, rf)
}

func (m *RelationManager[T]) deleteParsed(ctx context.Context, pf *parsedFilters, rf *roleFilters) (int, error) {
	g := &varGen{}
	patterns, _, err := m.buildMatch(pf, rf, g)
	if err != nil {
		return 0, err
	}
	query := ast.RenderQuery(
		ast.Match{Patterns: patterns},
		ast.Delete{Statements: []ast.Statement{ast.DeleteThing{Variable: "$r"}}},
	)
	results, err := m.executeWrite(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", m.info.TypeName, err)
	}
	return len(results), nil
}

// Update rewrites the attributes of one relation. Role players are the
// relation's immutable identity: the match binds every player, plus the
// relation's currently persisted attribute values to disambiguate when
// several relations share the same players. The attribute diff mirrors
// the entity manager's.
func (m *RelationManager[T]) Update(ctx context.Context, instance *T) error {
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

	snap, err := m.readSnapshot(ctx, tx, instance)
	if err != nil {
		return err
	}
	if err := m.updateSnapshotInTx(ctx, tx, instance, snap); err != nil {
		return err
	}

	if autoCommit {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("update %s: commit: %w", m.info.TypeName, err)
		}
	}
	return nil
}

// readSnapshot fetches the relation's currently persisted attribute values
// by its role players. Zero matches is a NotFoundError; several mean the
// players do not disambiguate and the caller must update through a query
// snapshot instead.
func (m *RelationManager[T]) readSnapshot(ctx context.Context, tx Tx, instance *T) (*snapshot, error) {
	v := structValue(instance)
	patterns, err := m.playerMatch(v)
	if err != nil {
		return nil, err
	}
	query := ast.RenderQuery(
		ast.Match{Patterns: patterns},
		ast.Fetch{Items: fetchItems(m.info, "$r")},
	)
	rows, err := tx.QueryWithContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("update %s: read current values: %w", m.info.TypeName, err)
	}
	if len(rows) == 0 {
		return nil, &NotFoundError{TypeName: m.info.TypeName, Detail: "no relation matches the role players"}
	}
	if len(rows) > 1 {
		return nil, &NotUniqueError{TypeName: m.info.TypeName, Count: len(rows)}
	}
	return snapshotOfRow(m.info, unwrapRow(rows[0])), nil
}

func (m *RelationManager[T]) playerMatch(v reflect.Value) ([]ast.Pattern, error) {
	patterns := []ast.Pattern{ast.ThingPattern{Variable: "$r", TypeName: m.info.TypeName}}
	for i, role := range m.info.Roles {
		ref, err := m.playerRefOf(role, v)
		if err != nil {
			return nil, err
		}
		pv := fmt.Sprintf("$p%d", i)
		patterns = append(patterns,
			ref.pattern(pv),
			ast.LinksPattern{Relation: "$r", Role: role.Role, Player: pv},
		)
	}
	return patterns, nil
}

// updateSnapshotInTx builds and runs the update query against a known
// snapshot of the relation's original values.
func (m *RelationManager[T]) updateSnapshotInTx(ctx context.Context, tx Tx, instance *T, snap *snapshot) error {
	v := structValue(instance)
	base, err := m.playerMatch(v)
	if err != nil {
		return err
	}

	// Pin the original single values on the relation variable so the
	// match stays unambiguous when players are shared.
	rel := base[0].(ast.ThingPattern)
	for _, b := range m.info.Bindings {
		if b.MultiValued() {
			continue
		}
		if val, ok := snap.singles[b.Name]; ok && val != nil {
			rel.Has = append(rel.Has, ast.HasAttr{Attr: b.Name, Value: ast.LT(val, b.ValueType)})
		}
	}
	base[0] = rel

	plan := buildUpdatePlan(m.info, "$r", v, nil, snap.multis)
	query, ok := plan.render(base...)
	if !ok {
		return nil
	}
	if _, err := tx.QueryWithContext(ctx, query); err != nil {
		return fmt.Errorf("update %s: %w", m.info.TypeName, err)
	}
	return nil
}

func (m *RelationManager[T]) readQuery(pf *parsedFilters, rf *roleFilters, limit, offset *int) (string, error) {
	g := &varGen{}
	patterns, playerVars, err := m.buildMatch(pf, rf, g)
	if err != nil {
		return "", err
	}
	extra, pageClauses := pagination(m.info, "$r", pf, limit, offset)
	patterns = append(patterns, extra...)

	clauses := []ast.Clause{ast.Match{Patterns: patterns}}
	clauses = append(clauses, pageClauses...)
	clauses = append(clauses, m.fetchWithRoles(playerVars))
	return ast.RenderQuery(clauses...), nil
}

func (m *RelationManager[T]) executeWrite(ctx context.Context, query string) ([]map[string]any, error) {
	if m.tx != nil {
		return m.tx.QueryWithContext(ctx, query)
	}
	return m.db.ExecuteWrite(ctx, query)
}

// hydrateRows decodes each result row independently: the relation's own
// attributes, then every role player from that row's nested payload and
// identity projection. Nothing is cached across rows.
func (m *RelationManager[T]) hydrateRows(rows []map[string]any) ([]*T, error) {
	out := make([]*T, 0, len(rows))
	for _, raw := range rows {
		row := unwrapRow(raw)

		inst := new(T)
		instPtr := reflect.ValueOf(inst)
		if err := decodeInto(m.info, row, instPtr); err != nil {
			return nil, err
		}

		v := instPtr.Elem()
		for _, role := range m.info.Roles {
			playerInfo, _, err := m.playerDescriptor(role)
			if err != nil {
				return nil, err
			}
			nested, ok := row[role.Role].(map[string]any)
			if !ok {
				return nil, &HydrationError{
					TypeName: m.info.TypeName, Field: role.FieldName,
					Err: fmt.Errorf("missing nested payload for role %q", role.Role),
				}
			}
			playerPtr := reflect.New(role.PlayerGoType)
			if err := decodeInto(playerInfo, unwrapRow(nested), playerPtr); err != nil {
				return nil, err
			}
			if iid, ok := row[role.Role+"_iid"].(string); ok {
				setIIDOf(playerPtr.Interface(), iid)
			}
			v.Field(role.FieldIndex).Set(playerPtr)
		}
		out = append(out, inst)
	}
	return out, nil
}
