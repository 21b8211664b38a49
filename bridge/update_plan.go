package bridge

import (
	"fmt"
	"reflect"

	"github.com/typebridge/typebridge/ast"
)

// updatePlan is the compiled form of one instance update: extra match
// bindings, attribute deletions, insertions, and in-place updates. The
// same plan builder serves entity and relation managers.
type updatePlan struct {
	matchExtra []ast.Pattern
	deletes    []ast.Statement
	inserts    []ast.Statement
	updates    []ast.Statement
}

// buildUpdatePlan partitions an instance's non-key bindings:
//
//   - single-card with a value: in-place update fragment
//   - single-card nil and optional: delete-of-attribute, guarded by a try
//     block so an already-absent attribute does not fail the match
//   - single-card nil and required: untouched
//   - multi-card: diff against the persisted set; values present in both
//     sets are never touched, removed values are deleted, added values
//     inserted
func buildUpdatePlan(info *ModelInfo, owner string, v reflect.Value, key *AttributeBinding, persisted map[string][]any) *updatePlan {
	plan := &updatePlan{}
	n := 0

	for _, b := range info.Bindings {
		if key != nil && b.Name == key.Name {
			continue
		}

		if b.MultiValued() {
			planMultiDiff(plan, owner, b, multiValues(b, v), persisted[b.Name], &n)
			continue
		}

		val, ok := singleValue(b, v)
		if ok && val != nil {
			plan.updates = append(plan.updates, ast.HasStatement{
				Subject: owner, Attr: b.Name, Value: ast.LT(val, b.ValueType),
			})
			continue
		}
		if b.Optional() {
			old := fmt.Sprintf("$old%d", n)
			n++
			plan.matchExtra = append(plan.matchExtra, ast.TryPattern{Patterns: []ast.Pattern{
				ast.AttrVarPattern{Owner: owner, Attr: b.Name, AttrVar: old},
			}})
			plan.deletes = append(plan.deletes, ast.TryStatement{Statement: ast.DeleteAttr{AttrVar: old, Owner: owner}})
		}
	}
	return plan
}

func planMultiDiff(plan *updatePlan, owner string, b *AttributeBinding, newVals, oldVals []any, n *int) {
	canon := func(v any) string { return ast.FormatTyped(v, b.ValueType) }

	newSet := make(map[string]bool, len(newVals))
	for _, v := range newVals {
		newSet[canon(v)] = true
	}
	oldSet := make(map[string]bool, len(oldVals))
	for _, v := range oldVals {
		oldSet[canon(v)] = true
	}

	for _, v := range oldVals {
		if newSet[canon(v)] {
			continue // retained value, never rewritten
		}
		dv := fmt.Sprintf("$del%d", *n)
		*n++
		plan.matchExtra = append(plan.matchExtra,
			ast.AttrVarPattern{Owner: owner, Attr: b.Name, AttrVar: dv},
			ast.ComparePattern{Left: dv, Op: "==", Right: ast.LT(v, b.ValueType)},
		)
		plan.deletes = append(plan.deletes, ast.DeleteAttr{AttrVar: dv, Owner: owner})
	}

	seen := make(map[string]bool, len(newVals))
	for _, v := range newVals {
		c := canon(v)
		if oldSet[c] || seen[c] {
			continue
		}
		seen[c] = true
		plan.inserts = append(plan.inserts, ast.HasStatement{
			Subject: owner, Attr: b.Name, Value: ast.LT(v, b.ValueType),
		})
	}
}

// render assembles the full match/delete/insert/update query. The base
// patterns identify the instance (key match for entities, role players
// plus original values for relations). The second result is false when
// the plan is empty and no query needs to run.
func (p *updatePlan) render(base ...ast.Pattern) (string, bool) {
	if len(p.deletes) == 0 && len(p.inserts) == 0 && len(p.updates) == 0 {
		return "", false
	}

	patterns := append(append([]ast.Pattern{}, base...), p.matchExtra...)
	clauses := []ast.Clause{ast.Match{Patterns: patterns}}
	if len(p.deletes) > 0 {
		clauses = append(clauses, ast.Delete{Statements: p.deletes})
	}
	if len(p.inserts) > 0 {
		clauses = append(clauses, ast.Insert{Statements: p.inserts})
	}
	if len(p.updates) > 0 {
		clauses = append(clauses, ast.Update{Statements: p.updates})
	}
	return ast.RenderQuery(clauses...), true
}
