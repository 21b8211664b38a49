package bridge

import (
	"github.com/typebridge/typebridge/ast"
)

// iidFetchKey is the projection name under which the row's own identity
// comes back.
const iidFetchKey = "_iid"

// matchPatterns builds the match fragments for one filtered thing variable:
// the isa pattern with exact-match has constraints inline, disjunction
// blocks for in-lists, and the rendered expression predicates.
func matchPatterns(info *ModelInfo, owner string, pf *parsedFilters, g *varGen) ([]ast.Pattern, error) {
	base := ast.ThingPattern{Variable: owner, TypeName: info.TypeName}
	for _, f := range pf.exact {
		base.Has = append(base.Has, ast.HasAttr{Attr: f.binding.Name, Value: ast.LT(f.value, f.binding.ValueType)})
	}
	patterns := []ast.Pattern{base}

	if p := disjunction(owner, pf.ins); p != nil {
		patterns = append(patterns, p)
	}

	for _, e := range pf.exprs {
		ps, err := e.patterns(owner, info, g)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, ps...)
	}
	return patterns, nil
}

// disjunction expands in-list filters into OR blocks. A single list with a
// single candidate collapses to one has fragment; a single list becomes one
// OR over its candidates; several lists expand into the cartesian product
// of candidate combinations, one conjunctive block per combination.
func disjunction(owner string, ins []inFilter) ast.Pattern {
	if len(ins) == 0 {
		return nil
	}

	combos := [][]ast.Pattern{nil}
	for _, in := range ins {
		next := make([][]ast.Pattern, 0, len(combos)*len(in.values))
		for _, combo := range combos {
			for _, v := range in.values {
				frag := ast.HasPattern{
					Owner: owner,
					Attr:  in.binding.Name,
					Value: ast.LT(v, in.binding.ValueType),
				}
				ext := make([]ast.Pattern, len(combo), len(combo)+1)
				copy(ext, combo)
				next = append(next, append(ext, frag))
			}
		}
		combos = next
	}

	if len(combos) == 1 {
		if len(combos[0]) == 1 {
			return combos[0][0]
		}
		return ast.OrPattern{Alternatives: combos}
	}
	return ast.OrPattern{Alternatives: combos}
}

// fetchItems builds the read projection for a thing: its identity plus one
// entry per owned attribute, multi-card attributes as lists.
func fetchItems(info *ModelInfo, owner string) []ast.FetchItem {
	items := []ast.FetchItem{ast.FetchFunc{Name: iidFetchKey, Func: "iid", Var: owner}}
	for _, b := range info.Bindings {
		if b.MultiValued() {
			items = append(items, ast.FetchFieldList{Name: b.Name, Var: owner, Attr: b.Name})
		} else {
			items = append(items, ast.FetchField{Name: b.Name, Var: owner, Attr: b.Name})
		}
	}
	return items
}

// sortBinding picks the deterministic sort key injected when pagination is
// requested: the first owned attribute that is the key or required
// (CardMin >= 1) and is not already pinned by an exact filter. A nil result
// means pagination proceeds with unspecified cross-page order.
func sortBinding(info *ModelInfo, pf *parsedFilters) *AttributeBinding {
	for _, b := range info.Bindings {
		if !b.Key && b.CardMin < 1 {
			continue
		}
		if b.MultiValued() {
			continue
		}
		if pf.pinned(b.Name) {
			continue
		}
		return b
	}
	return nil
}

// pagination appends sort/offset/limit clauses for a query, injecting the
// sort key binding when one is available.
func pagination(info *ModelInfo, owner string, pf *parsedFilters, limit, offset *int) (extraMatch []ast.Pattern, clauses []ast.Clause) {
	if limit == nil && offset == nil {
		return nil, nil
	}
	if b := sortBinding(info, pf); b != nil {
		sortVar := owner + "__sort_" + sanitizeVar(b.Name)
		extraMatch = append(extraMatch, ast.AttrVarPattern{Owner: owner, Attr: b.Name, AttrVar: sortVar})
		clauses = append(clauses, ast.Sort{Variable: sortVar, Direction: "asc"})
	}
	if offset != nil {
		clauses = append(clauses, ast.Offset{Count: *offset})
	}
	if limit != nil {
		clauses = append(clauses, ast.Limit{Count: *limit})
	}
	return extraMatch, clauses
}
