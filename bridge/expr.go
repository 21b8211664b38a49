package bridge

import (
	"fmt"
	"strings"

	"github.com/typebridge/typebridge/ast"
)

// Expression is a composable predicate over a model's attributes. Each
// expression renders itself as match patterns bound to the owning row
// variable, binding any attribute variables it needs internally.
type Expression interface {
	patterns(owner string, info *ModelInfo, g *varGen) ([]ast.Pattern, error)
}

// varGen hands out distinct attribute variable names within one query.
type varGen struct {
	n int
}

func (g *varGen) fresh(owner, attr string) string {
	g.n++
	name := fmt.Sprintf("%s__%s_%d", owner, sanitizeVar(attr), g.n)
	return name
}

func sanitizeVar(s string) string {
	return strings.ReplaceAll(s, "-", "_")
}

// orderable value types for the gt/gte/lt/lte operators.
func isOrderable(valueType string) bool {
	switch valueType {
	case "integer", "double", "string", "datetime", "date":
		return true
	}
	return false
}

// Comparison compares an attribute against a literal value.
type Comparison struct {
	Field string
	Op    string
	Value any
}

// Eq matches an attribute equal to a value.
func Eq(field string, value any) Comparison { return Comparison{Field: field, Op: "==", Value: value} }

// Neq matches an attribute different from a value.
func Neq(field string, value any) Comparison { return Comparison{Field: field, Op: "!=", Value: value} }

// Gt matches an attribute strictly greater than a value.
func Gt(field string, value any) Comparison { return Comparison{Field: field, Op: ">", Value: value} }

// Gte matches an attribute greater than or equal to a value.
func Gte(field string, value any) Comparison { return Comparison{Field: field, Op: ">=", Value: value} }

// Lt matches an attribute strictly less than a value.
func Lt(field string, value any) Comparison { return Comparison{Field: field, Op: "<", Value: value} }

// Lte matches an attribute less than or equal to a value.
func Lte(field string, value any) Comparison { return Comparison{Field: field, Op: "<=", Value: value} }

func (c Comparison) patterns(owner string, info *ModelInfo, g *varGen) ([]ast.Pattern, error) {
	b, ok := info.Binding(c.Field)
	if !ok {
		return nil, &UnknownFilterFieldError{TypeName: info.TypeName, Field: c.Field}
	}
	if c.Op != "==" && c.Op != "!=" && !isOrderable(b.ValueType) {
		return nil, &InvalidLookupError{Field: c.Field, Lookup: c.Op, Reason: fmt.Sprintf("value type %q has no ordering", b.ValueType)}
	}
	v := g.fresh(owner, b.Name)
	return []ast.Pattern{
		ast.AttrVarPattern{Owner: owner, Attr: b.Name, AttrVar: v},
		ast.ComparePattern{Left: v, Op: c.Op, Right: ast.LT(c.Value, b.ValueType)},
	}, nil
}

// stringOp is a string predicate: substring containment or regex match.
type stringOp struct {
	field  string
	op     string // "contains" or "like"
	value  string
	lookup string // which lookup produced it, for error text
}

// Contains matches string attributes containing a substring.
func Contains(field, substr string) Expression {
	return stringOp{field: field, op: "contains", value: substr, lookup: "contains"}
}

// Regex matches string attributes against a regex pattern.
func Regex(field, pattern string) Expression {
	return stringOp{field: field, op: "like", value: pattern, lookup: "regex"}
}

// StartsWith matches string attributes beginning with a literal prefix.
// The prefix is regex-escaped and anchored.
func StartsWith(field, prefix string) Expression {
	return stringOp{field: field, op: "like", value: "^" + ast.EscapeRegexLiteral(prefix) + ".*", lookup: "startswith"}
}

// EndsWith matches string attributes ending with a literal suffix.
// The suffix is regex-escaped and anchored.
func EndsWith(field, suffix string) Expression {
	return stringOp{field: field, op: "like", value: ".*" + ast.EscapeRegexLiteral(suffix) + "$", lookup: "endswith"}
}

func (s stringOp) patterns(owner string, info *ModelInfo, g *varGen) ([]ast.Pattern, error) {
	b, ok := info.Binding(s.field)
	if !ok {
		return nil, &UnknownFilterFieldError{TypeName: info.TypeName, Field: s.field}
	}
	if b.ValueType != "string" {
		return nil, &InvalidLookupError{Field: s.field, Lookup: s.lookup, Reason: fmt.Sprintf("attribute is %s, not string", b.ValueType)}
	}
	v := g.fresh(owner, b.Name)
	return []ast.Pattern{
		ast.AttrVarPattern{Owner: owner, Attr: b.Name, AttrVar: v},
		ast.ComparePattern{Left: v, Op: s.op, Right: ast.L(s.value)},
	}, nil
}

// Exists asserts the presence or absence of an attribute on the instance.
type Exists struct {
	Field   string
	Present bool
}

// HasAttr matches instances that own at least one value of the attribute.
func HasAttr(field string) Exists { return Exists{Field: field, Present: true} }

// MissingAttr matches instances that own no value of the attribute.
func MissingAttr(field string) Exists { return Exists{Field: field, Present: false} }

func (e Exists) patterns(owner string, info *ModelInfo, g *varGen) ([]ast.Pattern, error) {
	b, ok := info.Binding(e.Field)
	if !ok {
		return nil, &UnknownFilterFieldError{TypeName: info.TypeName, Field: e.Field}
	}
	v := g.fresh(owner, b.Name)
	bind := ast.AttrVarPattern{Owner: owner, Attr: b.Name, AttrVar: v}
	if e.Present {
		return []ast.Pattern{bind}, nil
	}
	return []ast.Pattern{ast.NotPattern{Patterns: []ast.Pattern{bind}}}, nil
}

// boolean combines child expressions with "and" or "or".
type boolean struct {
	op       string
	children []Expression
}

// And matches rows satisfying every child expression.
func And(children ...Expression) Expression { return boolean{op: "and", children: children} }

// Or matches rows satisfying at least one child expression. Each branch
// binds its own attribute variables so branches do not interfere.
func Or(children ...Expression) Expression { return boolean{op: "or", children: children} }

// Not matches rows satisfying none of the child expressions.
func Not(children ...Expression) Expression { return notExpr{children: children} }

func (b boolean) patterns(owner string, info *ModelInfo, g *varGen) ([]ast.Pattern, error) {
	if b.op == "and" || len(b.children) == 1 {
		var out []ast.Pattern
		for _, c := range b.children {
			ps, err := c.patterns(owner, info, g)
			if err != nil {
				return nil, err
			}
			out = append(out, ps...)
		}
		return out, nil
	}

	alts := make([][]ast.Pattern, 0, len(b.children))
	for _, c := range b.children {
		ps, err := c.patterns(owner, info, g)
		if err != nil {
			return nil, err
		}
		alts = append(alts, ps)
	}
	return []ast.Pattern{ast.OrPattern{Alternatives: alts}}, nil
}

type notExpr struct {
	children []Expression
}

func (n notExpr) patterns(owner string, info *ModelInfo, g *varGen) ([]ast.Pattern, error) {
	var inner []ast.Pattern
	for _, c := range n.children {
		ps, err := c.patterns(owner, info, g)
		if err != nil {
			return nil, err
		}
		inner = append(inner, ps...)
	}
	return []ast.Pattern{ast.NotPattern{Patterns: inner}}, nil
}
