// Package ast models TypeQL queries as a structured tree and renders them
// to query text. Building queries from nodes instead of string concatenation
// keeps literal escaping in one place and makes the generated text testable
// without a database.
package ast

import (
	"fmt"
	"strconv"
	"strings"
)

// Node is implemented by everything that can render itself as TypeQL.
type Node interface {
	writeTQL(b *strings.Builder)
}

// Render renders a single node to TypeQL text.
func Render(n Node) string {
	var b strings.Builder
	n.writeTQL(&b)
	return b.String()
}

// RenderQuery renders a sequence of clauses as one query, joined by newlines.
func RenderQuery(clauses ...Clause) string {
	parts := make([]string, 0, len(clauses))
	for _, c := range clauses {
		if c == nil {
			continue
		}
		parts = append(parts, Render(c))
	}
	return strings.Join(parts, "\n")
}

// Operand is the right-hand side of a comparison or attribute assignment:
// either a bound variable name or a literal value.
type Operand struct {
	Var       string
	Lit       any
	ValueType string // optional hint for literal formatting ("datetime", "date", ...)
}

// V returns a variable operand. The name must include the "$" prefix.
func V(name string) Operand { return Operand{Var: name} }

// L returns a literal operand formatted by FormatValue.
func L(v any) Operand { return Operand{Lit: v} }

// LT returns a literal operand formatted according to a TypeQL value type.
func LT(v any, valueType string) Operand { return Operand{Lit: v, ValueType: valueType} }

func (o Operand) writeTQL(b *strings.Builder) {
	if o.Var != "" {
		b.WriteString(o.Var)
		return
	}
	if o.ValueType != "" {
		b.WriteString(FormatTyped(o.Lit, o.ValueType))
		return
	}
	b.WriteString(FormatValue(o.Lit))
}

// HasAttr is one inline "has attr value" constraint on a thing.
type HasAttr struct {
	Attr  string
	Value Operand
}

// RolePlayer binds a role label to a player variable.
type RolePlayer struct {
	Role   string
	Player string
}

// --- Patterns (match clause) ---

// Pattern is a fragment of a match clause.
type Pattern interface {
	Node
	pattern()
}

// ThingPattern matches an entity or attribute-owning thing:
// "$e isa person, has name \"x\"". With an IID and no type name it
// renders "$e iid 0x...".
type ThingPattern struct {
	Variable string
	TypeName string
	IID      string
	Has      []HasAttr
}

func (ThingPattern) pattern() {}

func (p ThingPattern) writeTQL(b *strings.Builder) {
	b.WriteString(p.Variable)
	if p.TypeName != "" {
		b.WriteString(" isa ")
		b.WriteString(p.TypeName)
	}
	if p.IID != "" {
		if p.TypeName != "" {
			b.WriteString(",")
		}
		b.WriteString(" iid ")
		b.WriteString(p.IID)
	}
	for _, h := range p.Has {
		b.WriteString(", has ")
		b.WriteString(h.Attr)
		b.WriteString(" ")
		h.Value.writeTQL(b)
	}
}

// RelationPattern matches a relation together with its role players:
// "$r isa employment, links (employee: $p, employer: $c)".
type RelationPattern struct {
	Variable string
	TypeName string
	Roles    []RolePlayer
	Has      []HasAttr
}

func (RelationPattern) pattern() {}

func (p RelationPattern) writeTQL(b *strings.Builder) {
	b.WriteString(p.Variable)
	if p.TypeName != "" {
		b.WriteString(" isa ")
		b.WriteString(p.TypeName)
	}
	if len(p.Roles) > 0 {
		b.WriteString(", links (")
		for i, rp := range p.Roles {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(rp.Role)
			b.WriteString(": ")
			b.WriteString(rp.Player)
		}
		b.WriteString(")")
	}
	for _, h := range p.Has {
		b.WriteString(", has ")
		b.WriteString(h.Attr)
		b.WriteString(" ")
		h.Value.writeTQL(b)
	}
}

// LinksPattern binds a single role of an already-bound relation variable:
// "$r links (employee: $p)".
type LinksPattern struct {
	Relation string
	Role     string
	Player   string
}

func (LinksPattern) pattern() {}

func (p LinksPattern) writeTQL(b *strings.Builder) {
	b.WriteString(p.Relation)
	b.WriteString(" links (")
	b.WriteString(p.Role)
	b.WriteString(": ")
	b.WriteString(p.Player)
	b.WriteString(")")
}

// HasPattern constrains a bound thing to own an attribute value:
// "$e has name \"Alice\"". Used where the owning variable is already
// introduced elsewhere, such as inside or-blocks.
type HasPattern struct {
	Owner string
	Attr  string
	Value Operand
}

func (HasPattern) pattern() {}

func (p HasPattern) writeTQL(b *strings.Builder) {
	b.WriteString(p.Owner)
	b.WriteString(" has ")
	b.WriteString(p.Attr)
	b.WriteString(" ")
	p.Value.writeTQL(b)
}

// AttrVarPattern binds an attribute of a thing to its own variable:
// "$e has age $age".
type AttrVarPattern struct {
	Owner   string
	Attr    string
	AttrVar string
}

func (AttrVarPattern) pattern() {}

func (p AttrVarPattern) writeTQL(b *strings.Builder) {
	b.WriteString(p.Owner)
	b.WriteString(" has ")
	b.WriteString(p.Attr)
	b.WriteString(" ")
	b.WriteString(p.AttrVar)
}

// ComparePattern compares a bound variable with an operand: "$age > 30".
type ComparePattern struct {
	Left  string
	Op    string
	Right Operand
}

func (ComparePattern) pattern() {}

func (p ComparePattern) writeTQL(b *strings.Builder) {
	b.WriteString(p.Left)
	b.WriteString(" ")
	b.WriteString(p.Op)
	b.WriteString(" ")
	p.Right.writeTQL(b)
}

// NotPattern negates a block of patterns: "not { ...; }".
type NotPattern struct {
	Patterns []Pattern
}

func (NotPattern) pattern() {}

func (p NotPattern) writeTQL(b *strings.Builder) {
	b.WriteString("not { ")
	writeInline(b, p.Patterns)
	b.WriteString(" }")
}

// OrPattern is a disjunction of pattern blocks:
// "{ ...; } or { ...; }".
type OrPattern struct {
	Alternatives [][]Pattern
}

func (OrPattern) pattern() {}

func (p OrPattern) writeTQL(b *strings.Builder) {
	for i, alt := range p.Alternatives {
		if i > 0 {
			b.WriteString(" or ")
		}
		b.WriteString("{ ")
		writeInline(b, alt)
		b.WriteString(" }")
	}
}

// TryPattern wraps patterns in a try block so an unmatched optional
// attribute does not fail the enclosing match: "try { ...; }".
type TryPattern struct {
	Patterns []Pattern
}

func (TryPattern) pattern() {}

func (p TryPattern) writeTQL(b *strings.Builder) {
	b.WriteString("try { ")
	writeInline(b, p.Patterns)
	b.WriteString(" }")
}

// RawPattern is a pre-rendered pattern fragment.
type RawPattern struct {
	Text string
}

func (RawPattern) pattern() {}

func (p RawPattern) writeTQL(b *strings.Builder) { b.WriteString(p.Text) }

func writeInline(b *strings.Builder, patterns []Pattern) {
	for i, sub := range patterns {
		if i > 0 {
			b.WriteString(" ")
		}
		sub.writeTQL(b)
		b.WriteString(";")
	}
}

// --- Statements (insert / delete / update / put clauses) ---

// Statement is a fragment of a write clause.
type Statement interface {
	Node
	statement()
}

// InsertThing inserts an entity with inline attribute values:
// "$e isa person, has name \"x\", has age 30".
type InsertThing struct {
	Variable string
	TypeName string
	Has      []HasAttr
}

func (InsertThing) statement() {}

func (s InsertThing) writeTQL(b *strings.Builder) {
	b.WriteString(s.Variable)
	b.WriteString(" isa ")
	b.WriteString(s.TypeName)
	for _, h := range s.Has {
		b.WriteString(", has ")
		b.WriteString(h.Attr)
		b.WriteString(" ")
		h.Value.writeTQL(b)
	}
}

// InsertRelation inserts a relation referencing previously matched players.
// With a variable it renders "$r isa type, links (role: $p)"; without one
// it renders the anonymous form "(role: $p) isa type".
type InsertRelation struct {
	Variable string
	TypeName string
	Roles    []RolePlayer
	Has      []HasAttr
}

func (InsertRelation) statement() {}

func (s InsertRelation) writeTQL(b *strings.Builder) {
	roles := func() {
		b.WriteString("(")
		for i, rp := range s.Roles {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(rp.Role)
			b.WriteString(": ")
			b.WriteString(rp.Player)
		}
		b.WriteString(")")
	}
	if s.Variable != "" {
		b.WriteString(s.Variable)
		b.WriteString(" isa ")
		b.WriteString(s.TypeName)
		b.WriteString(", links ")
		roles()
	} else {
		roles()
		b.WriteString(" isa ")
		b.WriteString(s.TypeName)
	}
	for _, h := range s.Has {
		b.WriteString(", has ")
		b.WriteString(h.Attr)
		b.WriteString(" ")
		h.Value.writeTQL(b)
	}
}

// HasStatement assigns one attribute value to an already-bound subject:
// "$e has name \"x\"".
type HasStatement struct {
	Subject string
	Attr    string
	Value   Operand
}

func (HasStatement) statement() {}

func (s HasStatement) writeTQL(b *strings.Builder) {
	b.WriteString(s.Subject)
	b.WriteString(" has ")
	b.WriteString(s.Attr)
	b.WriteString(" ")
	s.Value.writeTQL(b)
}

// DeleteThing deletes the thing bound to a variable.
type DeleteThing struct {
	Variable string
}

func (DeleteThing) statement() {}

func (s DeleteThing) writeTQL(b *strings.Builder) { b.WriteString(s.Variable) }

// DeleteAttr detaches a bound attribute from its owner: "$old of $e".
type DeleteAttr struct {
	AttrVar string
	Owner   string
}

func (DeleteAttr) statement() {}

func (s DeleteAttr) writeTQL(b *strings.Builder) {
	b.WriteString(s.AttrVar)
	b.WriteString(" of ")
	b.WriteString(s.Owner)
}

// TryStatement wraps a statement in a try block: "try { $old of $e; }".
type TryStatement struct {
	Statement Statement
}

func (TryStatement) statement() {}

func (s TryStatement) writeTQL(b *strings.Builder) {
	b.WriteString("try { ")
	s.Statement.writeTQL(b)
	b.WriteString("; }")
}

// RawStatement is a pre-rendered statement fragment.
type RawStatement struct {
	Text string
}

func (RawStatement) statement() {}

func (s RawStatement) writeTQL(b *strings.Builder) { b.WriteString(s.Text) }

// --- Clauses ---

// Clause is a top-level section of a query.
type Clause interface {
	Node
	clause()
}

// Match is a match clause.
type Match struct {
	Patterns []Pattern
}

func (Match) clause() {}

func (c Match) writeTQL(b *strings.Builder) {
	b.WriteString("match")
	for _, p := range c.Patterns {
		b.WriteString("\n")
		p.writeTQL(b)
		b.WriteString(";")
	}
}

// Insert is an insert clause.
type Insert struct {
	Statements []Statement
}

func (Insert) clause() {}

func (c Insert) writeTQL(b *strings.Builder) { writeClause(b, "insert", c.Statements) }

// Delete is a delete clause.
type Delete struct {
	Statements []Statement
}

func (Delete) clause() {}

func (c Delete) writeTQL(b *strings.Builder) { writeClause(b, "delete", c.Statements) }

// Update is an update clause, distinct from delete+insert: it replaces the
// value of a single-card attribute in place.
type Update struct {
	Statements []Statement
}

func (Update) clause() {}

func (c Update) writeTQL(b *strings.Builder) { writeClause(b, "update", c.Statements) }

// Put is an idempotent insert-if-absent clause over the whole statement block.
type Put struct {
	Statements []Statement
}

func (Put) clause() {}

func (c Put) writeTQL(b *strings.Builder) { writeClause(b, "put", c.Statements) }

func writeClause(b *strings.Builder, keyword string, stmts []Statement) {
	b.WriteString(keyword)
	for _, s := range stmts {
		b.WriteString("\n")
		s.writeTQL(b)
		b.WriteString(";")
	}
}

// Select projects a subset of bound variables.
type Select struct {
	Variables []string
}

func (Select) clause() {}

func (c Select) writeTQL(b *strings.Builder) {
	b.WriteString("select ")
	b.WriteString(strings.Join(c.Variables, ", "))
	b.WriteString(";")
}

// Sort orders results by a bound variable.
type Sort struct {
	Variable  string
	Direction string // "asc" or "desc"; empty defaults to asc
}

func (Sort) clause() {}

func (c Sort) writeTQL(b *strings.Builder) {
	b.WriteString("sort ")
	b.WriteString(c.Variable)
	if c.Direction != "" {
		b.WriteString(" ")
		b.WriteString(c.Direction)
	}
	b.WriteString(";")
}

// Offset skips a number of results.
type Offset struct {
	Count int
}

func (Offset) clause() {}

func (c Offset) writeTQL(b *strings.Builder) {
	b.WriteString("offset ")
	b.WriteString(strconv.Itoa(c.Count))
	b.WriteString(";")
}

// Limit caps the number of results.
type Limit struct {
	Count int
}

func (Limit) clause() {}

func (c Limit) writeTQL(b *strings.Builder) {
	b.WriteString("limit ")
	b.WriteString(strconv.Itoa(c.Count))
	b.WriteString(";")
}

// --- Fetch ---

// FetchItem is one projection inside a fetch clause.
type FetchItem interface {
	Node
	fetchItem()
	// Key is the name the projection appears under in each result row.
	Key() string
}

// FetchField projects a single attribute value: `"name": $e.name`.
type FetchField struct {
	Name string
	Var  string
	Attr string
}

func (FetchField) fetchItem() {}

// Key returns the projection name.
func (f FetchField) Key() string { return f.Name }

func (f FetchField) writeTQL(b *strings.Builder) {
	fmt.Fprintf(b, "%q: %s.%s", f.Name, f.Var, f.Attr)
}

// FetchFieldList projects every value of a multi-card attribute as a list:
// `"tags": [$e.tags]`.
type FetchFieldList struct {
	Name string
	Var  string
	Attr string
}

func (FetchFieldList) fetchItem() {}

// Key returns the projection name.
func (f FetchFieldList) Key() string { return f.Name }

func (f FetchFieldList) writeTQL(b *strings.Builder) {
	fmt.Fprintf(b, "%q: [%s.%s]", f.Name, f.Var, f.Attr)
}

// FetchFunc projects the result of a builtin applied to a variable:
// `"_iid": iid($e)`.
type FetchFunc struct {
	Name string
	Func string
	Var  string
}

func (FetchFunc) fetchItem() {}

// Key returns the projection name.
func (f FetchFunc) Key() string { return f.Name }

func (f FetchFunc) writeTQL(b *strings.Builder) {
	fmt.Fprintf(b, "%q: %s(%s)", f.Name, f.Func, f.Var)
}

// FetchNested projects every attribute of a variable as a nested object:
// `"employee": { $p.* }`. Used for relation role players.
type FetchNested struct {
	Name string
	Var  string
}

func (FetchNested) fetchItem() {}

// Key returns the projection name.
func (f FetchNested) Key() string { return f.Name }

func (f FetchNested) writeTQL(b *strings.Builder) {
	fmt.Fprintf(b, "%q: { %s.* }", f.Name, f.Var)
}

// Fetch is a fetch clause describing the shape of each result row.
type Fetch struct {
	Items []FetchItem
}

func (Fetch) clause() {}

func (c Fetch) writeTQL(b *strings.Builder) {
	b.WriteString("fetch {")
	for i, item := range c.Items {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("\n  ")
		item.writeTQL(b)
	}
	b.WriteString("\n};")
}

// --- Reduce ---

// ReduceAssign assigns one aggregate to a result variable:
// "$total = sum($salary)".
type ReduceAssign struct {
	Variable string
	Func     string
	Arg      string
}

func (r ReduceAssign) writeTQL(b *strings.Builder) {
	b.WriteString(r.Variable)
	b.WriteString(" = ")
	b.WriteString(r.Func)
	b.WriteString("(")
	b.WriteString(r.Arg)
	b.WriteString(")")
}

// Reduce is a reduce clause computing one or more aggregates, optionally
// grouped by bound variables.
type Reduce struct {
	Assignments []ReduceAssign
	GroupBy     []string
}

func (Reduce) clause() {}

func (c Reduce) writeTQL(b *strings.Builder) {
	b.WriteString("reduce ")
	for i, a := range c.Assignments {
		if i > 0 {
			b.WriteString(", ")
		}
		a.writeTQL(b)
	}
	if len(c.GroupBy) > 0 {
		b.WriteString(" groupby ")
		b.WriteString(strings.Join(c.GroupBy, ", "))
	}
	b.WriteString(";")
}
