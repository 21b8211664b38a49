package bridgegen

import (
	"fmt"
	"os"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Grammar structs. Participle struct tags drive the parse; the tree is
// converted into the Schema model afterwards so the grammar can evolve
// without touching consumers.

type schemaFile struct {
	Define string       `parser:"'define'"`
	Decls  []schemaDecl `parser:"@@*"`
}

type schemaDecl struct {
	Attribute *attrDecl     `parser:"  @@"`
	Entity    *entityDecl   `parser:"| @@"`
	Relation  *relationDecl `parser:"| @@"`
}

// attrDecl parses: attribute name [,] value type [@annotation...];
type attrDecl struct {
	Name      string       `parser:"'attribute' @Ident ','?"`
	ValueType string       `parser:"'value' @Ident"`
	Annots    []annotation `parser:"@@* ';'"`
}

// entityDecl parses: entity name [sub parent] [@abstract] [, clause...];
type entityDecl struct {
	Name     string         `parser:"'entity' @Ident"`
	Parent   *subClause     `parser:"@@?"`
	Abstract bool           `parser:"@'@abstract'?"`
	Comma    string         `parser:"','?"`
	Clauses  []entityClause `parser:"( @@ ( ',' @@ )* )? ';'"`
}

// relationDecl parses: relation name [sub parent] [@abstract] [, clause...];
type relationDecl struct {
	Name     string           `parser:"'relation' @Ident"`
	Parent   *subClause       `parser:"@@?"`
	Abstract bool             `parser:"@'@abstract'?"`
	Comma    string           `parser:"','?"`
	Clauses  []relationClause `parser:"( @@ ( ',' @@ )* )? ';'"`
}

type subClause struct {
	Parent string `parser:"'sub' @Ident"`
}

type entityClause struct {
	Owns  *ownsClause  `parser:"  @@"`
	Plays *playsClause `parser:"| @@"`
}

type relationClause struct {
	Relates *relatesClause `parser:"  @@"`
	Owns    *ownsClause    `parser:"| @@"`
	Plays   *playsClause   `parser:"| @@"`
}

type ownsClause struct {
	Attribute string       `parser:"'owns' @Ident"`
	Annots    []annotation `parser:"@@*"`
}

type playsClause struct {
	Relation string `parser:"'plays' @Ident"`
	Role     string `parser:"':' @Ident"`
}

type relatesClause struct {
	Role     string       `parser:"'relates' @Ident"`
	AsParent *asClause    `parser:"@@?"`
	Annots   []annotation `parser:"@@*"`
}

type asClause struct {
	Parent string `parser:"'as' @Ident"`
}

type annotation struct {
	Key    bool         `parser:"  @'@key'"`
	Unique bool         `parser:"| @'@unique'"`
	Card   *cardAnnot   `parser:"| @@"`
	Regex  *regexAnnot  `parser:"| @@"`
	Values *valuesAnnot `parser:"| @@"`
}

type cardAnnot struct {
	Expr string `parser:"'@card' '(' @CardExpr ')'"`
}

type regexAnnot struct {
	Pattern string `parser:"'@regex' '(' @String ')'"`
}

type valuesAnnot struct {
	Values []string `parser:"'@values' '(' @String ( ',' @String )* ')'"`
}

var schemaLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Whitespace", Pattern: `[\s]+`},
	{Name: "AnnotKW", Pattern: `@(key|unique|abstract|card|regex|values)`},
	{Name: "String", Pattern: `"(?:[^"\\]|\\.)*"`},
	{Name: "CardExpr", Pattern: `[0-9]+(?:\.\.[0-9]*)?`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_-]*`},
	{Name: "Punct", Pattern: `[;,:?()\[\]{}]`},
})

var schemaParser = participle.MustBuild[schemaFile](
	participle.Lexer(schemaLexer),
	participle.Elide("Comment", "Whitespace"),
	participle.UseLookahead(3),
)

// Parse reads a TypeQL define block into a Schema.
func Parse(input string) (*Schema, error) {
	tree, err := schemaParser.ParseString("schema.tql", input)
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return convert(tree), nil
}

// ParseFile reads and parses a schema file.
func ParseFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return Parse(string(data))
}

func convert(tree *schemaFile) *Schema {
	schema := &Schema{}
	for _, decl := range tree.Decls {
		switch {
		case decl.Attribute != nil:
			schema.Attributes = append(schema.Attributes, convertAttr(decl.Attribute))
		case decl.Entity != nil:
			schema.Entities = append(schema.Entities, convertEntity(decl.Entity))
		case decl.Relation != nil:
			schema.Relations = append(schema.Relations, convertRelation(decl.Relation))
		}
	}
	return schema
}

func convertAttr(a *attrDecl) AttributeSpec {
	spec := AttributeSpec{Name: a.Name, ValueType: a.ValueType}
	for _, ann := range a.Annots {
		if ann.Regex != nil {
			spec.Regex = unquote(ann.Regex.Pattern)
		}
		if ann.Values != nil {
			for _, v := range ann.Values.Values {
				spec.Values = append(spec.Values, unquote(v))
			}
		}
	}
	return spec
}

func convertEntity(e *entityDecl) EntitySpec {
	spec := EntitySpec{Name: e.Name, Abstract: e.Abstract}
	if e.Parent != nil {
		spec.Parent = e.Parent.Parent
	}
	for _, c := range e.Clauses {
		if c.Owns != nil {
			spec.Owns = append(spec.Owns, convertOwns(c.Owns))
		}
		if c.Plays != nil {
			spec.Plays = append(spec.Plays, PlaysSpec{Relation: c.Plays.Relation, Role: c.Plays.Role})
		}
	}
	return spec
}

func convertRelation(r *relationDecl) RelationSpec {
	spec := RelationSpec{Name: r.Name, Abstract: r.Abstract}
	if r.Parent != nil {
		spec.Parent = r.Parent.Parent
	}
	for _, c := range r.Clauses {
		if c.Relates != nil {
			rs := RelatesSpec{Role: c.Relates.Role}
			if c.Relates.AsParent != nil {
				rs.AsParent = c.Relates.AsParent.Parent
			}
			for _, ann := range c.Relates.Annots {
				if ann.Card != nil {
					rs.Card = ann.Card.Expr
				}
			}
			spec.Relates = append(spec.Relates, rs)
		}
		if c.Owns != nil {
			spec.Owns = append(spec.Owns, convertOwns(c.Owns))
		}
		if c.Plays != nil {
			spec.Plays = append(spec.Plays, PlaysSpec{Relation: c.Plays.Relation, Role: c.Plays.Role})
		}
	}
	return spec
}

func convertOwns(o *ownsClause) OwnsSpec {
	spec := OwnsSpec{Attribute: o.Attribute}
	for _, ann := range o.Annots {
		if ann.Key {
			spec.Key = true
		}
		if ann.Unique {
			spec.Unique = true
		}
		if ann.Card != nil {
			spec.Card = ann.Card.Expr
		}
	}
	return spec
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
