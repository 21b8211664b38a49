// Package bridgegen parses TypeQL schema definitions and generates the
// tagged Go model structs the bridge package consumes.
package bridgegen

// Schema holds everything extracted from a TypeQL define block.
type Schema struct {
	Attributes []AttributeSpec
	Entities   []EntitySpec
	Relations  []RelationSpec
}

// AttributeSpec is one attribute type declaration.
type AttributeSpec struct {
	Name      string
	ValueType string
	// Regex is the @regex constraint pattern, when present.
	Regex string
	// Values lists the @values enumeration constraint, when present.
	Values []string
}

// EntitySpec is one entity type declaration.
type EntitySpec struct {
	Name     string
	Parent   string
	Abstract bool
	Owns     []OwnsSpec
	Plays    []PlaysSpec
}

// RelationSpec is one relation type declaration.
type RelationSpec struct {
	Name     string
	Parent   string
	Abstract bool
	Relates  []RelatesSpec
	Owns     []OwnsSpec
	Plays    []PlaysSpec
}

// OwnsSpec is one "owns attribute" clause with its annotations.
type OwnsSpec struct {
	Attribute string
	Key       bool
	Unique    bool
	// Card is the raw @card expression ("0..1", "1..", "2..5").
	Card string
}

// PlaysSpec is one "plays relation:role" clause.
type PlaysSpec struct {
	Relation string
	Role     string
}

// RelatesSpec is one "relates role" clause.
type RelatesSpec struct {
	Role string
	// AsParent names an overridden parent role, when present.
	AsParent string
	Card     string
}

// AccumulateInheritance copies owns and relates clauses from parent types
// onto their subtypes, so generated structs carry the full field set.
// Child clauses override parent clauses with the same name.
func (s *Schema) AccumulateInheritance() {
	entities := make(map[string]*EntitySpec)
	for i := range s.Entities {
		entities[s.Entities[i].Name] = &s.Entities[i]
	}
	relations := make(map[string]*RelationSpec)
	for i := range s.Relations {
		relations[s.Relations[i].Name] = &s.Relations[i]
	}

	for i := range s.Entities {
		accumulateEntity(&s.Entities[i], entities)
	}
	for i := range s.Relations {
		accumulateRelation(&s.Relations[i], relations)
	}
}

func accumulateEntity(e *EntitySpec, m map[string]*EntitySpec) {
	if e.Parent == "" {
		return
	}
	parent, ok := m[e.Parent]
	if !ok {
		return
	}
	accumulateEntity(parent, m)
	e.Owns = mergeOwns(parent.Owns, e.Owns)
}

func accumulateRelation(r *RelationSpec, m map[string]*RelationSpec) {
	if r.Parent == "" {
		return
	}
	parent, ok := m[r.Parent]
	if !ok {
		return
	}
	accumulateRelation(parent, m)
	r.Owns = mergeOwns(parent.Owns, r.Owns)
	r.Relates = mergeRelates(parent.Relates, r.Relates)
}

func mergeOwns(parent, child []OwnsSpec) []OwnsSpec {
	overridden := make(map[string]bool, len(child))
	for _, o := range child {
		overridden[o.Attribute] = true
	}
	var merged []OwnsSpec
	for _, o := range parent {
		if !overridden[o.Attribute] {
			merged = append(merged, o)
		}
	}
	return append(merged, child...)
}

func mergeRelates(parent, child []RelatesSpec) []RelatesSpec {
	overridden := make(map[string]bool, len(child))
	for _, r := range child {
		overridden[r.Role] = true
	}
	var merged []RelatesSpec
	for _, r := range parent {
		if !overridden[r.Role] {
			merged = append(merged, r)
		}
	}
	return append(merged, child...)
}
