package bridge

import (
	"fmt"
	"strings"
)

// GenerateSchema produces one TypeQL define query covering every model in
// the registry: attribute declarations first, then entity and relation
// definitions with ownership annotations and the plays clauses implied by
// registered relations.
func GenerateSchema() string {
	types := RegisteredTypes()
	if len(types) == 0 {
		return ""
	}

	var parts []string
	attrsSeen := make(map[string]bool)
	for _, info := range types {
		parts = append(parts, attributeDefs(info, attrsSeen)...)
	}

	playsMap := buildPlaysMap(types)
	for _, info := range types {
		if def := typeDef(info, playsMap); def != "" {
			parts = append(parts, def)
		}
	}
	return "define\n" + strings.Join(parts, "\n")
}

// GenerateSchemaFor produces a define query for one model, including the
// attribute declarations it needs. Plays clauses require knowledge of the
// whole registry and are left to GenerateSchema.
func GenerateSchemaFor(info *ModelInfo) string {
	parts := attributeDefs(info, make(map[string]bool))
	if def := typeDef(info, nil); def != "" {
		parts = append(parts, def)
	}
	return "define\n" + strings.Join(parts, "\n")
}

func attributeDefs(info *ModelInfo, seen map[string]bool) []string {
	var parts []string
	for _, b := range info.Bindings {
		key := b.Name + ":" + b.ValueType
		if seen[key] {
			continue
		}
		seen[key] = true
		parts = append(parts, fmt.Sprintf("attribute %s, value %s;", b.Name, b.ValueType))
	}
	return parts
}

// buildPlaysMap collects the plays clauses each player type must declare,
// keyed by player type name.
func buildPlaysMap(types []*ModelInfo) map[string][]string {
	plays := make(map[string][]string)
	for _, info := range types {
		if info.Kind != RelationModel {
			continue
		}
		for _, role := range info.Roles {
			clause := fmt.Sprintf("    plays %s:%s", info.TypeName, role.Role)
			plays[role.PlayerTypeName] = append(plays[role.PlayerTypeName], clause)
		}
	}
	return plays
}

func typeDef(info *ModelInfo, playsMap map[string][]string) string {
	var lines []string

	kind := "entity"
	if info.Kind == RelationModel {
		kind = "relation"
	}
	header := fmt.Sprintf("%s %s", kind, info.TypeName)
	if info.Abstract {
		header += " @abstract"
	}
	if info.Supertype != "" {
		header += ", sub " + info.Supertype
	}
	lines = append(lines, header)

	for _, role := range info.Roles {
		lines = append(lines, "    relates "+role.Role)
	}
	if info.Kind == EntityModel && playsMap != nil {
		lines = append(lines, playsMap[info.TypeName]...)
	}

	inherited := inheritedAttrs(info)
	for _, b := range info.Bindings {
		if inherited[b.Name] {
			continue
		}
		ownership := "    owns " + b.Name
		if ann := bindingAnnotations(b); ann != "" {
			ownership += " " + ann
		}
		lines = append(lines, ownership)
	}
	return strings.Join(lines, ",\n") + ";"
}

// inheritedAttrs names the bindings a subtype carries from its supertype;
// those ownerships live on the supertype's definition.
func inheritedAttrs(info *ModelInfo) map[string]bool {
	out := make(map[string]bool)
	if info.Supertype == "" {
		return out
	}
	parent, err := Lookup(info.Supertype)
	if err != nil {
		return out
	}
	for _, b := range parent.Bindings {
		out[b.Name] = true
	}
	return out
}

func bindingAnnotations(b *AttributeBinding) string {
	var anns []string
	if b.Key {
		anns = append(anns, "@key")
	}
	if b.Unique {
		anns = append(anns, "@unique")
	}

	// @key already implies @card(1..1).
	if !b.Key && b.ExplicitCard {
		isDefault := b.CardMin == 1 && b.CardMax != nil && *b.CardMax == 1
		if !b.Unique || !isDefault {
			anns = append(anns, cardAnnotation(b.CardMin, b.CardMax))
		}
	}
	return strings.Join(anns, " ")
}

func cardAnnotation(min int, max *int) string {
	if max == nil {
		return fmt.Sprintf("@card(%d..)", min)
	}
	return fmt.Sprintf("@card(%d..%d)", min, *max)
}
