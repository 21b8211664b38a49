package bridge

import (
	"strings"
	"testing"
)

func TestGenerateSchema_Empty(t *testing.T) {
	ClearRegistry()
	if s := GenerateSchema(); s != "" {
		t.Errorf("expected empty schema, got %q", s)
	}
}

func TestGenerateSchema_Attributes(t *testing.T) {
	registerTestTypes(t)
	schema := GenerateSchema()

	assertContains(t, schema, "define\n")
	assertContains(t, schema, "attribute name, value string;")
	assertContains(t, schema, "attribute email, value string;")
	assertContains(t, schema, "attribute age, value integer;")
	assertContains(t, schema, "attribute nickname, value string;")
	assertContains(t, schema, "attribute salary, value double;")
	assertContains(t, schema, "attribute start-date, value datetime;")
}

func TestGenerateSchema_AttributeDedup(t *testing.T) {
	registerTestTypes(t)
	schema := GenerateSchema()
	// name is owned by person and company; it is declared once.
	if n := strings.Count(schema, "attribute name, value string;"); n != 1 {
		t.Errorf("expected one name declaration, got %d", n)
	}
}

func TestGenerateSchema_EntityDef(t *testing.T) {
	registerTestTypes(t)
	schema := GenerateSchema()

	assertContains(t, schema, "entity test-person")
	assertContains(t, schema, "owns name @key")
	assertContains(t, schema, "owns email @unique")
	assertContains(t, schema, "owns age")
	assertContains(t, schema, "owns nickname @card(0..)")
}

func TestGenerateSchema_RelationDef(t *testing.T) {
	registerTestTypes(t)
	schema := GenerateSchema()

	assertContains(t, schema, "relation test-employment")
	assertContains(t, schema, "relates employee")
	assertContains(t, schema, "relates employer")
	assertContains(t, schema, "owns salary")
}

func TestGenerateSchema_Plays(t *testing.T) {
	registerTestTypes(t)
	schema := GenerateSchema()

	assertContains(t, schema, "plays test-employment:employee")
	assertContains(t, schema, "plays test-employment:employer")
}

func TestGenerateSchema_Abstract(t *testing.T) {
	ClearRegistry()
	type shape struct {
		BaseEntity `typeql:",abstract"`
		Label      string `typeql:"label,key"`
	}
	MustRegister[shape]()
	schema := GenerateSchema()
	assertContains(t, schema, "entity shape @abstract")
}

func TestGenerateSchema_Inheritance(t *testing.T) {
	ClearRegistry()
	type animal struct {
		BaseEntity
		Label string `typeql:"label,key"`
	}
	type dog struct {
		animal
		Breed *string `typeql:"breed"`
	}
	MustRegister[animal]()
	MustRegister[dog]()
	schema := GenerateSchema()

	assertContains(t, schema, "entity dog, sub animal")
	assertContains(t, schema, "entity animal")
	// Inherited ownerships stay on the supertype definition.
	dogDef := schema[strings.Index(schema, "entity dog"):]
	assertContains(t, dogDef, "owns breed")
	assertNotContains(t, dogDef, "owns label")
}

func TestGenerateSchema_ExplicitCardRange(t *testing.T) {
	ClearRegistry()
	type tagged struct {
		BaseEntity
		Label string   `typeql:"label,key"`
		Tags  []string `typeql:"tag,card=1..5"`
	}
	MustRegister[tagged]()
	schema := GenerateSchema()
	assertContains(t, schema, "owns tag @card(1..5)")
}

func TestGenerateSchemaFor(t *testing.T) {
	registerTestTypes(t)
	info, err := Lookup("test-person")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	schema := GenerateSchemaFor(info)
	assertContains(t, schema, "define\n")
	assertContains(t, schema, "attribute name, value string;")
	assertContains(t, schema, "entity test-person")
	// Plays clauses need the whole registry and are omitted here.
	assertNotContains(t, schema, "plays")
}

func TestCardAnnotation(t *testing.T) {
	three := 3
	if got := cardAnnotation(0, nil); got != "@card(0..)" {
		t.Errorf("unexpected: %q", got)
	}
	if got := cardAnnotation(1, &three); got != "@card(1..3)" {
		t.Errorf("unexpected: %q", got)
	}
}
