package bridgegen

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleSchema = `
define
# core attributes
attribute name, value string;
attribute email, value string;
attribute age, value integer;
attribute status, value string @values("active", "inactive");
attribute code, value string @regex("^[A-Z]+$");
attribute salary, value double;

entity person @abstract,
    owns name @key,
    owns email @unique,
    owns age,
    plays employment:employee;
entity customer sub person,
    owns status;
entity company,
    owns name @key,
    plays employment:employer;

relation employment,
    relates employee @card(1..),
    relates employer,
    owns salary;
`

func parseSample(t *testing.T) *Schema {
	t.Helper()
	schema, err := Parse(sampleSchema)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return schema
}

func TestParse_Attributes(t *testing.T) {
	schema := parseSample(t)

	if len(schema.Attributes) != 6 {
		t.Fatalf("expected 6 attributes, got %d", len(schema.Attributes))
	}
	byName := make(map[string]AttributeSpec)
	for _, a := range schema.Attributes {
		byName[a.Name] = a
	}

	if byName["name"].ValueType != "string" {
		t.Errorf("name value type = %q", byName["name"].ValueType)
	}
	if byName["age"].ValueType != "integer" {
		t.Errorf("age value type = %q", byName["age"].ValueType)
	}
	if byName["salary"].ValueType != "double" {
		t.Errorf("salary value type = %q", byName["salary"].ValueType)
	}

	status := byName["status"]
	if len(status.Values) != 2 || status.Values[0] != "active" || status.Values[1] != "inactive" {
		t.Errorf("status values = %v", status.Values)
	}
	if code := byName["code"]; code.Regex != "^[A-Z]+$" {
		t.Errorf("code regex = %q", code.Regex)
	}
}

func TestParse_Entities(t *testing.T) {
	schema := parseSample(t)

	if len(schema.Entities) != 3 {
		t.Fatalf("expected 3 entities, got %d", len(schema.Entities))
	}

	person := schema.Entities[0]
	if person.Name != "person" || !person.Abstract {
		t.Errorf("unexpected person spec: %+v", person)
	}
	if len(person.Owns) != 3 {
		t.Fatalf("expected 3 owns on person, got %d", len(person.Owns))
	}
	if !person.Owns[0].Key || person.Owns[0].Attribute != "name" {
		t.Errorf("expected name @key, got %+v", person.Owns[0])
	}
	if !person.Owns[1].Unique || person.Owns[1].Attribute != "email" {
		t.Errorf("expected email @unique, got %+v", person.Owns[1])
	}
	if person.Owns[2].Key || person.Owns[2].Unique {
		t.Errorf("age carries stray annotations: %+v", person.Owns[2])
	}
	if len(person.Plays) != 1 || person.Plays[0].Relation != "employment" || person.Plays[0].Role != "employee" {
		t.Errorf("unexpected plays: %v", person.Plays)
	}

	customer := schema.Entities[1]
	if customer.Parent != "person" {
		t.Errorf("expected customer sub person, got parent %q", customer.Parent)
	}
	if customer.Abstract {
		t.Error("customer must not be abstract")
	}
}

func TestParse_Relations(t *testing.T) {
	schema := parseSample(t)

	if len(schema.Relations) != 1 {
		t.Fatalf("expected 1 relation, got %d", len(schema.Relations))
	}
	emp := schema.Relations[0]
	if emp.Name != "employment" {
		t.Errorf("relation name = %q", emp.Name)
	}
	if len(emp.Relates) != 2 {
		t.Fatalf("expected 2 relates, got %d", len(emp.Relates))
	}
	if emp.Relates[0].Role != "employee" || emp.Relates[0].Card != "1.." {
		t.Errorf("unexpected employee relates: %+v", emp.Relates[0])
	}
	if emp.Relates[1].Role != "employer" || emp.Relates[1].Card != "" {
		t.Errorf("unexpected employer relates: %+v", emp.Relates[1])
	}
	if len(emp.Owns) != 1 || emp.Owns[0].Attribute != "salary" {
		t.Errorf("unexpected relation owns: %v", emp.Owns)
	}
}

func TestParse_RelatesAsOverride(t *testing.T) {
	schema, err := Parse(`
define
relation contract,
    relates party;
relation employment sub contract,
    relates employee as party;
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	emp := schema.Relations[1]
	if emp.Parent != "contract" {
		t.Errorf("parent = %q", emp.Parent)
	}
	if len(emp.Relates) != 1 || emp.Relates[0].Role != "employee" || emp.Relates[0].AsParent != "party" {
		t.Errorf("unexpected relates override: %+v", emp.Relates)
	}
}

func TestParse_CardRange(t *testing.T) {
	schema, err := Parse(`
define
attribute tag, value string;
entity post,
    owns tag @card(0..5);
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if card := schema.Entities[0].Owns[0].Card; card != "0..5" {
		t.Errorf("card = %q", card)
	}
}

func TestParse_CommentsIgnored(t *testing.T) {
	schema, err := Parse(`
define
# leading comment
attribute name, value string; # trailing comment
entity person, owns name; # done
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(schema.Attributes) != 1 || len(schema.Entities) != 1 {
		t.Errorf("unexpected schema: %+v", schema)
	}
}

func TestParse_Malformed(t *testing.T) {
	if _, err := Parse("define entity ;"); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := Parse("attribute name, value string;"); err == nil {
		t.Fatal("expected error without define keyword")
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.tql")
	if err := os.WriteFile(path, []byte(sampleSchema), 0o644); err != nil {
		t.Fatalf("write schema: %v", err)
	}

	schema, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(schema.Entities) != 3 {
		t.Errorf("expected 3 entities, got %d", len(schema.Entities))
	}

	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.tql")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSchema_AccumulateInheritance(t *testing.T) {
	schema := parseSample(t)
	schema.AccumulateInheritance()

	customer := schema.Entities[1]
	attrs := make([]string, 0, len(customer.Owns))
	for _, o := range customer.Owns {
		attrs = append(attrs, o.Attribute)
	}
	want := []string{"name", "email", "age", "status"}
	if len(attrs) != len(want) {
		t.Fatalf("expected owns %v, got %v", want, attrs)
	}
	for i, a := range want {
		if attrs[i] != a {
			t.Errorf("owns[%d] = %q, want %q", i, attrs[i], a)
		}
	}
	if !customer.Owns[0].Key {
		t.Error("inherited key annotation lost")
	}
}

func TestSchema_AccumulateInheritance_ChildOverrides(t *testing.T) {
	schema, err := Parse(`
define
attribute name, value string;
entity base,
    owns name @card(0..1);
entity derived sub base,
    owns name @key;
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	schema.AccumulateInheritance()

	derived := schema.Entities[1]
	if len(derived.Owns) != 1 {
		t.Fatalf("expected single owns after override, got %v", derived.Owns)
	}
	if !derived.Owns[0].Key || derived.Owns[0].Card != "" {
		t.Errorf("child clause did not win: %+v", derived.Owns[0])
	}
}

func TestSchema_AccumulateInheritance_Relations(t *testing.T) {
	schema, err := Parse(`
define
attribute note, value string;
relation contract,
    relates party @card(2..),
    owns note;
relation employment sub contract,
    relates employee;
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	schema.AccumulateInheritance()

	emp := schema.Relations[1]
	if len(emp.Relates) != 2 {
		t.Fatalf("expected inherited relates, got %v", emp.Relates)
	}
	if emp.Relates[0].Role != "party" || emp.Relates[1].Role != "employee" {
		t.Errorf("relates order: %v", emp.Relates)
	}
	if len(emp.Owns) != 1 || emp.Owns[0].Attribute != "note" {
		t.Errorf("inherited owns missing: %v", emp.Owns)
	}
}
