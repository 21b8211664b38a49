package bridge

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// Shared test models. testPerson and testCompany are role players of
// testEmployment, so registration order matters.
type testPerson struct {
	BaseEntity
	Name      string   `typeql:"name,key"`
	Email     string   `typeql:"email,unique"`
	Age       *int     `typeql:"age"`
	Nicknames []string `typeql:"nickname,card=0.."`
}

type testCompany struct {
	BaseEntity
	Name     string  `typeql:"name,key"`
	Industry *string `typeql:"industry"`
}

type testEmployment struct {
	BaseRelation
	Employee  *testPerson  `typeql:"role:employee"`
	Employer  *testCompany `typeql:"role:employer"`
	Salary    *float64     `typeql:"salary"`
	StartDate *time.Time   `typeql:"start-date"`
}

// registerTestTypes registers the test types fresh (clears first).
func registerTestTypes(t *testing.T) {
	t.Helper()
	ClearRegistry()
	MustRegister[testPerson]()
	MustRegister[testCompany]()
	MustRegister[testEmployment]()
}

func typeOf[T any]() reflect.Type {
	var zero T
	return reflect.TypeOf(zero)
}

func assertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}

func assertNotContains(t *testing.T, s, substr string) {
	t.Helper()
	if strings.Contains(s, substr) {
		t.Errorf("expected %q to NOT contain %q", s, substr)
	}
}

func assertEqual(t *testing.T, expected, actual string) {
	t.Helper()
	if expected != actual {
		t.Errorf("expected:\n%s\ngot:\n%s", expected, actual)
	}
}

// --- Tests ---

func TestExtractModelInfo_Entity(t *testing.T) {
	info, err := ExtractModelInfo(typeOf[testPerson]())
	if err != nil {
		t.Fatalf("ExtractModelInfo failed: %v", err)
	}
	if info.Kind != EntityModel {
		t.Errorf("expected EntityModel, got %v", info.Kind)
	}
	if info.TypeName != "test-person" {
		t.Errorf("expected type name test-person, got %q", info.TypeName)
	}
	if len(info.Bindings) != 4 {
		t.Fatalf("expected 4 bindings, got %d", len(info.Bindings))
	}

	name, ok := info.Binding("name")
	if !ok || !name.Key {
		t.Error("expected name to be the key binding")
	}
	email, ok := info.Binding("email")
	if !ok || !email.Unique {
		t.Error("expected email to be unique")
	}
	age, ok := info.Binding("age")
	if !ok || !age.IsPointer || !age.Optional() {
		t.Error("expected age to be an optional pointer binding")
	}
	nick, ok := info.Binding("nickname")
	if !ok || !nick.IsSlice || !nick.MultiValued() {
		t.Error("expected nickname to be a multi-valued slice binding")
	}
	if nick.CardMin != 0 || nick.CardMax != nil {
		t.Errorf("expected nickname card 0.., got %d..%v", nick.CardMin, nick.CardMax)
	}
}

func TestExtractModelInfo_FieldNameLookup(t *testing.T) {
	info, err := ExtractModelInfo(typeOf[testPerson]())
	if err != nil {
		t.Fatalf("ExtractModelInfo failed: %v", err)
	}
	byField, ok := info.Binding("Email")
	if !ok {
		t.Fatal("expected binding lookup by Go field name")
	}
	byAttr, _ := info.Binding("email")
	if byField != byAttr {
		t.Error("field-name and attribute-name lookups should resolve the same binding")
	}
}

func TestExtractModelInfo_Relation(t *testing.T) {
	info, err := ExtractModelInfo(typeOf[testEmployment]())
	if err != nil {
		t.Fatalf("ExtractModelInfo failed: %v", err)
	}
	if info.Kind != RelationModel {
		t.Errorf("expected RelationModel, got %v", info.Kind)
	}
	if info.TypeName != "test-employment" {
		t.Errorf("expected type name test-employment, got %q", info.TypeName)
	}
	if len(info.Roles) != 2 {
		t.Fatalf("expected 2 roles, got %d", len(info.Roles))
	}
	emp, ok := info.Role("employee")
	if !ok {
		t.Fatal("expected employee role")
	}
	if emp.PlayerGoType != typeOf[testPerson]() {
		t.Errorf("expected player type testPerson, got %v", emp.PlayerGoType)
	}
	if _, ok := info.Role("Employer"); !ok {
		t.Error("expected role lookup by Go field name")
	}
	sal, ok := info.Binding("salary")
	if !ok || sal.ValueType != "double" {
		t.Error("expected double salary binding")
	}
	sd, ok := info.Binding("start-date")
	if !ok || sd.ValueType != "datetime" {
		t.Error("expected datetime start-date binding")
	}
}

func TestExtractModelInfo_ValueTypes(t *testing.T) {
	type allTypes struct {
		BaseEntity
		S  string    `typeql:"s,key"`
		I  int       `typeql:"i"`
		I6 int64     `typeql:"i6"`
		F  float64   `typeql:"f"`
		B  bool      `typeql:"b"`
		T  time.Time `typeql:"t"`
	}
	info, err := ExtractModelInfo(typeOf[allTypes]())
	if err != nil {
		t.Fatalf("ExtractModelInfo failed: %v", err)
	}
	want := map[string]string{
		"s": "string", "i": "integer", "i6": "integer",
		"f": "double", "b": "boolean", "t": "datetime",
	}
	for attr, vt := range want {
		b, ok := info.Binding(attr)
		if !ok {
			t.Fatalf("missing binding %q", attr)
		}
		if b.ValueType != vt {
			t.Errorf("binding %q: expected value type %q, got %q", attr, vt, b.ValueType)
		}
	}
}

func TestExtractModelInfo_TypeNameOverride(t *testing.T) {
	type renamed struct {
		BaseEntity `typeql:"type:custom-label"`
		Name       string `typeql:"name,key"`
	}
	info, err := ExtractModelInfo(typeOf[renamed]())
	if err != nil {
		t.Fatalf("ExtractModelInfo failed: %v", err)
	}
	if info.TypeName != "custom-label" {
		t.Errorf("expected type name custom-label, got %q", info.TypeName)
	}
}

func TestExtractModelInfo_Abstract(t *testing.T) {
	type abstractBase struct {
		BaseEntity `typeql:",abstract"`
		Name       string `typeql:"name,key"`
	}
	info, err := ExtractModelInfo(typeOf[abstractBase]())
	if err != nil {
		t.Fatalf("ExtractModelInfo failed: %v", err)
	}
	if !info.Abstract {
		t.Error("expected abstract type")
	}
}

func TestExtractModelInfo_Inheritance(t *testing.T) {
	type animal struct {
		BaseEntity
		Name string `typeql:"name,key"`
	}
	type dog struct {
		animal
		Breed string `typeql:"breed"`
	}
	info, err := ExtractModelInfo(typeOf[dog]())
	if err != nil {
		t.Fatalf("ExtractModelInfo failed: %v", err)
	}
	if info.Supertype != "animal" {
		t.Errorf("expected supertype animal, got %q", info.Supertype)
	}
	if _, ok := info.Binding("name"); !ok {
		t.Error("expected inherited name binding")
	}
	if _, ok := info.Binding("breed"); !ok {
		t.Error("expected own breed binding")
	}
}

func TestExtractModelInfo_NoBase(t *testing.T) {
	type bare struct {
		Name string `typeql:"name"`
	}
	if _, err := ExtractModelInfo(typeOf[bare]()); err == nil {
		t.Fatal("expected error for struct without BaseEntity/BaseRelation")
	}
}

func TestExtractModelInfo_MultiCardNonSlice(t *testing.T) {
	type bad struct {
		BaseEntity
		Tags string `typeql:"tag,card=0.."`
	}
	_, err := ExtractModelInfo(typeOf[bad]())
	if err == nil {
		t.Fatal("expected error for multi-card non-slice field")
	}
	assertContains(t, err.Error(), "requires a slice field")
}

func TestExtractModelInfo_SliceWithoutCard(t *testing.T) {
	type ok struct {
		BaseEntity
		Tags []string `typeql:"tag"`
	}
	// A bare slice implies card 0.. rather than erroring.
	info, err := ExtractModelInfo(typeOf[ok]())
	if err != nil {
		t.Fatalf("ExtractModelInfo failed: %v", err)
	}
	b, _ := info.Binding("tag")
	if !b.MultiValued() {
		t.Error("expected slice field to imply a multi-valued cardinality")
	}
}

func TestExtractModelInfo_RolesOnEntity(t *testing.T) {
	type bad struct {
		BaseEntity
		Player *testPerson `typeql:"role:player"`
	}
	if _, err := ExtractModelInfo(typeOf[bad]()); err == nil {
		t.Fatal("expected error for roles on an entity model")
	}
}

func TestExtractModelInfo_ReservedTypeName(t *testing.T) {
	type entity struct {
		BaseEntity
		Name string `typeql:"name,key"`
	}
	if _, err := ExtractModelInfo(typeOf[entity]()); err == nil {
		t.Fatal("expected error for reserved type name")
	}
}

func TestKeyBinding(t *testing.T) {
	info, _ := ExtractModelInfo(typeOf[testPerson]())
	key, err := info.KeyBinding()
	if err != nil {
		t.Fatalf("KeyBinding failed: %v", err)
	}
	if key.Name != "name" {
		t.Errorf("expected key binding name, got %q", key.Name)
	}
}

func TestKeyBinding_None(t *testing.T) {
	type keyless struct {
		BaseEntity
		Note string `typeql:"note"`
	}
	info, _ := ExtractModelInfo(typeOf[keyless]())
	if _, err := info.KeyBinding(); err == nil {
		t.Fatal("expected MissingKeyError for keyless type")
	}
}

func TestMultiValued_ExplicitSingleCard(t *testing.T) {
	type narrow struct {
		BaseEntity
		Name string `typeql:"name,key"`
		Code string `typeql:"code,card=1..1"`
	}
	info, err := ExtractModelInfo(typeOf[narrow]())
	if err != nil {
		t.Fatalf("ExtractModelInfo failed: %v", err)
	}
	b, _ := info.Binding("code")
	if b.MultiValued() {
		t.Error("card=1..1 should not be multi-valued")
	}
	if !b.ExplicitCard {
		t.Error("expected ExplicitCard for card=1..1")
	}
}
