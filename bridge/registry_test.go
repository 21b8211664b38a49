package bridge

import (
	"errors"
	"testing"
)

func TestRegister_AndLookup(t *testing.T) {
	ClearRegistry()
	info, err := Register[testPerson]()
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if info.TypeName != "test-person" {
		t.Errorf("expected test-person, got %q", info.TypeName)
	}

	byName, err := Lookup("test-person")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	byType, err := LookupType(typeOf[testPerson]())
	if err != nil {
		t.Fatalf("LookupType failed: %v", err)
	}
	if byName != byType || byName != info {
		t.Error("expected one shared descriptor for name and type lookups")
	}
}

func TestLookup_NotRegistered(t *testing.T) {
	ClearRegistry()
	_, err := Lookup("ghost")
	var nr *NotRegisteredError
	if !errors.As(err, &nr) {
		t.Fatalf("expected NotRegisteredError, got %v", err)
	}
}

func TestRegister_NameConflict(t *testing.T) {
	ClearRegistry()
	MustRegister[testPerson]()

	type conflicting struct {
		BaseEntity `typeql:"type:test-person"`
		Name       string `typeql:"name,key"`
	}
	if _, err := Register[conflicting](); err == nil {
		t.Fatal("expected error for conflicting type name")
	}
}

func TestRegister_SameTypeTwice(t *testing.T) {
	ClearRegistry()
	MustRegister[testPerson]()
	if _, err := Register[testPerson](); err != nil {
		t.Fatalf("re-registering the same type should succeed, got %v", err)
	}
}

func TestRegister_Relation_PlayerNotRegistered(t *testing.T) {
	ClearRegistry()
	_, err := Register[testEmployment]()
	var rr *RoleResolutionError
	if !errors.As(err, &rr) {
		t.Fatalf("expected RoleResolutionError, got %v", err)
	}
	assertContains(t, err.Error(), "not registered")
}

func TestRegister_Relation_PlayerWithoutKey(t *testing.T) {
	ClearRegistry()
	type keylessPlayer struct {
		BaseEntity
		Note string `typeql:"note"`
	}
	type badRelation struct {
		BaseRelation
		Member *keylessPlayer `typeql:"role:member"`
	}
	MustRegister[keylessPlayer]()
	_, err := Register[badRelation]()
	var rr *RoleResolutionError
	if !errors.As(err, &rr) {
		t.Fatalf("expected RoleResolutionError, got %v", err)
	}
	assertContains(t, err.Error(), "key attributes")
}

func TestRegister_Relation_PlayerTypeNameResolved(t *testing.T) {
	registerTestTypes(t)
	info, _ := Lookup("test-employment")
	emp, _ := info.Role("employee")
	if emp.PlayerTypeName != "test-person" {
		t.Errorf("expected player type name test-person, got %q", emp.PlayerTypeName)
	}
}

func TestRegisteredTypes_Order(t *testing.T) {
	registerTestTypes(t)
	types := RegisteredTypes()
	if len(types) != 3 {
		t.Fatalf("expected 3 registered types, got %d", len(types))
	}
	got := []string{types[0].TypeName, types[1].TypeName, types[2].TypeName}
	want := []string{"test-person", "test-company", "test-employment"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestSubtypesOf(t *testing.T) {
	ClearRegistry()
	type vehicle struct {
		BaseEntity
		Vin string `typeql:"vin,key"`
	}
	type car struct {
		vehicle
		Doors *int `typeql:"doors"`
	}
	type sportsCar struct {
		car
		TopSpeed *int `typeql:"top-speed"`
	}
	MustRegister[vehicle]()
	MustRegister[car]()
	MustRegister[sportsCar]()

	subs := SubtypesOf("vehicle")
	if len(subs) != 2 {
		t.Fatalf("expected 2 subtypes of vehicle, got %d", len(subs))
	}
	direct := SubtypesOf("car")
	if len(direct) != 1 || direct[0].TypeName != "sports-car" {
		t.Errorf("expected sports-car as subtype of car, got %+v", direct)
	}
}

func TestClearRegistry(t *testing.T) {
	registerTestTypes(t)
	ClearRegistry()
	if len(RegisteredTypes()) != 0 {
		t.Error("expected empty registry after ClearRegistry")
	}
}
