package bridge

import "testing"

func TestParseTag_NameAndKey(t *testing.T) {
	ft, err := ParseTag("email,key")
	if err != nil {
		t.Fatalf("ParseTag failed: %v", err)
	}
	if ft.Name != "email" || !ft.Key {
		t.Errorf("expected name=email key=true, got %+v", ft)
	}
}

func TestParseTag_Unique(t *testing.T) {
	ft, err := ParseTag("handle,unique")
	if err != nil {
		t.Fatalf("ParseTag failed: %v", err)
	}
	if !ft.Unique {
		t.Error("expected unique")
	}
}

func TestParseTag_CardUnbounded(t *testing.T) {
	ft, err := ParseTag("tag,card=0..")
	if err != nil {
		t.Fatalf("ParseTag failed: %v", err)
	}
	if ft.CardMin == nil || *ft.CardMin != 0 {
		t.Errorf("expected min 0, got %v", ft.CardMin)
	}
	if ft.CardMax != nil {
		t.Errorf("expected unbounded max, got %v", *ft.CardMax)
	}
}

func TestParseTag_CardRange(t *testing.T) {
	ft, err := ParseTag("score,card=1..3")
	if err != nil {
		t.Fatalf("ParseTag failed: %v", err)
	}
	if ft.CardMin == nil || *ft.CardMin != 1 || ft.CardMax == nil || *ft.CardMax != 3 {
		t.Errorf("expected 1..3, got %v..%v", ft.CardMin, ft.CardMax)
	}
}

func TestParseTag_CardPlusShorthand(t *testing.T) {
	ft, err := ParseTag("tag,card=2+")
	if err != nil {
		t.Fatalf("ParseTag failed: %v", err)
	}
	if ft.CardMin == nil || *ft.CardMin != 2 || ft.CardMax != nil {
		t.Errorf("expected 2.., got %v..%v", ft.CardMin, ft.CardMax)
	}
}

func TestParseTag_Role(t *testing.T) {
	ft, err := ParseTag("role:employee")
	if err != nil {
		t.Fatalf("ParseTag failed: %v", err)
	}
	if !ft.IsRole() || ft.Role != "employee" {
		t.Errorf("expected role employee, got %+v", ft)
	}
}

func TestParseTag_TypeOverride(t *testing.T) {
	ft, err := ParseTag("type:my-label")
	if err != nil {
		t.Fatalf("ParseTag failed: %v", err)
	}
	if ft.TypeName != "my-label" {
		t.Errorf("expected type override my-label, got %q", ft.TypeName)
	}
}

func TestParseTag_Skip(t *testing.T) {
	ft, err := ParseTag("-")
	if err != nil {
		t.Fatalf("ParseTag failed: %v", err)
	}
	if !ft.Skip {
		t.Error("expected skip")
	}
}

func TestParseTag_UnknownOption(t *testing.T) {
	if _, err := ParseTag("name,sparkly"); err == nil {
		t.Fatal("expected error for unknown tag option")
	}
}

func TestParseTag_InvalidCard(t *testing.T) {
	for _, spec := range []string{"card=x..y", "card=3..1", "card=1"} {
		if _, err := ParseTag("tag," + spec); err == nil {
			t.Errorf("expected error for %q", spec)
		}
	}
}
