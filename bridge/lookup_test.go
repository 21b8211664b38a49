package bridge

import (
	"context"
	"errors"
	"testing"
)

// renderFilterQuery compiles a filter map against testPerson and returns the
// read query text it produces.
func renderFilterQuery(t *testing.T, filters map[string]any) string {
	t.Helper()
	readTx := &mockTx{}
	mgr, _ := newTestManager(t, readTx)
	if _, err := mgr.Get(context.Background(), filters); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(readTx.queries) != 1 {
		t.Fatalf("expected 1 query, got %d", len(readTx.queries))
	}
	return readTx.queries[0]
}

func filterError(t *testing.T, filters map[string]any) error {
	t.Helper()
	mgr, _ := newTestManager(t)
	_, err := mgr.Get(context.Background(), filters)
	if err == nil {
		t.Fatalf("expected error for filters %v", filters)
	}
	return err
}

func TestLookup_Exact(t *testing.T) {
	q := renderFilterQuery(t, map[string]any{"name": "Alice"})
	assertContains(t, q, `$e isa test-person, has name "Alice";`)
}

func TestLookup_ExactMultipleSortedOrder(t *testing.T) {
	q := renderFilterQuery(t, map[string]any{"name": "Alice", "email": "a@example.com"})
	// Filter keys are processed in sorted order so the query is stable.
	assertContains(t, q, `has email "a@example.com", has name "Alice"`)
}

func TestLookup_ExactByGoFieldName(t *testing.T) {
	q := renderFilterQuery(t, map[string]any{"Name": "Alice"})
	assertContains(t, q, `has name "Alice"`)
}

func TestLookup_Gt(t *testing.T) {
	q := renderFilterQuery(t, map[string]any{"age__gt": 30})
	assertContains(t, q, "$e has age $e__age_1;")
	assertContains(t, q, "$e__age_1 > 30;")
}

func TestLookup_Gte(t *testing.T) {
	q := renderFilterQuery(t, map[string]any{"age__gte": 30})
	assertContains(t, q, "$e__age_1 >= 30;")
}

func TestLookup_Lt(t *testing.T) {
	q := renderFilterQuery(t, map[string]any{"age__lt": 65})
	assertContains(t, q, "$e__age_1 < 65;")
}

func TestLookup_Lte(t *testing.T) {
	q := renderFilterQuery(t, map[string]any{"age__lte": 65})
	assertContains(t, q, "$e__age_1 <= 65;")
}

func TestLookup_RangeCombined(t *testing.T) {
	q := renderFilterQuery(t, map[string]any{"age__gte": 18, "age__lt": 65})
	assertContains(t, q, "$e__age_1 >= 18;")
	assertContains(t, q, "$e__age_2 < 65;")
}

func TestLookup_In_Single(t *testing.T) {
	// A one-candidate list collapses to a plain has constraint.
	q := renderFilterQuery(t, map[string]any{"name__in": []string{"Alice"}})
	assertContains(t, q, `$e has name "Alice";`)
	assertNotContains(t, q, " or ")
}

func TestLookup_In_Multiple(t *testing.T) {
	q := renderFilterQuery(t, map[string]any{"name__in": []string{"Alice", "Bob"}})
	assertContains(t, q, `{ $e has name "Alice"; } or { $e has name "Bob"; };`)
}

func TestLookup_In_Dedup(t *testing.T) {
	q := renderFilterQuery(t, map[string]any{"name__in": []string{"Alice", "Alice", "Bob"}})
	assertContains(t, q, `{ $e has name "Alice"; } or { $e has name "Bob"; };`)
}

func TestLookup_In_CartesianProduct(t *testing.T) {
	q := renderFilterQuery(t, map[string]any{
		"name__in":  []string{"Alice", "Bob"},
		"email__in": []string{"a@x.com"},
	})
	// Two in-lists expand into one block per combination.
	assertContains(t, q, `{ $e has email "a@x.com"; $e has name "Alice"; } or { $e has email "a@x.com"; $e has name "Bob"; };`)
}

func TestLookup_In_Empty(t *testing.T) {
	mgr, _ := newTestManager(t)
	results, err := mgr.Get(context.Background(), map[string]any{"name__in": []string{}})
	if err != nil {
		t.Fatalf("empty in-list should short-circuit, got error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestLookup_In_NotASlice(t *testing.T) {
	err := filterError(t, map[string]any{"name__in": "Alice"})
	var il *InvalidLookupError
	if !errors.As(err, &il) {
		t.Fatalf("expected InvalidLookupError, got %v", err)
	}
	assertContains(t, err.Error(), "slice")
}

func TestLookup_In_UncomparableCandidate(t *testing.T) {
	err := filterError(t, map[string]any{"name__in": [][]string{{"Alice"}}})
	var il *InvalidLookupError
	if !errors.As(err, &il) {
		t.Fatalf("expected InvalidLookupError, got %v", err)
	}
	assertContains(t, err.Error(), "not comparable")
}

func TestLookup_IsNull_True(t *testing.T) {
	q := renderFilterQuery(t, map[string]any{"age__isnull": true})
	assertContains(t, q, "not { $e has age $e__age_1; };")
}

func TestLookup_IsNull_False(t *testing.T) {
	q := renderFilterQuery(t, map[string]any{"age__isnull": false})
	assertContains(t, q, "$e has age $e__age_1;")
	assertNotContains(t, q, "not {")
}

func TestLookup_IsNull_NonBool(t *testing.T) {
	err := filterError(t, map[string]any{"age__isnull": "yes"})
	var il *InvalidLookupError
	if !errors.As(err, &il) {
		t.Fatalf("expected InvalidLookupError, got %v", err)
	}
}

func TestLookup_Contains(t *testing.T) {
	q := renderFilterQuery(t, map[string]any{"name__contains": "lic"})
	assertContains(t, q, "$e has name $e__name_1;")
	assertContains(t, q, `$e__name_1 contains "lic";`)
}

func TestLookup_StartsWith(t *testing.T) {
	q := renderFilterQuery(t, map[string]any{"name__startswith": "Al"})
	assertContains(t, q, `$e__name_1 like "^Al.*";`)
}

func TestLookup_StartsWith_EscapesRegexMeta(t *testing.T) {
	q := renderFilterQuery(t, map[string]any{"email__startswith": "a.b"})
	assertContains(t, q, `like "^a\\.b.*";`)
}

func TestLookup_EndsWith(t *testing.T) {
	q := renderFilterQuery(t, map[string]any{"email__endswith": "@example.com"})
	assertContains(t, q, `$e__email_1 like ".*@example\\.com$";`)
}

func TestLookup_Regex(t *testing.T) {
	q := renderFilterQuery(t, map[string]any{"name__regex": "^A.*e$"})
	// Regex patterns pass through unescaped.
	assertContains(t, q, `$e__name_1 like "^A.*e$";`)
}

func TestLookup_StringOpOnNonString(t *testing.T) {
	err := filterError(t, map[string]any{"age__contains": "3"})
	var il *InvalidLookupError
	if !errors.As(err, &il) {
		t.Fatalf("expected InvalidLookupError, got %v", err)
	}
	assertContains(t, err.Error(), "not string")
}

func TestLookup_OrderingOnBool(t *testing.T) {
	ClearRegistry()
	type flagged struct {
		BaseEntity
		Name   string `typeql:"name,key"`
		Active bool   `typeql:"active"`
	}
	MustRegister[flagged]()
	conn := &mockConn{}
	mgr, err := NewManager[flagged](NewDatabase(conn, "test_db"))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	_, err = mgr.Get(context.Background(), map[string]any{"active__gt": false})
	var il *InvalidLookupError
	if !errors.As(err, &il) {
		t.Fatalf("expected InvalidLookupError, got %v", err)
	}
	assertContains(t, err.Error(), "no ordering")
}

func TestLookup_UnknownField(t *testing.T) {
	err := filterError(t, map[string]any{"height__gt": 180})
	var uf *UnknownFilterFieldError
	if !errors.As(err, &uf) {
		t.Fatalf("expected UnknownFilterFieldError, got %v", err)
	}
}

func TestLookup_UnknownLookup(t *testing.T) {
	err := filterError(t, map[string]any{"name__fuzzy": "Alice"})
	var ul *UnknownLookupError
	if !errors.As(err, &ul) {
		t.Fatalf("expected UnknownLookupError, got %v", err)
	}
}

func TestLookup_DoubleSeparator(t *testing.T) {
	err := filterError(t, map[string]any{"name__in__gt": 1})
	var iff *InvalidFilterFieldError
	if !errors.As(err, &iff) {
		t.Fatalf("expected InvalidFilterFieldError, got %v", err)
	}
}

func TestLookup_EmptySegments(t *testing.T) {
	err := filterError(t, map[string]any{"name__": "Alice"})
	var iff *InvalidFilterFieldError
	if !errors.As(err, &iff) {
		t.Fatalf("expected InvalidFilterFieldError, got %v", err)
	}
}

func TestParsedFilters_Pinned(t *testing.T) {
	registerTestTypes(t)
	info, err := Lookup("test-person")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	pf, err := parseFilters(info, map[string]any{"name": "Alice", "age__gt": 30})
	if err != nil {
		t.Fatalf("parseFilters: %v", err)
	}
	if !pf.pinned("name") {
		t.Error("expected name to be pinned by an exact filter")
	}
	if pf.pinned("age") {
		t.Error("lookup filters must not count as pinning")
	}
}
