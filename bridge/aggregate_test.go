package bridge

import (
	"context"
	"testing"
)

func TestAggregate_Count(t *testing.T) {
	readTx := &mockTx{
		responses: [][]map[string]any{
			{{"count": float64(5)}},
		},
	}
	mgr, _ := newTestManager(t, readTx)

	out, err := mgr.Filter(nil).Aggregate(context.Background(), Count())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if out["count"] != float64(5) {
		t.Errorf("expected 5, got %v (%T)", out["count"], out["count"])
	}
	q := readTx.queries[0]
	assertContains(t, q, "match\n$e isa test-person;")
	assertContains(t, q, "reduce $count = count($e);")
}

func TestAggregate_SumOverAttribute(t *testing.T) {
	readTx := &mockTx{
		responses: [][]map[string]any{
			{{"sum_age": float64(120)}},
		},
	}
	mgr, _ := newTestManager(t, readTx)

	out, err := mgr.Filter(nil).Aggregate(context.Background(), Sum("age"))
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if out["sum_age"] != float64(120) {
		t.Errorf("expected 120, got %v", out["sum_age"])
	}
	q := readTx.queries[0]
	assertContains(t, q, "$e has age $e__agg_age_1;")
	assertContains(t, q, "reduce $sum_age = sum($e__agg_age_1);")
}

func TestAggregate_Multiple(t *testing.T) {
	readTx := &mockTx{
		responses: [][]map[string]any{
			{{"count": int64(3), "mean_age": 41.5, "max_age": int64(60)}},
		},
	}
	mgr, _ := newTestManager(t, readTx)

	out, err := mgr.Filter(nil).Aggregate(context.Background(), Count(), Mean("age"), Max("age"))
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if out["count"] != int64(3) || out["mean_age"] != 41.5 || out["max_age"] != int64(60) {
		t.Errorf("unexpected values: %v", out)
	}
	assertContains(t, readTx.queries[0], "reduce $count = count($e), $mean_age = mean($e__agg_age_1), $max_age = max($e__agg_age_2);")
}

func TestAggregate_WithFilters(t *testing.T) {
	readTx := &mockTx{
		responses: [][]map[string]any{
			{{"count": int64(1)}},
		},
	}
	mgr, _ := newTestManager(t, readTx)

	_, err := mgr.Filter(map[string]any{"email": "a@example.com"}).Aggregate(context.Background(), Count())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	assertContains(t, readTx.queries[0], `has email "a@example.com"`)
}

func TestAggregate_NoRows(t *testing.T) {
	readTx := &mockTx{responses: [][]map[string]any{nil}}
	mgr, _ := newTestManager(t, readTx)

	out, err := mgr.Filter(map[string]any{"name": "Ghost"}).Aggregate(context.Background(), Count(), Sum("age"))
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if out["count"] != int64(0) {
		t.Errorf("expected zero count, got %v", out["count"])
	}
	if out["sum_age"] != nil {
		t.Errorf("expected nil sum over no rows, got %v", out["sum_age"])
	}
}

func TestAggregate_EmptyIn(t *testing.T) {
	mgr, conn := newTestManager(t)

	out, err := mgr.Filter(map[string]any{"name__in": []string{}}).Aggregate(context.Background(), Count(), Sum("age"))
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if out["count"] != int64(0) {
		t.Errorf("expected zero count, got %v", out["count"])
	}
	val, ok := out["sum_age"]
	if !ok {
		t.Fatal("sum_age key missing from result")
	}
	if val != nil {
		t.Errorf("expected nil sum, got %v", val)
	}
	if conn.idx != 0 {
		t.Errorf("expected no query for an empty candidate list, %d transactions used", conn.idx)
	}
}

func TestAggregate_EmptyIn_UnknownField(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.Filter(map[string]any{"name__in": []string{}}).Aggregate(context.Background(), Sum("height"))
	if err == nil {
		t.Fatal("expected error for unknown aggregation field")
	}
}

func TestGroupBy_EmptyIn(t *testing.T) {
	mgr, conn := newTestManager(t)

	results, err := mgr.Filter(map[string]any{"name__in": []string{}}).GroupBy("email").Aggregate(context.Background(), Count())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no groups, got %v", results)
	}
	if conn.idx != 0 {
		t.Errorf("expected no query for an empty candidate list, %d transactions used", conn.idx)
	}
}

func TestAggregate_NoAggregations(t *testing.T) {
	mgr, _ := newTestManager(t)
	if _, err := mgr.Filter(nil).Aggregate(context.Background()); err == nil {
		t.Fatal("expected error for empty aggregation list")
	}
}

func TestAggregate_UnknownField(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.Filter(nil).Aggregate(context.Background(), Sum("height"))
	if err == nil {
		t.Fatal("expected error for unknown aggregation field")
	}
}

func TestAggregation_Key(t *testing.T) {
	if got := Count().Key(); got != "count" {
		t.Errorf("expected count, got %q", got)
	}
	if got := Sum("age").Key(); got != "sum_age" {
		t.Errorf("expected sum_age, got %q", got)
	}
	if got := Std("start-date").Key(); got != "std_start_date" {
		t.Errorf("expected std_start_date, got %q", got)
	}
}

func TestGroupBy(t *testing.T) {
	readTx := &mockTx{
		responses: [][]map[string]any{
			{
				{"grp_email": "a@example.com", "count": int64(2), "mean_age": 35.0},
				{"grp_email": "b@example.com", "count": int64(1), "mean_age": 50.0},
			},
		},
	}
	mgr, _ := newTestManager(t, readTx)

	groups, err := mgr.Filter(nil).GroupBy("email").Aggregate(context.Background(), Count(), Mean("age"))
	if err != nil {
		t.Fatalf("grouped Aggregate failed: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].Groups["email"] != "a@example.com" {
		t.Errorf("unexpected group key: %v", groups[0].Groups)
	}
	if groups[0].Values["count"] != int64(2) || groups[0].Values["mean_age"] != 35.0 {
		t.Errorf("unexpected group values: %v", groups[0].Values)
	}

	q := readTx.queries[0]
	assertContains(t, q, "$e has email $grp_email;")
	assertContains(t, q, "groupby $grp_email;")
}

func TestGroupBy_DollarPrefixedKeys(t *testing.T) {
	// Some transports echo the reduce variable names with their sigil.
	readTx := &mockTx{
		responses: [][]map[string]any{
			{{"$grp_email": "a@example.com", "$count": int64(2)}},
		},
	}
	mgr, _ := newTestManager(t, readTx)

	groups, err := mgr.Filter(nil).GroupBy("email").Aggregate(context.Background(), Count())
	if err != nil {
		t.Fatalf("grouped Aggregate failed: %v", err)
	}
	if groups[0].Groups["email"] != "a@example.com" || groups[0].Values["count"] != int64(2) {
		t.Errorf("unexpected group: %+v", groups[0])
	}
}

func TestGroupBy_NoRows(t *testing.T) {
	readTx := &mockTx{responses: [][]map[string]any{nil}}
	mgr, _ := newTestManager(t, readTx)

	groups, err := mgr.Filter(nil).GroupBy("email").Aggregate(context.Background(), Count())
	if err != nil {
		t.Fatalf("grouped Aggregate failed: %v", err)
	}
	if len(groups) != 0 {
		t.Errorf("expected no groups, got %d", len(groups))
	}
}

func TestReducedValue(t *testing.T) {
	tests := []struct {
		name     string
		row      map[string]any
		key      string
		expected any
	}{
		{"native int", map[string]any{"count": 5}, "count", int64(5)},
		{"native float", map[string]any{"mean_age": 41.5}, "mean_age", 41.5},
		{"float32", map[string]any{"mean_age": float32(2.5)}, "mean_age", float64(2.5)},
		{"wrapped value", map[string]any{"count": map[string]any{"value": float64(7)}}, "count", float64(7)},
		{"sigil key", map[string]any{"$count": int64(3)}, "count", int64(3)},
		{"value string integer", map[string]any{"count": "Value(integer: 42)"}, "count", int64(42)},
		{"value string double", map[string]any{"mean_age": "Value(double: 3.5)"}, "mean_age", 3.5},
		{"bare integer string", map[string]any{"count": "17"}, "count", int64(17)},
		{"bare float string", map[string]any{"mean_age": "17.25"}, "mean_age", 17.25},
		{"scientific string", map[string]any{"mean_age": "1e3"}, "mean_age", float64(1000)},
		{"missing key", map[string]any{"other": 1}, "count", nil},
		{"nil value", map[string]any{"count": nil}, "count", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reducedValue(tt.row, tt.key)
			if err != nil {
				t.Fatalf("reducedValue failed: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %v (%T), got %v (%T)", tt.expected, tt.expected, got, got)
			}
		})
	}
}

func TestParseValueString_Malformed(t *testing.T) {
	if _, err := parseValueString("Value(integer: not-a-number)"); err == nil {
		t.Fatal("expected error for malformed integer literal")
	}
}

func TestParseValueString_Passthrough(t *testing.T) {
	got, err := parseValueString("hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello" {
		t.Errorf("expected passthrough string, got %v", got)
	}
}
