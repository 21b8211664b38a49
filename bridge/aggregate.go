package bridge

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/typebridge/typebridge/ast"
)

// Aggregation names one reduce function over one attribute. Build values
// with Count, Sum, Min, Max, Mean, Median and Std; the result key is the
// function name joined to the field with an underscore ("sum_salary"),
// or just "count".
type Aggregation struct {
	fn    string
	field string
}

func Count() Aggregation             { return Aggregation{fn: "count"} }
func Sum(field string) Aggregation   { return Aggregation{fn: "sum", field: field} }
func Min(field string) Aggregation   { return Aggregation{fn: "min", field: field} }
func Max(field string) Aggregation   { return Aggregation{fn: "max", field: field} }
func Mean(field string) Aggregation  { return Aggregation{fn: "mean", field: field} }
func Median(field string) Aggregation { return Aggregation{fn: "median", field: field} }
func Std(field string) Aggregation   { return Aggregation{fn: "std", field: field} }

// Key returns the name the aggregation's value appears under in results.
func (a Aggregation) Key() string {
	if a.field == "" {
		return a.fn
	}
	return a.fn + "_" + sanitizeVar(a.field)
}

// GroupResult is one group's row from a grouped aggregation: the grouping
// attribute values plus the reduced values keyed by Aggregation.Key.
type GroupResult struct {
	Groups map[string]any
	Values map[string]any
}

// Aggregate runs the given reductions over every matching instance and
// returns the values keyed by Aggregation.Key. No matches yield a zero
// count and nil for the other reductions.
func (q *Query[T]) Aggregate(ctx context.Context, aggs ...Aggregation) (map[string]any, error) {
	rows, keys, _, err := q.runReduce(ctx, nil, aggs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(aggs))
	for i, agg := range aggs {
		key := keys[i]
		if len(rows) == 0 {
			if agg.fn == "count" {
				out[key] = int64(0)
			} else {
				out[key] = nil
			}
			continue
		}
		val, err := reducedValue(rows[0], key)
		if err != nil {
			return nil, err
		}
		out[key] = val
	}
	return out, nil
}

// GroupBy returns a grouped view of the query keyed by the given
// attribute fields.
func (q *Query[T]) GroupBy(fields ...string) *GroupedQuery[T] {
	return &GroupedQuery[T]{q: q, fields: fields}
}

// GroupedQuery runs aggregations per distinct combination of its grouping
// attributes.
type GroupedQuery[T any] struct {
	q      *Query[T]
	fields []string
}

// Aggregate returns one GroupResult per distinct group, each carrying the
// group's attribute values and its reduced values.
func (g *GroupedQuery[T]) Aggregate(ctx context.Context, aggs ...Aggregation) ([]GroupResult, error) {
	rows, keys, groupKeys, err := g.q.runReduce(ctx, g.fields, aggs)
	if err != nil {
		return nil, err
	}
	out := make([]GroupResult, 0, len(rows))
	for _, row := range rows {
		res := GroupResult{Groups: make(map[string]any, len(g.fields)), Values: make(map[string]any, len(aggs))}
		for i, field := range g.fields {
			val, err := reducedValue(row, groupKeys[i])
			if err != nil {
				return nil, err
			}
			res.Groups[field] = val
		}
		for i := range aggs {
			val, err := reducedValue(row, keys[i])
			if err != nil {
				return nil, err
			}
			res.Values[keys[i]] = val
		}
		out = append(out, res)
	}
	return out, nil
}

// runReduce builds and executes the reduce query, returning the raw rows
// plus the result keys for the aggregations and the grouping fields.
func (q *Query[T]) runReduce(ctx context.Context, groupFields []string, aggs []Aggregation) ([]map[string]any, []string, []string, error) {
	info := q.ops.modelInfo()
	if err := checkCtx(ctx, "aggregate "+info.TypeName); err != nil {
		return nil, nil, nil, err
	}
	if len(aggs) == 0 {
		return nil, nil, nil, fmt.Errorf("aggregate %s: no aggregations given", info.TypeName)
	}
	pf, rf, err := q.parse()
	if err != nil {
		return nil, nil, nil, err
	}
	if pf.emptyIn {
		// No candidates can match; skip the query but keep the real
		// result keys so callers still get their zero count.
		keys := make([]string, len(aggs))
		for i, agg := range aggs {
			if agg.field != "" {
				if _, ok := info.Binding(agg.field); !ok {
					return nil, nil, nil, &UnknownFilterFieldError{TypeName: info.TypeName, Field: agg.field}
				}
			}
			keys[i] = agg.Key()
		}
		groupKeys := make([]string, len(groupFields))
		for i, field := range groupFields {
			b, ok := info.Binding(field)
			if !ok {
				return nil, nil, nil, &UnknownFilterFieldError{TypeName: info.TypeName, Field: field}
			}
			groupKeys[i] = "grp_" + sanitizeVar(b.Name)
		}
		return nil, keys, groupKeys, nil
	}

	g := &varGen{}
	patterns, owner, err := q.ops.aggregateMatch(pf, rf, g)
	if err != nil {
		return nil, nil, nil, err
	}

	keys := make([]string, len(aggs))
	assigns := make([]ast.ReduceAssign, 0, len(aggs))
	for i, agg := range aggs {
		keys[i] = agg.Key()
		arg := owner
		if agg.field != "" {
			b, ok := info.Binding(agg.field)
			if !ok {
				return nil, nil, nil, &UnknownFilterFieldError{TypeName: info.TypeName, Field: agg.field}
			}
			arg = g.fresh(owner, "agg_"+b.Name)
			patterns = append(patterns, ast.AttrVarPattern{Owner: owner, Attr: b.Name, AttrVar: arg})
		}
		assigns = append(assigns, ast.ReduceAssign{Variable: "$" + keys[i], Func: agg.fn, Arg: arg})
	}

	groupKeys := make([]string, len(groupFields))
	groupVars := make([]string, 0, len(groupFields))
	for i, field := range groupFields {
		b, ok := info.Binding(field)
		if !ok {
			return nil, nil, nil, &UnknownFilterFieldError{TypeName: info.TypeName, Field: field}
		}
		groupKeys[i] = "grp_" + sanitizeVar(b.Name)
		gv := "$" + groupKeys[i]
		groupVars = append(groupVars, gv)
		patterns = append(patterns, ast.AttrVarPattern{Owner: owner, Attr: b.Name, AttrVar: gv})
	}

	query := ast.RenderQuery(
		ast.Match{Patterns: patterns},
		ast.Reduce{Assignments: assigns, GroupBy: groupVars},
	)
	rows, err := readRows(ctx, q.ops.database(), q.ops.queryTx(), query)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("aggregate %s: %w", info.TypeName, err)
	}
	return rows, keys, groupKeys, nil
}

var reduceValuePattern = regexp.MustCompile(`Value\(\s*(\w+)\s*:\s*([^)]*)\)`)

// reducedValue extracts one reduce result from a row, accepting native
// numbers, wrapped value objects, and the textual "Value(type: literal)"
// rendering some transports return. Bare numeric strings decode as
// integers when they carry no decimal point, floats otherwise.
func reducedValue(row map[string]any, key string) (any, error) {
	raw, ok := row[key]
	if !ok {
		raw, ok = row["$"+key]
	}
	if !ok || raw == nil {
		return nil, nil
	}
	raw = unwrapValue(raw)

	switch v := raw.(type) {
	case string:
		return parseValueString(v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return toInt64(v)
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return raw, nil
	}
}

func parseValueString(s string) (any, error) {
	s = strings.TrimSpace(s)
	if m := reduceValuePattern.FindStringSubmatch(s); m != nil {
		typ, lit := m[1], strings.TrimSpace(m[2])
		switch typ {
		case "integer", "long":
			n, err := strconv.ParseInt(lit, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse reduce value %q: %w", s, err)
			}
			return n, nil
		case "double", "float":
			f, err := strconv.ParseFloat(lit, 64)
			if err != nil {
				return nil, fmt.Errorf("parse reduce value %q: %w", s, err)
			}
			return f, nil
		default:
			return strings.Trim(lit, `"`), nil
		}
	}
	if !strings.ContainsAny(s, ".eE") {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	return s, nil
}
