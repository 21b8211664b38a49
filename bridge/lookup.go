package bridge

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// lookupSeparator splits a filter key into field and lookup suffix.
const lookupSeparator = "__"

// exactFilter pins an attribute to one literal value.
type exactFilter struct {
	binding *AttributeBinding
	value   any
}

// inFilter restricts an attribute to a list of candidate values.
type inFilter struct {
	binding *AttributeBinding
	values  []any
}

// parsedFilters is the outcome of translating a flat filter map: exact
// matches, in-lists, and expression predicates, in sorted key order so the
// generated query text is deterministic.
type parsedFilters struct {
	exact []exactFilter
	ins   []inFilter
	exprs []Expression
	// emptyIn is set when an in-lookup received an empty candidate list;
	// the operation short-circuits to zero matches without querying.
	emptyIn bool
}

func (pf *parsedFilters) pinned(attr string) bool {
	for _, f := range pf.exact {
		if f.binding.Name == attr {
			return true
		}
	}
	return false
}

// parseFilters translates a "field[__lookup] -> value" map into exact
// filters plus expressions, validating every field against the model's
// bindings.
func parseFilters(info *ModelInfo, filters map[string]any) (*parsedFilters, error) {
	pf := &parsedFilters{}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := filters[key]

		switch strings.Count(key, lookupSeparator) {
		case 0:
			b, ok := info.Binding(key)
			if !ok {
				return nil, &UnknownFilterFieldError{TypeName: info.TypeName, Field: key}
			}
			pf.exact = append(pf.exact, exactFilter{binding: b, value: value})

		case 1:
			field, lookup, _ := strings.Cut(key, lookupSeparator)
			if field == "" || lookup == "" {
				return nil, &InvalidFilterFieldError{Field: key, Reason: "empty field or lookup segment"}
			}
			b, ok := info.Binding(field)
			if !ok {
				return nil, &UnknownFilterFieldError{TypeName: info.TypeName, Field: field}
			}
			if err := parseLookup(pf, b, field, lookup, value); err != nil {
				return nil, err
			}

		default:
			return nil, &InvalidFilterFieldError{Field: key, Reason: "lookup separator appears more than once"}
		}
	}
	return pf, nil
}

func parseLookup(pf *parsedFilters, b *AttributeBinding, field, lookup string, value any) error {
	switch lookup {
	case "gt", "gte", "lt", "lte":
		if !isOrderable(b.ValueType) {
			return &InvalidLookupError{Field: field, Lookup: lookup, Reason: fmt.Sprintf("value type %q has no ordering", b.ValueType)}
		}
		ops := map[string]string{"gt": ">", "gte": ">=", "lt": "<", "lte": "<="}
		pf.exprs = append(pf.exprs, Comparison{Field: field, Op: ops[lookup], Value: value})

	case "in":
		v := reflect.ValueOf(value)
		if value == nil || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
			return &InvalidLookupError{Field: field, Lookup: lookup, Reason: "value must be a slice of candidates"}
		}
		if v.Len() == 0 {
			pf.emptyIn = true
			return nil
		}
		values := make([]any, 0, v.Len())
		seen := make(map[any]bool, v.Len())
		for i := 0; i < v.Len(); i++ {
			el := v.Index(i).Interface()
			if el != nil && !reflect.TypeOf(el).Comparable() {
				return &InvalidLookupError{Field: field, Lookup: lookup, Reason: fmt.Sprintf("candidate of type %T is not comparable", el)}
			}
			if seen[el] {
				continue
			}
			seen[el] = true
			values = append(values, el)
		}
		pf.ins = append(pf.ins, inFilter{binding: b, values: values})

	case "isnull":
		isNull, ok := value.(bool)
		if !ok {
			return &InvalidLookupError{Field: field, Lookup: lookup, Reason: "value must be a bool"}
		}
		pf.exprs = append(pf.exprs, Exists{Field: field, Present: !isNull})

	case "contains", "startswith", "endswith", "regex":
		if b.ValueType != "string" {
			return &InvalidLookupError{Field: field, Lookup: lookup, Reason: fmt.Sprintf("attribute is %s, not string", b.ValueType)}
		}
		s, ok := value.(string)
		if !ok {
			return &InvalidLookupError{Field: field, Lookup: lookup, Reason: "value must be a string"}
		}
		switch lookup {
		case "contains":
			pf.exprs = append(pf.exprs, Contains(field, s))
		case "startswith":
			pf.exprs = append(pf.exprs, StartsWith(field, s))
		case "endswith":
			pf.exprs = append(pf.exprs, EndsWith(field, s))
		case "regex":
			pf.exprs = append(pf.exprs, Regex(field, s))
		}

	default:
		return &UnknownLookupError{Field: field, Lookup: lookup}
	}
	return nil
}
