package bridge

import (
	"fmt"
	"reflect"
	"time"
)

// unwrapValue strips the {"value": X} wrappers some transports put around
// scalar answers.
func unwrapValue(v any) any {
	if m, ok := v.(map[string]any); ok {
		if inner, ok := m["value"]; ok && len(m) == 1 {
			return unwrapValue(inner)
		}
	}
	return v
}

// unwrapRow applies unwrapValue to every entry of a result row.
func unwrapRow(row map[string]any) map[string]any {
	flat := make(map[string]any, len(row))
	for k, v := range row {
		flat[k] = unwrapValue(v)
	}
	return flat
}

// decodeInto fills a model instance from one flattened result row. Absent
// multi-card attributes decode to an empty slice; absent single optional
// attributes decode to nil; the IID is taken from the row's identity
// projection.
func decodeInto(info *ModelInfo, row map[string]any, instPtr reflect.Value) error {
	v := instPtr.Elem()

	if iid, ok := row[iidFetchKey].(string); ok && iid != "" {
		if setter, ok := instPtr.Interface().(interface{ SetIID(string) }); ok {
			setter.SetIID(iid)
		}
	}

	for _, b := range info.Bindings {
		field := v.FieldByName(b.FieldName)
		if !field.IsValid() || !field.CanSet() {
			return &HydrationError{TypeName: info.TypeName, Field: b.FieldName, Err: fmt.Errorf("field not settable")}
		}

		raw, present := row[b.Name]
		if b.MultiValued() {
			if err := setSliceField(b, field, raw, present); err != nil {
				return &HydrationError{TypeName: info.TypeName, Field: b.FieldName, Err: err}
			}
			continue
		}

		if !present || raw == nil {
			if b.IsPointer {
				field.Set(reflect.Zero(b.FieldType))
			}
			continue
		}
		cv, err := coerceValue(b.ValueType, unwrapValue(raw), b.ElemType)
		if err != nil {
			return &HydrationError{TypeName: info.TypeName, Field: b.FieldName, Err: err}
		}
		if b.IsPointer {
			p := reflect.New(b.ElemType)
			p.Elem().Set(cv)
			field.Set(p)
		} else {
			field.Set(cv)
		}
	}
	return nil
}

func setSliceField(b *AttributeBinding, field reflect.Value, raw any, present bool) error {
	out := reflect.MakeSlice(b.FieldType, 0, 0)
	if present && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			// A single scalar where a list was expected still decodes as
			// a one-element set.
			list = []any{raw}
		}
		for _, el := range list {
			cv, err := coerceValue(b.ValueType, unwrapValue(el), b.ElemType)
			if err != nil {
				return err
			}
			out = reflect.Append(out, cv)
		}
	}
	field.Set(out)
	return nil
}

// coerceValue converts a decoded wire value to the target Go scalar type.
func coerceValue(valueType string, raw any, target reflect.Type) (reflect.Value, error) {
	switch valueType {
	case "string":
		s, ok := raw.(string)
		if !ok {
			return reflect.Value{}, fmt.Errorf("expected string, got %T", raw)
		}
		return reflect.ValueOf(s).Convert(target), nil

	case "integer":
		n, err := toInt64(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(n).Convert(target), nil

	case "double":
		f, err := toFloat64(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(f).Convert(target), nil

	case "boolean":
		bv, ok := raw.(bool)
		if !ok {
			return reflect.Value{}, fmt.Errorf("expected bool, got %T", raw)
		}
		return reflect.ValueOf(bv).Convert(target), nil

	case "datetime", "datetime-tz", "date":
		t, err := toTime(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(t), nil

	default:
		return reflect.Value{}, fmt.Errorf("unsupported value type %q", valueType)
	}
}

func toInt64(raw any) (int64, error) {
	switch n := raw.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", raw)
	}
}

func toFloat64(raw any) (float64, error) {
	switch n := raw.(type) {
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected double, got %T", raw)
	}
}

var timeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func toTime(raw any) (time.Time, error) {
	switch t := raw.(type) {
	case time.Time:
		return t, nil
	case string:
		for _, layout := range timeFormats {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable timestamp %q", t)
	default:
		return time.Time{}, fmt.Errorf("expected timestamp, got %T", raw)
	}
}
