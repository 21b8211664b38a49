package bridge

import (
	"context"
	"fmt"
	"reflect"

	"github.com/typebridge/typebridge/ast"
)

func checkCtx(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// openWrite returns the transaction to use for a write: the caller's when
// one was supplied, otherwise a fresh one the caller of openWrite must
// commit and close (autoCommit true).
func openWrite(db *Database, tx Tx) (Tx, bool, error) {
	if tx != nil {
		return tx, false, nil
	}
	fresh, err := db.Transaction(WriteTransaction)
	if err != nil {
		return nil, false, err
	}
	return fresh, true, nil
}

// readRows runs a read query on the supplied transaction when present,
// otherwise in a short-lived read transaction.
func readRows(ctx context.Context, db *Database, tx Tx, query string) ([]map[string]any, error) {
	if tx != nil {
		return tx.QueryWithContext(ctx, query)
	}
	return db.ExecuteRead(ctx, query)
}

// singleValue extracts a single-card binding's value from an instance.
// The second result reports presence (a nil pointer is absent).
func singleValue(b *AttributeBinding, v reflect.Value) (any, bool) {
	field := v.Field(b.FieldIndex)
	if b.IsPointer {
		if field.IsNil() {
			return nil, false
		}
		return field.Elem().Interface(), true
	}
	return field.Interface(), true
}

// multiValues extracts a multi-card binding's values from an instance.
func multiValues(b *AttributeBinding, v reflect.Value) []any {
	field := v.Field(b.FieldIndex)
	if field.IsNil() {
		return nil
	}
	out := make([]any, 0, field.Len())
	for i := 0; i < field.Len(); i++ {
		out = append(out, field.Index(i).Interface())
	}
	return out
}

// hasAttrsOf renders every present attribute value of an instance as
// inline has fragments, multi-card bindings one fragment per element.
func hasAttrsOf(info *ModelInfo, v reflect.Value) []ast.HasAttr {
	var out []ast.HasAttr
	for _, b := range info.Bindings {
		if b.MultiValued() {
			for _, el := range multiValues(b, v) {
				out = append(out, ast.HasAttr{Attr: b.Name, Value: ast.LT(el, b.ValueType)})
			}
			continue
		}
		if val, ok := singleValue(b, v); ok {
			out = append(out, ast.HasAttr{Attr: b.Name, Value: ast.LT(val, b.ValueType)})
		}
	}
	return out
}

// structValue dereferences an instance pointer to its struct value.
func structValue(inst any) reflect.Value {
	v := reflect.ValueOf(inst)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	return v
}

// keyValueOf resolves the instance's single key binding and its non-nil
// value, as required by identity-based operations.
func keyValueOf(info *ModelInfo, v reflect.Value) (*AttributeBinding, any, error) {
	key, err := info.KeyBinding()
	if err != nil {
		return nil, nil, err
	}
	val, ok := singleValue(key, v)
	if !ok || val == nil {
		return nil, nil, &MissingKeyError{TypeName: info.TypeName, Reason: fmt.Sprintf("key attribute %q has no value", key.Name)}
	}
	return key, val, nil
}

// extractIID digs the engine-assigned identity of a named insert variable
// out of a result row. Transports answer either {"e": {"iid": "0x.."}}
// or a flat {"e": "0x.."} shape.
func extractIID(row map[string]any, varName string) string {
	raw, ok := row[varName]
	if !ok {
		return ""
	}
	switch t := raw.(type) {
	case string:
		return t
	case map[string]any:
		if iid, ok := t["iid"].(string); ok {
			return iid
		}
		if iid, ok := t[iidFetchKey].(string); ok {
			return iid
		}
	}
	return ""
}

func setIIDOf(inst any, iid string) {
	if iid == "" {
		return
	}
	if setter, ok := inst.(interface{ SetIID(string) }); ok {
		setter.SetIID(iid)
	}
}

func iidOf(inst any) string {
	if getter, ok := inst.(interface{ GetIID() string }); ok {
		return getter.GetIID()
	}
	return ""
}
