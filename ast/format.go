package ast

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// FormatValue renders a Go value as a TypeQL literal. Every value that ends
// up in generated query text must pass through here (or FormatTyped), so
// escaping lives in exactly one place.
func FormatValue(value any) string {
	if value == nil {
		return "null"
	}

	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return "null"
		}
		v = v.Elem()
		value = v.Interface()
	}

	switch val := value.(type) {
	case string:
		return `"` + EscapeString(val) + `"`
	case bool:
		if val {
			return "true"
		}
		return "false"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val)
	case float32, float64:
		return fmt.Sprintf("%v", val)
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format("2006-01-02")
		}
		if val.Location() == time.UTC {
			return val.Format("2006-01-02T15:04:05")
		}
		return val.Format(time.RFC3339)
	default:
		return `"` + EscapeString(fmt.Sprintf("%v", val)) + `"`
	}
}

// FormatTyped renders a Go value as a literal of a specific TypeQL value
// type. It differs from FormatValue only where the target type changes the
// textual form, mainly for the temporal types.
func FormatTyped(value any, valueType string) string {
	if value == nil {
		return "null"
	}
	switch valueType {
	case "string":
		return `"` + EscapeString(fmt.Sprintf("%v", value)) + `"`
	case "boolean":
		if b, ok := value.(bool); ok && b {
			return "true"
		}
		return "false"
	case "integer", "long":
		return fmt.Sprintf("%d", value)
	case "double":
		return fmt.Sprintf("%v", value)
	case "date":
		if t, ok := value.(time.Time); ok {
			return t.Format("2006-01-02")
		}
		return fmt.Sprintf("%v", value)
	case "datetime":
		if t, ok := value.(time.Time); ok {
			return t.Format("2006-01-02T15:04:05")
		}
		return fmt.Sprintf("%v", value)
	case "datetime-tz":
		if t, ok := value.(time.Time); ok {
			return t.Format(time.RFC3339)
		}
		return fmt.Sprintf("%v", value)
	default:
		return FormatValue(value)
	}
}

// EscapeString escapes backslashes, double quotes, and control characters
// for inclusion in a TypeQL string literal.
func EscapeString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, "\r", `\r`)
	s = strings.ReplaceAll(s, "\t", `\t`)
	return s
}

// EscapeRegexLiteral escapes regex metacharacters so a user-supplied string
// can be embedded in an anchored pattern as a literal.
func EscapeRegexLiteral(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`\.+*?()|[]{}^$`, r) {
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
