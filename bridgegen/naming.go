package bridgegen

import (
	"strings"

	"github.com/iancoleman/strcase"
)

// acronyms are segments rendered in full caps in generated Go names.
var acronyms = map[string]string{
	"id":   "ID",
	"iid":  "IID",
	"url":  "URL",
	"uuid": "UUID",
	"api":  "API",
	"http": "HTTP",
}

func splitName(name string) []string {
	return strings.FieldsFunc(name, func(r rune) bool {
		return r == '-' || r == '_'
	})
}

// ToPascal converts a kebab-case or snake_case TypeQL name to PascalCase.
func ToPascal(name string) string {
	return strcase.ToCamel(strings.ReplaceAll(name, "-", "_"))
}

// ToPascalAcronyms converts to PascalCase while rendering well-known
// acronym segments in full caps ("user-id" becomes "UserID").
func ToPascalAcronyms(name string) string {
	var b strings.Builder
	for _, part := range splitName(name) {
		if up, ok := acronyms[strings.ToLower(part)]; ok {
			b.WriteString(up)
			continue
		}
		b.WriteString(strcase.ToCamel(part))
	}
	return b.String()
}

// ToSnake converts a kebab-case TypeQL name to snake_case.
func ToSnake(name string) string {
	return strcase.ToSnake(strings.ReplaceAll(name, "-", "_"))
}
