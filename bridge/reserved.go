package bridge

import (
	"fmt"
	"strings"
	"unicode"
)

// reservedWords is the set of TypeQL keywords that cannot be used as type,
// attribute, or role names.
var reservedWords = map[string]bool{
	"define": true, "undefine": true, "redefine": true,
	"match": true, "fetch": true, "insert": true, "delete": true, "update": true, "put": true,
	"select": true, "require": true, "sort": true, "limit": true, "offset": true, "reduce": true,
	"with": true,
	"or": true, "not": true, "try": true,
	"entity": true, "relation": true, "attribute": true, "struct": true, "fun": true,
	"sub": true, "relates": true, "plays": true, "value": true, "owns": true, "alias": true,
	"isa": true, "links": true, "has": true, "is": true, "let": true, "contains": true, "like": true,
	"label": true, "iid": true,
	"card": true, "cascade": true, "independent": true, "abstract": true,
	"key": true, "subkey": true, "unique": true, "values": true,
	"range": true, "regex": true, "distinct": true,
	"check": true, "first": true, "count": true, "max": true, "min": true,
	"mean": true, "median": true, "std": true, "sum": true, "list": true,
	"boolean": true, "integer": true, "double": true, "decimal": true,
	"datetime-tz": true, "datetime_tz": true, "datetime": true,
	"date": true, "duration": true, "string": true,
	"round": true, "ceil": true, "floor": true, "abs": true, "length": true,
	"true": true, "false": true,
	"asc": true, "desc": true, "return": true, "of": true,
	"from": true, "in": true, "as": true,
}

// IsReservedWord reports whether name is a TypeQL keyword. Case-insensitive.
func IsReservedWord(name string) bool {
	return reservedWords[strings.ToLower(name)]
}

// ValidateIdentifier checks that name is a legal TypeQL identifier for the
// given kind of name ("type", "attribute", "role").
func ValidateIdentifier(name, kind string) error {
	if name == "" {
		return fmt.Errorf("empty %s name", kind)
	}
	if IsReservedWord(name) {
		return fmt.Errorf("%s name %q is a TypeQL reserved word", kind, name)
	}
	for i, r := range name {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return fmt.Errorf("%s name %q must start with a letter or underscore", kind, name)
			}
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return fmt.Errorf("%s name %q contains invalid character %q", kind, name, r)
		}
	}
	return nil
}
