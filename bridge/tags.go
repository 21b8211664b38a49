package bridge

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldTag is the parsed form of a `typeql` struct tag.
type FieldTag struct {
	// Name is the TypeQL attribute name.
	Name string
	// Key marks the attribute as the identity key (@key).
	Key bool
	// Unique marks the attribute value as unique (@unique).
	Unique bool
	// CardMin and CardMax are the declared cardinality bounds. A nil
	// CardMax means unbounded. Both nil means no explicit cardinality.
	CardMin *int
	CardMax *int
	// Role names the role for relation player fields.
	Role string
	// Abstract marks the model type as abstract.
	Abstract bool
	// TypeName overrides the model's TypeQL type name.
	TypeName string
	// Skip excludes the field from mapping.
	Skip bool
}

// IsRole reports whether the tag marks the field as a relation role player.
func (ft FieldTag) IsRole() bool { return ft.Role != "" }

// ParseTag parses a `typeql` struct tag. Supported options:
//
//	typeql:"email,key"
//	typeql:"tags,card=0.."
//	typeql:"salary,unique,card=1..1"
//	typeql:"employee,role:employee"
//	typeql:"-"
func ParseTag(tag string) (FieldTag, error) {
	if tag == "" || tag == "-" {
		return FieldTag{Skip: tag == "-"}, nil
	}

	ft := FieldTag{}
	for i, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		switch {
		case part == "key":
			ft.Key = true
		case part == "unique":
			ft.Unique = true
		case part == "abstract":
			ft.Abstract = true
		case part == "-":
			ft.Skip = true
		case strings.HasPrefix(part, "role:"):
			ft.Role = strings.TrimPrefix(part, "role:")
		case strings.HasPrefix(part, "type:"):
			ft.TypeName = strings.TrimPrefix(part, "type:")
		case strings.HasPrefix(part, "card="):
			spec := strings.TrimPrefix(part, "card=")
			lo, hi, err := parseCardinality(spec)
			if err != nil {
				return FieldTag{}, fmt.Errorf("invalid cardinality %q: %w", spec, err)
			}
			ft.CardMin, ft.CardMax = lo, hi
		default:
			if i != 0 {
				return FieldTag{}, fmt.Errorf("unknown tag option: %q", part)
			}
			ft.Name = part
		}
	}
	return ft, nil
}

// parseCardinality parses "M..N", "M.." (unbounded), and the "M+" shorthand.
func parseCardinality(s string) (lo *int, hi *int, err error) {
	if strings.HasSuffix(s, "+") {
		v, err := strconv.Atoi(strings.TrimSuffix(s, "+"))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid min bound: %w", err)
		}
		return &v, nil, nil
	}

	parts := strings.Split(s, "..")
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("expected M..N or M.., got %q", s)
	}
	minV, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, nil, fmt.Errorf("invalid min bound: %w", err)
	}
	if parts[1] == "" {
		return &minV, nil, nil
	}
	maxV, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, nil, fmt.Errorf("invalid max bound: %w", err)
	}
	if maxV < minV {
		return nil, nil, fmt.Errorf("max bound %d below min bound %d", maxV, minV)
	}
	return &minV, &maxV, nil
}
