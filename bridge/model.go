package bridge

import (
	"fmt"
	"reflect"
	"time"

	"github.com/iancoleman/strcase"
)

// ModelKind distinguishes entity models from relation models.
type ModelKind int

const (
	// EntityModel maps to a TypeDB entity type.
	EntityModel ModelKind = iota
	// RelationModel maps to a TypeDB relation type.
	RelationModel
)

// AttributeBinding describes one owned attribute of a model: its TypeQL
// name and value type, its key/unique flags and cardinality, and where the
// value lives in the Go struct. Bindings are built once at registration and
// never re-derived per call.
type AttributeBinding struct {
	// Name is the TypeQL attribute name.
	Name string
	// ValueType is the TypeQL value type (string, integer, double,
	// boolean, datetime, date).
	ValueType string
	// Key marks the binding as the identity key of its owner.
	Key bool
	// Unique marks the value as unique across instances.
	Unique bool
	// CardMin and CardMax are the cardinality bounds; nil CardMax means
	// unbounded.
	CardMin int
	CardMax *int
	// ExplicitCard records whether a cardinality was declared (or implied
	// by a slice field) rather than defaulted.
	ExplicitCard bool

	// FieldName and FieldIndex locate the value in the Go struct.
	FieldName  string
	FieldIndex int
	// FieldType is the declared Go field type. IsPointer and IsSlice
	// describe its shape; ElemType is the scalar element type.
	FieldType reflect.Type
	IsPointer bool
	IsSlice   bool
	ElemType  reflect.Type
}

// MultiValued reports whether the binding holds a set of values rather than
// a single one: an explicit cardinality was declared and it is not 1..1 or
// 0..1.
func (b *AttributeBinding) MultiValued() bool {
	if !b.ExplicitCard {
		return false
	}
	return b.CardMin > 1 || b.CardMax == nil || *b.CardMax != 1
}

// Optional reports whether the binding may be absent on an instance.
func (b *AttributeBinding) Optional() bool { return b.CardMin == 0 }

// ModelInfo is the static descriptor of one registered model type.
type ModelInfo struct {
	// GoType is the model struct type (not the pointer).
	GoType reflect.Type
	// Kind tells entity from relation.
	Kind ModelKind
	// TypeName is the TypeQL type name.
	TypeName string
	// Abstract marks the type as non-instantiable.
	Abstract bool
	// Supertype is the TypeQL name of the embedded parent model, if any.
	Supertype string
	// Bindings are the owned attributes in declaration order, including
	// those inherited from the supertype.
	Bindings []*AttributeBinding
	// Roles are the relation's role bindings, nil for entities.
	Roles []*RoleBinding

	byAttr  map[string]*AttributeBinding
	byField map[string]*AttributeBinding
}

// Binding resolves a TypeQL attribute name or Go field name to its binding.
func (mi *ModelInfo) Binding(name string) (*AttributeBinding, bool) {
	if b, ok := mi.byAttr[name]; ok {
		return b, true
	}
	b, ok := mi.byField[name]
	return b, ok
}

// Role resolves a role label or its Go field name to the role binding.
func (mi *ModelInfo) Role(name string) (*RoleBinding, bool) {
	for _, r := range mi.Roles {
		if r.Role == name || r.FieldName == name {
			return r, true
		}
	}
	return nil, false
}

// KeyBindings returns all key-flagged bindings in declaration order.
func (mi *ModelInfo) KeyBindings() []*AttributeBinding {
	var keys []*AttributeBinding
	for _, b := range mi.Bindings {
		if b.Key {
			keys = append(keys, b)
		}
	}
	return keys
}

// KeyBinding returns the single key binding, or an error when the type
// declares zero or several.
func (mi *ModelInfo) KeyBinding() (*AttributeBinding, error) {
	keys := mi.KeyBindings()
	switch len(keys) {
	case 1:
		return keys[0], nil
	case 0:
		return nil, &MissingKeyError{TypeName: mi.TypeName, Reason: "no key attribute declared"}
	default:
		return nil, &MissingKeyError{
			TypeName: mi.TypeName,
			Reason:   fmt.Sprintf("%d key attributes declared, want exactly 1", len(keys)),
		}
	}
}

var (
	baseEntityType   = reflect.TypeOf(BaseEntity{})
	baseRelationType = reflect.TypeOf(BaseRelation{})
	timeType         = reflect.TypeOf(time.Time{})
)

// ExtractModelInfo builds the static descriptor for a model struct type.
// The type must embed BaseEntity or BaseRelation; attribute fields are
// mapped according to their `typeql` tags, with kebab-case names derived
// from the field name when the tag gives none.
func ExtractModelInfo(t reflect.Type) (*ModelInfo, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model type %s is not a struct", t)
	}

	info := &ModelInfo{
		GoType:   t,
		TypeName: strcase.ToKebab(t.Name()),
		byAttr:   make(map[string]*AttributeBinding),
		byField:  make(map[string]*AttributeBinding),
	}

	foundBase := false
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)

		if f.Anonymous {
			switch f.Type {
			case baseEntityType:
				info.Kind = EntityModel
				foundBase = true
			case baseRelationType:
				info.Kind = RelationModel
				foundBase = true
			default:
				// Embedded parent model: inherit its bindings.
				if err := inheritParent(info, f); err != nil {
					return nil, err
				}
				continue
			}
			// Type-level options live on the embedded base field.
			tag, err := ParseTag(f.Tag.Get("typeql"))
			if err != nil {
				return nil, fmt.Errorf("model %s: %w", t.Name(), err)
			}
			if tag.Name != "" {
				info.TypeName = tag.Name
			}
			if tag.TypeName != "" {
				info.TypeName = tag.TypeName
			}
			info.Abstract = tag.Abstract
			continue
		}

		if f.PkgPath != "" { // unexported
			continue
		}

		tag, err := ParseTag(f.Tag.Get("typeql"))
		if err != nil {
			return nil, fmt.Errorf("model %s, field %s: %w", t.Name(), f.Name, err)
		}
		if tag.Skip {
			continue
		}

		if tag.IsRole() {
			rb, err := roleBinding(t, f, i, tag)
			if err != nil {
				return nil, err
			}
			info.Roles = append(info.Roles, rb)
			continue
		}

		b, err := attributeBinding(t, f, i, tag)
		if err != nil {
			return nil, err
		}
		info.Bindings = append(info.Bindings, b)
		info.byAttr[b.Name] = b
		info.byField[b.FieldName] = b
	}

	if !foundBase && info.Supertype == "" {
		return nil, fmt.Errorf("model %s embeds neither BaseEntity nor BaseRelation", t.Name())
	}
	if len(info.Roles) > 0 && info.Kind != RelationModel {
		return nil, fmt.Errorf("model %s declares roles but is not a relation", t.Name())
	}
	if err := ValidateIdentifier(info.TypeName, "type"); err != nil {
		return nil, err
	}
	return info, nil
}

func inheritParent(info *ModelInfo, f reflect.StructField) error {
	parent, err := ExtractModelInfo(f.Type)
	if err != nil {
		return fmt.Errorf("embedded model %s: %w", f.Type.Name(), err)
	}
	info.Supertype = parent.TypeName
	info.Kind = parent.Kind
	for _, b := range parent.Bindings {
		inherited := *b
		info.Bindings = append(info.Bindings, &inherited)
		info.byAttr[inherited.Name] = &inherited
		info.byField[inherited.FieldName] = &inherited
	}
	return nil
}

func roleBinding(t reflect.Type, f reflect.StructField, idx int, tag FieldTag) (*RoleBinding, error) {
	ft := f.Type
	if ft.Kind() != reflect.Ptr || ft.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("model %s, role field %s: players must be struct pointers", t.Name(), f.Name)
	}
	if err := ValidateIdentifier(tag.Role, "role"); err != nil {
		return nil, fmt.Errorf("model %s, field %s: %w", t.Name(), f.Name, err)
	}
	return &RoleBinding{
		Role:           tag.Role,
		FieldName:      f.Name,
		FieldIndex:     idx,
		PlayerGoType:   ft.Elem(),
		PlayerTypeName: strcase.ToKebab(ft.Elem().Name()),
	}, nil
}

func attributeBinding(t reflect.Type, f reflect.StructField, idx int, tag FieldTag) (*AttributeBinding, error) {
	b := &AttributeBinding{
		Name:       tag.Name,
		Key:        tag.Key,
		Unique:     tag.Unique,
		FieldName:  f.Name,
		FieldIndex: idx,
		FieldType:  f.Type,
	}
	if b.Name == "" {
		b.Name = strcase.ToKebab(f.Name)
	}
	if err := ValidateIdentifier(b.Name, "attribute"); err != nil {
		return nil, fmt.Errorf("model %s, field %s: %w", t.Name(), f.Name, err)
	}

	elem := f.Type
	switch elem.Kind() {
	case reflect.Slice:
		b.IsSlice = true
		elem = elem.Elem()
	case reflect.Ptr:
		b.IsPointer = true
		elem = elem.Elem()
	}
	b.ElemType = elem

	vt, err := valueTypeOf(elem)
	if err != nil {
		return nil, fmt.Errorf("model %s, field %s: %w", t.Name(), f.Name, err)
	}
	b.ValueType = vt

	// Cardinality: an explicit card= tag wins; otherwise the field shape
	// implies it (slice = 0.., pointer = 0..1, value = 1..1).
	one := 1
	switch {
	case tag.CardMin != nil || tag.CardMax != nil:
		b.ExplicitCard = true
		if tag.CardMin != nil {
			b.CardMin = *tag.CardMin
		}
		b.CardMax = tag.CardMax
	case b.IsSlice:
		b.ExplicitCard = true
		b.CardMin = 0
		b.CardMax = nil
	case b.IsPointer:
		b.CardMin = 0
		b.CardMax = &one
	default:
		b.CardMin = 1
		b.CardMax = &one
	}

	if b.MultiValued() && !b.IsSlice {
		return nil, fmt.Errorf("model %s, field %s: multi-card attribute requires a slice field", t.Name(), f.Name)
	}
	if !b.MultiValued() && b.IsSlice {
		return nil, fmt.Errorf("model %s, field %s: slice field requires a multi-valued cardinality", t.Name(), f.Name)
	}
	return b, nil
}

// valueTypeOf maps a Go scalar type to its TypeQL value type.
func valueTypeOf(t reflect.Type) (string, error) {
	if t == timeType {
		return "datetime", nil
	}
	switch t.Kind() {
	case reflect.String:
		return "string", nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer", nil
	case reflect.Float32, reflect.Float64:
		return "double", nil
	case reflect.Bool:
		return "boolean", nil
	default:
		return "", fmt.Errorf("unsupported attribute type %s", t)
	}
}
