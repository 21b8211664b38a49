package bridge

import "reflect"

// Relation is implemented by every struct that maps to a TypeDB relation
// type. Embed BaseRelation to satisfy it.
type Relation interface {
	GetIID() string
	SetIID(iid string)
	isRelation()
}

// BaseRelation carries the engine-assigned identity of a persisted relation.
type BaseRelation struct {
	iid string
}

// GetIID returns the engine-assigned identity, or "" if not read back yet.
func (b *BaseRelation) GetIID() string { return b.iid }

// SetIID records the engine-assigned identity. Called during hydration.
func (b *BaseRelation) SetIID(iid string) { b.iid = iid }

func (b *BaseRelation) isRelation() {}

// RoleBinding describes one role of a relation model: the struct field that
// holds the player, the TypeQL role label, and the player's type.
type RoleBinding struct {
	// Role is the TypeQL role label.
	Role string
	// FieldName is the Go struct field holding the player instance.
	FieldName string
	// FieldIndex is the field's index within the struct.
	FieldIndex int
	// PlayerGoType is the player's struct type (pointer element type).
	PlayerGoType reflect.Type
	// PlayerTypeName is the player's TypeQL type name.
	PlayerTypeName string
}
