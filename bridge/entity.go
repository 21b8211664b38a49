// Package bridge maps Go structs to TypeDB entities and relations. It
// compiles typed filters and lookup expressions into TypeQL, executes them
// through a pluggable transactional transport, and decodes result rows back
// into typed instances, including nested relation role players and their
// persisted identities.
package bridge

// Entity is implemented by every struct that maps to a TypeDB entity type.
// Embed BaseEntity to satisfy it.
type Entity interface {
	GetIID() string
	SetIID(iid string)
	isEntity()
}

// BaseEntity carries the engine-assigned identity of a persisted entity.
// The IID starts empty and is populated only when an instance is read back
// from the database; callers never set it to force identity.
type BaseEntity struct {
	iid string
}

// GetIID returns the engine-assigned identity, or "" if the instance has
// not been read back yet.
func (b *BaseEntity) GetIID() string { return b.iid }

// SetIID records the engine-assigned identity. Called during hydration.
func (b *BaseEntity) SetIID(iid string) { b.iid = iid }

func (b *BaseEntity) isEntity() {}
