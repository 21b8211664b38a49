package bridge

import (
	"fmt"
	"reflect"
	"sync"
)

// registry holds the descriptors of all registered model types.
type registry struct {
	mu     sync.RWMutex
	byName map[string]*ModelInfo
	byType map[reflect.Type]*ModelInfo
	order  []*ModelInfo
}

var globalRegistry = &registry{
	byName: make(map[string]*ModelInfo),
	byType: make(map[reflect.Type]*ModelInfo),
}

// Register builds and stores the descriptor for model type T. Entity types
// must be registered before relations that reference them as role players;
// each player type must declare exactly one key attribute, otherwise
// registration fails with a RoleResolutionError.
func Register[T any]() (*ModelInfo, error) {
	var zero T
	t := reflect.TypeOf(zero)
	info, err := ExtractModelInfo(t)
	if err != nil {
		return nil, err
	}

	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	if existing, ok := globalRegistry.byName[info.TypeName]; ok && existing.GoType != info.GoType {
		return nil, fmt.Errorf("type name %q already registered by %s", info.TypeName, existing.GoType)
	}

	for _, role := range info.Roles {
		player, ok := globalRegistry.byType[role.PlayerGoType]
		if !ok {
			return nil, &RoleResolutionError{
				RelationType: info.TypeName,
				Role:         role.Role,
				Reason:       fmt.Sprintf("player type %s is not registered", role.PlayerGoType.Name()),
			}
		}
		role.PlayerTypeName = player.TypeName
		if n := len(player.KeyBindings()); n != 1 {
			return nil, &RoleResolutionError{
				RelationType: info.TypeName,
				Role:         role.Role,
				Reason:       fmt.Sprintf("player type %q declares %d key attributes, want exactly 1", player.TypeName, n),
			}
		}
	}

	globalRegistry.byName[info.TypeName] = info
	globalRegistry.byType[info.GoType] = info
	globalRegistry.order = append(globalRegistry.order, info)
	return info, nil
}

// MustRegister is Register but panics on error. Intended for package init.
func MustRegister[T any]() *ModelInfo {
	info, err := Register[T]()
	if err != nil {
		panic(err)
	}
	return info
}

// Lookup returns the descriptor registered under a TypeQL type name.
func Lookup(typeName string) (*ModelInfo, error) {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	info, ok := globalRegistry.byName[typeName]
	if !ok {
		return nil, &NotRegisteredError{TypeName: typeName}
	}
	return info, nil
}

// LookupType returns the descriptor registered for a Go struct type.
func LookupType(t reflect.Type) (*ModelInfo, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	info, ok := globalRegistry.byType[t]
	if !ok {
		return nil, &NotRegisteredError{TypeName: t.Name()}
	}
	return info, nil
}

// RegisteredTypes returns all descriptors in registration order.
func RegisteredTypes() []*ModelInfo {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	out := make([]*ModelInfo, len(globalRegistry.order))
	copy(out, globalRegistry.order)
	return out
}

// SubtypesOf returns the descriptors whose supertype chain includes the
// named type.
func SubtypesOf(typeName string) []*ModelInfo {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	var subs []*ModelInfo
	for _, info := range globalRegistry.order {
		for parent := info.Supertype; parent != ""; {
			if parent == typeName {
				subs = append(subs, info)
				break
			}
			p, ok := globalRegistry.byName[parent]
			if !ok {
				break
			}
			parent = p.Supertype
		}
	}
	return subs
}

// ClearRegistry removes all registered types. Test helper.
func ClearRegistry() {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.byName = make(map[string]*ModelInfo)
	globalRegistry.byType = make(map[reflect.Type]*ModelInfo)
	globalRegistry.order = nil
}
