package bridge

import "reflect"

// snapshot captures an instance's attribute values at one point in time,
// split into single and multi valued bindings. Update paths diff the
// instance's current state against a snapshot instead of re-reading the
// database when one is already in hand.
type snapshot struct {
	singles map[string]any
	multis  map[string][]any
}

// snapshotOf captures the snapshot from an in-memory struct value.
func snapshotOf(info *ModelInfo, v reflect.Value) *snapshot {
	snap := &snapshot{singles: make(map[string]any), multis: make(map[string][]any)}
	for _, b := range info.Bindings {
		if b.MultiValued() {
			snap.multis[b.Name] = multiValues(b, v)
			continue
		}
		if val, ok := singleValue(b, v); ok && val != nil {
			snap.singles[b.Name] = val
		}
	}
	return snap
}

// snapshotOfRow captures the snapshot from an unwrapped fetch row.
func snapshotOfRow(info *ModelInfo, row map[string]any) *snapshot {
	snap := &snapshot{singles: make(map[string]any), multis: make(map[string][]any)}
	for _, b := range info.Bindings {
		raw, ok := row[b.Name]
		if !ok || raw == nil {
			continue
		}
		if b.MultiValued() {
			list, ok := raw.([]any)
			if !ok {
				list = []any{raw}
			}
			vals := make([]any, 0, len(list))
			for _, el := range list {
				vals = append(vals, unwrapValue(el))
			}
			snap.multis[b.Name] = vals
			continue
		}
		snap.singles[b.Name] = unwrapValue(raw)
	}
	return snap
}
