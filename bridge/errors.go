package bridge

import "fmt"

// NotRegisteredError is returned when an operation references a model type
// that has not been registered.
type NotRegisteredError struct {
	TypeName string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("type %q is not registered", e.TypeName)
}

// UnknownFilterFieldError is returned when a filter references a field that
// is not part of the model's attribute bindings.
type UnknownFilterFieldError struct {
	TypeName string
	Field    string
}

func (e *UnknownFilterFieldError) Error() string {
	return fmt.Sprintf("unknown filter field %q on type %q", e.Field, e.TypeName)
}

// UnknownLookupError is returned when a filter key carries an unrecognized
// lookup suffix.
type UnknownLookupError struct {
	Field  string
	Lookup string
}

func (e *UnknownLookupError) Error() string {
	return fmt.Sprintf("unknown lookup %q on field %q", e.Lookup, e.Field)
}

// InvalidLookupError is returned when a lookup suffix is recognized but the
// supplied value or the attribute's value type does not fit it.
type InvalidLookupError struct {
	Field  string
	Lookup string
	Reason string
}

func (e *InvalidLookupError) Error() string {
	return fmt.Sprintf("invalid lookup %s__%s: %s", e.Field, e.Lookup, e.Reason)
}

// InvalidFilterFieldError is returned for malformed filter keys, such as a
// key containing the lookup separator more than once.
type InvalidFilterFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFilterFieldError) Error() string {
	return fmt.Sprintf("invalid filter field %q: %s", e.Field, e.Reason)
}

// MissingKeyError is returned when an operation that identifies an instance
// by key cannot resolve exactly one key attribute with a non-nil value.
type MissingKeyError struct {
	TypeName string
	Reason   string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing key for type %q: %s", e.TypeName, e.Reason)
}

// RoleResolutionError is returned when a relation's role player cannot be
// resolved: the player is absent, its type is not registered, or its type
// does not declare exactly one key attribute.
type RoleResolutionError struct {
	RelationType string
	Role         string
	Reason       string
}

func (e *RoleResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve role %q of relation %q: %s", e.Role, e.RelationType, e.Reason)
}

// NotFoundError is returned when an identity-based fetch matches nothing.
type NotFoundError struct {
	TypeName string
	Detail   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.TypeName, e.Detail)
}

// NotUniqueError is returned when a single-instance operation matches more
// than one row. Use the bulk variants to act on multiple rows.
type NotUniqueError struct {
	TypeName string
	Count    int
}

func (e *NotUniqueError) Error() string {
	return fmt.Sprintf("expected at most one %s, matched %d", e.TypeName, e.Count)
}

// HydrationError is returned when a fetched row cannot be decoded into a
// model instance.
type HydrationError struct {
	TypeName string
	Field    string
	Err      error
}

func (e *HydrationError) Error() string {
	return fmt.Sprintf("hydrate %s.%s: %v", e.TypeName, e.Field, e.Err)
}

func (e *HydrationError) Unwrap() error { return e.Err }
