package engine

import (
	"fmt"
	"reflect"
)

// ProductType identifies a kind of artifact or value a task can produce.
// Product types are compared by identity, so a single type authored in one
// package names exactly one product.
type ProductType = reflect.Type

// Product returns the ProductType for T.
func Product[T any]() ProductType {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// ProductOf returns the ProductType of a concrete value.
func ProductOf(v any) ProductType {
	return reflect.TypeOf(v)
}

// Identifiable values contribute a stable identity string to plan
// fingerprints and diagnostics. Build entities (targets, configurations)
// implement this so plans referencing them hash deterministically.
type Identifiable interface {
	Identity() string
}

// identityOf renders a stable identity for an arbitrary value, preferring
// the Identifiable contract when available.
func identityOf(v any) string {
	if v == nil {
		return "nil"
	}
	if id, ok := v.(Identifiable); ok {
		return id.Identity()
	}
	return fmt.Sprintf("%T(%v)", v, v)
}

// productName renders a short, lower-case-friendly name for a product type,
// stripping pointer indirection and package paths.
func productName(t ProductType) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}
