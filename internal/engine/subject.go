package engine

// Subject is the build entity a product is requested for. It wraps a primary
// entity and an optional alternate entity suggested by another plan.
// Identity is defined solely on the primary; the alternate is informational.
// Subjects are immutable values shared freely across graph nodes, promise
// keys, and plans.
type Subject struct {
	primary   any
	alternate any
}

// NewSubject wraps the given entity as the primary of a Subject.
func NewSubject(primary any) Subject {
	if primary == nil {
		panic("engine: subject primary must not be nil")
	}
	return Subject{primary: primary}
}

// SubjectOf returns the given item as a Subject, passing it through if it
// already is one.
func SubjectOf(item any) Subject {
	if s, ok := item.(Subject); ok {
		return s
	}
	return NewSubject(item)
}

// WithAlternate returns a copy of the subject carrying the given alternate
// entity.
func (s Subject) WithAlternate(alternate any) Subject {
	return Subject{primary: s.primary, alternate: alternate}
}

// Primary returns the primary entity.
func (s Subject) Primary() any {
	return s.primary
}

// Alternate returns the alternate entity, if any.
func (s Subject) Alternate() (any, bool) {
	return s.alternate, s.alternate != nil
}

// Derivations returns the subject's entities in order: the primary first,
// then the alternate when present.
func (s Subject) Derivations() []any {
	if s.alternate != nil {
		return []any{s.primary, s.alternate}
	}
	return []any{s.primary}
}

// Equal reports whether two subjects share the same primary entity.
func (s Subject) Equal(other Subject) bool {
	return s.primary == other.primary
}

// Identity implements Identifiable over the primary entity.
func (s Subject) Identity() string {
	return identityOf(s.primary)
}
