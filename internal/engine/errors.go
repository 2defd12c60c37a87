package engine

import (
	"fmt"
	"strings"
)

// SchedulingError is the generic request-scoped scheduling failure. Specific
// failures carry their own types below; defects detected inside planner or
// task implementations are re-surfaced wrapped in a SchedulingError with
// full context.
type SchedulingError struct {
	Msg string
	Err error
}

func (e *SchedulingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *SchedulingError) Unwrap() error { return e.Err }

// NoProducersError indicates no registered native fact or task can produce
// the requested product for the subject.
type NoProducersError struct {
	Product       ProductType
	Subject       any
	Configuration any
}

func (e *NoProducersError) Error() string {
	msg := fmt.Sprintf("no plans to generate %s", e.Product)
	if e.Subject != nil {
		msg += fmt.Sprintf(" for %s", identityOf(e.Subject))
	}
	if e.Configuration != nil {
		msg += fmt.Sprintf(" (with config %s)", identityOf(e.Configuration))
	}
	return msg + " could be made"
}

// ConflictingProducersError indicates more than one plan satisfies the same
// (subject, product, configuration). Merging producers is unsupported; the
// ambiguity must be resolved by the caller, typically via configuration
// selection.
type ConflictingProducersError struct {
	Product       ProductType
	Subject       any
	Configuration any
	Plans         []*Plan
}

func (e *ConflictingProducersError) Error() string {
	names := make([]string, 0, len(e.Plans))
	for _, p := range e.Plans {
		names = append(names, p.Runner().Name())
	}
	return fmt.Sprintf("conflicting producers for %s from %s:\n\t%s",
		e.Product, identityOf(e.Subject), strings.Join(names, "\n\t"))
}

// PartiallyConsumedInputsError indicates a task's declared inputs were
// structurally present but never consumed along any satisfiable path.
// Reserved for graph validation; nothing constructs it today.
type PartiallyConsumedInputsError struct {
	Product ProductType
	Subject any
	// Partials maps an unconsumed input product to the producers that would
	// have needed it.
	Partials map[ProductType][]string
}

func (e *PartiallyConsumedInputsError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "while producing %s for %s, some products could not be consumed:", e.Product, identityOf(e.Subject))
	for product, producers := range e.Partials {
		fmt.Fprintf(&b, "\n\tto consume %s: %s", product, strings.Join(producers, " OR "))
	}
	return b.String()
}

// InvalidRegistrationError indicates a plan was registered claiming a
// primary subject that is not among its subject set. Always a defect in a
// task or planner implementation.
type InvalidRegistrationError struct {
	Subject any
	Plan    *Plan
}

func (e *InvalidRegistrationError) Error() string {
	return fmt.Sprintf("subject %s is not part of the final plan %s", identityOf(e.Subject), e.Plan)
}

// CyclicDependencyError indicates a dependency cycle between subjects or
// products was detected during graph expansion or evaluation.
type CyclicDependencyError struct {
	Path []string
}

func (e *CyclicDependencyError) Error() string {
	if len(e.Path) == 0 {
		return "cyclic dependency detected"
	}
	return fmt.Sprintf("cyclic dependency detected involving %s", strings.Join(e.Path, " -> "))
}
