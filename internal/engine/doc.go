// Package engine implements the planning core of the build scheduler: the
// subject/selector data model, the product-possibility graph and its
// satisfiability semantics, the planner registry, the promise-to-plan
// mapping with conflict detection, and the one-shot promise primitive used
// to hand results between planning and execution.
package engine
