// Package scheduler linearizes a build request into an executable plan
// sequence: it resolves root subjects and products, drives the planner
// registry and product mapper from package engine, and exposes the
// dependency-ordered walk consumed by the executor.
package scheduler
