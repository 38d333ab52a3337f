// Package engine implements the viewsync synchronization and invalidation engine.
//
// The engine keeps denormalized copies of source documents in a target
// collection. Callers register a Definition per (source, target) pair; the
// engine subscribes to the source collection's change hooks and rewrites the
// target copy on every insert, update and remove. RefreshBindings add edges
// from other ("trigger") collections: when a trigger document changes, a
// resolver names the source documents whose copies embed it and those are
// recomputed.
//
// ARCHITECTURE:
//
// Registry (registry.go):
// Definitions and bindings live in an explicitly owned Engine, never in
// package state. Registration validates, subscribes and stores under one
// lock, so a failed call leaves no partial state. Deregister tears down
// exactly the subscriptions Register created.
//
// Pipeline (pipeline.go):
// Two stages separated by a hard barrier. Sync fields see only the source
// document; PostSync fields see the source merged with all Sync results.
//
// Propagation (propagator.go, invalidator.go, refresh.go, write.go):
// Every path funnels into syncDocument: fetch, compute, compare, upsert.
// Unchanged outputs are never written, which keeps refreshes idempotent and
// stops hook cascades once outputs settle.
//
// Flows (flow.go, quota.go, cycle.go):
// A write made from inside a hook carries the hook's context, so cascades
// share one flow. Each flow has a step quota and an oscillation detector;
// together they guarantee that propagation terminates even when the
// collection graph has cycles (see AnalyzeCycles in graph.go for the static
// view of the same problem).
//
// Hooks are synchronous: by the time a mutating collection call returns,
// every target copy reflects it, and propagation errors are returned from
// that call.
package engine
