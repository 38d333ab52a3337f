// Package collection defines the document collection boundary viewsync runs
// against, and an in-memory implementation of it.
//
// A Collection offers single-document reads and writes plus a change-hook
// interface. Hooks fire after a mutation has been applied, on the mutating
// goroutine, in subscription order. Handler errors are joined and returned
// from the mutating call; the mutation itself stays applied.
//
// Remove events carry the last known state of the removed document in
// Event.Doc so that handlers can still resolve what it referenced.
package collection
