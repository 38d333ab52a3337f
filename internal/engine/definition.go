package engine

import (
	"context"

	"github.com/roach88/viewsync/internal/collection"
	"github.com/roach88/viewsync/internal/ir"
)

// FieldFunc computes one output field. doc must be treated as read-only;
// stage functions may run concurrently against the same document.
//
// Returning a nil Value removes the field from the output. Returning an error
// (or panicking) fails the computation of this document only.
type FieldFunc func(ctx context.Context, doc ir.Object, userID string) (ir.Value, error)

// Field is a named FieldFunc. Definitions keep fields in declaration order,
// which is also the merge order.
type Field struct {
	Name string
	Fn   FieldFunc
}

// Definition describes one denormalized view: documents of Source, extended
// with computed fields, mirrored into Target under the same identifier.
type Definition struct {
	ID     string
	Source collection.Collection
	Target collection.Collection

	// Sync fields see only the source document.
	Sync []Field

	// PostSync fields see the source document merged with every Sync result.
	PostSync []Field
}

// ResolverFunc maps a trigger document to the source identifiers whose
// denormalized copies must be recomputed. An empty result means nothing to do.
type ResolverFunc func(ctx context.Context, trigger ir.Object, userID string) ([]string, error)

// RefreshBinding keeps a Definition's target fresh when a document in
// another collection changes.
type RefreshBinding struct {
	ID       string
	Trigger  collection.Collection
	Resolver ResolverFunc
}

// RefreshReport summarizes a manual or bulk refresh.
type RefreshReport struct {
	DefinitionID string `json:"definition"`
	Requested    int    `json:"requested"`
	Recomputed   int    `json:"recomputed"`
	Unchanged    int    `json:"unchanged"`
	Skipped      int    `json:"skipped"`
	Failed       int    `json:"failed"`
}

// outcome is the result of synchronizing one document.
type outcome int

const (
	outcomeRecomputed outcome = iota
	outcomeUnchanged
	outcomeSkipped
	outcomeFailed
)

func (o outcome) String() string {
	switch o {
	case outcomeRecomputed:
		return "recomputed"
	case outcomeUnchanged:
		return "unchanged"
	case outcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

func (r *RefreshReport) add(o outcome) {
	switch o {
	case outcomeRecomputed:
		r.Recomputed++
	case outcomeUnchanged:
		r.Unchanged++
	case outcomeSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
}
