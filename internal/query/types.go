package query

import "github.com/roach88/viewsync/internal/ir"

// Predicate is a sealed interface over the supported filters.
// A nil Predicate matches every document.
type Predicate interface {
	predicateNode()
}

// Eq matches documents whose field at Path equals Value.
//
// Example:
//
//	Eq{Path: "authorId", Value: ir.String("author-1")}
type Eq struct {
	Path  string
	Value ir.Value
}

func (Eq) predicateNode() {}

// Contains matches documents whose array field at Path holds an element equal to Value.
//
// Example:
//
//	Contains{Path: "commentIds", Value: ir.String("comment-1")}
type Contains struct {
	Path  string
	Value ir.Value
}

func (Contains) predicateNode() {}

// And matches when every nested predicate matches. Empty And matches everything.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// All returns a predicate matching every document.
func All() Predicate {
	return And{}
}

// ByID matches the document with the given identifier.
func ByID(id string) Predicate {
	return Eq{Path: ir.IDField, Value: ir.String(id)}
}

// Match evaluates a predicate against a document.
func Match(p Predicate, doc ir.Object) bool {
	switch pred := p.(type) {
	case nil:
		return true
	case Eq:
		v, ok := doc.Get(pred.Path)
		return ok && ir.Equal(v, pred.Value)
	case *Eq:
		return Match(*pred, doc)
	case Contains:
		v, ok := doc.Get(pred.Path)
		if !ok {
			return false
		}
		arr, ok := v.(ir.Array)
		if !ok {
			return false
		}
		for _, elem := range arr {
			if ir.Equal(elem, pred.Value) {
				return true
			}
		}
		return false
	case *Contains:
		return Match(*pred, doc)
	case And:
		for _, sub := range pred.Predicates {
			if !Match(sub, doc) {
				return false
			}
		}
		return true
	case *And:
		return Match(*pred, doc)
	default:
		return false
	}
}
