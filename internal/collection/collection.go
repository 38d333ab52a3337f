package collection

import (
	"context"
	"errors"

	"github.com/roach88/viewsync/internal/ir"
	"github.com/roach88/viewsync/internal/query"
)

var (
	// ErrMissingID is returned by Upsert when the id is empty.
	ErrMissingID = errors.New("document id is required")

	// ErrDuplicateID is returned by Insert when a document with the id already exists.
	ErrDuplicateID = errors.New("document id already exists")
)

// Collection is a named set of JSON documents keyed by ir.IDField.
type Collection interface {
	Name() string

	// Find returns the document with the given id; the bool is false when absent.
	Find(ctx context.Context, id string) (ir.Object, bool, error)

	// FindMany returns every document matching p, ordered by id.
	FindMany(ctx context.Context, p query.Predicate) ([]ir.Object, error)

	// Insert stores doc and returns its id, generating one when doc has none.
	Insert(ctx context.Context, doc ir.Object) (string, error)

	// Update merges partial into the top level of the document and returns
	// the number of documents changed (0 or 1).
	Update(ctx context.Context, id string, partial ir.Object) (int, error)

	// Remove deletes the document and returns the number removed (0 or 1).
	Remove(ctx context.Context, id string) (int, error)

	// Upsert replaces the document with the given id, creating it if needed.
	Upsert(ctx context.Context, id string, doc ir.Object) error

	Subscribe(kind EventKind, h Handler) Subscription
}

// EventKind identifies the mutation a hook observes.
type EventKind int

const (
	AfterInsert EventKind = iota + 1
	AfterUpdate
	AfterRemove
)

func (k EventKind) String() string {
	switch k {
	case AfterInsert:
		return "after-insert"
	case AfterUpdate:
		return "after-update"
	case AfterRemove:
		return "after-remove"
	default:
		return "unknown"
	}
}

// Event describes one applied mutation.
type Event struct {
	Kind       EventKind
	Collection string
	ID         string

	// Doc is the document after the mutation, or the removed document for AfterRemove.
	Doc ir.Object

	// UserID is the acting user taken from the mutating call's context.
	UserID string
}

// Handler reacts to an Event. The context is the mutating call's context.
type Handler func(ctx context.Context, ev Event) error

type userKey struct{}

// WithUser attaches the acting user to ctx. Hooks receive it as Event.UserID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFrom returns the acting user stored in ctx, or "".
func UserFrom(ctx context.Context) string {
	userID, _ := ctx.Value(userKey{}).(string)
	return userID
}
