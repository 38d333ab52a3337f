package fields

import (
	"context"
	"fmt"

	"github.com/roach88/viewsync/internal/collection"
	"github.com/roach88/viewsync/internal/engine"
	"github.com/roach88/viewsync/internal/ir"
	"github.com/roach88/viewsync/internal/query"
)

// ReferencedBy resolves a trigger document to the ids of source documents
// whose foreignKey field equals the trigger's id. Example: an author resolves
// to every post with authorId == author._id.
func ReferencedBy(source collection.Collection, foreignKey string) engine.ResolverFunc {
	return resolveWhere(source, func(id string) query.Predicate {
		return query.Eq{Path: foreignKey, Value: ir.String(id)}
	})
}

// ContainedIn resolves a trigger document to the ids of source documents
// whose array at arrayPath contains the trigger's id. Example: a comment
// resolves to every post listing it in commentIds.
func ContainedIn(source collection.Collection, arrayPath string) engine.ResolverFunc {
	return resolveWhere(source, func(id string) query.Predicate {
		return query.Contains{Path: arrayPath, Value: ir.String(id)}
	})
}

func resolveWhere(source collection.Collection, pred func(id string) query.Predicate) engine.ResolverFunc {
	return func(ctx context.Context, trigger ir.Object, _ string) ([]string, error) {
		id, ok := trigger.ID()
		if !ok {
			return nil, nil
		}
		docs, err := source.FindMany(ctx, pred(id))
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", source.Name(), err)
		}
		ids := make([]string, 0, len(docs))
		for _, d := range docs {
			if docID, ok := d.ID(); ok {
				ids = append(ids, docID)
			}
		}
		return ids, nil
	}
}
