package fields

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/viewsync/internal/collection"
	"github.com/roach88/viewsync/internal/engine"
	"github.com/roach88/viewsync/internal/ir"
	"github.com/roach88/viewsync/internal/query"
)

// Lookup embeds the document of coll whose id is stored at refPath.
// A missing reference or document leaves the field absent.
func Lookup(coll collection.Collection, refPath string) engine.FieldFunc {
	return func(ctx context.Context, doc ir.Object, _ string) (ir.Value, error) {
		id, ok := stringAt(doc, refPath)
		if !ok {
			return nil, nil
		}
		found, ok, err := coll.Find(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("lookup %s %q: %w", coll.Name(), id, err)
		}
		if !ok {
			return nil, nil
		}
		return found, nil
	}
}

// LookupMany embeds, in order, the documents of coll whose ids are listed in
// the array at refsPath. Dangling ids are dropped; a missing array yields [].
func LookupMany(coll collection.Collection, refsPath string) engine.FieldFunc {
	return func(ctx context.Context, doc ir.Object, _ string) (ir.Value, error) {
		out := ir.Array{}
		for _, ref := range arrayAt(doc, refsPath) {
			id, ok := ref.(ir.String)
			if !ok || id == "" {
				continue
			}
			found, ok, err := coll.Find(ctx, string(id))
			if err != nil {
				return nil, fmt.Errorf("lookup %s %q: %w", coll.Name(), id, err)
			}
			if ok {
				out = append(out, found)
			}
		}
		return out, nil
	}
}

// Referencing embeds every document of coll whose foreignKey equals this
// document's id, ordered by id.
func Referencing(coll collection.Collection, foreignKey string) engine.FieldFunc {
	return func(ctx context.Context, doc ir.Object, _ string) (ir.Value, error) {
		id, ok := doc.ID()
		if !ok {
			return ir.Array{}, nil
		}
		docs, err := coll.FindMany(ctx, query.Eq{Path: foreignKey, Value: ir.String(id)})
		if err != nil {
			return nil, fmt.Errorf("find %s by %s: %w", coll.Name(), foreignKey, err)
		}
		out := make(ir.Array, len(docs))
		for i, d := range docs {
			out[i] = d
		}
		return out, nil
	}
}

// Count returns the length of the array at path, 0 when it is missing.
func Count(path string) engine.FieldFunc {
	return func(_ context.Context, doc ir.Object, _ string) (ir.Value, error) {
		return ir.Int(len(arrayAt(doc, path))), nil
	}
}

// Copy returns the value at path, or leaves the field absent.
func Copy(path string) engine.FieldFunc {
	return func(_ context.Context, doc ir.Object, _ string) (ir.Value, error) {
		v, ok := doc.Get(path)
		if !ok {
			return nil, nil
		}
		return ir.DeepCopy(v), nil
	}
}

// Pluck returns the values of field from every object in the array at path.
// Elements without the field are skipped.
func Pluck(path, field string) engine.FieldFunc {
	return func(_ context.Context, doc ir.Object, _ string) (ir.Value, error) {
		return pluck(doc, path, field), nil
	}
}

// Part renders one segment of a Concat.
type Part func(doc ir.Object) string

// Path renders the value at path as text ("" when missing).
func Path(path string) Part {
	return func(doc ir.Object) string {
		v, _ := doc.Get(path)
		return ir.Text(v)
	}
}

// Literal renders a fixed string.
func Literal(s string) Part {
	return func(ir.Object) string {
		return s
	}
}

// Joined renders the plucked values of field from the array at path, joined with sep.
func Joined(path, field, sep string) Part {
	return func(doc ir.Object) string {
		vals := pluck(doc, path, field)
		texts := make([]string, len(vals))
		for i, v := range vals {
			texts[i] = ir.Text(v)
		}
		return strings.Join(texts, sep)
	}
}

// Concat joins the rendered parts with sep. Empty parts are kept, so
// positions stay stable: "post 1, , author 1".
func Concat(sep string, parts ...Part) engine.FieldFunc {
	return func(_ context.Context, doc ir.Object, _ string) (ir.Value, error) {
		texts := make([]string, len(parts))
		for i, p := range parts {
			texts[i] = p(doc)
		}
		return ir.String(strings.Join(texts, sep)), nil
	}
}

func pluck(doc ir.Object, path, field string) ir.Array {
	out := ir.Array{}
	for _, elem := range arrayAt(doc, path) {
		obj, ok := elem.(ir.Object)
		if !ok {
			continue
		}
		if v, ok := obj.Get(field); ok {
			out = append(out, v)
		}
	}
	return out
}

func stringAt(doc ir.Object, path string) (string, bool) {
	v, ok := doc.Get(path)
	if !ok {
		return "", false
	}
	s, ok := v.(ir.String)
	if !ok || s == "" {
		return "", false
	}
	return string(s), true
}

func arrayAt(doc ir.Object, path string) ir.Array {
	v, ok := doc.Get(path)
	if !ok {
		return nil
	}
	arr, _ := v.(ir.Array)
	return arr
}
