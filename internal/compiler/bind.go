package compiler

import (
	"errors"
	"fmt"

	"github.com/roach88/viewsync/internal/collection"
	"github.com/roach88/viewsync/internal/engine"
	"github.com/roach88/viewsync/internal/fields"
)

// Catalog resolves collection names to collections. It returns nil for
// unknown names.
type Catalog func(name string) collection.Collection

// lookup resolves name or fails on an unknown collection.
func (c Catalog) lookup(name string) (collection.Collection, error) {
	coll := c(name)
	if coll == nil {
		return nil, fmt.Errorf("unknown collection %q", name)
	}
	return coll, nil
}

// Bind builds the engine definition and refresh bindings of a validated view.
func Bind(spec *ViewSpec, catalog Catalog) (engine.Definition, []engine.RefreshBinding, error) {
	def := engine.Definition{ID: spec.ID}

	var err error
	if def.Source, err = catalog.lookup(spec.Source); err != nil {
		return engine.Definition{}, nil, fmt.Errorf("view %s: source: %w", spec.ID, err)
	}
	if def.Target, err = catalog.lookup(spec.Target); err != nil {
		return engine.Definition{}, nil, fmt.Errorf("view %s: target: %w", spec.ID, err)
	}
	if def.Sync, err = bindFields(spec.Sync, catalog); err != nil {
		return engine.Definition{}, nil, fmt.Errorf("view %s: %w", spec.ID, err)
	}
	if def.PostSync, err = bindFields(spec.PostSync, catalog); err != nil {
		return engine.Definition{}, nil, fmt.Errorf("view %s: %w", spec.ID, err)
	}

	bindings := make([]engine.RefreshBinding, 0, len(spec.RefreshBy))
	for i, b := range spec.RefreshBy {
		var resolver engine.ResolverFunc
		switch b.Resolver {
		case ResolverReferencedBy:
			resolver = fields.ReferencedBy(def.Source, b.Path)
		case ResolverContainedIn:
			resolver = fields.ContainedIn(def.Source, b.Path)
		default:
			return engine.Definition{}, nil, fmt.Errorf("view %s: refreshBy[%d]: unknown resolver %q", spec.ID, i, b.Resolver)
		}
		trigger, err := catalog.lookup(b.Trigger)
		if err != nil {
			return engine.Definition{}, nil, fmt.Errorf("view %s: refreshBy[%d]: %w", spec.ID, i, err)
		}
		bindings = append(bindings, engine.RefreshBinding{
			ID:       spec.ID,
			Trigger:  trigger,
			Resolver: resolver,
		})
	}

	return def, bindings, nil
}

func bindFields(specs []FieldSpec, catalog Catalog) ([]engine.Field, error) {
	out := make([]engine.Field, 0, len(specs))
	for _, f := range specs {
		fn, err := bindField(f, catalog)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		out = append(out, engine.Field{Name: f.Name, Fn: fn})
	}
	return out, nil
}

func bindField(f FieldSpec, catalog Catalog) (engine.FieldFunc, error) {
	var from collection.Collection
	switch f.Op {
	case OpLookup, OpLookupMany, OpReferencing:
		var err error
		if from, err = catalog.lookup(f.From); err != nil {
			return nil, err
		}
	}

	switch f.Op {
	case OpLookup:
		return fields.Lookup(from, f.Path), nil
	case OpLookupMany:
		return fields.LookupMany(from, f.Path), nil
	case OpReferencing:
		return fields.Referencing(from, f.ForeignKey), nil
	case OpCount:
		return fields.Count(f.Path), nil
	case OpCopy:
		return fields.Copy(f.Path), nil
	case OpPluck:
		return fields.Pluck(f.Path, f.Field), nil
	case OpConcat:
		parts := make([]fields.Part, 0, len(f.Parts))
		for _, p := range f.Parts {
			switch p.Kind {
			case PartPath:
				parts = append(parts, fields.Path(p.Path))
			case PartLiteral:
				parts = append(parts, fields.Literal(p.Literal))
			case PartJoined:
				parts = append(parts, fields.Joined(p.Path, p.Field, p.Sep))
			default:
				return nil, fmt.Errorf("unknown concat part %q", p.Kind)
			}
		}
		return fields.Concat(f.Sep, parts...), nil
	default:
		return nil, fmt.Errorf("unknown operation %q", f.Op)
	}
}

// Install validates specs, then registers every view and its refresh
// bindings with e. If any registration fails, the views installed by this
// call are deregistered again.
func Install(e *engine.Engine, specs []ViewSpec, catalog Catalog) error {
	if verrs := ValidateAll(specs); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, v := range verrs {
			errs[i] = v
		}
		return fmt.Errorf("invalid views: %w", errors.Join(errs...))
	}

	var installed []string
	rollback := func() {
		for _, id := range installed {
			_ = e.Deregister(id)
		}
	}

	for i := range specs {
		def, bindings, err := Bind(&specs[i], catalog)
		if err != nil {
			rollback()
			return err
		}
		if err := e.Register(def); err != nil {
			rollback()
			return fmt.Errorf("register view %s: %w", def.ID, err)
		}
		installed = append(installed, def.ID)

		for _, b := range bindings {
			if err := e.RegisterRefreshBinding(b); err != nil {
				rollback()
				return fmt.Errorf("register refresh binding %s <- %s: %w", def.ID, b.Trigger.Name(), err)
			}
		}
	}
	return nil
}
