package engine

import (
	"context"
	"fmt"

	"github.com/roach88/viewsync/internal/collection"
)

// subscribeSource wires the change propagator of one definition onto its
// source collection.
func (e *Engine) subscribeSource(reg *registration) []collection.Subscription {
	src := reg.def.Source
	return []collection.Subscription{
		src.Subscribe(collection.AfterInsert, e.onSourceWrite(reg, false)),
		src.Subscribe(collection.AfterUpdate, e.onSourceWrite(reg, true)),
		src.Subscribe(collection.AfterRemove, e.onSourceRemove(reg)),
	}
}

// onSourceWrite recomputes the target copy of an inserted or updated source
// document. Inserts compute from the event document; updates re-fetch the
// current state first.
func (e *Engine) onSourceWrite(reg *registration, refetch bool) collection.Handler {
	return func(ctx context.Context, ev collection.Event) error {
		if !reg.isActive() {
			return nil
		}

		source := ev.Doc
		if refetch {
			source = nil
		}

		err := e.withFlow(ctx, func(ctx context.Context) error {
			_, err := e.syncDocument(ctx, reg, ev.ID, source, ev.UserID)
			return err
		})
		return e.hookError(reg, ev, err)
	}
}

// onSourceRemove deletes the target copy of a removed source document.
func (e *Engine) onSourceRemove(reg *registration) collection.Handler {
	return func(ctx context.Context, ev collection.Event) error {
		if !reg.isActive() {
			return nil
		}

		err := e.withFlow(ctx, func(ctx context.Context) error {
			if err := flowFrom(ctx).step(); err != nil {
				return err
			}
			n, err := reg.def.Target.Remove(ctx, ev.ID)
			if err != nil {
				return fmt.Errorf("remove %s %q: %w", reg.def.Target.Name(), ev.ID, err)
			}
			if n > 0 {
				e.logger.Debug("target document removed",
					"definition", reg.def.ID, "id", ev.ID, "flow", FlowToken(ctx))
			}
			return nil
		})
		return e.hookError(reg, ev, err)
	}
}

// hookError logs a failed hook and wraps the error for the mutating caller.
func (e *Engine) hookError(reg *registration, ev collection.Event, err error) error {
	if err == nil {
		return nil
	}
	e.logger.Error("propagation failed",
		"definition", reg.def.ID,
		"collection", ev.Collection,
		"event", ev.Kind.String(),
		"id", ev.ID,
		"error", err)
	return fmt.Errorf("definition %s: %w", reg.def.ID, err)
}
