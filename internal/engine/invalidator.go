package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/viewsync/internal/collection"
)

// subscribeTrigger wires one refresh binding onto its trigger collection.
// Insert, update and remove events are handled identically.
func (e *Engine) subscribeTrigger(reg *registration, br *bindingRegistration) []collection.Subscription {
	h := e.onTrigger(reg, br)
	trigger := br.binding.Trigger
	return []collection.Subscription{
		trigger.Subscribe(collection.AfterInsert, h),
		trigger.Subscribe(collection.AfterUpdate, h),
		trigger.Subscribe(collection.AfterRemove, h),
	}
}

// onTrigger resolves the affected source ids of a trigger document and
// recomputes each. Vanished sources are skipped; one failing id does not
// stop the others.
func (e *Engine) onTrigger(reg *registration, br *bindingRegistration) collection.Handler {
	return func(ctx context.Context, ev collection.Event) error {
		if !reg.isActive() {
			return nil
		}

		ids, err := br.binding.Resolver(ctx, ev.Doc, ev.UserID)
		if err != nil {
			return e.hookError(reg, ev, fmt.Errorf("resolve %s %q: %w", ev.Collection, ev.ID, err))
		}
		ids = dedupeIDs(ids)
		if len(ids) == 0 {
			return nil
		}

		e.logger.Debug("trigger resolved",
			"definition", reg.def.ID,
			"trigger", ev.Collection,
			"id", ev.ID,
			"affected", len(ids))

		var errs []error
		for _, id := range ids {
			err := e.withFlow(ctx, func(ctx context.Context) error {
				_, err := e.syncDocument(ctx, reg, id, nil, ev.UserID)
				return err
			})
			if err != nil {
				errs = append(errs, err)
				if IsStepsExceededError(err) && flowFrom(ctx) != nil {
					// The enclosing flow is exhausted; every further id would fail the same way.
					break
				}
			}
		}
		return e.hookError(reg, ev, errors.Join(errs...))
	}
}

// dedupeIDs drops empty and repeated ids, keeping first-seen order.
func dedupeIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
