package engine

import (
	"context"
	"fmt"

	"github.com/roach88/viewsync/internal/ir"
)

// syncDocument recomputes one target document inside the flow carried by ctx.
//
// source may be nil, in which case the current source document is fetched
// and a vanished source is skipped. The write is suppressed when the output
// is Equal to the stored target.
func (e *Engine) syncDocument(ctx context.Context, reg *registration, id string, source ir.Object, userID string) (outcome, error) {
	o, err := e.syncDocumentOutcome(ctx, reg, id, source, userID)
	if err != nil {
		o = outcomeFailed
	}
	e.metrics.RecordDocument(ctx, reg.def.ID, o.String())
	return o, err
}

func (e *Engine) syncDocumentOutcome(ctx context.Context, reg *registration, id string, source ir.Object, userID string) (outcome, error) {
	def := reg.def
	f := flowFrom(ctx)

	if err := f.step(); err != nil {
		return outcomeFailed, err
	}

	if source == nil {
		doc, ok, err := def.Source.Find(ctx, id)
		if err != nil {
			return outcomeFailed, fmt.Errorf("fetch %s %q: %w", def.Source.Name(), id, err)
		}
		if !ok {
			e.logger.Debug("source document gone, skipping",
				"definition", def.ID, "id", id, "flow", f.token)
			return outcomeSkipped, nil
		}
		source = doc
	}

	out, err := e.Compute(ctx, def, source, userID)
	if err != nil {
		return outcomeFailed, err
	}

	current, exists, err := def.Target.Find(ctx, id)
	if err != nil {
		return outcomeFailed, fmt.Errorf("fetch %s %q: %w", def.Target.Name(), id, err)
	}
	// Exact comparison: an NFD to NFC edit or Int(2) to Float(2) is a change.
	if exists && ir.Equal(out, current) {
		return outcomeUnchanged, nil
	}

	hash, err := ir.ExactHash(out)
	if err != nil {
		return outcomeFailed, fmt.Errorf("hash output of %s/%s: %w", def.ID, id, err)
	}

	if e.cycles.WouldCycle(f.token, def.ID, id, hash) {
		return outcomeFailed, &CycleError{
			FlowToken:    f.token,
			DefinitionID: def.ID,
			DocumentID:   id,
			OutputHash:   hash,
		}
	}
	e.cycles.Record(f.token, def.ID, id, hash)

	if err := def.Target.Upsert(ctx, id, out); err != nil {
		return outcomeFailed, fmt.Errorf("write %s %q: %w", def.Target.Name(), id, err)
	}

	e.logger.Debug("target document written",
		"definition", def.ID, "id", id, "flow", f.token)
	return outcomeRecomputed, nil
}
