package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/viewsync/internal/collection"
	"github.com/roach88/viewsync/internal/ir"
)

// RefreshManually recomputes the target copies of exactly the listed source
// ids. Ids whose source document no longer exists are skipped.
//
// Each id runs in its own flow. A failing id does not stop the others; all
// failures are joined into the returned error, alongside the report.
func (e *Engine) RefreshManually(ctx context.Context, id string, ids []string) (RefreshReport, error) {
	reg, ok := e.lookup(id)
	if !ok {
		return RefreshReport{DefinitionID: id}, newError(CodeNotFound, id, "no definition registered with this identifier")
	}

	report := RefreshReport{DefinitionID: id, Requested: len(ids)}
	userID := collection.UserFrom(ctx)

	var errs []error
	for _, docID := range ids {
		o, err := e.refreshOne(ctx, reg, docID, userID, nil)
		report.add(o)
		if err != nil {
			errs = append(errs, err)
		}
	}

	e.logReport(report)
	return report, errors.Join(errs...)
}

// RefreshAll recomputes the target copy of every document currently in the
// source collection. Target documents whose source is gone are left alone.
// Running it twice without intervening writes leaves every target unchanged.
func (e *Engine) RefreshAll(ctx context.Context, id string) (RefreshReport, error) {
	reg, ok := e.lookup(id)
	if !ok {
		return RefreshReport{DefinitionID: id}, newError(CodeNotFound, id, "no definition registered with this identifier")
	}

	docs, err := reg.def.Source.FindMany(ctx, nil)
	if err != nil {
		return RefreshReport{DefinitionID: id}, fmt.Errorf("refresh all %s: %w", id, err)
	}

	report := RefreshReport{DefinitionID: id, Requested: len(docs)}
	userID := collection.UserFrom(ctx)

	var errs []error
	for _, doc := range docs {
		docID, ok := doc.ID()
		if !ok {
			report.add(outcomeSkipped)
			continue
		}
		o, err := e.refreshOne(ctx, reg, docID, userID, doc)
		report.add(o)
		if err != nil {
			errs = append(errs, err)
		}
	}

	e.logReport(report)
	return report, errors.Join(errs...)
}

// refreshOne synchronizes one document in its own flow (or the caller's).
func (e *Engine) refreshOne(ctx context.Context, reg *registration, id, userID string, source ir.Object) (outcome, error) {
	var o outcome
	err := e.withFlow(ctx, func(ctx context.Context) error {
		var err error
		o, err = e.syncDocument(ctx, reg, id, source, userID)
		return err
	})
	if err != nil {
		return outcomeFailed, fmt.Errorf("refresh %s/%s: %w", reg.def.ID, id, err)
	}
	return o, nil
}

func (e *Engine) logReport(r RefreshReport) {
	e.logger.Info("refresh finished",
		"definition", r.DefinitionID,
		"requested", r.Requested,
		"recomputed", r.Recomputed,
		"unchanged", r.Unchanged,
		"skipped", r.Skipped,
		"failed", r.Failed)
}
