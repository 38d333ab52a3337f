package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/viewsync/internal/ir"
)

// Compute runs the two-stage pipeline for one source document and returns
// the merged output. It does not write anything.
//
//  1. output starts as a shallow copy of source
//  2. every Sync field is evaluated against source
//  3. barrier: all Sync results are merged into output in declaration order
//  4. every PostSync field is evaluated against that merged document
//  5. PostSync results are merged in declaration order
//
// Fields within a stage run with the engine's stage concurrency; with the
// default of 1 they run sequentially in declaration order. The first failing
// field cancels the rest of its stage and fails the whole computation.
func (e *Engine) Compute(ctx context.Context, def Definition, source ir.Object, userID string) (ir.Object, error) {
	start := time.Now()
	out, err := e.compute(ctx, def, source, userID)
	e.metrics.RecordCompute(ctx, def.ID, time.Since(start), err == nil)
	return out, err
}

func (e *Engine) compute(ctx context.Context, def Definition, source ir.Object, userID string) (ir.Object, error) {
	docID, _ := source.ID()
	out := source.Clone()

	stage1, err := e.runStage(ctx, def.ID, docID, StageSync, def.Sync, source, userID)
	if err != nil {
		return nil, err
	}
	mergeResults(out, def.Sync, stage1)

	if len(def.PostSync) == 0 {
		return out, nil
	}

	// Stage-2 functions all observe the same post-barrier snapshot.
	partial := out.Clone()
	stage2, err := e.runStage(ctx, def.ID, docID, StagePostSync, def.PostSync, partial, userID)
	if err != nil {
		return nil, err
	}
	mergeResults(out, def.PostSync, stage2)

	return out, nil
}

// runStage evaluates fields against doc and returns their results by index.
func (e *Engine) runStage(
	ctx context.Context,
	defID, docID string,
	stage Stage,
	fields []Field,
	doc ir.Object,
	userID string,
) ([]ir.Value, error) {
	results := make([]ir.Value, len(fields))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i, f := range fields {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &ComputeError{
						DefinitionID: defID,
						DocumentID:   docID,
						Stage:        stage,
						Field:        f.Name,
						Err:          fmt.Errorf("panic: %v", r),
					}
				}
			}()

			if err := gctx.Err(); err != nil {
				return err
			}

			v, err := f.Fn(gctx, doc, userID)
			if err != nil {
				return &ComputeError{
					DefinitionID: defID,
					DocumentID:   docID,
					Stage:        stage,
					Field:        f.Name,
					Err:          err,
				}
			}
			results[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// mergeResults assigns results onto out; a nil result removes the field.
func mergeResults(out ir.Object, fields []Field, results []ir.Value) {
	for i, f := range fields {
		if results[i] == nil {
			delete(out, f.Name)
			continue
		}
		out[f.Name] = results[i]
	}
}
