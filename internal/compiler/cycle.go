package compiler

import (
	"github.com/roach88/viewsync/internal/engine"
)

// Edges returns the collection dependency edges declared by specs: one
// source -> target edge per view and one trigger -> target edge per refresh
// binding.
func Edges(specs []ViewSpec) []engine.Edge {
	var edges []engine.Edge
	for _, spec := range specs {
		edges = append(edges, engine.Edge{
			From:         spec.Source,
			To:           spec.Target,
			DefinitionID: spec.ID,
			Kind:         engine.EdgeSync,
		})
		for _, b := range spec.RefreshBy {
			edges = append(edges, engine.Edge{
				From:         b.Trigger,
				To:           spec.Target,
				DefinitionID: spec.ID,
				Kind:         engine.EdgeRefresh,
			})
		}
	}
	return edges
}

// AnalyzeCycles performs static cycle analysis on view declarations before
// any of them is registered.
//
// Cycles are reported as warnings (not errors): a cycle only loops forever
// when the computed outputs never settle, and the engine stops those at run
// time. A DAG returns an empty warning list.
func AnalyzeCycles(specs []ViewSpec) []engine.CycleWarning {
	return engine.AnalyzeCycles(Edges(specs))
}
