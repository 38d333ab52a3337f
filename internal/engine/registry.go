package engine

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/roach88/viewsync/internal/collection"
	"github.com/roach88/viewsync/internal/ir"
)

// registration is the live state of one Definition: its hook subscriptions
// and the refresh bindings attached to it. Hook handlers hold a pointer to
// their registration and do nothing once it is inactive.
type registration struct {
	def    Definition
	active atomic.Bool

	mu       sync.Mutex
	subs     []collection.Subscription
	bindings []*bindingRegistration
}

type bindingRegistration struct {
	binding RefreshBinding
	subs    []collection.Subscription
}

func (r *registration) isActive() bool {
	return r.active.Load()
}

// teardown deactivates the registration and removes every subscription it owns.
func (r *registration) teardown() {
	r.active.Store(false)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sub := range r.subs {
		sub.Unsubscribe()
	}
	for _, b := range r.bindings {
		for _, sub := range b.subs {
			sub.Unsubscribe()
		}
	}
	r.subs = nil
	r.bindings = nil
}

// Register validates def and activates its change propagation.
//
// Validation order: IdentifierExists, SourceTargetMustDiffer,
// SyncNeedsContent, DuplicateSyncForPair. A failed registration leaves the
// registry unchanged. Collections are identified by Name().
func (e *Engine) Register(def Definition) error {
	if def.ID == "" {
		return newError(CodeInvalidArgument, "", "definition id is required")
	}
	if def.Source == nil || def.Target == nil {
		return newError(CodeInvalidArgument, def.ID, "source and target collections are required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.defs[def.ID]; exists {
		return newError(CodeIdentifierExists, def.ID, "a definition with this identifier is already registered")
	}
	if sameCollection(def.Source, def.Target) {
		return newError(CodeSourceTargetMustDiffer, def.ID, "source and target are both %q", def.Source.Name())
	}
	if len(def.Sync) == 0 {
		return newError(CodeSyncNeedsContent, def.ID, "at least one sync field is required")
	}
	for _, otherID := range e.order {
		other := e.defs[otherID].def
		if sameCollection(other.Source, def.Source) && sameCollection(other.Target, def.Target) {
			return newError(CodeDuplicateSyncForPair, def.ID, "definition %q already syncs %s -> %s",
				otherID, def.Source.Name(), def.Target.Name())
		}
	}
	if err := validateFields(def); err != nil {
		return err
	}

	reg := &registration{def: copyDefinition(def)}
	reg.active.Store(true)
	reg.subs = e.subscribeSource(reg)

	e.defs[def.ID] = reg
	e.order = append(e.order, def.ID)

	e.logger.Info("definition registered",
		"id", def.ID,
		"source", def.Source.Name(),
		"target", def.Target.Name(),
		"sync_fields", len(def.Sync),
		"post_sync_fields", len(def.PostSync))
	e.logCycleWarningsLocked()

	return nil
}

// RegisterRefreshBinding attaches a cross-collection refresh rule to an
// existing definition.
func (e *Engine) RegisterRefreshBinding(b RefreshBinding) error {
	if b.Trigger == nil || b.Resolver == nil {
		return newError(CodeInvalidArgument, b.ID, "trigger collection and resolver are required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	reg, ok := e.defs[b.ID]
	if !ok {
		return newError(CodeRefreshNeedsExistingIdentifier, b.ID, "no definition registered with this identifier")
	}
	if sameCollection(b.Trigger, reg.def.Source) {
		return newError(CodeRefreshCannotTargetSource, b.ID, "trigger %q is the definition's source", b.Trigger.Name())
	}

	br := &bindingRegistration{binding: b}
	br.subs = e.subscribeTrigger(reg, br)

	reg.mu.Lock()
	reg.bindings = append(reg.bindings, br)
	reg.mu.Unlock()

	e.logger.Info("refresh binding registered",
		"id", b.ID,
		"trigger", b.Trigger.Name(),
		"target", reg.def.Target.Name())
	e.logCycleWarningsLocked()

	return nil
}

// Deregister removes a definition and its refresh bindings and tears down
// their subscriptions. Target documents already written stay in place.
func (e *Engine) Deregister(id string) error {
	e.mu.Lock()
	reg, ok := e.defs[id]
	if !ok {
		e.mu.Unlock()
		return newError(CodeNotFound, id, "no definition registered with this identifier")
	}
	delete(e.defs, id)
	e.order = slices.DeleteFunc(e.order, func(s string) bool { return s == id })
	e.mu.Unlock()

	reg.teardown()

	e.logger.Info("definition deregistered", "id", id)
	return nil
}

// Definitions returns the registered definitions in registration order.
func (e *Engine) Definitions() []Definition {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Definition, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, copyDefinition(e.defs[id].def))
	}
	return out
}

// Bindings returns the refresh bindings attached to a definition.
func (e *Engine) Bindings(id string) ([]RefreshBinding, error) {
	reg, ok := e.lookup(id)
	if !ok {
		return nil, newError(CodeNotFound, id, "no definition registered with this identifier")
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	out := make([]RefreshBinding, len(reg.bindings))
	for i, b := range reg.bindings {
		out[i] = b.binding
	}
	return out, nil
}

// Edges returns the collection dependency edges of every registration.
func (e *Engine) Edges() []Edge {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.edgesLocked()
}

// CycleWarnings runs AnalyzeCycles over the current registrations.
func (e *Engine) CycleWarnings() []CycleWarning {
	return AnalyzeCycles(e.Edges())
}

func (e *Engine) edgesLocked() []Edge {
	var edges []Edge
	for _, id := range e.order {
		reg := e.defs[id]
		edges = append(edges, Edge{
			From:         reg.def.Source.Name(),
			To:           reg.def.Target.Name(),
			DefinitionID: id,
			Kind:         EdgeSync,
		})

		reg.mu.Lock()
		for _, b := range reg.bindings {
			edges = append(edges, Edge{
				From:         b.binding.Trigger.Name(),
				To:           reg.def.Target.Name(),
				DefinitionID: id,
				Kind:         EdgeRefresh,
			})
		}
		reg.mu.Unlock()
	}
	return edges
}

func (e *Engine) logCycleWarningsLocked() {
	for _, w := range AnalyzeCycles(e.edgesLocked()) {
		e.logger.Warn(w.Message, "path", w.Path)
	}
}

func (e *Engine) lookup(id string) (*registration, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	reg, ok := e.defs[id]
	return reg, ok
}

func validateFields(def Definition) error {
	seen := make(map[string]bool)
	check := func(stage Stage, fields []Field) error {
		clear(seen)
		for _, f := range fields {
			switch {
			case f.Name == "":
				return newError(CodeInvalidArgument, def.ID, "%s field with empty name", stage)
			case f.Name == ir.IDField:
				return newError(CodeInvalidArgument, def.ID, "%s field may not overwrite %s", stage, ir.IDField)
			case f.Fn == nil:
				return newError(CodeInvalidArgument, def.ID, "%s field %q has no function", stage, f.Name)
			case seen[f.Name]:
				return newError(CodeInvalidArgument, def.ID, "%s field %q declared twice", stage, f.Name)
			}
			seen[f.Name] = true
		}
		return nil
	}

	if err := check(StageSync, def.Sync); err != nil {
		return err
	}
	return check(StagePostSync, def.PostSync)
}

// copyDefinition copies the field slices so callers cannot reorder or
// replace fields of a registered definition.
func copyDefinition(def Definition) Definition {
	def.Sync = slices.Clone(def.Sync)
	def.PostSync = slices.Clone(def.PostSync)
	return def
}

func sameCollection(a, b collection.Collection) bool {
	return a.Name() == b.Name()
}
