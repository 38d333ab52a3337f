package collection

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/viewsync/internal/ident"
	"github.com/roach88/viewsync/internal/ir"
	"github.com/roach88/viewsync/internal/query"
)

// Memory is an in-process Collection. Documents are deep-copied on the way in
// and on the way out, so callers never share state with the collection.
type Memory struct {
	Dispatcher

	name string
	ids  ident.Generator

	mu   sync.RWMutex
	docs map[string]ir.Object
}

// MemoryOption configures a Memory collection.
type MemoryOption func(*Memory)

// WithIDGenerator sets the generator used by Insert for documents without an id.
// The default is ident.UUIDv7.
func WithIDGenerator(g ident.Generator) MemoryOption {
	return func(m *Memory) {
		m.ids = g
	}
}

// NewMemory creates an empty in-memory collection.
func NewMemory(name string, opts ...MemoryOption) *Memory {
	m := &Memory{
		name: name,
		ids:  ident.UUIDv7{},
		docs: make(map[string]ir.Object),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Name() string {
	return m.name
}

func (m *Memory) Find(ctx context.Context, id string) (ir.Object, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[id]
	if !ok {
		return nil, false, nil
	}
	return doc.DeepCopy(), true, nil
}

func (m *Memory) FindMany(ctx context.Context, p query.Predicate) ([]ir.Object, error) {
	if err := query.Validate(p); err != nil {
		return nil, fmt.Errorf("find many in %s: %w", m.name, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.docs))
	for id, doc := range m.docs {
		if query.Match(p, doc) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	out := make([]ir.Object, len(ids))
	for i, id := range ids {
		out[i] = m.docs[id].DeepCopy()
	}
	return out, nil
}

func (m *Memory) Insert(ctx context.Context, doc ir.Object) (string, error) {
	stored := doc.DeepCopy()
	if stored == nil {
		stored = ir.Object{}
	}
	id, ok := stored.ID()
	if !ok {
		id = m.ids.Generate()
		stored[ir.IDField] = ir.String(id)
	}

	m.mu.Lock()
	if _, exists := m.docs[id]; exists {
		m.mu.Unlock()
		return "", fmt.Errorf("insert into %s: %w: %q", m.name, ErrDuplicateID, id)
	}
	m.docs[id] = stored
	m.mu.Unlock()

	return id, m.Fire(ctx, Event{
		Kind:       AfterInsert,
		Collection: m.name,
		ID:         id,
		Doc:        stored.DeepCopy(),
		UserID:     UserFrom(ctx),
	})
}

func (m *Memory) Update(ctx context.Context, id string, partial ir.Object) (int, error) {
	m.mu.Lock()
	current, ok := m.docs[id]
	if !ok {
		m.mu.Unlock()
		return 0, nil
	}
	updated := Merge(current, partial, id)
	m.docs[id] = updated
	m.mu.Unlock()

	return 1, m.Fire(ctx, Event{
		Kind:       AfterUpdate,
		Collection: m.name,
		ID:         id,
		Doc:        updated.DeepCopy(),
		UserID:     UserFrom(ctx),
	})
}

func (m *Memory) Remove(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	removed, ok := m.docs[id]
	if !ok {
		m.mu.Unlock()
		return 0, nil
	}
	delete(m.docs, id)
	m.mu.Unlock()

	return 1, m.Fire(ctx, Event{
		Kind:       AfterRemove,
		Collection: m.name,
		ID:         id,
		Doc:        removed.DeepCopy(),
		UserID:     UserFrom(ctx),
	})
}

func (m *Memory) Upsert(ctx context.Context, id string, doc ir.Object) error {
	if id == "" {
		return fmt.Errorf("upsert into %s: %w", m.name, ErrMissingID)
	}
	stored := doc.DeepCopy()
	if stored == nil {
		stored = ir.Object{}
	}
	stored[ir.IDField] = ir.String(id)

	m.mu.Lock()
	_, existed := m.docs[id]
	m.docs[id] = stored
	m.mu.Unlock()

	kind := AfterInsert
	if existed {
		kind = AfterUpdate
	}
	return m.Fire(ctx, Event{
		Kind:       kind,
		Collection: m.name,
		ID:         id,
		Doc:        stored.DeepCopy(),
		UserID:     UserFrom(ctx),
	})
}

// Len returns the number of stored documents.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Merge applies partial over current. A nil value in partial unsets
// the field; the id field is never changed.
func Merge(current, partial ir.Object, id string) ir.Object {
	out := current.Clone()
	for k, v := range partial {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = ir.DeepCopy(v)
	}
	out[ir.IDField] = ir.String(id)
	return out
}

var _ Collection = (*Memory)(nil)
