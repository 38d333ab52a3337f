package collection

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Subscription is a registered hook. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// Dispatcher keeps hook subscriptions for one collection and fires them.
// Collection implementations embed it to provide Subscribe.
//
// The zero value is ready to use.
type Dispatcher struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[EventKind][]subscriber
}

type subscriber struct {
	id uint64
	h  Handler
}

// Subscribe registers h for kind. Handlers run in subscription order.
func (d *Dispatcher) Subscribe(kind EventKind, h Handler) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.subs == nil {
		d.subs = make(map[EventKind][]subscriber)
	}
	d.nextID++
	id := d.nextID
	d.subs[kind] = append(d.subs[kind], subscriber{id: id, h: h})

	return &subscription{d: d, kind: kind, id: id}
}

// Subscribers returns the number of active subscriptions for kind.
func (d *Dispatcher) Subscribers(kind EventKind) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs[kind])
}

// Fire runs every handler subscribed to ev.Kind and joins their errors.
// The handler list is snapshotted first, so handlers may subscribe or
// unsubscribe without deadlocking.
func (d *Dispatcher) Fire(ctx context.Context, ev Event) error {
	d.mu.RLock()
	handlers := make([]Handler, 0, len(d.subs[ev.Kind]))
	for _, s := range d.subs[ev.Kind] {
		handlers = append(handlers, s.h)
	}
	d.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s hooks on %s %q: %w", ev.Kind, ev.Collection, ev.ID, errors.Join(errs...))
}

func (d *Dispatcher) remove(kind EventKind, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	subs := d.subs[kind]
	for i, s := range subs {
		if s.id == id {
			d.subs[kind] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

type subscription struct {
	d    *Dispatcher
	kind EventKind
	id   uint64
	once sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() { s.d.remove(s.kind, s.id) })
}
