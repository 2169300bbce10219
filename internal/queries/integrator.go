package queries

import (
	"gtd/internal/entity"
	"gtd/internal/storage"
	"gtd/pkg/livequery"
)

// sink is the event surface a live query exposes per raw-entity kind.
type sink[R any] interface {
	OnAdded(R)
	OnChanged(R)
	OnRemoved(R)
}

// registry fans monitor events of one entity kind out to the bound
// queries, in bind order.
type registry[R any] struct {
	sinks []sink[R]
}

func (r *registry[R]) register(s sink[R]) {
	r.sinks = append(r.sinks, s)
}

func (r *registry[R]) unregister(s sink[R]) {
	for i, candidate := range r.sinks {
		if candidate == s {
			r.sinks = append(r.sinks[:i], r.sinks[i+1:]...)
			return
		}
	}
}

func (r *registry[R]) added(raw R) {
	for _, s := range r.sinks {
		s.OnAdded(raw)
	}
}

func (r *registry[R]) changed(raw R) {
	for _, s := range r.sinks {
		s.OnChanged(raw)
	}
}

func (r *registry[R]) removed(raw R) {
	for _, s := range r.sinks {
		s.OnRemoved(raw)
	}
}

// Integrator owns the bound live queries and their subscription to
// the monitor. It must be constructed after the cache, so that the
// cache sees every event first.
type Integrator struct {
	items       registry[entity.Item]
	collections registry[entity.Collection]
	tags        registry[entity.Tag]

	itemRemoveHandlers       []func(entity.Item)
	collectionRemoveHandlers []func(entity.Collection)
	tagRemoveHandlers        []func(entity.Tag)
	selectionHandlers        []func(entity.Collection)
}

func NewIntegrator(monitor *storage.Monitor) *Integrator {
	in := &Integrator{}

	monitor.OnItemAdded(in.items.added)
	monitor.OnItemChanged(in.items.changed)
	monitor.OnItemRemoved(func(item entity.Item) {
		in.items.removed(item)

		for _, fn := range in.itemRemoveHandlers {
			fn(item)
		}
	})

	monitor.OnCollectionAdded(in.collections.added)
	monitor.OnCollectionChanged(in.collections.changed)
	monitor.OnCollectionRemoved(func(col entity.Collection) {
		in.collections.removed(col)

		for _, fn := range in.collectionRemoveHandlers {
			fn(col)
		}
	})
	monitor.OnCollectionSelectionChanged(func(col entity.Collection) {
		for _, fn := range in.selectionHandlers {
			fn(col)
		}
	})

	monitor.OnTagAdded(in.tags.added)
	monitor.OnTagChanged(in.tags.changed)
	monitor.OnTagRemoved(func(tag entity.Tag) {
		in.tags.removed(tag)

		for _, fn := range in.tagRemoveHandlers {
			fn(tag)
		}
	})

	return in
}

// AddItemRemoveHandler registers an eviction callback for per-item
// query maps. It runs after the bound queries processed the removal.
func (in *Integrator) AddItemRemoveHandler(fn func(entity.Item)) {
	in.itemRemoveHandlers = append(in.itemRemoveHandlers, fn)
}

// AddCollectionRemoveHandler registers an eviction callback for
// per-collection query maps.
func (in *Integrator) AddCollectionRemoveHandler(fn func(entity.Collection)) {
	in.collectionRemoveHandlers = append(in.collectionRemoveHandlers, fn)
}

// AddTagRemoveHandler registers an eviction callback for per-tag
// query maps.
func (in *Integrator) AddTagRemoveHandler(fn func(entity.Tag)) {
	in.tagRemoveHandlers = append(in.tagRemoveHandlers, fn)
}

// AddSelectionChangedHandler registers a callback for collection
// (de)selection, used by inbox-style queries to reset themselves.
func (in *Integrator) AddSelectionChangedHandler(fn func(entity.Collection)) {
	in.selectionHandlers = append(in.selectionHandlers, fn)
}

// bind wires a live query into slot and registers it on reg, with
// recycling: a live or fetching query in the slot stays untouched, a
// failed one is discarded and replaced by a fresh instance so callers
// can retry.
func bind[R, T any](reg *registry[R], slot **livequery.Query[R, T], fetch livequery.Fetch[R], predicate func(R) bool, convert func(R) T, keyOf func(R) int64) {
	if old := *slot; old != nil {
		if old.State() != livequery.StateFailed {
			return
		}

		old.Invalidate()
		reg.unregister(old)
	}

	query := livequery.NewQuery(fetch, predicate, convert, keyOf)
	*slot = query
	reg.register(query)
}
