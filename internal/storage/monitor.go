package storage

import "gtd/internal/entity"

// Monitor is the change-notification hub. Backends push events into
// it (from the logical thread) and interested parties register
// callbacks. Callbacks fire synchronously, in registration order, so
// the cache (registered first) is always current before any live
// query sees an event.
type Monitor struct {
	collectionAdded            []func(entity.Collection)
	collectionChanged          []func(entity.Collection)
	collectionRemoved          []func(entity.Collection)
	collectionSelectionChanged []func(entity.Collection)

	itemAdded   []func(entity.Item)
	itemChanged []func(entity.Item)
	itemRemoved []func(entity.Item)
	itemMoved   []func(entity.Item)

	tagAdded   []func(entity.Tag)
	tagChanged []func(entity.Tag)
	tagRemoved []func(entity.Tag)
}

// NewMonitor returns an empty hub.
func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) OnCollectionAdded(fn func(entity.Collection)) {
	m.collectionAdded = append(m.collectionAdded, fn)
}

func (m *Monitor) OnCollectionChanged(fn func(entity.Collection)) {
	m.collectionChanged = append(m.collectionChanged, fn)
}

func (m *Monitor) OnCollectionRemoved(fn func(entity.Collection)) {
	m.collectionRemoved = append(m.collectionRemoved, fn)
}

func (m *Monitor) OnCollectionSelectionChanged(fn func(entity.Collection)) {
	m.collectionSelectionChanged = append(m.collectionSelectionChanged, fn)
}

func (m *Monitor) OnItemAdded(fn func(entity.Item)) {
	m.itemAdded = append(m.itemAdded, fn)
}

func (m *Monitor) OnItemChanged(fn func(entity.Item)) {
	m.itemChanged = append(m.itemChanged, fn)
}

func (m *Monitor) OnItemRemoved(fn func(entity.Item)) {
	m.itemRemoved = append(m.itemRemoved, fn)
}

func (m *Monitor) OnItemMoved(fn func(entity.Item)) {
	m.itemMoved = append(m.itemMoved, fn)
}

func (m *Monitor) OnTagAdded(fn func(entity.Tag)) {
	m.tagAdded = append(m.tagAdded, fn)
}

func (m *Monitor) OnTagChanged(fn func(entity.Tag)) {
	m.tagChanged = append(m.tagChanged, fn)
}

func (m *Monitor) OnTagRemoved(fn func(entity.Tag)) {
	m.tagRemoved = append(m.tagRemoved, fn)
}

func (m *Monitor) NotifyCollectionAdded(c entity.Collection) {
	for _, fn := range m.collectionAdded {
		fn(c)
	}
}

func (m *Monitor) NotifyCollectionChanged(c entity.Collection) {
	for _, fn := range m.collectionChanged {
		fn(c)
	}
}

func (m *Monitor) NotifyCollectionRemoved(c entity.Collection) {
	for _, fn := range m.collectionRemoved {
		fn(c)
	}
}

// NotifyCollectionSelectionChanged also runs the plain change
// callbacks, since the selection flag lives on the collection record.
func (m *Monitor) NotifyCollectionSelectionChanged(c entity.Collection) {
	for _, fn := range m.collectionChanged {
		fn(c)
	}

	for _, fn := range m.collectionSelectionChanged {
		fn(c)
	}
}

func (m *Monitor) NotifyItemAdded(i entity.Item) {
	for _, fn := range m.itemAdded {
		fn(i)
	}
}

func (m *Monitor) NotifyItemChanged(i entity.Item) {
	for _, fn := range m.itemChanged {
		fn(i)
	}
}

func (m *Monitor) NotifyItemRemoved(i entity.Item) {
	for _, fn := range m.itemRemoved {
		fn(i)
	}
}

// NotifyItemMoved also runs the change callbacks: a move is a change
// of the owning collection as far as caches and queries care.
func (m *Monitor) NotifyItemMoved(i entity.Item) {
	for _, fn := range m.itemChanged {
		fn(i)
	}

	for _, fn := range m.itemMoved {
		fn(i)
	}
}

func (m *Monitor) NotifyTagAdded(t entity.Tag) {
	for _, fn := range m.tagAdded {
		fn(t)
	}
}

func (m *Monitor) NotifyTagChanged(t entity.Tag) {
	for _, fn := range m.tagChanged {
		fn(t)
	}
}

func (m *Monitor) NotifyTagRemoved(t entity.Tag) {
	for _, fn := range m.tagRemoved {
		fn(t)
	}
}
