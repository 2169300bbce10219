// Package livequery implements incrementally maintained query
// results. A query couples an asynchronous fetch of raw entities with
// a membership predicate and a domain conversion; once the initial
// fetch resolved, monitor events keep the result current without ever
// re-fetching. Everything in this package runs on the single logical
// thread, there is no locking.
package livequery

// State is the lifecycle of a query instance.
type State int

const (
	StateCreated State = iota
	StateFetching
	StateLive
	// StateFailed queries hold an empty result and never retry on
	// their own; callers construct a replacement to retry.
	StateFailed
)

// Fetch delivers raw entities one by one through add and signals
// completion through done. Both callbacks run on the logical thread.
type Fetch[R any] func(add func(R), done func(error))

// Query maintains one live result. R is the raw entity kind the
// monitor speaks, T the domain type handed to consumers. Entities are
// tracked by the key function, which must be stable across changes to
// the same entity.
type Query[R, T any] struct {
	fetch     Fetch[R]
	predicate func(R) bool
	convert   func(R) T
	keyOf     func(R) int64

	state   State
	keys    []int64
	result  *Result[T]
	invalid bool
}

func NewQuery[R, T any](fetch Fetch[R], predicate func(R) bool, convert func(R) T, keyOf func(R) int64) *Query[R, T] {
	return &Query[R, T]{
		fetch:     fetch,
		predicate: predicate,
		convert:   convert,
		keyOf:     keyOf,
		result:    &Result[T]{},
	}
}

// Result returns the live result handle, issuing the initial fetch on
// first use.
func (q *Query[R, T]) Result() *Result[T] {
	if q.state == StateCreated {
		q.refetch()
	}

	return q.result
}

// State reports the query lifecycle state.
func (q *Query[R, T]) State() State {
	return q.state
}

// Invalidate detaches the query from further event processing. Late
// fetch completions for an invalidated query are dropped.
func (q *Query[R, T]) Invalidate() {
	q.invalid = true
}

// Reset clears the result and fetches from scratch. Used when the
// meaning of the query changed underneath it, for example after a
// data source (de)selection.
func (q *Query[R, T]) Reset() {
	if q.invalid {
		return
	}

	q.clear()
	q.refetch()
}

func (q *Query[R, T]) refetch() {
	q.state = StateFetching

	q.fetch(func(raw R) {
		if q.invalid || !q.predicate(raw) {
			return
		}

		// A monitor add may already have delivered this entity while
		// the fetch was in flight.
		if q.indexOf(q.keyOf(raw)) >= 0 {
			return
		}

		q.keys = append(q.keys, q.keyOf(raw))
		q.result.append(q.convert(raw))
	}, func(err error) {
		if q.invalid {
			return
		}

		if err != nil {
			q.state = StateFailed
			q.clear()
			return
		}

		q.state = StateLive
	})
}

// OnAdded feeds a raw-entity add event into the query.
func (q *Query[R, T]) OnAdded(raw R) {
	if q.dead() || !q.predicate(raw) {
		return
	}

	key := q.keyOf(raw)
	if q.indexOf(key) >= 0 {
		return
	}

	q.keys = append(q.keys, key)
	q.result.append(q.convert(raw))
}

// OnChanged feeds a raw-entity change event into the query. A member
// that still matches is replaced in place, a member that stopped
// matching is removed, a non-member that now matches is appended. An
// event about an unknown entity that matches counts as an add.
func (q *Query[R, T]) OnChanged(raw R) {
	if q.dead() {
		return
	}

	key := q.keyOf(raw)
	index := q.indexOf(key)
	matches := q.predicate(raw)

	switch {
	case index >= 0 && matches:
		q.result.replaceAt(index, q.convert(raw))
	case index >= 0:
		q.removeAt(index)
	case matches:
		q.keys = append(q.keys, key)
		q.result.append(q.convert(raw))
	}
}

// OnRemoved feeds a raw-entity remove event into the query.
func (q *Query[R, T]) OnRemoved(raw R) {
	if q.dead() {
		return
	}

	if index := q.indexOf(q.keyOf(raw)); index >= 0 {
		q.removeAt(index)
	}
}

func (q *Query[R, T]) dead() bool {
	return q.invalid || q.state == StateFailed
}

func (q *Query[R, T]) indexOf(key int64) int {
	for i, candidate := range q.keys {
		if candidate == key {
			return i
		}
	}

	return -1
}

func (q *Query[R, T]) removeAt(index int) {
	q.keys = append(q.keys[:index], q.keys[index+1:]...)
	q.result.removeAt(index)
}

func (q *Query[R, T]) clear() {
	q.keys = nil
	q.result.clear()
}
