package livequery

// Result is the consumer-facing handle of a query. Consumers read
// snapshots and register observers; only the owning query mutates the
// sequence.
type Result[T any] struct {
	data        []T
	watchers    []func()
	postReplace []func(value T, index int)
}

// Data returns a snapshot of the current sequence. The returned slice
// is the caller's to keep.
func (r *Result[T]) Data() []T {
	out := make([]T, len(r.data))
	copy(out, r.data)

	return out
}

// AddWatcher registers fn to run after any structural change, insert,
// removal or in-place replacement.
func (r *Result[T]) AddWatcher(fn func()) {
	r.watchers = append(r.watchers, fn)
}

// AddPostReplaceHandler registers fn to run only for the in-place
// replacement branch, with the new value and its position. It does
// not fire for inserts or removals.
func (r *Result[T]) AddPostReplaceHandler(fn func(value T, index int)) {
	r.postReplace = append(r.postReplace, fn)
}

func (r *Result[T]) append(value T) {
	r.data = append(r.data, value)
	r.notify()
}

func (r *Result[T]) replaceAt(index int, value T) {
	r.data[index] = value
	r.notify()

	for _, fn := range r.postReplace {
		fn(value, index)
	}
}

func (r *Result[T]) removeAt(index int) {
	r.data = append(r.data[:index], r.data[index+1:]...)
	r.notify()
}

func (r *Result[T]) clear() {
	if len(r.data) == 0 {
		return
	}

	r.data = nil
	r.notify()
}

func (r *Result[T]) notify() {
	for _, fn := range r.watchers {
		fn()
	}
}
