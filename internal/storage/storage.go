// Package storage defines the asynchronous contract with the backing
// store (fetches and writes returning job handles, change
// notification via the Monitor hub) and layers the in-process Cache
// and the CachingStorage decorator on top of it.
package storage

import (
	"gtd/internal/entity"
	"gtd/internal/jobs"
)

// FetchJob is the handle returned by asynchronous read operations.
// Completion handlers run on the logical thread, in registration
// order; a handler registered after completion runs immediately.
type FetchJob[T any] struct {
	results  []T
	err      error
	finished bool
	handlers []func(err error, results []T)
}

// OnDone registers a completion handler.
func (j *FetchJob[T]) OnDone(fn func(err error, results []T)) {
	if j.finished {
		fn(j.err, j.results)
		return
	}

	j.handlers = append(j.handlers, fn)
}

// Finish resolves the job. Backends call this from the logical thread
// exactly once.
func (j *FetchJob[T]) Finish(err error, results []T) {
	if j.finished {
		return
	}

	j.finished = true
	j.err = err
	j.results = results

	for _, fn := range j.handlers {
		fn(err, results)
	}

	j.handlers = nil
}

// Err returns the job error, nil while unfinished or on success.
func (j *FetchJob[T]) Err() error {
	return j.err
}

// Results returns the fetched entities once finished.
func (j *FetchJob[T]) Results() []T {
	return j.results
}

// CompletedFetchJob returns a job that resolves with the given results
// on the next queue drain, so cache hits stay indistinguishable from
// real fetches.
func CompletedFetchJob[T any](queue *jobs.Queue, results []T) *FetchJob[T] {
	job := &FetchJob[T]{}
	queue.Post(func() {
		job.Finish(nil, results)
	})

	return job
}

// Concrete job shapes used by the Storage interface.
type (
	CollectionFetchJob = FetchJob[entity.Collection]
	ItemFetchJob       = FetchJob[entity.Item]
	TagFetchJob        = FetchJob[entity.Tag]
)

// WriteJob is the handle returned by mutating operations. CreatedID
// carries the store-assigned identifier for create operations.
type WriteJob struct {
	err       error
	finished  bool
	CreatedID entity.ID
	handlers  []func(error)
}

// OnDone registers a completion handler.
func (j *WriteJob) OnDone(fn func(error)) {
	if j.finished {
		fn(j.err)
		return
	}

	j.handlers = append(j.handlers, fn)
}

// Finish resolves the job.
func (j *WriteJob) Finish(err error) {
	if j.finished {
		return
	}

	j.finished = true
	j.err = err

	for _, fn := range j.handlers {
		fn(err)
	}

	j.handlers = nil
}

// Err returns the job error, nil while unfinished or on success.
func (j *WriteJob) Err() error {
	return j.err
}

// Storage is the asynchronous contract with the backing store. All
// jobs resolve on the logical thread.
type Storage interface {
	FetchCollections(root entity.ID, depth entity.FetchDepth, types entity.ContentTypes) *CollectionFetchJob
	FetchItems(collection entity.Collection) *ItemFetchJob
	FetchItem(item entity.Item) *ItemFetchJob
	FetchTagItems(tag entity.Tag) *ItemFetchJob
	FetchTags() *TagFetchJob

	CreateItem(item entity.Item, collection entity.Collection) *WriteJob
	UpdateItem(item entity.Item) *WriteJob
	RemoveItem(item entity.Item) *WriteJob
	MoveItem(item entity.Item, collection entity.Collection) *WriteJob

	CreateCollection(collection entity.Collection) *WriteJob
	UpdateCollection(collection entity.Collection) *WriteJob
	RemoveCollection(collection entity.Collection) *WriteJob

	CreateTag(tag entity.Tag) *WriteJob
	UpdateTag(tag entity.Tag) *WriteJob
	RemoveTag(tag entity.Tag) *WriteJob
}
