// Package queries assembles the domain-facing query surface. Each
// *Queries type is a thin composition of a fetch helper, a membership
// predicate and a serializer conversion over the livequery engine.
package queries

import (
	"gtd/internal/entity"
	"gtd/internal/storage"
	"gtd/pkg/livequery"
)

// Helpers builds the fetch closures handed to live queries. All of
// them go through the caching storage, so repeated binds of the same
// scope hit the cache instead of the backend.
type Helpers struct {
	storage storage.Storage
}

func NewHelpers(store storage.Storage) *Helpers {
	return &Helpers{storage: store}
}

// FetchCollections yields every collection under root carrying the
// requested content types.
func (h *Helpers) FetchCollections(root entity.ID, types entity.ContentTypes) livequery.Fetch[entity.Collection] {
	return func(add func(entity.Collection), done func(error)) {
		job := h.storage.FetchCollections(root, entity.Recursive, types)
		job.OnDone(func(err error, results []entity.Collection) {
			if err != nil {
				done(err)
				return
			}

			for _, col := range results {
				add(col)
			}

			done(nil)
		})
	}
}

// FetchCollectionItems yields the items of one collection.
func (h *Helpers) FetchCollectionItems(collection entity.Collection) livequery.Fetch[entity.Item] {
	return func(add func(entity.Item), done func(error)) {
		job := h.storage.FetchItems(collection)
		job.OnDone(func(err error, results []entity.Item) {
			if err != nil {
				done(err)
				return
			}

			for _, item := range results {
				add(item)
			}

			done(nil)
		})
	}
}

// FetchItemsForSelectedCollections yields the items of every selected
// collection carrying the requested content types. The first error of
// any involved fetch fails the whole operation.
func (h *Helpers) FetchItemsForSelectedCollections(types entity.ContentTypes) livequery.Fetch[entity.Item] {
	return func(add func(entity.Item), done func(error)) {
		colJob := h.storage.FetchCollections(entity.RootCollectionID, entity.Recursive, types)
		colJob.OnDone(func(err error, collections []entity.Collection) {
			if err != nil {
				done(err)
				return
			}

			var selected []entity.Collection
			for _, col := range collections {
				if col.Selected {
					selected = append(selected, col)
				}
			}

			if len(selected) == 0 {
				done(nil)
				return
			}

			pending := len(selected)

			var firstErr error

			for _, col := range selected {
				itemJob := h.storage.FetchItems(col)
				itemJob.OnDone(func(itemErr error, items []entity.Item) {
					if itemErr != nil {
						if firstErr == nil {
							firstErr = itemErr
						}
					} else {
						for _, item := range items {
							add(item)
						}
					}

					pending--
					if pending == 0 {
						done(firstErr)
					}
				})
			}
		})
	}
}

// FetchTagItems yields the items carrying one tag.
func (h *Helpers) FetchTagItems(tag entity.Tag) livequery.Fetch[entity.Item] {
	return func(add func(entity.Item), done func(error)) {
		job := h.storage.FetchTagItems(tag)
		job.OnDone(func(err error, results []entity.Item) {
			if err != nil {
				done(err)
				return
			}

			for _, item := range results {
				add(item)
			}

			done(nil)
		})
	}
}

// FetchTags yields every tag.
func (h *Helpers) FetchTags() livequery.Fetch[entity.Tag] {
	return func(add func(entity.Tag), done func(error)) {
		job := h.storage.FetchTags()
		job.OnDone(func(err error, results []entity.Tag) {
			if err != nil {
				done(err)
				return
			}

			for _, tag := range results {
				add(tag)
			}

			done(nil)
		})
	}
}

// FetchSiblings yields the items sharing a collection with the given
// item, the item itself included. The item is re-fetched first so a
// stale caller-side collection id cannot leak into the query.
func (h *Helpers) FetchSiblings(item entity.Item) livequery.Fetch[entity.Item] {
	return func(add func(entity.Item), done func(error)) {
		itemJob := h.storage.FetchItem(item)
		itemJob.OnDone(func(err error, results []entity.Item) {
			if err != nil {
				done(err)
				return
			}

			if len(results) == 0 {
				done(nil)
				return
			}

			collection := entity.Collection{ID: results[0].CollectionID}
			listJob := h.storage.FetchItems(collection)
			listJob.OnDone(func(listErr error, items []entity.Item) {
				if listErr != nil {
					done(listErr)
					return
				}

				for _, sibling := range items {
					add(sibling)
				}

				done(nil)
			})
		})
	}
}
