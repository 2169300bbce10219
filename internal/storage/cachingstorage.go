package storage

import (
	"gtd/internal/entity"
	"gtd/internal/jobs"
)

// CachingStorage decorates a backend with read-through caching. Only
// the bulk list fetches are cached; single-entity reads and all
// writes pass straight through. The cache is never touched on the
// write path, it catches up through monitor notifications, which
// keeps an optimistic local update from being applied twice.
type CachingStorage struct {
	queue   *jobs.Queue
	cache   *Cache
	backend Storage
}

func NewCachingStorage(queue *jobs.Queue, cache *Cache, backend Storage) *CachingStorage {
	return &CachingStorage{queue: queue, cache: cache, backend: backend}
}

// FetchCollections serves root-recursive fetches from the cache when
// the slot is populated, and populates the slot when such a fetch
// completes without error. Subtree and shallow fetches are never
// cached.
func (s *CachingStorage) FetchCollections(root entity.ID, depth entity.FetchDepth, types entity.ContentTypes) *CollectionFetchJob {
	cacheable := root == entity.RootCollectionID && depth == entity.Recursive

	if cacheable && s.cache.IsContentTypesPopulated(types) {
		return CompletedFetchJob(s.queue, s.cache.Collections(types))
	}

	job := s.backend.FetchCollections(root, depth, types)
	if cacheable {
		job.OnDone(func(err error, results []entity.Collection) {
			if err == nil {
				s.cache.SetCollections(types, results)
			}
		})
	}

	return job
}

func (s *CachingStorage) FetchItems(collection entity.Collection) *ItemFetchJob {
	if s.cache.IsCollectionPopulated(collection.ID) {
		return CompletedFetchJob(s.queue, s.cache.CollectionItems(collection))
	}

	job := s.backend.FetchItems(collection)
	job.OnDone(func(err error, results []entity.Item) {
		if err == nil {
			s.cache.PopulateCollection(collection, results)
		}
	})

	return job
}

func (s *CachingStorage) FetchItem(item entity.Item) *ItemFetchJob {
	return s.backend.FetchItem(item)
}

func (s *CachingStorage) FetchTagItems(tag entity.Tag) *ItemFetchJob {
	if s.cache.IsTagPopulated(tag.ID) {
		return CompletedFetchJob(s.queue, s.cache.TagItems(tag))
	}

	job := s.backend.FetchTagItems(tag)
	job.OnDone(func(err error, results []entity.Item) {
		if err == nil {
			s.cache.PopulateTag(tag, results)
		}
	})

	return job
}

func (s *CachingStorage) FetchTags() *TagFetchJob {
	if s.cache.IsTagListPopulated() {
		return CompletedFetchJob(s.queue, s.cache.Tags())
	}

	job := s.backend.FetchTags()
	job.OnDone(func(err error, results []entity.Tag) {
		if err == nil {
			s.cache.SetTags(results)
		}
	})

	return job
}

func (s *CachingStorage) CreateItem(item entity.Item, collection entity.Collection) *WriteJob {
	return s.backend.CreateItem(item, collection)
}

func (s *CachingStorage) UpdateItem(item entity.Item) *WriteJob {
	return s.backend.UpdateItem(item)
}

func (s *CachingStorage) RemoveItem(item entity.Item) *WriteJob {
	return s.backend.RemoveItem(item)
}

func (s *CachingStorage) MoveItem(item entity.Item, collection entity.Collection) *WriteJob {
	return s.backend.MoveItem(item, collection)
}

func (s *CachingStorage) CreateCollection(collection entity.Collection) *WriteJob {
	return s.backend.CreateCollection(collection)
}

func (s *CachingStorage) UpdateCollection(collection entity.Collection) *WriteJob {
	return s.backend.UpdateCollection(collection)
}

func (s *CachingStorage) RemoveCollection(collection entity.Collection) *WriteJob {
	return s.backend.RemoveCollection(collection)
}

func (s *CachingStorage) CreateTag(tag entity.Tag) *WriteJob {
	return s.backend.CreateTag(tag)
}

func (s *CachingStorage) UpdateTag(tag entity.Tag) *WriteJob {
	return s.backend.UpdateTag(tag)
}

func (s *CachingStorage) RemoveTag(tag entity.Tag) *WriteJob {
	return s.backend.RemoveTag(tag)
}

var _ Storage = (*CachingStorage)(nil)
