// Package memory provides an in-process backend. It keeps all
// entities in maps, resolves every job on the shared queue and pushes
// monitor notifications for each applied write. Tests steer it
// through Behavior to simulate failing or empty fetches per scope.
package memory

import (
	"errors"
	"sort"

	"gtd/internal/entity"
	"gtd/internal/jobs"
	"gtd/internal/storage"
)

var (
	errCollectionNotFound = errors.New("collection not found")
	errItemNotFound       = errors.New("item not found")
	errTagNotFound        = errors.New("tag not found")
)

// FetchBehavior selects what a fetch returns alongside its configured
// error.
type FetchBehavior int

const (
	NormalFetch FetchBehavior = iota
	EmptyFetch
)

// Behavior holds per-scope fault injection for fetches. The zero
// value injects nothing.
type Behavior struct {
	collectionsErr      map[entity.ID]error
	collectionsBehavior map[entity.ID]FetchBehavior
	itemsErr            map[entity.ID]error
	itemsBehavior       map[entity.ID]FetchBehavior
	itemErr             map[entity.ID]error
	tagItemsErr         map[entity.ID]error
	tagItemsBehavior    map[entity.ID]FetchBehavior
	tagsErr             error
	tagsBehavior        FetchBehavior
}

func (b *Behavior) SetFetchCollectionsError(root entity.ID, err error) {
	if b.collectionsErr == nil {
		b.collectionsErr = make(map[entity.ID]error)
	}

	b.collectionsErr[root] = err
}

func (b *Behavior) SetFetchCollectionsBehavior(root entity.ID, fb FetchBehavior) {
	if b.collectionsBehavior == nil {
		b.collectionsBehavior = make(map[entity.ID]FetchBehavior)
	}

	b.collectionsBehavior[root] = fb
}

func (b *Behavior) SetFetchItemsError(collection entity.ID, err error) {
	if b.itemsErr == nil {
		b.itemsErr = make(map[entity.ID]error)
	}

	b.itemsErr[collection] = err
}

func (b *Behavior) SetFetchItemsBehavior(collection entity.ID, fb FetchBehavior) {
	if b.itemsBehavior == nil {
		b.itemsBehavior = make(map[entity.ID]FetchBehavior)
	}

	b.itemsBehavior[collection] = fb
}

func (b *Behavior) SetFetchItemError(item entity.ID, err error) {
	if b.itemErr == nil {
		b.itemErr = make(map[entity.ID]error)
	}

	b.itemErr[item] = err
}

func (b *Behavior) SetFetchTagItemsError(tag entity.ID, err error) {
	if b.tagItemsErr == nil {
		b.tagItemsErr = make(map[entity.ID]error)
	}

	b.tagItemsErr[tag] = err
}

func (b *Behavior) SetFetchTagItemsBehavior(tag entity.ID, fb FetchBehavior) {
	if b.tagItemsBehavior == nil {
		b.tagItemsBehavior = make(map[entity.ID]FetchBehavior)
	}

	b.tagItemsBehavior[tag] = fb
}

func (b *Behavior) SetFetchTagsError(err error) {
	b.tagsErr = err
}

func (b *Behavior) SetFetchTagsBehavior(fb FetchBehavior) {
	b.tagsBehavior = fb
}

// Storage is the in-memory backend. All mutation and notification
// happens inside posted queue callbacks, so observable state only
// moves during a drain.
type Storage struct {
	queue   *jobs.Queue
	monitor *storage.Monitor

	behavior Behavior

	collections map[entity.ID]entity.Collection
	items       map[entity.ID]entity.Item
	tags        map[entity.ID]entity.Tag

	nextCollectionID entity.ID
	nextItemID       entity.ID
	nextTagID        entity.ID
}

func NewStorage(queue *jobs.Queue, monitor *storage.Monitor) *Storage {
	return &Storage{
		queue:            queue,
		monitor:          monitor,
		collections:      make(map[entity.ID]entity.Collection),
		items:            make(map[entity.ID]entity.Item),
		tags:             make(map[entity.ID]entity.Tag),
		nextCollectionID: 1,
		nextItemID:       1,
		nextTagID:        1,
	}
}

// Behavior exposes the fault injection knobs.
func (s *Storage) Behavior() *Behavior {
	return &s.behavior
}

func (s *Storage) FetchCollections(root entity.ID, depth entity.FetchDepth, types entity.ContentTypes) *storage.CollectionFetchJob {
	job := &storage.CollectionFetchJob{}
	s.queue.Post(func() {
		err := s.behavior.collectionsErr[root]

		var results []entity.Collection
		if s.behavior.collectionsBehavior[root] == NormalFetch {
			results = s.collectCollections(root, depth, types)
		}

		job.Finish(err, results)
	})

	return job
}

func (s *Storage) collectCollections(root entity.ID, depth entity.FetchDepth, types entity.ContentTypes) []entity.Collection {
	var results []entity.Collection

	switch depth {
	case entity.Base:
		if col, ok := s.collections[root]; ok && types.Matches(col.ContentTypes) {
			results = append(results, col)
		}
	case entity.FirstLevel:
		for _, col := range s.collections {
			if col.ParentID == root && types.Matches(col.ContentTypes) {
				results = append(results, col)
			}
		}
	case entity.Recursive:
		for _, col := range s.collections {
			if s.isDescendantOf(col, root) && types.Matches(col.ContentTypes) {
				results = append(results, col)
			}
		}
	}

	// Map iteration order is random, results are id-ordered.
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })

	return results
}

func (s *Storage) isDescendantOf(col entity.Collection, root entity.ID) bool {
	if root == entity.RootCollectionID {
		return true
	}

	for parent := col.ParentID; parent != entity.RootCollectionID; {
		if parent == root {
			return true
		}

		next, ok := s.collections[parent]
		if !ok {
			return false
		}

		parent = next.ParentID
	}

	return false
}

func (s *Storage) FetchItems(collection entity.Collection) *storage.ItemFetchJob {
	job := &storage.ItemFetchJob{}
	s.queue.Post(func() {
		err := s.behavior.itemsErr[collection.ID]

		var results []entity.Item
		if s.behavior.itemsBehavior[collection.ID] == NormalFetch {
			for _, item := range s.items {
				if item.CollectionID == collection.ID {
					results = append(results, item)
				}
			}
		}

		sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
		job.Finish(err, results)
	})

	return job
}

func (s *Storage) FetchItem(item entity.Item) *storage.ItemFetchJob {
	job := &storage.ItemFetchJob{}
	s.queue.Post(func() {
		if err := s.behavior.itemErr[item.ID]; err != nil {
			job.Finish(err, nil)
			return
		}

		stored, ok := s.items[item.ID]
		if !ok {
			job.Finish(errItemNotFound, nil)
			return
		}

		job.Finish(nil, []entity.Item{stored})
	})

	return job
}

func (s *Storage) FetchTagItems(tag entity.Tag) *storage.ItemFetchJob {
	job := &storage.ItemFetchJob{}
	s.queue.Post(func() {
		err := s.behavior.tagItemsErr[tag.ID]

		var results []entity.Item
		if s.behavior.tagItemsBehavior[tag.ID] == NormalFetch {
			for _, item := range s.items {
				if item.HasTag(tag.ID) {
					results = append(results, item)
				}
			}
		}

		sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
		job.Finish(err, results)
	})

	return job
}

func (s *Storage) FetchTags() *storage.TagFetchJob {
	job := &storage.TagFetchJob{}
	s.queue.Post(func() {
		var results []entity.Tag
		if s.behavior.tagsBehavior == NormalFetch {
			for _, tag := range s.tags {
				results = append(results, tag)
			}
		}

		sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
		job.Finish(s.behavior.tagsErr, results)
	})

	return job
}

func (s *Storage) CreateItem(item entity.Item, collection entity.Collection) *storage.WriteJob {
	job := &storage.WriteJob{}
	s.queue.Post(func() {
		if _, ok := s.collections[collection.ID]; !ok {
			job.Finish(errCollectionNotFound)
			return
		}

		item.ID = s.nextItemID
		s.nextItemID++
		item.CollectionID = collection.ID
		s.items[item.ID] = item

		job.CreatedID = item.ID
		s.monitor.NotifyItemAdded(item)
		job.Finish(nil)
	})

	return job
}

func (s *Storage) UpdateItem(item entity.Item) *storage.WriteJob {
	job := &storage.WriteJob{}
	s.queue.Post(func() {
		old, ok := s.items[item.ID]
		if !ok {
			job.Finish(errItemNotFound)
			return
		}

		// Updates never move items between collections, MoveItem does.
		item.CollectionID = old.CollectionID
		s.items[item.ID] = item

		s.monitor.NotifyItemChanged(item)
		job.Finish(nil)
	})

	return job
}

func (s *Storage) RemoveItem(item entity.Item) *storage.WriteJob {
	job := &storage.WriteJob{}
	s.queue.Post(func() {
		stored, ok := s.items[item.ID]
		if !ok {
			job.Finish(errItemNotFound)
			return
		}

		delete(s.items, item.ID)

		s.monitor.NotifyItemRemoved(stored)
		job.Finish(nil)
	})

	return job
}

func (s *Storage) MoveItem(item entity.Item, collection entity.Collection) *storage.WriteJob {
	job := &storage.WriteJob{}
	s.queue.Post(func() {
		stored, ok := s.items[item.ID]
		if !ok {
			job.Finish(errItemNotFound)
			return
		}

		if _, ok := s.collections[collection.ID]; !ok {
			job.Finish(errCollectionNotFound)
			return
		}

		stored.CollectionID = collection.ID
		s.items[item.ID] = stored

		s.monitor.NotifyItemMoved(stored)
		job.Finish(nil)
	})

	return job
}

func (s *Storage) CreateCollection(collection entity.Collection) *storage.WriteJob {
	job := &storage.WriteJob{}
	s.queue.Post(func() {
		collection.ID = s.nextCollectionID
		s.nextCollectionID++
		s.collections[collection.ID] = collection

		job.CreatedID = collection.ID
		s.monitor.NotifyCollectionAdded(collection)
		job.Finish(nil)
	})

	return job
}

func (s *Storage) UpdateCollection(collection entity.Collection) *storage.WriteJob {
	job := &storage.WriteJob{}
	s.queue.Post(func() {
		old, ok := s.collections[collection.ID]
		if !ok {
			job.Finish(errCollectionNotFound)
			return
		}

		s.collections[collection.ID] = collection

		if old.Selected != collection.Selected {
			s.monitor.NotifyCollectionSelectionChanged(collection)
		} else {
			s.monitor.NotifyCollectionChanged(collection)
		}

		job.Finish(nil)
	})

	return job
}

func (s *Storage) RemoveCollection(collection entity.Collection) *storage.WriteJob {
	job := &storage.WriteJob{}
	s.queue.Post(func() {
		if _, ok := s.collections[collection.ID]; !ok {
			job.Finish(errCollectionNotFound)
			return
		}

		s.removeCollectionTree(collection.ID)
		job.Finish(nil)
	})

	return job
}

// removeCollectionTree removes the collection, its descendants and
// their items, bottom-up, announcing every removal.
func (s *Storage) removeCollectionTree(id entity.ID) {
	var children []entity.ID
	for _, col := range s.collections {
		if col.ParentID == id {
			children = append(children, col.ID)
		}
	}

	sort.Slice(children, func(i, j int) bool { return children[i] < children[j] })

	for _, child := range children {
		s.removeCollectionTree(child)
	}

	var doomed []entity.ID
	for itemID, item := range s.items {
		if item.CollectionID == id {
			doomed = append(doomed, itemID)
		}
	}

	sort.Slice(doomed, func(i, j int) bool { return doomed[i] < doomed[j] })

	for _, itemID := range doomed {
		item := s.items[itemID]
		delete(s.items, itemID)
		s.monitor.NotifyItemRemoved(item)
	}

	removed := s.collections[id]
	delete(s.collections, id)
	s.monitor.NotifyCollectionRemoved(removed)
}

func (s *Storage) CreateTag(tag entity.Tag) *storage.WriteJob {
	job := &storage.WriteJob{}
	s.queue.Post(func() {
		tag.ID = s.nextTagID
		s.nextTagID++
		s.tags[tag.ID] = tag

		job.CreatedID = tag.ID
		s.monitor.NotifyTagAdded(tag)
		job.Finish(nil)
	})

	return job
}

func (s *Storage) UpdateTag(tag entity.Tag) *storage.WriteJob {
	job := &storage.WriteJob{}
	s.queue.Post(func() {
		if _, ok := s.tags[tag.ID]; !ok {
			job.Finish(errTagNotFound)
			return
		}

		s.tags[tag.ID] = tag

		s.monitor.NotifyTagChanged(tag)
		job.Finish(nil)
	})

	return job
}

func (s *Storage) RemoveTag(tag entity.Tag) *storage.WriteJob {
	job := &storage.WriteJob{}
	s.queue.Post(func() {
		stored, ok := s.tags[tag.ID]
		if !ok {
			job.Finish(errTagNotFound)
			return
		}

		delete(s.tags, tag.ID)

		for itemID, item := range s.items {
			if item.HasTag(tag.ID) {
				item.TagIDs = withoutID(item.TagIDs, tag.ID)
				s.items[itemID] = item
			}
		}

		s.monitor.NotifyTagRemoved(stored)
		job.Finish(nil)
	})

	return job
}

// TagItem attaches a tag to an item and announces the change.
func (s *Storage) TagItem(itemID, tagID entity.ID) *storage.WriteJob {
	job := &storage.WriteJob{}
	s.queue.Post(func() {
		item, ok := s.items[itemID]
		if !ok {
			job.Finish(errItemNotFound)
			return
		}

		if _, ok := s.tags[tagID]; !ok {
			job.Finish(errTagNotFound)
			return
		}

		if !item.HasTag(tagID) {
			item.TagIDs = append(item.TagIDs, tagID)
			s.items[itemID] = item
			s.monitor.NotifyItemChanged(item)
		}

		job.Finish(nil)
	})

	return job
}

// withoutID filters into a fresh slice. The input array is shared
// with earlier monitor deliveries and must not be compacted in place.
func withoutID(ids []entity.ID, id entity.ID) []entity.ID {
	out := make([]entity.ID, 0, len(ids))

	for _, candidate := range ids {
		if candidate != id {
			out = append(out, candidate)
		}
	}

	return out
}

var _ storage.Storage = (*Storage)(nil)
