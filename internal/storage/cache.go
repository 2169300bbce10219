package storage

import "gtd/internal/entity"

// Cache is the in-process mirror of the store: collections per
// content-type slot, item lists per collection and per tag, and a
// global by-id index for all three entity kinds. It registers on the
// monitor at construction and afterwards keeps itself current from
// the event stream alone.
//
// Population is tracked independently per scope: a content-type slot
// is populated only once SetCollections was called for exactly that
// mask (populating AllContent says nothing about the Tasks slot), a
// collection or tag is populated only once its item list was stored.
// Population flags only ever go back to false when the owning
// collection or tag is removed.
type Cache struct {
	collections map[entity.ID]entity.Collection
	slots       map[entity.ContentTypes][]entity.ID

	collectionItems map[entity.ID][]entity.ID // only populated collections have a key

	tags             map[entity.ID]entity.Tag
	tagList          []entity.ID
	tagListPopulated bool
	tagItems         map[entity.ID][]entity.ID // only populated tags have a key

	items map[entity.ID]entity.Item
}

// NewCache returns a cache wired to the monitor's event stream.
func NewCache(monitor *Monitor) *Cache {
	c := &Cache{
		collections:     make(map[entity.ID]entity.Collection),
		slots:           make(map[entity.ContentTypes][]entity.ID),
		collectionItems: make(map[entity.ID][]entity.ID),
		tags:            make(map[entity.ID]entity.Tag),
		tagItems:        make(map[entity.ID][]entity.ID),
		items:           make(map[entity.ID]entity.Item),
	}

	monitor.OnCollectionAdded(c.onCollectionAdded)
	monitor.OnCollectionChanged(c.onCollectionChanged)
	monitor.OnCollectionRemoved(c.onCollectionRemoved)
	monitor.OnItemAdded(c.onItemAdded)
	monitor.OnItemChanged(c.onItemChanged)
	monitor.OnItemRemoved(c.onItemRemoved)
	monitor.OnTagAdded(c.onTagAdded)
	monitor.OnTagChanged(c.onTagChanged)
	monitor.OnTagRemoved(c.onTagRemoved)

	return c
}

// IsContentTypesPopulated reports whether the slot for exactly this
// mask was ever set.
func (c *Cache) IsContentTypesPopulated(types entity.ContentTypes) bool {
	_, ok := c.slots[types]
	return ok
}

// Collections returns the cached list for the slot, empty when the
// slot was never populated.
func (c *Cache) Collections(types entity.ContentTypes) []entity.Collection {
	ids, ok := c.slots[types]
	if !ok {
		return nil
	}

	out := make([]entity.Collection, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.collections[id])
	}

	return out
}

// SetCollections replaces the slot for this mask, marks it populated
// and indexes every collection by id.
func (c *Cache) SetCollections(types entity.ContentTypes, list []entity.Collection) {
	ids := make([]entity.ID, 0, len(list))
	for _, col := range list {
		ids = append(ids, col.ID)
		c.collections[col.ID] = col
	}

	c.slots[types] = ids
}

// Collection returns the indexed collection, zero value when unknown.
func (c *Cache) Collection(id entity.ID) entity.Collection {
	return c.collections[id]
}

// IsCollectionKnown reports whether the collection is indexed.
func (c *Cache) IsCollectionKnown(id entity.ID) bool {
	_, ok := c.collections[id]
	return ok
}

// IsCollectionPopulated reports whether the collection's item list was
// fetched.
func (c *Cache) IsCollectionPopulated(id entity.ID) bool {
	_, ok := c.collectionItems[id]
	return ok
}

// CollectionItems returns the cached item list of a collection, empty
// when unpopulated.
func (c *Cache) CollectionItems(collection entity.Collection) []entity.Item {
	return c.materializeItems(c.collectionItems[collection.ID])
}

// PopulateCollection marks the collection populated, stores its item
// list and indexes every item.
func (c *Cache) PopulateCollection(collection entity.Collection, items []entity.Item) {
	ids := make([]entity.ID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
		c.items[item.ID] = item
	}

	c.collectionItems[collection.ID] = ids
}

// IsTagListPopulated reports whether the full tag list was fetched.
func (c *Cache) IsTagListPopulated() bool {
	return c.tagListPopulated
}

// Tags returns the cached tag list, empty when unpopulated.
func (c *Cache) Tags() []entity.Tag {
	out := make([]entity.Tag, 0, len(c.tagList))
	for _, id := range c.tagList {
		out = append(out, c.tags[id])
	}

	return out
}

// SetTags replaces the tag list, marks it populated and indexes every
// tag by id.
func (c *Cache) SetTags(list []entity.Tag) {
	ids := make([]entity.ID, 0, len(list))
	for _, tag := range list {
		ids = append(ids, tag.ID)
		c.tags[tag.ID] = tag
	}

	c.tagList = ids
	c.tagListPopulated = true
}

// Tag returns the indexed tag, zero value when unknown.
func (c *Cache) Tag(id entity.ID) entity.Tag {
	return c.tags[id]
}

// IsTagKnown reports whether the tag is indexed.
func (c *Cache) IsTagKnown(id entity.ID) bool {
	_, ok := c.tags[id]
	return ok
}

// IsTagPopulated reports whether the tag's item list was fetched.
func (c *Cache) IsTagPopulated(id entity.ID) bool {
	_, ok := c.tagItems[id]
	return ok
}

// TagItems returns the cached item list of a tag, empty when
// unpopulated.
func (c *Cache) TagItems(tag entity.Tag) []entity.Item {
	return c.materializeItems(c.tagItems[tag.ID])
}

// PopulateTag marks the tag populated, stores its item list and
// indexes every item.
func (c *Cache) PopulateTag(tag entity.Tag, items []entity.Item) {
	ids := make([]entity.ID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
		c.items[item.ID] = item
	}

	c.tagItems[tag.ID] = ids
}

// Item returns the indexed item, zero value when unknown.
func (c *Cache) Item(id entity.ID) entity.Item {
	return c.items[id]
}

func (c *Cache) materializeItems(ids []entity.ID) []entity.Item {
	out := make([]entity.Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.items[id])
	}

	return out
}

func (c *Cache) onCollectionAdded(col entity.Collection) {
	if _, known := c.collections[col.ID]; known {
		return
	}

	inserted := false

	for types, ids := range c.slots {
		if types.Matches(col.ContentTypes) {
			c.slots[types] = append(ids, col.ID)
			inserted = true
		}
	}

	// Not indexing collections no populated slot cares about keeps
	// Collection(id) consistent with slot membership.
	if inserted {
		c.collections[col.ID] = col
	}
}

func (c *Cache) onCollectionChanged(col entity.Collection) {
	if _, known := c.collections[col.ID]; !known {
		return
	}

	// Slot membership is deliberately not re-evaluated on content-type
	// changes; only the indexed record is refreshed.
	c.collections[col.ID] = col
}

func (c *Cache) onCollectionRemoved(col entity.Collection) {
	delete(c.collections, col.ID)

	for types, ids := range c.slots {
		c.slots[types] = removeID(ids, col.ID)
	}

	delete(c.collectionItems, col.ID)

	// Items are owned by exactly one collection, so everything that
	// pointed at the removed one goes, including its stale entries in
	// tag item lists.
	for id, item := range c.items {
		if item.CollectionID != col.ID {
			continue
		}

		delete(c.items, id)

		for tagID, tagIDs := range c.tagItems {
			c.tagItems[tagID] = removeID(tagIDs, id)
		}
	}
}

func (c *Cache) onTagAdded(tag entity.Tag) {
	if !c.tagListPopulated {
		return
	}

	if _, known := c.tags[tag.ID]; known {
		return
	}

	c.tags[tag.ID] = tag
	c.tagList = append(c.tagList, tag.ID)
}

func (c *Cache) onTagChanged(tag entity.Tag) {
	if _, known := c.tags[tag.ID]; !known {
		return
	}

	c.tags[tag.ID] = tag
}

func (c *Cache) onTagRemoved(tag entity.Tag) {
	delete(c.tags, tag.ID)
	c.tagList = removeID(c.tagList, tag.ID)
	delete(c.tagItems, tag.ID)

	// Items themselves survive tag removal, they just lose the label.
	// The tag list came in through a notification, so filter into a
	// fresh slice instead of compacting the shared array.
	for id, item := range c.items {
		if !item.HasTag(tag.ID) {
			continue
		}

		kept := make([]entity.ID, 0, len(item.TagIDs))

		for _, tagID := range item.TagIDs {
			if tagID != tag.ID {
				kept = append(kept, tagID)
			}
		}

		item.TagIDs = kept
		c.items[id] = item
	}
}

func (c *Cache) onItemAdded(item entity.Item) {
	c.items[item.ID] = item

	if ids, populated := c.collectionItems[item.CollectionID]; populated {
		c.collectionItems[item.CollectionID] = append(ids, item.ID)
	}

	for _, tagID := range item.TagIDs {
		if ids, populated := c.tagItems[tagID]; populated {
			c.tagItems[tagID] = append(ids, item.ID)
		}
	}
}

func (c *Cache) onItemChanged(item entity.Item) {
	old, known := c.items[item.ID]
	if !known {
		// Never seen before: same effect as an add, so delivery order
		// of a racy change-before-add cannot lose the item.
		c.onItemAdded(item)
		return
	}

	c.items[item.ID] = item

	if old.CollectionID != item.CollectionID {
		if ids, populated := c.collectionItems[old.CollectionID]; populated {
			c.collectionItems[old.CollectionID] = removeID(ids, item.ID)
		}

		if ids, populated := c.collectionItems[item.CollectionID]; populated {
			c.collectionItems[item.CollectionID] = append(ids, item.ID)
		}
	}

	for _, tagID := range old.TagIDs {
		if !item.HasTag(tagID) {
			if ids, populated := c.tagItems[tagID]; populated {
				c.tagItems[tagID] = removeID(ids, item.ID)
			}
		}
	}

	for _, tagID := range item.TagIDs {
		if !old.HasTag(tagID) {
			if ids, populated := c.tagItems[tagID]; populated {
				c.tagItems[tagID] = append(ids, item.ID)
			}
		}
	}
}

func (c *Cache) onItemRemoved(item entity.Item) {
	old, known := c.items[item.ID]
	if !known {
		return
	}

	delete(c.items, item.ID)

	if ids, populated := c.collectionItems[old.CollectionID]; populated {
		c.collectionItems[old.CollectionID] = removeID(ids, item.ID)
	}

	for _, tagID := range old.TagIDs {
		if ids, populated := c.tagItems[tagID]; populated {
			c.tagItems[tagID] = removeID(ids, item.ID)
		}
	}
}

func removeID(ids []entity.ID, id entity.ID) []entity.ID {
	for i, candidate := range ids {
		if candidate == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}

	return ids
}
