package queries

import (
	"gtd/internal/domain"
	"gtd/internal/entity"
	"gtd/internal/serializer"
	"gtd/pkg/livequery"
)

// TagQueries serves the plain-label views.
type TagQueries struct {
	helpers    *Helpers
	integrator *Integrator

	findAll   *livequery.Query[entity.Tag, domain.Tag]
	findNotes map[entity.ID]*livequery.Query[entity.Item, domain.Note]
}

func NewTagQueries(helpers *Helpers, integrator *Integrator) *TagQueries {
	q := &TagQueries{
		helpers:    helpers,
		integrator: integrator,
		findNotes:  make(map[entity.ID]*livequery.Query[entity.Item, domain.Note]),
	}

	integrator.AddTagRemoveHandler(func(tag entity.Tag) {
		if query, ok := q.findNotes[tag.ID]; ok {
			query.Invalidate()
			integrator.items.unregister(query)
			delete(q.findNotes, tag.ID)
		}
	})

	return q
}

// FindAll yields every plain tag.
func (q *TagQueries) FindAll() *livequery.Result[domain.Tag] {
	bind(&q.integrator.tags, &q.findAll,
		q.helpers.FetchTags(),
		func(tag entity.Tag) bool { return tag.Type == entity.TagTypePlain },
		func(tag entity.Tag) domain.Tag {
			plain, _ := serializer.PlainTagFromEntity(tag)
			return plain
		},
		tagKey)

	return q.findAll.Result()
}

// FindNotes yields the notes carrying one tag, keyed by the tag id.
func (q *TagQueries) FindNotes(tag domain.Tag) *livequery.Result[domain.Note] {
	id := entity.ID(tag.TagID)
	slot := q.findNotes[id]

	bind(&q.integrator.items, &slot,
		q.helpers.FetchTagItems(entity.Tag{ID: id}),
		func(item entity.Item) bool {
			return serializer.IsNoteItem(item) && serializer.IsTagChild(tag, item)
		},
		noteFromItem, itemKey)

	q.findNotes[id] = slot

	return slot.Result()
}
