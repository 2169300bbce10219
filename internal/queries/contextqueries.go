package queries

import (
	"gtd/internal/domain"
	"gtd/internal/entity"
	"gtd/internal/serializer"
	"gtd/pkg/livequery"
)

// ContextQueries serves the GTD context views, backed by tags of the
// context type.
type ContextQueries struct {
	helpers    *Helpers
	integrator *Integrator

	findAll           *livequery.Query[entity.Tag, domain.Context]
	findTopLevelTasks map[entity.ID]*livequery.Query[entity.Item, domain.Task]
}

func NewContextQueries(helpers *Helpers, integrator *Integrator) *ContextQueries {
	q := &ContextQueries{
		helpers:           helpers,
		integrator:        integrator,
		findTopLevelTasks: make(map[entity.ID]*livequery.Query[entity.Item, domain.Task]),
	}

	integrator.AddTagRemoveHandler(func(tag entity.Tag) {
		if query, ok := q.findTopLevelTasks[tag.ID]; ok {
			query.Invalidate()
			integrator.items.unregister(query)
			delete(q.findTopLevelTasks, tag.ID)
		}
	})

	return q
}

// FindAll yields every context.
func (q *ContextQueries) FindAll() *livequery.Result[domain.Context] {
	bind(&q.integrator.tags, &q.findAll,
		q.helpers.FetchTags(),
		func(tag entity.Tag) bool { return tag.Type == entity.TagTypeContext },
		func(tag entity.Tag) domain.Context {
			ctx, _ := serializer.ContextFromTag(tag)
			return ctx
		},
		tagKey)

	return q.findAll.Result()
}

// FindTopLevelTasks yields the tasks associated with one context,
// keyed by the context's tag id. The per-context query is evicted
// when the tag is removed.
func (q *ContextQueries) FindTopLevelTasks(ctx domain.Context) *livequery.Result[domain.Task] {
	id := entity.ID(ctx.TagID)
	slot := q.findTopLevelTasks[id]

	bind(&q.integrator.items, &slot,
		q.helpers.FetchTagItems(entity.Tag{ID: id}),
		func(item entity.Item) bool {
			return serializer.IsTaskItem(item) && serializer.IsContextChild(ctx, item)
		},
		taskFromItem, itemKey)

	q.findTopLevelTasks[id] = slot

	return slot.Result()
}
