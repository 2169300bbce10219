package queries

import (
	"gtd/internal/config"
	"gtd/internal/domain"
	"gtd/internal/entity"
	"gtd/internal/serializer"
	"gtd/pkg/livequery"
)

// DataSourceQueries serves the collection browser for one content
// type (task sources or note sources) and owns the default-source
// setting through the config object.
type DataSourceQueries struct {
	helpers    *Helpers
	integrator *Integrator
	cfg        *config.Config
	types      entity.ContentTypes

	findTopLevel *livequery.Query[entity.Collection, domain.DataSource]
	findChildren map[entity.ID]*livequery.Query[entity.Collection, domain.DataSource]
}

func NewDataSourceQueries(helpers *Helpers, integrator *Integrator, cfg *config.Config, types entity.ContentTypes) *DataSourceQueries {
	q := &DataSourceQueries{
		helpers:      helpers,
		integrator:   integrator,
		cfg:          cfg,
		types:        types,
		findChildren: make(map[entity.ID]*livequery.Query[entity.Collection, domain.DataSource]),
	}

	integrator.AddCollectionRemoveHandler(func(col entity.Collection) {
		if query, ok := q.findChildren[col.ID]; ok {
			query.Invalidate()
			integrator.collections.unregister(query)
			delete(q.findChildren, col.ID)
		}
	})

	return q
}

// FindTopLevel yields the sources directly under the store root.
func (q *DataSourceQueries) FindTopLevel() *livequery.Result[domain.DataSource] {
	bind(&q.integrator.collections, &q.findTopLevel,
		q.helpers.FetchCollections(entity.RootCollectionID, q.types),
		func(col entity.Collection) bool {
			return col.ParentID == entity.RootCollectionID && q.types.Matches(col.ContentTypes)
		},
		serializer.DataSourceFromCollection, collectionKey)

	return q.findTopLevel.Result()
}

// FindChildren yields the sources nested under one source, keyed by
// its collection id.
func (q *DataSourceQueries) FindChildren(source domain.DataSource) *livequery.Result[domain.DataSource] {
	id := entity.ID(source.CollectionID)
	slot := q.findChildren[id]

	bind(&q.integrator.collections, &slot,
		q.helpers.FetchCollections(id, q.types),
		func(col entity.Collection) bool {
			return col.ParentID == id && q.types.Matches(col.ContentTypes)
		},
		serializer.DataSourceFromCollection, collectionKey)

	q.findChildren[id] = slot

	return slot.Result()
}

// IsDefaultSource reports whether the source is the configured
// default for this content type.
func (q *DataSourceQueries) IsDefaultSource(source domain.DataSource) bool {
	return q.defaultCollection() == source.CollectionID
}

// SetDefaultSource persists the source as the default for this
// content type.
func (q *DataSourceQueries) SetDefaultSource(source domain.DataSource) error {
	if q.types == entity.Notes {
		q.cfg.DefaultNoteCollection = source.CollectionID
	} else {
		q.cfg.DefaultTaskCollection = source.CollectionID
	}

	return q.cfg.Save()
}

func (q *DataSourceQueries) defaultCollection() int64 {
	if q.types == entity.Notes {
		return q.cfg.DefaultNoteCollection
	}

	return q.cfg.DefaultTaskCollection
}
