package queries

import (
	"gtd/internal/domain"
	"gtd/internal/entity"
	"gtd/internal/serializer"
	"gtd/pkg/livequery"
)

func noteFromItem(item entity.Item) domain.Note {
	note, _ := serializer.NoteFromItem(item)
	return note
}

// NoteQueries serves the note-facing live queries.
type NoteQueries struct {
	helpers    *Helpers
	integrator *Integrator

	findAll   *livequery.Query[entity.Item, domain.Note]
	findInbox *livequery.Query[entity.Item, domain.Note]
}

func NewNoteQueries(helpers *Helpers, integrator *Integrator) *NoteQueries {
	q := &NoteQueries{
		helpers:    helpers,
		integrator: integrator,
	}

	integrator.AddSelectionChangedHandler(func(entity.Collection) {
		for _, query := range []*livequery.Query[entity.Item, domain.Note]{q.findAll, q.findInbox} {
			if query != nil {
				query.Reset()
			}
		}
	})

	return q
}

// FindAll yields every note in the selected collections.
func (q *NoteQueries) FindAll() *livequery.Result[domain.Note] {
	bind(&q.integrator.items, &q.findAll,
		q.helpers.FetchItemsForSelectedCollections(entity.Notes),
		serializer.IsNoteItem,
		noteFromItem, itemKey)

	return q.findAll.Result()
}

// FindInboxTopLevel yields the notes without a parent relation.
func (q *NoteQueries) FindInboxTopLevel() *livequery.Result[domain.Note] {
	bind(&q.integrator.items, &q.findInbox,
		q.helpers.FetchItemsForSelectedCollections(entity.Notes),
		func(item entity.Item) bool {
			return serializer.IsNoteItem(item) && serializer.RelatedUID(item) == ""
		},
		noteFromItem, itemKey)

	return q.findInbox.Result()
}
