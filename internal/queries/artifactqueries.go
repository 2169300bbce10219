package queries

import (
	"gtd/internal/domain"
	"gtd/internal/entity"
	"gtd/internal/serializer"
	"gtd/pkg/livequery"
)

// ArtifactQueries serves the mixed task-and-note views.
type ArtifactQueries struct {
	helpers    *Helpers
	integrator *Integrator

	findInbox *livequery.Query[entity.Item, domain.Artifact]
}

func NewArtifactQueries(helpers *Helpers, integrator *Integrator) *ArtifactQueries {
	q := &ArtifactQueries{
		helpers:    helpers,
		integrator: integrator,
	}

	integrator.AddSelectionChangedHandler(func(entity.Collection) {
		if q.findInbox != nil {
			q.findInbox.Reset()
		}
	})

	return q
}

// FindInboxTopLevel yields the unprocessed tasks and notes of the
// selected collections in one sequence. Items that deserialize to
// neither kind are skipped.
func (q *ArtifactQueries) FindInboxTopLevel() *livequery.Result[domain.Artifact] {
	bind(&q.integrator.items, &q.findInbox,
		q.helpers.FetchItemsForSelectedCollections(entity.Tasks|entity.Notes),
		func(item entity.Item) bool {
			if serializer.IsProjectItem(item) || serializer.RelatedUID(item) != "" {
				return false
			}

			_, ok := serializer.ArtifactFromItem(item)

			return ok
		},
		func(item entity.Item) domain.Artifact {
			artifact, _ := serializer.ArtifactFromItem(item)
			return artifact
		},
		itemKey)

	return q.findInbox.Result()
}
