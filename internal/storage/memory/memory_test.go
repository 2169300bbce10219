package memory

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"gtd/internal/entity"
	"gtd/internal/jobs"
	"gtd/internal/storage"
)

func newFixture() (*Storage, *storage.Monitor, *jobs.Queue) {
	queue := jobs.NewQueue()
	monitor := storage.NewMonitor()

	return NewStorage(queue, monitor), monitor, queue
}

// seedCollection creates a collection and returns its assigned id.
func seedCollection(t *testing.T, s *Storage, queue *jobs.Queue, col entity.Collection) entity.ID {
	t.Helper()

	job := s.CreateCollection(col)
	queue.Drain()

	if job.Err() != nil {
		t.Fatalf("CreateCollection failed: %v", job.Err())
	}

	return job.CreatedID
}

func seedItem(t *testing.T, s *Storage, queue *jobs.Queue, item entity.Item, col entity.Collection) entity.ID {
	t.Helper()

	job := s.CreateItem(item, col)
	queue.Drain()

	if job.Err() != nil {
		t.Fatalf("CreateItem failed: %v", job.Err())
	}

	return job.CreatedID
}

func TestStorageAssignsSequentialIDs(t *testing.T) {
	t.Parallel()

	s, _, queue := newFixture()

	first := seedCollection(t, s, queue, entity.Collection{Name: "a", ContentTypes: entity.Tasks})
	second := seedCollection(t, s, queue, entity.Collection{Name: "b", ContentTypes: entity.Tasks})

	if first != 1 || second != 2 {
		t.Errorf("got ids %d, %d, want 1, 2", first, second)
	}
}

func TestStorageFetchCollectionsDepthAndMask(t *testing.T) {
	t.Parallel()

	s, _, queue := newFixture()

	top := seedCollection(t, s, queue, entity.Collection{Name: "top", ContentTypes: entity.Tasks})
	child := seedCollection(t, s, queue, entity.Collection{ParentID: top, Name: "child", ContentTypes: entity.Notes})
	grandchild := seedCollection(t, s, queue, entity.Collection{ParentID: child, Name: "grandchild", ContentTypes: entity.Tasks})

	fetchIDs := func(root entity.ID, depth entity.FetchDepth, types entity.ContentTypes) []entity.ID {
		job := s.FetchCollections(root, depth, types)
		queue.Drain()

		if job.Err() != nil {
			t.Fatalf("FetchCollections failed: %v", job.Err())
		}

		ids := make([]entity.ID, 0, len(job.Results()))
		for _, col := range job.Results() {
			ids = append(ids, col.ID)
		}

		return ids
	}

	cases := []struct {
		name  string
		root  entity.ID
		depth entity.FetchDepth
		types entity.ContentTypes
		want  []entity.ID
	}{
		{"recursive from root all content", entity.RootCollectionID, entity.Recursive, entity.AllContent, []entity.ID{top, child, grandchild}},
		{"recursive from root tasks only", entity.RootCollectionID, entity.Recursive, entity.Tasks, []entity.ID{top, grandchild}},
		{"recursive from subtree", top, entity.Recursive, entity.AllContent, []entity.ID{child, grandchild}},
		{"first level of root", entity.RootCollectionID, entity.FirstLevel, entity.AllContent, []entity.ID{top}},
		{"first level of subtree", top, entity.FirstLevel, entity.AllContent, []entity.ID{child}},
		{"base of one collection", child, entity.Base, entity.AllContent, []entity.ID{child}},
		{"base filtered out by mask", child, entity.Base, entity.Tasks, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, fetchIDs(tc.root, tc.depth, tc.types)); diff != "" {
				t.Errorf("result mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStorageBehaviorInjection(t *testing.T) {
	t.Parallel()

	s, _, queue := newFixture()

	col := entity.Collection{ID: seedCollection(t, s, queue, entity.Collection{ContentTypes: entity.Tasks})}
	seedItem(t, s, queue, entity.Item{}, col)

	boom := errors.New("boom")
	s.Behavior().SetFetchItemsError(col.ID, boom)

	failed := s.FetchItems(col)
	queue.Drain()

	if !errors.Is(failed.Err(), boom) {
		t.Fatalf("got err %v, want injected error", failed.Err())
	}

	// An error with NormalFetch still carries the data; EmptyFetch
	// suppresses it.
	if len(failed.Results()) != 1 {
		t.Errorf("normal fetch returned %d items, want 1", len(failed.Results()))
	}

	s.Behavior().SetFetchItemsBehavior(col.ID, EmptyFetch)

	empty := s.FetchItems(col)
	queue.Drain()

	if len(empty.Results()) != 0 {
		t.Errorf("empty fetch returned %d items, want 0", len(empty.Results()))
	}
}

func TestStorageWritesNotifyMonitor(t *testing.T) {
	t.Parallel()

	s, monitor, queue := newFixture()

	var added, changed, moved, removed []entity.ID

	var selectionChanges []entity.ID

	monitor.OnItemAdded(func(i entity.Item) { added = append(added, i.ID) })
	monitor.OnItemChanged(func(i entity.Item) { changed = append(changed, i.ID) })
	monitor.OnItemMoved(func(i entity.Item) { moved = append(moved, i.ID) })
	monitor.OnItemRemoved(func(i entity.Item) { removed = append(removed, i.ID) })
	monitor.OnCollectionSelectionChanged(func(c entity.Collection) { selectionChanges = append(selectionChanges, c.ID) })

	source := entity.Collection{ID: seedCollection(t, s, queue, entity.Collection{ContentTypes: entity.Tasks, Selected: true})}
	target := entity.Collection{ID: seedCollection(t, s, queue, entity.Collection{ContentTypes: entity.Tasks, Selected: true})}

	itemID := seedItem(t, s, queue, entity.Item{}, source)

	s.UpdateItem(entity.Item{ID: itemID})
	s.MoveItem(entity.Item{ID: itemID}, target)
	s.RemoveItem(entity.Item{ID: itemID})
	s.UpdateCollection(entity.Collection{ID: source.ID, ContentTypes: entity.Tasks, Selected: false})
	queue.Drain()

	if diff := cmp.Diff([]entity.ID{itemID}, added); diff != "" {
		t.Errorf("added mismatch (-want +got):\n%s", diff)
	}

	// A move also notifies as a change.
	if diff := cmp.Diff([]entity.ID{itemID, itemID}, changed); diff != "" {
		t.Errorf("changed mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]entity.ID{itemID}, moved); diff != "" {
		t.Errorf("moved mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]entity.ID{itemID}, removed); diff != "" {
		t.Errorf("removed mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]entity.ID{source.ID}, selectionChanges); diff != "" {
		t.Errorf("selection changes mismatch (-want +got):\n%s", diff)
	}
}

func TestStorageRemoveCollectionCascades(t *testing.T) {
	t.Parallel()

	s, monitor, queue := newFixture()

	var removedCollections, removedItems []entity.ID

	monitor.OnCollectionRemoved(func(c entity.Collection) { removedCollections = append(removedCollections, c.ID) })
	monitor.OnItemRemoved(func(i entity.Item) { removedItems = append(removedItems, i.ID) })

	top := seedCollection(t, s, queue, entity.Collection{ContentTypes: entity.Tasks})
	child := seedCollection(t, s, queue, entity.Collection{ParentID: top, ContentTypes: entity.Tasks})

	topItem := seedItem(t, s, queue, entity.Item{}, entity.Collection{ID: top})
	childItem := seedItem(t, s, queue, entity.Item{}, entity.Collection{ID: child})

	job := s.RemoveCollection(entity.Collection{ID: top})
	queue.Drain()

	if job.Err() != nil {
		t.Fatalf("RemoveCollection failed: %v", job.Err())
	}

	// Bottom-up: the child tree goes first.
	if diff := cmp.Diff([]entity.ID{child, top}, removedCollections); diff != "" {
		t.Errorf("removed collections mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]entity.ID{childItem, topItem}, removedItems); diff != "" {
		t.Errorf("removed items mismatch (-want +got):\n%s", diff)
	}

	fetch := s.FetchCollections(entity.RootCollectionID, entity.Recursive, entity.AllContent)
	queue.Drain()

	if len(fetch.Results()) != 0 {
		t.Errorf("%d collections survived, want 0", len(fetch.Results()))
	}
}

func TestStorageTagLifecycle(t *testing.T) {
	t.Parallel()

	s, monitor, queue := newFixture()

	var tagChangedItems []entity.ID

	monitor.OnItemChanged(func(i entity.Item) { tagChangedItems = append(tagChangedItems, i.ID) })

	col := entity.Collection{ID: seedCollection(t, s, queue, entity.Collection{ContentTypes: entity.Tasks})}
	itemID := seedItem(t, s, queue, entity.Item{}, col)

	tagJob := s.CreateTag(entity.Tag{Name: "errand", Type: entity.TagTypeContext})
	queue.Drain()

	tagID := tagJob.CreatedID

	s.TagItem(itemID, tagID)
	queue.Drain()

	if diff := cmp.Diff([]entity.ID{itemID}, tagChangedItems); diff != "" {
		t.Errorf("tag association changes mismatch (-want +got):\n%s", diff)
	}

	tagged := s.FetchTagItems(entity.Tag{ID: tagID})
	queue.Drain()

	if len(tagged.Results()) != 1 {
		t.Fatalf("tag carries %d items, want 1", len(tagged.Results()))
	}

	s.RemoveTag(entity.Tag{ID: tagID})
	queue.Drain()

	item := s.FetchItem(entity.Item{ID: itemID})
	queue.Drain()

	if item.Results()[0].HasTag(tagID) {
		t.Error("item should have lost the removed tag")
	}
}

func TestStorageRemoveTagKeepsNotifiedItemsIntact(t *testing.T) {
	t.Parallel()

	queue := jobs.NewQueue()
	monitor := storage.NewMonitor()
	cache := storage.NewCache(monitor)
	s := NewStorage(queue, monitor)

	col := entity.Collection{ID: seedCollection(t, s, queue, entity.Collection{ContentTypes: entity.Tasks})}
	itemID := seedItem(t, s, queue, entity.Item{}, col)

	firstJob := s.CreateTag(entity.Tag{Name: "errand", Type: entity.TagTypeContext})
	secondJob := s.CreateTag(entity.Tag{Name: "phone", Type: entity.TagTypeContext})
	queue.Drain()

	first, second := firstJob.CreatedID, secondJob.CreatedID

	s.TagItem(itemID, first)
	s.TagItem(itemID, second)
	queue.Drain()

	s.RemoveTag(entity.Tag{ID: first})
	queue.Drain()

	// The cache indexed the item from the change notifications; the
	// backend stripping the tag must not corrupt that indexed copy.
	if diff := cmp.Diff([]entity.ID{second}, cache.Item(itemID).TagIDs); diff != "" {
		t.Errorf("cached tag ids mismatch (-want +got):\n%s", diff)
	}

	fetch := s.FetchItem(entity.Item{ID: itemID})
	queue.Drain()

	if diff := cmp.Diff([]entity.ID{second}, fetch.Results()[0].TagIDs); diff != "" {
		t.Errorf("stored tag ids mismatch (-want +got):\n%s", diff)
	}
}

func TestStorageWriteErrors(t *testing.T) {
	t.Parallel()

	s, _, queue := newFixture()

	create := s.CreateItem(entity.Item{}, entity.Collection{ID: 99})
	update := s.UpdateItem(entity.Item{ID: 99})
	remove := s.RemoveItem(entity.Item{ID: 99})
	fetch := s.FetchItem(entity.Item{ID: 99})
	queue.Drain()

	if !errors.Is(create.Err(), errCollectionNotFound) {
		t.Errorf("create err = %v, want collection not found", create.Err())
	}

	if !errors.Is(update.Err(), errItemNotFound) {
		t.Errorf("update err = %v, want item not found", update.Err())
	}

	if !errors.Is(remove.Err(), errItemNotFound) {
		t.Errorf("remove err = %v, want item not found", remove.Err())
	}

	if !errors.Is(fetch.Err(), errItemNotFound) {
		t.Errorf("fetch err = %v, want item not found", fetch.Err())
	}
}
