package queries

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtd/internal/config"
	"gtd/internal/domain"
	"gtd/internal/entity"
	"gtd/internal/jobs"
	"gtd/internal/serializer"
	"gtd/internal/storage"
	"gtd/internal/storage/memory"
)

// fixture wires the full read stack: memory backend, cache, caching
// storage, integrator and the query types, all on one queue.
type fixture struct {
	queue      *jobs.Queue
	backend    *memory.Storage
	cache      *storage.Cache
	helpers    *Helpers
	integrator *Integrator
	cfg        config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	queue := jobs.NewQueue()
	monitor := storage.NewMonitor()
	cache := storage.NewCache(monitor)
	backend := memory.NewStorage(queue, monitor)
	caching := storage.NewCachingStorage(queue, cache, backend)
	integrator := NewIntegrator(monitor)

	return &fixture{
		queue:      queue,
		backend:    backend,
		cache:      cache,
		helpers:    NewHelpers(caching),
		integrator: integrator,
		cfg:        config.New(filepath.Join(t.TempDir(), "config.json")),
	}
}

func (f *fixture) taskQueries() *TaskQueries {
	return NewTaskQueries(f.queue, f.helpers, f.integrator, 0)
}

func (f *fixture) seedCollection(t *testing.T, col entity.Collection) entity.Collection {
	t.Helper()

	job := f.backend.CreateCollection(col)
	f.queue.Drain()
	require.NoError(t, job.Err())

	col.ID = job.CreatedID

	return col
}

func (f *fixture) seedTask(t *testing.T, col entity.Collection, task domain.Task) entity.ID {
	t.Helper()

	job := f.backend.CreateItem(serializer.ItemFromTask(task), col)
	f.queue.Drain()
	require.NoError(t, job.Err())

	return job.CreatedID
}

func (f *fixture) seedNote(t *testing.T, col entity.Collection, note domain.Note) entity.ID {
	t.Helper()

	job := f.backend.CreateItem(serializer.ItemFromNote(note), col)
	f.queue.Drain()
	require.NoError(t, job.Err())

	return job.CreatedID
}

func titles(tasks []domain.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.Title)
	}

	return out
}

func TestTaskQueriesTopLevelAndChildren(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tasks := f.taskQueries()

	col := f.seedCollection(t, entity.Collection{Name: "work", ContentTypes: entity.Tasks, Selected: true})

	parentID := f.seedTask(t, col, domain.Task{UID: "uid-parent", Title: "parent"})
	f.seedTask(t, col, domain.Task{UID: "uid-child-1", ParentUID: "uid-parent", Title: "child 1"})
	f.seedTask(t, col, domain.Task{UID: "uid-child-2", ParentUID: "uid-parent", Title: "child 2"})

	topLevel := tasks.FindTopLevel()
	f.queue.Drain()

	require.Equal(t, []string{"parent"}, titles(topLevel.Data()))

	parent := topLevel.Data()[0]
	require.Equal(t, parentID, parent.ItemID)

	children := tasks.FindChildren(parent)
	f.queue.Drain()

	require.Equal(t, []string{"child 1", "child 2"}, titles(children.Data()))

	// Clearing the parent relation moves the task between the two
	// results on the next event cycle.
	child := children.Data()[0]
	child.ParentUID = ""
	f.backend.UpdateItem(serializer.ItemFromTask(child))
	f.queue.Drain()

	assert.Equal(t, []string{"parent", "child 1"}, titles(topLevel.Data()))
	assert.Equal(t, []string{"child 2"}, titles(children.Data()))
}

func TestTaskQueriesRebindRecyclesLiveQuery(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tasks := f.taskQueries()

	col := f.seedCollection(t, entity.Collection{Name: "work", ContentTypes: entity.Tasks, Selected: true})
	f.seedTask(t, col, domain.Task{UID: "uid-1", Title: "one"})

	// Two calls before the first fetch resolves share one query.
	first := tasks.FindTopLevel()
	second := tasks.FindTopLevel()
	require.Same(t, first, second)

	f.queue.Drain()
	require.Equal(t, []string{"one"}, titles(first.Data()))

	// And a call after resolution still recycles.
	third := tasks.FindTopLevel()
	f.queue.Drain()

	assert.Same(t, first, third)
}

func TestTaskQueriesChildrenEvictedWhenParentRemoved(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tasks := f.taskQueries()

	col := f.seedCollection(t, entity.Collection{Name: "work", ContentTypes: entity.Tasks, Selected: true})
	parentID := f.seedTask(t, col, domain.Task{UID: "uid-parent", Title: "parent"})
	f.seedTask(t, col, domain.Task{UID: "uid-child", ParentUID: "uid-parent", Title: "child"})

	parent := domain.Task{ItemID: parentID, UID: "uid-parent"}

	first := tasks.FindChildren(parent)
	f.queue.Drain()
	require.Len(t, first.Data(), 1)

	f.backend.RemoveItem(entity.Item{ID: parentID})
	f.queue.Drain()

	// The evicted slot yields a brand-new query on the next call.
	second := tasks.FindChildren(parent)
	f.queue.Drain()

	assert.NotSame(t, first, second)
}

func TestTaskQueriesFetchFailureYieldsEmptyAndFreshCallRetries(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tasks := f.taskQueries()

	col := f.seedCollection(t, entity.Collection{Name: "work", ContentTypes: entity.Tasks, Selected: true})
	f.seedTask(t, col, domain.Task{UID: "uid-1", Title: "one"})

	boom := errors.New("boom")
	f.backend.Behavior().SetFetchItemsError(col.ID, boom)

	failed := tasks.FindAll()
	f.queue.Drain()
	require.Empty(t, failed.Data())

	// The failed query is replaced, not recycled, so the next call
	// fetches again and succeeds.
	f.backend.Behavior().SetFetchItemsError(col.ID, nil)

	retried := tasks.FindAll()
	f.queue.Drain()

	require.NotSame(t, failed, retried)
	assert.Equal(t, []string{"one"}, titles(retried.Data()))
}

func TestTaskQueriesCollectionListFailureAlsoDegradesToEmpty(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tasks := f.taskQueries()

	col := f.seedCollection(t, entity.Collection{Name: "work", ContentTypes: entity.Tasks, Selected: true})
	f.seedTask(t, col, domain.Task{UID: "uid-1", Title: "one"})

	f.backend.Behavior().SetFetchCollectionsError(entity.RootCollectionID, errors.New("boom"))
	f.backend.Behavior().SetFetchCollectionsBehavior(entity.RootCollectionID, memory.EmptyFetch)

	result := tasks.FindAll()
	f.queue.Drain()

	assert.Empty(t, result.Data())
}

func TestTaskQueriesInboxReactsToSelectionChange(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tasks := f.taskQueries()

	work := f.seedCollection(t, entity.Collection{Name: "work", ContentTypes: entity.Tasks, Selected: true})
	home := f.seedCollection(t, entity.Collection{Name: "home", ContentTypes: entity.Tasks, Selected: true})

	f.seedTask(t, work, domain.Task{UID: "uid-w", Title: "work task"})
	f.seedTask(t, home, domain.Task{UID: "uid-h", Title: "home task"})

	inbox := tasks.FindInboxTopLevel()
	f.queue.Drain()
	require.ElementsMatch(t, []string{"work task", "home task"}, titles(inbox.Data()))

	home.Selected = false
	f.backend.UpdateCollection(home)
	f.queue.Drain()

	assert.Equal(t, []string{"work task"}, titles(inbox.Data()))
}

func TestTaskQueriesLiveUpdates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tasks := f.taskQueries()

	col := f.seedCollection(t, entity.Collection{Name: "work", ContentTypes: entity.Tasks, Selected: true})

	all := tasks.FindAll()
	f.queue.Drain()
	require.Empty(t, all.Data())

	changes := 0

	var replaced []string

	all.AddWatcher(func() { changes++ })
	all.AddPostReplaceHandler(func(task domain.Task, _ int) { replaced = append(replaced, task.Title) })

	id := f.seedTask(t, col, domain.Task{UID: "uid-1", Title: "draft"})
	require.Equal(t, []string{"draft"}, titles(all.Data()))
	require.Equal(t, 1, changes)

	f.backend.UpdateItem(serializer.ItemFromTask(domain.Task{ItemID: id, UID: "uid-1", Title: "final"}))
	f.queue.Drain()

	require.Equal(t, []string{"final"}, titles(all.Data()))
	require.Equal(t, []string{"final"}, replaced)

	f.backend.RemoveItem(entity.Item{ID: id})
	f.queue.Drain()

	assert.Empty(t, all.Data())
	assert.Equal(t, 3, changes)
}

func TestTaskQueriesWorkdayBoundaries(t *testing.T) {
	// Overrides the process clock, so it cannot run in parallel.
	now := time.Date(2026, time.March, 14, 15, 0, 0, 0, time.UTC)
	t.Setenv("GTD_OVERRIDE_DATETIME", now.Format(time.RFC3339))

	f := newFixture(t)
	tasks := f.taskQueries()

	col := f.seedCollection(t, entity.Collection{Name: "work", ContentTypes: entity.Tasks, Selected: true})

	midnight := time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC)
	tomorrow := midnight.AddDate(0, 0, 1)
	yesterday := midnight.AddDate(0, 0, -1)

	f.seedTask(t, col, domain.Task{UID: "u1", Title: "starts today", StartDate: midnight})
	f.seedTask(t, col, domain.Task{UID: "u2", Title: "starts tomorrow", StartDate: tomorrow})
	f.seedTask(t, col, domain.Task{UID: "u3", Title: "overdue", DueDate: yesterday})
	f.seedTask(t, col, domain.Task{UID: "u4", Title: "done long ago", StartDate: yesterday, Done: true, DoneDate: yesterday})
	f.seedTask(t, col, domain.Task{UID: "u5", Title: "done today", Done: true, DoneDate: now})
	f.seedTask(t, col, domain.Task{UID: "u6", Title: "undated"})

	workday := tasks.FindWorkdayTopLevel()
	f.queue.Drain()

	assert.ElementsMatch(t,
		[]string{"starts today", "overdue", "done today"},
		titles(workday.Data()))
}

func TestTaskQueriesDayRolloverResetsWorkday(t *testing.T) {
	now := time.Date(2026, time.March, 14, 23, 0, 0, 0, time.UTC)
	t.Setenv("GTD_OVERRIDE_DATETIME", now.Format(time.RFC3339))

	f := newFixture(t)
	tasks := f.taskQueries()

	col := f.seedCollection(t, entity.Collection{Name: "work", ContentTypes: entity.Tasks, Selected: true})
	f.seedTask(t, col, domain.Task{UID: "u1", Title: "due tomorrow", DueDate: now.Add(2 * time.Hour)})

	workday := tasks.FindWorkdayTopLevel()
	f.queue.Drain()
	require.Empty(t, titles(workday.Data()))

	// Midnight passes.
	t.Setenv("GTD_OVERRIDE_DATETIME", now.Add(2*time.Hour).Format(time.RFC3339))
	tasks.CheckDayChange()
	f.queue.Drain()

	assert.Equal(t, []string{"due tomorrow"}, titles(workday.Data()))
}

func TestTaskQueriesPollingStopsCleanly(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tasks := NewTaskQueries(f.queue, f.helpers, f.integrator, time.Millisecond)

	// Starts the poll timer; its ticks race against StopPolling below,
	// which must be safe from any goroutine.
	tasks.FindWorkdayTopLevel()
	f.queue.Drain()

	time.Sleep(5 * time.Millisecond)

	tasks.StopPolling()
	tasks.StopPolling()

	f.queue.Drain()
	assert.Empty(t, tasks.FindWorkdayTopLevel().Data())
}

func TestNoteQueries(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	notes := NewNoteQueries(f.helpers, f.integrator)

	col := f.seedCollection(t, entity.Collection{Name: "ref", ContentTypes: entity.Notes, Selected: true})
	f.seedNote(t, col, domain.Note{UID: "n1", Title: "loose note"})
	f.seedNote(t, col, domain.Note{UID: "n2", ParentUID: "n1", Title: "attached note"})
	f.seedTask(t, col, domain.Task{UID: "t1", Title: "not a note"})

	all := notes.FindAll()
	inbox := notes.FindInboxTopLevel()
	f.queue.Drain()

	allTitles := make([]string, 0, 2)
	for _, note := range all.Data() {
		allTitles = append(allTitles, note.Title)
	}

	require.ElementsMatch(t, []string{"loose note", "attached note"}, allTitles)

	inboxTitles := make([]string, 0, 1)
	for _, note := range inbox.Data() {
		inboxTitles = append(inboxTitles, note.Title)
	}

	assert.Equal(t, []string{"loose note"}, inboxTitles)
}

func TestContextQueries(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	contexts := NewContextQueries(f.helpers, f.integrator)

	col := f.seedCollection(t, entity.Collection{Name: "work", ContentTypes: entity.Tasks, Selected: true})
	taskID := f.seedTask(t, col, domain.Task{UID: "t1", Title: "call plumber"})
	f.seedTask(t, col, domain.Task{UID: "t2", Title: "untagged"})

	ctxJob := f.backend.CreateTag(entity.Tag{Name: "phone", GID: "gid-phone", Type: entity.TagTypeContext})
	plainJob := f.backend.CreateTag(entity.Tag{Name: "someday", Type: entity.TagTypePlain})
	f.queue.Drain()

	f.backend.TagItem(taskID, ctxJob.CreatedID)
	f.queue.Drain()

	all := contexts.FindAll()
	f.queue.Drain()

	require.Len(t, all.Data(), 1)
	require.Equal(t, "phone", all.Data()[0].Name)
	require.NotEqual(t, plainJob.CreatedID, all.Data()[0].TagID)

	phone := all.Data()[0]

	tagged := contexts.FindTopLevelTasks(phone)
	f.queue.Drain()
	require.Equal(t, []string{"call plumber"}, titles(tagged.Data()))

	// Removing the tag evicts the per-context query.
	f.backend.RemoveTag(entity.Tag{ID: phone.TagID})
	f.queue.Drain()

	require.Empty(t, all.Data())

	fresh := contexts.FindTopLevelTasks(phone)
	f.queue.Drain()

	assert.NotSame(t, tagged, fresh)
	assert.Empty(t, fresh.Data())
}

func TestTagQueries(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tags := NewTagQueries(f.helpers, f.integrator)

	col := f.seedCollection(t, entity.Collection{Name: "ref", ContentTypes: entity.Notes, Selected: true})
	noteID := f.seedNote(t, col, domain.Note{UID: "n1", Title: "recipe"})

	tagJob := f.backend.CreateTag(entity.Tag{Name: "cooking", Type: entity.TagTypePlain})
	f.queue.Drain()
	f.backend.TagItem(noteID, tagJob.CreatedID)
	f.queue.Drain()

	all := tags.FindAll()
	f.queue.Drain()
	require.Len(t, all.Data(), 1)

	cooking := all.Data()[0]

	notes := tags.FindNotes(cooking)
	f.queue.Drain()

	require.Len(t, notes.Data(), 1)
	assert.Equal(t, "recipe", notes.Data()[0].Title)
}

func TestDataSourceQueries(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sources := NewDataSourceQueries(f.helpers, f.integrator, &f.cfg, entity.Tasks)

	top := f.seedCollection(t, entity.Collection{Name: "work", ContentTypes: entity.Tasks, Selected: true})
	f.seedCollection(t, entity.Collection{ParentID: top.ID, Name: "projects", ContentTypes: entity.Tasks})
	f.seedCollection(t, entity.Collection{Name: "journal", ContentTypes: entity.Notes})

	topLevel := sources.FindTopLevel()
	f.queue.Drain()

	require.Len(t, topLevel.Data(), 1)
	require.Equal(t, "work", topLevel.Data()[0].Name)

	work := topLevel.Data()[0]

	children := sources.FindChildren(work)
	f.queue.Drain()

	require.Len(t, children.Data(), 1)
	require.Equal(t, "projects", children.Data()[0].Name)

	require.False(t, sources.IsDefaultSource(work))
	require.NoError(t, sources.SetDefaultSource(work))
	assert.True(t, sources.IsDefaultSource(work))
}

func TestArtifactQueriesMixedInbox(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	artifacts := NewArtifactQueries(f.helpers, f.integrator)

	col := f.seedCollection(t, entity.Collection{Name: "in", ContentTypes: entity.Tasks | entity.Notes, Selected: true})
	f.seedTask(t, col, domain.Task{UID: "t1", Title: "a task"})
	f.seedNote(t, col, domain.Note{UID: "n1", Title: "a note"})
	f.seedTask(t, col, domain.Task{UID: "t2", ParentUID: "t1", Title: "a child task"})

	// An item that deserializes to neither kind is skipped.
	opaque := f.backend.CreateItem(entity.Item{Payload: []byte("not json")}, col)
	f.queue.Drain()
	require.NoError(t, opaque.Err())

	inbox := artifacts.FindInboxTopLevel()
	f.queue.Drain()

	got := make([]string, 0, 2)
	for _, artifact := range inbox.Data() {
		got = append(got, artifact.Title())
	}

	assert.ElementsMatch(t, []string{"a task", "a note"}, got)
}
