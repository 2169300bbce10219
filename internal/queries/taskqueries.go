package queries

import (
	"sync"
	"time"

	"gtd/internal/domain"
	"gtd/internal/entity"
	"gtd/internal/jobs"
	"gtd/internal/serializer"
	"gtd/internal/timeutil"
	"gtd/pkg/livequery"
)

func taskFromItem(item entity.Item) domain.Task {
	task, _ := serializer.TaskFromItem(item)
	return task
}

func itemKey(item entity.Item) int64 {
	return int64(item.ID)
}

func collectionKey(col entity.Collection) int64 {
	return int64(col.ID)
}

func tagKey(tag entity.Tag) int64 {
	return int64(tag.ID)
}

// TaskQueries serves the task-facing live queries: full listing, top
// level, per-task children, inbox and the date-driven workday view.
type TaskQueries struct {
	queue      *jobs.Queue
	helpers    *Helpers
	integrator *Integrator

	pollInterval time.Duration
	pollMu       sync.Mutex
	pollTimer    *time.Timer
	today        time.Time

	findAll      *livequery.Query[entity.Item, domain.Task]
	findTopLevel *livequery.Query[entity.Item, domain.Task]
	findInbox    *livequery.Query[entity.Item, domain.Task]
	findWorkday  *livequery.Query[entity.Item, domain.Task]
	findChildren map[entity.ID]*livequery.Query[entity.Item, domain.Task]
}

func NewTaskQueries(queue *jobs.Queue, helpers *Helpers, integrator *Integrator, pollInterval time.Duration) *TaskQueries {
	q := &TaskQueries{
		queue:        queue,
		helpers:      helpers,
		integrator:   integrator,
		pollInterval: pollInterval,
		today:        timeutil.StartOfDay(timeutil.Now()),
		findChildren: make(map[entity.ID]*livequery.Query[entity.Item, domain.Task]),
	}

	integrator.AddItemRemoveHandler(func(item entity.Item) {
		if child, ok := q.findChildren[item.ID]; ok {
			child.Invalidate()
			integrator.items.unregister(child)
			delete(q.findChildren, item.ID)
		}
	})

	integrator.AddSelectionChangedHandler(func(entity.Collection) {
		for _, query := range []*livequery.Query[entity.Item, domain.Task]{
			q.findAll, q.findTopLevel, q.findInbox, q.findWorkday,
		} {
			if query != nil {
				query.Reset()
			}
		}
	})

	return q
}

// FindAll yields every task in the selected collections.
func (q *TaskQueries) FindAll() *livequery.Result[domain.Task] {
	bind(&q.integrator.items, &q.findAll,
		q.helpers.FetchItemsForSelectedCollections(entity.Tasks),
		serializer.IsTaskItem,
		taskFromItem, itemKey)

	return q.findAll.Result()
}

// FindTopLevel yields the tasks without a parent relation.
func (q *TaskQueries) FindTopLevel() *livequery.Result[domain.Task] {
	bind(&q.integrator.items, &q.findTopLevel,
		q.helpers.FetchItemsForSelectedCollections(entity.Tasks),
		isTopLevelTask,
		taskFromItem, itemKey)

	return q.findTopLevel.Result()
}

// FindInboxTopLevel yields the unprocessed tasks: no parent relation,
// projects excluded.
func (q *TaskQueries) FindInboxTopLevel() *livequery.Result[domain.Task] {
	bind(&q.integrator.items, &q.findInbox,
		q.helpers.FetchItemsForSelectedCollections(entity.Tasks),
		isTopLevelTask,
		taskFromItem, itemKey)

	return q.findInbox.Result()
}

// FindChildren yields the direct children of a task, keyed by the
// parent's item id. The per-parent query is recycled across calls and
// evicted when the parent item is removed.
func (q *TaskQueries) FindChildren(task domain.Task) *livequery.Result[domain.Task] {
	id := entity.ID(task.ItemID)
	slot := q.findChildren[id]

	bind(&q.integrator.items, &slot,
		q.helpers.FetchSiblings(entity.Item{ID: id}),
		func(item entity.Item) bool { return serializer.IsTaskChild(task, item) },
		taskFromItem, itemKey)

	q.findChildren[id] = slot

	return slot.Result()
}

// FindWorkdayTopLevel yields the tasks due or startable today or
// earlier, plus those completed today.
func (q *TaskQueries) FindWorkdayTopLevel() *livequery.Result[domain.Task] {
	bind(&q.integrator.items, &q.findWorkday,
		q.helpers.FetchItemsForSelectedCollections(entity.Tasks),
		isWorkdayTask,
		taskFromItem, itemKey)

	q.ensurePolling()

	return q.findWorkday.Result()
}

func isTopLevelTask(item entity.Item) bool {
	return serializer.IsTaskItem(item) && serializer.RelatedUID(item) == ""
}

func isWorkdayTask(item entity.Item) bool {
	if !serializer.IsTaskItem(item) {
		return false
	}

	task, ok := serializer.TaskFromItem(item)
	if !ok {
		return false
	}

	return timeutil.OnWorkday(task.StartDate, task.DueDate, task.DoneDate, task.Done, timeutil.Now())
}

func (q *TaskQueries) ensurePolling() {
	q.pollMu.Lock()
	defer q.pollMu.Unlock()

	if q.pollTimer != nil || q.pollInterval <= 0 {
		return
	}

	q.pollTimer = time.AfterFunc(q.pollInterval, q.pollTick)
}

// pollTick runs on the timer goroutine; the actual day check is
// posted onto the logical thread. The timer field is shared with
// StopPolling and only touched under the mutex.
func (q *TaskQueries) pollTick() {
	q.queue.Post(q.CheckDayChange)

	q.pollMu.Lock()
	defer q.pollMu.Unlock()

	if q.pollTimer != nil {
		q.pollTimer.Reset(q.pollInterval)
	}
}

// CheckDayChange resets the workday query when the calendar day moved
// since the last check. Exposed so tests and REPL loops can force the
// rollover without waiting for the timer.
func (q *TaskQueries) CheckDayChange() {
	today := timeutil.StartOfDay(timeutil.Now())
	if today.Equal(q.today) {
		return
	}

	q.today = today

	if q.findWorkday != nil {
		q.findWorkday.Reset()
	}
}

// StopPolling cancels the workday rollover timer.
func (q *TaskQueries) StopPolling() {
	q.pollMu.Lock()
	defer q.pollMu.Unlock()

	if q.pollTimer != nil {
		q.pollTimer.Stop()
		q.pollTimer = nil
	}
}
