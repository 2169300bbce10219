package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"gtd/internal/config"
	"gtd/internal/domain"
	"gtd/internal/entity"
	"gtd/internal/jobs"
	"gtd/internal/queries"
	"gtd/internal/serializer"
	"gtd/internal/storage"
	"gtd/internal/timeutil"
)

type app struct {
	queue    *jobs.Queue
	store    storage.Storage
	attacher tagAttacher
	cfg      *config.Config

	taskQueries *queries.TaskQueries
	noteQueries *queries.NoteQueries
	ctxQueries  *queries.ContextQueries
	tagQueries  *queries.TagQueries
	taskSources *queries.DataSourceQueries
	noteSources *queries.DataSourceQueries
	artQueries  *queries.ArtifactQueries

	liner *liner.State
}

var replCommands = []string{
	"inbox", "workday", "tasks", "children", "notes", "contexts", "context",
	"tags", "tag", "sources", "select", "deselect", "default", "mksource",
	"add", "note", "done", "rm", "move", "mkcontext", "mktag", "tagitem",
	"help", "exit", "quit",
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".gtd_history")
}

func (a *app) runREPL() error {
	a.liner = liner.NewLiner()
	defer a.liner.Close()

	a.liner.SetCtrlCAborts(true)
	a.liner.SetCompleter(func(line string) []string {
		var out []string

		for _, cmd := range replCommands {
			if strings.HasPrefix(cmd, strings.ToLower(line)) {
				out = append(out, cmd)
			}
		}

		return out
	})

	if f, err := os.Open(historyFile()); err == nil {
		a.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("gtd - %s\n", timeutil.Now().Format("Mon Jan 2 2006"))
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := a.liner.Prompt("gtd> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println()

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		a.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if cmd == "exit" || cmd == "quit" || cmd == "q" {
			break
		}

		a.dispatch(cmd, args)

		// Settle everything the command set in motion: fetches,
		// notifications and the live query updates they trigger.
		a.queue.Drain()
	}

	a.saveHistory()

	return nil
}

func (a *app) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			a.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (a *app) dispatch(cmd string, args []string) {
	switch cmd {
	case "help", "?":
		a.printHelp()
	case "inbox":
		a.cmdInbox()
	case "workday":
		a.cmdWorkday()
	case "tasks":
		a.cmdTasks()
	case "children":
		a.cmdChildren(args)
	case "notes":
		a.cmdNotes()
	case "contexts":
		a.cmdContexts()
	case "context":
		a.cmdContextTasks(args)
	case "tags":
		a.cmdTags()
	case "tag":
		a.cmdTagNotes(args)
	case "sources":
		a.cmdSources()
	case "select":
		a.cmdSetSelected(args, true)
	case "deselect":
		a.cmdSetSelected(args, false)
	case "default":
		a.cmdSetDefault(args)
	case "mksource":
		a.cmdMkSource(args)
	case "add":
		a.cmdAddTask(args)
	case "note":
		a.cmdAddNote(args)
	case "done":
		a.cmdDone(args)
	case "rm":
		a.cmdRemove(args)
	case "move":
		a.cmdMove(args)
	case "mkcontext":
		a.cmdMkTag(args, entity.TagTypeContext)
	case "mktag":
		a.cmdMkTag(args, entity.TagTypePlain)
	case "tagitem":
		a.cmdTagItem(args)
	default:
		fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
	}
}

func (a *app) printHelp() {
	fmt.Println("Views:")
	fmt.Println("  inbox                        Unfiled tasks and notes")
	fmt.Println("  workday                      Tasks due or startable today")
	fmt.Println("  tasks                        Top-level tasks with their children")
	fmt.Println("  children <item-id>           Children of a task")
	fmt.Println("  notes                        All notes")
	fmt.Println("  contexts                     All contexts")
	fmt.Println("  context <tag-id>             Top-level tasks in a context")
	fmt.Println("  tags                         All plain tags")
	fmt.Println("  tag <tag-id>                 Notes carrying a tag")
	fmt.Println("  sources                      Task and note sources")
	fmt.Println()
	fmt.Println("Changes:")
	fmt.Println("  select / deselect <col-id>   Toggle a source")
	fmt.Println("  default <col-id>             Make a source the default")
	fmt.Println("  mksource <tasks|notes|both> <name>")
	fmt.Println("  add <title>                  Add a task to the default source")
	fmt.Println("  note <title>                 Add a note to the default source")
	fmt.Println("  done <item-id>               Mark a task done")
	fmt.Println("  rm <item-id>                 Remove an item")
	fmt.Println("  move <item-id> <col-id>      Move an item to another source")
	fmt.Println("  mkcontext <name>             Create a context")
	fmt.Println("  mktag <name>                 Create a plain tag")
	fmt.Println("  tagitem <item-id> <tag-id>   Attach a tag to an item")
}

// resolve triggers the query, drains the queue so the fetch settles,
// and returns the final data.
func resolve[T any](a *app, fn func() []T) []T {
	fn()
	a.queue.Drain()

	return fn()
}

func parseID(arg string) (entity.ID, bool) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		fmt.Printf("Bad id: %s\n", arg)

		return 0, false
	}

	return id, true
}

func printTask(task domain.Task, indent string) {
	box := "[ ]"
	if task.Done {
		box = "[x]"
	}

	line := fmt.Sprintf("%s%s #%d %s", indent, box, task.ItemID, task.Title)

	if !task.DueDate.IsZero() {
		line += " due:" + task.DueDate.Format("2006-01-02")
	}

	if !task.StartDate.IsZero() {
		line += " start:" + task.StartDate.Format("2006-01-02")
	}

	fmt.Println(line)
}

func (a *app) cmdInbox() {
	artifacts := resolve(a, func() []domain.Artifact { return a.artQueries.FindInboxTopLevel().Data() })
	if len(artifacts) == 0 {
		fmt.Println("Inbox is empty.")

		return
	}

	for _, artifact := range artifacts {
		kind := "task"
		if artifact.Kind == domain.ArtifactNote {
			kind = "note"
		}

		fmt.Printf("%-4s #%d %s\n", kind, artifact.ItemID(), artifact.Title())
	}
}

func (a *app) cmdWorkday() {
	tasks := resolve(a, func() []domain.Task { return a.taskQueries.FindWorkdayTopLevel().Data() })
	if len(tasks) == 0 {
		fmt.Println("Nothing scheduled for today.")

		return
	}

	for _, task := range tasks {
		printTask(task, "")
	}
}

func (a *app) cmdTasks() {
	tasks := resolve(a, func() []domain.Task { return a.taskQueries.FindTopLevel().Data() })
	if len(tasks) == 0 {
		fmt.Println("No tasks.")

		return
	}

	for _, task := range tasks {
		printTask(task, "")

		children := resolve(a, func() []domain.Task { return a.taskQueries.FindChildren(task).Data() })
		for _, child := range children {
			printTask(child, "  ")
		}
	}
}

func (a *app) cmdChildren(args []string) {
	task, ok := a.findTask(args)
	if !ok {
		return
	}

	children := resolve(a, func() []domain.Task { return a.taskQueries.FindChildren(task).Data() })
	if len(children) == 0 {
		fmt.Println("No children.")

		return
	}

	for _, child := range children {
		printTask(child, "")
	}
}

func (a *app) cmdNotes() {
	notes := resolve(a, func() []domain.Note { return a.noteQueries.FindAll().Data() })
	if len(notes) == 0 {
		fmt.Println("No notes.")

		return
	}

	for _, note := range notes {
		fmt.Printf("#%d %s\n", note.ItemID, note.Title)
	}
}

func (a *app) cmdContexts() {
	contexts := resolve(a, func() []domain.Context { return a.ctxQueries.FindAll().Data() })
	if len(contexts) == 0 {
		fmt.Println("No contexts.")

		return
	}

	for _, ctx := range contexts {
		fmt.Printf("@%d %s\n", ctx.TagID, ctx.Name)
	}
}

func (a *app) cmdContextTasks(args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: context <tag-id>")

		return
	}

	id, ok := parseID(args[0])
	if !ok {
		return
	}

	contexts := resolve(a, func() []domain.Context { return a.ctxQueries.FindAll().Data() })
	for _, ctx := range contexts {
		if ctx.TagID != id {
			continue
		}

		tasks := resolve(a, func() []domain.Task { return a.ctxQueries.FindTopLevelTasks(ctx).Data() })
		for _, task := range tasks {
			printTask(task, "")
		}

		if len(tasks) == 0 {
			fmt.Println("No tasks in this context.")
		}

		return
	}

	fmt.Printf("No context with id %d.\n", id)
}

func (a *app) cmdTags() {
	tags := resolve(a, func() []domain.Tag { return a.tagQueries.FindAll().Data() })
	if len(tags) == 0 {
		fmt.Println("No tags.")

		return
	}

	for _, tag := range tags {
		fmt.Printf("#%d %s\n", tag.TagID, tag.Name)
	}
}

func (a *app) cmdTagNotes(args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: tag <tag-id>")

		return
	}

	id, ok := parseID(args[0])
	if !ok {
		return
	}

	tags := resolve(a, func() []domain.Tag { return a.tagQueries.FindAll().Data() })
	for _, tag := range tags {
		if tag.TagID != id {
			continue
		}

		notes := resolve(a, func() []domain.Note { return a.tagQueries.FindNotes(tag).Data() })
		for _, note := range notes {
			fmt.Printf("#%d %s\n", note.ItemID, note.Title)
		}

		if len(notes) == 0 {
			fmt.Println("No notes with this tag.")
		}

		return
	}

	fmt.Printf("No tag with id %d.\n", id)
}

func (a *app) cmdSources() {
	printSources := func(label string, q *queries.DataSourceQueries) {
		sources := resolve(a, func() []domain.DataSource { return q.FindTopLevel().Data() })
		if len(sources) == 0 {
			return
		}

		fmt.Printf("%s:\n", label)

		for _, source := range sources {
			marker := " "
			if source.Selected {
				marker = "*"
			}

			suffix := ""
			if q.IsDefaultSource(source) {
				suffix = " (default)"
			}

			fmt.Printf("  %s #%d %s%s\n", marker, source.CollectionID, source.Name, suffix)

			children := resolve(a, func() []domain.DataSource { return q.FindChildren(source).Data() })
			for _, child := range children {
				childMarker := " "
				if child.Selected {
					childMarker = "*"
				}

				fmt.Printf("    %s #%d %s\n", childMarker, child.CollectionID, child.Name)
			}
		}
	}

	printSources("Task sources", a.taskSources)
	printSources("Note sources", a.noteSources)
}

func (a *app) fetchCollection(id entity.ID) (entity.Collection, bool) {
	job := a.store.FetchCollections(id, entity.Base, entity.AllContent)
	a.queue.Drain()

	if job.Err() != nil || len(job.Results()) == 0 {
		fmt.Printf("No source with id %d.\n", id)

		return entity.Collection{}, false
	}

	return job.Results()[0], true
}

func (a *app) cmdSetSelected(args []string, selected bool) {
	if len(args) != 1 {
		fmt.Println("Usage: select|deselect <col-id>")

		return
	}

	id, ok := parseID(args[0])
	if !ok {
		return
	}

	col, ok := a.fetchCollection(id)
	if !ok {
		return
	}

	col.Selected = selected

	job := a.store.UpdateCollection(col)
	a.queue.Drain()

	if job.Err() != nil {
		fmt.Printf("Update failed: %v\n", job.Err())
	}
}

func (a *app) cmdSetDefault(args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: default <col-id>")

		return
	}

	id, ok := parseID(args[0])
	if !ok {
		return
	}

	col, ok := a.fetchCollection(id)
	if !ok {
		return
	}

	source := serializer.DataSourceFromCollection(col)

	q := a.taskSources
	if col.ContentTypes == entity.Notes {
		q = a.noteSources
	}

	if err := q.SetDefaultSource(source); err != nil {
		fmt.Printf("Saving default failed: %v\n", err)
	}
}

func (a *app) cmdMkSource(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: mksource <tasks|notes|both> <name>")

		return
	}

	var types entity.ContentTypes

	switch args[0] {
	case "tasks":
		types = entity.Tasks
	case "notes":
		types = entity.Notes
	case "both":
		types = entity.Tasks | entity.Notes
	default:
		fmt.Println("Usage: mksource <tasks|notes|both> <name>")

		return
	}

	name := strings.Join(args[1:], " ")

	job := a.store.CreateCollection(entity.Collection{
		Name:         name,
		ContentTypes: types,
		Selected:     true,
	})
	a.queue.Drain()

	if job.Err() != nil {
		fmt.Printf("Create failed: %v\n", job.Err())

		return
	}

	fmt.Printf("Created source #%d.\n", job.CreatedID)
}

func (a *app) defaultCollectionFor(types entity.ContentTypes) (entity.Collection, bool) {
	id := a.cfg.DefaultTaskCollection
	if types == entity.Notes {
		id = a.cfg.DefaultNoteCollection
	}

	if id <= 0 {
		fmt.Println("No default source configured, run 'default <col-id>' first.")

		return entity.Collection{}, false
	}

	return a.fetchCollection(id)
}

func (a *app) cmdAddTask(args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: add <title>")

		return
	}

	col, ok := a.defaultCollectionFor(entity.Tasks)
	if !ok {
		return
	}

	item := serializer.ItemFromTask(domain.Task{
		UID:   serializer.NewUID(),
		Title: strings.Join(args, " "),
	})

	job := a.store.CreateItem(item, col)
	a.queue.Drain()

	if job.Err() != nil {
		fmt.Printf("Create failed: %v\n", job.Err())

		return
	}

	fmt.Printf("Created task #%d.\n", job.CreatedID)
}

func (a *app) cmdAddNote(args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: note <title>")

		return
	}

	col, ok := a.defaultCollectionFor(entity.Notes)
	if !ok {
		return
	}

	item := serializer.ItemFromNote(domain.Note{
		UID:   serializer.NewUID(),
		Title: strings.Join(args, " "),
	})

	job := a.store.CreateItem(item, col)
	a.queue.Drain()

	if job.Err() != nil {
		fmt.Printf("Create failed: %v\n", job.Err())

		return
	}

	fmt.Printf("Created note #%d.\n", job.CreatedID)
}

func (a *app) findTask(args []string) (domain.Task, bool) {
	if len(args) != 1 {
		fmt.Println("Usage: <command> <item-id>")

		return domain.Task{}, false
	}

	id, ok := parseID(args[0])
	if !ok {
		return domain.Task{}, false
	}

	job := a.store.FetchItem(entity.Item{ID: id})
	a.queue.Drain()

	if job.Err() != nil || len(job.Results()) == 0 {
		fmt.Printf("No item with id %d.\n", id)

		return domain.Task{}, false
	}

	task, isTask := serializer.TaskFromItem(job.Results()[0])
	if !isTask {
		fmt.Printf("Item #%d is not a task.\n", id)

		return domain.Task{}, false
	}

	return task, true
}

func (a *app) cmdDone(args []string) {
	task, ok := a.findTask(args)
	if !ok {
		return
	}

	task.Done = true
	task.DoneDate = timeutil.Now()

	job := a.store.UpdateItem(serializer.ItemFromTask(task))
	a.queue.Drain()

	if job.Err() != nil {
		fmt.Printf("Update failed: %v\n", job.Err())
	}
}

func (a *app) cmdRemove(args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: rm <item-id>")

		return
	}

	id, ok := parseID(args[0])
	if !ok {
		return
	}

	job := a.store.RemoveItem(entity.Item{ID: id})
	a.queue.Drain()

	if job.Err() != nil {
		fmt.Printf("Remove failed: %v\n", job.Err())
	}
}

func (a *app) cmdMove(args []string) {
	if len(args) != 2 {
		fmt.Println("Usage: move <item-id> <col-id>")

		return
	}

	itemID, ok := parseID(args[0])
	if !ok {
		return
	}

	colID, ok := parseID(args[1])
	if !ok {
		return
	}

	col, ok := a.fetchCollection(colID)
	if !ok {
		return
	}

	job := a.store.MoveItem(entity.Item{ID: itemID}, col)
	a.queue.Drain()

	if job.Err() != nil {
		fmt.Printf("Move failed: %v\n", job.Err())
	}
}

func (a *app) cmdMkTag(args []string, tagType entity.TagType) {
	if len(args) == 0 {
		fmt.Println("Usage: mkcontext|mktag <name>")

		return
	}

	name := strings.Join(args, " ")

	job := a.store.CreateTag(entity.Tag{
		GID:  serializer.NewUID(),
		Name: name,
		Type: tagType,
	})
	a.queue.Drain()

	if job.Err() != nil {
		fmt.Printf("Create failed: %v\n", job.Err())

		return
	}

	fmt.Printf("Created tag #%d.\n", job.CreatedID)
}

func (a *app) cmdTagItem(args []string) {
	if len(args) != 2 {
		fmt.Println("Usage: tagitem <item-id> <tag-id>")

		return
	}

	if a.attacher == nil {
		fmt.Println("This backend cannot attach tags.")

		return
	}

	itemID, ok := parseID(args[0])
	if !ok {
		return
	}

	tagID, ok := parseID(args[1])
	if !ok {
		return
	}

	job := a.attacher.TagItem(itemID, tagID)
	a.queue.Drain()

	if job.Err() != nil {
		fmt.Printf("Tagging failed: %v\n", job.Err())
	}
}

