// gtd is an interactive GTD shell over the local store.
//
// Usage:
//
//	gtd [flags]
//
// Flags:
//
//	--config <path>   Config file (default: per-user config dir)
//	--db <path>       Database file (default: per-user data dir)
//	--mem             Use a throwaway in-memory store
//
// Commands (in REPL):
//
//	inbox                          Unfiled tasks and notes
//	workday                        Tasks due or startable today
//	tasks                          Top-level tasks with their children
//	children <item-id>             Children of a task
//	notes                          All notes
//	contexts                       All contexts
//	context <tag-id>               Top-level tasks in a context
//	tags                           All plain tags
//	tag <tag-id>                   Notes carrying a tag
//	sources                        Task and note sources
//	select <col-id>                Select a source
//	deselect <col-id>              Deselect a source
//	default <col-id>               Make a source the default
//	mksource <tasks|notes|both> <name>   Create a source
//	add <title>                    Add a task to the default source
//	note <title>                   Add a note to the default source
//	done <item-id>                 Mark a task done
//	rm <item-id>                   Remove an item
//	move <item-id> <col-id>        Move an item to another source
//	mkcontext <name>               Create a context
//	mktag <name>                   Create a plain tag
//	tagitem <item-id> <tag-id>     Attach a tag to an item
//	help                           Show this help
//	exit / quit / q                Exit
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"gtd/internal/config"
	"gtd/internal/entity"
	"gtd/internal/jobs"
	"gtd/internal/queries"
	"gtd/internal/storage"
	"gtd/internal/storage/memory"
	"gtd/internal/storage/sqlite"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("gtd", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file path")
	dbPath := fs.String("db", "", "database file path")
	inMemory := fs.Bool("mem", false, "use a throwaway in-memory store")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	queue := jobs.NewQueue()
	monitor := storage.NewMonitor()

	// The cache registers its monitor handlers before the integrator
	// so it is already up to date when live queries process an event.
	cache := storage.NewCache(monitor)

	backend, closer, err := openBackend(cfg, *dbPath, *inMemory, queue, monitor)
	if err != nil {
		return err
	}

	if closer != nil {
		defer closer()
	}

	app := newApp(queue, monitor, cache, backend, &cfg)
	defer app.taskQueries.StopPolling()

	return app.runREPL()
}

func openBackend(cfg config.Config, dbPath string, inMemory bool, queue *jobs.Queue, monitor *storage.Monitor) (storage.Storage, func() error, error) {
	if inMemory {
		return memory.NewStorage(queue, monitor), nil, nil
	}

	if dbPath == "" {
		dbPath = defaultDBPath(cfg)
	}

	db, err := sqlite.Open(dbPath, queue, monitor)
	if err != nil {
		return nil, nil, err
	}

	return db, db.Close, nil
}

func defaultDBPath(cfg config.Config) string {
	if cfg.DataDir != "" {
		return cfg.DataDir + "/gtd.db"
	}

	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir + "/gtd/gtd.db"
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "gtd.db"
	}

	return home + "/.local/share/gtd/gtd.db"
}

// tagAttacher is the optional backend capability to link a tag to an
// item in one step. Both built-in backends support it.
type tagAttacher interface {
	TagItem(itemID, tagID entity.ID) *storage.WriteJob
}

var _ tagAttacher = (*memory.Storage)(nil)

var _ tagAttacher = (*sqlite.Storage)(nil)

func newApp(queue *jobs.Queue, monitor *storage.Monitor, cache *storage.Cache, backend storage.Storage, cfg *config.Config) *app {
	store := storage.NewCachingStorage(queue, cache, backend)
	integrator := queries.NewIntegrator(monitor)
	helpers := queries.NewHelpers(store)

	attacher, _ := backend.(tagAttacher)

	return &app{
		queue:       queue,
		store:       store,
		attacher:    attacher,
		cfg:         cfg,
		taskQueries: queries.NewTaskQueries(queue, helpers, integrator, cfg.PollInterval()),
		noteQueries: queries.NewNoteQueries(helpers, integrator),
		ctxQueries:  queries.NewContextQueries(helpers, integrator),
		tagQueries:  queries.NewTagQueries(helpers, integrator),
		taskSources: queries.NewDataSourceQueries(helpers, integrator, cfg, entity.Tasks),
		noteSources: queries.NewDataSourceQueries(helpers, integrator, cfg, entity.Notes),
		artQueries:  queries.NewArtifactQueries(helpers, integrator),
	}
}
