// Package sqlite is the persistent backend. The database work itself
// is synchronous; every operation runs inside a posted queue callback
// so completions and monitor notifications happen on the logical
// thread, in arrival order, just like the in-memory backend.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"gtd/internal/entity"
	"gtd/internal/jobs"
	"gtd/internal/storage"
)

var (
	errDBPathEmpty        = errors.New("db path is empty")
	errCollectionNotFound = errors.New("collection not found")
	errItemNotFound       = errors.New("item not found")
	errTagNotFound        = errors.New("tag not found")
)

type Storage struct {
	db      *sql.DB
	queue   *jobs.Queue
	monitor *storage.Monitor
}

// Open opens (or creates) the database at dbPath and ensures the
// schema.
func Open(dbPath string, queue *jobs.Queue, monitor *storage.Monitor) (*Storage, error) {
	if dbPath == "" {
		return nil, errDBPathEmpty
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	s := &Storage{db: db, queue: queue, monitor: monitor}
	if schemaErr := s.ensureSchema(); schemaErr != nil {
		db.Close()
		return nil, schemaErr
	}

	return s, nil
}

func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}

	return s.db.Close()
}

func (s *Storage) ensureSchema() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS collections (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	parent_id INTEGER NOT NULL DEFAULT 0,
	name TEXT NOT NULL,
	content_types INTEGER NOT NULL DEFAULT 0,
	selected INTEGER NOT NULL DEFAULT 0,
	attributes TEXT NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	collection_id INTEGER NOT NULL,
	payload BLOB,
	modified TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	gid TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL,
	tag_type TEXT NOT NULL DEFAULT 'plain'
);
CREATE TABLE IF NOT EXISTS item_tags (
	item_id INTEGER NOT NULL,
	tag_id INTEGER NOT NULL,
	PRIMARY KEY (item_id, tag_id)
);`

	_, err := s.db.Exec(ddl)

	return err
}

func (s *Storage) loadCollections() (map[entity.ID]entity.Collection, error) {
	rows, err := s.db.Query(`SELECT id, parent_id, name, content_types, selected, attributes FROM collections ORDER BY id;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[entity.ID]entity.Collection)

	for rows.Next() {
		col, scanErr := scanCollection(rows.Scan)
		if scanErr != nil {
			return nil, scanErr
		}

		out[col.ID] = col
	}

	return out, rows.Err()
}

func (s *Storage) loadCollection(id entity.ID) (entity.Collection, error) {
	row := s.db.QueryRow(`SELECT id, parent_id, name, content_types, selected, attributes FROM collections WHERE id = ?;`, id)

	col, err := scanCollection(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Collection{}, errCollectionNotFound
		}

		return entity.Collection{}, err
	}

	return col, nil
}

func scanCollection(scan func(dest ...any) error) (entity.Collection, error) {
	var col entity.Collection

	var types int

	var selected int

	var attrs string

	if err := scan(&col.ID, &col.ParentID, &col.Name, &types, &selected, &attrs); err != nil {
		return entity.Collection{}, err
	}

	col.ContentTypes = entity.ContentTypes(types)
	col.Selected = selected != 0

	if attrs != "" && attrs != "{}" {
		if err := json.Unmarshal([]byte(attrs), &col.Attributes); err != nil {
			return entity.Collection{}, fmt.Errorf("decode collection attributes: %w", err)
		}
	}

	return col, nil
}

func encodeAttributes(attrs map[string]string) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}

	raw, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("encode collection attributes: %w", err)
	}

	return string(raw), nil
}

func (s *Storage) scanItems(rows *sql.Rows) ([]entity.Item, error) {
	defer rows.Close()

	var items []entity.Item

	for rows.Next() {
		var item entity.Item

		var modified string

		if err := rows.Scan(&item.ID, &item.CollectionID, &item.Payload, &modified); err != nil {
			return nil, err
		}

		if t, err := time.Parse(time.RFC3339Nano, modified); err == nil {
			item.Modified = t
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range items {
		tagIDs, err := s.loadItemTags(items[i].ID)
		if err != nil {
			return nil, err
		}

		items[i].TagIDs = tagIDs
	}

	return items, nil
}

func (s *Storage) loadItemTags(itemID entity.ID) ([]entity.ID, error) {
	rows, err := s.db.Query(`SELECT tag_id FROM item_tags WHERE item_id = ? ORDER BY tag_id;`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []entity.ID

	for rows.Next() {
		var id entity.ID

		if scanErr := rows.Scan(&id); scanErr != nil {
			return nil, scanErr
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (s *Storage) loadItem(id entity.ID) (entity.Item, error) {
	rows, err := s.db.Query(`SELECT id, collection_id, payload, modified FROM items WHERE id = ?;`, id)
	if err != nil {
		return entity.Item{}, err
	}

	items, err := s.scanItems(rows)
	if err != nil {
		return entity.Item{}, err
	}

	if len(items) == 0 {
		return entity.Item{}, errItemNotFound
	}

	return items[0], nil
}

func (s *Storage) FetchCollections(root entity.ID, depth entity.FetchDepth, types entity.ContentTypes) *storage.CollectionFetchJob {
	job := &storage.CollectionFetchJob{}
	s.queue.Post(func() {
		all, err := s.loadCollections()
		if err != nil {
			job.Finish(fmt.Errorf("fetch collections: %w", err), nil)
			return
		}

		var results []entity.Collection

		for _, col := range all {
			if !types.Matches(col.ContentTypes) {
				continue
			}

			switch depth {
			case entity.Base:
				if col.ID == root {
					results = append(results, col)
				}
			case entity.FirstLevel:
				if col.ParentID == root {
					results = append(results, col)
				}
			case entity.Recursive:
				if isDescendantOf(all, col, root) {
					results = append(results, col)
				}
			}
		}

		sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
		job.Finish(nil, results)
	})

	return job
}

func isDescendantOf(all map[entity.ID]entity.Collection, col entity.Collection, root entity.ID) bool {
	if root == entity.RootCollectionID {
		return true
	}

	for parent := col.ParentID; parent != entity.RootCollectionID; {
		if parent == root {
			return true
		}

		next, ok := all[parent]
		if !ok {
			return false
		}

		parent = next.ParentID
	}

	return false
}

func (s *Storage) FetchItems(collection entity.Collection) *storage.ItemFetchJob {
	job := &storage.ItemFetchJob{}
	s.queue.Post(func() {
		rows, err := s.db.Query(`SELECT id, collection_id, payload, modified FROM items WHERE collection_id = ? ORDER BY id;`, collection.ID)
		if err != nil {
			job.Finish(fmt.Errorf("fetch items: %w", err), nil)
			return
		}

		items, scanErr := s.scanItems(rows)
		if scanErr != nil {
			job.Finish(fmt.Errorf("fetch items: %w", scanErr), nil)
			return
		}

		job.Finish(nil, items)
	})

	return job
}

func (s *Storage) FetchItem(item entity.Item) *storage.ItemFetchJob {
	job := &storage.ItemFetchJob{}
	s.queue.Post(func() {
		stored, err := s.loadItem(item.ID)
		if err != nil {
			job.Finish(err, nil)
			return
		}

		job.Finish(nil, []entity.Item{stored})
	})

	return job
}

func (s *Storage) FetchTagItems(tag entity.Tag) *storage.ItemFetchJob {
	job := &storage.ItemFetchJob{}
	s.queue.Post(func() {
		rows, err := s.db.Query(`
SELECT i.id, i.collection_id, i.payload, i.modified
FROM items i JOIN item_tags it ON it.item_id = i.id
WHERE it.tag_id = ? ORDER BY i.id;`, tag.ID)
		if err != nil {
			job.Finish(fmt.Errorf("fetch tag items: %w", err), nil)
			return
		}

		items, scanErr := s.scanItems(rows)
		if scanErr != nil {
			job.Finish(fmt.Errorf("fetch tag items: %w", scanErr), nil)
			return
		}

		job.Finish(nil, items)
	})

	return job
}

func (s *Storage) FetchTags() *storage.TagFetchJob {
	job := &storage.TagFetchJob{}
	s.queue.Post(func() {
		rows, err := s.db.Query(`SELECT id, gid, name, tag_type FROM tags ORDER BY id;`)
		if err != nil {
			job.Finish(fmt.Errorf("fetch tags: %w", err), nil)
			return
		}
		defer rows.Close()

		var tags []entity.Tag

		for rows.Next() {
			var tag entity.Tag

			var tagType string

			if scanErr := rows.Scan(&tag.ID, &tag.GID, &tag.Name, &tagType); scanErr != nil {
				job.Finish(fmt.Errorf("fetch tags: %w", scanErr), nil)
				return
			}

			tag.Type = entity.TagType(tagType)
			tags = append(tags, tag)
		}

		job.Finish(rows.Err(), tags)
	})

	return job
}

func (s *Storage) CreateItem(item entity.Item, collection entity.Collection) *storage.WriteJob {
	job := &storage.WriteJob{}
	s.queue.Post(func() {
		if _, err := s.loadCollection(collection.ID); err != nil {
			job.Finish(err)
			return
		}

		res, err := s.db.Exec(`INSERT INTO items (collection_id, payload, modified) VALUES (?, ?, ?);`,
			collection.ID, item.Payload, time.Now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			job.Finish(fmt.Errorf("create item: %w", err))
			return
		}

		id, _ := res.LastInsertId()
		job.CreatedID = id

		stored, loadErr := s.loadItem(id)
		if loadErr != nil {
			job.Finish(loadErr)
			return
		}

		s.monitor.NotifyItemAdded(stored)
		job.Finish(nil)
	})

	return job
}

func (s *Storage) UpdateItem(item entity.Item) *storage.WriteJob {
	job := &storage.WriteJob{}
	s.queue.Post(func() {
		if _, err := s.loadItem(item.ID); err != nil {
			job.Finish(err)
			return
		}

		_, err := s.db.Exec(`UPDATE items SET payload = ?, modified = ? WHERE id = ?;`,
			item.Payload, time.Now().UTC().Format(time.RFC3339Nano), item.ID)
		if err != nil {
			job.Finish(fmt.Errorf("update item: %w", err))
			return
		}

		stored, loadErr := s.loadItem(item.ID)
		if loadErr != nil {
			job.Finish(loadErr)
			return
		}

		s.monitor.NotifyItemChanged(stored)
		job.Finish(nil)
	})

	return job
}

func (s *Storage) RemoveItem(item entity.Item) *storage.WriteJob {
	job := &storage.WriteJob{}
	s.queue.Post(func() {
		stored, err := s.loadItem(item.ID)
		if err != nil {
			job.Finish(err)
			return
		}

		if execErr := s.deleteItem(item.ID); execErr != nil {
			job.Finish(execErr)
			return
		}

		s.monitor.NotifyItemRemoved(stored)
		job.Finish(nil)
	})

	return job
}

func (s *Storage) deleteItem(id entity.ID) error {
	if _, err := s.db.Exec(`DELETE FROM item_tags WHERE item_id = ?;`, id); err != nil {
		return fmt.Errorf("remove item tags: %w", err)
	}

	if _, err := s.db.Exec(`DELETE FROM items WHERE id = ?;`, id); err != nil {
		return fmt.Errorf("remove item: %w", err)
	}

	return nil
}

func (s *Storage) MoveItem(item entity.Item, collection entity.Collection) *storage.WriteJob {
	job := &storage.WriteJob{}
	s.queue.Post(func() {
		if _, err := s.loadItem(item.ID); err != nil {
			job.Finish(err)
			return
		}

		if _, err := s.loadCollection(collection.ID); err != nil {
			job.Finish(err)
			return
		}

		_, err := s.db.Exec(`UPDATE items SET collection_id = ?, modified = ? WHERE id = ?;`,
			collection.ID, time.Now().UTC().Format(time.RFC3339Nano), item.ID)
		if err != nil {
			job.Finish(fmt.Errorf("move item: %w", err))
			return
		}

		stored, loadErr := s.loadItem(item.ID)
		if loadErr != nil {
			job.Finish(loadErr)
			return
		}

		s.monitor.NotifyItemMoved(stored)
		job.Finish(nil)
	})

	return job
}

func (s *Storage) CreateCollection(collection entity.Collection) *storage.WriteJob {
	job := &storage.WriteJob{}
	s.queue.Post(func() {
		attrs, attrErr := encodeAttributes(collection.Attributes)
		if attrErr != nil {
			job.Finish(attrErr)
			return
		}

		res, err := s.db.Exec(`INSERT INTO collections (parent_id, name, content_types, selected, attributes) VALUES (?, ?, ?, ?, ?);`,
			collection.ParentID, collection.Name, int(collection.ContentTypes), boolToInt(collection.Selected), attrs)
		if err != nil {
			job.Finish(fmt.Errorf("create collection: %w", err))
			return
		}

		id, _ := res.LastInsertId()
		job.CreatedID = id
		collection.ID = id

		s.monitor.NotifyCollectionAdded(collection)
		job.Finish(nil)
	})

	return job
}

func (s *Storage) UpdateCollection(collection entity.Collection) *storage.WriteJob {
	job := &storage.WriteJob{}
	s.queue.Post(func() {
		old, err := s.loadCollection(collection.ID)
		if err != nil {
			job.Finish(err)
			return
		}

		attrs, attrErr := encodeAttributes(collection.Attributes)
		if attrErr != nil {
			job.Finish(attrErr)
			return
		}

		_, execErr := s.db.Exec(`UPDATE collections SET parent_id = ?, name = ?, content_types = ?, selected = ?, attributes = ? WHERE id = ?;`,
			collection.ParentID, collection.Name, int(collection.ContentTypes), boolToInt(collection.Selected), attrs, collection.ID)
		if execErr != nil {
			job.Finish(fmt.Errorf("update collection: %w", execErr))
			return
		}

		if old.Selected != collection.Selected {
			s.monitor.NotifyCollectionSelectionChanged(collection)
		} else {
			s.monitor.NotifyCollectionChanged(collection)
		}

		job.Finish(nil)
	})

	return job
}

func (s *Storage) RemoveCollection(collection entity.Collection) *storage.WriteJob {
	job := &storage.WriteJob{}
	s.queue.Post(func() {
		all, err := s.loadCollections()
		if err != nil {
			job.Finish(err)
			return
		}

		if _, ok := all[collection.ID]; !ok {
			job.Finish(errCollectionNotFound)
			return
		}

		if removeErr := s.removeCollectionTree(all, collection.ID); removeErr != nil {
			job.Finish(removeErr)
			return
		}

		job.Finish(nil)
	})

	return job
}

func (s *Storage) removeCollectionTree(all map[entity.ID]entity.Collection, id entity.ID) error {
	var children []entity.ID

	for _, col := range all {
		if col.ParentID == id {
			children = append(children, col.ID)
		}
	}

	sort.Slice(children, func(i, j int) bool { return children[i] < children[j] })

	for _, child := range children {
		if err := s.removeCollectionTree(all, child); err != nil {
			return err
		}
	}

	rows, err := s.db.Query(`SELECT id, collection_id, payload, modified FROM items WHERE collection_id = ? ORDER BY id;`, id)
	if err != nil {
		return fmt.Errorf("remove collection: %w", err)
	}

	items, scanErr := s.scanItems(rows)
	if scanErr != nil {
		return fmt.Errorf("remove collection: %w", scanErr)
	}

	for _, item := range items {
		if delErr := s.deleteItem(item.ID); delErr != nil {
			return delErr
		}

		s.monitor.NotifyItemRemoved(item)
	}

	if _, execErr := s.db.Exec(`DELETE FROM collections WHERE id = ?;`, id); execErr != nil {
		return fmt.Errorf("remove collection: %w", execErr)
	}

	s.monitor.NotifyCollectionRemoved(all[id])

	return nil
}

func (s *Storage) CreateTag(tag entity.Tag) *storage.WriteJob {
	job := &storage.WriteJob{}
	s.queue.Post(func() {
		res, err := s.db.Exec(`INSERT INTO tags (gid, name, tag_type) VALUES (?, ?, ?);`,
			tag.GID, tag.Name, string(tag.Type))
		if err != nil {
			job.Finish(fmt.Errorf("create tag: %w", err))
			return
		}

		id, _ := res.LastInsertId()
		job.CreatedID = id
		tag.ID = id

		s.monitor.NotifyTagAdded(tag)
		job.Finish(nil)
	})

	return job
}

func (s *Storage) UpdateTag(tag entity.Tag) *storage.WriteJob {
	job := &storage.WriteJob{}
	s.queue.Post(func() {
		res, err := s.db.Exec(`UPDATE tags SET gid = ?, name = ?, tag_type = ? WHERE id = ?;`,
			tag.GID, tag.Name, string(tag.Type), tag.ID)
		if err != nil {
			job.Finish(fmt.Errorf("update tag: %w", err))
			return
		}

		if n, _ := res.RowsAffected(); n == 0 {
			job.Finish(errTagNotFound)
			return
		}

		s.monitor.NotifyTagChanged(tag)
		job.Finish(nil)
	})

	return job
}

func (s *Storage) RemoveTag(tag entity.Tag) *storage.WriteJob {
	job := &storage.WriteJob{}
	s.queue.Post(func() {
		row := s.db.QueryRow(`SELECT id, gid, name, tag_type FROM tags WHERE id = ?;`, tag.ID)

		var stored entity.Tag

		var tagType string

		if err := row.Scan(&stored.ID, &stored.GID, &stored.Name, &tagType); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				job.Finish(errTagNotFound)
				return
			}

			job.Finish(fmt.Errorf("remove tag: %w", err))
			return
		}

		stored.Type = entity.TagType(tagType)

		if _, err := s.db.Exec(`DELETE FROM item_tags WHERE tag_id = ?;`, tag.ID); err != nil {
			job.Finish(fmt.Errorf("remove tag associations: %w", err))
			return
		}

		if _, err := s.db.Exec(`DELETE FROM tags WHERE id = ?;`, tag.ID); err != nil {
			job.Finish(fmt.Errorf("remove tag: %w", err))
			return
		}

		s.monitor.NotifyTagRemoved(stored)
		job.Finish(nil)
	})

	return job
}

// TagItem attaches a tag to an item and announces the change.
func (s *Storage) TagItem(itemID, tagID entity.ID) *storage.WriteJob {
	job := &storage.WriteJob{}
	s.queue.Post(func() {
		if _, err := s.loadItem(itemID); err != nil {
			job.Finish(err)
			return
		}

		row := s.db.QueryRow(`SELECT COUNT(*) FROM tags WHERE id = ?;`, tagID)

		var count int
		if err := row.Scan(&count); err != nil {
			job.Finish(fmt.Errorf("tag item: %w", err))
			return
		}

		if count == 0 {
			job.Finish(errTagNotFound)
			return
		}

		if _, err := s.db.Exec(`INSERT OR IGNORE INTO item_tags (item_id, tag_id) VALUES (?, ?);`, itemID, tagID); err != nil {
			job.Finish(fmt.Errorf("tag item: %w", err))
			return
		}

		stored, loadErr := s.loadItem(itemID)
		if loadErr != nil {
			job.Finish(loadErr)
			return
		}

		s.monitor.NotifyItemChanged(stored)
		job.Finish(nil)
	})

	return job
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}

var _ storage.Storage = (*Storage)(nil)
