// Package serializer converts between raw store entities and domain
// objects, and provides the membership predicates the query layer
// builds on. Item payloads are JSON blobs carrying a type
// discriminator; anything that fails to decode is simply "not a task"
// / "not a note" rather than an error, matching the degrade-to-empty
// policy of the query layer.
package serializer

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"gtd/internal/domain"
	"gtd/internal/entity"
)

// Payload type discriminators.
const (
	payloadTask = "task"
	payloadNote = "note"
)

type payload struct {
	Type      string     `json:"type"`
	UID       string     `json:"uid"`
	ParentUID string     `json:"parentUid,omitempty"`
	Title     string     `json:"title"`
	Text      string     `json:"text,omitempty"`
	Project   bool       `json:"project,omitempty"`
	Done      bool       `json:"done,omitempty"`
	Running   bool       `json:"running,omitempty"`
	Start     *time.Time `json:"start,omitempty"`
	Due       *time.Time `json:"due,omitempty"`
	DoneDate  *time.Time `json:"doneDate,omitempty"`
}

func decode(item entity.Item) (payload, bool) {
	if len(item.Payload) == 0 {
		return payload{}, false
	}

	var p payload

	if err := json.Unmarshal(item.Payload, &p); err != nil {
		return payload{}, false
	}

	return p, true
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}

	return *t
}

func timeRef(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}

	tt := t

	return &tt
}

// NewUID mints a stable identifier for a freshly created item or tag.
func NewUID() string {
	return uuid.NewString()
}

// IsTaskItem reports whether the item holds a plain task payload.
// Project markers are task payloads too, but are not plain tasks.
func IsTaskItem(item entity.Item) bool {
	p, ok := decode(item)

	return ok && p.Type == payloadTask && !p.Project
}

// IsProjectItem reports whether the item holds a project marker.
func IsProjectItem(item entity.Item) bool {
	p, ok := decode(item)

	return ok && p.Type == payloadTask && p.Project
}

// IsNoteItem reports whether the item holds a note payload.
func IsNoteItem(item entity.Item) bool {
	p, ok := decode(item)

	return ok && p.Type == payloadNote
}

// ItemUID returns the item's stable uid, or "" for undecodable items.
func ItemUID(item entity.Item) string {
	p, _ := decode(item)

	return p.UID
}

// RelatedUID returns the uid of the item's parent relation, or "" when
// the item is top-level (or undecodable).
func RelatedUID(item entity.Item) string {
	p, _ := decode(item)

	return p.ParentUID
}

// TaskFromItem builds a Task from a raw item. ok is false when the
// payload is not a plain task.
func TaskFromItem(item entity.Item) (domain.Task, bool) {
	p, decoded := decode(item)
	if !decoded || p.Type != payloadTask || p.Project {
		return domain.Task{}, false
	}

	return domain.Task{
		ItemID:       item.ID,
		CollectionID: item.CollectionID,
		UID:          p.UID,
		ParentUID:    p.ParentUID,
		Title:        p.Title,
		Text:         p.Text,
		Done:         p.Done,
		Running:      p.Running,
		StartDate:    deref(p.Start),
		DueDate:      deref(p.Due),
		DoneDate:     deref(p.DoneDate),
	}, true
}

// NoteFromItem builds a Note from a raw item.
func NoteFromItem(item entity.Item) (domain.Note, bool) {
	p, decoded := decode(item)
	if !decoded || p.Type != payloadNote {
		return domain.Note{}, false
	}

	return domain.Note{
		ItemID:       item.ID,
		CollectionID: item.CollectionID,
		UID:          p.UID,
		ParentUID:    p.ParentUID,
		Title:        p.Title,
		Text:         p.Text,
	}, true
}

// ProjectFromItem builds a Project from a project marker item.
func ProjectFromItem(item entity.Item) (domain.Project, bool) {
	p, decoded := decode(item)
	if !decoded || p.Type != payloadTask || !p.Project {
		return domain.Project{}, false
	}

	return domain.Project{
		ItemID:       item.ID,
		CollectionID: item.CollectionID,
		UID:          p.UID,
		Name:         p.Title,
	}, true
}

// ArtifactFromItem builds a task or note artifact; ok is false when
// the item is neither.
func ArtifactFromItem(item entity.Item) (domain.Artifact, bool) {
	if task, ok := TaskFromItem(item); ok {
		return domain.TaskArtifact(task), true
	}

	if note, ok := NoteFromItem(item); ok {
		return domain.NoteArtifact(note), true
	}

	return domain.Artifact{}, false
}

// ItemFromTask serializes a task back into its raw item shape.
func ItemFromTask(task domain.Task) entity.Item {
	p := payload{
		Type:      payloadTask,
		UID:       task.UID,
		ParentUID: task.ParentUID,
		Title:     task.Title,
		Text:      task.Text,
		Done:      task.Done,
		Running:   task.Running,
		Start:     timeRef(task.StartDate),
		Due:       timeRef(task.DueDate),
		DoneDate:  timeRef(task.DoneDate),
	}

	raw, _ := json.Marshal(p)

	return entity.Item{
		ID:           task.ItemID,
		CollectionID: task.CollectionID,
		Payload:      raw,
	}
}

// ItemFromNote serializes a note back into its raw item shape.
func ItemFromNote(note domain.Note) entity.Item {
	p := payload{
		Type:      payloadNote,
		UID:       note.UID,
		ParentUID: note.ParentUID,
		Title:     note.Title,
		Text:      note.Text,
	}

	raw, _ := json.Marshal(p)

	return entity.Item{
		ID:           note.ItemID,
		CollectionID: note.CollectionID,
		Payload:      raw,
	}
}

// IsTaskChild reports whether the item declares task as its parent.
func IsTaskChild(task domain.Task, item entity.Item) bool {
	if task.UID == "" {
		return false
	}

	return RelatedUID(item) == task.UID &&
		(IsTaskItem(item) || IsProjectItem(item))
}

// IsProjectChild reports whether the item belongs to the project.
func IsProjectChild(project domain.Project, item entity.Item) bool {
	if project.UID == "" {
		return false
	}

	return RelatedUID(item) == project.UID
}

// IsContextChild reports whether the item carries the context's tag.
func IsContextChild(ctx domain.Context, item entity.Item) bool {
	return item.HasTag(ctx.TagID)
}

// IsTagChild reports whether the item carries the tag.
func IsTagChild(tag domain.Tag, item entity.Item) bool {
	return item.HasTag(tag.TagID)
}

// ContextFromTag builds a Context from a context-typed raw tag.
func ContextFromTag(tag entity.Tag) (domain.Context, bool) {
	if tag.Type != entity.TagTypeContext {
		return domain.Context{}, false
	}

	return domain.Context{TagID: tag.ID, GID: tag.GID, Name: tag.Name}, true
}

// TagFromContext maps a Context back to its raw tag shape.
func TagFromContext(ctx domain.Context) entity.Tag {
	return entity.Tag{ID: ctx.TagID, GID: ctx.GID, Name: ctx.Name, Type: entity.TagTypeContext}
}

// PlainTagFromEntity builds a domain Tag from a plain raw tag.
func PlainTagFromEntity(tag entity.Tag) (domain.Tag, bool) {
	if tag.Type != entity.TagTypePlain {
		return domain.Tag{}, false
	}

	return domain.Tag{TagID: tag.ID, GID: tag.GID, Name: tag.Name}, true
}

// TagFromDomain maps a domain Tag back to its raw tag shape.
func TagFromDomain(tag domain.Tag) entity.Tag {
	return entity.Tag{ID: tag.TagID, GID: tag.GID, Name: tag.Name, Type: entity.TagTypePlain}
}

// DataSourceFromCollection exposes a collection as a data source.
func DataSourceFromCollection(col entity.Collection) domain.DataSource {
	return domain.DataSource{
		CollectionID: col.ID,
		Name:         col.Name,
		Selected:     col.Selected,
		ContentTypes: uint8(col.ContentTypes),
	}
}

// CollectionFromDataSource maps a data source back to its collection.
func CollectionFromDataSource(source domain.DataSource) entity.Collection {
	return entity.Collection{
		ID:           source.CollectionID,
		Name:         source.Name,
		Selected:     source.Selected,
		ContentTypes: entity.ContentTypes(source.ContentTypes),
	}
}
