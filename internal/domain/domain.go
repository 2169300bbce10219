// Package domain holds the typed objects the presentation layer works
// with. They are plain values produced by the serializer from raw
// store entities; the store identifiers they carry (ItemID,
// CollectionID, TagID) tie them back to the entity they came from.
package domain

import "time"

// Task is a GTD action. UID is the stable identifier used for
// parent/child relations; ParentUID empty means top-level.
type Task struct {
	ItemID       int64
	CollectionID int64
	UID          string
	ParentUID    string
	Title        string
	Text         string
	Done         bool
	Running      bool
	StartDate    time.Time
	DueDate      time.Time
	DoneDate     time.Time
	ContextUIDs  []string
}

// Note is a free-form piece of reference material.
type Note struct {
	ItemID       int64
	CollectionID int64
	UID          string
	ParentUID    string
	Title        string
	Text         string
}

// Project groups tasks under a desired outcome. In the store a project
// is a task item carrying the project marker flag.
type Project struct {
	ItemID       int64
	CollectionID int64
	UID          string
	Name         string
}

// Context is a GTD context ("@phone", "@errands"), backed by a tag of
// the context type.
type Context struct {
	TagID int64
	GID   string
	Name  string
}

// Tag is a plain label.
type Tag struct {
	TagID int64
	GID   string
	Name  string
}

// DataSource describes a collection the user can pull tasks or notes
// from.
type DataSource struct {
	CollectionID int64
	Name         string
	Selected     bool
	ContentTypes uint8
}

// ArtifactKind discriminates the Artifact variant.
type ArtifactKind int

const (
	ArtifactInvalid ArtifactKind = iota
	ArtifactTask
	ArtifactNote
)

// Artifact is the closed task-or-note variant used by mixed listings.
// Exactly one of Task/Note is meaningful, selected by Kind.
type Artifact struct {
	Kind ArtifactKind
	Task Task
	Note Note
}

// TaskArtifact wraps a task.
func TaskArtifact(t Task) Artifact {
	return Artifact{Kind: ArtifactTask, Task: t}
}

// NoteArtifact wraps a note.
func NoteArtifact(n Note) Artifact {
	return Artifact{Kind: ArtifactNote, Note: n}
}

// Title returns the display title of whichever variant is held.
func (a Artifact) Title() string {
	switch a.Kind {
	case ArtifactTask:
		return a.Task.Title
	case ArtifactNote:
		return a.Note.Title
	default:
		return ""
	}
}

// ItemID returns the store item behind whichever variant is held.
func (a Artifact) ItemID() int64 {
	switch a.Kind {
	case ArtifactTask:
		return a.Task.ItemID
	case ArtifactNote:
		return a.Note.ItemID
	default:
		return 0
	}
}
