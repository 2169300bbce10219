// Package entity defines the raw entities of the groupware store:
// collections, items and tags, exactly as the backend reports them.
// Interpretation of item payloads lives in the serializer package.
package entity

import "time"

// ID identifies a collection, item or tag within the store.
// Zero means "not assigned yet"; negative values are reserved.
type ID = int64

// RootCollectionID is the sentinel parent of all top-level collections.
const RootCollectionID ID = 0

// ContentTypes is a bitmask of the content kinds a collection can hold.
type ContentTypes uint8

const (
	// AllContent matches every collection regardless of declared content.
	AllContent ContentTypes = 0

	Tasks ContentTypes = 1 << iota
	Notes
)

// Matches reports whether a collection with mask m belongs to the slot
// requested with mask r. AllContent slots accept everything; otherwise
// any overlap of the masks is enough.
func (r ContentTypes) Matches(m ContentTypes) bool {
	if r == AllContent {
		return true
	}

	return m&r != 0
}

// FetchDepth selects how much of the collection tree a fetch covers.
type FetchDepth int

const (
	Base FetchDepth = iota
	FirstLevel
	Recursive
)

// Collection is a node of the hierarchical namespace.
type Collection struct {
	ID           ID
	ParentID     ID // RootCollectionID for top-level collections
	Name         string
	ContentTypes ContentTypes
	Selected     bool // user enabled it for querying
	Attributes   map[string]string
}

// IsValid reports whether the collection refers to a real store entry.
func (c Collection) IsValid() bool {
	return c.ID > 0
}

// Item is a leaf entity owned by exactly one collection, optionally
// carrying tags. Payload is an opaque blob for this package.
type Item struct {
	ID           ID
	CollectionID ID
	Payload      []byte
	Modified     time.Time
	TagIDs       []ID
	Flags        uint32
}

// IsValid reports whether the item refers to a real store entry.
func (i Item) IsValid() bool {
	return i.ID > 0
}

// HasTag reports whether the item carries the given tag.
func (i Item) HasTag(id ID) bool {
	for _, t := range i.TagIDs {
		if t == id {
			return true
		}
	}

	return false
}

// TagType partitions tags into domain meanings.
type TagType string

const (
	TagTypePlain   TagType = "plain"
	TagTypeContext TagType = "context"
)

// Tag is a label attachable to items. GID is the stable external
// identifier used before (and beside) the store-assigned ID.
type Tag struct {
	ID   ID
	GID  string
	Name string
	Type TagType
}

// IsValid reports whether the tag refers to a real store entry.
func (t Tag) IsValid() bool {
	return t.ID > 0
}
