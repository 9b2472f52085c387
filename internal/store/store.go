package store

import (
	"context"
	"strings"
	"time"
)

// Store is the backing document store. Documents live under slash separated
// collection paths such as "organizations/acme/employees" and are addressed by
// (path, id). Implementations must make Commit all-or-nothing.
type Store interface {
	// Get returns the document stored at path/id.
	// Returns ErrNotFound if the document doesn't exist.
	Get(ctx context.Context, path, id string) (*Document, error)

	// Query returns the documents in a single collection matching q.
	Query(ctx context.Context, path string, q Query) ([]*Document, error)

	// QueryGroup queries every collection whose final path segment equals
	// collectionID, regardless of parent path. Used only by system level reporting.
	QueryGroup(ctx context.Context, collectionID string, q Query) ([]*Document, error)

	// Commit applies all writes atomically: either every write is applied or none is.
	Commit(ctx context.Context, writes []Write) error

	// Close releases resources held by the store.
	Close() error
}

// Document is a stored document together with its bookkeeping metadata.
type Document struct {
	Path       string
	ID         string
	Fields     Fields
	Version    int64
	CreateTime time.Time
	UpdateTime time.Time
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	clone := *d
	clone.Fields = d.Fields.Clone()
	return &clone
}

// Get returns the value of a top level field.
func (d *Document) Get(field string) any {
	if d == nil || d.Fields == nil {
		return nil
	}
	return d.Fields[field]
}

// WriteKind identifies the type of a Write.
type WriteKind int

const (
	// WriteCreate inserts a new document and fails with ErrAlreadyExists if it exists.
	WriteCreate WriteKind = iota
	// WriteSet replaces the document, creating it when missing.
	WriteSet
	// WriteMerge merges fields into the document, creating it when missing.
	WriteMerge
	// WriteUpdate merges fields into an existing document and fails with ErrNotFound otherwise.
	WriteUpdate
	// WriteDelete removes the document. Deleting a missing document is a no-op
	// unless an expected version is set.
	WriteDelete
)

func (k WriteKind) String() string {
	switch k {
	case WriteCreate:
		return "create"
	case WriteSet:
		return "set"
	case WriteMerge:
		return "merge"
	case WriteUpdate:
		return "update"
	case WriteDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Write is a single mutation inside an atomic Commit.
type Write struct {
	Kind   WriteKind
	Path   string
	ID     string
	Fields Fields

	// ExpectVersion, when non-zero, makes the write fail with ErrConflict
	// unless the stored document is at exactly this version.
	ExpectVersion int64
}

// WithVersion returns a copy of w guarded by an expected document version.
func (w Write) WithVersion(version int64) Write {
	w.ExpectVersion = version
	return w
}

func Create(path, id string, fields Fields) Write {
	return Write{Kind: WriteCreate, Path: path, ID: id, Fields: fields}
}

func Set(path, id string, fields Fields) Write {
	return Write{Kind: WriteSet, Path: path, ID: id, Fields: fields}
}

func Merge(path, id string, fields Fields) Write {
	return Write{Kind: WriteMerge, Path: path, ID: id, Fields: fields}
}

func Update(path, id string, fields Fields) Write {
	return Write{Kind: WriteUpdate, Path: path, ID: id, Fields: fields}
}

func Delete(path, id string) Write {
	return Write{Kind: WriteDelete, Path: path, ID: id}
}

// CollectionID returns the final segment of a collection path.
func CollectionID(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// ValidateWrites performs the backend independent checks on a batch.
func ValidateWrites(writes []Write) error {
	for i, w := range writes {
		if w.Path == "" || w.ID == "" {
			return InvalidArgumentf("write %d: path and id are required", i)
		}
		if strings.Contains(w.ID, "/") {
			return InvalidArgumentf("write %d: id %q must not contain '/'", i, w.ID)
		}
		if w.Kind != WriteDelete && w.Kind != WriteMerge && w.Kind != WriteUpdate && w.Fields.hasDeleteMarker() {
			return InvalidArgumentf("write %d: DeleteField is only valid in merge and update writes", i)
		}
	}
	return nil
}
