package store

import (
	"fmt"
	"time"
)

// ApplyWrite computes the document that results from applying w to current,
// which is nil when the document does not exist. A nil result means the
// document is deleted. Backends that read-modify-write inside a transaction use
// it so every backend shares the same write semantics.
func ApplyWrite(current *Document, w Write, now time.Time) (*Document, error) {
	if w.ExpectVersion != 0 {
		if current == nil {
			return nil, fmt.Errorf("%w: %s/%s no longer exists", ErrConflict, w.Path, w.ID)
		}
		if current.Version != w.ExpectVersion {
			return nil, fmt.Errorf("%w: %s/%s is at version %d, expected %d",
				ErrConflict, w.Path, w.ID, current.Version, w.ExpectVersion)
		}
	}

	switch w.Kind {
	case WriteCreate:
		if current != nil {
			return nil, fmt.Errorf("%w: %s/%s", ErrAlreadyExists, w.Path, w.ID)
		}
		return newDocument(w, w.Fields.Clone(), now), nil

	case WriteSet:
		if current == nil {
			return newDocument(w, w.Fields.Clone(), now), nil
		}
		return nextVersion(current, w.Fields.Clone(), now), nil

	case WriteMerge:
		if current == nil {
			return newDocument(w, StripDeletes(w.Fields), now), nil
		}
		return nextVersion(current, MergeFields(current.Fields, w.Fields), now), nil

	case WriteUpdate:
		if current == nil {
			return nil, NotFoundf("%s/%s", w.Path, w.ID)
		}
		return nextVersion(current, MergeFields(current.Fields, w.Fields), now), nil

	case WriteDelete:
		return nil, nil

	default:
		return nil, InvalidArgumentf("unknown write kind %d", w.Kind)
	}
}

func newDocument(w Write, fields Fields, now time.Time) *Document {
	if fields == nil {
		fields = Fields{}
	}
	return &Document{
		Path:       w.Path,
		ID:         w.ID,
		Fields:     fields,
		Version:    1,
		CreateTime: now,
		UpdateTime: now,
	}
}

func nextVersion(current *Document, fields Fields, now time.Time) *Document {
	if fields == nil {
		fields = Fields{}
	}
	return &Document{
		Path:       current.Path,
		ID:         current.ID,
		Fields:     fields,
		Version:    current.Version + 1,
		CreateTime: current.CreateTime,
		UpdateTime: now,
	}
}
