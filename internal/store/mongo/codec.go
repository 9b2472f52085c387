package mongo

import (
	"time"

	"github.com/wolfeidau/disciplinary/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// record is the stored shape of a document. Documents of every organization
// share the MongoDB collection named after their collection ID.
type record struct {
	Key        string    `bson:"_id"`
	Path       string    `bson:"path"`
	DocID      string    `bson:"docId"`
	Data       bson.M    `bson:"data"`
	Version    int64     `bson:"version"`
	CreateTime time.Time `bson:"createTime"`
	UpdateTime time.Time `bson:"updateTime"`
}

func recordKey(path, id string) string {
	return path + "/" + id
}

func toRecord(doc *store.Document) record {
	return record{
		Key:        recordKey(doc.Path, doc.ID),
		Path:       doc.Path,
		DocID:      doc.ID,
		Data:       encodeFields(doc.Fields),
		Version:    doc.Version,
		CreateTime: doc.CreateTime,
		UpdateTime: doc.UpdateTime,
	}
}

func (r record) document() *store.Document {
	return &store.Document{
		Path:       r.Path,
		ID:         r.DocID,
		Fields:     decodeFields(r.Data),
		Version:    r.Version,
		CreateTime: r.CreateTime.UTC(),
		UpdateTime: r.UpdateTime.UTC(),
	}
}

func encodeFields(f store.Fields) bson.M {
	out := make(bson.M, len(f))
	for k, v := range f {
		out[k] = encodeValue(v)
	}
	return out
}

func encodeValue(v any) any {
	switch t := v.(type) {
	case store.Fields:
		return encodeFields(t)
	case map[string]any:
		return encodeFields(store.Fields(t))
	case []any:
		out := make(bson.A, len(t))
		for i, e := range t {
			out[i] = encodeValue(e)
		}
		return out
	default:
		return v
	}
}

func decodeFields(m map[string]any) store.Fields {
	out := make(store.Fields, len(m))
	for k, v := range m {
		out[k] = decodeValue(v)
	}
	return out
}

// decodeValue converts BSON decoded values back to the normalized representation.
func decodeValue(v any) any {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case primitive.M:
		return decodeFields(t)
	case map[string]any:
		return decodeFields(t)
	case primitive.D:
		return decodeFields(t.Map())
	case primitive.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = decodeValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = decodeValue(e)
		}
		return out
	default:
		return v
	}
}

// rangeOperators maps range filters onto MongoDB query operators. MongoDB only
// compares values of the same BSON type bracket, which matches the in-process
// range semantics.
var rangeOperators = map[store.Operator]string{
	store.OpLess:         "$lt",
	store.OpLessEqual:    "$lte",
	store.OpGreater:      "$gt",
	store.OpGreaterEqual: "$gte",
}

// buildFilter renders the equality and range filters that can be evaluated by
// the server. Range bounds on one field share a single operator document.
// native reports whether nothing is left for the in-process evaluator.
func buildFilter(scope bson.E, filters []store.Filter) (filter bson.D, native bool) {
	filter = bson.D{scope}
	equal := make(map[string]bool)
	native = true

	var ranges []store.Filter
	for _, f := range filters {
		switch {
		case f.Op == store.OpEqual && pushable(f.Value) && !equal[f.Field]:
			equal[f.Field] = true
			filter = append(filter, bson.E{Key: "data." + f.Field, Value: f.Value})
		case rangeOperators[f.Op] != "" && rangeable(f.Value):
			ranges = append(ranges, f)
		default:
			native = false
		}
	}

	bounds := make(map[string]int)
	for _, f := range ranges {
		if equal[f.Field] {
			native = false
			continue
		}
		i, ok := bounds[f.Field]
		if !ok {
			i = len(filter)
			bounds[f.Field] = i
			filter = append(filter, bson.E{Key: "data." + f.Field, Value: bson.D{}})
		}
		ops := filter[i].Value.(bson.D)
		if hasKey(ops, rangeOperators[f.Op]) {
			native = false
			continue
		}
		filter[i].Value = append(ops, bson.E{Key: rangeOperators[f.Op], Value: f.Value})
	}
	return filter, native
}

func rangeable(v any) bool {
	switch v.(type) {
	case string, float64, time.Time:
		return true
	}
	return false
}

func hasKey(d bson.D, key string) bool {
	for _, e := range d {
		if e.Key == key {
			return true
		}
	}
	return false
}

// pushable excludes nil, which the in-process evaluator also matches against
// missing fields.
func pushable(v any) bool {
	switch v.(type) {
	case string, bool, float64, time.Time:
		return true
	}
	return false
}

// cursorFilter positions a document ID ordered scan after the cursor.
func cursorFilter(after *store.Cursor, dir store.Direction) bson.E {
	op := "$gt"
	if dir == store.Descending {
		op = "$lt"
	}
	return bson.E{Key: "docId", Value: bson.D{{Key: op, Value: after.ID}}}
}

func sortOrder(dir store.Direction) int {
	if dir == store.Descending {
		return -1
	}
	return 1
}
