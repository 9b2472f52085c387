package store

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// Operator is a filter comparison operator.
type Operator string

const (
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpIn           Operator = "in"
)

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual, OpIn:
		return true
	}
	return false
}

// Filter is one predicate of a conjunctive query.
type Filter struct {
	Field string   `json:"field"`
	Op    Operator `json:"op"`
	Value any      `json:"value"`
}

// Where builds a Filter.
func Where(field string, op Operator, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Direction is the sort direction of a query.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// Cursor marks a position in an ordered result set: the order field value and
// document ID of the last document seen.
type Cursor struct {
	Value any
	ID    string
}

// Query describes a filtered, ordered and limited read of one collection.
// Results are ordered by OrderBy and then by document ID in the same direction,
// so ties on the order field still produce a stable order. An empty OrderBy
// orders by document ID alone.
type Query struct {
	Filters   []Filter
	OrderBy   string
	Direction Direction
	After     *Cursor
	Limit     int
}

// Validate checks operators and normalizes filter values in place.
func (q *Query) Validate() error {
	for i := range q.Filters {
		f := &q.Filters[i]
		if f.Field == "" {
			return InvalidArgumentf("filter %d: field is required", i)
		}
		if !f.Op.Valid() {
			return InvalidArgumentf("filter %d: unknown operator %q", i, f.Op)
		}
		v, err := NormalizeValue(f.Value)
		if err != nil {
			return err
		}
		if f.Op == OpIn {
			if _, ok := v.([]any); !ok {
				return InvalidArgumentf("filter %d: 'in' requires a list value", i)
			}
		}
		f.Value = v
	}
	if q.After != nil {
		v, err := NormalizeValue(q.After.Value)
		if err != nil {
			return err
		}
		q.After = &Cursor{Value: v, ID: q.After.ID}
	}
	if q.Limit < 0 {
		return InvalidArgumentf("limit must not be negative")
	}
	return nil
}

// CursorFor returns the cursor positioned at doc for the given order field.
func CursorFor(doc *Document, orderBy string) *Cursor {
	c := &Cursor{ID: doc.ID}
	if orderBy != "" {
		c.Value = doc.Get(orderBy)
	}
	return c
}

// Apply evaluates q against docs in process: filtering, ordering, cursor and
// limit. Backends that cannot push a query down use it, and the result is
// identical to what a backend evaluating natively returns.
func Apply(docs []*Document, q Query) []*Document {
	out := make([]*Document, 0, len(docs))
	for _, d := range docs {
		if Matches(d, q.Filters) {
			out = append(out, d)
		}
	}

	slices.SortFunc(out, func(a, b *Document) int {
		return compareDocs(a, b, q.OrderBy, q.Direction)
	})

	if q.After != nil {
		start := len(out)
		for i, d := range out {
			if isAfter(d, q.After, q.OrderBy, q.Direction) {
				start = i
				break
			}
		}
		out = out[start:]
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func compareDocs(a, b *Document, orderBy string, dir Direction) int {
	c := 0
	if orderBy != "" {
		c = Compare(a.Get(orderBy), b.Get(orderBy))
	}
	if c == 0 {
		c = strings.Compare(a.ID, b.ID)
	}
	if dir == Descending {
		return -c
	}
	return c
}

func isAfter(d *Document, cur *Cursor, orderBy string, dir Direction) bool {
	pos := &Document{ID: cur.ID, Fields: Fields{}}
	if orderBy != "" {
		pos.Fields[orderBy] = cur.Value
	}
	return compareDocs(d, pos, orderBy, dir) > 0
}

// Matches reports whether the document satisfies every filter. Missing fields
// compare as nil. Range operators only match values of the same type class.
func Matches(d *Document, filters []Filter) bool {
	for _, f := range filters {
		if !matchFilter(d.Get(f.Field), f) {
			return false
		}
	}
	return true
}

func matchFilter(v any, f Filter) bool {
	switch f.Op {
	case OpEqual:
		return Compare(v, f.Value) == 0
	case OpNotEqual:
		return Compare(v, f.Value) != 0
	case OpIn:
		list, _ := f.Value.([]any)
		for _, e := range list {
			if Compare(v, e) == 0 {
				return true
			}
		}
		return false
	}

	if v == nil || typeRank(v) != typeRank(f.Value) {
		return false
	}
	c := Compare(v, f.Value)
	switch f.Op {
	case OpLess:
		return c < 0
	case OpLessEqual:
		return c <= 0
	case OpGreater:
		return c > 0
	case OpGreaterEqual:
		return c >= 0
	}
	return false
}

// typeRank orders value types: nil < bool < number < time < string < list < map.
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64, float32, int, int32, int64:
		return 2
	case time.Time:
		return 3
	case string:
		return 4
	case []any:
		return 5
	case Fields, map[string]any:
		return 6
	default:
		return 7
	}
}

// Compare totally orders normalized values.
func Compare(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch x := a.(type) {
	case nil:
		return 0
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case time.Time:
		return x.Compare(b.(time.Time))
	case string:
		return strings.Compare(x, b.(string))
	case []any:
		y := b.([]any)
		for i := 0; i < len(x) && i < len(y); i++ {
			if c := Compare(x[i], y[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(x), len(y))
	}
	if ra == 2 {
		return cmp.Compare(toFloat(a), toFloat(b))
	}
	return 0
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
