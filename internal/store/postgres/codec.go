package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wolfeidau/disciplinary/internal/store"
)

// timeKey wraps timestamps in JSONB so they survive a round trip as
// time.Time rather than decoding as plain strings.
const timeKey = "$time"

// encodeFields converts normalized fields to the JSONB representation.
func encodeFields(f store.Fields) ([]byte, error) {
	if f == nil {
		f = store.Fields{}
	}
	return json.Marshal(encodeValue(f))
}

func encodeValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return map[string]any{timeKey: formatTime(t)}
	case store.Fields:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = encodeValue(e)
		}
		return out
	case map[string]any:
		return encodeValue(store.Fields(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = encodeValue(e)
		}
		return out
	default:
		return v
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Truncate(store.TimePrecision).Format(time.RFC3339Nano)
}

// decodeFields parses a JSONB column back into normalized fields.
func decodeFields(data []byte) (store.Fields, error) {
	if len(data) == 0 {
		return store.Fields{}, nil
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode document data: %w", err)
	}
	out, ok := decodeValue(raw).(store.Fields)
	if !ok {
		return nil, fmt.Errorf("document data is not an object")
	}
	return out, nil
}

func decodeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 1 {
			if s, ok := t[timeKey].(string); ok {
				if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
					return parsed.UTC()
				}
			}
		}
		out := make(store.Fields, len(t))
		for k, e := range t {
			out[k] = decodeValue(e)
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

// containment builds the JSONB value for a "data @> $n" predicate from the
// equality filters that can be pushed down. Equality on nil is left to the
// in-process evaluator since a missing field also compares equal to nil.
func containment(filters []store.Filter) (pushed map[string]any, rest []store.Filter) {
	for _, f := range filters {
		if f.Op == store.OpEqual && pushable(f.Value) {
			if pushed == nil {
				pushed = make(map[string]any)
			}
			if _, dup := pushed[f.Field]; !dup {
				pushed[f.Field] = encodeValue(f.Value)
				continue
			}
		}
		rest = append(rest, f)
	}
	return pushed, rest
}

func pushable(v any) bool {
	switch v.(type) {
	case string, bool, float64, time.Time:
		return true
	}
	return false
}

// rangePredicate renders a range filter as a typed JSONB comparison against
// placeholders $field and $value. Range filters only match values of the same
// type class, so a stored value of any other type compares false. ok is false
// for value types evaluated in process.
func rangePredicate(f store.Filter, field, value int) (predicate string, arg any, ok bool) {
	switch f.Op {
	case store.OpLess, store.OpLessEqual, store.OpGreater, store.OpGreaterEqual:
	default:
		return "", nil, false
	}

	switch v := f.Value.(type) {
	case float64:
		return fmt.Sprintf(`CASE WHEN jsonb_typeof(data->$%[1]d::text) = 'number' THEN (data->$%[1]d::text)::numeric %[2]s $%[3]d::numeric ELSE false END`,
			field, f.Op, value), v, true
	case string:
		return fmt.Sprintf(`CASE WHEN jsonb_typeof(data->$%[1]d::text) = 'string' THEN (data->>$%[1]d::text) COLLATE "C" %[2]s $%[3]d::text ELSE false END`,
			field, f.Op, value), v, true
	case time.Time:
		return fmt.Sprintf(`CASE WHEN jsonb_typeof(data->$%[1]d::text->'%[4]s') = 'string' THEN (data->$%[1]d::text->>'%[4]s')::timestamptz %[2]s $%[3]d::timestamptz ELSE false END`,
			field, f.Op, value, timeKey), v.UTC(), true
	}
	return "", nil, false
}
