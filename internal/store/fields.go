package store

import (
	"fmt"
	"reflect"
	"time"
)

// Fields holds the data of a document. Values are restricted to nil, bool,
// float64, string, time.Time, []any and Fields once normalized.
type Fields map[string]any

type deleteField struct{}

// DeleteField removes a field when used as a value in a merge or update write.
var DeleteField = deleteField{}

// TimePrecision is the resolution every backend stores timestamps at.
const TimePrecision = time.Millisecond

// Clone returns a deep copy.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Fields:
		return t.Clone()
	case map[string]any:
		return Fields(t).Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func (f Fields) hasDeleteMarker() bool {
	for _, v := range f {
		if v == DeleteField {
			return true
		}
	}
	return false
}

// Normalize converts caller supplied values to the canonical representation
// shared by all backends. Unsupported value types are rejected with ErrInvalidArgument.
func Normalize(f Fields) (Fields, error) {
	if f == nil {
		return Fields{}, nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		if k == "" {
			return nil, InvalidArgumentf("empty field name")
		}
		nv, err := NormalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = nv
	}
	return out, nil
}

// NormalizeValue converts a single value. See Normalize.
func NormalizeValue(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, string, float64:
		return t, nil
	case deleteField:
		return t, nil
	case int:
		return float64(t), nil
	case int8:
		return float64(t), nil
	case int16:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint:
		return float64(t), nil
	case uint8:
		return float64(t), nil
	case uint16:
		return float64(t), nil
	case uint32:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case float32:
		return float64(t), nil
	case time.Time:
		if t.IsZero() {
			return nil, nil
		}
		return t.UTC().Truncate(TimePrecision), nil
	case *time.Time:
		if t == nil || t.IsZero() {
			return nil, nil
		}
		return t.UTC().Truncate(TimePrecision), nil
	case Fields:
		return Normalize(t)
	case map[string]any:
		return Normalize(Fields(t))
	case map[string]int:
		out := make(Fields, len(t))
		for k, n := range t {
			out[k] = float64(n)
		}
		return out, nil
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			ne, err := NormalizeValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = ne
		}
		return out, nil
	default:
		return normalizeReflect(v)
	}
}

// normalizeReflect handles named types such as `type Level string`.
func normalizeReflect(v any) (any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range rv.Len() {
			ne, err := NormalizeValue(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = ne
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, InvalidArgumentf("unsupported map key type %s", rv.Type().Key())
		}
		out := make(Fields, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			ne, err := NormalizeValue(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = ne
		}
		return out, nil
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return NormalizeValue(rv.Elem().Interface())
	default:
		return nil, InvalidArgumentf("unsupported value type %T", v)
	}
}

// MergeFields applies patch on top of base and returns a new map. DeleteField
// values remove the corresponding key. Neither input is modified.
func MergeFields(base, patch Fields) Fields {
	out := base.Clone()
	if out == nil {
		out = make(Fields, len(patch))
	}
	for k, v := range patch {
		if v == DeleteField {
			delete(out, k)
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

// StripDeletes returns fields without DeleteField markers, for merges that create
// a document.
func StripDeletes(f Fields) Fields {
	return MergeFields(nil, f)
}
