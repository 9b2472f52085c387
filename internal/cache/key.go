package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

const keySeparator = "|"

var timeType = reflect.TypeOf(time.Time{})

// Key builds a deterministic cache key from an operation name, organization,
// entity kind and query parameters. Parameters are canonicalized with every
// scalar tagged by its type class, so a timestamp and a string with the same
// text never share a key while numbers of different Go types still do.
// Components are quoted so different inputs can never produce the same key.
func Key(operation, orgID, kind string, params any) string {
	canonical, err := json.Marshal(canonicalize(reflect.ValueOf(params)))
	if err != nil {
		// unmarshalable parameters still key uniquely by their Go representation
		canonical = []byte(strconv.Quote(fmt.Sprintf("%#v", params)))
	}
	return strings.Join([]string{
		operation,
		strconv.Quote(orgID),
		strconv.Quote(kind),
		string(canonical),
	}, keySeparator)
}

func tagged(class string, v any) map[string]any {
	return map[string]any{"t": class, "v": v}
}

func canonicalize(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	if v.Type() == timeType {
		return tagged("time", v.Interface().(time.Time).UTC().Format(time.RFC3339Nano))
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return canonicalize(v.Elem())
	case reflect.String:
		return tagged("string", v.String())
	case reflect.Bool:
		return tagged("bool", v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return tagged("number", float64(v.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return tagged("number", float64(v.Uint()))
	case reflect.Float32, reflect.Float64:
		return tagged("number", v.Float())
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil
		}
		out := make([]any, v.Len())
		for i := range v.Len() {
			out[i] = canonicalize(v.Index(i))
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = canonicalize(iter.Value())
		}
		return out
	case reflect.Struct:
		t := v.Type()
		out := make(map[string]any, t.NumField())
		for i := range t.NumField() {
			if t.Field(i).IsExported() {
				out[t.Field(i).Name] = canonicalize(v.Field(i))
			}
		}
		return out
	default:
		return tagged(v.Kind().String(), fmt.Sprintf("%v", v.Interface()))
	}
}

// TenantPattern matches every key belonging to an organization.
func TenantPattern(orgID string) string {
	return keySeparator + strconv.Quote(orgID) + keySeparator
}

// ScopePattern matches every key for one entity kind of an organization.
func ScopePattern(orgID, kind string) string {
	return keySeparator + strconv.Quote(orgID) + keySeparator + strconv.Quote(kind) + keySeparator
}
