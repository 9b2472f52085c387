package util

import (
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

// NewID returns a compact, time ordered document identifier.
// It is a UUIDv7 encoded with base58 so IDs created later sort after earlier ones
// within the same millisecond bucket.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source is broken
		id = uuid.New()
	}
	return base58.Encode(id[:])
}

func AsInt32(i int) int32 {
	if i > math.MaxInt32 {
		return math.MaxInt32
	}
	if i < math.MinInt32 {
		return math.MinInt32
	}
	// #nosec G115 - bounded by explicit check
	return int32(i)
}

// AsFloat coerces a stored numeric value to float64.
// Document values decode as float64 from JSON backends and as int32/int64 from BSON.
func AsFloat(v any) float64 {
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
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// AsInt coerces a stored numeric value to int, truncating fractions.
func AsInt(v any) int {
	return int(AsFloat(v))
}

// AsString returns v when it is a string and "" otherwise.
func AsString(v any) string {
	s, _ := v.(string)
	return s
}

// AsTime returns v when it is a time.Time (or RFC3339 string) and the zero time otherwise.
func AsTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case *time.Time:
		if t == nil {
			return time.Time{}
		}
		return *t
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}
		}
		return parsed
	default:
		return time.Time{}
	}
}

// Last returns the trailing n runes of s, or s when it is shorter.
func Last(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
