package mongo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/disciplinary/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestRecordRoundTrip(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	doc := &store.Document{
		Path: "organizations/acme/warnings",
		ID:   "w1",
		Fields: store.Fields{
			"level":     "verbal",
			"priority":  float64(2),
			"issueDate": created,
			"history":   []any{store.Fields{"by": "u1"}},
		},
		Version:    3,
		CreateTime: created,
		UpdateTime: created,
	}

	rec := toRecord(doc)
	require.Equal(t, "organizations/acme/warnings/w1", rec.Key)

	raw, err := bson.Marshal(rec)
	require.NoError(t, err)

	var decoded record
	require.NoError(t, bson.Unmarshal(raw, &decoded))
	require.Equal(t, doc, decoded.document())
}

func TestDecodeValue(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	require.Equal(t, at, decodeValue(primitive.NewDateTimeFromTime(at)))
	require.Equal(t, float64(7), decodeValue(int32(7)))
	require.Equal(t, float64(7), decodeValue(int64(7)))
	require.Equal(t, []any{"a", float64(1)}, decodeValue(primitive.A{"a", int32(1)}))
	require.Equal(t, store.Fields{"x": "y"}, decodeValue(primitive.D{{Key: "x", Value: "y"}}))
	require.Equal(t, store.Fields{"x": "y"}, decodeValue(primitive.M{"x": "y"}))
}

func TestBuildFilter(t *testing.T) {
	scope := bson.E{Key: "path", Value: "organizations/acme/warnings"}

	t.Run("equality filters are pushed down", func(t *testing.T) {
		filter, native := buildFilter(scope, []store.Filter{
			store.Where("employeeId", store.OpEqual, "e1"),
			store.Where("isActive", store.OpEqual, true),
		})
		require.True(t, native)
		require.Equal(t, bson.D{
			scope,
			{Key: "data.employeeId", Value: "e1"},
			{Key: "data.isActive", Value: true},
		}, filter)
	})

	t.Run("other operators are evaluated in process", func(t *testing.T) {
		filter, native := buildFilter(scope, []store.Filter{
			store.Where("employeeId", store.OpEqual, "e1"),
			store.Where("employeeId", store.OpEqual, "e2"),
			store.Where("archivedAt", store.OpEqual, nil),
			store.Where("isActive", store.OpNotEqual, true),
		})
		require.False(t, native)
		require.Len(t, filter, 2)
	})

	t.Run("range bounds on a field share one operator document", func(t *testing.T) {
		from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		filter, native := buildFilter(scope, []store.Filter{
			store.Where("issueDate", store.OpGreaterEqual, from),
			store.Where("level", store.OpEqual, "verbal"),
			store.Where("issueDate", store.OpLess, from.AddDate(0, 1, 0)),
			store.Where("days", store.OpGreater, float64(1)),
		})
		require.True(t, native)
		require.Equal(t, bson.D{
			scope,
			{Key: "data.level", Value: "verbal"},
			{Key: "data.issueDate", Value: bson.D{{Key: "$gte", Value: from}, {Key: "$lt", Value: from.AddDate(0, 1, 0)}}},
			{Key: "data.days", Value: bson.D{{Key: "$gt", Value: float64(1)}}},
		}, filter)
	})

	t.Run("ranges that cannot be expressed stay in process", func(t *testing.T) {
		filter, native := buildFilter(scope, []store.Filter{
			store.Where("days", store.OpEqual, float64(2)),
			store.Where("days", store.OpGreater, float64(1)),
			store.Where("level", store.OpGreater, "a"),
			store.Where("level", store.OpGreater, "b"),
			store.Where("isActive", store.OpGreater, false),
		})
		require.False(t, native)
		require.Equal(t, bson.D{
			scope,
			{Key: "data.days", Value: float64(2)},
			{Key: "data.level", Value: bson.D{{Key: "$gt", Value: "a"}}},
		}, filter)
	})

	t.Run("cursor direction", func(t *testing.T) {
		require.Equal(t, bson.E{Key: "docId", Value: bson.D{{Key: "$gt", Value: "w1"}}},
			cursorFilter(&store.Cursor{ID: "w1"}, store.Ascending))
		require.Equal(t, bson.E{Key: "docId", Value: bson.D{{Key: "$lt", Value: "w1"}}},
			cursorFilter(&store.Cursor{ID: "w1"}, store.Descending))
		require.Equal(t, -1, sortOrder(store.Descending))
	})
}

func TestMapMongoError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want store.Kind
	}{
		{"no documents", mongo.ErrNoDocuments, store.KindNotFound},
		{"duplicate key", mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000}}}, store.KindTransient},
		{"write conflict", mongo.CommandError{Code: writeConflictCode, Name: "WriteConflict"}, store.KindTransient},
		{"transient transaction", mongo.CommandError{Code: 251, Labels: []string{transientTransactionLabel}}, store.KindTransient},
		{"unauthorized", mongo.CommandError{Code: unauthorizedCode, Name: "Unauthorized"}, store.KindFatal},
		{"deadline", fmt.Errorf("find: %w", context.DeadlineExceeded), store.KindTransient},
		{"unknown", errors.New("boom"), store.KindFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, store.Classify(mapMongoError(tt.err)))
		})
	}

	t.Run("write conflicts surface as version conflicts", func(t *testing.T) {
		require.ErrorIs(t, mapMongoError(mongo.CommandError{Code: writeConflictCode}), store.ErrConflict)
	})

	t.Run("unauthorized surfaces as permission denied", func(t *testing.T) {
		require.ErrorIs(t, mapMongoError(mongo.CommandError{Code: unauthorizedCode}), store.ErrPermissionDenied)
	})
}

func TestCheckMatched(t *testing.T) {
	t.Run("guarded write that touched nothing conflicts", func(t *testing.T) {
		err := checkMatched("organizations/acme/employees/e1", 0)
		require.ErrorIs(t, err, store.ErrConflict)
		require.True(t, store.IsTransient(err))
	})

	t.Run("matched write succeeds", func(t *testing.T) {
		require.NoError(t, checkMatched("organizations/acme/employees/e1", 1))
	})
}

func TestConfig(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	require.Equal(t, "disciplinary", cfg.Database)
	require.Equal(t, int32(10), cfg.ConnectTimeoutSeconds)
	require.Error(t, cfg.Validate())

	cfg.URI = "mongodb://localhost:27017/?replicaSet=rs0"
	require.NoError(t, cfg.Validate())
}
