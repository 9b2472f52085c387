// Package mongo implements store.Store on MongoDB. Batches run inside a
// multi-document transaction, so the server must be a replica set member.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/disciplinary/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var _ store.Store = (*DocumentStore)(nil)

// Config holds the MongoDB connection settings.
type Config struct {
	// URI is the MongoDB connection string.
	URI string `yaml:"uri"`

	// Database holds every collection.
	// Default: disciplinary
	Database string `yaml:"database"`

	// ConnectTimeoutSeconds bounds connecting and the initial ping.
	// Default: 10
	ConnectTimeoutSeconds int32 `yaml:"connect_timeout_seconds"`
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.Database == "" {
		c.Database = "disciplinary"
	}
	if c.ConnectTimeoutSeconds == 0 {
		c.ConnectTimeoutSeconds = 10
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("mongo uri is required")
	}
	return nil
}

// indexModels are created on every collection before its first write.
var indexModels = []mongo.IndexModel{
	{
		Keys:    bson.D{{Key: "path", Value: 1}, {Key: "docId", Value: 1}},
		Options: options.Index().SetName("uniq_path_docId").SetUnique(true),
	},
	{
		Keys:    bson.D{{Key: "docId", Value: 1}},
		Options: options.Index().SetName("idx_docId"),
	},
}

// DocumentStore implements store.Store using MongoDB.
type DocumentStore struct {
	client *mongo.Client
	db     *mongo.Database
	now    func() time.Time

	indexed sync.Map // collection ID -> struct{}
}

// NewDocumentStore connects to MongoDB and verifies connectivity.
func NewDocumentStore(ctx context.Context, cfg *Config) (*DocumentStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mongo config is required")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mongo config: %w", err)
	}

	timeout := time.Duration(cfg.ConnectTimeoutSeconds) * time.Second
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI).SetConnectTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return &DocumentStore{
		client: client,
		db:     client.Database(cfg.Database),
		now:    time.Now,
	}, nil
}

func (s *DocumentStore) collection(path string) *mongo.Collection {
	return s.db.Collection(store.CollectionID(path))
}

// EnsureIndexes creates the document indexes on the named collections.
func (s *DocumentStore) EnsureIndexes(ctx context.Context, collectionIDs ...string) error {
	for _, id := range collectionIDs {
		if _, ok := s.indexed.Load(id); ok {
			continue
		}
		if _, err := s.db.Collection(id).Indexes().CreateMany(ctx, indexModels); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", id, mapMongoError(err))
		}
		s.indexed.Store(id, struct{}{})
		log.Debug().Str("collection", id).Msg("Ensured document indexes")
	}
	return nil
}

// Get retrieves a document by path and ID.
func (s *DocumentStore) Get(ctx context.Context, path, id string) (*store.Document, error) {
	var rec record
	err := s.collection(path).FindOne(ctx, bson.D{{Key: "_id", Value: recordKey(path, id)}}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.NotFoundf("%s/%s", path, id)
		}
		return nil, fmt.Errorf("failed to get document %s/%s: %w", path, id, mapMongoError(err))
	}
	return rec.document(), nil
}

// Query evaluates q against a single collection.
func (s *DocumentStore) Query(ctx context.Context, path string, q store.Query) ([]*store.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return s.find(ctx, s.collection(path), bson.E{Key: "path", Value: path}, q)
}

// QueryGroup evaluates q across every collection with the given final path
// segment. Those documents already share one MongoDB collection.
func (s *DocumentStore) QueryGroup(ctx context.Context, collectionID string, q store.Query) ([]*store.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	scope := bson.E{Key: "path", Value: bson.D{{Key: "$exists", Value: true}}}
	return s.find(ctx, s.db.Collection(collectionID), scope, q)
}

func (s *DocumentStore) find(ctx context.Context, coll *mongo.Collection, scope bson.E, q store.Query) ([]*store.Document, error) {
	filter, native := buildFilter(scope, q.Filters)
	native = native && q.OrderBy == ""

	opts := options.Find()
	if native {
		if q.After != nil {
			filter = append(filter, cursorFilter(q.After, q.Direction))
		}
		opts.SetSort(bson.D{{Key: "docId", Value: sortOrder(q.Direction)}})
		if q.Limit > 0 {
			opts.SetLimit(int64(q.Limit))
		}
	}

	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", coll.Name(), mapMongoError(err))
	}

	var recs []record
	if err := cur.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", coll.Name(), mapMongoError(err))
	}

	docs := make([]*store.Document, len(recs))
	for i, rec := range recs {
		docs[i] = rec.document()
	}

	if native {
		return docs, nil
	}
	return store.Apply(docs, q), nil
}

// Commit applies writes inside a multi-document transaction.
func (s *DocumentStore) Commit(ctx context.Context, writes []store.Write) error {
	if err := store.ValidateWrites(writes); err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}

	normalized := make([]store.Write, len(writes))
	collections := make([]string, 0, len(writes))
	for i, w := range writes {
		fields, err := store.Normalize(w.Fields)
		if err != nil {
			return err
		}
		w.Fields = fields
		normalized[i] = w
		collections = append(collections, store.CollectionID(w.Path))
	}

	// Indexes cannot be created inside a transaction
	if err := s.EnsureIndexes(ctx, collections...); err != nil {
		return err
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", mapMongoError(err))
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, s.applyWrites(sc, normalized)
	})
	if err != nil {
		return mapMongoError(err)
	}

	log.Debug().Int("writes", len(writes)).Msg("Committed document batch")
	return nil
}

type stagedDoc struct {
	path    string
	id      string
	prior   int64 // version read inside the transaction, 0 when missing
	created bool
	doc     *store.Document
}

func (s *DocumentStore) applyWrites(ctx context.Context, writes []store.Write) error {
	now := s.now().UTC().Truncate(store.TimePrecision)
	staged := make(map[string]*stagedDoc)
	var order []string

	for _, w := range writes {
		key := recordKey(w.Path, w.ID)
		st, ok := staged[key]
		if !ok {
			current, err := s.Get(ctx, w.Path, w.ID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			st = &stagedDoc{path: w.Path, id: w.ID, doc: current}
			if current != nil {
				st.prior = current.Version
			}
			staged[key] = st
			order = append(order, key)
		}

		next, err := store.ApplyWrite(st.doc, w, now)
		if err != nil {
			return err
		}
		st.doc = next
		st.created = st.created || w.Kind == store.WriteCreate
	}

	for _, key := range order {
		if err := s.persist(ctx, key, staged[key]); err != nil {
			return err
		}
	}
	return nil
}

func (s *DocumentStore) persist(ctx context.Context, key string, st *stagedDoc) error {
	coll := s.collection(st.path)

	switch {
	case st.doc == nil && st.prior == 0:
		return nil

	case st.doc == nil:
		res, err := coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: key}, {Key: "version", Value: st.prior}})
		if err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, mapMongoError(err))
		}
		return checkMatched(key, res.DeletedCount)

	case st.prior == 0:
		if _, err := coll.InsertOne(ctx, toRecord(st.doc)); err != nil {
			if st.created && mongo.IsDuplicateKeyError(err) {
				return fmt.Errorf("%w: %s", store.ErrAlreadyExists, key)
			}
			return fmt.Errorf("failed to insert %s: %w", key, mapMongoError(err))
		}
		return nil
	}

	res, err := coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: key}, {Key: "version", Value: st.prior}}, toRecord(st.doc))
	if err != nil {
		return fmt.Errorf("failed to replace %s: %w", key, mapMongoError(err))
	}
	return checkMatched(key, res.MatchedCount)
}

// checkMatched turns a version-guarded write that touched no record into a
// conflict: the record changed or vanished after it was read.
func checkMatched(key string, n int64) error {
	if n == 0 {
		return fmt.Errorf("%w: %s changed concurrently", store.ErrConflict, key)
	}
	return nil
}

// Close disconnects the client.
func (s *DocumentStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
