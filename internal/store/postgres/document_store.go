package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/disciplinary/internal/store"
)

var _ store.Store = (*DocumentStore)(nil)

// dbPool is the subset of *pgxpool.Pool used by the store.
type dbPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

const selectColumns = `path, id, data, version, create_time, update_time`

type docKey struct {
	path string
	id   string
}

// DocumentStore implements store.Store on a single PostgreSQL table holding
// document fields as JSONB. Equality filters are pushed down as JSONB
// containment and the remaining filters, ordering and cursors are evaluated
// with store.Apply so results match every other backend.
type DocumentStore struct {
	pool         dbPool
	queryTimeout time.Duration
	now          func() time.Time
}

// Option configures a DocumentStore.
type Option func(*DocumentStore)

// WithClock sets the clock used for create and update timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *DocumentStore) { s.now = now }
}

// WithQueryTimeout bounds every statement issued by the store. Zero disables the bound.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *DocumentStore) { s.queryTimeout = d }
}

// NewDocumentStore opens a connection pool, optionally applies migrations and
// returns the store. Close releases the pool.
func NewDocumentStore(ctx context.Context, cfg *StoreConfig, opts ...Option) (*DocumentStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("store config is required")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}

	pool, err := NewPool(ctx, &cfg.PoolConfig)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	if cfg.QueryTimeout > 0 {
		opts = append([]Option{WithQueryTimeout(cfg.QueryTimeout)}, opts...)
	}

	return newDocumentStore(pool, opts...), nil
}

func newDocumentStore(pool dbPool, opts ...Option) *DocumentStore {
	s := &DocumentStore{
		pool: pool,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DocumentStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

// Get retrieves a document by path and ID.
func (s *DocumentStore) Get(ctx context.Context, path, id string) (*store.Document, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM documents WHERE path = $1 AND id = $2`, path, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.NotFoundf("%s/%s", path, id)
		}
		return nil, fmt.Errorf("failed to get document %s/%s: %w", path, id, mapPostgresError(err))
	}

	return doc, nil
}

// Query evaluates q against a single collection.
func (s *DocumentStore) Query(ctx context.Context, path string, q store.Query) ([]*store.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return s.query(ctx, "path", path, q)
}

// QueryGroup evaluates q across every collection with the given final path segment.
func (s *DocumentStore) QueryGroup(ctx context.Context, collectionID string, q store.Query) ([]*store.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return s.query(ctx, "collection_id", collectionID, q)
}

func (s *DocumentStore) query(ctx context.Context, column, value string, q store.Query) ([]*store.Document, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	sql, args, native, err := buildQuery(column, value, q)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", mapPostgresError(err))
	}

	docs, err := collectDocuments(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", mapPostgresError(err))
	}

	if native {
		return docs, nil
	}
	return store.Apply(docs, q), nil
}

// buildQuery renders the SELECT for q. Equality and range filters on scalar
// values run in the database. native reports whether the statement already
// applies every filter, the ordering, the cursor and the limit.
func buildQuery(column, value string, q store.Query) (sql string, args []any, native bool, err error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + selectColumns + ` FROM documents WHERE ` + column + ` = $1`)
	args = []any{value}

	pushed, rest := containment(q.Filters)
	if pushed != nil {
		data, err := json.Marshal(pushed)
		if err != nil {
			return "", nil, false, fmt.Errorf("failed to encode filters: %w", err)
		}
		args = append(args, string(data))
		fmt.Fprintf(&sb, ` AND data @> $%d::jsonb`, len(args))
	}

	var inProcess []store.Filter
	for _, f := range rest {
		predicate, arg, ok := rangePredicate(f, len(args)+1, len(args)+2)
		if !ok {
			inProcess = append(inProcess, f)
			continue
		}
		args = append(args, f.Field, arg)
		sb.WriteString(` AND ` + predicate)
	}

	// Ordering by ID alone needs nothing from the document body. Ordering by a
	// field sorts the filtered rows in process.
	native = q.OrderBy == "" && len(inProcess) == 0
	if !native {
		return sb.String(), args, false, nil
	}

	op, dir := ">", "ASC"
	if q.Direction == store.Descending {
		op, dir = "<", "DESC"
	}
	if q.After != nil {
		args = append(args, q.After.ID)
		fmt.Fprintf(&sb, ` AND id %s $%d`, op, len(args))
	}
	fmt.Fprintf(&sb, ` ORDER BY id %s`, dir)
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}

	return sb.String(), args, true, nil
}

// Commit applies all writes in one transaction. Every addressed row is read
// with SELECT ... FOR UPDATE before any row is changed, so expected versions
// are checked against locked state.
func (s *DocumentStore) Commit(ctx context.Context, writes []store.Write) error {
	if err := store.ValidateWrites(writes); err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}

	normalized := make([]store.Write, len(writes))
	for i, w := range writes {
		fields, err := store.Normalize(w.Fields)
		if err != nil {
			return err
		}
		w.Fields = fields
		normalized[i] = w
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapPostgresError(err))
	}

	if err := s.applyWrites(ctx, tx, normalized); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapPostgresError(err))
	}

	log.Debug().Int("writes", len(writes)).Msg("Committed document batch")
	return nil
}

type stagedDoc struct {
	existed bool
	created bool
	doc     *store.Document
}

func (s *DocumentStore) applyWrites(ctx context.Context, tx pgx.Tx, writes []store.Write) error {
	now := s.now().UTC().Truncate(store.TimePrecision)
	staged := make(map[docKey]*stagedDoc)
	var order []docKey

	for _, w := range writes {
		k := docKey{path: w.Path, id: w.ID}
		st, ok := staged[k]
		if !ok {
			current, err := lockDocument(ctx, tx, w.Path, w.ID)
			if err != nil {
				return err
			}
			st = &stagedDoc{existed: current != nil, doc: current}
			staged[k] = st
			order = append(order, k)
		}

		next, err := store.ApplyWrite(st.doc, w, now)
		if err != nil {
			return err
		}
		st.doc = next
		st.created = st.created || w.Kind == store.WriteCreate
	}

	for _, k := range order {
		if err := persist(ctx, tx, k, staged[k]); err != nil {
			return err
		}
	}
	return nil
}

func lockDocument(ctx context.Context, tx pgx.Tx, path, id string) (*store.Document, error) {
	row := tx.QueryRow(ctx, `SELECT `+selectColumns+` FROM documents WHERE path = $1 AND id = $2 FOR UPDATE`, path, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock document %s/%s: %w", path, id, mapPostgresError(err))
	}
	return doc, nil
}

func persist(ctx context.Context, tx pgx.Tx, k docKey, st *stagedDoc) error {
	switch {
	case st.doc == nil && !st.existed:
		return nil

	case st.doc == nil:
		if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE path = $1 AND id = $2`, k.path, k.id); err != nil {
			return fmt.Errorf("failed to delete document %s/%s: %w", k.path, k.id, mapPostgresError(err))
		}
		return nil
	}

	data, err := encodeFields(st.doc.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode document %s/%s: %w", k.path, k.id, err)
	}

	if !st.existed {
		_, err = tx.Exec(ctx, `
			INSERT INTO documents (path, id, collection_id, data, version, create_time, update_time)
			VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7)
		`, k.path, k.id, store.CollectionID(k.path), string(data), st.doc.Version, st.doc.CreateTime, st.doc.UpdateTime)
		if err != nil {
			if st.created && isUniqueViolation(err) {
				return fmt.Errorf("%w: %s/%s", store.ErrAlreadyExists, k.path, k.id)
			}
			return fmt.Errorf("failed to insert document %s/%s: %w", k.path, k.id, mapPostgresError(err))
		}
		return nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE documents SET data = $3::jsonb, version = $4, update_time = $5
		WHERE path = $1 AND id = $2
	`, k.path, k.id, string(data), st.doc.Version, st.doc.UpdateTime)
	if err != nil {
		return fmt.Errorf("failed to update document %s/%s: %w", k.path, k.id, mapPostgresError(err))
	}
	return nil
}

func scanDocument(row pgx.Row) (*store.Document, error) {
	var (
		doc  store.Document
		data []byte
	)
	if err := row.Scan(&doc.Path, &doc.ID, &data, &doc.Version, &doc.CreateTime, &doc.UpdateTime); err != nil {
		return nil, err
	}

	fields, err := decodeFields(data)
	if err != nil {
		return nil, err
	}
	doc.Fields = fields
	doc.CreateTime = doc.CreateTime.UTC()
	doc.UpdateTime = doc.UpdateTime.UTC()
	return &doc, nil
}

func collectDocuments(rows pgx.Rows) ([]*store.Document, error) {
	defer rows.Close()

	var docs []*store.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Close releases the connection pool.
func (s *DocumentStore) Close() error {
	s.pool.Close()
	return nil
}
