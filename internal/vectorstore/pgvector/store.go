package pgvector

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"raglab/internal/domain"
	"raglab/internal/vectorstore"
)

// Storage is the Postgres + pgvector backend. Each collection is a class
// table with an explicit schema; the text key names the property holding
// chunk text and must be set before reading or writing chunks.
type Storage struct {
	db       *sql.DB
	embedder domain.Embedder
	textKey  string
	log      *slog.Logger
}

var (
	_ domain.VectorStore        = (*Storage)(nil)
	_ vectorstore.TextKeyed     = (*Storage)(nil)
	_ vectorstore.SourceDeleter = (*Storage)(nil)
)

// Open connects to dsn and makes sure the vector extension exists.
func Open(ctx context.Context, dsn string, embedder domain.Embedder, log *slog.Logger) (*Storage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, domain.BackendError("pgvector", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, domain.BackendError("pgvector", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		_ = db.Close()
		return nil, domain.BackendError("pgvector", err)
	}
	return New(db, embedder, log), nil
}

func New(db *sql.DB, embedder domain.Embedder, log *slog.Logger) *Storage {
	if log == nil {
		log = slog.Default()
	}
	return &Storage{db: db, embedder: embedder, log: log.With("backend", domain.BackendPgvector.String())}
}

func (s *Storage) Close() error { return s.db.Close() }

func (s *Storage) RequiresTextKey() bool { return true }

// WithTextKey returns a view of the store reading and writing chunk text
// through the given property.
func (s *Storage) WithTextKey(key string) domain.VectorStore {
	c := *s
	c.textKey = key
	return &c
}

// CreateCollection creates a minimal class with a single text property.
func (s *Storage) CreateCollection(ctx context.Context, name string, _ domain.Distance) error {
	key := s.textKey
	if key == "" {
		key = "text"
	}
	_, err := s.CreateSchema(ctx, ClassDefinition{Class: name, Properties: []Property{{Name: key, DataType: DataText}}})
	return err
}

func (s *Storage) DeleteCollection(ctx context.Context, name string) error {
	return s.drop(ctx, name, domain.KindCollectionNotFound)
}

func (s *Storage) ListCollections(ctx context.Context) iter.Seq2[domain.CollectionInfo, error] {
	return func(yield func(domain.CollectionInfo, error) bool) {
		defs, err := s.GetSchema(ctx, "")
		if err != nil {
			yield(domain.CollectionInfo{}, err)
			return
		}
		for _, d := range defs {
			info := domain.CollectionInfo{Name: d.Class}
			var n int64
			err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM "+pq.QuoteIdentifier(d.Class)).Scan(&n)
			if err != nil {
				if !yield(info, domain.BackendError(d.Class, err)) {
					return
				}
				continue
			}
			info.Count = uint64(n)
			if !yield(info, nil) {
				return
			}
		}
	}
}

func (s *Storage) requireTextKey() error {
	if s.textKey == "" {
		return domain.Errorf(domain.KindMissingTextKey, "text_key", "the pgvector backend needs the property holding chunk text")
	}
	return checkIdent(s.textKey)
}

// Upsert writes chunks into an existing class. Metadata keys that match a
// class property are also stored in that column.
func (s *Storage) Upsert(ctx context.Context, class string, chunks []domain.Chunk) error {
	if err := s.requireTextKey(); err != nil {
		return err
	}
	if err := checkIdent(class); err != nil {
		return err
	}
	defs, err := s.GetSchema(ctx, class)
	if err != nil {
		return err
	}
	def := defs[0]
	if p, ok := def.Property(s.textKey); !ok || p.DataType != DataText {
		return domain.Errorf(domain.KindInvalidArgument, s.textKey, "class %s has no text property with this name", class)
	}
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return domain.ModelServiceError(s.embedder.Name(), err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.BackendError(class, err)
	}
	defer tx.Rollback()

	for i, c := range chunks {
		stmt, args, err := insertSQL(def, s.textKey, c, vectors[i])
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return domain.BackendError(class, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.BackendError(class, err)
	}
	s.log.DebugContext(ctx, "inserted objects", "class", class, "count", len(chunks))
	return nil
}

func insertSQL(def ClassDefinition, textKey string, c domain.Chunk, vec []float32) (string, []any, error) {
	meta, err := json.Marshal(nonNil(c.Metadata))
	if err != nil {
		return "", nil, domain.NewError(domain.KindInvalidArgument, def.Class, "metadata is not JSON serializable", err)
	}
	cols := []string{idColumn, pq.QuoteIdentifier(textKey), metadataColumn, embeddingColumn}
	args := []any{uuid.NewString(), c.Text, string(meta), pgvector.NewVector(vec)}

	keys := make([]string, 0, len(c.Metadata))
	for k := range c.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == textKey {
			continue
		}
		if _, ok := def.Property(k); ok {
			cols = append(cols, pq.QuoteIdentifier(k))
			args = append(args, c.Metadata[k])
		}
	}
	marks := make([]string, len(cols))
	for i := range marks {
		marks[i] = fmt.Sprintf("$%d", i+1)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pq.QuoteIdentifier(def.Class), strings.Join(cols, ", "), strings.Join(marks, ", "))
	return stmt, args, nil
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func (s *Storage) Search(ctx context.Context, class string, req domain.SearchRequest) (domain.Retrieval, error) {
	if err := s.requireTextKey(); err != nil {
		return domain.Retrieval{}, err
	}
	return vectorstore.Dispatch(ctx, s, s.embedder, class, req, s.log)
}

// Nearest orders rows by cosine distance. Score is that distance.
func (s *Storage) Nearest(ctx context.Context, class string, q vectorstore.NearestQuery) ([]vectorstore.Hit, error) {
	if err := s.requireTextKey(); err != nil {
		return nil, err
	}
	if err := checkIdent(class); err != nil {
		return nil, err
	}
	stmt, args := nearestSQL(class, s.textKey, q)
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		if pqCode(err) == codeUndefinedTable {
			return nil, domain.NewError(domain.KindCollectionNotFound, class, "collection does not exist", err)
		}
		return nil, domain.BackendError(class, err)
	}
	defer rows.Close()

	var hits []vectorstore.Hit
	for rows.Next() {
		var (
			text     sql.NullString
			metaRaw  []byte
			distance float64
			vec      pgvector.Vector
		)
		dest := []any{&text, &metaRaw, &distance}
		if q.WithVectors {
			dest = append(dest, &vec)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, domain.BackendError(class, err)
		}
		meta, err := decodeMetadata(metaRaw)
		if err != nil {
			return nil, domain.BackendError(class, err)
		}
		h := vectorstore.Hit{
			Chunk:     domain.Chunk{Text: text.String, Metadata: meta},
			Score:     distance,
			Relevance: min(1, max(0, 1-distance)),
		}
		if q.WithVectors {
			h.Vector = vec.Slice()
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.BackendError(class, err)
	}
	return hits, nil
}

func nearestSQL(class, textKey string, q vectorstore.NearestQuery) (string, []any) {
	cols := []string{pq.QuoteIdentifier(textKey), metadataColumn, embeddingColumn + " <=> $1 AS distance"}
	if q.WithVectors {
		cols = append(cols, embeddingColumn)
	}
	args := []any{pgvector.NewVector(q.Vector)}

	keys := make([]string, 0, len(q.Filter))
	for k := range q.Filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var conds []string
	for _, k := range keys {
		args = append(args, fmt.Sprint(q.Filter[k]))
		conds = append(conds, fmt.Sprintf("%s->>%s = $%d", metadataColumn, pq.QuoteLiteral(k), len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY distance LIMIT %d",
		strings.Join(cols, ", "), pq.QuoteIdentifier(class), where, q.Limit)
	return stmt, args
}

// decodeMetadata keeps integral JSON numbers as int64.
func decodeMetadata(raw []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	for k, v := range out {
		out[k] = normalizeNumber(v)
	}
	return out, nil
}

func normalizeNumber(v any) any {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, x := range val {
			val[k] = normalizeNumber(x)
		}
		return val
	case []any:
		for i, x := range val {
			val[i] = normalizeNumber(x)
		}
		return val
	}
	return v
}
