package pgvector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"raglab/internal/domain"
)

// Object is one stored row as returned by GetBatch.
type Object struct {
	ID         string         `json:"id"`
	Properties map[string]any `json:"properties"`
	Vector     []float32      `json:"vector,omitempty"`
}

// BatchPage is one page of a keyset scan. Cursor is empty once the class
// has been read to the end.
type BatchPage struct {
	Objects []Object `json:"objects"`
	Cursor  string   `json:"cursor"`
}

const schemaQuery = `
SELECT c.table_name, c.column_name, c.data_type, COALESCE(obj_description(format('%I', c.table_name)::regclass, 'pg_class'), '')
FROM information_schema.columns c
WHERE c.table_schema = current_schema()
  AND c.table_name IN (
    SELECT table_name FROM information_schema.columns
    WHERE table_schema = current_schema() AND column_name = 'embedding' AND udt_name = 'vector'
  )
  AND ($1 = '' OR c.table_name = $1)
ORDER BY c.table_name, c.ordinal_position`

// GetSchema returns every class, or only the named one. A named class that
// does not exist is SchemaNotFound.
func (s *Storage) GetSchema(ctx context.Context, class string) ([]ClassDefinition, error) {
	rows, err := s.db.QueryContext(ctx, schemaQuery, class)
	if err != nil {
		return nil, domain.BackendError("schema", err)
	}
	defer rows.Close()

	var defs []ClassDefinition
	for rows.Next() {
		var table, column, sqlType, comment string
		if err := rows.Scan(&table, &column, &sqlType, &comment); err != nil {
			return nil, domain.BackendError("schema", err)
		}
		if len(defs) == 0 || defs[len(defs)-1].Class != table {
			defs = append(defs, ClassDefinition{Class: table, Description: comment})
		}
		if reserved[column] {
			continue
		}
		dt, ok := dataTypeOf(sqlType)
		if !ok {
			continue
		}
		d := &defs[len(defs)-1]
		d.Properties = append(d.Properties, Property{Name: column, DataType: dt})
	}
	if err := rows.Err(); err != nil {
		return nil, domain.BackendError("schema", err)
	}
	if class != "" && len(defs) == 0 {
		return nil, domain.Errorf(domain.KindSchemaNotFound, class, "class does not exist")
	}
	return defs, nil
}

// CreateSchema creates the class table and returns the stored definition.
func (s *Storage) CreateSchema(ctx context.Context, def ClassDefinition) (ClassDefinition, error) {
	stmt, err := createTableSQL(def)
	if err != nil {
		return ClassDefinition{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ClassDefinition{}, domain.BackendError(def.Class, err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		if pqCode(err) == codeDuplicateTable {
			return ClassDefinition{}, domain.NewError(domain.KindDuplicateCollection, def.Class, "class already exists", err)
		}
		return ClassDefinition{}, domain.BackendError(def.Class, err)
	}
	if def.Description != "" {
		if _, err := tx.ExecContext(ctx, commentSQL(def)); err != nil {
			return ClassDefinition{}, domain.BackendError(def.Class, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return ClassDefinition{}, domain.BackendError(def.Class, err)
	}
	s.log.InfoContext(ctx, "created class", "class", def.Class, "properties", len(def.Properties))

	defs, err := s.GetSchema(ctx, def.Class)
	if err != nil {
		return ClassDefinition{}, err
	}
	return defs[0], nil
}

// DeleteSchema drops the class and all of its objects.
func (s *Storage) DeleteSchema(ctx context.Context, class string) error {
	return s.drop(ctx, class, domain.KindSchemaNotFound)
}

func (s *Storage) drop(ctx context.Context, class string, missing domain.Kind) error {
	if err := checkIdent(class); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DROP TABLE "+pq.QuoteIdentifier(class)); err != nil {
		if pqCode(err) == codeUndefinedTable {
			return domain.NewError(missing, class, "class does not exist", err)
		}
		return domain.BackendError(class, err)
	}
	s.log.InfoContext(ctx, "dropped class", "class", class)
	return nil
}

// GetBatch reads up to batchSize objects with id greater than cursor.
// An empty properties list selects every class property.
func (s *Storage) GetBatch(ctx context.Context, class string, properties []string, batchSize int, cursor string) (BatchPage, error) {
	if batchSize <= 0 {
		batchSize = 20
	}
	defs, err := s.GetSchema(ctx, class)
	if err != nil {
		return BatchPage{}, err
	}
	def := defs[0]
	if len(properties) == 0 {
		for _, p := range def.Properties {
			properties = append(properties, p.Name)
		}
	}
	for _, p := range properties {
		if _, ok := def.Property(p); !ok {
			return BatchPage{}, domain.Errorf(domain.KindInvalidArgument, p, "class %s has no such property", class)
		}
	}
	if cursor == "None" {
		cursor = ""
	}
	if cursor != "" {
		if _, err := uuid.Parse(cursor); err != nil {
			return BatchPage{}, domain.NewError(domain.KindInvalidArgument, cursor, "cursor must be an object id", err)
		}
	}

	stmt, args := batchSQL(class, properties, batchSize, cursor)
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return BatchPage{}, domain.BackendError(class, err)
	}
	defer rows.Close()

	var page BatchPage
	for rows.Next() {
		var (
			id  string
			vec pgvector.Vector
		)
		vals := make([]any, len(properties))
		dest := []any{&id, &vec}
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return BatchPage{}, domain.BackendError(class, err)
		}
		obj := Object{ID: id, Properties: make(map[string]any, len(properties)), Vector: vec.Slice()}
		for i, p := range properties {
			obj.Properties[p] = columnValue(vals[i])
		}
		page.Objects = append(page.Objects, obj)
	}
	if err := rows.Err(); err != nil {
		return BatchPage{}, domain.BackendError(class, err)
	}
	if len(page.Objects) == batchSize {
		page.Cursor = page.Objects[len(page.Objects)-1].ID
	}
	return page, nil
}

func batchSQL(class string, properties []string, batchSize int, cursor string) (string, []any) {
	cols := []string{idColumn + "::text", embeddingColumn}
	for _, p := range properties {
		cols = append(cols, pq.QuoteIdentifier(p))
	}
	var args []any
	where := ""
	if cursor != "" {
		args = append(args, cursor)
		where = " WHERE " + idColumn + " > $1::uuid"
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s LIMIT %d",
		strings.Join(cols, ", "), pq.QuoteIdentifier(class), where, idColumn, batchSize)
	return stmt, args
}

func columnValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	}
	return v
}

// DeleteObjects removes objects by id and reports how many were deleted.
func (s *Storage) DeleteObjects(ctx context.Context, class string, ids []string) (int64, error) {
	if err := checkIdent(class); err != nil {
		return 0, err
	}
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return 0, domain.NewError(domain.KindInvalidArgument, id, "object id must be a UUID", err)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s = ANY($1::uuid[])", pq.QuoteIdentifier(class), idColumn),
		pq.Array(ids))
	if err != nil {
		if pqCode(err) == codeUndefinedTable {
			return 0, domain.NewError(domain.KindSchemaNotFound, class, "class does not exist", err)
		}
		return 0, domain.BackendError(class, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.BackendError(class, err)
	}
	s.log.InfoContext(ctx, "deleted objects", "class", class, "ids", ids, "deleted", n)
	return n, nil
}

// DeleteSource removes the objects whose metadata names source.
func (s *Storage) DeleteSource(ctx context.Context, class, source string) (int, error) {
	if err := checkIdent(class); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, deleteSourceSQL(class), source)
	if err != nil {
		if pqCode(err) == codeUndefinedTable {
			return 0, domain.NewError(domain.KindCollectionNotFound, class, "collection does not exist", err)
		}
		return 0, domain.BackendError(class, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.BackendError(class, err)
	}
	s.log.DebugContext(ctx, "deleted objects", "class", class, "source", source, "deleted", n)
	return int(n), nil
}

func deleteSourceSQL(class string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s->>'source' = $1", pq.QuoteIdentifier(class), metadataColumn)
}
