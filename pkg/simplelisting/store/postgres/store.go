package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-listing/pkg/simplelisting"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store implements simplelisting.Store on a single JSONB table
type Store struct {
	db DBTX
}

// New creates a new PostgreSQL store
func New(db DBTX) *Store {
	return &Store{db: db}
}

// NewWithPool creates a new PostgreSQL store with connection pool
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

const selectColumns = `SELECT id, owner, doc, created_at, updated_at FROM resources`

// handlePostgresError maps driver errors onto store sentinels
func (s *Store) handlePostgresError(operation string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return simplelisting.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", simplelisting.ErrConflict, pgErr.ConstraintName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required: %w", err)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

func (s *Store) Insert(ctx context.Context, collection string, doc *simplelisting.Document) error {
	body, err := json.Marshal(fieldsOf(doc))
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	_, err = s.db.Exec(ctx, `
        INSERT INTO resources (collection, id, owner, doc, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		collection, doc.ID, doc.Owner, body, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return s.handlePostgresError("insert", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (*simplelisting.Document, error) {
	row := s.db.QueryRow(ctx, selectColumns+` WHERE collection = $1 AND id = $2`, collection, id)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, s.handlePostgresError("get", err)
	}
	return doc, nil
}

func (s *Store) FindOne(ctx context.Context, collection string, q simplelisting.Query) (*simplelisting.Document, error) {
	docs, err := s.Find(ctx, collection, q, simplelisting.FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, simplelisting.ErrNotFound
	}
	return docs[0], nil
}

func (s *Store) Find(ctx context.Context, collection string, q simplelisting.Query, opts simplelisting.FindOptions) ([]*simplelisting.Document, error) {
	sql, args := findSQL(collection, q, opts)
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, s.handlePostgresError("find", err)
	}
	defer rows.Close()

	docs := []*simplelisting.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, s.handlePostgresError("find", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, s.handlePostgresError("find", err)
	}
	return docs, nil
}

func (s *Store) Count(ctx context.Context, collection string, q simplelisting.Query) (int64, error) {
	where, args := buildWhere(collection, q)
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM resources WHERE `+where, args...).Scan(&n); err != nil {
		return 0, s.handlePostgresError("count", err)
	}
	return n, nil
}

func (s *Store) Update(ctx context.Context, collection string, doc *simplelisting.Document) error {
	body, err := json.Marshal(fieldsOf(doc))
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
        UPDATE resources SET owner = $3, doc = $4, updated_at = $5
        WHERE collection = $1 AND id = $2`,
		collection, doc.ID, doc.Owner, body, doc.UpdatedAt)
	if err != nil {
		return s.handlePostgresError("update", err)
	}
	if tag.RowsAffected() == 0 {
		return simplelisting.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM resources WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return s.handlePostgresError("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return simplelisting.ErrNotFound
	}
	return nil
}

func findSQL(collection string, q simplelisting.Query, opts simplelisting.FindOptions) (string, []any) {
	where, args := buildWhere(collection, q)
	sql := selectColumns + ` WHERE ` + where + ` ORDER BY created_at, id`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		sql += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if opts.Skip > 0 {
		args = append(args, opts.Skip)
		sql += ` OFFSET $` + strconv.Itoa(len(args))
	}
	return sql, args
}

func fieldsOf(doc *simplelisting.Document) map[string]any {
	if doc.Fields == nil {
		return map[string]any{}
	}
	return doc.Fields
}

func scanDocument(row pgx.Row) (*simplelisting.Document, error) {
	var doc simplelisting.Document
	var body []byte
	var created, updated time.Time
	if err := row.Scan(&doc.ID, &doc.Owner, &body, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &doc.Fields); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	if doc.Fields == nil {
		doc.Fields = map[string]any{}
	}
	doc.CreatedAt = created.UTC()
	doc.UpdatedAt = updated.UTC()
	return &doc, nil
}
