// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package docstore persists typed JSON documents in SQLite.
//
// Every document is stored under an "@id" of the form "<Type>/<uuid>" with
// its "@type" alongside. Documents are queried by type and a template of
// top-level field values; results come back in insertion order through a
// lazy Cursor.
package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/ads-query-eval/internal/apperr"
	"github.com/pdiddy/ads-query-eval/pkg/types"
)

// ErrNotFound is returned when no document matches.
var ErrNotFound = errors.New("document not found")

// Document is any value persisted in the store.
type Document interface {
	DocType() string
}

// Template selects documents whose top-level fields equal the given values.
// The key "@id" matches the document id.
type Template map[string]any

// Session is the set of operations available both on the Store and inside
// a Batch transaction.
type Session interface {
	Insert(ctx context.Context, doc Document) (string, error)
	Replace(ctx context.Context, id string, doc Document) error
	Get(ctx context.Context, id string, out any) error
	Find(ctx context.Context, docType string, tpl Template) (*Cursor, error)
	FindOne(ctx context.Context, docType string, tpl Template, out any) (string, error)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the SQLite-backed document store.
type Store struct {
	ops
	db *sql.DB
}

// Tx is a Session bound to one write transaction.
type Tx struct {
	ops
}

var (
	_ Session = (*Store)(nil)
	_ Session = (*Tx)(nil)
)

// Open opens or creates the database at cfg.Path and ensures the schema.
// Write transactions take the database lock up front so concurrent writers,
// including other processes, serialize instead of failing mid-transaction.
func Open(cfg types.DocStoreConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, apperr.New(apperr.KindConfiguration, "docstore path is empty")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating docstore directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{ops: ops{q: db}, db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			body TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(type)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Batch runs fn inside one transaction. Everything fn writes is committed
// together, or nothing is when fn returns an error.
func (s *Store) Batch(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{ops: ops{q: sqlTx}}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// InsertIfAbsent inserts doc unless a document of the same type matching
// tpl exists. It returns the id of the inserted or existing document and
// whether an insert happened. The check and insert share one transaction.
func (s *Store) InsertIfAbsent(ctx context.Context, doc Document, tpl Template) (id string, inserted bool, err error) {
	err = s.Batch(ctx, func(tx *Tx) error {
		var existing json.RawMessage
		found, ferr := tx.FindOne(ctx, doc.DocType(), tpl, &existing)
		if ferr == nil {
			id = found
			return nil
		}
		if !errors.Is(ferr, ErrNotFound) {
			return ferr
		}
		id, ferr = tx.Insert(ctx, doc)
		inserted = ferr == nil
		return ferr
	})
	return id, inserted, err
}

// ops implements Session over a *sql.DB or *sql.Tx.
type ops struct {
	q execer
}

// Insert stores doc under a new id, or under doc's own "@id" when set.
func (o ops) Insert(ctx context.Context, doc Document) (string, error) {
	docType := doc.DocType()
	fields, err := toFields(doc)
	if err != nil {
		return "", err
	}
	id := idOf(fields)
	if id == "" {
		id = docType + "/" + uuid.NewString()
	}
	body, err := encodeBody(fields, id, docType)
	if err != nil {
		return "", err
	}

	if _, err := o.q.ExecContext(ctx,
		`INSERT INTO documents (id, type, body) VALUES (?, ?, ?)`,
		id, docType, body,
	); err != nil {
		return "", fmt.Errorf("inserting %s: %w", id, err)
	}
	return id, nil
}

// Replace overwrites the document stored under id.
func (o ops) Replace(ctx context.Context, id string, doc Document) error {
	docType := doc.DocType()
	fields, err := toFields(doc)
	if err != nil {
		return err
	}
	body, err := encodeBody(fields, id, docType)
	if err != nil {
		return err
	}

	res, err := o.q.ExecContext(ctx,
		`UPDATE documents SET body = ? WHERE id = ? AND type = ?`,
		body, id, docType,
	)
	if err != nil {
		return fmt.Errorf("replacing %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("replacing %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("replacing %s: %w", id, ErrNotFound)
	}
	return nil
}

// Get decodes the document stored under id into out.
func (o ops) Get(ctx context.Context, id string, out any) error {
	var body string
	err := o.q.QueryRowContext(ctx, `SELECT body FROM documents WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("getting %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("getting %s: %w", id, err)
	}
	return decode(body, out)
}

// Find returns a cursor over documents of docType matching tpl.
func (o ops) Find(ctx context.Context, docType string, tpl Template) (*Cursor, error) {
	where, args := buildWhere(docType, tpl)
	rows, err := o.q.QueryContext(ctx,
		`SELECT id, body FROM documents WHERE `+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", docType, err)
	}
	return &Cursor{rows: rows}, nil
}

// FindOne decodes the first match into out and returns its id.
func (o ops) FindOne(ctx context.Context, docType string, tpl Template, out any) (string, error) {
	where, args := buildWhere(docType, tpl)
	var id, body string
	err := o.q.QueryRowContext(ctx,
		`SELECT id, body FROM documents WHERE `+where+` ORDER BY seq LIMIT 1`, args...,
	).Scan(&id, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying %s: %w", docType, err)
	}
	return id, decode(body, out)
}

// All collects every match of tpl as T.
func All[T any](ctx context.Context, s Session, docType string, tpl Template) ([]T, error) {
	cur, err := s.Find(ctx, docType, tpl)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var out []T
	for cur.Next() {
		var v T
		if err := cur.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, cur.Err()
}

// Cursor iterates lazily over query results.
type Cursor struct {
	rows *sql.Rows
	id   string
	body string
	err  error
}

// Next advances to the next document.
func (c *Cursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	if err := c.rows.Scan(&c.id, &c.body); err != nil {
		c.err = err
		return false
	}
	return true
}

// ID returns the current document's id.
func (c *Cursor) ID() string { return c.id }

// Decode decodes the current document into out.
func (c *Cursor) Decode(out any) error { return decode(c.body, out) }

// Err returns the first error met while iterating.
func (c *Cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

// Close releases the underlying rows.
func (c *Cursor) Close() error { return c.rows.Close() }

func buildWhere(docType string, tpl Template) (string, []any) {
	clauses := []string{"type = ?"}
	args := []any{docType}

	keys := make([]string, 0, len(tpl))
	for k := range tpl {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := tpl[k]
		if k == "@id" {
			clauses = append(clauses, "id = ?")
			args = append(args, v)
			continue
		}
		path := `json_extract(body, '$."` + strings.ReplaceAll(k, `"`, ``) + `"')`
		switch val := v.(type) {
		case nil:
			clauses = append(clauses, path+" IS NULL")
		case bool:
			// json_extract yields 1/0 for JSON booleans.
			clauses = append(clauses, path+" = ?")
			if val {
				args = append(args, 1)
			} else {
				args = append(args, 0)
			}
		case fmt.Stringer:
			clauses = append(clauses, path+" = ?")
			args = append(args, val.String())
		default:
			clauses = append(clauses, path+" = ?")
			args = append(args, val)
		}
	}
	return strings.Join(clauses, " AND "), args
}

func toFields(doc Document) (map[string]json.RawMessage, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSerialization, err, "encoding %s", doc.DocType())
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, apperr.Wrap(apperr.KindSerialization, err, "encoding %s", doc.DocType())
	}
	return fields, nil
}

func idOf(fields map[string]json.RawMessage) string {
	var id string
	if raw, ok := fields["@id"]; ok {
		_ = json.Unmarshal(raw, &id)
	}
	return id
}

func encodeBody(fields map[string]json.RawMessage, id, docType string) (string, error) {
	fields["@id"], _ = json.Marshal(id)
	fields["@type"], _ = json.Marshal(docType)
	data, err := json.Marshal(fields)
	if err != nil {
		return "", apperr.Wrap(apperr.KindSerialization, err, "encoding %s", id)
	}
	return string(data), nil
}

func decode(body string, out any) error {
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return apperr.Wrap(apperr.KindSerialization, err, "decoding document")
	}
	return nil
}
