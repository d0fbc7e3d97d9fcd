// Package sqlitestore is a docstore.Store backed by a single SQLite table.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-integrations-server/docstore"

	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	dsn string
	now func() time.Time
}

var _ docstore.Store = (*Store)(nil)

type Option func(*Store)

// WithNowTime overrides the clock used for created/updated times.
func WithNowTime(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New opens the database at dsn and applies pending migrations.
func New(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: open %s: %w", dsn, err)
	}

	s := &Store{db: db, dsn: dsn, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) DSN() string {
	return s.dsn
}

func (s *Store) Get(ctx context.Context, path string) (*docstore.Document, error) {
	if err := docstore.ValidateDocumentPath(path); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT path, data, updated_at FROM documents WHERE path = ?`, path)
	return scanDocument(row)
}

func (s *Store) Set(ctx context.Context, path string, data map[string]any) error {
	return s.Commit(ctx, []docstore.Write{docstore.SetWrite(path, data)})
}

func (s *Store) Merge(ctx context.Context, path string, data map[string]any) error {
	return s.Commit(ctx, []docstore.Write{docstore.MergeWrite(path, data)})
}

func (s *Store) Delete(ctx context.Context, path string) error {
	return s.Commit(ctx, []docstore.Write{docstore.DeleteWrite(path)})
}

func (s *Store) List(ctx context.Context, collection string) ([]*docstore.Document, error) {
	if err := docstore.ValidateCollectionPath(collection); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, data, updated_at FROM documents WHERE parent = ? ORDER BY path`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*docstore.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Commit applies every write inside one transaction.
func (s *Store) Commit(ctx context.Context, writes []docstore.Write) error {
	if err := docstore.ValidateBatch(writes); err != nil {
		return err
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		now := s.now().UTC().UnixNano()
		for _, w := range writes {
			if err := applyWrite(ctx, tx, w, now); err != nil {
				return fmt.Errorf("sqlitestore: %s: %w", w.Path, err)
			}
		}
		return nil
	})
}

// WithTx executes fn within a transaction, rolling back on error.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func applyWrite(ctx context.Context, tx *sql.Tx, w docstore.Write, now int64) error {
	if w.Kind == docstore.WriteDelete {
		_, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, w.Path)
		return err
	}

	var current map[string]any
	if w.Kind == docstore.WriteMerge {
		var raw string
		err := tx.QueryRowContext(ctx, `SELECT data FROM documents WHERE path = ?`, w.Path).Scan(&raw)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal([]byte(raw), &current); err != nil {
				return err
			}
		}
	}

	next, err := docstore.Apply(current, w)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (path, parent, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		w.Path, docstore.Parent(w.Path), string(raw), now, now)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*docstore.Document, error) {
	var (
		path    string
		raw     string
		updated int64
	)
	if err := row.Scan(&path, &raw, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, docstore.ErrNotFound
		}
		return nil, err
	}
	data := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("sqlitestore: decode %s: %w", path, err)
	}
	return &docstore.Document{Path: path, Data: data, UpdateTime: time.Unix(0, updated).UTC()}, nil
}
