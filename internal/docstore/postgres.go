package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists documents as JSONB rows of the documents table
// created by the migrations package.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	row := s.db.QueryRow(ctx, `SELECT version, body FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	doc := Document{ID: id}
	var body []byte
	if err := row.Scan(&doc.Version, &body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, unavailable("postgres get", err)
	}
	doc.Data = body
	return doc, nil
}

func (s *PostgresStore) Set(ctx context.Context, collection, id string, data json.RawMessage) (Document, error) {
	version, err := upsert(ctx, s.db, collection, id, data)
	if err != nil {
		return Document{}, unavailable("postgres set", err)
	}
	return Document{ID: id, Version: version, Data: data}, nil
}

func upsert(ctx context.Context, db execer, collection, id string, data json.RawMessage) (int64, error) {
	const query = `
        INSERT INTO documents (collection, id, version, body, updated_at)
        VALUES ($1, $2, 1, $3::jsonb, now())
        ON CONFLICT (collection, id) DO UPDATE
            SET version = documents.version + 1, body = EXCLUDED.body, updated_at = now()
        RETURNING version`
	var version int64
	err := db.QueryRow(ctx, query, collection, id, string(data)).Scan(&version)
	return version, err
}

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id); err != nil {
		return unavailable("postgres delete", err)
	}
	return nil
}

// Query pushes equality down as JSONB containment, so Value must be a scalar.
func (s *PostgresStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	sql := `SELECT id, version, body FROM documents WHERE collection = $1`
	args := []any{collection}
	if q.Field != "" {
		filter, err := json.Marshal(map[string]any{q.Field: q.Value})
		if err != nil {
			return nil, fmt.Errorf("encode query value: %w", err)
		}
		args = append(args, string(filter))
		sql += fmt.Sprintf(` AND body @> $%d::jsonb`, len(args))
	}
	direction := "ASC"
	if q.Descending {
		direction = "DESC"
	}
	if q.OrderBy != "" {
		args = append(args, q.OrderBy)
		sql += fmt.Sprintf(` ORDER BY body -> $%d %s, id %s`, len(args), direction, direction)
	} else {
		sql += ` ORDER BY id ` + direction
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, unavailable("postgres query", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			doc  Document
			body []byte
		)
		if err := rows.Scan(&doc.ID, &doc.Version, &body); err != nil {
			return nil, unavailable("postgres scan", err)
		}
		doc.Data = body
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("postgres rows", err)
	}
	return docs, nil
}

func (s *PostgresStore) Apply(ctx context.Context, writes ...Write) error {
	if err := validateWrites(writes); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return unavailable("postgres begin", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for _, w := range writes {
		if err := applyWrite(ctx, tx, w); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				return err
			}
			return unavailable("postgres apply", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return unavailable("postgres commit", err)
	}
	return nil
}

func applyWrite(ctx context.Context, tx pgx.Tx, w Write) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	switch {
	case w.Data == nil && w.Version == AnyVersion:
		_, err = tx.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, w.Collection, w.ID)
		return err
	case w.Data == nil && w.Version == 0:
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM documents WHERE collection = $1 AND id = $2)`,
			w.Collection, w.ID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrVersionConflict
		}
		return nil
	case w.Data == nil:
		tag, err = tx.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2 AND version = $3`,
			w.Collection, w.ID, w.Version)
	case w.Version == AnyVersion:
		_, err = upsert(ctx, tx, w.Collection, w.ID, w.Data)
		return err
	case w.Version == 0:
		tag, err = tx.Exec(ctx, `INSERT INTO documents (collection, id, version, body, updated_at)
            VALUES ($1, $2, 1, $3::jsonb, now()) ON CONFLICT (collection, id) DO NOTHING`,
			w.Collection, w.ID, string(w.Data))
	default:
		tag, err = tx.Exec(ctx, `UPDATE documents SET version = version + 1, body = $4::jsonb, updated_at = now()
            WHERE collection = $1 AND id = $2 AND version = $3`,
			w.Collection, w.ID, w.Version, string(w.Data))
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrVersionConflict
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return unavailable("postgres ping", err)
	}
	return nil
}
