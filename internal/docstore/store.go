// Package docstore is a schemaless document store keyed by collection and
// document id. It holds no business rules: callers encode their own records
// as JSON and rely on the store only for durability, equality lookups and
// version-checked batches.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrVersionConflict is returned when a write's expected version does not
	// match the stored one. No write of the batch is applied.
	ErrVersionConflict = errors.New("document version conflict")
	// ErrUnavailable wraps backend I/O failures.
	ErrUnavailable = errors.New("document store unavailable")
)

// AnyVersion disables the version check of a Write.
const AnyVersion int64 = -1

// Collection names shared by the services.
const (
	CollectionUsers         = "users"
	CollectionPasswords     = "passwords"
	CollectionOrders        = "orders"
	CollectionNotifications = "notifications"
	CollectionSessions      = "sessions"
	// CollectionFinCodes maps a normalized FIN code to its user id.
	CollectionFinCodes      = "fincodes"
)

// Document is a stored record together with its store-managed version.
// Version starts at 1 and grows by one on every write.
type Document struct {
	ID      string
	Version int64
	Data    json.RawMessage
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	return nil
}

// Query selects documents of one collection. An empty Field matches every
// document; otherwise the top-level JSON field must equal Value. OrderBy
// names a top-level field to sort on.
type Query struct {
	Field      string
	Value      any
	OrderBy    string
	Descending bool
}

// Where builds an equality query.
func Where(field string, value any) Query {
	return Query{Field: field, Value: value}
}

// SortBy returns a copy of q sorted on field.
func (q Query) SortBy(field string, descending bool) Query {
	q.OrderBy = field
	q.Descending = descending
	return q
}

// Write is one element of an atomic batch. A nil Data deletes the document.
// Version is the version the document must currently have: 0 means it must
// not exist, AnyVersion skips the check.
type Write struct {
	Collection string
	ID         string
	Data       json.RawMessage
	Version    int64
}

// Put builds a write that stores v as JSON.
func Put(collection, id string, v any, version int64) (Write, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Write{}, fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	return Write{Collection: collection, ID: id, Data: data, Version: version}, nil
}

// Remove builds a delete write.
func Remove(collection, id string, version int64) Write {
	return Write{Collection: collection, ID: id, Version: version}
}

// Store is implemented by every backend. Backends do not own the client
// handle they are built from; closing it is the caller's job.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Set(ctx context.Context, collection, id string, data json.RawMessage) (Document, error)
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	// Apply commits all writes or none of them.
	Apply(ctx context.Context, writes ...Write) error
	Ping(ctx context.Context) error
}

// GetInto loads a document and decodes it into v, returning its version.
func GetInto(ctx context.Context, s Store, collection, id string, v any) (int64, error) {
	doc, err := s.Get(ctx, collection, id)
	if err != nil {
		return 0, err
	}
	if err := doc.Decode(v); err != nil {
		return 0, err
	}
	return doc.Version, nil
}

// SetFrom encodes v and stores it unconditionally.
func SetFrom(ctx context.Context, s Store, collection, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	_, err = s.Set(ctx, collection, id, data)
	return err
}

// QueryInto runs q and decodes every result into a new T.
func QueryInto[T any](ctx context.Context, s Store, collection string, q Query) ([]T, error) {
	docs, err := s.Query(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := doc.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

func validateWrites(writes []Write) error {
	seen := make(map[string]struct{}, len(writes))
	for _, w := range writes {
		if w.Collection == "" || w.ID == "" {
			return fmt.Errorf("docstore: write requires collection and id")
		}
		key := w.Collection + "/" + w.ID
		if _, dup := seen[key]; dup {
			return fmt.Errorf("docstore: %s written twice in one batch", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}
