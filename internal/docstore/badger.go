package docstore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"
)

// setRetries bounds how often a transaction is retried after a conflict.
const setRetries = 3

// BadgerStore keeps documents in an embedded Badger database. Keys have the
// form "<collection>/<id>" and values are JSON envelopes.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore wraps an open Badger database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func badgerKey(collection, id string) []byte {
	return []byte(collection + "/" + id)
}

func badgerPrefix(collection string) []byte {
	return []byte(collection + "/")
}

func readEnvelope(txn *badger.Txn, key []byte) (envelope, bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return envelope{}, false, nil
	}
	if err != nil {
		return envelope{}, false, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return envelope{}, false, err
	}
	var e envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return envelope{}, false, err
	}
	return e, true, nil
}

func writeEnvelope(txn *badger.Txn, key []byte, e envelope) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return txn.Set(key, raw)
}

func (s *BadgerStore) Get(_ context.Context, collection, id string) (Document, error) {
	var (
		e     envelope
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		e, found, err = readEnvelope(txn, badgerKey(collection, id))
		return err
	})
	if err != nil {
		return Document{}, unavailable("badger get", err)
	}
	if !found {
		return Document{}, ErrNotFound
	}
	return e.document(id), nil
}

func (s *BadgerStore) Set(_ context.Context, collection, id string, data json.RawMessage) (Document, error) {
	key := badgerKey(collection, id)
	var stored envelope
	var err error
	for attempt := 0; attempt < setRetries; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			current, _, err := readEnvelope(txn, key)
			if err != nil {
				return err
			}
			stored = envelope{Version: current.Version + 1, Data: data}
			return writeEnvelope(txn, key, stored)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return Document{}, unavailable("badger set", err)
	}
	return stored.document(id), nil
}

func (s *BadgerStore) Delete(_ context.Context, collection, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(collection, id))
	})
	if err != nil {
		return unavailable("badger delete", err)
	}
	return nil
}

func (s *BadgerStore) Query(_ context.Context, collection string, q Query) ([]Document, error) {
	match, err := newMatcher(q)
	if err != nil {
		return nil, err
	}

	prefix := badgerPrefix(collection)
	var docs []Document
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			var e envelope
			if err := json.Unmarshal(raw, &e); err != nil {
				return err
			}
			if match.match(e.Data) {
				id := string(item.Key()[len(prefix):])
				docs = append(docs, e.document(id))
			}
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("badger query", err)
	}

	sortDocuments(docs, q.OrderBy, q.Descending)
	return docs, nil
}

func (s *BadgerStore) Apply(_ context.Context, writes ...Write) error {
	if err := validateWrites(writes); err != nil {
		return err
	}

	batch := func(txn *badger.Txn) error {
		next := make([]envelope, len(writes))
		for i, w := range writes {
			current, _, err := readEnvelope(txn, badgerKey(w.Collection, w.ID))
			if err != nil {
				return err
			}
			if w.Version != AnyVersion && current.Version != w.Version {
				return ErrVersionConflict
			}
			next[i] = envelope{Version: current.Version + 1, Data: w.Data}
		}
		for i, w := range writes {
			key := badgerKey(w.Collection, w.ID)
			if w.Data == nil {
				if err := txn.Delete(key); err != nil {
					return err
				}
				continue
			}
			if err := writeEnvelope(txn, key, next[i]); err != nil {
				return err
			}
		}
		return nil
	}

	// ErrConflict only means a document this batch read was committed by
	// someone else first. Re-running re-reads the versions.
	var err error
	for attempt := 0; attempt < setRetries; attempt++ {
		if err = s.db.Update(batch); !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrVersionConflict), errors.Is(err, badger.ErrConflict):
		return ErrVersionConflict
	default:
		return unavailable("badger apply", err)
	}
}

func (s *BadgerStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return unavailable("badger ping", errors.New("database closed"))
	}
	return nil
}
