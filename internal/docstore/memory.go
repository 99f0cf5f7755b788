package docstore

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore keeps documents in process memory. Used for development and
// tests; contents are lost on restart.
type MemoryStore struct {
	mu sync.RWMutex
	// Structure: [collection][id]envelope
	data map[string]map[string]envelope
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]envelope)}
}

func (m *MemoryStore) Get(_ context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.data[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return e.document(id), nil
}

func (m *MemoryStore) Set(_ context.Context, collection, id string, data json.RawMessage) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.put(collection, id, data)
	return e.document(id), nil
}

func (m *MemoryStore) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data[collection], id)
	return nil
}

func (m *MemoryStore) Query(_ context.Context, collection string, q Query) ([]Document, error) {
	match, err := newMatcher(q)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	var docs []Document
	for id, e := range m.data[collection] {
		if match.match(e.Data) {
			docs = append(docs, e.document(id))
		}
	}
	m.mu.RUnlock()

	sortDocuments(docs, q.OrderBy, q.Descending)
	return docs, nil
}

func (m *MemoryStore) Apply(_ context.Context, writes ...Write) error {
	if err := validateWrites(writes); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range writes {
		if w.Version == AnyVersion {
			continue
		}
		var current int64
		if e, ok := m.data[w.Collection][w.ID]; ok {
			current = e.Version
		}
		if current != w.Version {
			return ErrVersionConflict
		}
	}
	for _, w := range writes {
		if w.Data == nil {
			delete(m.data[w.Collection], w.ID)
			continue
		}
		m.put(w.Collection, w.ID, w.Data)
	}
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

// put must be called with m.mu held for writing.
func (m *MemoryStore) put(collection, id string, data json.RawMessage) envelope {
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]envelope)
	}
	stored := make(json.RawMessage, len(data))
	copy(stored, data)
	e := envelope{Version: m.data[collection][id].Version + 1, Data: stored}
	m.data[collection][id] = e
	return e
}
