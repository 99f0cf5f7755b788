package docstore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps every document under its own key
// ("<prefix>:doc:<collection>:<id>", a JSON envelope) and lists the ids of a
// collection in a set ("<prefix>:idx:<collection>"). Batches WATCH only the
// documents they touch, so writes to other documents of the same collection
// never abort them.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// applyRetries bounds how often a batch is re-run after WATCH saw one of its
// documents change. The re-run re-checks versions, so a real conflict still
// surfaces as ErrVersionConflict.
const applyRetries = 5

// NewRedisStore builds a store on an existing client. An empty prefix
// defaults to "docstore".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "docstore"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) docKey(collection, id string) string {
	return s.prefix + ":doc:" + collection + ":" + id
}

func (s *RedisStore) indexKey(collection string) string {
	return s.prefix + ":idx:" + collection
}

func decodeEnvelope(raw string) (envelope, error) {
	var e envelope
	err := json.Unmarshal([]byte(raw), &e)
	return e, err
}

// stringGetter is satisfied by *redis.Client and *redis.Tx.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readRedisEnvelope(ctx context.Context, c stringGetter, key string) (envelope, bool, error) {
	raw, err := c.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return envelope{}, false, nil
	}
	if err != nil {
		return envelope{}, false, err
	}
	e, err := decodeEnvelope(raw)
	if err != nil {
		return envelope{}, false, err
	}
	return e, true, nil
}

// watchRetry runs txf under WATCH of keys, re-running it while another
// client changed one of those keys in between.
func (s *RedisStore) watchRetry(ctx context.Context, attempts int, txf func(*redis.Tx) error, keys ...string) error {
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = s.client.Watch(ctx, txf, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func (s *RedisStore) Get(ctx context.Context, collection, id string) (Document, error) {
	e, found, err := readRedisEnvelope(ctx, s.client, s.docKey(collection, id))
	if err != nil {
		return Document{}, unavailable("redis get", err)
	}
	if !found {
		return Document{}, ErrNotFound
	}
	return e.document(id), nil
}

func (s *RedisStore) Set(ctx context.Context, collection, id string, data json.RawMessage) (Document, error) {
	key := s.docKey(collection, id)
	var stored envelope
	txf := func(tx *redis.Tx) error {
		current, _, err := readRedisEnvelope(ctx, tx, key)
		if err != nil {
			return err
		}
		stored = envelope{Version: current.Version + 1, Data: data}
		raw, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			pipe.SAdd(ctx, s.indexKey(collection), id)
			return nil
		})
		return err
	}

	if err := s.watchRetry(ctx, applyRetries, txf, key); err != nil {
		return Document{}, unavailable("redis set", err)
	}
	return stored.document(id), nil
}

func (s *RedisStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.docKey(collection, id))
		pipe.SRem(ctx, s.indexKey(collection), id)
		return nil
	})
	if err != nil {
		return unavailable("redis delete", err)
	}
	return nil
}

func (s *RedisStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	match, err := newMatcher(q)
	if err != nil {
		return nil, err
	}

	ids, err := s.client.SMembers(ctx, s.indexKey(collection)).Result()
	if err != nil {
		return nil, unavailable("redis query", err)
	}
	docs := make([]Document, 0, len(ids))
	if len(ids) == 0 {
		return docs, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.docKey(collection, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable("redis query", err)
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Deleted between SMEMBERS and MGET.
			continue
		}
		e, err := decodeEnvelope(raw)
		if err != nil {
			return nil, unavailable("redis decode", err)
		}
		if match.match(e.Data) {
			docs = append(docs, e.document(ids[i]))
		}
	}

	sortDocuments(docs, q.OrderBy, q.Descending)
	return docs, nil
}

func (s *RedisStore) Apply(ctx context.Context, writes ...Write) error {
	if err := validateWrites(writes); err != nil {
		return err
	}

	keys := make([]string, len(writes))
	for i, w := range writes {
		keys[i] = s.docKey(w.Collection, w.ID)
	}

	txf := func(tx *redis.Tx) error {
		next := make([][]byte, len(writes))
		for i, w := range writes {
			current, _, err := readRedisEnvelope(ctx, tx, keys[i])
			if err != nil {
				return err
			}
			if w.Version != AnyVersion && current.Version != w.Version {
				return ErrVersionConflict
			}
			if w.Data == nil {
				continue
			}
			raw, err := json.Marshal(envelope{Version: current.Version + 1, Data: w.Data})
			if err != nil {
				return err
			}
			next[i] = raw
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, w := range writes {
				if w.Data == nil {
					pipe.Del(ctx, keys[i])
					pipe.SRem(ctx, s.indexKey(w.Collection), w.ID)
					continue
				}
				pipe.Set(ctx, keys[i], next[i], 0)
				pipe.SAdd(ctx, s.indexKey(w.Collection), w.ID)
			}
			return nil
		})
		return err
	}

	err := s.watchRetry(ctx, applyRetries, txf, keys...)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrVersionConflict), errors.Is(err, redis.TxFailedErr):
		// TxFailedErr after every retry means one of this batch's own
		// documents kept changing underneath it.
		return ErrVersionConflict
	default:
		return unavailable("redis apply", err)
	}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("redis ping", err)
	}
	return nil
}
