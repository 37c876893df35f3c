package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// docDepth is the number of segments addressing one stored document
// (e.g. "sessions/{id}"). Shallower paths are collections.
const docDepth = 2

const maxTxRetries = 16

// RedisStore keeps every document as a JSON blob and publishes the changed
// path after each write so subscribers in other processes can re-read.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a store on top of client. Documents expire after
// ttl of inactivity; zero keeps them forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

// Key helpers
func (s *RedisStore) docKey(doc string) string {
	return fmt.Sprintf("tree:%s", doc)
}

func (s *RedisStore) indexKey(collection string) string {
	return fmt.Sprintf("tree:%s:index", collection)
}

func (s *RedisStore) seqKey(path string) string {
	return fmt.Sprintf("tree:seq:%s", path)
}

func (s *RedisStore) channel(path string) string {
	return fmt.Sprintf("tree:changed:%s", path)
}

func (s *RedisStore) Get(ctx context.Context, path string) (*Snapshot, error) {
	parts := Split(path)
	switch {
	case len(parts) == 0:
		return nil, ErrUnsupportedPath
	case len(parts) < docDepth:
		v, err := s.getCollection(ctx, parts[0])
		if err != nil {
			return nil, err
		}
		return newSnapshot(path, v)
	}
	root, err := s.readDoc(ctx, s.client, Join(parts[:docDepth]...))
	if err != nil {
		return nil, err
	}
	return newSnapshot(path, getAt(root, parts[docDepth:]))
}

func (s *RedisStore) getCollection(ctx context.Context, collection string) (any, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey(collection)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.docKey(Join(collection, id))
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(ids))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// expired document still listed in the index
			continue
		}
		doc, err := decodeTree([]byte(str))
		if err != nil {
			return nil, fmt.Errorf("store: corrupt document %s: %w", keys[i], err)
		}
		if doc != nil {
			out[ids[i]] = doc
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

type cmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) readDoc(ctx context.Context, c cmdable, doc string) (any, error) {
	data, err := c.Get(ctx, s.docKey(doc)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeTree(data)
}

// serverMillis reads the redis clock so timestamps do not depend on the caller
func (s *RedisStore) serverMillis(ctx context.Context) (int64, error) {
	t, err := s.client.Time(ctx).Result()
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

// mutate applies fn to the document holding path inside an optimistic transaction
func (s *RedisStore) mutate(ctx context.Context, path string, fn func(root any, now int64) (any, error)) error {
	return s.mutateTx(ctx, path, nil, func(_ *redis.Tx, root any, now int64) (any, func(redis.Pipeliner), error) {
		next, err := fn(root, now)
		return next, nil, err
	})
}

// txMutation returns the new document and optional extra writes that
// commit with it
type txMutation func(tx *redis.Tx, root any, now int64) (any, func(redis.Pipeliner), error)

// mutateTx is mutate with additional watched keys. The extra writes run in
// the same MULTI as the document, so a change to any watched key retries.
func (s *RedisStore) mutateTx(ctx context.Context, path string, watch []string, fn txMutation) error {
	parts := Split(path)
	if len(parts) < docDepth {
		return ErrUnsupportedPath
	}
	collection := parts[0]
	doc := Join(parts[:docDepth]...)
	key := s.docKey(doc)

	txf := func(tx *redis.Tx) error {
		now, err := s.serverMillis(ctx)
		if err != nil {
			return err
		}
		root, err := s.readDoc(ctx, tx, doc)
		if err != nil {
			return err
		}
		next, extra, err := fn(tx, root, now)
		if err != nil {
			return err
		}
		next = prune(next)
		var data []byte
		if next != nil {
			if data, err = marshalTree(next); err != nil {
				return err
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, key)
				pipe.SRem(ctx, s.indexKey(collection), parts[1])
			} else {
				pipe.Set(ctx, key, data, s.ttl)
				pipe.SAdd(ctx, s.indexKey(collection), parts[1])
			}
			if extra != nil {
				extra(pipe)
			}
			pipe.Publish(ctx, s.channel(doc), Join(parts...))
			pipe.Publish(ctx, s.channel(collection), Join(parts...))
			return nil
		})
		return err
	}

	keys := append([]string{key}, watch...)
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("store: %s: too much contention", doc)
}

func (s *RedisStore) Set(ctx context.Context, path string, value any) error {
	parts := Split(path)
	if len(parts) < docDepth {
		return ErrUnsupportedPath
	}
	return s.mutate(ctx, path, func(root any, now int64) (any, error) {
		v, err := normalize(value, now)
		if err != nil {
			return nil, err
		}
		return setAt(root, parts[docDepth:], v), nil
	})
}

func (s *RedisStore) Update(ctx context.Context, path string, fields map[string]any) error {
	parts := Split(path)
	if len(parts) == 0 {
		return ErrUnsupportedPath
	}
	if len(parts) < docDepth {
		// collection level update fans out per document
		for k, v := range fields {
			if err := s.Set(ctx, Join(path, k), v); err != nil {
				return err
			}
		}
		return nil
	}
	return s.mutate(ctx, path, func(root any, now int64) (any, error) {
		nf, err := normalizeFields(fields, now)
		if err != nil {
			return nil, err
		}
		return updateAt(root, parts[docDepth:], nf), nil
	})
}

// Push takes the next sequence number and writes the child in one
// transaction, so keys commit in the order they are handed out.
func (s *RedisStore) Push(ctx context.Context, path string, value any) (string, error) {
	parts := Split(path)
	if len(parts) == 0 {
		return "", ErrUnsupportedPath
	}
	seqKey := s.seqKey(Join(parts...))
	if len(parts) < docDepth {
		// every child is its own document
		seq, err := s.client.Incr(ctx, seqKey).Result()
		if err != nil {
			return "", err
		}
		key := pushKey(seq)
		if err := s.Set(ctx, Join(path, key), value); err != nil {
			return "", err
		}
		return key, nil
	}

	var key string
	err := s.mutateTx(ctx, path, []string{seqKey}, func(tx *redis.Tx, root any, now int64) (any, func(redis.Pipeliner), error) {
		seq, err := tx.Get(ctx, seqKey).Int64()
		if err != nil && err != redis.Nil {
			return nil, nil, err
		}
		seq++
		key = pushKey(seq)
		v, err := normalize(value, now)
		if err != nil {
			return nil, nil, err
		}
		child := append(append([]string{}, parts[docDepth:]...), key)
		return setAt(root, child, v), func(pipe redis.Pipeliner) {
			pipe.Set(ctx, seqKey, seq, 0)
		}, nil
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

func (s *RedisStore) Increment(ctx context.Context, path string, delta int64) (int64, error) {
	parts := Split(path)
	if len(parts) <= docDepth {
		return 0, ErrUnsupportedPath
	}
	var result int64
	err := s.mutate(ctx, path, func(root any, _ int64) (any, error) {
		next, n, err := incrementAt(root, parts[docDepth:], delta)
		if err != nil {
			return nil, err
		}
		result = n
		return next, nil
	})
	return result, err
}

func (s *RedisStore) Remove(ctx context.Context, path string) error {
	return s.Set(ctx, path, nil)
}

func (s *RedisStore) Subscribe(ctx context.Context, path string, fn func(*Snapshot)) (Unsubscribe, error) {
	parts := Split(path)
	if len(parts) == 0 {
		return nil, ErrUnsupportedPath
	}
	watched := Join(parts...)
	channel := s.channel(parts[0])
	if len(parts) >= docDepth {
		channel = s.channel(Join(parts[:docDepth]...))
	}

	pubsub := s.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		defer pubsub.Close()
		var last []byte
		deliver := func() {
			snap, err := s.Get(subCtx, watched)
			if err != nil {
				if subCtx.Err() == nil {
					log.Error().Err(err).Str("path", watched).Msg("store subscription read failed")
				}
				return
			}
			if last != nil && bytes.Equal(snap.raw, last) {
				return
			}
			if snap.raw == nil {
				last = []byte{}
			} else {
				last = snap.raw
			}
			fn(snap)
		}

		deliver()
		msgs := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				if !related(watched, msg.Payload) {
					continue
				}
				deliver()
			}
		}
	}()

	return func() { cancel() }, nil
}
