package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisDocPrefix     = "doc:"
	redisChangeChannel = "sync:changes"
)

// RedisStore keeps each written path as its own JSON document under a
// "doc:" key and announces every mutation on a single pub/sub channel;
// subscribers filter by path overlap and re-read their subtree.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore returns a Store backed by the given Redis client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func redisKey(path string) string {
	return redisDocPrefix + strings.Trim(path, "/")
}

func (s *RedisStore) Read(ctx context.Context, path string) (json.RawMessage, error) {
	path = strings.Trim(path, "/")

	base, err := s.valueAt(ctx, path)
	if err != nil {
		return nil, err
	}

	// Overlay documents stored below the path. SCAN order is unspecified, so
	// sort the keys first; ancestors then land before their descendants and
	// a deeper document always wins.
	childPrefix := redisKey(path) + "/"
	iter := s.rdb.Scan(ctx, 0, childPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)

	found := base != nil
	for _, key := range keys {
		raw, err := s.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, err
		}
		m, ok := base.(map[string]any)
		if !ok {
			m = make(map[string]any)
			base = m
		}
		setTree(m, strings.Split(strings.TrimPrefix(key, childPrefix), "/"), value)
		found = true
	}
	if !found {
		return nil, nil
	}
	return json.Marshal(base)
}

// valueAt resolves the document value for path: the exact key if one was
// written, otherwise a descent into the nearest ancestor document that
// covers the path.
func (s *RedisStore) valueAt(ctx context.Context, path string) (any, error) {
	exact, err := s.rdb.Get(ctx, redisKey(path)).Bytes()
	switch {
	case err == nil:
		var value any
		if err := json.Unmarshal(exact, &value); err != nil {
			return nil, err
		}
		return value, nil
	case errors.Is(err, redis.Nil):
	default:
		return nil, err
	}

	segs := strings.Split(path, "/")
	for i := len(segs) - 1; i > 0; i-- {
		raw, err := s.rdb.Get(ctx, redisKey(strings.Join(segs[:i], "/"))).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, err
		}
		return descendTree(doc, segs[i:]), nil
	}
	return nil, nil
}

func (s *RedisStore) Write(ctx context.Context, path string, doc any) error {
	if doc == nil {
		return s.Remove(ctx, path)
	}
	value, err := normalizeValue(doc)
	if err != nil {
		return err
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	// A write replaces the whole subtree, so descendant documents go away.
	if err := s.removeDescendants(ctx, path); err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, redisKey(path), b, 0).Err(); err != nil {
		return err
	}
	return s.publish(ctx, path)
}

func (s *RedisStore) Merge(ctx context.Context, path string, fields map[string]any) error {
	path = strings.Trim(path, "/")
	// The visible document may live inside an ancestor document, so resolve
	// it the same way Read does before layering the fields on top.
	visible, err := s.valueAt(ctx, path)
	if err != nil {
		return err
	}
	current, ok := visible.(map[string]any)
	if !ok {
		current = make(map[string]any)
	}
	for k, v := range fields {
		value, err := normalizeValue(v)
		if err != nil {
			return err
		}
		current[k] = value
	}
	b, err := json.Marshal(current)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, redisKey(path), b, 0).Err(); err != nil {
		return err
	}
	return s.publish(ctx, path)
}

func (s *RedisStore) Remove(ctx context.Context, path string) error {
	path = strings.Trim(path, "/")
	if err := s.removeDescendants(ctx, path); err != nil {
		return err
	}
	if err := s.rdb.Del(ctx, redisKey(path)).Err(); err != nil {
		return err
	}
	// A copy of the value may also sit inside ancestor documents.
	segs := strings.Split(path, "/")
	for i := len(segs) - 1; i > 0; i-- {
		ancestor := strings.Join(segs[:i], "/")
		raw, err := s.rdb.Get(ctx, redisKey(ancestor)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return err
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return err
		}
		m, ok := doc.(map[string]any)
		if !ok || !pruneTree(m, segs[i:]) {
			continue
		}
		b, err := json.Marshal(m)
		if err != nil {
			return err
		}
		if err := s.rdb.Set(ctx, redisKey(ancestor), b, 0).Err(); err != nil {
			return err
		}
	}
	return s.publish(ctx, path)
}

func (s *RedisStore) Subscribe(ctx context.Context, path string, onSnapshot SnapshotFunc, onError ErrorFunc) (UnsubscribeFunc, error) {
	sub := s.rdb.Subscribe(ctx, redisChangeChannel)
	// Force the subscription to be established before the initial snapshot,
	// so no change between the two is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	ch := sub.Channel()
	stop := make(chan struct{})
	var once sync.Once

	deliver := func() {
		doc, err := s.Read(ctx, path)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onSnapshot(doc)
	}

	go func() {
		deliver()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if Within(path, msg.Payload) {
					deliver()
				}
			}
		}
	}()

	unsubscribe := func() {
		once.Do(func() {
			close(stop)
			_ = sub.Close()
		})
	}
	return unsubscribe, nil
}

func (s *RedisStore) GenerateID(_ context.Context, _ string) (string, error) {
	return uuid.NewString(), nil
}

func (s *RedisStore) publish(ctx context.Context, path string) error {
	return s.rdb.Publish(ctx, redisChangeChannel, strings.Trim(path, "/")).Err()
}

func (s *RedisStore) removeDescendants(ctx context.Context, path string) error {
	iter := s.rdb.Scan(ctx, 0, redisKey(path)+"/*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return s.rdb.Del(ctx, keys...).Err()
	}
	return nil
}

// descendTree walks the relative segments below root and returns the value
// there, or nil when any step is not an object or the key is missing.
func descendTree(root any, segs []string) any {
	node := root
	for _, seg := range segs {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return node
}

// pruneTree deletes the entry at the relative segments below root and
// reports whether anything was removed.
func pruneTree(root map[string]any, segs []string) bool {
	node := root
	for _, seg := range segs[:len(segs)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			return false
		}
		node = child
	}
	last := segs[len(segs)-1]
	if _, ok := node[last]; !ok {
		return false
	}
	delete(node, last)
	return true
}

// setTree places value at the relative segments below root, creating
// intermediate objects as needed.
func setTree(root map[string]any, segs []string, value any) {
	node := root
	for i, seg := range segs {
		if i == len(segs)-1 {
			node[seg] = value
			return
		}
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[seg] = child
		}
		node = child
	}
}
