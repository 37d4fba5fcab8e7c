package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb)
}

func TestRedisStoreReadWrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestRedisStore(t)

	t.Run("absent path reads nil", func(t *testing.T) {
		doc, err := s.Read(ctx, "posts/missing")
		require.NoError(t, err)
		assert.Nil(t, doc)
	})

	t.Run("write then read", func(t *testing.T) {
		require.NoError(t, s.Write(ctx, "posts/p1", map[string]any{"title": "hello"}))
		doc, err := s.Read(ctx, "posts/p1")
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, json.Unmarshal(doc, &got))
		assert.Equal(t, "hello", got["title"])
	})

	t.Run("parent read assembles child documents", func(t *testing.T) {
		require.NoError(t, s.Write(ctx, "posts/p1/comments/c1", map[string]any{"content": "hi"}))
		doc, err := s.Read(ctx, "posts/p1")
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, json.Unmarshal(doc, &got))
		assert.Equal(t, "hello", got["title"])
		comments, ok := got["comments"].(map[string]any)
		require.True(t, ok)
		assert.Contains(t, comments, "c1")
	})

	t.Run("write replaces whole subtree", func(t *testing.T) {
		require.NoError(t, s.Write(ctx, "posts/p1", map[string]any{"title": "rewritten"}))
		doc, err := s.Read(ctx, "posts/p1/comments/c1")
		require.NoError(t, err)
		assert.Nil(t, doc)
	})
}

func TestRedisStoreMerge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestRedisStore(t)

	require.NoError(t, s.Write(ctx, "posts/p1", map[string]any{"likesCount": 1, "title": "x"}))
	require.NoError(t, s.Merge(ctx, "posts/p1", map[string]any{"likesCount": 2}))

	doc, err := s.Read(ctx, "posts/p1")
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(doc, &got))
	assert.Equal(t, float64(2), got["likesCount"])
	assert.Equal(t, "x", got["title"])
}

func TestRedisStoreRemove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestRedisStore(t)

	require.NoError(t, s.Write(ctx, "categories/c1", map[string]any{"name": "x"}))
	require.NoError(t, s.Write(ctx, "categories/c1/posts/p1", map[string]any{"title": "y"}))
	require.NoError(t, s.Remove(ctx, "categories/c1"))

	doc, err := s.Read(ctx, "categories/c1")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestRedisStoreNestedInParentDocument(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestRedisStore(t)

	// One document written at the section root, as the category bootstrap does.
	require.NoError(t, s.Write(ctx, "categories", map[string]any{
		"news": map[string]any{"name": "News", "order": 1},
		"misc": map[string]any{"name": "Misc", "order": 2},
	}))

	t.Run("point read descends into the parent document", func(t *testing.T) {
		doc, err := s.Read(ctx, "categories/news")
		require.NoError(t, err)
		require.NotNil(t, doc)
		var got map[string]any
		require.NoError(t, json.Unmarshal(doc, &got))
		assert.Equal(t, "News", got["name"])
	})

	t.Run("merge keeps fields held by the parent document", func(t *testing.T) {
		require.NoError(t, s.Merge(ctx, "categories/news", map[string]any{"order": 5}))

		doc, err := s.Read(ctx, "categories/news")
		require.NoError(t, err)
		var got map[string]any
		require.NoError(t, json.Unmarshal(doc, &got))
		assert.Equal(t, "News", got["name"])
		assert.Equal(t, float64(5), got["order"])

		// the merged child shadows the parent copy on a section read too
		doc, err = s.Read(ctx, "categories")
		require.NoError(t, err)
		var section map[string]map[string]any
		require.NoError(t, json.Unmarshal(doc, &section))
		assert.Equal(t, float64(5), section["news"]["order"])
		assert.Equal(t, "Misc", section["misc"]["name"])
	})

	t.Run("remove purges the copy inside the parent document", func(t *testing.T) {
		require.NoError(t, s.Remove(ctx, "categories/misc"))

		doc, err := s.Read(ctx, "categories/misc")
		require.NoError(t, err)
		assert.Nil(t, doc)

		doc, err = s.Read(ctx, "categories")
		require.NoError(t, err)
		var section map[string]any
		require.NoError(t, json.Unmarshal(doc, &section))
		assert.NotContains(t, section, "misc")
		assert.Contains(t, section, "news")
	})
}

func TestRedisStoreSubscribe(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestRedisStore(t)

	require.NoError(t, s.Write(ctx, "posts/p1/comments/c1", map[string]any{"content": "first"}))

	var mu sync.Mutex
	var snapshots []json.RawMessage
	cancel, err := s.Subscribe(ctx, "posts/p1/comments", func(doc json.RawMessage) {
		mu.Lock()
		snapshots = append(snapshots, doc)
		mu.Unlock()
	}, func(err error) { t.Errorf("subscription error: %v", err) })
	require.NoError(t, err)
	defer cancel()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(snapshots) >= 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Write(ctx, "posts/p1/comments/c2", map[string]any{"content": "second"}))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		if len(snapshots) < 2 {
			return false
		}
		var section map[string]any
		if err := json.Unmarshal(snapshots[len(snapshots)-1], &section); err != nil {
			return false
		}
		return len(section) == 2
	}, time.Second, 5*time.Millisecond)

	// a sibling write leaves this subscription quiet
	before := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(snapshots)
	}()
	require.NoError(t, s.Write(ctx, "posts/p2/comments/c1", map[string]any{"content": "other"}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(snapshots)
	}())
}
