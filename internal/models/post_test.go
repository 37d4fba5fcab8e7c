package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagsUnmarshal(t *testing.T) {
	t.Parallel()

	t.Run("accepts array", func(t *testing.T) {
		t.Parallel()
		var tags Tags
		require.NoError(t, json.Unmarshal([]byte(`["аниме","новости"]`), &tags))
		assert.Equal(t, Tags{"аниме", "новости"}, tags)
	})

	t.Run("wraps scalar string", func(t *testing.T) {
		t.Parallel()
		var tags Tags
		require.NoError(t, json.Unmarshal([]byte(`"meta"`), &tags))
		assert.Equal(t, Tags{"meta"}, tags)
	})

	t.Run("empty scalar becomes nil", func(t *testing.T) {
		t.Parallel()
		var tags Tags
		require.NoError(t, json.Unmarshal([]byte(`""`), &tags))
		assert.Nil(t, tags)
	})

	t.Run("rejects numbers", func(t *testing.T) {
		t.Parallel()
		var tags Tags
		assert.Error(t, json.Unmarshal([]byte(`42`), &tags))
	})

	t.Run("post with scalar tags field", func(t *testing.T) {
		t.Parallel()
		var post Post
		require.NoError(t, json.Unmarshal([]byte(`{"title":"t","tags":"единственный"}`), &post))
		assert.Equal(t, Tags{"единственный"}, post.Tags)
	})
}

func TestNormalizeTags(t *testing.T) {
	t.Parallel()

	t.Run("fills default when empty", func(t *testing.T) {
		t.Parallel()
		post := Post{}
		post.NormalizeTags()
		assert.Equal(t, Tags{DefaultTag}, post.Tags)
	})

	t.Run("keeps existing tags", func(t *testing.T) {
		t.Parallel()
		post := Post{Tags: Tags{"аниме"}}
		post.NormalizeTags()
		assert.Equal(t, Tags{"аниме"}, post.Tags)
	})
}

func TestLikedBy(t *testing.T) {
	t.Parallel()

	post := Post{Likes: map[string]bool{"u1": true}}
	assert.True(t, post.LikedBy("u1"))
	assert.False(t, post.LikedBy("u2"))

	empty := Post{}
	assert.False(t, empty.LikedBy("u1"))
}
