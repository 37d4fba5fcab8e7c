package mirror

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"aniforum/internal/models"
)

func TestMirrorPosts(t *testing.T) {
	t.Parallel()
	m := New()

	m.SetPosts([]models.Post{
		{ID: "p2", Title: "later", CreatedAt: 200},
		{ID: "p1", Title: "earlier", CreatedAt: 100},
	})

	posts := m.Posts()
	assert.Equal(t, []string{"p1", "p2"}, []string{posts[0].ID, posts[1].ID})

	t.Run("set replaces per id", func(t *testing.T) {
		m.SetPost(models.Post{ID: "p1", Title: "renamed", CreatedAt: 100})
		got, ok := m.Post("p1")
		assert.True(t, ok)
		assert.Equal(t, "renamed", got.Title)
		assert.Len(t, m.Posts(), 2)
	})

	t.Run("unknown id misses", func(t *testing.T) {
		_, ok := m.Post("p9")
		assert.False(t, ok)
	})

	t.Run("batch replaces the whole section", func(t *testing.T) {
		m.SetPosts([]models.Post{{ID: "p3", CreatedAt: 300}})
		_, ok := m.Post("p1")
		assert.False(t, ok)
		posts := m.Posts()
		assert.Len(t, posts, 1)
		assert.Equal(t, "p3", posts[0].ID)
	})
}

func TestMirrorCurrentPost(t *testing.T) {
	t.Parallel()
	m := New()

	_, ok := m.CurrentPost()
	assert.False(t, ok)

	m.SetCurrentPost(models.Post{ID: "p1"})
	got, ok := m.CurrentPost()
	assert.True(t, ok)
	assert.Equal(t, "p1", got.ID)
}

func TestMirrorSectionsReplaceWholesale(t *testing.T) {
	t.Parallel()
	m := New()

	m.ReplaceComments("p1", []models.Comment{{ID: "c1"}, {ID: "c2"}})
	m.ReplaceComments("p1", []models.Comment{{ID: "c3"}})
	comments := m.Comments("p1")
	assert.Len(t, comments, 1)
	assert.Equal(t, "c3", comments[0].ID)

	m.ReplaceReplies("c3", []models.Reply{{ID: "r1"}})
	m.ReplaceReplies("c3", nil)
	assert.Empty(t, m.Replies("c3"))

	t.Run("returned slices are copies", func(t *testing.T) {
		m.ReplaceComments("p2", []models.Comment{{ID: "c1", Content: "original"}})
		got := m.Comments("p2")
		got[0].Content = "mutated"
		assert.Equal(t, "original", m.Comments("p2")[0].Content)
	})
}

func TestMirrorReset(t *testing.T) {
	t.Parallel()
	m := New()

	m.SetPost(models.Post{ID: "p1"})
	m.SetCurrentPost(models.Post{ID: "p1"})
	m.ReplaceComments("p1", []models.Comment{{ID: "c1"}})
	m.Reset()

	assert.Empty(t, m.Posts())
	_, ok := m.CurrentPost()
	assert.False(t, ok)
	assert.Empty(t, m.Comments("p1"))
}
