// Package mirror holds the reconciled in-memory view of posts, comments and
// replies consumed by presentation code. Only the synchronization managers
// write to it; every write replaces a whole section for its key, which makes
// snapshot application idempotent under redelivery.
package mirror

import (
	"sort"
	"sync"

	"aniforum/internal/models"
)

// Mirror is safe for concurrent use.
type Mirror struct {
	mu          sync.RWMutex
	posts       map[string]models.Post
	currentPost *models.Post
	comments    map[string][]models.Comment
	replies     map[string][]models.Reply
}

// New returns an empty mirror.
func New() *Mirror {
	return &Mirror{
		posts:    make(map[string]models.Post),
		comments: make(map[string][]models.Comment),
		replies:  make(map[string][]models.Reply),
	}
}

// SetPost stores or replaces one post record.
func (m *Mirror) SetPost(post models.Post) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[post.ID] = post
}

// SetPosts replaces the whole post section with the fetched batch, so
// posts removed remotely drop out of the mirror.
func (m *Mirror) SetPosts(posts []models.Post) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = make(map[string]models.Post, len(posts))
	for _, p := range posts {
		m.posts[p.ID] = p
	}
}

// Post returns the record for id, if mirrored.
func (m *Mirror) Post(id string) (models.Post, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.posts[id]
	return p, ok
}

// Posts returns all mirrored posts sorted by creation time.
func (m *Mirror) Posts() []models.Post {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Post, 0, len(m.posts))
	for _, p := range m.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

// SetCurrentPost records the post currently opened by presentation.
func (m *Mirror) SetCurrentPost(post models.Post) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := post
	m.currentPost = &copied
}

// CurrentPost returns the currently opened post, if any.
func (m *Mirror) CurrentPost() (models.Post, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.currentPost == nil {
		return models.Post{}, false
	}
	return *m.currentPost, true
}

// ReplaceComments replaces the full comment section for a post.
func (m *Mirror) ReplaceComments(postID string, comments []models.Comment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments[postID] = append([]models.Comment(nil), comments...)
}

// Comments returns a copy of the comment section for a post.
func (m *Mirror) Comments(postID string) []models.Comment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Comment(nil), m.comments[postID]...)
}

// ReplaceReplies replaces the full reply section for a comment.
func (m *Mirror) ReplaceReplies(commentID string, replies []models.Reply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[commentID] = append([]models.Reply(nil), replies...)
}

// Replies returns a copy of the reply section for a comment.
func (m *Mirror) Replies(commentID string) []models.Reply {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Reply(nil), m.replies[commentID]...)
}

// Reset drops every mirrored section.
func (m *Mirror) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = make(map[string]models.Post)
	m.currentPost = nil
	m.comments = make(map[string][]models.Comment)
	m.replies = make(map[string][]models.Reply)
}
