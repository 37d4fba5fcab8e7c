// Package store defines the path-addressed document store contract the
// synchronization core runs against, plus the bundled adapters (in-memory,
// Redis, SQLite).
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// SnapshotFunc receives the entire current document at the subscribed path.
// A nil document means the path is currently absent.
type SnapshotFunc func(doc json.RawMessage)

// ErrorFunc receives asynchronous subscription failures.
type ErrorFunc func(err error)

// UnsubscribeFunc cancels a subscription. Safe to call more than once.
type UnsubscribeFunc func()

// Store is a hierarchical document store with push-based change
// subscriptions. Merges are last-write-wins per field, not per document.
// Subscriptions deliver full snapshots of the subscribed path, never diffs,
// in delivery order for a given subscription.
type Store interface {
	Read(ctx context.Context, path string) (json.RawMessage, error)
	Write(ctx context.Context, path string, doc any) error
	Merge(ctx context.Context, path string, fields map[string]any) error
	Remove(ctx context.Context, path string) error
	Subscribe(ctx context.Context, path string, onSnapshot SnapshotFunc, onError ErrorFunc) (UnsubscribeFunc, error)
	GenerateID(ctx context.Context, path string) (string, error)
}

// Store paths, mirroring the remote layout.
func UsersPath() string                  { return "users" }
func UserPath(uid string) string         { return "users/" + uid }
func UserProfilePath(uid string) string  { return "users/" + uid + "/profile" }
func PostsPath() string                  { return "posts" }
func PostPath(id string) string          { return "posts/" + id }
func CategoriesPath() string             { return "categories" }
func CategoryPath(id string) string      { return "categories/" + id }
func CategoryPostsPath(id string) string { return "categories/" + id + "/posts" }
func CategoryPostPath(categoryID, postID string) string {
	return fmt.Sprintf("categories/%s/posts/%s", categoryID, postID)
}
func CommentsPath(postID string) string { return "posts/" + postID + "/comments" }
func CommentPath(postID, commentID string) string {
	return fmt.Sprintf("posts/%s/comments/%s", postID, commentID)
}
func RepliesPath(postID, commentID string) string {
	return fmt.Sprintf("posts/%s/comments/%s/replies", postID, commentID)
}
func ReplyPath(postID, commentID, replyID string) string {
	return fmt.Sprintf("posts/%s/comments/%s/replies/%s", postID, commentID, replyID)
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

// Within reports whether a change at changed is visible at sub, i.e. one
// path is an ancestor of (or equal to) the other.
func Within(sub, changed string) bool {
	a := strings.Trim(sub, "/")
	b := strings.Trim(changed, "/")
	if a == b {
		return true
	}
	return strings.HasPrefix(b, a+"/") || strings.HasPrefix(a, b+"/")
}

// snapshotQueue serializes snapshot delivery for one subscription: writers
// enqueue without blocking, a single drain goroutine invokes the callback in
// enqueue order.
type snapshotQueue struct {
	mu      sync.Mutex
	pending []json.RawMessage
	wake    chan struct{}
	stop    chan struct{}
	once    sync.Once
}

func newSnapshotQueue() *snapshotQueue {
	return &snapshotQueue{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
}

func (q *snapshotQueue) enqueue(doc json.RawMessage) {
	q.mu.Lock()
	q.pending = append(q.pending, doc)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *snapshotQueue) run(onSnapshot SnapshotFunc) {
	for {
		select {
		case <-q.stop:
			return
		case <-q.wake:
			q.mu.Lock()
			batch := q.pending
			q.pending = nil
			q.mu.Unlock()
			for _, doc := range batch {
				select {
				case <-q.stop:
					return
				default:
				}
				onSnapshot(doc)
			}
		}
	}
}

func (q *snapshotQueue) close() {
	q.once.Do(func() { close(q.stop) })
}

// normalizeValue round-trips a value through JSON so adapters store one
// uniform representation regardless of the caller's concrete types.
func normalizeValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
