// Package subscriptions manages the live push channels for comments and
// replies: one subscription per interest key, full-snapshot delivery into the
// mirror, and comment/reply creation with denormalized author snapshots.
package subscriptions

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"aniforum/internal/mirror"
	"aniforum/internal/models"
	"aniforum/internal/observability"
	"aniforum/internal/replicator"
	"aniforum/internal/store"
)

// CommentsKey is the interest key for a post's comment section.
func CommentsKey(postID string) string { return "comments:" + postID }

// RepliesKey is the interest key for one comment's reply thread.
func RepliesKey(postID, commentID string) string {
	return "replies:" + postID + ":" + commentID
}

// Manager holds at most one live subscription per interest key. Subscribing
// to a key that already has a live channel tears the old one down first, so
// navigating between posts never leaks watchers.
type Manager struct {
	store    store.Store
	sessions replicator.SessionSource
	mirror   *mirror.Mirror
	log      *slog.Logger
	now      func() int64

	mu   sync.Mutex
	subs map[string]store.UnsubscribeFunc
	errs map[string]error
}

// NewManager wires the subscription manager.
func NewManager(st store.Store, sessions replicator.SessionSource, m *mirror.Mirror) *Manager {
	return &Manager{
		store:    st,
		sessions: sessions,
		mirror:   m,
		log:      observability.Component("subscriptions"),
		now:      func() int64 { return time.Now().UnixMilli() },
		subs:     map[string]store.UnsubscribeFunc{},
		errs:     map[string]error{},
	}
}

// SubscribeComments opens the live channel for a post's comment section.
// Every snapshot replaces the post's mirrored comments wholesale.
func (m *Manager) SubscribeComments(ctx context.Context, postID string) (err error) {
	defer func() { observability.RecordOperation("subscriptions", "subscribe_comments", err) }()

	key := CommentsKey(postID)
	return m.subscribe(ctx, key, store.CommentsPath(postID), func(doc json.RawMessage) {
		comments, err := decodeComments(doc)
		if err != nil {
			m.setErr(key, models.NewTransportError("comments snapshot decode failed", err))
			return
		}
		m.mirror.ReplaceComments(postID, comments)
		observability.SnapshotApplies.WithLabelValues("comments").Inc()
	})
}

// SubscribeReplies opens the live channel for one comment's reply thread.
func (m *Manager) SubscribeReplies(ctx context.Context, postID, commentID string) (err error) {
	defer func() { observability.RecordOperation("subscriptions", "subscribe_replies", err) }()

	key := RepliesKey(postID, commentID)
	return m.subscribe(ctx, key, store.RepliesPath(postID, commentID), func(doc json.RawMessage) {
		replies, err := decodeReplies(doc)
		if err != nil {
			m.setErr(key, models.NewTransportError("replies snapshot decode failed", err))
			return
		}
		m.mirror.ReplaceReplies(commentID, replies)
		observability.SnapshotApplies.WithLabelValues("replies").Inc()
	})
}

func (m *Manager) subscribe(ctx context.Context, key, path string, apply store.SnapshotFunc) error {
	m.Unsubscribe(key)

	onError := func(err error) {
		m.setErr(key, models.NewTransportError("subscription channel failed", err))
		m.log.Error("subscription channel failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
	cancel, err := m.store.Subscribe(ctx, path, apply, onError)
	if err != nil {
		return models.NewTransportError("subscribe failed", err)
	}

	m.mu.Lock()
	m.subs[key] = cancel
	delete(m.errs, key)
	m.mu.Unlock()
	observability.ActiveSubscriptions.Inc()
	return nil
}

// Unsubscribe tears down the live channel for the key. Unknown keys are a
// no-op.
func (m *Manager) Unsubscribe(key string) {
	m.mu.Lock()
	cancel, ok := m.subs[key]
	if ok {
		delete(m.subs, key)
	}
	delete(m.errs, key)
	m.mu.Unlock()
	if ok {
		cancel()
		observability.ActiveSubscriptions.Dec()
	}
}

// UnsubscribeAll tears down every live channel, typically on sign-out or
// shutdown.
func (m *Manager) UnsubscribeAll() {
	m.mu.Lock()
	cancels := make([]store.UnsubscribeFunc, 0, len(m.subs))
	for key, cancel := range m.subs {
		cancels = append(cancels, cancel)
		delete(m.subs, key)
		delete(m.errs, key)
	}
	m.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
		observability.ActiveSubscriptions.Dec()
	}
}

// Err reports the sticky failure state for an interest key, nil when the
// channel is healthy.
func (m *Manager) Err(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errs[key]
}

func (m *Manager) setErr(key string, err error) {
	m.mu.Lock()
	m.errs[key] = err
	m.mu.Unlock()
}

// AddComment writes a new comment with the author's current profile snapshot
// denormalized into it. The mirror is not touched here; the live channel
// delivers the authoritative snapshot.
func (m *Manager) AddComment(ctx context.Context, postID, content, image, video string) (commentID string, err error) {
	defer func() { observability.RecordOperation("subscriptions", "add_comment", err) }()

	sess := m.sessions.Session()
	if sess == nil {
		return "", models.NewAuthRequiredError("Sign in to comment")
	}
	if content == "" {
		return "", models.NewValidationError("Comment content is required")
	}

	id, err := m.store.GenerateID(ctx, store.CommentsPath(postID))
	if err != nil {
		return "", models.NewTransportError("id generation failed", err)
	}
	comment := models.Comment{
		ID:         id,
		Author:     m.authorSnapshot(ctx, sess),
		Content:    content,
		Image:      image,
		Video:      video,
		CreatedAt:  m.now(),
		Likes:      map[string]bool{},
		LikesCount: 0,
	}
	if err := m.store.Write(ctx, store.CommentPath(postID, id), comment); err != nil {
		return "", models.NewTransportError("comment write failed", err)
	}
	return id, nil
}

// AddReply writes a new reply under the comment, author snapshot included.
func (m *Manager) AddReply(ctx context.Context, postID, commentID, content string) (replyID string, err error) {
	defer func() { observability.RecordOperation("subscriptions", "add_reply", err) }()

	sess := m.sessions.Session()
	if sess == nil {
		return "", models.NewAuthRequiredError("Sign in to reply")
	}
	if content == "" {
		return "", models.NewValidationError("Reply content is required")
	}

	id, err := m.store.GenerateID(ctx, store.RepliesPath(postID, commentID))
	if err != nil {
		return "", models.NewTransportError("id generation failed", err)
	}
	reply := models.Reply{
		ID:        id,
		Author:    m.authorSnapshot(ctx, sess),
		Content:   content,
		CreatedAt: m.now(),
	}
	if err := m.store.Write(ctx, store.ReplyPath(postID, commentID, id), reply); err != nil {
		return "", models.NewTransportError("reply write failed", err)
	}
	return id, nil
}

// ToggleCommentLike applies the caller-supplied end state for the subject's
// like on the comment and writes the whole record back. The desired state
// travels with the call, so a redelivered intent settles on the same record
// instead of flipping it again. The comment lives in one location only, so
// there is no dual-write concern here.
func (m *Manager) ToggleCommentLike(ctx context.Context, postID, commentID, subjectID string, liked bool) (updated *models.Comment, err error) {
	defer func() { observability.RecordOperation("subscriptions", "toggle_comment_like", err) }()

	if subjectID == "" {
		return nil, models.NewValidationError("Subject is required")
	}

	raw, err := m.store.Read(ctx, store.CommentPath(postID, commentID))
	if err != nil {
		return nil, models.NewTransportError("comment read failed", err)
	}
	if raw == nil {
		return nil, models.NewNotFoundError("comment", commentID)
	}
	var comment models.Comment
	if err := json.Unmarshal(raw, &comment); err != nil {
		return nil, models.NewTransportError("comment decode failed", err)
	}
	comment.ID = commentID
	if comment.Likes == nil {
		comment.Likes = map[string]bool{}
	}
	if liked {
		comment.Likes[subjectID] = true
	} else {
		delete(comment.Likes, subjectID)
	}
	comment.LikesCount = len(comment.Likes)

	if err := m.store.Write(ctx, store.CommentPath(postID, commentID), comment); err != nil {
		return nil, models.NewTransportError("comment like write failed", err)
	}
	return &comment, nil
}

// authorSnapshot reads the author's stored profile, falling back to the
// session's own copy and then to the guest defaults.
func (m *Manager) authorSnapshot(ctx context.Context, sess *models.Session) models.Author {
	profile := sess.Profile
	if raw, err := m.store.Read(ctx, store.UserProfilePath(sess.SubjectID)); err == nil && raw != nil {
		var stored models.Profile
		if err := json.Unmarshal(raw, &stored); err == nil {
			profile = stored
		}
	}
	author := models.Author{
		UID:       sess.SubjectID,
		Username:  profile.Username,
		AvatarURL: profile.AvatarURL,
		Signature: profile.Signature,
	}
	if author.Username == "" {
		author.Username = models.DefaultUsername
	}
	if author.AvatarURL == "" {
		author.AvatarURL = models.DefaultAvatarURL
	}
	if author.Signature == "" {
		author.Signature = models.CommentFallbackSignature
	}
	return author
}

func decodeComments(doc json.RawMessage) ([]models.Comment, error) {
	if doc == nil {
		return []models.Comment{}, nil
	}
	var byID map[string]models.Comment
	if err := json.Unmarshal(doc, &byID); err != nil {
		return nil, err
	}
	comments := make([]models.Comment, 0, len(byID))
	for id, comment := range byID {
		comment.ID = id
		comments = append(comments, comment)
	}
	sort.Slice(comments, func(i, j int) bool {
		if comments[i].CreatedAt != comments[j].CreatedAt {
			return comments[i].CreatedAt < comments[j].CreatedAt
		}
		return comments[i].ID < comments[j].ID
	})
	return comments, nil
}

func decodeReplies(doc json.RawMessage) ([]models.Reply, error) {
	if doc == nil {
		return []models.Reply{}, nil
	}
	var byID map[string]models.Reply
	if err := json.Unmarshal(doc, &byID); err != nil {
		return nil, err
	}
	replies := make([]models.Reply, 0, len(byID))
	for id, reply := range byID {
		reply.ID = id
		replies = append(replies, reply)
	}
	sort.Slice(replies, func(i, j int) bool {
		if replies[i].CreatedAt != replies[j].CreatedAt {
			return replies[i].CreatedAt < replies[j].CreatedAt
		}
		return replies[i].ID < replies[j].ID
	})
	return replies, nil
}
