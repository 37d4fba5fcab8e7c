// Package replicator owns create/update/like operations on content records
// that are mirrored at two store locations, the global index and the
// per-category index, and keeps both copies plus the in-memory mirror
// convergent.
package replicator

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"aniforum/internal/mirror"
	"aniforum/internal/models"
	"aniforum/internal/observability"
	"aniforum/internal/progress"
	"aniforum/internal/store"
)

// SessionSource exposes the current authenticated session to the content
// managers.
type SessionSource interface {
	Session() *models.Session
}

// Replicator treats the global and category copies of a post as one logical
// aggregate behind a single write API. On partial failure the caller gets a
// consistency warning and the mirror is left untouched; a later
// reconciliation sweep may repair the drift.
type Replicator struct {
	store    store.Store
	sessions SessionSource
	mirror   *mirror.Mirror
	meter    *progress.Meter
	log      *slog.Logger
	now      func() int64
}

// New wires the replicator. meter may be nil when no progress tracking is
// wanted.
func New(st store.Store, sessions SessionSource, m *mirror.Mirror, meter *progress.Meter) *Replicator {
	return &Replicator{
		store:    st,
		sessions: sessions,
		mirror:   m,
		meter:    meter,
		log:      observability.Component("replicator"),
		now:      func() int64 { return time.Now().UnixMilli() },
	}
}

// CreatePostInput carries the new-post form fields.
type CreatePostInput struct {
	Title      string      `json:"title"`
	Content    string      `json:"content"`
	CategoryID string      `json:"categoryId"`
	Pictures   []string    `json:"pictures"`
	Videos     []string    `json:"videos"`
	Audio      []string    `json:"audio"`
	Documents  []string    `json:"documents"`
	Tags       models.Tags `json:"tags"`
	CreatedAt  int64       `json:"createdAt"`
}

// CreatePost writes the record to both indexes as one logical transaction.
// The caller never observes a partially created post in the mirror.
func (r *Replicator) CreatePost(ctx context.Context, in CreatePostInput) (postID string, err error) {
	defer func() { observability.RecordOperation("replicator", "create_post", err) }()

	sess := r.sessions.Session()
	if sess == nil {
		return "", models.NewAuthRequiredError("Sign in to create a post")
	}
	if in.Title == "" {
		return "", models.NewValidationError("Title is required")
	}
	if in.Content == "" {
		return "", models.NewValidationError("Content is required")
	}
	if in.CategoryID == "" {
		return "", models.NewValidationError("Category is required")
	}

	id, err := r.store.GenerateID(ctx, store.PostsPath())
	if err != nil {
		return "", models.NewTransportError("id generation failed", err)
	}

	now := r.now()
	createdAt := in.CreatedAt
	if createdAt == 0 {
		createdAt = now
	}
	post := models.Post{
		ID:         id,
		Title:      in.Title,
		Content:    in.Content,
		CategoryID: in.CategoryID,
		AuthorID:   sess.SubjectID,
		Pictures:   emptyIfNil(in.Pictures),
		Videos:     emptyIfNil(in.Videos),
		Audio:      emptyIfNil(in.Audio),
		Documents:  emptyIfNil(in.Documents),
		Tags:       in.Tags,
		Likes:      map[string]bool{},
		LikesCount: 0,
		Views:      0,
		CreatedAt:  createdAt,
		UpdatedAt:  now,
	}
	if post.Tags == nil {
		post.Tags = models.Tags{}
	}

	if err := r.store.Write(ctx, store.PostPath(id), post); err != nil {
		return "", models.NewTransportError("global post write failed", err)
	}
	if err := r.store.Write(ctx, store.CategoryPostPath(in.CategoryID, id), post); err != nil {
		observability.DualWriteFailures.Inc()
		r.log.Error("category post write failed after global write",
			slog.String("post_id", id),
			slog.String("category_id", in.CategoryID),
			slog.String("error", err.Error()),
		)
		return "", models.NewConsistencyWarning("post created in global index only", err)
	}

	r.mirror.SetPost(post)
	r.mirror.SetCurrentPost(post)
	if r.meter != nil {
		if err := r.meter.Increment(ctx); err != nil {
			r.log.Warn("progress tally update failed", slog.String("error", err.Error()))
		}
	}
	return id, nil
}

// ToggleLike flips the calling subject's like on the post and mirrors the
// updated likes set and counter to both copies. Concurrent toggles by
// different subjects may lose an update; the remote store offers no
// compare-and-swap, and this is an accepted weak-consistency tradeoff.
func (r *Replicator) ToggleLike(ctx context.Context, postID string) (updated *models.Post, err error) {
	defer func() { observability.RecordOperation("replicator", "toggle_like", err) }()

	sess := r.sessions.Session()
	if sess == nil {
		return nil, models.NewAuthRequiredError("Sign in to like a post")
	}

	categoryID, post, err := r.locatePost(ctx, postID)
	if err != nil {
		return nil, err
	}

	likes := post.Likes
	if likes == nil {
		likes = map[string]bool{}
	}
	likesCount := post.LikesCount
	if likesCount == 0 {
		likesCount = len(likes)
	}
	if likes[sess.SubjectID] {
		delete(likes, sess.SubjectID)
		likesCount--
		if likesCount < 0 {
			likesCount = 0
		}
	} else {
		likes[sess.SubjectID] = true
		likesCount++
	}

	fields := map[string]any{
		"likes":      likes,
		"likesCount": likesCount,
	}
	if err := r.store.Merge(ctx, store.CategoryPostPath(categoryID, postID), fields); err != nil {
		return nil, models.NewTransportError("like write failed", err)
	}
	if err := r.store.Merge(ctx, store.PostPath(postID), fields); err != nil {
		observability.DualWriteFailures.Inc()
		r.log.Error("global like write failed after category write",
			slog.String("post_id", postID),
			slog.String("error", err.Error()),
		)
		return nil, models.NewConsistencyWarning("like applied to category copy only", err)
	}

	post.ID = postID
	post.CategoryID = categoryID
	post.Likes = likes
	post.LikesCount = likesCount
	post.NormalizeTags()

	r.mirror.SetPost(*post)
	if current, ok := r.mirror.CurrentPost(); ok && current.ID == postID {
		r.mirror.SetCurrentPost(*post)
	}
	return post, nil
}

// FetchByCategory loads the per-category index, normalizes it and replaces
// the mirrored records. An absent index is an empty category, not an error.
func (r *Replicator) FetchByCategory(ctx context.Context, categoryID string) (posts []models.Post, err error) {
	defer func() { observability.RecordOperation("replicator", "fetch_by_category", err) }()

	raw, err := r.store.Read(ctx, store.CategoryPostsPath(categoryID))
	if err != nil {
		return nil, models.NewTransportError("category read failed", err)
	}
	if raw == nil {
		return []models.Post{}, nil
	}
	var byID map[string]models.Post
	if err := json.Unmarshal(raw, &byID); err != nil {
		return nil, models.NewTransportError("category decode failed", err)
	}
	posts = make([]models.Post, 0, len(byID))
	for id, post := range byID {
		post.ID = id
		post.CategoryID = categoryID
		post.NormalizeTags()
		posts = append(posts, post)
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].CreatedAt < posts[j].CreatedAt })
	r.mirror.SetPosts(posts)
	return posts, nil
}

// FetchByID locates the post in the category index and enriches it with the
// author's profile snapshot. A missing profile is not an error.
func (r *Replicator) FetchByID(ctx context.Context, postID string) (post *models.Post, err error) {
	defer func() { observability.RecordOperation("replicator", "fetch_by_id", err) }()

	categoryID, post, err := r.locatePost(ctx, postID)
	if err != nil {
		return nil, err
	}
	post.ID = postID
	post.CategoryID = categoryID
	post.NormalizeTags()

	if post.AuthorID != "" {
		if raw, err := r.store.Read(ctx, store.UserProfilePath(post.AuthorID)); err == nil && raw != nil {
			var profile models.Profile
			if err := json.Unmarshal(raw, &profile); err == nil {
				post.Author = &models.Author{
					UID:       post.AuthorID,
					Username:  profile.Username,
					AvatarURL: profile.AvatarURL,
					Signature: profile.Signature,
				}
			}
		}
	}

	r.mirror.SetPost(*post)
	r.mirror.SetCurrentPost(*post)
	return post, nil
}

// locatePost scans the category index for the owning category; no direct
// category pointer is assumed reliable.
func (r *Replicator) locatePost(ctx context.Context, postID string) (string, *models.Post, error) {
	raw, err := r.store.Read(ctx, store.CategoriesPath())
	if err != nil {
		return "", nil, models.NewTransportError("categories read failed", err)
	}
	if raw == nil {
		return "", nil, models.NewNotFoundError("post", postID)
	}
	var categories map[string]models.Category
	if err := json.Unmarshal(raw, &categories); err != nil {
		return "", nil, models.NewTransportError("categories decode failed", err)
	}
	for categoryID, category := range categories {
		if post, ok := category.Posts[postID]; ok {
			return categoryID, &post, nil
		}
	}
	return "", nil, models.NewNotFoundError("post", postID)
}

func emptyIfNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
