package models

// CommentFallbackSignature is the signature denormalized into a comment when
// the author's profile has none.
const CommentFallbackSignature = "Участник форума"

// Author is the denormalized profile snapshot written into comments and
// replies at creation time. Later profile edits do not change it.
type Author struct {
	UID       string `json:"uid"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
	Signature string `json:"signature"`
}

// Comment lives at posts/{postId}/comments/{id}.
type Comment struct {
	ID         string          `json:"id"`
	Author     Author          `json:"author"`
	Content    string          `json:"content"`
	Image      string          `json:"image,omitempty"`
	Video      string          `json:"video,omitempty"`
	CreatedAt  int64           `json:"createdAt"`
	Likes      map[string]bool `json:"likes"`
	LikesCount int             `json:"likesCount"`
}

// Reply lives at posts/{postId}/comments/{commentId}/replies/{id}.
// Replies carry no like counter.
type Reply struct {
	ID        string `json:"id"`
	Author    Author `json:"author"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`
}
