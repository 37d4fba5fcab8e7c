package models

import "encoding/json"

// DefaultTag is applied when a stored post carries no tags at all.
const DefaultTag = "форум"

// Tags is always materialized as an ordered sequence, even when the store
// returned a scalar string or omitted the field entirely.
type Tags []string

// UnmarshalJSON accepts either a JSON array of strings or a scalar string.
func (t *Tags) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	if single == "" {
		*t = nil
		return nil
	}
	*t = Tags{single}
	return nil
}

// Post is a content record mirrored at the global index (posts/{id}) and the
// category index (categories/{categoryId}/posts/{id}). Both copies carry the
// full record; neither is authoritative on its own.
type Post struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Content    string          `json:"content"`
	CategoryID string          `json:"categoryId"`
	AuthorID   string          `json:"authorId"`
	Pictures   []string        `json:"pictures"`
	Videos     []string        `json:"videos"`
	Audio      []string        `json:"audio"`
	Documents  []string        `json:"documents"`
	Tags       Tags            `json:"tags"`
	Likes      map[string]bool `json:"likes"`
	LikesCount int             `json:"likesCount"`
	Views      int             `json:"views"`
	CreatedAt  int64           `json:"createdAt"`
	UpdatedAt  int64           `json:"updatedAt"`
	// Author is a best-effort profile enrichment on single-post reads; it is
	// never persisted with the record.
	Author *Author `json:"author,omitempty"`
}

// NormalizeTags enforces the sequence invariant on a record read back from
// the store.
func (p *Post) NormalizeTags() {
	if len(p.Tags) == 0 {
		p.Tags = Tags{DefaultTag}
	}
}

// LikedBy reports whether the subject currently likes the post.
func (p *Post) LikedBy(subjectID string) bool {
	return p.Likes[subjectID]
}
