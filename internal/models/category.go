package models

// Category groups posts. The Posts map is a denormalized snapshot of the
// per-category index, not a live reference to the global records; the
// replicator reconciles it on every replicated write.
type Category struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Order       int             `json:"order"`
	Icon        string          `json:"icon"`
	Posts       map[string]Post `json:"posts,omitempty"`
	CreatedAt   int64           `json:"createdAt,omitempty"`
	UpdatedAt   int64           `json:"updatedAt,omitempty"`
}

// DefaultCategories are seeded when the store has no categories yet.
func DefaultCategories() []Category {
	return []Category{
		{
			ID:          "anime-discussions",
			Name:        "Обсуждение аниме",
			Description: "Общие обсуждения аниме и манги",
			Order:       1,
			Icon:        "🎬",
		},
		{
			ID:          "news",
			Name:        "Новости",
			Description: "Новости аниме индустрии",
			Order:       2,
			Icon:        "📰",
		},
		{
			ID:          "recommendations",
			Name:        "Рекомендации",
			Description: "Рекомендации аниме и манги",
			Order:       3,
			Icon:        "👍",
		},
	}
}
