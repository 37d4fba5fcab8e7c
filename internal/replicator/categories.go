package replicator

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"aniforum/internal/models"
	"aniforum/internal/observability"
	"aniforum/internal/store"
)

// FetchCategories loads the category index sorted by display order. An empty
// store is bootstrapped with the default set so a fresh deployment is usable
// immediately.
func (r *Replicator) FetchCategories(ctx context.Context) (categories []models.Category, err error) {
	defer func() { observability.RecordOperation("replicator", "fetch_categories", err) }()

	raw, err := r.store.Read(ctx, store.CategoriesPath())
	if err != nil {
		return nil, models.NewTransportError("categories read failed", err)
	}

	var byID map[string]models.Category
	if raw != nil {
		if err := json.Unmarshal(raw, &byID); err != nil {
			return nil, models.NewTransportError("categories decode failed", err)
		}
	}
	if len(byID) == 0 {
		byID = map[string]models.Category{}
		for _, category := range models.DefaultCategories() {
			byID[category.ID] = category
		}
		if err := r.store.Write(ctx, store.CategoriesPath(), byID); err != nil {
			return nil, models.NewTransportError("categories bootstrap failed", err)
		}
		r.log.Info("bootstrapped default categories", slog.Int("count", len(byID)))
	}

	categories = make([]models.Category, 0, len(byID))
	for id, category := range byID {
		category.ID = id
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].Order != categories[j].Order {
			return categories[i].Order < categories[j].Order
		}
		return categories[i].ID < categories[j].ID
	})
	return categories, nil
}

// FetchCategory loads a single category record, posts included.
func (r *Replicator) FetchCategory(ctx context.Context, categoryID string) (category *models.Category, err error) {
	defer func() { observability.RecordOperation("replicator", "fetch_category", err) }()

	raw, err := r.store.Read(ctx, store.CategoryPath(categoryID))
	if err != nil {
		return nil, models.NewTransportError("category read failed", err)
	}
	if raw == nil {
		return nil, models.NewNotFoundError("category", categoryID)
	}
	category = &models.Category{}
	if err := json.Unmarshal(raw, category); err != nil {
		return nil, models.NewTransportError("category decode failed", err)
	}
	category.ID = categoryID
	return category, nil
}

// CreateCategory adds a category to the index. Restricted to the superuser
// role, matching the administrative surface it backs.
func (r *Replicator) CreateCategory(ctx context.Context, category models.Category) (err error) {
	defer func() { observability.RecordOperation("replicator", "create_category", err) }()

	if err := r.requireSuperuser(); err != nil {
		return err
	}
	if category.ID == "" {
		return models.NewValidationError("Category id is required")
	}
	if category.Name == "" {
		return models.NewValidationError("Category name is required")
	}

	now := r.now()
	category.CreatedAt = now
	category.UpdatedAt = now
	if category.Posts == nil {
		category.Posts = map[string]models.Post{}
	}
	if err := r.store.Write(ctx, store.CategoryPath(category.ID), category); err != nil {
		return models.NewTransportError("category write failed", err)
	}
	return nil
}

// UpdateCategory merges the given fields into the category record.
func (r *Replicator) UpdateCategory(ctx context.Context, categoryID string, fields map[string]any) (err error) {
	defer func() { observability.RecordOperation("replicator", "update_category", err) }()

	if err := r.requireSuperuser(); err != nil {
		return err
	}
	raw, err := r.store.Read(ctx, store.CategoryPath(categoryID))
	if err != nil {
		return models.NewTransportError("category read failed", err)
	}
	if raw == nil {
		return models.NewNotFoundError("category", categoryID)
	}

	merged := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		merged[key] = value
	}
	merged["updatedAt"] = r.now()
	if err := r.store.Merge(ctx, store.CategoryPath(categoryID), merged); err != nil {
		return models.NewTransportError("category update failed", err)
	}
	return nil
}

// DeleteCategory removes the category and every post replicated under it.
// The global copies of those posts are intentionally left in place.
func (r *Replicator) DeleteCategory(ctx context.Context, categoryID string) (err error) {
	defer func() { observability.RecordOperation("replicator", "delete_category", err) }()

	if err := r.requireSuperuser(); err != nil {
		return err
	}
	if err := r.store.Remove(ctx, store.CategoryPath(categoryID)); err != nil {
		return models.NewTransportError("category delete failed", err)
	}
	return nil
}

func (r *Replicator) requireSuperuser() error {
	sess := r.sessions.Session()
	if sess == nil {
		return models.NewAuthRequiredError("Sign in to manage categories")
	}
	if sess.Role != models.RoleSuperuser {
		return models.NewAuthRequiredError("Category management requires the superuser role")
	}
	return nil
}
