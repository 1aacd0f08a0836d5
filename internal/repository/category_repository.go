package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"smart-todos/internal/model"
)

// CategoryRepository reads the categories users have attached to todos.
type CategoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// ListByUser returns the distinct non-empty categories of a user's todos, sorted.
func (r *CategoryRepository) ListByUser(ctx context.Context, userID uint) ([]string, error) {
	var names []string
	if err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ? AND category IS NOT NULL AND category <> ''", userID).
		Distinct("category").Order("category ASC").Pluck("category", &names).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return names, nil
}

// CountByUser returns how many todos each category holds.
func (r *CategoryRepository) CountByUser(ctx context.Context, userID uint) (map[string]int, error) {
	var rows []struct {
		Category string
		Total    int
	}
	if err := r.db.WithContext(ctx).Model(&model.Task{}).
		Select("category, COUNT(*) AS total").
		Where("user_id = ? AND category IS NOT NULL AND category <> ''", userID).
		Group("category").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count categories: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Category] = row.Total
	}
	return out, nil
}
