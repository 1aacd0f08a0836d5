package service

import (
	"context"
	"sort"
	"strings"

	"smart-todos/internal/model"
	"smart-todos/internal/repository"
)

// CategoryService provides helpers around categories.
type CategoryService struct {
	repo *repository.CategoryRepository
}

func NewCategoryService(repo *repository.CategoryRepository) *CategoryService {
	return &CategoryService{repo: repo}
}

// List returns the categories a user has used, sorted.
func (s *CategoryService) List(ctx context.Context, user *model.User) ([]string, error) {
	names, err := s.repo.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// Suggestions merges the built-in categories with the user's own, matching
// case-insensitively and keeping the built-in spelling first.
func (s *CategoryService) Suggestions(ctx context.Context, user *model.User) ([]string, error) {
	used, err := s.List(ctx, user)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(model.SuggestedCategories)+len(used))
	out := make([]string, 0, len(model.SuggestedCategories)+len(used))
	for _, name := range model.SuggestedCategories {
		seen[strings.ToLower(name)] = true
		out = append(out, name)
	}
	var extra []string
	for _, name := range used {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		extra = append(extra, name)
	}
	sort.Strings(extra)
	return append(out, extra...), nil
}

// Counts returns how many todos each category holds.
func (s *CategoryService) Counts(ctx context.Context, user *model.User) (map[string]int, error) {
	return s.repo.CountByUser(ctx, user.ID)
}
