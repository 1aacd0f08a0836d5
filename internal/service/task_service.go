package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"smart-todos/internal/model"
	"smart-todos/internal/repository"
	"smart-todos/internal/view"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 1000
	maxCategoryLen    = 50

	defaultSearchLimit = 50
	maxSearchLimit     = 100
	maxDueSoonDays     = 30
)

// TodoInput represents data required to create a todo.
type TodoInput struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Priority    model.Priority `json:"priority"`
	Category    string         `json:"category"`
	DueDate     *string        `json:"due_date"`
	Starred     bool           `json:"starred"`
}

// TodoPatch is a partial update. Nil fields are left unchanged; an empty
// DueDate clears the due date.
type TodoPatch struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Completed   *bool           `json:"completed"`
	Priority    *model.Priority `json:"priority"`
	Category    *string         `json:"category"`
	DueDate     *string         `json:"due_date"`
	Starred     *bool           `json:"starred"`
	Archived    *bool           `json:"archived"`
}

// Statistics summarizes a user's todos.
type Statistics struct {
	Total          int            `json:"total"`
	Completed      int            `json:"completed"`
	Pending        int            `json:"pending"`
	ByPriority     map[string]int `json:"by_priority"`
	ByCategory     map[string]int `json:"by_category"`
	CompletionRate float64        `json:"completion_rate"`
}

// BulkResult reports the outcome of a bulk update.
type BulkResult struct {
	UpdatedCount int      `json:"updated_count"`
	UpdatedTodos []uint   `json:"updated_todos"`
	Errors       []string `json:"errors"`
}

// ImportResult reports the outcome of an import.
type ImportResult struct {
	ImportedCount   int      `json:"imported_count"`
	ImportedTodoIDs []uint   `json:"imported_todo_ids"`
	Errors          []string `json:"errors"`
}

// ViewResult is a filtered and searched todo list with tab counts.
type ViewResult struct {
	Filter view.Filter  `json:"filter"`
	Query  string       `json:"query"`
	Todos  []model.Task `json:"todos"`
	Counts view.Counts  `json:"counts"`
}

// TaskService wraps todo-related business logic.
type TaskService struct {
	taskRepo   *repository.TaskRepository
	categories *CategoryService
}

func NewTaskService(taskRepo *repository.TaskRepository, categories *CategoryService) *TaskService {
	return &TaskService{taskRepo: taskRepo, categories: categories}
}

func (s *TaskService) Create(ctx context.Context, user *model.User, input TodoInput) (*model.Task, error) {
	task, err := buildTask(input)
	if err != nil {
		return nil, err
	}
	task.UserID = user.ID
	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func buildTask(input TodoInput) (*model.Task, error) {
	title := strings.TrimSpace(input.Title)
	if err := checkTitle(title); err != nil {
		return nil, err
	}
	if err := checkLen("description", input.Description, maxDescriptionLen); err != nil {
		return nil, err
	}
	category := strings.TrimSpace(input.Category)
	if err := checkLen("category", category, maxCategoryLen); err != nil {
		return nil, err
	}
	priority := input.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}
	if !priority.Valid() {
		return nil, invalid("priority", "must be one of low, medium, high, urgent")
	}
	due, err := normalizeDue(input.DueDate)
	if err != nil {
		return nil, err
	}
	return &model.Task{
		Title:       title,
		Description: input.Description,
		Priority:    priority,
		Category:    category,
		DueDate:     due,
		Starred:     input.Starred,
	}, nil
}

// Get loads a todo and checks that user owns it.
func (s *TaskService) Get(ctx context.Context, user *model.User, taskID uint) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTodoNotFound
		}
		return nil, err
	}
	if task.UserID != user.ID {
		return nil, ErrForbidden
	}
	return task, nil
}

func (s *TaskService) Update(ctx context.Context, user *model.User, taskID uint, patch TodoPatch) (*model.Task, error) {
	task, err := s.Get(ctx, user, taskID)
	if err != nil {
		return nil, err
	}
	if err := applyPatch(task, patch); err != nil {
		return nil, err
	}
	if err := s.taskRepo.Save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func applyPatch(task *model.Task, patch TodoPatch) error {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if err := checkTitle(title); err != nil {
			return err
		}
		task.Title = title
	}
	if patch.Description != nil {
		if err := checkLen("description", *patch.Description, maxDescriptionLen); err != nil {
			return err
		}
		task.Description = *patch.Description
	}
	if patch.Priority != nil {
		if !patch.Priority.Valid() {
			return invalid("priority", "must be one of low, medium, high, urgent")
		}
		task.Priority = *patch.Priority
	}
	if patch.Category != nil {
		category := strings.TrimSpace(*patch.Category)
		if err := checkLen("category", category, maxCategoryLen); err != nil {
			return err
		}
		task.Category = category
	}
	if patch.DueDate != nil {
		due, err := normalizeDue(patch.DueDate)
		if err != nil {
			return err
		}
		task.DueDate = due
	}
	if patch.Completed != nil {
		task.Completed = *patch.Completed
	}
	if patch.Starred != nil {
		task.Starred = *patch.Starred
	}
	if patch.Archived != nil {
		task.Archived = *patch.Archived
	}
	return nil
}

func (s *TaskService) Delete(ctx context.Context, user *model.User, taskID uint) error {
	if _, err := s.Get(ctx, user, taskID); err != nil {
		return err
	}
	return s.taskRepo.Delete(ctx, user.ID, taskID)
}

// ClearAll removes every todo of the user and returns how many were removed.
func (s *TaskService) ClearAll(ctx context.Context, user *model.User) (int64, error) {
	return s.taskRepo.DeleteAllByUser(ctx, user.ID)
}

func (s *TaskService) List(ctx context.Context, user *model.User, filter repository.ListFilter) ([]model.Task, error) {
	if filter.Priority != "" && !filter.Priority.Valid() {
		return nil, invalid("priority", "must be one of low, medium, high, urgent")
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, invalid("limit", "limit and offset must not be negative")
	}
	if filter.DueBefore != "" {
		due, err := view.NormalizeDueDate(filter.DueBefore)
		if err != nil {
			return nil, invalid("due_before", "must be an ISO 8601 date")
		}
		filter.DueBefore = due
	}
	return s.taskRepo.List(ctx, user.ID, filter)
}

// Export returns every todo of the user in creation order.
func (s *TaskService) Export(ctx context.Context, user *model.User) ([]model.Task, error) {
	return s.taskRepo.ListAll(ctx, user.ID)
}

// Overdue returns overdue todos sorted by due date.
func (s *TaskService) Overdue(ctx context.Context, user *model.User, now time.Time) ([]model.Task, error) {
	tasks, err := s.taskRepo.ListAll(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	overdue := view.FilterBy(tasks, view.FilterOverdue, now)
	sortByDue(overdue)
	return overdue, nil
}

// DueSoon returns open todos due between the start of today and the end of
// the day `days` days from now, sorted by due date.
func (s *TaskService) DueSoon(ctx context.Context, user *model.User, days int, now time.Time) ([]model.Task, error) {
	if days < 1 || days > maxDueSoonDays {
		return nil, invalid("days", "must be between 1 and %d", maxDueSoonDays)
	}
	tasks, err := s.taskRepo.ListAll(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	start := now.UTC().Truncate(24 * time.Hour)
	end := start.AddDate(0, 0, days+1)

	var out []model.Task
	for _, task := range view.FilterBy(tasks, view.FilterActive, now) {
		due, ok := view.ParseDueDate(task.Due())
		if ok && !due.Before(start) && due.Before(end) {
			out = append(out, task)
		}
	}
	sortByDue(out)
	return out, nil
}

func (s *TaskService) Statistics(ctx context.Context, user *model.User) (*Statistics, error) {
	tasks, err := s.taskRepo.ListAll(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	byCategory, err := s.categories.Counts(ctx, user)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		Total:      len(tasks),
		ByPriority: make(map[string]int, len(model.Priorities)),
		ByCategory: byCategory,
	}
	for _, p := range model.Priorities {
		stats.ByPriority[string(p)] = 0
	}
	for _, task := range tasks {
		if task.Completed {
			stats.Completed++
		}
		stats.ByPriority[string(task.Priority)]++
	}
	stats.Pending = stats.Total - stats.Completed
	if stats.Total > 0 {
		rate := float64(stats.Completed) / float64(stats.Total) * 100
		stats.CompletionRate = math.Round(rate*100) / 100
	}
	return stats, nil
}

// BulkUpdate applies the same patch to several todos. Failures are collected
// per todo instead of aborting the batch.
func (s *TaskService) BulkUpdate(ctx context.Context, user *model.User, ids []uint, patch TodoPatch) (*BulkResult, error) {
	res := &BulkResult{UpdatedTodos: []uint{}, Errors: []string{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, err := s.Update(ctx, user, id, patch)
		switch {
		case err == nil:
			res.UpdatedTodos = append(res.UpdatedTodos, id)
		case errors.Is(err, ErrTodoNotFound), errors.Is(err, ErrForbidden):
			res.Errors = append(res.Errors, fmt.Sprintf("Todo %d not found", id))
		default:
			res.Errors = append(res.Errors, fmt.Sprintf("Error updating todo %d: %v", id, err))
		}
	}
	res.UpdatedCount = len(res.UpdatedTodos)
	return res, nil
}

// Search ranks matching todos by where the query appears: title 3,
// description 2, category 1. Ties keep creation order.
func (s *TaskService) Search(ctx context.Context, user *model.User, query string, includeCompleted bool, limit int) ([]model.Task, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, invalid("q", "must not be empty")
	}
	if limit == 0 {
		limit = defaultSearchLimit
	}
	if limit < 1 || limit > maxSearchLimit {
		return nil, invalid("limit", "must be between 1 and %d", maxSearchLimit)
	}

	tasks, err := s.taskRepo.ListAll(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if !includeCompleted {
		open := tasks[:0]
		for _, task := range tasks {
			if !task.Completed {
				open = append(open, task)
			}
		}
		tasks = open
	}
	matches := view.SearchFilter(tasks, query)

	lowered := strings.ToLower(query)
	sort.SliceStable(matches, func(i, j int) bool {
		return relevance(matches[i], lowered) > relevance(matches[j], lowered)
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func relevance(task model.Task, lowered string) int {
	score := 0
	if strings.Contains(strings.ToLower(task.Title), lowered) {
		score += 3
	}
	if strings.Contains(strings.ToLower(task.Description), lowered) {
		score += 2
	}
	if strings.Contains(strings.ToLower(task.Category), lowered) {
		score++
	}
	return score
}

// Import creates todos one by one, collecting per-item failures.
func (s *TaskService) Import(ctx context.Context, user *model.User, inputs []TodoInput) (*ImportResult, error) {
	res := &ImportResult{ImportedTodoIDs: []uint{}, Errors: []string{}}
	for _, input := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		task, err := s.Create(ctx, user, input)
		if err != nil {
			title := input.Title
			if strings.TrimSpace(title) == "" {
				title = "Unknown"
			}
			res.Errors = append(res.Errors, fmt.Sprintf("Error importing todo '%s': %v", title, err))
			continue
		}
		res.ImportedTodoIDs = append(res.ImportedTodoIDs, task.ID)
	}
	res.ImportedCount = len(res.ImportedTodoIDs)
	return res, nil
}

// View applies a tab filter and a search query to all of the user's todos.
func (s *TaskService) View(ctx context.Context, user *model.User, filter view.Filter, query string, now time.Time) (*ViewResult, error) {
	tasks, err := s.taskRepo.ListAll(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &ViewResult{
		Filter: filter,
		Query:  query,
		Todos:  view.SearchFilter(view.FilterBy(tasks, filter, now), query),
		Counts: view.CountsByFilter(tasks, now),
	}, nil
}

func checkTitle(title string) error {
	if title == "" {
		return invalid("title", "title is required")
	}
	return checkLen("title", title, maxTitleLen)
}

func checkLen(field, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return invalid(field, "must be at most %d characters", max)
	}
	return nil
}

func normalizeDue(raw *string) (*string, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	due, err := view.NormalizeDueDate(*raw)
	if err != nil {
		return nil, invalid("due_date", "must be an ISO 8601 date")
	}
	return &due, nil
}

func sortByDue(tasks []model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, _ := view.ParseDueDate(tasks[i].Due())
		b, _ := view.ParseDueDate(tasks[j].Due())
		return a.Before(b)
	})
}
