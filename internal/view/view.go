// Package view derives what a user sees from a flat list of todos: the
// visible subset for a filter tab, per-tab counts, overdue status and search
// narrowing. Every function is pure and takes the current instant explicitly.
package view

import (
	"fmt"
	"strings"
	"time"

	"smart-todos/internal/model"
)

// Filter names one of the tabs over the todo collection.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterActive    Filter = "active"
	FilterCompleted Filter = "completed"
	FilterArchived  Filter = "archived"
	FilterOverdue   Filter = "overdue"
)

// Filters lists every tab in display order.
var Filters = []Filter{FilterAll, FilterActive, FilterCompleted, FilterArchived, FilterOverdue}

// ParseFilter converts user input to a Filter. An empty value means FilterAll.
func ParseFilter(raw string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterActive, FilterCompleted, FilterArchived, FilterOverdue:
		return f, nil
	default:
		return "", fmt.Errorf("unknown filter %q", raw)
	}
}

// Bucket is the exclusive lifecycle group of a todo.
type Bucket string

const (
	BucketActive    Bucket = "active"
	BucketCompleted Bucket = "completed"
	BucketArchived  Bucket = "archived"
)

// Classification is the result of Classify. Overdue is orthogonal to Bucket
// but can only be true for active todos.
type Classification struct {
	Bucket  Bucket
	Overdue bool
}

// Classify places a todo in exactly one bucket. Archived wins over completed.
func Classify(task model.Task, now time.Time) Classification {
	switch {
	case task.Archived:
		return Classification{Bucket: BucketArchived}
	case task.Completed:
		return Classification{Bucket: BucketCompleted}
	}
	due, ok := ParseDueDate(task.Due())
	return Classification{
		Bucket:  BucketActive,
		Overdue: ok && due.Before(now),
	}
}

// IsOverdue is shorthand for Classify(task, now).Overdue.
func IsOverdue(task model.Task, now time.Time) bool {
	return Classify(task, now).Overdue
}

// Matches reports whether a todo belongs to the given tab.
func Matches(task model.Task, kind Filter, now time.Time) bool {
	c := Classify(task, now)
	switch kind {
	case FilterAll:
		return c.Bucket != BucketArchived
	case FilterActive:
		return c.Bucket == BucketActive
	case FilterCompleted:
		return c.Bucket == BucketCompleted
	case FilterArchived:
		return c.Bucket == BucketArchived
	case FilterOverdue:
		return c.Overdue
	}
	return false
}

// FilterBy returns the todos visible under kind, in input order. The input
// slice is never modified.
func FilterBy(tasks []model.Task, kind Filter, now time.Time) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, task := range tasks {
		if Matches(task, kind, now) {
			out = append(out, task)
		}
	}
	return out
}

// Counts holds the size of every tab.
type Counts struct {
	All       int `json:"all"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Archived  int `json:"archived"`
	Overdue   int `json:"overdue"`
}

// Of returns the count for a single tab.
func (c Counts) Of(kind Filter) int {
	switch kind {
	case FilterAll:
		return c.All
	case FilterActive:
		return c.Active
	case FilterCompleted:
		return c.Completed
	case FilterArchived:
		return c.Archived
	case FilterOverdue:
		return c.Overdue
	}
	return 0
}

// CountsByFilter computes every tab size in a single pass.
// All always equals Active+Completed.
func CountsByFilter(tasks []model.Task, now time.Time) Counts {
	var c Counts
	for _, task := range tasks {
		cl := Classify(task, now)
		switch cl.Bucket {
		case BucketArchived:
			c.Archived++
			continue
		case BucketCompleted:
			c.Completed++
		case BucketActive:
			c.Active++
			if cl.Overdue {
				c.Overdue++
			}
		}
		c.All++
	}
	return c
}

// SearchFilter keeps todos whose title, description or category contains
// query, ignoring case. An empty query keeps everything.
func SearchFilter(tasks []model.Task, query string) []model.Task {
	q := strings.ToLower(query)
	out := make([]model.Task, 0, len(tasks))
	for _, task := range tasks {
		if q == "" || matchesQuery(task, q) {
			out = append(out, task)
		}
	}
	return out
}

func matchesQuery(task model.Task, lowered string) bool {
	return strings.Contains(strings.ToLower(task.Title), lowered) ||
		strings.Contains(strings.ToLower(task.Description), lowered) ||
		strings.Contains(strings.ToLower(task.Category), lowered)
}
